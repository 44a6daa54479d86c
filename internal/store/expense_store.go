package store

import (
	"context"
	"time"

	"solde/internal/models"
)

type ExpenseStore struct {
	db DB
}

func NewExpenseStore(db DB) *ExpenseStore {
	return &ExpenseStore{db: db}
}

type ExpenseInput struct {
	ID          string
	UserID      string
	Title       string
	Amount      int64
	Category    string
	Date        time.Time
	Description string
}

type ExpenseFilter struct {
	UserID   string
	Category string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

type CategoryStat struct {
	Category string `db:"category"`
	Total    int64  `db:"total"`
	Count    int64  `db:"count"`
}

type MonthlyStat struct {
	Month int   `db:"month"`
	Total int64 `db:"total"`
	Count int64 `db:"count"`
}

func (s *ExpenseStore) Create(ctx context.Context, tx Execer, input ExpenseInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, title, amount, category, date, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, input.ID, input.UserID, input.Title, input.Amount, input.Category, input.Date, input.Description)
	return err
}

func (s *ExpenseStore) GetByIDAndUser(ctx context.Context, expenseID, userID string) (models.Expense, error) {
	var row models.Expense
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, title, amount, category, date, description, created_at, updated_at
		FROM expenses
		WHERE id = $1 AND user_id = $2
	`, expenseID, userID)
	if err != nil {
		return models.Expense{}, err
	}
	return row, nil
}

// GetForUpdate locks the expense row for the duration of the transaction so
// an edit and a delete on the same expense cannot interleave.
func (s *ExpenseStore) GetForUpdate(ctx context.Context, tx Getter, expenseID, userID string) (models.Expense, error) {
	var row models.Expense
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, title, amount, category, date, description, created_at, updated_at
		FROM expenses
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, expenseID, userID)
	if err != nil {
		return models.Expense{}, err
	}
	return row, nil
}

func (s *ExpenseStore) Update(ctx context.Context, tx Execer, expense models.Expense) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE expenses
		SET title = $1, amount = $2, category = $3, date = $4, description = $5, updated_at = NOW()
		WHERE id = $6 AND user_id = $7
	`, expense.Title, expense.Amount, expense.Category, expense.Date, expense.Description, expense.ID, expense.UserID)
	return err
}

func (s *ExpenseStore) Delete(ctx context.Context, tx Execer, expenseID, userID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM expenses
		WHERE id = $1 AND user_id = $2
	`, expenseID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *ExpenseStore) List(ctx context.Context, filter ExpenseFilter) ([]models.Expense, error) {
	query := `
		SELECT id, user_id, title, amount, category, date, description, created_at, updated_at
		FROM expenses
		WHERE user_id = $1
	`
	query, args := applyExpenseFilter(query, filter)
	query += ` ORDER BY date DESC, created_at DESC LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, filter.Limit, filter.Offset)
	var rows []models.Expense
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ExpenseStore) Count(ctx context.Context, filter ExpenseFilter) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM expenses
		WHERE user_id = $1
	`
	query, args := applyExpenseFilter(query, filter)
	var count int64
	err := s.db.GetContext(ctx, &count, query, args...)
	return count, err
}

func (s *ExpenseStore) StatsByCategory(ctx context.Context, userID string, from, to *time.Time) ([]CategoryStat, error) {
	query := `
		SELECT category, SUM(amount) AS total, COUNT(*) AS count
		FROM expenses
		WHERE user_id = $1
	`
	args := []any{userID}
	if from != nil && to != nil {
		query += ` AND date >= $2 AND date < $3`
		args = append(args, *from, *to)
	}
	query += ` GROUP BY category ORDER BY total DESC`
	var rows []CategoryStat
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ExpenseStore) StatsByMonth(ctx context.Context, userID string, year int) ([]MonthlyStat, error) {
	var rows []MonthlyStat
	err := s.db.SelectContext(ctx, &rows, `
		SELECT EXTRACT(MONTH FROM date)::int AS month, SUM(amount) AS total, COUNT(*) AS count
		FROM expenses
		WHERE user_id = $1
		  AND date >= make_date($2, 1, 1)
		  AND date < make_date($2 + 1, 1, 1)
		GROUP BY 1
		ORDER BY 1
	`, userID, year)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func applyExpenseFilter(query string, filter ExpenseFilter) (string, []any) {
	args := []any{filter.UserID}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += ` AND category = $` + itoa(len(args))
	}
	if filter.From != nil && filter.To != nil {
		args = append(args, *filter.From)
		query += ` AND date >= $` + itoa(len(args))
		args = append(args, *filter.To)
		query += ` AND date < $` + itoa(len(args))
	}
	return query, args
}
