package store

import (
	"context"

	"solde/internal/models"
)

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type LedgerEntryInput struct {
	ID           string
	AccountID    string
	Kind         models.EntryKind
	Direction    models.EntryDirection
	Amount       int64
	Description  string
	Reference    *string
	BalanceAfter int64
}

// InsertEntry appends an entry. The ledger is append-only: this store has no
// update or delete statements.
func (s *LedgerStore) InsertEntry(ctx context.Context, tx Execer, entry LedgerEntryInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, kind, direction, amount, description, reference, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.AccountID, entry.Kind, entry.Direction, entry.Amount, entry.Description, entry.Reference, entry.BalanceAfter)
	return err
}

func (s *LedgerStore) Recent(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, kind, direction, amount, description, reference, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, kind, direction, amount, description, reference, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) AllByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, kind, direction, amount, description, reference, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE account_id = $1
	`, accountID)
	return count, err
}

// SignedSum reconstructs the balance from the full entry sequence.
func (s *LedgerStore) SignedSum(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`, accountID)
	return sum, err
}
