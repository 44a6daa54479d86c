package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"solde/internal/db"
	"solde/internal/models"
	"solde/internal/money"
	"solde/internal/store"
	"solde/internal/validator"
	"solde/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrMissingDescription = errors.New("a description is required")
	ErrInvalidKind        = errors.New("invalid entry kind")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("concurrent update, please retry")
)

// InsufficientBalanceError carries the balance and the attempted amount so
// the HTTP layer can render them in the user-facing message.
type InsufficientBalanceError struct {
	Balance int64
	Amount  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: current %s, attempted %s",
		money.FormatMinor(e.Balance), money.FormatMinor(e.Amount))
}

func IsInsufficientBalance(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}

type LedgerService struct {
	txRunner db.TxRunner
	accounts BalanceStore
	ledger   LedgerStore
	expenses ExpenseStore
	audit    AuditStore
	hub      BalanceHub
}

type BalanceStore interface {
	GetOrCreateForUpdate(ctx context.Context, tx store.Tx, userID string) (models.BalanceAccount, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error
}

type LedgerStore interface {
	InsertEntry(ctx context.Context, tx store.Execer, entry store.LedgerEntryInput) error
	Recent(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error)
	AllByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
	SignedSum(ctx context.Context, accountID string) (int64, error)
}

type ExpenseStore interface {
	Create(ctx context.Context, tx store.Execer, input store.ExpenseInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, expenseID, userID string) (models.Expense, error)
	Update(ctx context.Context, tx store.Execer, expense models.Expense) error
	Delete(ctx context.Context, tx store.Execer, expenseID, userID string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

func NewLedgerService(txRunner db.TxRunner, accounts BalanceStore, ledger LedgerStore, expenses ExpenseStore, audit AuditStore, hub BalanceHub) *LedgerService {
	return &LedgerService{
		txRunner: txRunner,
		accounts: accounts,
		ledger:   ledger,
		expenses: expenses,
		audit:    audit,
		hub:      hub,
	}
}

// credit appends a credit entry and advances the stored balance. Entry and
// balance move together inside the caller's transaction.
func (s *LedgerService) credit(ctx context.Context, tx *sqlx.Tx, account models.BalanceAccount, kind models.EntryKind, amount int64, description string, reference *string) (int64, error) {
	balanceAfter := account.Balance + amount
	entry := store.LedgerEntryInput{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		Kind:         kind,
		Direction:    models.DirectionCredit,
		Amount:       amount,
		Description:  description,
		Reference:    reference,
		BalanceAfter: balanceAfter,
	}
	if err := s.ledger.InsertEntry(ctx, tx, entry); err != nil {
		return 0, err
	}
	if err := s.accounts.UpdateBalance(ctx, tx, account.ID, balanceAfter); err != nil {
		return 0, err
	}
	return balanceAfter, nil
}

// debit checks the balance before touching anything; on insufficient funds
// no entry is written and the stored balance is untouched.
func (s *LedgerService) debit(ctx context.Context, tx *sqlx.Tx, account models.BalanceAccount, kind models.EntryKind, amount int64, description string, reference *string) (int64, error) {
	if account.Balance < amount {
		return 0, &InsufficientBalanceError{Balance: account.Balance, Amount: amount}
	}
	balanceAfter := account.Balance - amount
	entry := store.LedgerEntryInput{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		Kind:         kind,
		Direction:    models.DirectionDebit,
		Amount:       amount,
		Description:  description,
		Reference:    reference,
		BalanceAfter: balanceAfter,
	}
	if err := s.ledger.InsertEntry(ctx, tx, entry); err != nil {
		return 0, err
	}
	if err := s.accounts.UpdateBalance(ctx, tx, account.ID, balanceAfter); err != nil {
		return 0, err
	}
	return balanceAfter, nil
}

type BalanceSnapshot struct {
	AccountID string
	Balance   int64
	Recent    []models.LedgerEntry
}

func (s *LedgerService) CurrentBalance(ctx context.Context, userID string) (BalanceSnapshot, error) {
	var account models.BalanceAccount
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.accounts.GetOrCreateForUpdate(ctx, tx, userID)
		return err
	})
	if err != nil {
		return BalanceSnapshot{}, mapTxErr(err)
	}
	recent, err := s.ledger.Recent(ctx, account.ID, 10)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	return BalanceSnapshot{AccountID: account.ID, Balance: account.Balance, Recent: recent}, nil
}

type DepositRequest struct {
	UserID      string
	Kind        models.EntryKind
	AmountMinor int64
	Description string
}

func (s *LedgerService) Deposit(ctx context.Context, req DepositRequest) (int64, error) {
	if req.AmountMinor <= 0 {
		return 0, ErrInvalidAmount
	}
	if strings.TrimSpace(req.Description) == "" {
		return 0, ErrMissingDescription
	}
	if req.Kind != models.EntryDeposit && req.Kind != models.EntrySalary {
		return 0, ErrInvalidKind
	}
	var newBalance int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.GetOrCreateForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		newBalance, err = s.credit(ctx, tx, account, req.Kind, req.AmountMinor, req.Description, nil)
		if err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"kind":   string(req.Kind),
			"amount": money.FormatMinor(req.AmountMinor),
		})
		return s.audit.Log(ctx, tx, req.UserID, "deposit", "balance_account", account.ID, string(data))
	})
	if err != nil {
		return 0, mapTxErr(err)
	}
	s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
		Balance:     money.FormatMinor(newBalance),
		Kind:        string(req.Kind),
		Description: req.Description,
	})
	return newBalance, nil
}

type WithdrawRequest struct {
	UserID      string
	AmountMinor int64
	Description string
}

func (s *LedgerService) Withdraw(ctx context.Context, req WithdrawRequest) (int64, error) {
	if req.AmountMinor <= 0 {
		return 0, ErrInvalidAmount
	}
	if strings.TrimSpace(req.Description) == "" {
		return 0, ErrMissingDescription
	}
	var newBalance int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.GetOrCreateForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		newBalance, err = s.debit(ctx, tx, account, models.EntryWithdrawal, req.AmountMinor, req.Description, nil)
		if err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"amount": money.FormatMinor(req.AmountMinor),
		})
		return s.audit.Log(ctx, tx, req.UserID, "withdraw", "balance_account", account.ID, string(data))
	})
	if err != nil {
		return 0, mapTxErr(err)
	}
	s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
		Balance:     money.FormatMinor(newBalance),
		Kind:        string(models.EntryWithdrawal),
		Description: req.Description,
	})
	return newBalance, nil
}

type HistoryPage struct {
	Balance    int64
	Entries    []models.LedgerEntry
	Page       int
	Limit      int
	Total      int64
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

func (s *LedgerService) History(ctx context.Context, userID string, page, limit int) (HistoryPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	var account models.BalanceAccount
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.accounts.GetOrCreateForUpdate(ctx, tx, userID)
		return err
	})
	if err != nil {
		return HistoryPage{}, mapTxErr(err)
	}
	total, err := s.ledger.CountByAccount(ctx, account.ID)
	if err != nil {
		return HistoryPage{}, err
	}
	entries, err := s.ledger.ListByAccount(ctx, account.ID, limit, (page-1)*limit)
	if err != nil {
		return HistoryPage{}, err
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return HistoryPage{
		Balance:    account.Balance,
		Entries:    entries,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// FullHistory returns every entry for the user's account, newest first.
// Used by the CSV export.
func (s *LedgerService) FullHistory(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	var account models.BalanceAccount
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.accounts.GetOrCreateForUpdate(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, mapTxErr(err)
	}
	return s.ledger.AllByAccount(ctx, account.ID)
}

type ExpenseInput struct {
	Title       string
	AmountMinor int64
	Category    string
	Date        time.Time
	Description string
}

func (s *LedgerService) CreateExpense(ctx context.Context, userID string, input ExpenseInput) (models.Expense, int64, error) {
	if input.Date.IsZero() {
		input.Date = time.Now()
	}
	if err := validator.ValidateExpense(input.Title, input.AmountMinor, input.Category, input.Date, input.Description); err != nil {
		return models.Expense{}, 0, err
	}
	expenseID := uuid.NewString()
	var newBalance int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.GetOrCreateForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account.Balance < input.AmountMinor {
			return &InsufficientBalanceError{Balance: account.Balance, Amount: input.AmountMinor}
		}
		if err := s.expenses.Create(ctx, tx, store.ExpenseInput{
			ID:          expenseID,
			UserID:      userID,
			Title:       input.Title,
			Amount:      input.AmountMinor,
			Category:    input.Category,
			Date:        input.Date,
			Description: input.Description,
		}); err != nil {
			return err
		}
		newBalance, err = s.debit(ctx, tx, account, models.EntryExpense, input.AmountMinor, "Dépense: "+input.Title, &expenseID)
		if err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"title":  input.Title,
			"amount": money.FormatMinor(input.AmountMinor),
		})
		return s.audit.Log(ctx, tx, userID, "expense_create", "expense", expenseID, string(data))
	})
	if err != nil {
		return models.Expense{}, 0, mapTxErr(err)
	}
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		Balance:     money.FormatMinor(newBalance),
		Kind:        string(models.EntryExpense),
		Description: "Dépense: " + input.Title,
	})
	expense := models.Expense{
		ID:          expenseID,
		UserID:      userID,
		Title:       input.Title,
		Amount:      input.AmountMinor,
		Category:    input.Category,
		Date:        input.Date,
		Description: input.Description,
	}
	return expense, newBalance, nil
}

type ExpensePatch struct {
	Title       *string
	AmountMinor *int64
	Category    *string
	Date        *time.Time
	Description *string
}

func (s *LedgerService) UpdateExpense(ctx context.Context, userID, expenseID string, patch ExpensePatch) (models.Expense, error) {
	var updated models.Expense
	var newBalance *int64
	var broadcastDescription string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		newBalance = nil
		existing, err := s.expenses.GetForUpdate(ctx, tx, expenseID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		updated = existing
		if patch.Title != nil {
			updated.Title = *patch.Title
		}
		if patch.AmountMinor != nil {
			updated.Amount = *patch.AmountMinor
		}
		if patch.Category != nil {
			updated.Category = *patch.Category
		}
		if patch.Date != nil {
			updated.Date = *patch.Date
		}
		if patch.Description != nil {
			updated.Description = *patch.Description
		}
		if err := validator.ValidateExpense(updated.Title, updated.Amount, updated.Category, updated.Date, updated.Description); err != nil {
			return err
		}
		delta := updated.Amount - existing.Amount
		if delta != 0 {
			account, err := s.accounts.GetOrCreateForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			var balance int64
			if delta > 0 {
				description := fmt.Sprintf("Ajustement: %s (augmentation)", existing.Title)
				balance, err = s.debit(ctx, tx, account, models.EntryAdjustment, delta, description, &expenseID)
				broadcastDescription = description
			} else {
				description := fmt.Sprintf("Ajustement: %s (diminution)", existing.Title)
				balance, err = s.credit(ctx, tx, account, models.EntryAdjustment, -delta, description, &expenseID)
				broadcastDescription = description
			}
			if err != nil {
				return err
			}
			newBalance = &balance
		}
		if err := s.expenses.Update(ctx, tx, updated); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"title":  updated.Title,
			"amount": money.FormatMinor(updated.Amount),
		})
		return s.audit.Log(ctx, tx, userID, "expense_update", "expense", expenseID, string(data))
	})
	if err != nil {
		return models.Expense{}, mapTxErr(err)
	}
	if newBalance != nil {
		s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
			Balance:     money.FormatMinor(*newBalance),
			Kind:        string(models.EntryAdjustment),
			Description: broadcastDescription,
		})
	}
	return updated, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, userID, expenseID string) (int64, error) {
	var refunded int64
	var newBalance int64
	var description string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.expenses.GetForUpdate(ctx, tx, expenseID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		account, err := s.accounts.GetOrCreateForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		description = fmt.Sprintf("Remboursement: %s (dépense supprimée)", existing.Title)
		newBalance, err = s.credit(ctx, tx, account, models.EntryDeposit, existing.Amount, description, &expenseID)
		if err != nil {
			return err
		}
		rows, err := s.expenses.Delete(ctx, tx, expenseID, userID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		refunded = existing.Amount
		data, _ := json.Marshal(map[string]string{
			"title":    existing.Title,
			"refunded": money.FormatMinor(existing.Amount),
		})
		return s.audit.Log(ctx, tx, userID, "expense_delete", "expense", expenseID, string(data))
	})
	if err != nil {
		return 0, mapTxErr(err)
	}
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		Balance:     money.FormatMinor(newBalance),
		Kind:        string(models.EntryDeposit),
		Description: description,
	})
	return refunded, nil
}

type AccountCheck struct {
	AccountID  string
	Balance    int64
	LedgerSum  int64
	Difference int64
}

// VerifyAccount recomputes the balance from the signed entry sequence and
// reports any drift from the stored balance.
func (s *LedgerService) VerifyAccount(ctx context.Context, userID string) (AccountCheck, error) {
	var account models.BalanceAccount
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.accounts.GetOrCreateForUpdate(ctx, tx, userID)
		return err
	})
	if err != nil {
		return AccountCheck{}, mapTxErr(err)
	}
	sum, err := s.ledger.SignedSum(ctx, account.ID)
	if err != nil {
		return AccountCheck{}, err
	}
	return AccountCheck{
		AccountID:  account.ID,
		Balance:    account.Balance,
		LedgerSum:  sum,
		Difference: account.Balance - sum,
	}, nil
}

func mapTxErr(err error) error {
	if errors.Is(err, db.ErrTxRetryLimit) {
		return ErrConflict
	}
	return err
}
