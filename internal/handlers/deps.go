package handlers

import (
	"context"
	"time"

	"solde/internal/models"
	"solde/internal/services"
	"solde/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (map[string]any, error)
	GetByID(ctx context.Context, userID string) (map[string]any, error)
}

// ExpenseReader is the read side of the expense store. Mutations go
// through the ledger service so the balance and history stay in step.
type ExpenseReader interface {
	GetByIDAndUser(ctx context.Context, expenseID, userID string) (models.Expense, error)
	List(ctx context.Context, filter store.ExpenseFilter) ([]models.Expense, error)
	Count(ctx context.Context, filter store.ExpenseFilter) (int64, error)
	StatsByCategory(ctx context.Context, userID string, from, to *time.Time) ([]store.CategoryStat, error)
	StatsByMonth(ctx context.Context, userID string, year int) ([]store.MonthlyStat, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type LedgerService interface {
	CurrentBalance(ctx context.Context, userID string) (services.BalanceSnapshot, error)
	Deposit(ctx context.Context, req services.DepositRequest) (int64, error)
	Withdraw(ctx context.Context, req services.WithdrawRequest) (int64, error)
	History(ctx context.Context, userID string, page, limit int) (services.HistoryPage, error)
	FullHistory(ctx context.Context, userID string) ([]models.LedgerEntry, error)
	CreateExpense(ctx context.Context, userID string, input services.ExpenseInput) (models.Expense, int64, error)
	UpdateExpense(ctx context.Context, userID, expenseID string, patch services.ExpensePatch) (models.Expense, error)
	DeleteExpense(ctx context.Context, userID, expenseID string) (int64, error)
	VerifyAccount(ctx context.Context, userID string) (services.AccountCheck, error)
}
