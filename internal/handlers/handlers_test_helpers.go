package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"solde/internal/auth"
	"solde/internal/config"
	"solde/internal/db"
	"solde/internal/models"
	"solde/internal/services"
	"solde/internal/store"
	"solde/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn func(ctx context.Context, email string) (map[string]any, error)
	getByIDFn    func(ctx context.Context, userID string) (map[string]any, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (map[string]any, error) {
	if s.getByEmailFn == nil {
		return nil, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (map[string]any, error) {
	if s.getByIDFn == nil {
		return nil, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubExpenseReader struct {
	getFn             func(ctx context.Context, expenseID, userID string) (models.Expense, error)
	listFn            func(ctx context.Context, filter store.ExpenseFilter) ([]models.Expense, error)
	countFn           func(ctx context.Context, filter store.ExpenseFilter) (int64, error)
	statsByCategoryFn func(ctx context.Context, userID string, from, to *time.Time) ([]store.CategoryStat, error)
	statsByMonthFn    func(ctx context.Context, userID string, year int) ([]store.MonthlyStat, error)
}

func (s stubExpenseReader) GetByIDAndUser(ctx context.Context, expenseID, userID string) (models.Expense, error) {
	if s.getFn == nil {
		return models.Expense{}, nil
	}
	return s.getFn(ctx, expenseID, userID)
}

func (s stubExpenseReader) List(ctx context.Context, filter store.ExpenseFilter) ([]models.Expense, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter)
}

func (s stubExpenseReader) Count(ctx context.Context, filter store.ExpenseFilter) (int64, error) {
	if s.countFn == nil {
		return 0, nil
	}
	return s.countFn(ctx, filter)
}

func (s stubExpenseReader) StatsByCategory(ctx context.Context, userID string, from, to *time.Time) ([]store.CategoryStat, error) {
	if s.statsByCategoryFn == nil {
		return nil, nil
	}
	return s.statsByCategoryFn(ctx, userID, from, to)
}

func (s stubExpenseReader) StatsByMonth(ctx context.Context, userID string, year int) ([]store.MonthlyStat, error) {
	if s.statsByMonthFn == nil {
		return nil, nil
	}
	return s.statsByMonthFn(ctx, userID, year)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

type stubService struct {
	currentBalanceFn func(ctx context.Context, userID string) (services.BalanceSnapshot, error)
	depositFn        func(ctx context.Context, req services.DepositRequest) (int64, error)
	withdrawFn       func(ctx context.Context, req services.WithdrawRequest) (int64, error)
	historyFn        func(ctx context.Context, userID string, page, limit int) (services.HistoryPage, error)
	fullHistoryFn    func(ctx context.Context, userID string) ([]models.LedgerEntry, error)
	createExpenseFn  func(ctx context.Context, userID string, input services.ExpenseInput) (models.Expense, int64, error)
	updateExpenseFn  func(ctx context.Context, userID, expenseID string, patch services.ExpensePatch) (models.Expense, error)
	deleteExpenseFn  func(ctx context.Context, userID, expenseID string) (int64, error)
	verifyAccountFn  func(ctx context.Context, userID string) (services.AccountCheck, error)
}

func (s stubService) CurrentBalance(ctx context.Context, userID string) (services.BalanceSnapshot, error) {
	if s.currentBalanceFn == nil {
		return services.BalanceSnapshot{}, nil
	}
	return s.currentBalanceFn(ctx, userID)
}

func (s stubService) Deposit(ctx context.Context, req services.DepositRequest) (int64, error) {
	if s.depositFn == nil {
		return 0, nil
	}
	return s.depositFn(ctx, req)
}

func (s stubService) Withdraw(ctx context.Context, req services.WithdrawRequest) (int64, error) {
	if s.withdrawFn == nil {
		return 0, nil
	}
	return s.withdrawFn(ctx, req)
}

func (s stubService) History(ctx context.Context, userID string, page, limit int) (services.HistoryPage, error) {
	if s.historyFn == nil {
		return services.HistoryPage{}, nil
	}
	return s.historyFn(ctx, userID, page, limit)
}

func (s stubService) FullHistory(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	if s.fullHistoryFn == nil {
		return nil, nil
	}
	return s.fullHistoryFn(ctx, userID)
}

func (s stubService) CreateExpense(ctx context.Context, userID string, input services.ExpenseInput) (models.Expense, int64, error) {
	if s.createExpenseFn == nil {
		return models.Expense{}, 0, nil
	}
	return s.createExpenseFn(ctx, userID, input)
}

func (s stubService) UpdateExpense(ctx context.Context, userID, expenseID string, patch services.ExpensePatch) (models.Expense, error) {
	if s.updateExpenseFn == nil {
		return models.Expense{}, nil
	}
	return s.updateExpenseFn(ctx, userID, expenseID, patch)
}

func (s stubService) DeleteExpense(ctx context.Context, userID, expenseID string) (int64, error) {
	if s.deleteExpenseFn == nil {
		return 0, nil
	}
	return s.deleteExpenseFn(ctx, userID, expenseID)
}

func (s stubService) VerifyAccount(ctx context.Context, userID string) (services.AccountCheck, error) {
	if s.verifyAccountFn == nil {
		return services.AccountCheck{}, nil
	}
	return s.verifyAccountFn(ctx, userID)
}

func newTestHandler(txRunner db.TxRunner, users UserStore, expenses ExpenseReader, audit AuditStore, service LedgerService) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		DatabaseURL:    "",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	return New(txRunner, cfg, users, expenses, audit, service, websocket.NewHub())
}

// serveAuthed runs the request through the full router so URL params and
// the auth middleware behave as in production.
func serveAuthed(t *testing.T, handler *Handler, method, target string, body io.Reader, userID string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}
