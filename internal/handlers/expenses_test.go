package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"solde/internal/models"
	"solde/internal/services"
	"solde/internal/store"
)

func TestCreateExpenseSuccess(t *testing.T) {
	var captured services.ExpenseInput
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		createExpenseFn: func(_ context.Context, _ string, input services.ExpenseInput) (models.Expense, int64, error) {
			captured = input
			return models.Expense{
				ID:       "exp-1",
				UserID:   "user-1",
				Title:    input.Title,
				Amount:   input.AmountMinor,
				Category: input.Category,
				Date:     input.Date,
			}, 750000, nil
		},
	})

	body := bytes.NewReader([]byte(`{"title":"Lunch","amount":"2500.00","category":"alimentation","date":"2025-06-02"}`))
	rr := serveAuthed(t, handler, http.MethodPost, "/expenses/", body, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if captured.AmountMinor != 250000 || captured.Category != "alimentation" {
		t.Fatalf("unexpected input: %#v", captured)
	}
	if captured.Date.Format("2006-01-02") != "2025-06-02" {
		t.Fatalf("unexpected date: %v", captured.Date)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["balance"] != "7500.00" {
		t.Fatalf("unexpected balance: %v", payload["balance"])
	}
	expense, ok := payload["expense"].(map[string]any)
	if !ok || expense["amount"] != "2500.00" {
		t.Fatalf("unexpected expense payload: %v", payload["expense"])
	}
}

func TestCreateExpenseInvalidAmount(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{})
	body := bytes.NewReader([]byte(`{"title":"Lunch","amount":"zero","category":"alimentation"}`))
	rr := serveAuthed(t, handler, http.MethodPost, "/expenses/", body, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateExpenseInsufficient(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		createExpenseFn: func(context.Context, string, services.ExpenseInput) (models.Expense, int64, error) {
			return models.Expense{}, 0, &services.InsufficientBalanceError{Balance: 750000, Amount: 900000}
		},
	})
	body := bytes.NewReader([]byte(`{"title":"Rent","amount":"9000.00","category":"logement"}`))
	rr := serveAuthed(t, handler, http.MethodPost, "/expenses/", body, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListExpensesInvalidCategory(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{})
	rr := serveAuthed(t, handler, http.MethodGet, "/expenses/?category=gadgets", nil, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListExpensesPagination(t *testing.T) {
	var gotFilter store.ExpenseFilter
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{
		countFn: func(context.Context, store.ExpenseFilter) (int64, error) {
			return 23, nil
		},
		listFn: func(_ context.Context, filter store.ExpenseFilter) ([]models.Expense, error) {
			gotFilter = filter
			return []models.Expense{
				{ID: "exp-1", UserID: "user-1", Title: "Lunch", Amount: 250000, Category: "alimentation", Date: time.Now()},
			}, nil
		},
	}, stubAuditStore{}, stubService{})

	rr := serveAuthed(t, handler, http.MethodGet, "/expenses/?page=2&limit=10&category=alimentation&month=6&year=2025", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotFilter.UserID != "user-1" || gotFilter.Category != "alimentation" || gotFilter.Limit != 10 || gotFilter.Offset != 10 {
		t.Fatalf("unexpected filter: %#v", gotFilter)
	}
	if gotFilter.From == nil || gotFilter.To == nil {
		t.Fatalf("expected month/year to produce a date range")
	}
	if !gotFilter.From.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) || !gotFilter.To.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date range: %v - %v", gotFilter.From, gotFilter.To)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["total"] != float64(23) || payload["total_pages"] != float64(3) {
		t.Fatalf("unexpected pagination: %v", payload)
	}
	if payload["has_next"] != true || payload["has_prev"] != true {
		t.Fatalf("unexpected pagination flags: %v", payload)
	}
}

func TestGetExpenseNotFound(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{
		getFn: func(context.Context, string, string) (models.Expense, error) {
			return models.Expense{}, sql.ErrNoRows
		},
	}, stubAuditStore{}, stubService{})
	rr := serveAuthed(t, handler, http.MethodGet, "/expenses/missing", nil, "user-1")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestUpdateExpense(t *testing.T) {
	var gotID string
	var gotPatch services.ExpensePatch
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		updateExpenseFn: func(_ context.Context, _ string, expenseID string, patch services.ExpensePatch) (models.Expense, error) {
			gotID = expenseID
			gotPatch = patch
			return models.Expense{ID: expenseID, Title: "Lunch", Amount: 400000, Category: "alimentation", Date: time.Now()}, nil
		},
	})

	body := bytes.NewReader([]byte(`{"amount":"4000.00"}`))
	rr := serveAuthed(t, handler, http.MethodPut, "/expenses/exp-1", body, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotID != "exp-1" {
		t.Fatalf("unexpected expense id: %s", gotID)
	}
	if gotPatch.AmountMinor == nil || *gotPatch.AmountMinor != 400000 {
		t.Fatalf("unexpected patch: %#v", gotPatch)
	}
	if gotPatch.Title != nil {
		t.Fatalf("title should be absent from patch")
	}
}

func TestUpdateExpenseNotFound(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		updateExpenseFn: func(context.Context, string, string, services.ExpensePatch) (models.Expense, error) {
			return models.Expense{}, services.ErrNotFound
		},
	})
	body := bytes.NewReader([]byte(`{"title":"x"}`))
	rr := serveAuthed(t, handler, http.MethodPut, "/expenses/missing", body, "user-1")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDeleteExpense(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		deleteExpenseFn: func(_ context.Context, _ string, expenseID string) (int64, error) {
			if expenseID != "exp-1" {
				t.Fatalf("unexpected expense id: %s", expenseID)
			}
			return 400000, nil
		},
	})
	rr := serveAuthed(t, handler, http.MethodDelete, "/expenses/exp-1", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["refunded"] != "4000.00" {
		t.Fatalf("unexpected refund: %v", payload["refunded"])
	}
}

func TestExpenseStatsSummary(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{
		statsByCategoryFn: func(context.Context, string, *time.Time, *time.Time) ([]store.CategoryStat, error) {
			return []store.CategoryStat{
				{Category: "alimentation", Total: 600000, Count: 3},
				{Category: "transport", Total: 400000, Count: 2},
			}, nil
		},
	}, stubAuditStore{}, stubService{})

	rr := serveAuthed(t, handler, http.MethodGet, "/expenses/stats/summary", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["total"] != "10000.00" {
		t.Fatalf("unexpected total: %v", payload["total"])
	}
	categories, ok := payload["categories"].([]any)
	if !ok || len(categories) != 2 {
		t.Fatalf("unexpected categories: %v", payload["categories"])
	}
	first := categories[0].(map[string]any)
	if first["percentage"] != "60.0" {
		t.Fatalf("unexpected percentage: %v", first["percentage"])
	}
}

func TestExpenseStatsMonthlyZeroFill(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{
		statsByMonthFn: func(_ context.Context, _ string, year int) ([]store.MonthlyStat, error) {
			if year != 2025 {
				t.Fatalf("unexpected year: %d", year)
			}
			return []store.MonthlyStat{
				{Month: 6, Total: 250000, Count: 1},
			}, nil
		},
	}, stubAuditStore{}, stubService{})

	rr := serveAuthed(t, handler, http.MethodGet, "/expenses/stats/monthly?year=2025", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	months, ok := payload["months"].([]any)
	if !ok || len(months) != 12 {
		t.Fatalf("expected 12 months, got %v", payload["months"])
	}
	june := months[5].(map[string]any)
	if june["total"] != "2500.00" || june["count"] != float64(1) {
		t.Fatalf("unexpected june stats: %v", june)
	}
	january := months[0].(map[string]any)
	if january["total"] != "0.00" || january["count"] != float64(0) {
		t.Fatalf("expected zero-filled january, got %v", january)
	}
}
