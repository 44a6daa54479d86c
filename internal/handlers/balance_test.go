package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"solde/internal/models"
	"solde/internal/services"
)

func TestGetBalance(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		currentBalanceFn: func(_ context.Context, userID string) (services.BalanceSnapshot, error) {
			return services.BalanceSnapshot{
				AccountID: "acc-1",
				Balance:   750000,
				Recent: []models.LedgerEntry{
					{ID: "e1", Kind: models.EntrySalary, Direction: models.DirectionCredit, Amount: 1000000, Description: "salaire", BalanceAfter: 1000000, CreatedAt: time.Now()},
				},
			}, nil
		},
	})

	rr := serveAuthed(t, handler, http.MethodGet, "/balance/", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["balance"] != "7500.00" {
		t.Fatalf("unexpected balance: %v", payload["balance"])
	}
	recent, ok := payload["recent"].([]any)
	if !ok || len(recent) != 1 {
		t.Fatalf("unexpected recent entries: %v", payload["recent"])
	}
}

func TestDepositSuccess(t *testing.T) {
	var captured services.DepositRequest
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		depositFn: func(_ context.Context, req services.DepositRequest) (int64, error) {
			captured = req
			return 1000000, nil
		},
	})

	body := bytes.NewReader([]byte(`{"amount":"10000.00","kind":"salary","description":"salaire"}`))
	rr := serveAuthed(t, handler, http.MethodPost, "/balance/deposit", body, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if captured.AmountMinor != 1000000 || captured.Kind != models.EntrySalary {
		t.Fatalf("unexpected request: %#v", captured)
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["balance"] != "10000.00" {
		t.Fatalf("unexpected balance: %v", payload["balance"])
	}
}

func TestDepositDefaultsKind(t *testing.T) {
	var captured services.DepositRequest
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		depositFn: func(_ context.Context, req services.DepositRequest) (int64, error) {
			captured = req
			return 100, nil
		},
	})

	body := bytes.NewReader([]byte(`{"amount":"1.00","description":"top-up"}`))
	rr := serveAuthed(t, handler, http.MethodPost, "/balance/deposit", body, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if captured.Kind != models.EntryDeposit {
		t.Fatalf("expected default deposit kind, got %s", captured.Kind)
	}
}

func TestDepositInvalidAmount(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{})
	body := bytes.NewReader([]byte(`{"amount":"-5","description":"x"}`))
	rr := serveAuthed(t, handler, http.MethodPost, "/balance/deposit", body, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestWithdrawInsufficient(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		withdrawFn: func(context.Context, services.WithdrawRequest) (int64, error) {
			return 0, &services.InsufficientBalanceError{Balance: 0, Amount: 100}
		},
	})
	body := bytes.NewReader([]byte(`{"amount":"1.00","description":"cash"}`))
	rr := serveAuthed(t, handler, http.MethodPost, "/balance/withdraw", body, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(payload["error"], "insufficient balance") {
		t.Fatalf("expected insufficient balance message, got %q", payload["error"])
	}
}

func TestWithdrawConflict(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		withdrawFn: func(context.Context, services.WithdrawRequest) (int64, error) {
			return 0, services.ErrConflict
		},
	})
	body := bytes.NewReader([]byte(`{"amount":"1.00","description":"cash"}`))
	rr := serveAuthed(t, handler, http.MethodPost, "/balance/withdraw", body, "user-1")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestHistoryPassesPagination(t *testing.T) {
	var gotPage, gotLimit int
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		historyFn: func(_ context.Context, _ string, page, limit int) (services.HistoryPage, error) {
			gotPage, gotLimit = page, limit
			return services.HistoryPage{Page: page, Limit: limit, Total: 42, TotalPages: 9, HasNext: true, HasPrev: true}, nil
		},
	})
	rr := serveAuthed(t, handler, http.MethodGet, "/balance/history?page=3&limit=5", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotPage != 3 || gotLimit != 5 {
		t.Fatalf("expected page=3 limit=5, got page=%d limit=%d", gotPage, gotLimit)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["total"] != float64(42) || payload["has_next"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestExportHistoryCSV(t *testing.T) {
	reference := "exp-1"
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		fullHistoryFn: func(context.Context, string) ([]models.LedgerEntry, error) {
			return []models.LedgerEntry{
				{ID: "e2", Kind: models.EntryExpense, Direction: models.DirectionDebit, Amount: 250000, Description: "Dépense: Lunch", Reference: &reference, BalanceAfter: 750000, CreatedAt: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)},
				{ID: "e1", Kind: models.EntrySalary, Direction: models.DirectionCredit, Amount: 1000000, Description: "salaire", BalanceAfter: 1000000, CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
			}, nil
		},
	})
	rr := serveAuthed(t, handler, http.MethodGet, "/balance/history/export", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if contentType := rr.Header().Get("Content-Type"); contentType != "text/csv" {
		t.Fatalf("unexpected content type: %s", contentType)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "date,kind,direction,amount,description,balance_after" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "expense") || !strings.Contains(lines[1], "2500.00") {
		t.Fatalf("unexpected first row: %s", lines[1])
	}
}

func TestSelfCheck(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{
		verifyAccountFn: func(context.Context, string) (services.AccountCheck, error) {
			return services.AccountCheck{AccountID: "acc-1", Balance: 750000, LedgerSum: 750000}, nil
		},
	})
	rr := serveAuthed(t, handler, http.MethodGet, "/balance/self-check", nil, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["consistent"] != true || payload["difference"] != "0.00" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestWSBalanceMissingToken(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{})
	req := httptest.NewRequest(http.MethodGet, "/ws/balance", nil)
	rr := httptest.NewRecorder()
	handler.WSBalance(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWSBalanceInvalidToken(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubExpenseReader{}, stubAuditStore{}, stubService{})
	req := httptest.NewRequest(http.MethodGet, "/ws/balance?token=garbage", nil)
	rr := httptest.NewRecorder()
	handler.WSBalance(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
