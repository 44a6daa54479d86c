package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"solde/internal/auth"
	"solde/internal/middleware"
	"solde/internal/models"
	"solde/internal/money"
	"solde/internal/services"
	"solde/internal/validator"
	"solde/internal/websocket"
)

func entryPayload(entry models.LedgerEntry) map[string]any {
	payload := map[string]any{
		"id":            entry.ID,
		"kind":          entry.Kind,
		"direction":     entry.Direction,
		"amount":        money.FormatMinor(entry.Amount),
		"description":   entry.Description,
		"balance_after": money.FormatMinor(entry.BalanceAfter),
		"created_at":    entry.CreatedAt,
	}
	if entry.Reference != nil {
		payload["reference"] = *entry.Reference
	}
	return payload
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	snapshot, err := h.service.CurrentBalance(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load balance")
		return
	}
	recent := make([]map[string]any, 0, len(snapshot.Recent))
	for _, entry := range snapshot.Recent {
		recent = append(recent, entryPayload(entry))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id": snapshot.AccountID,
		"balance":    money.FormatMinor(snapshot.Balance),
		"recent":     recent,
	})
}

type depositRequest struct {
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	kind := models.EntryKind(req.Kind)
	if req.Kind == "" {
		kind = models.EntryDeposit
	}
	balance, err := h.service.Deposit(r.Context(), services.DepositRequest{
		UserID:      userID,
		Kind:        kind,
		AmountMinor: amountMinor,
		Description: req.Description,
	})
	if err != nil {
		h.respondLedgerError(w, err, "deposit_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"balance": money.FormatMinor(balance),
	})
}

type withdrawRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	balance, err := h.service.Withdraw(r.Context(), services.WithdrawRequest{
		UserID:      userID,
		AmountMinor: amountMinor,
		Description: req.Description,
	})
	if err != nil {
		h.respondLedgerError(w, err, "withdraw_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"balance": money.FormatMinor(balance),
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	result, err := h.service.History(r.Context(), userID, page, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load history")
		return
	}
	entries := make([]map[string]any, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, entryPayload(entry))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balance":     money.FormatMinor(result.Balance),
		"entries":     entries,
		"page":        result.Page,
		"limit":       result.Limit,
		"total":       result.Total,
		"total_pages": result.TotalPages,
		"has_next":    result.HasNext,
		"has_prev":    result.HasPrev,
	})
}

func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	entries, err := h.service.FullHistory(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to export history")
		return
	}
	filename := fmt.Sprintf("history-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"date", "kind", "direction", "amount", "description", "balance_after"})
	for _, entry := range entries {
		_ = writer.Write([]string{
			entry.CreatedAt.Format(time.RFC3339),
			string(entry.Kind),
			string(entry.Direction),
			money.FormatMinor(entry.Amount),
			entry.Description,
			money.FormatMinor(entry.BalanceAfter),
		})
	}
	writer.Flush()
}

func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	check, err := h.service.VerifyAccount(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to self_check")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id": check.AccountID,
		"balance":    money.FormatMinor(check.Balance),
		"ledger_sum": money.FormatMinor(check.LedgerSum),
		"difference": money.FormatMinor(check.Difference),
		"consistent": check.Difference == 0,
	})
}

func (h *Handler) WSBalance(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}

func (h *Handler) respondLedgerError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case err == services.ErrInvalidAmount:
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case err == services.ErrMissingDescription:
		respondError(w, http.StatusBadRequest, "description_required")
	case err == services.ErrInvalidKind:
		respondError(w, http.StatusBadRequest, "invalid_kind")
	case err == services.ErrNotFound:
		respondError(w, http.StatusNotFound, "not_found")
	case err == services.ErrConflict:
		respondError(w, http.StatusConflict, "concurrent_update")
	case services.IsInsufficientBalance(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case validator.IsValidationError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
