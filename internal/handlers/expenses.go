package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"solde/internal/middleware"
	"solde/internal/models"
	"solde/internal/money"
	"solde/internal/services"
	"solde/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func expensePayload(expense models.Expense) map[string]any {
	return map[string]any{
		"id":          expense.ID,
		"title":       expense.Title,
		"amount":      money.FormatMinor(expense.Amount),
		"category":    expense.Category,
		"date":        expense.Date.Format("2006-01-02"),
		"description": expense.Description,
		"created_at":  expense.CreatedAt,
		"updated_at":  expense.UpdatedAt,
	}
}

func parseDate(raw string) (time.Time, error) {
	if date, err := time.Parse("2006-01-02", raw); err == nil {
		return date, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// monthYearRange converts optional month/year query params into a half-open
// date range. month without year defaults to the current year.
func monthYearRange(monthRaw, yearRaw string) (*time.Time, *time.Time) {
	if monthRaw == "" && yearRaw == "" {
		return nil, nil
	}
	year := parseInt(yearRaw, time.Now().Year())
	if monthRaw == "" {
		from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(1, 0, 0)
		return &from, &to
	}
	month := parseInt(monthRaw, 0)
	if month < 1 || month > 12 {
		return nil, nil
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	return &from, &to
}

type createExpenseRequest struct {
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	input := services.ExpenseInput{
		Title:       req.Title,
		AmountMinor: amountMinor,
		Category:    req.Category,
		Description: req.Description,
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		input.Date = date
	}
	expense, balance, err := h.service.CreateExpense(r.Context(), userID, input)
	if err != nil {
		h.respondLedgerError(w, err, "expense_create_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"expense": expensePayload(expense),
		"balance": money.FormatMinor(balance),
	})
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	category := query.Get("category")
	if category != "" && !models.ValidCategory(category) {
		respondError(w, http.StatusBadRequest, "invalid_category")
		return
	}
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	from, to := monthYearRange(query.Get("month"), query.Get("year"))
	filter := store.ExpenseFilter{
		UserID:   userID,
		Category: category,
		From:     from,
		To:       to,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
	total, err := h.expenses.Count(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load expenses")
		return
	}
	expenses, err := h.expenses.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load expenses")
		return
	}
	items := make([]map[string]any, 0, len(expenses))
	for _, expense := range expenses {
		items = append(items, expensePayload(expense))
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	respondJSON(w, http.StatusOK, map[string]any{
		"expenses":    items,
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": totalPages,
		"has_next":    page < totalPages,
		"has_prev":    page > 1,
	})
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	expenseID := chi.URLParam(r, "id")
	expense, err := h.expenses.GetByIDAndUser(r.Context(), expenseID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "expense not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load expense")
		return
	}
	respondJSON(w, http.StatusOK, expensePayload(expense))
}

type updateExpenseRequest struct {
	Title       *string `json:"title"`
	Amount      *string `json:"amount"`
	Category    *string `json:"category"`
	Date        *string `json:"date"`
	Description *string `json:"description"`
}

func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	expenseID := chi.URLParam(r, "id")
	var req updateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	patch := services.ExpensePatch{
		Title:       req.Title,
		Category:    req.Category,
		Description: req.Description,
	}
	if req.Amount != nil {
		amountMinor, err := parseAmountMinor(*req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		patch.AmountMinor = &amountMinor
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		patch.Date = &date
	}
	expense, err := h.service.UpdateExpense(r.Context(), userID, expenseID, patch)
	if err != nil {
		h.respondLedgerError(w, err, "expense_update_failed")
		return
	}
	respondJSON(w, http.StatusOK, expensePayload(expense))
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	expenseID := chi.URLParam(r, "id")
	refunded, err := h.service.DeleteExpense(r.Context(), userID, expenseID)
	if err != nil {
		h.respondLedgerError(w, err, "expense_delete_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"refunded": money.FormatMinor(refunded),
	})
}

func (h *Handler) ExpenseStatsSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	from, to := monthYearRange(query.Get("month"), query.Get("year"))
	stats, err := h.expenses.StatsByCategory(r.Context(), userID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	var totalMinor int64
	for _, stat := range stats {
		totalMinor += stat.Total
	}
	total := decimal.NewFromInt(totalMinor)
	categories := make([]map[string]any, 0, len(stats))
	for _, stat := range stats {
		percentage := "0.0"
		if totalMinor > 0 {
			percentage = decimal.NewFromInt(stat.Total).
				Div(total).
				Mul(decimal.NewFromInt(100)).
				StringFixed(1)
		}
		categories = append(categories, map[string]any{
			"category":   stat.Category,
			"total":      money.FormatMinor(stat.Total),
			"count":      stat.Count,
			"percentage": percentage,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":      money.FormatMinor(totalMinor),
		"categories": categories,
	})
}

func (h *Handler) ExpenseStatsMonthly(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	year := parseInt(r.URL.Query().Get("year"), time.Now().Year())
	stats, err := h.expenses.StatsByMonth(r.Context(), userID, year)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	byMonth := make(map[int]store.MonthlyStat, len(stats))
	var yearTotal int64
	for _, stat := range stats {
		byMonth[stat.Month] = stat
		yearTotal += stat.Total
	}
	// Every month appears in the response, zero-filled when nothing was
	// spent.
	months := make([]map[string]any, 0, 12)
	for month := 1; month <= 12; month++ {
		stat := byMonth[month]
		months = append(months, map[string]any{
			"month": month,
			"total": money.FormatMinor(stat.Total),
			"count": stat.Count,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"year":   year,
		"total":  money.FormatMinor(yearTotal),
		"months": months,
	})
}
