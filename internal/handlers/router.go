package handlers

import (
	"net/http"

	"solde/internal/config"
	"solde/internal/db"
	"solde/internal/middleware"
	"solde/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner db.TxRunner
	cfg      config.Config
	users    UserStore
	expenses ExpenseReader
	audit    AuditStore
	service  LedgerService
	hub      *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, expenses ExpenseReader, audit AuditStore, service LedgerService, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner: txRunner,
		cfg:      cfg,
		users:    users,
		expenses: expenses,
		audit:    audit,
		service:  service,
		hub:      hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.Route("/balance", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/", h.GetBalance)
		r.Post("/deposit", h.Deposit)
		r.Post("/withdraw", h.Withdraw)
		r.Get("/history", h.History)
		r.Get("/history/export", h.ExportHistory)
		r.Get("/self-check", h.SelfCheck)
	})
	router.Route("/expenses", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/", h.CreateExpense)
		r.Get("/", h.ListExpenses)
		r.Get("/stats/summary", h.ExpenseStatsSummary)
		r.Get("/stats/monthly", h.ExpenseStatsMonthly)
		r.Get("/{id}", h.GetExpense)
		r.Put("/{id}", h.UpdateExpense)
		r.Delete("/{id}", h.DeleteExpense)
	})
	router.Get("/ws/balance", h.WSBalance)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
