package httpserver

import (
	"net/http"
	"os"
	"path/filepath"

	"tradesim/internal/admin"
	"tradesim/internal/auth"
	"tradesim/internal/dashboard"
	"tradesim/internal/funding"
	"tradesim/internal/health"
	"tradesim/internal/ledger"
	"tradesim/internal/loans"
	"tradesim/internal/marketdata"
	"tradesim/internal/metrics"
	"tradesim/internal/orders"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterDeps struct {
	AuthHandler      *auth.Handler
	AuthService      Authenticator
	LedgerHandler    *ledger.Handler
	FundingHandler   *funding.Handler
	OrderHandler     *orders.Handler
	LoanHandler      *loans.Handler
	MarketHandler    *marketdata.Handler
	DashboardHandler *dashboard.Handler
	AdminHandler     *admin.Handler
	AdminTokens      *admin.Tokens
	AdminDirectory   admin.Directory
	HealthHandler    *health.Handler
	WSHandler        http.Handler
	AdminWSHandler   http.Handler
	Metrics          *metrics.Metrics
	RateLimiter      *RateLimiter
	Logger           *zap.Logger
	AllowedOrigin    string
	UIDist           string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Instrument)
	}
	r.Use(CORS(d.AllowedOrigin))
	r.Use(SecurityHeaders)

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
			r.Post("/logout", d.AuthHandler.Logout)
		})
		r.Get("/ws", d.WSHandler.ServeHTTP)
		r.Get("/payment-methods", d.FundingHandler.Methods)
		r.Route("/market", func(r chi.Router) {
			r.Get("/instruments", d.MarketHandler.Instruments)
			r.Get("/quotes", d.MarketHandler.Quotes)
			r.Get("/quotes/{symbol}", d.MarketHandler.Quote)
		})

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", withUser(d.AuthHandler.Me))
			r.Get("/balances", withUser(d.LedgerHandler.Balances))
			r.Get("/dashboard", withUser(d.DashboardHandler.Get))

			r.Post("/deposits", withUser(d.FundingHandler.RequestDeposit))
			r.Get("/deposits", withUser(d.FundingHandler.ListDeposits))
			r.Post("/withdrawals", withUser(d.FundingHandler.RequestWithdrawal))
			r.Get("/withdrawals", withUser(d.FundingHandler.ListWithdrawals))

			r.Post("/orders", withUser(d.OrderHandler.Place))
			r.Get("/orders", withUser(d.OrderHandler.List))
			r.Get("/orders/{id}", withUser(d.OrderHandler.Get))
			r.Delete("/orders/{id}", withUser(d.OrderHandler.Cancel))
			r.Post("/orders/{id}/close", withUser(d.OrderHandler.RequestClose))

			r.Post("/loans", withUser(d.LoanHandler.Request))
			r.Get("/loans", withUser(d.LoanHandler.List))
			r.Post("/loans/{id}/repay", withUser(d.LoanHandler.Repay))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", d.AdminHandler.Login)
			r.Get("/ws", d.AdminWSHandler.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(admin.AdminAuthMiddleware(d.AdminTokens, d.AdminDirectory))
				r.Get("/me", d.AdminHandler.Me)
				r.Get("/overview", d.AdminHandler.Overview)
				r.Get("/system", d.HealthHandler.Full)
				r.Get("/ledger/verify", d.LedgerHandler.VerifyChain)

				r.Group(func(r chi.Router) {
					r.Use(admin.RequireRight(admin.RightUsers))
					r.Get("/users", d.AdminHandler.Users)
					r.Get("/users/{id}", d.AdminHandler.User)
					r.Post("/users/{id}/block", d.AdminHandler.Block)
					r.Post("/users/{id}/unblock", d.AdminHandler.Unblock)
				})

				r.Group(func(r chi.Router) {
					r.Use(admin.RequireRight(admin.RightFunding))
					r.Get("/deposits", d.FundingHandler.AdminListDeposits)
					r.Post("/deposits/{id}/approve", d.FundingHandler.DecideDeposit(true, admin.Name))
					r.Post("/deposits/{id}/reject", d.FundingHandler.DecideDeposit(false, admin.Name))
					r.Get("/withdrawals", d.FundingHandler.AdminListWithdrawals)
					r.Post("/withdrawals/{id}/approve", d.FundingHandler.DecideWithdrawal(true, admin.Name))
					r.Post("/withdrawals/{id}/reject", d.FundingHandler.DecideWithdrawal(false, admin.Name))
				})

				r.Group(func(r chi.Router) {
					r.Use(admin.RequireRight(admin.RightOrders))
					r.Get("/orders", d.OrderHandler.AdminList)
					r.Post("/orders/{id}/approve", d.OrderHandler.ApproveOpen)
					r.Post("/orders/{id}/reject", d.OrderHandler.RejectOpen)
					r.Post("/orders/{id}/close/approve", d.OrderHandler.ApproveClose)
					r.Post("/orders/{id}/close/reject", d.OrderHandler.RejectClose)
					r.Get("/instruments", d.MarketHandler.AdminInstruments)
					r.Post("/instruments/{symbol}", d.MarketHandler.AdminUpdateInstrument)
				})

				r.Group(func(r chi.Router) {
					r.Use(admin.RequireRight(admin.RightLoans))
					r.Get("/loans", d.LoanHandler.AdminList)
					r.Post("/loans/{id}/approve", d.LoanHandler.Decide(true, admin.Name))
					r.Post("/loans/{id}/reject", d.LoanHandler.Decide(false, admin.Name))
				})

				r.Get("/panel-admins", d.AdminHandler.GetPanelAdmins)
				r.Post("/panel-admins", d.AdminHandler.CreatePanelAdmin)
				r.Put("/panel-admins/{id}", d.AdminHandler.UpdatePanelAdmin)
				r.Delete("/panel-admins/{id}", d.AdminHandler.DeletePanelAdmin)
			})
		})
	})
	if d.UIDist != "" {
		r.NotFound(spaHandler(d.UIDist).ServeHTTP)
	}
	return r
}

func spaHandler(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index.html"
		}
		full := filepath.Join(dir, filepath.Clean("/"+path))
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			http.ServeFile(w, r, full)
			return
		}
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	})
}
