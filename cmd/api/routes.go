package main

import (
	"database/sql"
	"net/http"

	"github.com/josh-kwaku/valorpoint/docs"
	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/config"
	"github.com/josh-kwaku/valorpoint/internal/handler"
	"github.com/josh-kwaku/valorpoint/internal/middleware"
	"github.com/josh-kwaku/valorpoint/internal/repository"
	"github.com/josh-kwaku/valorpoint/internal/service"
	"github.com/josh-kwaku/valorpoint/internal/service/account"
	"github.com/josh-kwaku/valorpoint/internal/service/ledger"
)

type app struct {
	cfg *config.Config

	eventRepo  *repository.AccountEventRepository
	replayRepo *repository.ReplayRepository

	auth     *handler.AuthHandler
	me       *handler.MeHandler
	referral *handler.ReferralHandler
	admin    *handler.AdminHandler
	health   *handler.HealthHandler
	limiter  *middleware.RateLimiter
}

func newApp(cfg *config.Config, db *sql.DB) *app {
	accountRepo := repository.NewAccountRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	eventRepo := repository.NewAccountEventRepository(db)
	replayRepo := repository.NewReplayRepository(db)

	gate := auth.NewGate(accountRepo)
	accounts := account.NewService(accountRepo, referralRepo, eventRepo, gate, db, cfg)
	balances := ledger.NewService(accountRepo, ledgerRepo, eventRepo, gate, db, cfg)
	referrals := service.NewReferralIndex(accountRepo, referralRepo)
	reconciler := service.NewReconciler(accountRepo, referralRepo, ledgerRepo, gate)

	return &app{
		cfg:        cfg,
		eventRepo:  eventRepo,
		replayRepo: replayRepo,
		auth:       handler.NewAuthHandler(accounts, cfg.JWTSecret, cfg.JWTExpiry),
		me:         handler.NewMeHandler(accounts, referrals, cfg.AppBaseURL),
		referral:   handler.NewReferralHandler(referrals),
		admin:      handler.NewAdminHandler(accounts, balances, referrals, reconciler),
		health:     handler.NewHealthHandler(db),
		limiter:    middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.health.Liveness)
	mux.HandleFunc("GET /health/ready", a.health.Readiness)
	const specPath = "/docs/openapi.yaml"
	mux.HandleFunc("GET /docs", handler.ServeDocs(specPath))
	mux.HandleFunc("GET "+specPath, handler.ServeSpec(docs.OpenAPI))

	limited := func(h http.HandlerFunc) http.Handler {
		return a.limiter.Middleware(h)
	}
	mux.Handle("POST /api/v1/auth/register", limited(a.auth.Register))
	mux.Handle("POST /api/v1/auth/login", limited(a.auth.Login))
	mux.Handle("GET /api/v1/referrals/{code}", limited(a.referral.Preview))

	authed := middleware.Auth(a.cfg.JWTSecret)
	self := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, authed)
	}
	mux.Handle("GET /api/v1/me", self(a.me.Get))
	mux.Handle("PATCH /api/v1/me", self(a.me.Update))
	mux.Handle("GET /api/v1/me/referrals", self(a.me.Referrals))

	adminRead := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, authed, middleware.RequireAdmin)
	}
	adminWrite := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, authed, middleware.RequireAdmin, middleware.Idempotency(a.replayRepo))
	}
	mux.Handle("GET /api/v1/admin/accounts", adminRead(a.admin.List))
	mux.Handle("GET /api/v1/admin/accounts/{id}", adminRead(a.admin.Get))
	mux.Handle("GET /api/v1/admin/accounts/{id}/ledger", adminRead(a.admin.Ledger))
	mux.Handle("GET /api/v1/admin/accounts/{id}/integrity", adminRead(a.admin.Integrity))
	mux.Handle("POST /api/v1/admin/accounts/{id}/balance", adminWrite(a.admin.AdjustBalance))
	mux.Handle("POST /api/v1/admin/accounts/{id}/activation", adminWrite(a.admin.SetActivation))
	mux.Handle("DELETE /api/v1/admin/accounts/{id}", adminWrite(a.admin.Delete))

	return middleware.Chain(mux, middleware.RequestID, middleware.Logging, middleware.Recovery)
}
