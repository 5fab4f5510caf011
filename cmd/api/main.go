package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradesim/internal/admin"
	"tradesim/internal/auth"
	"tradesim/internal/config"
	"tradesim/internal/dashboard"
	"tradesim/internal/db"
	"tradesim/internal/events"
	"tradesim/internal/funding"
	"tradesim/internal/health"
	"tradesim/internal/httpserver"
	"tradesim/internal/jobs"
	"tradesim/internal/ledger"
	"tradesim/internal/loans"
	"tradesim/internal/logging"
	"tradesim/internal/marketdata"
	"tradesim/internal/metrics"
	"tradesim/internal/orders"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.AppMode, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	startedAt := time.Now()
	if cfg.UIDist != "" {
		if _, err := os.Stat(cfg.UIDist); err != nil {
			return err
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.DBDSN); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := metrics.New()
	bus := events.NewBus()

	var publisher events.Publisher = events.NewDisabledPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		publisher = kp
		logger.Info("kafka event log enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	notifier := events.NewNotifier(bus, publisher, logger.Named("events"))
	defer func() { _ = notifier.Close() }()

	var cache marketdata.Cache = marketdata.NewMemoryCache()
	if cfg.RedisAddr != "" {
		client := marketdata.NewRedisClient(cfg.RedisAddr)
		defer func() { _ = client.Close() }()
		rc := marketdata.NewRedisCache(client, marketdata.MaxQuoteAge(cfg.PricePollInterval))
		if err := rc.Ping(ctx); err != nil {
			return err
		}
		cache = rc
		logger.Info("redis quote cache enabled", zap.String("addr", cfg.RedisAddr))
	}
	var provider marketdata.Provider = marketdata.NewSimulatedProvider(time.Now().UnixNano())
	if cfg.PriceFeed == "binance" {
		provider = marketdata.NewBinanceProvider(cfg.BinanceURL, provider)
	}

	market := marketdata.NewStore(pool)
	if err := market.Seed(ctx, cfg.Symbols); err != nil {
		return err
	}
	symbols := cfg.Symbols
	if active, err := market.List(ctx, true); err == nil && len(active) > 0 {
		symbols = symbols[:0:0]
		for _, inst := range active {
			symbols = append(symbols, inst.Symbol)
		}
	}
	poller := marketdata.NewPoller(provider, cache, bus, m, logger.Named("market"), symbols, cfg.PricePollInterval)

	ledgerSvc := ledger.NewService(pool)
	authSvc := auth.NewService(pool, ledgerSvc, logger.Named("auth"), cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	fundingSvc := funding.NewService(pool, ledgerSvc, notifier, m, logger.Named("funding"), cfg.DepositMaxAmount)
	orderSvc := orders.NewService(pool, orders.NewStore(pool), ledgerSvc, poller, market, notifier, m, logger.Named("orders"))
	loanSvc := loans.NewService(pool, ledgerSvc, notifier, m, logger.Named("loans"), cfg.LoanDailyRate, cfg.LoanMaxAmount)
	dashSvc := dashboard.NewService(ledgerSvc, fundingSvc, orderSvc, loanSvc)

	adminStore := admin.NewStore(pool)
	if cfg.OwnerUsername != "" {
		created, err := adminStore.EnsureOwner(ctx, cfg.OwnerUsername, cfg.OwnerPassword)
		if err != nil {
			return err
		}
		if created {
			logger.Info("owner account created", zap.String("username", cfg.OwnerUsername))
		}
	}
	adminTokens := admin.NewTokens(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)

	limiter := httpserver.NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	scheduler := jobs.NewScheduler(m, logger.Named("jobs"), 5*time.Minute)
	if err := scheduler.Add("loan_interest", cfg.InterestSchedule, func(ctx context.Context) error {
		n, err := loanSvc.AccrueInterest(ctx)
		if n > 0 {
			logger.Info("loan interest accrued", zap.Int("loans", n))
		}
		return err
	}); err != nil {
		return err
	}
	if err := scheduler.Add("rate_limit_prune", "@every 1m", func(context.Context) error {
		limiter.Prune(3 * time.Minute)
		return nil
	}); err != nil {
		return err
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:      auth.NewHandler(authSvc, cfg.Production()),
		AuthService:      authSvc,
		LedgerHandler:    ledger.NewHandler(ledgerSvc),
		FundingHandler:   funding.NewHandler(fundingSvc),
		OrderHandler:     orders.NewHandler(orderSvc),
		LoanHandler:      loans.NewHandler(loanSvc),
		MarketHandler:    marketdata.NewHandler(market, poller),
		DashboardHandler: dashboard.NewHandler(dashSvc),
		AdminHandler:     admin.NewHandler(adminStore, adminTokens, dashSvc, logger.Named("admin")),
		AdminTokens:      adminTokens,
		AdminDirectory:   adminStore,
		HealthHandler:    health.NewHandler(pool, pool, startedAt, cfg.HTTPAddr, cfg.AppMode),
		WSHandler:        httpserver.NewWSHandler(bus, authSvc, logger.Named("ws"), cfg.WebSocketOrigin),
		AdminWSHandler:   httpserver.NewAdminWSHandler(bus, adminTokens, adminStore, logger.Named("ws"), cfg.WebSocketOrigin),
		Metrics:          m,
		RateLimiter:      limiter,
		Logger:           logger.Named("http"),
		AllowedOrigin:    cfg.WebSocketOrigin,
		UIDist:           cfg.UIDist,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go poller.Run(ctx)
	scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("mode", cfg.AppMode), zap.String("price_feed", provider.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	return nil
}
