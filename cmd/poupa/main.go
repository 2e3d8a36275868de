package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"poupa/internal/ai"
	"poupa/internal/amqp"
	"poupa/internal/auth"
	"poupa/internal/backend"
	"poupa/internal/cache"
	"poupa/internal/chat"
	"poupa/internal/cli"
	"poupa/internal/core"
	apphttp "poupa/internal/http"
	applog "poupa/internal/log"
	"poupa/internal/middleware/ratelimit"
	"poupa/internal/ports"
	"poupa/internal/services"

	"github.com/redis/go-redis/v9"
)

const dashboardCacheSize = 500

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	loc := cfg.Location()

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-process cache", applog.FieldError, err)
			rdb = nil
		} else {
			logger.Info("Redis connected")
		}
	}

	cacheManager := cache.NewManager()
	var (
		txCache cache.Cache[[]core.Transaction]
		gens    cache.Generations
		limiter ratelimit.Allower
	)
	if rdb != nil {
		if cfg.CacheTTL > 0 {
			txCache = cache.NewRedisCache[[]core.Transaction](rdb, "poupa:dashboard:", cfg.CacheTTL)
		}
		gens = cache.NewRedisGenerations(rdb, "poupa:")
		limiter = ratelimit.NewRedisLimiter(rdb, "poupa:", ratelimit.DefaultConfig())
	} else if cfg.CacheTTL > 0 {
		lru := cache.NewLRUCache[[]core.Transaction](dashboardCacheSize, cfg.CacheTTL)
		cacheManager.Register(lru)
		cacheManager.StartCleanup(time.Minute)
		txCache = lru
	}

	var (
		publisher  ports.EventPublisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, exports and async reports disabled", applog.FieldError, err)
		} else {
			publisher = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled, transactions will not be exported")
	}

	var generator ports.TextGenerator
	if cfg.AIAPIKey != "" {
		generator = ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout)
	} else {
		logger.Warn("AI_API_KEY not set, report generation disabled")
	}

	txSvc := services.NewTransactionService(store.Store, publisher, logger)
	dashSvc := services.NewDashboardService(store.Store, txCache, gens)
	txSvc.OnChange(dashSvc.Invalidate)
	reportSvc := services.NewReportService(store.Store, generator, publisher)
	chatSvc := services.NewChatService(store.Users, txSvc, dashSvc, reportSvc, loc)

	var telegram ports.Notifier
	if cfg.TelegramBotToken != "" {
		bot, err := chat.NewTelegramNotifier(cfg.TelegramBotToken)
		if err != nil {
			logger.Warn("Telegram bot unavailable, replying inline", applog.FieldError, err)
		} else {
			telegram = bot
		}
	}

	var verifier *auth.Verifier
	if cfg.AuthJWTSecret != "" {
		verifier = auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, /api routes will answer 503")
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		Location:     loc,
		Logger:       logger,
		Verifier:     verifier,
		WebhookToken: cfg.WebhookToken,
		Limiter:      limiter,
		TrustProxy:   cfg.TrustProxy,
	}, apphttp.Deps{
		Transactions: txSvc,
		Dashboard:    dashSvc,
		Reports:      reportSvc,
		Chat:         chatSvc,
		Telegram:     telegram,
		Ready:        readinessChecks(store, rdb),
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", applog.FieldError, err)
			}
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close backend", applog.FieldError, err)
		}
	})

	logger.Info("Starting poupa server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

func readinessChecks(store *backend.BackendResult, rdb *redis.Client) []apphttp.ReadinessCheck {
	var checks []apphttp.ReadinessCheck
	if store.SQLite != nil {
		checks = append(checks, apphttp.ReadinessCheck{Name: "sqlite", Check: store.SQLite.Ping})
	}
	if rdb != nil {
		checks = append(checks, apphttp.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}
