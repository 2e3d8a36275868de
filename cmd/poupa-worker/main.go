package main

import (
	"context"
	"errors"
	"os"
	"time"

	"poupa/internal/ai"
	"poupa/internal/amqp"
	"poupa/internal/cache"
	"poupa/internal/chat"
	"poupa/internal/cli"
	applog "poupa/internal/log"
	"poupa/internal/ports"
	"poupa/internal/services"
	gsheet "poupa/internal/sheets/google"
	"poupa/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting poupa-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	loc := cfg.Location()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var exporter ports.Exporter
	if cfg.ExportEnabled() {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	var generator ports.TextGenerator
	if cfg.AIAPIKey != "" {
		generator = ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout)
	}

	notifiers := make(map[string]ports.Notifier)
	if cfg.TwilioAccountSID != "" {
		notifiers[ports.ChannelWhatsApp] = chat.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom)
	}
	if cfg.TelegramBotToken != "" {
		bot, err := chat.NewTelegramNotifier(cfg.TelegramBotToken)
		if err != nil {
			logger.Warn("Telegram bot unavailable, Telegram reports will be dropped", applog.FieldError, err)
		} else {
			notifiers[ports.ChannelTelegram] = bot
		}
	}

	var locker cache.Locker = cache.NewLocalLocker()
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, export sweep lock is process-local", applog.FieldError, err)
		} else {
			defer rdb.Close()
			locker = cache.NewRedisLocker(rdb)
		}
	}

	w := worker.New(worker.Options{
		Store:     repo,
		Exporter:  exporter,
		Reports:   services.NewReportService(repo, generator, nil),
		Notifiers: notifiers,
		Locker:    locker,
		Location:  loc,
		BatchSize: cfg.SyncBatchSize,
		Logger:    logger,
	})

	logger.Info("Performing startup sync check...")
	if err := w.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - relying on the periodic export sweep")
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		stop()
	})

	g, gctx := errgroup.WithContext(shutdownCtx)
	if amqpClient != nil {
		g.Go(func() error {
			defer amqpClient.Close()
			err := amqpClient.ConsumeMessages(gctx, w.HandleTransactionEvent, w.HandleReportRequest)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		return worker.NewSweeper(w, cfg.SyncInterval).Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		stop()
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker shutdown complete")
}
