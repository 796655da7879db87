package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/goyalvivek7/salesh-auto/internal/cache"
	"github.com/goyalvivek7/salesh-auto/internal/campaign"
	"github.com/goyalvivek7/salesh-auto/internal/config"
	"github.com/goyalvivek7/salesh-auto/internal/content"
	"github.com/goyalvivek7/salesh-auto/internal/enrich"
	"github.com/goyalvivek7/salesh-auto/internal/httpserver"
	"github.com/goyalvivek7/salesh-auto/internal/logging"
	"github.com/goyalvivek7/salesh-auto/internal/mailbox"
	"github.com/goyalvivek7/salesh-auto/internal/metrics"
	"github.com/goyalvivek7/salesh-auto/internal/outreach"
	"github.com/goyalvivek7/salesh-auto/internal/scheduler"
	"github.com/goyalvivek7/salesh-auto/internal/store"
	"github.com/goyalvivek7/salesh-auto/internal/transport"
	"github.com/goyalvivek7/salesh-auto/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.AppEnv)
	logger.Info("starting salesh-auto", "env", cfg.AppEnv)

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL != "" {
		logger.Info("public base url configured",
			"base_url", baseURL,
			"webhook_url", baseURL+"/webhook/whatsapp")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	st, err := store.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	emailTransport := transport.NewEmail(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail, logger)

	waClient, err := transport.NewWhatsApp(ctx, transport.WhatsAppConfig{
		StorePath: cfg.WhatsAppStorePath,
		LogLevel:  cfg.WhatsAppLogLevel,
	}, logger)
	if err != nil {
		return fmt.Errorf("init whatsapp client: %w", err)
	}
	defer waClient.Close()

	generator := content.NewGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, content.SenderProfile{
		Name:        cfg.SenderName,
		Company:     cfg.SenderCompany,
		Email:       cfg.FromEmail,
		Description: cfg.CompanyDescription,
	}, logger, metricRegistry)

	var searchClient *enrich.SearchClient
	if cfg.GoogleSearchEnabled {
		searchClient = enrich.NewSearchClient(enrich.SearchConfig{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleSearchEngineID,
			Timeout:        30 * time.Second,
		}, logger, metricRegistry, redisClient)
	}
	enricher := enrich.NewEnricher(cfg.OpenAIAPIKey, cfg.OpenAIModel, searchClient, st, logger, metricRegistry)

	verifier := outreach.NewVerifier("IN", waClient)
	sequencer := outreach.NewSequencer(generator, verifier, logger)
	runner := campaign.NewRunner(st, enricher, sequencer, cfg.BusinessTimezone, logger)

	oracle := outreach.NewOracle(st)
	driver := outreach.NewDriver(st, oracle, map[store.Channel]outreach.Transport{
		store.ChannelEmail:    emailTransport,
		store.ChannelWhatsApp: waClient,
	}, cfg.SendBatchSize, baseURL, logger, metricRegistry)

	var llm outreach.LLMClassifier
	if intentLLM := content.NewIntentClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel, metricRegistry); intentLLM != nil {
		llm = intentLLM
	}
	classifier := outreach.NewClassifier(llm)
	ingestor := outreach.NewIngestor(st, classifier, logger, metricRegistry)
	lifecycle := outreach.NewLifecycle(st, runner, cfg.BusinessTimezone, logger, metricRegistry)

	waClient.SetReplyHandler(func(ctx context.Context, fromPhone, text string) {
		_, err := ingestor.HandleReply(ctx, outreach.InboundReply{
			Channel: store.ChannelWhatsApp,
			From:    fromPhone,
			Content: text,
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Error("handle whatsapp reply", "from", fromPhone, "error", err)
		}
	})
	waClient.SetReceiptHandler(func(ctx context.Context, providerMessageID string, read bool) {
		status := store.StatusDelivered
		if read {
			status = store.StatusRead
		}
		if err := st.UpdateDeliveryStatus(ctx, providerMessageID, status); err != nil {
			logger.Debug("update delivery status", "provider_message_id", providerMessageID, "error", err)
		}
	})

	waCtx, waCancel := context.WithCancel(ctx)
	defer waCancel()
	go func() {
		if err := waClient.Start(waCtx); err != nil {
			logger.Error("whatsapp client stopped", "error", err)
			stop()
		}
	}()

	poller := mailbox.NewPoller(cfg.IMAPAddr, cfg.IMAPUsername, cfg.IMAPPassword, logger)

	jobs := scheduler.New(ctx, logger, metricRegistry)
	if err := jobs.AddJob("automation", cfg.AutomationInterval, lifecycle.RunDue); err != nil {
		return err
	}
	if err := jobs.AddJob("delivery", cfg.DeliveryInterval, func(ctx context.Context) error {
		_, err := driver.RunCycle(ctx)
		return err
	}); err != nil {
		return err
	}
	if poller.Configured() {
		if err := jobs.AddJob("reply-poll", cfg.ReplyPollInterval, func(ctx context.Context) error {
			replies, err := poller.FetchUnseen(ctx)
			if err != nil {
				return err
			}
			for _, reply := range replies {
				_, err := ingestor.HandleReply(ctx, outreach.InboundReply{
					Channel: store.ChannelEmail,
					From:    reply.From,
					Subject: reply.Subject,
					Content: reply.Content,
				})
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					logger.Warn("handle email reply", "from", reply.From, "error", err)
				}
			}
			return nil
		}); err != nil {
			return err
		}
	} else {
		logger.Info("mailbox poller disabled, IMAP not configured")
	}
	jobs.Start()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Ingest: ingestor,
		Store:  st,
		Dedup:  redisClient,
	}, "")

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	<-jobs.Stop().Done()

	return nil
}
