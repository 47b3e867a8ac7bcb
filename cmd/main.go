package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mstgnz/paysettle/handler"
	"github.com/mstgnz/paysettle/infra/config"
	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/mstgnz/paysettle/infra/middle"
	"github.com/mstgnz/paysettle/infra/opensearch"
	"github.com/mstgnz/paysettle/infra/orders"
	"github.com/mstgnz/paysettle/infra/scheduler"
	"github.com/mstgnz/paysettle/infra/storage"
	"github.com/mstgnz/paysettle/infra/validate"
	"github.com/mstgnz/paysettle/provider"
	"github.com/mstgnz/paysettle/provider/safetypay"
	"github.com/mstgnz/paysettle/router"
)

func main() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Load Env Error: %v", err)
	}

	if err := run(); err != nil {
		logger.Fatal("paysettle stopped", err)
	}
}

func run() error {
	cfg := config.GetAppConfig()

	// OpenSearch backs both the audit trail and log shipping
	var (
		osClient *opensearch.Client
		osLogger *opensearch.Logger
		audit    provider.AuditLogger = provider.NopAuditLogger{}
		searcher handler.AuditSearcher
		search   handler.Pinger
		sink     logger.EventSink
	)
	if cfg.EnableLogging {
		client, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			osClient = client
			osLogger = opensearch.NewLogger(client)
			audit, searcher, search, sink = osLogger, osLogger, osClient, osLogger
		}
	}
	logger.InitGlobalLogger(sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open notification store: %w", err)
	}
	defer store.Close()

	orderClient := orders.NewClient(orders.Config{
		BaseURL: cfg.OrderServiceURL,
		Token:   cfg.OrderServiceToken,
		Timeout: cfg.OrderTimeout,
	})

	settings, err := config.LoadSettings(config.GetEnv("SAFETYPAY_SETTINGS_FILE", ""))
	if err != nil {
		return err
	}

	locks := provider.NewKeyedMutex()
	pm, err := provider.CreateMethod(safetypay.SystemName, provider.Dependencies{
		Store:  store,
		Orders: orderClient,
		Audit:  audit,
		Locks:  locks,
	}, settings.ToMap())
	if err != nil {
		return fmt.Errorf("create payment method: %w", err)
	}
	method, ok := pm.(*safetypay.Method)
	if !ok {
		return fmt.Errorf("unexpected payment method type %T", pm)
	}

	sched, err := scheduler.New[*safetypay.ReconcileReport]("safetypay-reconcile", settings.SyncPeriod, method.Reconciler())
	if err != nil {
		return err
	}
	go sched.Run(ctx)

	rateLimiter := middle.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	defer rateLimiter.Stop()

	h := router.New(router.Handlers{
		Notification: handler.NewNotificationHandler(store, locks, audit, settings.SignatureKey),
		Admin:        handler.NewAdminHandler(store, method, orderClient, sched, searcher, validate.New()),
		Health:       handler.NewHealthHandler(store, orderClient, search, sched),
	}, router.Options{
		APIKey:                  cfg.APIKey,
		NotificationIPWhitelist: cfg.NotificationIPWhitelist,
		AllowedOrigins:          cfg.AllowedOrigins,
		RateLimiter:             rateLimiter,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	logger.Info(fmt.Sprintf("API is running on %s (sync every %s, store %s, opensearch %t)",
		cfg.Port, settings.SyncPeriod, cfg.StorageDriver, osClient != nil))

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
