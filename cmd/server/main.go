package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"certify/internal/documents"
	"certify/internal/documents/codec"
	"certify/internal/documents/contentstore"
	documentshandler "certify/internal/documents/handler"
	httpapi "certify/internal/http"
	jwttoken "certify/internal/jwt_token"
	"certify/internal/ledger"
	"certify/internal/ledger/memory"
	"certify/internal/ledger/postgres"
	"certify/internal/ledger/sqlite"
	"certify/internal/platform/config"
	"certify/internal/platform/httpserver"
	"certify/internal/platform/kafka"
	"certify/internal/platform/logger"
	"certify/internal/platform/metrics"
	"certify/internal/platform/middleware"
	"certify/internal/platform/redis"
	registryhandler "certify/internal/registry/handler"
	registrymetrics "certify/internal/registry/metrics"
	"certify/internal/registry/models"
	"certify/internal/registry/service"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit/worker"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		slog.Error("certify exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	mode, err := models.ParseAdmissionMode(cfg.AdmissionMode)
	if err != nil {
		return err
	}
	svc := service.New(l,
		service.WithLogger(log),
		service.WithMetrics(registrymetrics.New()),
		service.WithAdmissionMode(mode),
	)
	if cfg.AuthorityAddress != "" {
		addr, err := domain.ParseAddress(cfg.AuthorityAddress)
		if err != nil {
			return fmt.Errorf("AUTHORITY_ADDRESS: %w", err)
		}
		if _, err := svc.Bootstrap(ctx, addr); err != nil {
			return fmt.Errorf("bootstrap authority: %w", err)
		}
	}

	docs, err := newDocuments(cfg, rdb, log)
	if err != nil {
		return err
	}

	jwt := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	requireAuth := middleware.RequireAuth(jwttoken.NewJWTServiceAdapter(jwt), log)

	checks := map[string]httpapi.HealthCheck{
		"ledger": func(ctx context.Context) error {
			_, err := svc.Authority(ctx)
			if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
				return err
			}
			return nil
		},
	}
	if rdb != nil {
		checks["redis"] = rdb.Health
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.RequestTimeout,
		Checks:         checks,
	},
		registryhandler.New(svc, log, requireAuth),
		documentshandler.New(docs, log, requireAuth),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certify", "addr", cfg.Addr, "ledger", cfg.LedgerBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if cfg.RelayEnabled() {
		producer, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx); err != nil {
			log.Warn("audit topic not provisioned", "topic", cfg.KafkaAuditTopic, "error", err)
		}

		var cursor worker.CursorStore = worker.NewMemoryCursor()
		if rdb != nil {
			cursor = worker.NewRedisCursor(rdb.Client, "")
		}
		relay := worker.New(ledger.Feed{Ledger: l}, producer, cursor,
			worker.WithLogger(log),
			worker.WithInterval(cfg.RelayInterval),
			worker.WithBatchSize(cfg.RelayBatchSize),
		)
		g.Go(func() error { return relay.Run(gctx) })
	}

	return g.Wait()
}

func openLedger(ctx context.Context, cfg config.Server) (ledger.Ledger, func(), error) {
	switch cfg.LedgerBackend {
	case config.LedgerSQLite:
		l, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.TxTimeout)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil
	case config.LedgerPostgres:
		l, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.TxTimeout)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil
	default:
		return memory.New(memory.WithTimeout(cfg.TxTimeout)), func() {}, nil
	}
}

func newDocuments(cfg config.Server, rdb *redis.Client, log *slog.Logger) (*documents.Service, error) {
	key, err := codec.DeriveKey(cfg.DocumentKey)
	if err != nil {
		return nil, fmt.Errorf("DOCUMENT_KEY: %w", err)
	}
	var store documents.ContentStore = contentstore.NewInMemory()
	if cfg.ContentStore == config.ContentRedis {
		store = contentstore.NewRedis(rdb.Client)
	}
	return documents.New(codec.New(), store, key, documents.WithLogger(log))
}
