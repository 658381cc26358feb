package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/care-coordination/internal/config"
	"github.com/example/care-coordination/internal/geo"
	httpapi "github.com/example/care-coordination/internal/http"
	"github.com/example/care-coordination/internal/ingest"
	"github.com/example/care-coordination/internal/logging"
	"github.com/example/care-coordination/internal/notify"
	"github.com/example/care-coordination/internal/payments"
	"github.com/example/care-coordination/internal/pipeline"
	"github.com/example/care-coordination/internal/search"
	"github.com/example/care-coordination/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	var (
		requests storage.RequestStore
		auth     storage.AuthoritativeStore
		recs     storage.RecommendationStore
	)
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, logger)
		}
		requests, auth, recs = pg, pg, pg
	} else {
		mem := storage.NewMemoryStore()
		requests, auth, recs = mem, mem, mem
		logger.Warn("PG_DSN not set, using in-memory store")
	}

	var index search.Index
	if cfg.RedisAddr != "" {
		index = search.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix)
	} else {
		index = search.NewMemoryIndex()
		logger.Warn("REDIS_ADDR not set, using in-memory index")
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	p := pipeline.New(requests, index, auth, recs, cfg.Match, logger)
	if endpoint := os.Getenv("OSRM_ENDPOINT"); endpoint != "" {
		p.Estimator = geo.NewOSRMClient(endpoint)
		p.DistCache = geo.NewCache(5 * time.Minute)
	}

	var pay payments.Client
	if os.Getenv("STRIPE_API_KEY") != "" {
		pay = payments.NewStripeClient()
	}

	srv := httpapi.NewServer(p, requests, index, producer, notify.NewWSRegistry(), pay, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("care-coordination listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// runMigrations applies migrations/001_create_core.sql when requested.
func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_core.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
	}
}
