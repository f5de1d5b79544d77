package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ideaforge/api/internal/app"
	"ideaforge/api/internal/auth"
	"ideaforge/api/internal/blob"
	"ideaforge/api/internal/config"
	"ideaforge/api/internal/documents"
	"ideaforge/api/internal/export"
	"ideaforge/api/internal/fallback"
	"ideaforge/api/internal/migration"
	"ideaforge/api/internal/revisions"
	"ideaforge/api/internal/search"
	"ideaforge/api/internal/sectionsync"
	"ideaforge/api/internal/store"
)

// remoteStore is the document table plus a readiness probe.
type remoteStore interface {
	documents.Remote
	app.Pinger
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	ctx := context.Background()

	var (
		remote remoteStore
		db     *sql.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory document store; data is lost on restart")
		remote = store.NewMemoryStore()
	default:
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "database connection failed", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
			fatal(logger, "migrations failed", err)
		}
		remote = store.NewPostgresStore(db)
	}

	var local fallback.Store = fallback.NewMemoryStore()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := fallback.NewRedisStore(cfg.RedisURL)
		if err != nil {
			fatal(logger, "redis connection failed", err)
		}
		defer redisStore.Close()
		local = redisStore
		logger.Info("using redis for the local fallback store")
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		fatal(logger, "failed to create revisions dir", err)
	}
	history := revisions.New(cfg.RevisionsDir)

	var adapter *documents.Adapter
	var tiers []search.Searcher
	var index search.Index
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		index = meiliClient
		tiers = append(tiers, meiliClient)
	}
	var pgfts *search.PgFTS
	if db != nil {
		pgfts = search.NewPgFTS(db)
		tiers = append(tiers, pgfts)
	}
	tiers = append(tiers, search.NewScan(search.ListerFunc(func(ctx context.Context, projectID string) []store.Document {
		return adapter.ProjectDocuments(ctx, projectID)
	})))
	searchService := search.NewService(logger, index, tiers...)

	opts := []documents.Option{
		documents.WithIndexer(searchService),
		documents.WithRecorder(history),
	}
	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		blobs, err := blob.NewMinIOStore(ctx, blob.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			PublicURL: cfg.MinIOPublicURL,
		}, logger)
		if err != nil {
			logger.Warn("upload storage unavailable, uploads disabled", "error", err)
		} else {
			opts = append(opts, documents.WithBlobStore(blobs))
		}
	}
	adapter = documents.New(remote, local, logger, opts...)

	if pgfts != nil {
		go searchService.Reindex(ctx, pgfts)
	}

	var verifier auth.Verifier
	switch {
	case strings.TrimSpace(cfg.JWKSURL) != "":
		jwks, err := auth.NewJWKSVerifier(ctx, cfg.JWKSURL, logger)
		if err != nil {
			fatal(logger, "jwks setup failed", err)
		}
		verifier = jwks
	case strings.TrimSpace(cfg.JWTSecret) != "":
		verifier = auth.NewHMACVerifier(cfg.JWTSecret)
	default:
		logger.Warn("no token verifier configured; trusting the X-User-ID header")
	}

	service := app.NewService(app.Deps{
		Documents: adapter,
		Sections:  sectionsync.New(adapter, local, logger),
		Sweeper:   migration.NewSweeper(adapter, logger, migration.WithCombinedCache(local)),
		Search:    searchService,
		Export:    export.NewService(adapter, logger),
		Revisions: history,
		Verifier:  verifier,
		Pinger:    remote,
		Logger:    logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("ideaforge api listening", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
