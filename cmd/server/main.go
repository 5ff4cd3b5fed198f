package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/reliantlabs/medcat/internal/catalog"
	_ "github.com/reliantlabs/medcat/internal/catalog/kinds" // Register all record kinds
	"github.com/reliantlabs/medcat/internal/config"
	"github.com/reliantlabs/medcat/internal/extract"
	"github.com/reliantlabs/medcat/internal/imports"
	"github.com/reliantlabs/medcat/internal/logging"
	"github.com/reliantlabs/medcat/internal/source"
	"github.com/reliantlabs/medcat/internal/store"
	"github.com/reliantlabs/medcat/internal/upload"
	"github.com/reliantlabs/medcat/internal/web"
)

// storage is the union of store surfaces the import service, source runner,
// and HTTP server consume. Both store implementations satisfy it.
type storage interface {
	imports.Store
	source.Store
	web.Store
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"remote_extraction", cfg.RemoteExtraction(),
	)

	ctx := context.Background()

	// Pick the store: Postgres when a database URL is configured, the
	// in-memory store otherwise.
	var st storage
	if cfg.Database.URL == "" {
		slog.Info("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	} else {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			slog.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}

		// Apply pool configuration from config
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}

		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		st = pg
	}

	// Log registered kinds
	defs := catalog.All()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, string(def.Key))
	}
	slog.Info("kinds registered", "count", len(defs), "kinds", names)

	// Pick the file pipeline: remote store plus mapping service when both
	// URLs are configured, fully local otherwise.
	var (
		uploader  upload.Uploader
		extractor extract.Extractor
	)
	if cfg.RemoteExtraction() {
		uploader = upload.NewHTTP(cfg.Upload.StoreURL, cfg.Extract.Timeout)
		extractor = extract.NewHTTP(cfg.Extract.MapperURL, cfg.Extract.Timeout)
		slog.Info("remote extraction pipeline",
			"store", cfg.Upload.StoreURL,
			"mapper", cfg.Extract.MapperURL,
		)
	} else {
		files := upload.NewMemory()
		uploader = files
		extractor = extract.NewLocal(files)
		slog.Info("local extraction pipeline")
	}

	// Create the import service with config
	service := imports.New(st, uploader, extractor, imports.Options{
		MaxConcurrent:   cfg.Upload.MaxConcurrent,
		MaxWait:         cfg.Upload.MaxWaitTime,
		PipelineTimeout: cfg.Upload.Timeout,
		SaveTimeout:     cfg.Upload.SaveTimeout,
		Retention:       cfg.Upload.SessionRetention,
	})

	// Upstream reference sources
	if cfg.Sources.PageDelay > 0 {
		source.DefaultPageDelay = cfg.Sources.PageDelay
	}
	runner := source.NewRunner(st, cfg.Sources.FetchLimit,
		source.NewOpenFDA(cfg.Sources.OpenFDAURL),
		source.NewClinicalTables(cfg.Sources.ClinicalTablesURL, cfg.Sources.ClinicalTablesTerms),
	)

	scheduler := source.NewScheduler(runner)
	schedules := map[string]string{
		"openfda":        cfg.Sources.OpenFDASchedule,
		"clinicaltables": cfg.Sources.ClinicalTablesSchedule,
	}
	for name, spec := range schedules {
		if spec == "" {
			continue
		}
		if err := scheduler.Add(name, spec); err != nil {
			slog.Error("failed to schedule source", "source", name, "spec", spec, "error", err)
			os.Exit(1)
		}
	}
	scheduler.Start()
	if n := scheduler.Jobs(); n > 0 {
		slog.Info("source schedules registered", "jobs", n)
	}

	// Create server with config
	server := web.NewServer(service, st, runner, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop scheduled source runs
		if err := scheduler.Stop(shutdownCtx); err != nil {
			slog.Warn("scheduled source runs did not stop in time", "error", err)
		}

		// Wait for active imports to complete (with timeout)
		if gate := service.GateStatus(); gate.Active > 0 {
			slog.Info("waiting for imports to finish", "active", gate.Active)
			if err := service.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not finish in time", "error", err)
			} else {
				slog.Info("all imports finished")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
