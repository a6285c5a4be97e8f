package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TimurManjosov/cclengine/internal/api"
	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/config"
	"github.com/TimurManjosov/cclengine/internal/logging"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/TimurManjosov/cclengine/internal/store"
	"github.com/TimurManjosov/cclengine/internal/telemetry"
	"github.com/TimurManjosov/cclengine/internal/text"
	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.Must(cfg.LogLevel, cfg.LogFormat).With().Str("env", cfg.AppEnv).Logger()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	telemetry.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.StoreType).Msg("open store")
	}
	defer st.Close()

	engine, err := ccl.Load(ctx, st, ccl.Options{
		Country:      cfg.DefaultCountry,
		Version:      cfg.DefaultVersion,
		AllowDefault: cfg.AllowDefaultConfiguration,
		Logger:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("load configurations")
	}
	telemetry.ConfigurationsLoaded.Set(float64(len(engine.Registry().Configurations())))
	log.Info().
		Int("configurations", len(engine.Registry().Configurations())).
		Str("etag", engine.Registry().ETag()).
		Msg("registry loaded")

	if cfg.ReloadInterval > 0 && cfg.StoreType != config.StoreBundled {
		go engine.Watch(ctx, st, cfg.ReloadInterval, func(changed bool, err error) {
			switch {
			case err != nil:
				telemetry.Reloads.WithLabelValues("error").Inc()
			case changed:
				telemetry.Reloads.WithLabelValues("changed").Inc()
				telemetry.ConfigurationsLoaded.Set(float64(len(engine.Registry().Configurations())))
			default:
				telemetry.Reloads.WithLabelValues("unchanged").Inc()
			}
		})
	}

	var fallback text.Language
	if cfg.TextFallbackLanguage != "" {
		if fallback, err = text.ParseLanguage(cfg.TextFallbackLanguage); err != nil {
			log.Fatal().Err(err).Msg("TEXT_FALLBACK_LANGUAGE")
		}
	}

	var writable store.Store
	if cfg.StoreType != config.StoreFile {
		writable = st
	}
	srvAPI := api.NewServer(api.Options{
		Engine:           engine,
		Store:            writable,
		AdminAPIKey:      cfg.AdminAPIKey,
		FallbackLanguage: fallback,
		Logger:           log,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 0, // the configuration stream stays open
		IdleTimeout:  60 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go serve(log, "api", srv)
	go serve(log, "metrics", metricsSrv)

	// graceful shutdown
	<-ctx.Done()
	ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShut)
	_ = metricsSrv.Shutdown(ctxShut)
	log.Info().Msg("stopped")
}

func serve(log zerolog.Logger, name string, srv *http.Server) {
	log.Info().Str("server", name).Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Str("server", name).Msg("server stopped")
	}
}

// openStore connects to the configured store. PostgreSQL may still be
// starting, so connecting is retried with exponential backoff.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	opts := store.Options{Path: cfg.ConfigPath, DSN: cfg.DatabaseDSN}
	if cfg.StoreType != config.StorePostgres {
		return store.NewStore(ctx, cfg.StoreType, opts)
	}

	st, err := backoff.Retry(ctx, func() (store.Store, error) {
		return store.NewStore(ctx, cfg.StoreType, opts)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(30*time.Second),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("database not ready")
		}),
	)
	if err != nil {
		return nil, err
	}
	if err := seed(ctx, st, log); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// seed fills an empty database with the bundled configurations.
func seed(ctx context.Context, st store.Store, log zerolog.Logger) error {
	existing, err := st.ListConfigurations(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	bundled, err := rules.Bundled()
	if err != nil {
		return err
	}
	for _, c := range bundled {
		if err := st.UpsertConfiguration(ctx, c); err != nil {
			return fmt.Errorf("seed %s: %w", c.Key(), err)
		}
	}
	log.Info().Int("configurations", len(bundled)).Msg("seeded empty database with bundled configurations")
	return nil
}
