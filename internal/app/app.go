package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"resellerhub/internal/api"
	"resellerhub/internal/auth"
	"resellerhub/internal/cache"
	"resellerhub/internal/config"
	"resellerhub/internal/guard"
	"resellerhub/internal/observability"
	"resellerhub/internal/store"
)

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    *store.Store
	Cache    *cache.Snapshots
	Registry *prometheus.Registry
	Guards   *guard.Guards
	API      *api.Handler
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, st.DB()); err != nil {
		_ = st.Close()
		return nil, err
	}

	snaps, err := cache.New(cfg.Redis.URL, st, cfg.Cache.TTL, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer := observability.NewGuardObserver(registry, logger)

	guards := guard.New(snaps, st, observer, logger, loc, cfg.Guard.BlockedPath)
	handler, err := api.NewHandler(auth.NewService(cfg), guards, st, st, st, snaps, logger)
	if err != nil {
		_ = snaps.Close()
		_ = st.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Cache:    snaps,
		Registry: registry,
		Guards:   guards,
		API:      handler,
	}, nil
}

func (a *App) Close() error {
	var err error
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Store != nil {
		err = a.Store.Close()
	}
	return err
}

func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Store.Ping(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := a.Cache.Ping(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	a.API.RegisterRoutes(mux)
	return mux
}

func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.Logger.Info("resellerd serving", zap.String("addr", a.Config.HTTP.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
