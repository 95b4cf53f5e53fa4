package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/DoyleJ11/auction-backend/internal/auth"
	"github.com/DoyleJ11/auction-backend/internal/config"
	"github.com/DoyleJ11/auction-backend/internal/httpapi"
	"github.com/DoyleJ11/auction-backend/internal/hub"
	"github.com/DoyleJ11/auction-backend/internal/lobby"
	"github.com/DoyleJ11/auction-backend/internal/logging"
	"github.com/DoyleJ11/auction-backend/internal/metrics"
	"github.com/DoyleJ11/auction-backend/internal/reload"
	"github.com/DoyleJ11/auction-backend/internal/store"
	"github.com/DoyleJ11/auction-backend/internal/store/postgres"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "auction:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, checks, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	guard, err := auth.NewGuard(cfg.AdminPassword, cfg.AdminPasswordHash)
	if err != nil {
		return err
	}

	m := metrics.New()
	h := hub.NewHub(ctx, log, m)
	initial := store.LoadOrBootstrap(ctx, st, log)
	lb := lobby.NewLobby(ctx, initial, lobby.Deps{
		Hub:     h,
		Store:   st,
		Guard:   guard,
		Logger:  log,
		Metrics: m,
	})

	handler := httpapi.SetupRoutes(lb, httpapi.Options{
		StaticDir:      cfg.StaticDir,
		IndexFile:      cfg.IndexFile,
		Hidden:         []string{filepath.Base(cfg.DataFile)},
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        m.Handler(),
		Checks:         checks,
		Logger:         log,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("store", cfg.StoreDriver),
			zap.Int("teams", len(initial.Teams)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if files := watchPaths(cfg); len(files) > 0 {
		w, err := reload.New(files, log)
		if err != nil {
			log.Warn("live reload disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				return w.Run(gctx, func(at time.Time) {
					lb.Send(gctx, lobby.Reload{At: at})
				})
			})
		}
	}

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, []httpapi.Check, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, []httpapi.Check{{Name: "postgres", Check: pg.Ping}}, nil
	case config.DriverMemory:
		return store.NewMemory(), nil, nil
	default:
		return store.NewFile(cfg.DataFile), nil, nil
	}
}

// Watch files are relative to the static directory.
func watchPaths(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.WatchFiles))
	for _, f := range cfg.WatchFiles {
		if !filepath.IsAbs(f) {
			f = filepath.Join(cfg.StaticDir, f)
		}
		out = append(out, f)
	}
	return out
}
