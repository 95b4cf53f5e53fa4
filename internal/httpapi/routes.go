package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/auction-backend/internal/lobby"
	"github.com/DoyleJ11/auction-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Options struct {
	StaticDir string
	IndexFile string
	// Hidden lists file names the static server never serves, such as the
	// ledger file. Dotfiles are always hidden.
	Hidden         []string
	AllowedOrigins []string
	Metrics        http.Handler
	Checks         []Check
	Logger         *zap.Logger
}

func SetupRoutes(lb *lobby.Lobby, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/readyz", Readyz(append([]Check{LobbyCheck(lb)}, opts.Checks...)))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.Get("/api/state", PublicState(lb))
	r.Get("/ws", ws.Handler(lb, log, opts.AllowedOrigins))

	r.Get("/", Index(opts.StaticDir, opts.IndexFile))
	r.Get("/*", Static(opts.StaticDir, opts.Hidden))
	return r
}
