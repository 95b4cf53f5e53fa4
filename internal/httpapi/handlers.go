package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/lobby"
)

var ErrLobbyUnresponsive = errors.New("lobby did not answer")

// Check is a named readiness probe.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

type StateView struct {
	Version int          `json:"version"`
	Clients int          `json:"clients"`
	State   engine.State `json:"state"`
}

func LobbyCheck(lb *lobby.Lobby) Check {
	return Check{Name: "lobby", Check: func(ctx context.Context) error {
		if _, ok := lb.Snapshot(ctx); !ok {
			return ErrLobbyUnresponsive
		}
		return nil
	}}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Status{Status: "ok", Timestamp: now()})
}

func Readyz(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		code, status := http.StatusOK, "ready"
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				results[c.Name] = err.Error()
				code, status = http.StatusServiceUnavailable, "not_ready"
				continue
			}
			results[c.Name] = "ok"
		}
		writeJSON(w, code, Status{Status: status, Checks: results, Timestamp: now()})
	}
}

// PublicState serves the ledger without team passwords.
func PublicState(lb *lobby.Lobby) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		v, ok := lb.Snapshot(ctx)
		if !ok {
			http.Error(w, ErrLobbyUnresponsive.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, StateView{Version: v.Version, Clients: v.NumClients, State: v.State.Public()})
	}
}

func Index(dir, file string) http.HandlerFunc {
	full := filepath.Join(dir, filepath.Base(file))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, full)
	}
}

// Static serves files under dir, refusing dotfiles and hidden names.
func Static(dir string, hidden []string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + r.URL.Path)
		for _, seg := range strings.Split(clean, "/") {
			if strings.HasPrefix(seg, ".") {
				http.NotFound(w, r)
				return
			}
		}
		if slices.Contains(hidden, path.Base(clean)) {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }
