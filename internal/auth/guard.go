package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidAdminPassword = errors.New("invalid admin password")
var ErrInvalidTeamPassword = errors.New("invalid team password")

type Role string

const (
	RoleNone     Role = ""
	RoleAdmin    Role = "admin"
	RoleTeam     Role = "team"
	RoleListener Role = "listener"
)

// Request is what a client submits with auth:login. Type is "admin", "team"
// or anything else for a read-only listener.
type Request struct {
	Type     string
	Password string
	TeamID   string
}

// Identity is bound to one connection. Admin identities carry a token the
// guard issued; the token, not the role, is what authorizes mutations.
type Identity struct {
	Role   Role
	TeamID string
	Token  string
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// Guard checks credentials and tracks the admin tokens it handed out.
type Guard struct {
	mu     sync.Mutex
	secret []byte
	hash   []byte
	tokens map[string]struct{}
}

// NewGuard uses passwordHash (bcrypt) when set and the plain shared secret
// otherwise.
func NewGuard(password, passwordHash string) (*Guard, error) {
	g := &Guard{tokens: make(map[string]struct{})}
	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("parsing admin password hash: %w", err)
		}
		g.hash = []byte(passwordHash)
		return g, nil
	}
	if password == "" {
		return nil, errors.New("admin password must not be empty")
	}
	g.secret = []byte(password)
	return g, nil
}

// Login resolves a login request against the current roster.
func (g *Guard) Login(req Request, teams []engine.Team) (Identity, error) {
	switch req.Type {
	case "admin":
		if !g.checkAdmin(req.Password) {
			return Identity{}, ErrInvalidAdminPassword
		}
		token := uuid.NewString()
		g.mu.Lock()
		g.tokens[token] = struct{}{}
		g.mu.Unlock()
		return Identity{Role: RoleAdmin, Token: token}, nil

	case "team":
		for _, t := range teams {
			if t.ID == req.TeamID && subtle.ConstantTimeCompare([]byte(t.Password), []byte(req.Password)) == 1 {
				return Identity{Role: RoleTeam, TeamID: t.ID}, nil
			}
		}
		return Identity{}, ErrInvalidTeamPassword

	default:
		return Identity{Role: RoleListener}, nil
	}
}

// Authorize reports whether id may mutate the ledger.
func (g *Guard) Authorize(id Identity) bool {
	if id.Role != RoleAdmin || id.Token == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.tokens[id.Token]
	return ok
}

func (g *Guard) Revoke(token string) {
	if token == "" {
		return
	}
	g.mu.Lock()
	delete(g.tokens, token)
	g.mu.Unlock()
}

func (g *Guard) checkAdmin(password string) bool {
	if g.hash != nil {
		return bcrypt.CompareHashAndPassword(g.hash, []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare(g.secret, []byte(password)) == 1
}
