package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/auction-backend/internal/auth"
	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/hub"
	"github.com/DoyleJ11/auction-backend/internal/metrics"
	"github.com/DoyleJ11/auction-backend/internal/store"
	"github.com/DoyleJ11/auction-backend/internal/types"
	"go.uber.org/zap"
)

type Msg interface{ isLobbyMsg() }

// Join registers a connection. The lobby replies on Outbox with init:auth.
type Join struct {
	ClientID string
	Outbox   chan types.Outbound
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Login struct {
	ClientID string
	Req      auth.Request
}

func (Login) isLobbyMsg() {}

// FromClient is a ledger command. It is applied only if the connection
// holds a valid admin token.
type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isLobbyMsg() {}

// BidRequest is a team's advisory request; it only becomes a toast.
type BidRequest struct {
	TeamName   string
	PlayerName string
}

func (BidRequest) isLobbyMsg() {}

// RelayPlayers is a players:load pushed by a client, passed on untouched.
type RelayPlayers struct {
	Payload types.PlayersPayload
}

func (RelayPlayers) isLobbyMsg() {}

// TextareaUpdate carries the admin's shared notes to every other client.
type TextareaUpdate struct {
	ClientID string
	Payload  any
}

func (TextareaUpdate) isLobbyMsg() {}

type Reload struct{ At time.Time }

func (Reload) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type session struct {
	identity auth.Identity
}

type Deps struct {
	Hub     *hub.Hub
	Store   store.Store
	Guard   *auth.Guard
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Lobby is the single owner of the ledger. Every message is handled to
// completion before the next one is read.
type Lobby struct {
	inbox    chan Msg
	state    engine.State
	version  int
	sessions map[string]*session

	hub     *hub.Hub
	store   store.Store
	guard   *auth.Guard
	log     *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, initial engine.State, deps Deps) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	initial.Normalize()

	l := &Lobby{
		inbox:    make(chan Msg, 64), // Small buffer
		state:    initial,
		sessions: make(map[string]*session),
		hub:      deps.Hub,
		store:    deps.Store,
		guard:    deps.Guard,
		log:      deps.Logger.Named("lobby"),
		metrics:  deps.Metrics,
		ctx:      ctx,
		cancel:   cancel,
	}

	go l.loop()
	return l
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers msg unless ctx is done or the lobby has stopped.
func (l *Lobby) Send(ctx context.Context, msg Msg) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	case <-l.ctx.Done():
		return false
	}
}

// Snapshot asks the loop for a copy of the current ledger.
func (l *Lobby) Snapshot(ctx context.Context) (View, bool) {
	reply := make(chan View, 1)
	if !l.Send(ctx, GetState{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-ctx.Done():
		return View{}, false
	case <-l.ctx.Done():
		return View{}, false
	}
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.sessions[msg.ClientID] = &session{}
				l.hub.Send(hub.Register{ClientID: msg.ClientID, Outbox: msg.Outbox})
				l.sendTo(msg.ClientID, types.EvtInitAuth, types.InitAuth{Teams: l.state.Roster()})

			case Leave:
				if sess, ok := l.sessions[msg.ClientID]; ok {
					l.guard.Revoke(sess.identity.Token)
					delete(l.sessions, msg.ClientID)
				}
				l.hub.Send(hub.Unregister{ClientID: msg.ClientID})

			case Login:
				l.login(msg)

			case FromClient:
				sess, ok := l.sessions[msg.ClientID]
				if !ok || !l.guard.Authorize(sess.identity) {
					l.log.Debug("dropping unauthorized command",
						zap.String("client_id", msg.ClientID),
						zap.String("command", string(msg.Cmd.Type)),
					)
					l.metrics.Command(string(msg.Cmd.Type), metrics.OutcomeDropped)
					break
				}
				l.apply(msg.ClientID, msg.Cmd)

			case BidRequest:
				l.broadcast(types.EvtAdminToast, types.Toast{
					Type: "info",
					Msg:  "Bid Request: " + msg.TeamName + " for " + msg.PlayerName,
				})

			case RelayPlayers:
				l.broadcast(types.EvtPlayersLoad, msg.Payload)

			case TextareaUpdate:
				sess, ok := l.sessions[msg.ClientID]
				if !ok || !l.guard.Authorize(sess.identity) {
					break
				}
				l.hub.Send(hub.Broadcast{
					Full:   types.Outbound{Event: types.EvtTextareaUpdate, Data: msg.Payload},
					Except: msg.ClientID,
				})

			case Reload:
				l.broadcast(types.EvtServerReload, types.Reload{TS: msg.At.UnixMilli()})

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.sessions),
					State:      l.state.Clone(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) login(msg Login) {
	sess, ok := l.sessions[msg.ClientID]
	if !ok {
		return
	}

	id, err := l.guard.Login(msg.Req, l.state.Teams)
	if err != nil {
		l.log.Info("login failed",
			zap.String("client_id", msg.ClientID),
			zap.String("type", msg.Req.Type),
			zap.Error(err),
		)
		l.sendTo(msg.ClientID, types.EvtAuthFail, failMessage(err))
		return
	}

	// The latest successful login defines the connection.
	l.guard.Revoke(sess.identity.Token)
	sess.identity = id
	l.hub.Send(hub.Promote{ClientID: msg.ClientID, Privileged: id.IsAdmin()})

	view := l.state.Public()
	if id.IsAdmin() {
		view = l.state.Clone()
	}
	l.log.Info("login",
		zap.String("client_id", msg.ClientID),
		zap.String("role", string(id.Role)),
		zap.String("team_id", id.TeamID),
	)
	l.sendTo(msg.ClientID, types.EvtAuthSuccess, types.AuthSuccess{
		Role:   string(id.Role),
		TeamID: id.TeamID,
		State:  view,
	})
}

// apply runs one authorized command: transition, persist, then broadcast.
func (l *Lobby) apply(clientID string, cmd engine.Command) {
	events, next, err := engine.Apply(l.state, cmd)
	if err != nil {
		if engine.IsRuleViolation(err) {
			l.log.Info("command rejected", zap.String("command", string(cmd.Type)), zap.Error(err))
			l.metrics.Command(string(cmd.Type), metrics.OutcomeRejected)
			l.sendTo(clientID, types.EvtActionRejected, err.Error())
			return
		}
		l.log.Debug("command dropped", zap.String("command", string(cmd.Type)), zap.Error(err))
		l.metrics.Command(string(cmd.Type), metrics.OutcomeDropped)
		return
	}

	l.state = next
	l.version++
	l.metrics.Command(string(cmd.Type), metrics.OutcomeApplied)

	if err := l.store.Save(l.ctx, l.state); err != nil {
		// The in-memory ledger stays authoritative; the next save retries.
		l.log.Warn("failed to persist ledger", zap.Int("version", l.version), zap.Error(err))
		l.metrics.PersistFailed()
	}
	if err := engine.CheckInvariants(l.state); err != nil {
		l.log.Error("ledger invariant broken", zap.String("command", string(cmd.Type)), zap.Error(err))
	}

	for _, evt := range events {
		l.publish(evt)
	}
}

func (l *Lobby) shutdown() {
	for id, sess := range l.sessions {
		l.guard.Revoke(sess.identity.Token)
		delete(l.sessions, id)
	}
	l.cancel()
}

func failMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidAdminPassword):
		return "Invalid Admin Password"
	case errors.Is(err, auth.ErrInvalidTeamPassword):
		return "Invalid Team Password"
	default:
		return "Login failed"
	}
}
