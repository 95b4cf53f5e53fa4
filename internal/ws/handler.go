package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/DoyleJ11/auction-backend/internal/auth"
	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/lobby"
	"github.com/DoyleJ11/auction-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	outboxSize   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 1 << 20
)

var ErrUnknownEvent = errors.New("unknown event")

// Handler upgrades to a websocket and bridges the connection to the lobby.
// originPatterns is passed to websocket.AcceptOptions; empty means same host.
func Handler(lb *lobby.Lobby, log *zap.Logger, originPatterns []string) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Info("websocket accept failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(readLimit)

		clientID := uuid.NewString()
		out := make(chan types.Outbound, outboxSize)
		ctx := r.Context()

		if !lb.Send(ctx, lobby.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer lb.Send(context.Background(), lobby.Leave{ClientID: clientID})

		log.Debug("client connected", zap.String("client_id", clientID), zap.String("remote", r.RemoteAddr))

		writeCtx, writeCancel := context.WithCancel(ctx)
		defer writeCancel()
		go writeLoop(writeCtx, conn, out, log.With(zap.String("client_id", clientID)))

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read failed", zap.String("client_id", clientID), zap.Error(err))
				}
				return
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				writeError(ctx, conn, "bad json")
				continue
			}

			msg, err := toLobbyMsg(clientID, env)
			if err != nil {
				writeError(ctx, conn, err.Error())
				continue
			}
			if !lb.Send(ctx, msg) {
				return
			}
		}
	}
}

// writeLoop drains the outbox until the hub closes it, then closes the
// connection.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan types.Outbound, log *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "disconnected by server")
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error("marshal outbound", zap.String("event", msg.Event), zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				conn.CloseNow()
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				conn.CloseNow()
				return
			}
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	payload, _ := json.Marshal(types.Outbound{Event: types.EvtError, Data: types.ErrorMessage{Error: reason}})
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

type validator interface{ Validate() error }

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", types.ErrInvalidPayload, err)
	}
	if val, ok := any(v).(validator); ok {
		if err := val.Validate(); err != nil {
			return v, err
		}
	}
	return v, nil
}

// toLobbyMsg decodes one envelope into the lobby message it stands for.
func toLobbyMsg(clientID string, env types.Envelope) (lobby.Msg, error) {
	fromClient := func(cmd engine.Command) lobby.Msg {
		return lobby.FromClient{ClientID: clientID, Cmd: cmd}
	}

	switch env.Event {
	case types.EvtAuthLogin:
		p, err := decode[types.LoginPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return lobby.Login{ClientID: clientID, Req: auth.Request{
			Type:     p.Type,
			Password: p.Password,
			TeamID:   string(p.TeamID),
		}}, nil

	case types.EvtAdminUpdateConfig:
		p, err := decode[types.UpdateConfigPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return fromClient(engine.Command{Type: engine.CmdUpdateConfig, Teams: p.Teams, Categories: p.Categories}), nil

	case types.EvtAdminDeleteCat, types.EvtAdminResetCategory, types.EvtAdminResetTeam:
		p, err := decode[types.IDPayload](env.Data)
		if err != nil {
			return nil, err
		}
		switch env.Event {
		case types.EvtAdminDeleteCat:
			return fromClient(engine.Command{Type: engine.CmdDeleteCategory, Category: string(p.ID)}), nil
		case types.EvtAdminResetCategory:
			return fromClient(engine.Command{Type: engine.CmdResetCategory, Category: string(p.ID)}), nil
		default:
			return fromClient(engine.Command{Type: engine.CmdResetTeam, TeamID: string(p.ID)}), nil
		}

	case types.EvtAdminResetPlayer:
		p, err := decode[types.PlayerRefPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return fromClient(engine.Command{Type: engine.CmdResetPlayer, Category: string(p.Category), Name: p.Name}), nil

	case types.EvtAdminResetAll:
		return fromClient(engine.Command{Type: engine.CmdResetAll}), nil

	case types.EvtBidRequest:
		p, err := decode[types.BidRequestPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return lobby.BidRequest{TeamName: p.TeamName, PlayerName: p.PlayerName}, nil

	case types.EvtPlayerBid:
		p, err := decode[types.BidPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return fromClient(engine.Command{Type: engine.CmdPlaceBid, Category: string(p.Category), Name: p.Name, Price: p.Price}), nil

	case types.EvtPlayerSold:
		p, err := decode[types.SoldPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return fromClient(engine.Command{
			Type:     engine.CmdFinalizeSale,
			Category: string(p.Category),
			Name:     p.Name,
			Price:    p.Price,
			TeamID:   string(p.TeamID),
		}), nil

	case types.EvtPlayersSave:
		p, err := decode[types.PlayersPayload](env.Data)
		if err != nil {
			return nil, err
		}
		players := p.Players
		if players == nil {
			players = []json.RawMessage{}
		}
		return fromClient(engine.Command{Type: engine.CmdSaveSnapshot, Category: string(p.Category), Players: players}), nil

	case types.EvtPlayersLoad:
		p, err := decode[types.PlayersPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return lobby.RelayPlayers{Payload: p}, nil

	case types.EvtPlayersClear:
		p, err := decode[types.PlayersPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return fromClient(engine.Command{Type: engine.CmdClearSnapshot, Category: string(p.Category)}), nil

	case types.EvtTextareaUpdate:
		return lobby.TextareaUpdate{ClientID: clientID, Payload: env.Data}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}
