// Package types holds the websocket wire format. Every frame in either
// direction is an envelope {"event": "<name>", "data": <payload>}.
package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/auction-backend/internal/engine"
)

var ErrInvalidPayload = errors.New("invalid payload")

// Client -> server events.
const (
	EvtAuthLogin          = "auth:login"
	EvtAdminUpdateConfig  = "admin:updateConfig"
	EvtAdminDeleteCat     = "admin:deleteCategory"
	EvtAdminResetPlayer   = "admin:resetPlayer"
	EvtAdminResetCategory = "admin:resetCategory"
	EvtAdminResetTeam     = "admin:resetTeam"
	EvtAdminResetAll      = "admin:resetAll"
	EvtBidRequest         = "bid:request"
	EvtPlayerBid          = "player:bid"
	EvtPlayerSold         = "player:sold"
	EvtPlayersSave        = "players:save"
	EvtPlayersLoad        = "players:load"
	EvtPlayersClear       = "players:clear"
	EvtTextareaUpdate     = "textarea:update"
)

// Server -> client events. player:bid, player:sold, players:load,
// players:clear and textarea:update reuse the inbound names above.
const (
	EvtInitAuth       = "init:auth"
	EvtAuthSuccess    = "auth:success"
	EvtAuthFail       = "auth:fail"
	EvtStateUpdated   = "state:updated"
	EvtAdminToast     = "admin:toast"
	EvtActionRejected = "action:rejected"
	EvtServerReload   = "server:reload"
	EvtError          = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ID decodes from a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	s, err := engine.DecodeID(b)
	if err != nil {
		return err
	}
	*id = ID(s)
	return nil
}

type LoginPayload struct {
	Type     string `json:"type"`
	Password string `json:"password,omitempty"`
	TeamID   ID     `json:"teamId,omitempty"`
}

type UpdateConfigPayload struct {
	Categories []engine.Category `json:"categories,omitempty"`
	Teams      []engine.Team     `json:"teams,omitempty"`
}

type IDPayload struct {
	ID ID `json:"id"`
}

func (p IDPayload) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPayload)
	}
	return nil
}

type PlayerRefPayload struct {
	Category ID     `json:"category"`
	Name     string `json:"name"`
}

func (p PlayerRefPayload) Validate() error {
	if p.Category == "" || p.Name == "" {
		return fmt.Errorf("%w: category and name are required", ErrInvalidPayload)
	}
	return validCategory(p.Category)
}

type BidRequestPayload struct {
	TeamName   string `json:"teamName"`
	PlayerName string `json:"playerName"`
}

type BidPayload struct {
	Category ID            `json:"category"`
	Name     string        `json:"name"`
	Price    engine.Amount `json:"price"`
}

func (p BidPayload) Validate() error {
	if p.Category == "" || p.Name == "" {
		return fmt.Errorf("%w: category and name are required", ErrInvalidPayload)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidPayload)
	}
	return validCategory(p.Category)
}

type SoldPayload struct {
	Category ID            `json:"category"`
	Name     string        `json:"name"`
	Price    engine.Amount `json:"price"`
	TeamID   ID            `json:"teamId"`
}

func (p SoldPayload) Validate() error {
	if p.Category == "" || p.Name == "" || p.TeamID == "" {
		return fmt.Errorf("%w: category, name and teamId are required", ErrInvalidPayload)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidPayload)
	}
	return validCategory(p.Category)
}

type PlayersPayload struct {
	Category ID                `json:"category"`
	Players  []json.RawMessage `json:"players,omitempty"`
}

func (p PlayersPayload) Validate() error {
	if p.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidPayload)
	}
	return validCategory(p.Category)
}

func validCategory(id ID) error {
	if !engine.ValidCategoryID(string(id)) {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, engine.ErrInvalidCategoryID)
	}
	return nil
}

// Outbound payloads.

type InitAuth struct {
	Teams []engine.TeamRef `json:"teams"`
}

type AuthSuccess struct {
	Role   string       `json:"role"`
	TeamID string       `json:"teamId,omitempty"`
	State  engine.State `json:"state"`
}

type Toast struct {
	Type string `json:"type"` // "success" | "info" | "error"
	Msg  string `json:"msg"`
}

type Sold struct {
	Payload SoldPayload   `json:"payload"`
	Teams   []engine.Team `json:"teams"`
}

type Reload struct {
	TS int64 `json:"ts"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}
