package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var ErrAlreadySold = errors.New("player already sold")
var ErrTeamNotFound = errors.New("team not found")
var ErrCategoryTaken = errors.New("team already holds a player in category")
var ErrInsufficientPurse = errors.New("insufficient funds")
var ErrInvalidConfig = errors.New("invalid config")
var ErrUnsupportedCommand = errors.New("unsupported command")

// RuleError is a business-rule rejection. The lobby reports these back to the
// admin who issued the command; every other Apply error is dropped silently.
type RuleError struct {
	Err error
	Msg string
}

func (e *RuleError) Error() string { return e.Msg }
func (e *RuleError) Unwrap() error { return e.Err }

func reject(err error, format string, args ...any) error {
	return &RuleError{Err: err, Msg: fmt.Sprintf(format, args...)}
}

func IsRuleViolation(err error) bool {
	var re *RuleError
	return errors.As(err, &re)
}

type CommandType string

const (
	CmdPlaceBid       CommandType = "PlaceBid"
	CmdFinalizeSale   CommandType = "FinalizeSale"
	CmdResetPlayer    CommandType = "ResetPlayer"
	CmdResetCategory  CommandType = "ResetCategory"
	CmdResetTeam      CommandType = "ResetTeam"
	CmdResetAll       CommandType = "ResetAll"
	CmdUpdateConfig   CommandType = "UpdateConfig"
	CmdDeleteCategory CommandType = "DeleteCategory"
	CmdSaveSnapshot   CommandType = "SaveSnapshot"
	CmdClearSnapshot  CommandType = "ClearSnapshot"
)

// Command is one admin intent. For CmdUpdateConfig a nil Teams or Categories
// slice means "leave as is"; an empty non-nil slice replaces with nothing.
type Command struct {
	Type       CommandType
	Category   string
	Name       string
	Price      Amount
	TeamID     string
	Teams      []Team
	Categories []Category
	Players    []json.RawMessage
}

type EventType string

const (
	EvtBidPlaced       EventType = "BidPlaced"
	EvtPlayerSold      EventType = "PlayerSold"
	EvtPlayerReset     EventType = "PlayerReset"
	EvtCategoryReset   EventType = "CategoryReset"
	EvtTeamReset       EventType = "TeamReset"
	EvtLedgerReset     EventType = "LedgerReset"
	EvtConfigUpdated   EventType = "ConfigUpdated"
	EvtCategoryDeleted EventType = "CategoryDeleted"
	EvtSnapshotSaved   EventType = "SnapshotSaved"
	EvtSnapshotCleared EventType = "SnapshotCleared"
)

type Event struct {
	Type     EventType
	Key      PlayerKey
	Category string
	TeamID   string
	TeamName string
	Price    Amount
	Refund   Amount
	Players  []json.RawMessage
}

// Apply computes the ledger that results from cmd. The input state is never
// modified; on error the input is returned as is.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if !ValidCategoryID(cmd.Category) {
		return nil, s, reject(ErrInvalidCategoryID, "Category id %s cannot contain ':'", cmd.Category)
	}
	switch cmd.Type {
	case CmdPlaceBid:
		key := Key(cmd.Category, cmd.Name)
		if _, sold := s.SoldPrices[key]; sold {
			return nil, s, reject(ErrAlreadySold, "Player already sold!")
		}
		next := s.Clone()
		next.ActiveBids[key] = cmd.Price
		return []Event{{Type: EvtBidPlaced, Key: key, Category: cmd.Category, Price: cmd.Price}}, next, nil

	case CmdFinalizeSale:
		return finalizeSale(s, cmd)

	case CmdResetPlayer:
		next := s.Clone()
		key := Key(cmd.Category, cmd.Name)
		evt := Event{Type: EvtPlayerReset, Key: key, Category: cmd.Category}
		for i := range next.Teams {
			t := &next.Teams[i]
			if name, ok := t.Purchases[cmd.Category]; ok && name == cmd.Name {
				refund := next.SoldPrices[key]
				t.Purse += refund
				delete(t.Purchases, cmd.Category)
				evt.TeamID, evt.TeamName, evt.Refund = t.ID, t.Name, refund
			}
		}
		delete(next.ActiveBids, key)
		delete(next.SoldPrices, key)
		return []Event{evt}, next, nil

	case CmdResetCategory:
		next := s.Clone()
		refund := refundCategory(&next, cmd.Category)
		return []Event{{Type: EvtCategoryReset, Category: cmd.Category, Refund: refund}}, next, nil

	case CmdResetTeam:
		next := s.Clone()
		t, ok := next.FindTeam(cmd.TeamID)
		if !ok {
			return nil, s, fmt.Errorf("reset team %q: %w", cmd.TeamID, ErrTeamNotFound)
		}
		for cat, name := range t.Purchases {
			delete(next.SoldPrices, Key(cat, name))
		}
		t.Purchases = map[string]string{}
		t.Purse = DefaultPurse
		return []Event{{Type: EvtTeamReset, TeamID: t.ID, TeamName: t.Name}}, next, nil

	case CmdResetAll:
		return []Event{{Type: EvtLedgerReset}}, NewEmptyState(), nil

	case CmdUpdateConfig:
		return updateConfig(s, cmd)

	case CmdDeleteCategory:
		next := s.Clone()
		refund := refundCategory(&next, cmd.Category)
		next.Categories = slices.DeleteFunc(next.Categories, func(c Category) bool { return c.ID == cmd.Category })
		delete(next.PlayersSnapshot, cmd.Category)
		return []Event{{Type: EvtCategoryDeleted, Category: cmd.Category, Refund: refund}}, next, nil

	case CmdSaveSnapshot:
		next := s.Clone()
		players := append([]json.RawMessage{}, cmd.Players...)
		next.PlayersSnapshot[cmd.Category] = players
		return []Event{{Type: EvtSnapshotSaved, Category: cmd.Category, Players: players}}, next, nil

	case CmdClearSnapshot:
		next := s.Clone()
		delete(next.PlayersSnapshot, cmd.Category)
		return []Event{{Type: EvtSnapshotCleared, Category: cmd.Category}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func finalizeSale(s State, cmd Command) ([]Event, State, error) {
	if s.IsSold(cmd.Name) {
		return nil, s, reject(ErrAlreadySold, "Player already sold!")
	}
	team, ok := s.FindTeam(cmd.TeamID)
	if !ok {
		return nil, s, reject(ErrTeamNotFound, "Team not found")
	}
	if held := team.Purchases[cmd.Category]; held != "" {
		return nil, s, reject(ErrCategoryTaken, "Team %s already has a player in %s!", team.Name, cmd.Category)
	}
	if team.Purse < cmd.Price {
		return nil, s, reject(ErrInsufficientPurse, "Insufficient funds")
	}

	next := s.Clone()
	t, _ := next.FindTeam(cmd.TeamID)
	key := Key(cmd.Category, cmd.Name)
	t.Purse -= cmd.Price
	t.Purchases[cmd.Category] = cmd.Name
	next.SoldPrices[key] = cmd.Price
	delete(next.ActiveBids, key)

	return []Event{{
		Type:     EvtPlayerSold,
		Key:      key,
		Category: cmd.Category,
		TeamID:   t.ID,
		TeamName: t.Name,
		Price:    cmd.Price,
	}}, next, nil
}

// refundCategory returns every player sold in category to the pool, credits
// the owners and wipes the category's bids and prices. It reports the total
// refunded.
func refundCategory(s *State, category string) Amount {
	var total Amount
	for i := range s.Teams {
		t := &s.Teams[i]
		name, ok := t.Purchases[category]
		if !ok {
			continue
		}
		if name != "" {
			paid := s.SoldPrices[Key(category, name)]
			t.Purse += paid
			total += paid
		}
		delete(t.Purchases, category)
	}
	for key := range s.ActiveBids {
		if key.Category == category {
			delete(s.ActiveBids, key)
		}
	}
	for key := range s.SoldPrices {
		if key.Category == category {
			delete(s.SoldPrices, key)
		}
	}
	return total
}

func updateConfig(s State, cmd Command) ([]Event, State, error) {
	if err := validateConfig(cmd); err != nil {
		return nil, s, err
	}

	next := s.Clone()
	if cmd.Categories != nil {
		next.Categories = append([]Category{}, cmd.Categories...)
	}
	if cmd.Teams != nil {
		teams := make([]Team, 0, len(cmd.Teams))
		kept := make(map[string]bool, len(cmd.Teams))
		for _, incoming := range cmd.Teams {
			t := incoming
			t.Purchases = map[string]string{}
			if existing, ok := next.FindTeam(t.ID); ok {
				t.Purchases = existing.Purchases
			}
			kept[t.ID] = true
			teams = append(teams, t)
		}
		// A team dropped from the roster takes its purchases with it, so
		// their prices go too.
		for _, old := range next.Teams {
			if kept[old.ID] {
				continue
			}
			for cat, name := range old.Purchases {
				delete(next.SoldPrices, Key(cat, name))
			}
		}
		next.Teams = teams
	}
	return []Event{{Type: EvtConfigUpdated}}, next, nil
}

func validateConfig(cmd Command) error {
	seen := make(map[string]bool, len(cmd.Teams))
	for _, t := range cmd.Teams {
		if t.ID == "" {
			return reject(ErrInvalidConfig, "Every team needs an id")
		}
		if seen[t.ID] {
			return reject(ErrInvalidConfig, "Duplicate team id %s", t.ID)
		}
		if t.Purse < 0 {
			return reject(ErrInvalidConfig, "Team %s purse cannot be negative", t.ID)
		}
		seen[t.ID] = true
	}
	cats := make(map[string]bool, len(cmd.Categories))
	for _, c := range cmd.Categories {
		if !ValidCategoryID(c.ID) {
			return reject(ErrInvalidCategoryID, "Category id %s cannot contain ':'", c.ID)
		}
		if cats[c.ID] {
			return reject(ErrInvalidConfig, "Duplicate category id %s", c.ID)
		}
		cats[c.ID] = true
	}
	return nil
}
