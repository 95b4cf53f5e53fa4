package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// DefaultPurse is the purse every bootstrap team starts with and the purse a
// team reset restores.
const DefaultPurse Amount = 500

var ErrInvariant = errors.New("ledger invariant violated")

// NewEmptyState is the ledger after a full reset.
func NewEmptyState() State {
	return State{
		Teams:           []Team{},
		Categories:      []Category{},
		PlayersSnapshot: map[string][]json.RawMessage{},
		ActiveBids:      map[PlayerKey]Amount{},
		SoldPrices:      map[PlayerKey]Amount{},
		PassRecords:     map[string]json.RawMessage{},
	}
}

// NewDefaultState is the ledger used when nothing has been persisted yet.
func NewDefaultState() State {
	s := NewEmptyState()
	s.Teams = []Team{
		{ID: "t1", Name: "Royal Challengers", Purse: DefaultPurse, Password: "123", Purchases: map[string]string{}},
		{ID: "t2", Name: "Chennai Kings", Purse: DefaultPurse, Password: "123", Purchases: map[string]string{}},
		{ID: "t3", Name: "Mumbai Indians", Purse: DefaultPurse, Password: "123", Purchases: map[string]string{}},
	}
	return s
}

// Normalize fills in collections missing from an older or hand-edited
// snapshot so they behave as empty.
func (s *State) Normalize() {
	if s.Teams == nil {
		s.Teams = []Team{}
	}
	if s.Categories == nil {
		s.Categories = []Category{}
	}
	if s.PlayersSnapshot == nil {
		s.PlayersSnapshot = map[string][]json.RawMessage{}
	}
	if s.ActiveBids == nil {
		s.ActiveBids = map[PlayerKey]Amount{}
	}
	if s.SoldPrices == nil {
		s.SoldPrices = map[PlayerKey]Amount{}
	}
	if s.PassRecords == nil {
		s.PassRecords = map[string]json.RawMessage{}
	}
	for i := range s.Teams {
		if s.Teams[i].Purchases == nil {
			s.Teams[i].Purchases = map[string]string{}
		}
	}
}

// Clone returns a deep copy; Apply never touches the state it was given.
func (s State) Clone() State {
	c := State{
		Teams:           make([]Team, len(s.Teams)),
		Categories:      append([]Category{}, s.Categories...),
		PlayersSnapshot: make(map[string][]json.RawMessage, len(s.PlayersSnapshot)),
		ActiveBids:      maps.Clone(s.ActiveBids),
		SoldPrices:      maps.Clone(s.SoldPrices),
		PassRecords:     maps.Clone(s.PassRecords),
	}
	for i, t := range s.Teams {
		t.Purchases = maps.Clone(t.Purchases)
		c.Teams[i] = t
	}
	for cat, players := range s.PlayersSnapshot {
		c.PlayersSnapshot[cat] = append([]json.RawMessage{}, players...)
	}
	c.Normalize()
	return c
}

// Public is a copy safe to hand to team and listener connections.
func (s State) Public() State {
	c := s.Clone()
	for i := range c.Teams {
		c.Teams[i].Password = ""
	}
	return c
}

func (s State) Roster() []TeamRef {
	refs := make([]TeamRef, 0, len(s.Teams))
	for _, t := range s.Teams {
		refs = append(refs, TeamRef{ID: t.ID, Name: t.Name})
	}
	return refs
}

func (s State) FindTeam(id string) (*Team, bool) {
	for i := range s.Teams {
		if s.Teams[i].ID == id {
			return &s.Teams[i], true
		}
	}
	return nil, false
}

// SoldPlayers is the set of player names owned by any team in any category.
// It is derived from the purchases every time, so it cannot drift.
func (s State) SoldPlayers() map[string]struct{} {
	sold := make(map[string]struct{})
	for _, t := range s.Teams {
		for _, name := range t.Purchases {
			if name != "" {
				sold[name] = struct{}{}
			}
		}
	}
	return sold
}

func (s State) IsSold(name string) bool {
	_, ok := s.SoldPlayers()[name]
	return ok
}

// CheckInvariants reports the first ledger invariant that does not hold.
func CheckInvariants(s State) error {
	owners := make(map[string]string)
	for _, t := range s.Teams {
		if t.Purse < 0 {
			return fmt.Errorf("%w: team %s purse %v is negative", ErrInvariant, t.ID, t.Purse)
		}
		for cat, name := range t.Purchases {
			if name == "" {
				continue
			}
			if other, dup := owners[name]; dup {
				return fmt.Errorf("%w: player %q owned by %s and %s", ErrInvariant, name, other, t.ID)
			}
			owners[name] = t.ID
			if _, ok := s.SoldPrices[Key(cat, name)]; !ok {
				return fmt.Errorf("%w: purchase %s has no sold price", ErrInvariant, Key(cat, name))
			}
		}
	}

	for key := range s.SoldPrices {
		if !ownedBy(s, key) {
			return fmt.Errorf("%w: sold price %s has no owner", ErrInvariant, key)
		}
	}
	for key := range s.ActiveBids {
		if _, sold := s.SoldPrices[key]; sold {
			return fmt.Errorf("%w: active bid on sold player %s", ErrInvariant, key)
		}
	}
	return nil
}

func ownedBy(s State, key PlayerKey) bool {
	for _, t := range s.Teams {
		if name, ok := t.Purchases[key.Category]; ok && name == key.Name {
			return true
		}
	}
	return false
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
