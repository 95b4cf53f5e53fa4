package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")
var ErrMalformedKey = errors.New("malformed player key")
var ErrInvalidCategoryID = errors.New("category id cannot contain ':'")

// Amount is a purse, bid or sale price. The browser client sends numbers
// and numeric strings interchangeably, so both decode.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, b)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
		f, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, f)
	}
	*a = Amount(f)
	return nil
}

// PlayerKey identifies a player within a category. On disk and on the wire
// it is the string "<category>:<name>"; the category part ends at the first
// colon, so category ids must not contain one.
type PlayerKey struct {
	Category string
	Name     string
}

// ValidCategoryID reports whether id can be the category half of a key.
func ValidCategoryID(id string) bool { return !strings.Contains(id, ":") }

func Key(category, name string) PlayerKey {
	return PlayerKey{Category: category, Name: name}
}

func (k PlayerKey) String() string { return k.Category + ":" + k.Name }

func (k PlayerKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PlayerKey) UnmarshalText(b []byte) error {
	cat, name, ok := strings.Cut(string(b), ":")
	if !ok {
		return fmt.Errorf("%w: %q", ErrMalformedKey, b)
	}
	k.Category = cat
	k.Name = name
	return nil
}

type Team struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Purse     Amount            `json:"purse"`
	Password  string            `json:"password"`
	Purchases map[string]string `json:"purchases"` // category id -> player name
}

// UnmarshalJSON takes id and password as a string or a number; the admin
// page sends whichever the operator typed.
func (t *Team) UnmarshalJSON(b []byte) error {
	type plain Team
	var aux struct {
		plain
		ID       json.RawMessage `json:"id"`
		Password json.RawMessage `json:"password"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return fmt.Errorf("decoding team: %w", err)
	}
	id, err := DecodeID(aux.ID)
	if err != nil {
		return fmt.Errorf("decoding team id: %w", err)
	}
	password, err := DecodeID(aux.Password)
	if err != nil {
		return fmt.Errorf("decoding team password: %w", err)
	}
	*t = Team(aux.plain)
	t.ID = id
	t.Password = password
	return nil
}

// TeamRef is the password-free roster entry shown before login.
type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Category carries admin-defined display metadata. Only the id is
// interpreted; everything else round-trips untouched.
type Category struct {
	ID  string
	raw json.RawMessage
}

func NewCategory(id, name string) Category {
	raw, _ := json.Marshal(struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}{id, name})
	return Category{ID: id, raw: raw}
}

func (c Category) MarshalJSON() ([]byte, error) {
	if len(c.raw) == 0 {
		return json.Marshal(struct {
			ID string `json:"id"`
		}{c.ID})
	}
	return c.raw, nil
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return fmt.Errorf("decoding category: %w", err)
	}
	id, err := DecodeID(head.ID)
	if err != nil {
		return fmt.Errorf("decoding category id: %w", err)
	}
	c.ID = id
	c.raw = append(json.RawMessage(nil), b...)
	return nil
}

// DecodeID accepts a JSON string or number and returns its text. Ids minted
// by the browser are sometimes numeric.
func DecodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %s", raw)
	}
	return n.String(), nil
}

// State is the whole auction ledger. It is what gets persisted and what a
// client receives on login and on state:updated.
type State struct {
	Teams           []Team                       `json:"teams"`
	Categories      []Category                   `json:"categories"`
	PlayersSnapshot map[string][]json.RawMessage `json:"playersSnapshot"`
	ActiveBids      map[PlayerKey]Amount         `json:"activeBids"`
	SoldPrices      map[PlayerKey]Amount         `json:"soldPrices"`
	PassRecords     map[string]json.RawMessage   `json:"passRecords"`
}
