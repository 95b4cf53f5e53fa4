package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/auction-backend/internal/engine"
	"go.uber.org/zap"
)

// ErrNotFound means nothing has been persisted yet.
var ErrNotFound = errors.New("no persisted ledger")

// Store persists the whole ledger as one document.
type Store interface {
	Load(ctx context.Context) (engine.State, error)
	Save(ctx context.Context, s engine.State) error
	Close() error
}

// Encode renders the on-disk snapshot format.
func Encode(s engine.State) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ledger: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (engine.State, error) {
	var s engine.State
	if err := json.Unmarshal(b, &s); err != nil {
		return engine.State{}, fmt.Errorf("decoding ledger: %w", err)
	}
	s.Normalize()
	return s, nil
}

// LoadOrBootstrap returns the persisted ledger, or the bootstrap ledger
// when there is none or it cannot be read.
func LoadOrBootstrap(ctx context.Context, st Store, log *zap.Logger) engine.State {
	s, err := st.Load(ctx)
	switch {
	case err == nil:
		log.Info("loaded persisted ledger",
			zap.Int("teams", len(s.Teams)),
			zap.Int("categories", len(s.Categories)),
			zap.Int("sold", len(s.SoldPrices)),
		)
		if err := engine.CheckInvariants(s); err != nil {
			log.Warn("persisted ledger is inconsistent", zap.Error(err))
		}
		return s
	case errors.Is(err, ErrNotFound):
		log.Info("no persisted ledger, starting from defaults")
	default:
		log.Warn("failed to load persisted ledger, starting from defaults", zap.Error(err))
	}
	return engine.NewDefaultState()
}
