// Package postgres keeps the auction ledger in a single-row Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/store"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const ledgerRowID = 1

type snapshotRow struct {
	ID        int       `gorm:"primaryKey;autoIncrement:false"`
	Data      []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (snapshotRow) TableName() string { return "auction_snapshots" }

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects and makes sure the snapshot table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrating auction_snapshots: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context) (engine.State, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).First(&row, ledgerRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, store.ErrNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("loading ledger row: %w", err)
	}
	return store.Decode(row.Data)
}

func (s *Store) Save(ctx context.Context, st engine.State) error {
	data, err := store.Encode(st)
	if err != nil {
		return err
	}
	row := snapshotRow{ID: ledgerRowID, Data: data, UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving ledger row: %w", err)
	}
	return nil
}

// Ping backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
