// Package sqlitestore implements the Bet Store (spec §4.1) and the
// nonce-round half of the persisted schema (spec §4.1/§4.3) against an
// embedded SQLite database via GORM, matching the single-process,
// single-writer deployment model spec §5 requires.
package sqlitestore

import (
	"sync"
	"time"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Store implements both domain.BetStore and domain.RoundStore. All
// mutating operations funnel through mu, matching the teacher's
// mutex-guarded in-memory repository discipline generalized to a durable
// backend (spec §5: "all mutators go through the store's operations").
type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

// New opens (creating if absent) a SQLite database at path and migrates
// the schema. path may be ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.NewGormLogger(),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite is single-writer regardless; cap the pool so concurrent
	// readers don't pile up against the one writable connection.
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&domain.Bet{},
		&domain.Round{},
		&activeRoundPointer{},
		&latestExpiredRoundPointer{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}
