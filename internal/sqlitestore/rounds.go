package sqlitestore

import (
	"context"
	"errors"

	"github.com/nostrdice/nostrdice/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PutRound persists a freshly created round and installs it as active.
// Used only at the very first round of a server's lifetime (spec §4.3:
// "On startup: if no active round exists, create one immediately").
func (s *Store) PutRound(ctx context.Context, round *domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(round).Error; err != nil {
			return err
		}
		return upsertPointer(tx, &activeRoundPointer{ID: 1, CommitEventID: round.CommitEventID})
	})
}

func (s *Store) GetRound(ctx context.Context, commitEventID string) (*domain.Round, error) {
	var round domain.Round
	err := s.db.WithContext(ctx).Where("commit_event_id = ?", commitEventID).First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// RotateRound implements the "single atomic update of the active-nonce
// pointer" required by spec §4.3/§5: expire the outgoing round, persist
// the incoming one, and swap the active pointer, all inside one
// transaction so readers never observe two active rounds or zero.
func (s *Store) RotateRound(ctx context.Context, expiringID string, next *domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Round{}).
			Where("commit_event_id = ?", expiringID).
			Update("status", domain.RoundExpired).Error; err != nil {
			return err
		}
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		if err := upsertPointer(tx, &activeRoundPointer{ID: 1, CommitEventID: next.CommitEventID}); err != nil {
			return err
		}
		return upsertPointer(tx, &latestExpiredRoundPointer{ID: 1, CommitEventID: expiringID})
	})
}

// MarkRevealed implements the terminal Expired -> Revealed transition of
// spec §4.3: record the reveal event id and flip status.
func (s *Store) MarkRevealed(ctx context.Context, commitEventID, revealEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Model(&domain.Round{}).
		Where("commit_event_id = ?", commitEventID).
		Updates(map[string]any{
			"status":          domain.RoundRevealed,
			"reveal_event_id": revealEventID,
		}).Error
}

func (s *Store) GetActiveRound(ctx context.Context) (*domain.Round, error) {
	var ptr activeRoundPointer
	if err := s.db.WithContext(ctx).First(&ptr, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s.GetRound(ctx, ptr.CommitEventID)
}

func (s *Store) GetLatestExpiredRound(ctx context.Context) (*domain.Round, error) {
	var ptr latestExpiredRoundPointer
	if err := s.db.WithContext(ctx).First(&ptr, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s.GetRound(ctx, ptr.CommitEventID)
}

func upsertPointer[T any](tx *gorm.DB, row *T) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}
