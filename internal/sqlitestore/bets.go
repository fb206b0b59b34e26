package sqlitestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nostrdice/nostrdice/internal/domain"
	"gorm.io/gorm"
)

// NextIndexAndPut implements spec §4.1/§4.4/§5: next_index and put_bet are
// serialized by mu so that index assignment for a given
// (rollerPubkey, nonceCommitEventID) pair stays dense and gap-free even
// under concurrent zap ingestion. prepare runs between the count and the
// insert, still under mu, so a caller needing the assigned index to build
// something else (an invoice whose description commits to it) does so
// inside the very critical section that assigned it rather than against a
// second, independent count.
func (s *Store) NextIndexAndPut(ctx context.Context, bet *domain.Bet, prepare func(ctx context.Context, index uint32) error) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.Bet{}).
		Where("roller_pubkey = ? AND nonce_commit_event_id = ?", bet.RollerPubkey[:], bet.NonceCommitEventID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	index := uint32(count)
	bet.Index = index

	if prepare != nil {
		if err := prepare(ctx, index); err != nil {
			return 0, err
		}
	}

	if err := s.db.WithContext(ctx).Create(bet).Error; err != nil {
		if isUniqueConstraintErr(err) {
			return 0, domain.ErrAlreadyExists
		}
		return 0, err
	}
	return index, nil
}

func (s *Store) GetBet(ctx context.Context, paymentHash [32]byte) (*domain.Bet, error) {
	var bet domain.Bet
	err := s.db.WithContext(ctx).Where("payment_hash = ?", paymentHash[:]).First(&bet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bet, nil
}

// UpdateState performs the CAS-style transition from spec §4.1. If the bet
// is already in newState, no transition happens and the call succeeds
// rather than erroring (spec §8's idempotence law for replayed settle
// notifications); mutate, if non-nil, is still applied and saved, so a
// caller can record fields on a bet without moving its state.
func (s *Store) UpdateState(ctx context.Context, paymentHash [32]byte, newState domain.BetState, mutate func(*domain.Bet)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bet domain.Bet
		if err := tx.Where("payment_hash = ?", paymentHash[:]).First(&bet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		if bet.State == newState {
			if mutate == nil {
				return nil
			}
			mutate(&bet)
			return tx.Save(&bet).Error
		}
		if !domain.CanTransition(bet.State, newState) {
			return domain.ErrBadTransition
		}

		bet.State = newState
		if mutate != nil {
			mutate(&bet)
		}
		return tx.Save(&bet).Error
	})
}

func (s *Store) ListBetsForRound(ctx context.Context, commitEventID string, stateFilter domain.BetState) ([]domain.Bet, error) {
	var bets []domain.Bet
	q := s.db.WithContext(ctx).Where("nonce_commit_event_id = ?", commitEventID)
	if stateFilter != "" {
		q = q.Where("state = ?", stateFilter)
	}
	if err := q.Find(&bets).Error; err != nil {
		return nil, err
	}
	return bets, nil
}

func (s *Store) ListBetsInState(ctx context.Context, state domain.BetState) ([]domain.Bet, error) {
	var bets []domain.Bet
	if err := s.db.WithContext(ctx).Where("state = ?", state).Find(&bets).Error; err != nil {
		return nil, err
	}
	return bets, nil
}

func (s *Store) ListBetsSettledSince(ctx context.Context, since time.Time) ([]domain.Bet, error) {
	var bets []domain.Bet
	if err := s.db.WithContext(ctx).
		Where("settled_at IS NOT NULL AND settled_at >= ?", since).
		Find(&bets).Error; err != nil {
		return nil, err
	}
	return bets, nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}
