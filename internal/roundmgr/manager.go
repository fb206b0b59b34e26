// Package roundmgr implements the Nonce Round Manager (spec §4.3): the
// timer-driven task that generates nonces, publishes commitments, expires
// rounds, and reveals nonces. Grounded on the teacher's
// internal/modules/color_game/gms/machine.StateMachine Start/runRound
// timer-loop shape, generalized from fixed game phases to the commit-
// reveal round lifecycle described in original_source/src/nonce.rs.
package roundmgr

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/relay"
	"github.com/nostrdice/nostrdice/pkg/logger"
)

// kindTextNote is Nostr's "short text note" kind, used for both round
// announcements and reveals.
const kindTextNote = 1

// maxPublishAttempts bounds the relay-publish retry policy spec §4.3
// requires ("tolerate publication failures to the event relay by retry
// with bounded backoff"), mirroring the backoff shape
// internal/payout/dispatcher.go already uses for SendPaymentSync.
const maxPublishAttempts = 3

// publishWithRetry calls publish up to maxPublishAttempts times with linear
// backoff between attempts, returning the last error if every attempt
// fails. ctx should already carry the round id via logger.WithRoundID so
// each attempt's warning is scoped to the round it's publishing for.
func publishWithRetry(ctx context.Context, publish func() error) error {
	var err error
	for attempt := 1; attempt <= maxPublishAttempts; attempt++ {
		if err = publish(); err == nil {
			return nil
		}
		logger.Warn(ctx).Err(err).Int("attempt", attempt).Msg("relay publish failed")
		if attempt == maxPublishAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Manager runs the single long-lived Round Timer task described in spec
// §5. One Manager per process; GetActiveRound is safe for concurrent use
// by the Zap Ingestor.
type Manager struct {
	store domain.RoundStore
	relay relay.Client

	expireAfter time.Duration
	revealAfter time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(store domain.RoundStore, relayClient relay.Client, expireAfter, revealAfter time.Duration) *Manager {
	return &Manager{
		store:       store,
		relay:       relayClient,
		expireAfter: expireAfter,
		revealAfter: revealAfter,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// GetActiveRound is used by the Zap Ingestor to learn the current round's
// commit event id and nonce commitment at bet-creation time (spec §4.4
// step 3).
func (m *Manager) GetActiveRound(ctx context.Context) (domain.Round, error) {
	r, err := m.store.GetActiveRound(ctx)
	if err != nil {
		return domain.Round{}, err
	}
	return *r, nil
}

// Stop requests a clean shutdown. Per spec §5, "the round timer is
// non-cancellable mid-tick; clean shutdown waits for the current tick to
// complete" — Stop only takes effect between ticks.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

// Start performs crash recovery and then runs the round-rotation loop
// until Stop is called or ctx is cancelled. Intended to be run in its own
// goroutine by cmd/nostrdice.
func (m *Manager) Start(ctx context.Context) error {
	defer close(m.doneCh)

	current, err := m.recover(ctx)
	if err != nil {
		return fmt.Errorf("roundmgr: startup recovery: %w", err)
	}

	for {
		wait := time.Until(current.ExpireDeadline())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-m.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		next, err := m.rotate(ctx, current)
		if err != nil {
			logger.Error(logger.WithRoundID(ctx, current.CommitEventID)).Err(err).Msg("round rotation failed")
			// Back off briefly rather than busy-looping against a
			// persistently failing store/relay; the next loop iteration
			// retries the same rotation attempt.
			select {
			case <-time.After(time.Second):
			case <-m.stopCh:
				return nil
			case <-ctx.Done():
				return nil
			}
			continue
		}
		current = next
	}
}

// recover implements spec §4.3's startup behavior: create the genesis
// round if none is active; catch up any round whose expire or reveal
// deadline already passed while the process was down (mirrors
// original_source/src/nonce.rs's unset_active_nonce + reveal-on-startup
// recovery).
func (m *Manager) recover(ctx context.Context) (domain.Round, error) {
	active, err := m.store.GetActiveRound(ctx)
	if err == domain.ErrNotFound {
		genesis, genErr := m.createAndPersist(ctx)
		if genErr != nil {
			return domain.Round{}, genErr
		}
		if putErr := m.store.PutRound(ctx, &genesis); putErr != nil {
			return domain.Round{}, putErr
		}
		gctx := logger.WithRoundID(ctx, genesis.CommitEventID)
		if pubErr := publishWithRetry(gctx, func() error { return m.announce(ctx, genesis) }); pubErr != nil {
			logger.Error(gctx).Err(pubErr).Msg("genesis round announcement publish failed after retries")
		}
		active = &genesis
	} else if err != nil {
		return domain.Round{}, err
	} else if !time.Now().Before(active.ExpireDeadline()) {
		rotated, rotErr := m.rotate(ctx, *active)
		if rotErr != nil {
			return domain.Round{}, rotErr
		}
		active = &rotated
	}

	if expired, err := m.store.GetLatestExpiredRound(ctx); err == nil && expired.Status == domain.RoundExpired {
		if !time.Now().Before(expired.RevealDeadline()) {
			ectx := logger.WithRoundID(ctx, expired.CommitEventID)
			if err := publishWithRetry(ectx, func() error { return m.reveal(ctx, *expired) }); err != nil {
				logger.Error(ectx).Err(err).Msg("catch-up reveal failed after retries")
			}
		} else {
			go m.scheduleReveal(ctx, *expired)
		}
	}

	return *active, nil
}

// rotate expires the current round and installs a freshly generated one
// as active, atomically (spec §4.3/§5), then schedules the just-expired
// round's independent reveal-after timer.
func (m *Manager) rotate(ctx context.Context, expiring domain.Round) (domain.Round, error) {
	next, err := m.createAndPersist(ctx)
	if err != nil {
		return domain.Round{}, err
	}

	if err := m.store.RotateRound(ctx, expiring.CommitEventID, &next); err != nil {
		return domain.Round{}, err
	}

	nctx := logger.WithRoundID(ctx, next.CommitEventID)
	if err := publishWithRetry(nctx, func() error { return m.announce(ctx, next) }); err != nil {
		logger.Error(nctx).Err(err).Msg("round announcement publish failed after retries")
	}

	go m.scheduleReveal(ctx, expiring)

	return next, nil
}

// scheduleReveal waits until round's reveal deadline and then reveals it.
// Runs in its own goroutine since reveal-after >= expire-after means a
// round's reveal will typically fire while the *next* round is already
// active — it must not block the rotation loop.
func (m *Manager) scheduleReveal(ctx context.Context, round domain.Round) {
	wait := time.Until(round.RevealDeadline())
	if wait < 0 {
		wait = 0
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return
	case <-m.stopCh:
		return
	}
	rctx := logger.WithRoundID(ctx, round.CommitEventID)
	if err := publishWithRetry(rctx, func() error { return m.reveal(ctx, round) }); err != nil {
		logger.Error(rctx).Err(err).Msg("nonce reveal failed after retries")
	}
}

// createAndPersist generates a fresh nonce/commitment pair and signs (but
// does not yet publish) its announcement event, so the returned Round's
// CommitEventID is already known and can be durably persisted before the
// announcement becomes externally observable (spec §4.1).
func (m *Manager) createAndPersist(ctx context.Context) (domain.Round, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return domain.Round{}, fmt.Errorf("roundmgr: generate nonce: %w", err)
	}
	commitment := sha256.Sum256(nonce[:])

	unsigned := relay.Event{
		Kind:      kindTextNote,
		Content:   "New nonce commitment published.",
		CreatedAt: time.Now().Unix(),
		Tags: [][]string{
			{"sha256", hex.EncodeToString(commitment[:])},
		},
	}
	signed, err := m.relay.Sign(ctx, unsigned)
	if err != nil {
		return domain.Round{}, fmt.Errorf("roundmgr: sign announcement: %w", err)
	}

	return domain.Round{
		CommitEventID: signed.ID,
		NonceBytes:    nonce,
		Commitment:    commitment,
		Status:        domain.RoundActive,
		CreatedAt:     time.Now(),
		ExpireAfter:   m.expireAfter,
		RevealAfter:   m.revealAfter,
	}, nil
}

func (m *Manager) announce(ctx context.Context, round domain.Round) error {
	_, err := m.relay.Publish(ctx, relay.Event{
		ID:        round.CommitEventID,
		Kind:      kindTextNote,
		Content:   "New nonce commitment published.",
		CreatedAt: round.CreatedAt.Unix(),
		Tags: [][]string{
			{"sha256", hex.EncodeToString(round.Commitment[:])},
		},
	})
	return err
}

// reveal publishes the nonce preimage and marks the round Revealed. The
// reveal text note carries an "e" tag (mention marker) referencing the
// original announcement event, per spec §6.
func (m *Manager) reveal(ctx context.Context, round domain.Round) error {
	content := fmt.Sprintf("Nonce reveal: %s", hex.EncodeToString(round.NonceBytes[:]))
	eventID, err := m.relay.Publish(ctx, relay.Event{
		Kind:      kindTextNote,
		Content:   content,
		CreatedAt: time.Now().Unix(),
		Tags: [][]string{
			{"e", round.CommitEventID, "", "mention"},
		},
	})
	if err != nil {
		return err
	}
	return m.store.MarkRevealed(ctx, round.CommitEventID, eventID)
}
