package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store lookups that find nothing, so callers
// can distinguish "absent" from a genuine infrastructure error.
var ErrNotFound = errors.New("domain: not found")

// ErrAlreadyExists is returned by put_bet when a payment_hash collides.
var ErrAlreadyExists = errors.New("domain: already exists")

// ErrBadTransition is returned by UpdateState when the current state is
// not an allowed predecessor of the requested state.
var ErrBadTransition = errors.New("domain: bad state transition")

// BetStore is the durable, single-writer-safe store described in spec §4.1.
// Implementations must serialize NextIndex with the subsequent PutBet for
// the same (rollerPubkey, nonceCommitEventID) pair (spec §5).
type BetStore interface {
	// NextIndexAndPut atomically computes the next index for
	// (rollerPubkey, nonceCommitEventID), sets bet.Index, then invokes
	// prepare (if non-nil) with that index before persisting bet. prepare
	// runs inside the same critical section that assigned the index, so a
	// caller that needs the index to build something else (an invoice
	// description committing to it) can do so without a second,
	// independently-racing read of the bet count. An error from prepare
	// aborts the whole call; nothing is persisted. Returns the assigned
	// index. Fails with ErrAlreadyExists if bet.PaymentHash already exists.
	NextIndexAndPut(ctx context.Context, bet *Bet, prepare func(ctx context.Context, index uint32) error) (uint32, error)
	GetBet(ctx context.Context, paymentHash [32]byte) (*Bet, error)
	// UpdateState performs a CAS-style transition: succeeds only if the
	// bet's current state is an allowed predecessor of newState, or is
	// newState itself (no transition; mutate is still applied).
	UpdateState(ctx context.Context, paymentHash [32]byte, newState BetState, mutate func(*Bet)) error
	ListBetsForRound(ctx context.Context, commitEventID string, stateFilter BetState) ([]Bet, error)
	// ListBetsInState supports restart recovery (e.g. re-enqueuing Paying
	// bets) and the social summary poster (settled-since queries).
	ListBetsInState(ctx context.Context, state BetState) ([]Bet, error)
	ListBetsSettledSince(ctx context.Context, since time.Time) ([]Bet, error)
}

// RoundStore is the nonce-round half of the Bet Store's persisted schema.
type RoundStore interface {
	// PutRound persists a freshly created round (nonce material included)
	// and sets it active. Used only for the very first round at startup,
	// before any predecessor exists to expire.
	PutRound(ctx context.Context, round *Round) error
	GetRound(ctx context.Context, commitEventID string) (*Round, error)
	// RotateRound atomically expires the currently-active round and
	// installs next as the new active round, in a single transaction, so
	// readers never observe two active rounds (spec §4.3/§5).
	RotateRound(ctx context.Context, expiringID string, next *Round) error
	// MarkRevealed transitions a round to Revealed and records the reveal
	// event id. It does not move the latest-expired-nonce pointer; that
	// pointer is set by RotateRound when the round expires.
	MarkRevealed(ctx context.Context, commitEventID, revealEventID string) error
	GetActiveRound(ctx context.Context) (*Round, error)
	GetLatestExpiredRound(ctx context.Context) (*Round, error)
}
