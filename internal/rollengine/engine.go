// Package rollengine implements the Roll & Settlement Engine (spec §4.5):
// the Payment-Settle Listener task that classifies paid bets, computes
// rolls, decides win/lose, and hands winners to the Payout Dispatcher.
// Grounded on the teacher's internal/modules/color_game settlement
// handler (subscribe to a payment/result feed, CAS the domain object's
// state, fan winners out to a downstream worker), generalized from a
// single-shot game result to the commit-reveal roll computation.
package rollengine

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/lightning"
	"github.com/nostrdice/nostrdice/internal/multiplier"
	"github.com/nostrdice/nostrdice/pkg/logger"
)

// Engine is the Payment-Settle Listener task of spec §5.
type Engine struct {
	bets     domain.BetStore
	rounds   domain.RoundStore
	registry *multiplier.Registry
	node     lightning.Client
	payoutCh chan<- [32]byte
}

func New(bets domain.BetStore, rounds domain.RoundStore, registry *multiplier.Registry, node lightning.Client, payoutCh chan<- [32]byte) *Engine {
	return &Engine{bets: bets, rounds: rounds, registry: registry, node: node, payoutCh: payoutCh}
}

// Run subscribes to settlement notifications and processes each one until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	settled, err := e.node.SubscribeInvoices(ctx)
	if err != nil {
		return fmt.Errorf("rollengine: subscribe invoices: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-settled:
			if !ok {
				return nil
			}
			hctx := logger.WithPaymentHash(ctx, fmt.Sprintf("%x", s.PaymentHash))
			if err := e.HandleSettled(hctx, s.PaymentHash); err != nil {
				logger.Error(hctx).Err(err).Msg("settle handling failed")
			}
		}
	}
}

// HandleSettled implements spec §4.5 steps 1-6 for a single settled
// invoice. Safe to call repeatedly with the same paymentHash: replays
// against an already-processed bet are a documented no-op (spec §8).
func (e *Engine) HandleSettled(ctx context.Context, paymentHash [32]byte) error {
	ctx = logger.WithPaymentHash(ctx, fmt.Sprintf("%x", paymentHash))
	now := time.Now()
	err := e.bets.UpdateState(ctx, paymentHash, domain.PaidUnrolled, func(b *domain.Bet) {
		b.SettledAt = &now
	})
	switch {
	case err == domain.ErrNotFound:
		// Settlement for a payment hash we never issued an invoice for;
		// nothing to do.
		return nil
	case err == domain.ErrBadTransition:
		// Bet has already advanced past PaidUnrolled from an earlier
		// delivery of this same notification. Idempotent no-op.
		return nil
	case err != nil:
		return fmt.Errorf("transition to PaidUnrolled: %w", err)
	}

	bet, err := e.bets.GetBet(ctx, paymentHash)
	if err != nil {
		return fmt.Errorf("reload bet: %w", err)
	}

	// Now that PaidUnrolled is durable, release the held HTLC and
	// irrevocably capture the player's payment (spec §4.1's
	// durable-before-observable rule motivates doing this only after the
	// state write above lands, never before). Safe to repeat: memnode and
	// a real hold-invoice-backed node both treat settling an
	// already-settled invoice as a no-op.
	if err := e.settleHoldInvoice(ctx, bet); err != nil {
		return fmt.Errorf("settle hold invoice: %w", err)
	}

	// bet.State may already be past PaidUnrolled here if a previous call
	// crashed after the transition above but before reaching this point
	// on a prior delivery; roll computation is pure and safe to redo, but
	// the subsequent UpdateState calls below will no-op correctly either
	// way.
	rctx := logger.WithRoundID(ctx, bet.NonceCommitEventID)
	round, err := e.rounds.GetRound(ctx, bet.NonceCommitEventID)
	if err == domain.ErrNotFound {
		logger.Error(rctx).Msg("protocol integrity fault: nonce missing for settled bet")
		return e.bets.UpdateState(ctx, paymentHash, domain.UnresolvedNonceExpired, nil)
	}
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}

	mult, ok := e.registry.Lookup(bet.MultiplierNoteID)
	if !ok {
		logger.Error(ctx).Str("multiplier", bet.MultiplierNoteID).Msg("protocol integrity fault: multiplier note missing from registry at settle time")
		return fmt.Errorf("multiplier %s not found", bet.MultiplierNoteID)
	}

	roll := Roll(round.NonceBytes, bet.RollerPubkey, []byte(bet.Memo), bet.Index)
	won := mult.Won(roll)

	if !won {
		return e.bets.UpdateState(ctx, paymentHash, domain.RolledLost, nil)
	}

	payoutMsat := mult.PayoutMsat(bet.AmountMsat)
	if err := e.bets.UpdateState(ctx, paymentHash, domain.RolledWon, func(b *domain.Bet) {
		b.PayoutMsat = payoutMsat
	}); err != nil {
		if err == domain.ErrBadTransition {
			return nil
		}
		return fmt.Errorf("transition to RolledWon: %w", err)
	}

	select {
	case e.payoutCh <- paymentHash:
	case <-ctx.Done():
	}
	return nil
}

// settleHoldInvoice decodes bet's stored preimage and calls SettleInvoice,
// the spec §6 operation that actually captures the player's payment. The
// preimage was generated and persisted by the Zap Ingestor at
// AddHoldInvoice time (spec §4.4 step 4), not by the lightning node, so no
// round trip to the node is needed to learn it.
func (e *Engine) settleHoldInvoice(ctx context.Context, bet *domain.Bet) error {
	b, err := hex.DecodeString(bet.InvoicePreimage)
	if err != nil || len(b) != 32 {
		return fmt.Errorf("decode invoice preimage: %w", err)
	}
	var preimage [32]byte
	copy(preimage[:], b)
	return e.node.SettleInvoice(ctx, preimage)
}
