// Package payout implements the Payout Dispatcher (spec §4.6): the
// Payout Worker task that resolves a winner's lightning-address, obtains
// a payout invoice, pays it, and records the result. Grounded on the
// teacher's internal/modules/wallet withdrawal-worker shape (take
// ownership of a credit, call out to an external payment rail, record a
// terminal outcome), generalized from an internal ledger transfer to an
// LNURL-pay round trip plus a Lightning payment.
package payout

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/lightning"
	"github.com/nostrdice/nostrdice/internal/lnaddress"
	"github.com/nostrdice/nostrdice/internal/relay"
	"github.com/nostrdice/nostrdice/pkg/logger"
)

// NIP-57 zap-receipt kind, published after a successful payout.
const kindZapReceipt = 9735

// maxPayAttempts bounds step 3's retry policy (spec §4.6 step 5): only
// SendPaymentSync itself is retried, not lightning-address resolution.
const maxPayAttempts = 3

// Dispatcher is the Payout Worker task of spec §5.
type Dispatcher struct {
	bets     domain.BetStore
	relay    relay.Client
	resolver *lnaddress.Resolver
	node     lightning.Client
}

func New(bets domain.BetStore, relayClient relay.Client, resolver *lnaddress.Resolver, node lightning.Client) *Dispatcher {
	return &Dispatcher{bets: bets, relay: relayClient, resolver: resolver, node: node}
}

// Run drains paymentHash values enqueued by the Roll & Settlement Engine
// and dispatches each payout, until ctx is cancelled or payoutCh closes.
func (d *Dispatcher) Run(ctx context.Context, payoutCh <-chan [32]byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case hash, ok := <-payoutCh:
			if !ok {
				return
			}
			hctx := logger.WithPaymentHash(ctx, hex.EncodeToString(hash[:]))
			if err := d.Dispatch(hctx, hash); err != nil {
				logger.Error(hctx).Err(err).Msg("payout dispatch failed")
			}
		}
	}
}

// RecoverInFlight re-enqueues every bet left in Paying from a prior
// process lifetime (spec §4.6 step 6), called once at startup before Run
// begins draining new payouts.
func (d *Dispatcher) RecoverInFlight(ctx context.Context, payoutCh chan<- [32]byte) error {
	bets, err := d.bets.ListBetsInState(ctx, domain.Paying)
	if err != nil {
		return fmt.Errorf("payout: list in-flight bets: %w", err)
	}
	for _, b := range bets {
		select {
		case payoutCh <- b.PaymentHash:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// Dispatch implements spec §4.6 steps 1-4 for a single RolledWon bet.
func (d *Dispatcher) Dispatch(ctx context.Context, paymentHash [32]byte) error {
	ctx = logger.WithPaymentHash(ctx, hex.EncodeToString(paymentHash[:]))

	bet, err := d.bets.GetBet(ctx, paymentHash)
	if err != nil {
		return fmt.Errorf("load bet: %w", err)
	}

	// Re-entering Paying from Paying itself (restart recovery) is not a
	// state transition; only RolledWon -> Paying is. A bet already in
	// Paying from the prior process lifetime skips straight to the
	// idempotent-repay check below.
	if bet.State == domain.RolledWon {
		if err := d.bets.UpdateState(ctx, paymentHash, domain.Paying, nil); err != nil {
			if err == domain.ErrBadTransition {
				return nil
			}
			return fmt.Errorf("transition to Paying: %w", err)
		}
	} else if bet.State != domain.Paying {
		// Already terminal (Paid/PayoutFailed) or in some other state;
		// nothing to do.
		return nil
	}

	payoutInvoice := bet.PayoutInvoice
	if payoutInvoice == "" {
		profile, err := d.relay.FetchProfile(ctx, hex.EncodeToString(bet.RollerPubkey[:]))
		if err != nil || profile.LightningAddr == "" {
			return d.fail(ctx, paymentHash, fmt.Errorf("resolve profile: %w", err))
		}

		invoice, err := d.resolver.Resolve(ctx, profile.LightningAddr, bet.PayoutMsat)
		if err != nil {
			return d.fail(ctx, paymentHash, fmt.Errorf("resolve lightning-address invoice: %w", err))
		}
		payoutInvoice = invoice
		if err := d.bets.UpdateState(ctx, paymentHash, domain.Paying, func(b *domain.Bet) {
			b.PayoutInvoice = invoice
		}); err != nil && err != domain.ErrBadTransition {
			return fmt.Errorf("persist payout invoice: %w", err)
		}
	}

	// Idempotent-repay check (spec §4.6 step 6): before paying, see
	// whether this exact invoice was already paid in a prior attempt or
	// process lifetime.
	if decoded, err := d.node.DecodeInvoice(ctx, payoutInvoice); err == nil {
		if existing, lookupErr := d.node.LookupPayment(ctx, decoded.PaymentHash); lookupErr == nil && existing != nil {
			return d.succeed(ctx, paymentHash, payoutInvoice, existing.Preimage, bet)
		}
	}

	var result lightning.PaymentResult
	var payErr error
	for attempt := 1; attempt <= maxPayAttempts; attempt++ {
		result, payErr = d.node.SendPaymentSync(ctx, payoutInvoice)
		if payErr == nil {
			break
		}
		logger.Warn(ctx).Err(payErr).Int("attempt", attempt).Msg("payout attempt failed")
		select {
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if payErr != nil {
		return d.fail(ctx, paymentHash, fmt.Errorf("send payment: %w", payErr))
	}

	return d.succeed(ctx, paymentHash, payoutInvoice, result.Preimage, bet)
}

func (d *Dispatcher) succeed(ctx context.Context, paymentHash [32]byte, invoice string, preimage [32]byte, bet *domain.Bet) error {
	if err := d.bets.UpdateState(ctx, paymentHash, domain.Paid, func(b *domain.Bet) {
		b.PayoutInvoice = invoice
		b.PayoutPreimage = hex.EncodeToString(preimage[:])
	}); err != nil && err != domain.ErrBadTransition {
		return fmt.Errorf("transition to Paid: %w", err)
	}

	receipt := relay.Event{
		Kind:      kindZapReceipt,
		Content:   "",
		CreatedAt: time.Now().Unix(),
		Tags: [][]string{
			{"bolt11", invoice},
			{"preimage", hex.EncodeToString(preimage[:])},
			{"description", bet.ZapRequestJSON},
			{"p", hex.EncodeToString(bet.RollerPubkey[:])},
		},
	}
	if _, err := d.relay.Publish(ctx, receipt); err != nil {
		logger.Warn(ctx).Err(err).Msg("zap receipt publish failed")
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, paymentHash [32]byte, cause error) error {
	logger.Error(ctx).Err(cause).Msg("payout failed, operator intervention required")
	if err := d.bets.UpdateState(ctx, paymentHash, domain.PayoutFailed, nil); err != nil && err != domain.ErrBadTransition {
		return fmt.Errorf("transition to PayoutFailed: %w", err)
	}
	return nil
}
