// Package social implements the Social Summary Poster (SPEC_FULL.md
// §4.10), a supplemental feature present in
// original_source/src/social_updates.rs but dropped from the
// distillation: a periodic public digest of recent winners and losers.
// Purely cosmetic — it never touches bet state.
package social

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/multiplier"
	"github.com/nostrdice/nostrdice/internal/relay"
	"github.com/nostrdice/nostrdice/pkg/logger"
)

const kindTextNote = 1

// Poster runs the optional periodic summary task.
type Poster struct {
	bets     domain.BetStore
	registry *multiplier.Registry
	relay    relay.Client
	interval time.Duration
}

// New builds a Poster. interval <= 0 means the feature is disabled
// (SPEC_FULL.md §4.10: "Disabled if --social-interval=0").
func New(bets domain.BetStore, registry *multiplier.Registry, relayClient relay.Client, interval time.Duration) *Poster {
	return &Poster{bets: bets, registry: registry, relay: relayClient, interval: interval}
}

// Run posts a summary every interval until ctx is cancelled. No-op if the
// poster was built with interval <= 0.
func (p *Poster) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := p.postSince(ctx, last, now); err != nil {
				logger.ErrorGlobal().Err(err).Msg("could not post social update")
			}
			last = now
		}
	}
}

func (p *Poster) postSince(ctx context.Context, since, now time.Time) error {
	bets, err := p.bets.ListBetsSettledSince(ctx, since)
	if err != nil {
		return fmt.Errorf("social: list settled bets: %w", err)
	}

	var winners, losers []domain.Bet
	for _, b := range bets {
		switch b.State {
		case domain.Paid, domain.RolledWon, domain.Paying:
			winners = append(winners, b)
		case domain.RolledLost:
			losers = append(losers, b)
		}
	}

	if len(winners) == 0 {
		logger.DebugGlobal().Msg("no winners in this window, not posting a social update")
		return nil
	}

	msg := buildMessage(winners, losers, p.registry)
	_, err = p.relay.Publish(ctx, relay.Event{
		Kind:      kindTextNote,
		Content:   msg,
		CreatedAt: now.Unix(),
	})
	return err
}

func buildMessage(winners, losers []domain.Bet, registry *multiplier.Registry) string {
	total := len(winners) + len(losers)
	var b strings.Builder
	fmt.Fprintf(&b, "Winner winner, chicken dinner! Thank you to everyone who played in the last window. Out of %d participants, %d of you won some sweet sats. Congrats!\n", total, len(winners))

	b.WriteString("Winners:\n")
	for _, bet := range winners {
		factor := "?"
		if m, ok := registry.Lookup(bet.MultiplierNoteID); ok {
			factor = m.Factor.String()
		}
		fmt.Fprintf(&b, "- nostr:%s: won %sx %dsats\n", hex.EncodeToString(bet.RollerPubkey[:]), factor, bet.AmountMsat/1000)
	}

	if len(losers) > 0 {
		b.WriteString("Losers - please try again:\n")
		for _, bet := range losers {
			fmt.Fprintf(&b, "- nostr:%s\n", hex.EncodeToString(bet.RollerPubkey[:]))
		}
	}

	return b.String()
}
