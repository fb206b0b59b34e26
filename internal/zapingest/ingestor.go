// Package zapingest implements the Zap Ingestor (spec §4.4): watches
// inbound zap requests, validates them against the Multiplier Registry,
// assigns a bet index, requests a hold invoice, and persists the bet.
// Grounded on the teacher's internal/modules/color_game bet-placement
// handler shape (validate request -> consult pricing table -> persist ->
// return a payable artifact), generalized from an internal ledger credit
// check to a Nostr zap request plus a Lightning hold invoice.
package zapingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/lightning"
	"github.com/nostrdice/nostrdice/internal/multiplier"
	"github.com/nostrdice/nostrdice/internal/relay"
	"github.com/nostrdice/nostrdice/pkg/logger"
)

// kindZapRequest is NIP-57's "zap request" event kind.
const kindZapRequest = 9734

// ActiveRoundProvider is the slice of roundmgr.Manager the ingestor needs:
// the round that was active at bet-creation time (spec §3 invariant 2).
type ActiveRoundProvider interface {
	GetActiveRound(ctx context.Context) (domain.Round, error)
}

// Ingestor is the Zap Listener task of spec §5.
type Ingestor struct {
	rounds   ActiveRoundProvider
	registry *multiplier.Registry
	node     lightning.Client
	store    domain.BetStore
}

func New(rounds ActiveRoundProvider, registry *multiplier.Registry, node lightning.Client, store domain.BetStore) *Ingestor {
	return &Ingestor{rounds: rounds, registry: registry, node: node, store: store}
}

// Run drains events from sub and ingests each one, logging and continuing
// on per-event errors (an invalid zap request must never take down the
// listener task).
func (ig *Ingestor) Run(ctx context.Context, sub <-chan relay.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := ig.Ingest(ctx, ev); err != nil {
				logger.Warn(ctx).Err(err).Str("event", ev.ID).Msg("zap request rejected")
			}
		}
	}
}

// Ingest validates one zap-request event and, if valid, records a new
// bet. event must be the kind:9734 zap request itself (not the kind:9735
// receipt, which this server publishes after payout).
func (ig *Ingestor) Ingest(ctx context.Context, event relay.Event) error {
	if event.Kind != kindZapRequest {
		return fmt.Errorf("zapingest: event %s is kind %d, not a zap request", event.ID, event.Kind)
	}

	noteTag := event.Tag("e")
	if len(noteTag) < 2 || noteTag[1] == "" {
		return fmt.Errorf("zapingest: zap request %s missing tipped-note reference", event.ID)
	}
	noteID := noteTag[1]

	// Step 1: reject unknown multiplier notes before touching any other
	// collaborator (spec §4.4 step 1).
	mult, ok := ig.registry.Lookup(noteID)
	if !ok {
		return fmt.Errorf("zapingest: %s is not a registered multiplier note", noteID)
	}

	// Step 2: reject invalid signatures.
	if err := verifySignature(event); err != nil {
		return fmt.Errorf("zapingest: signature check failed: %w", err)
	}

	amountMsat, err := zapAmountMsat(event)
	if err != nil {
		return fmt.Errorf("zapingest: %w", err)
	}

	rollerPubkey, err := decodeHex32(event.PubkeyHex)
	if err != nil {
		return fmt.Errorf("zapingest: malformed tipper pubkey: %w", err)
	}
	ctx = logger.WithRollerPubkey(ctx, event.PubkeyHex)
	memo := event.Content

	// Step 3: read the currently-active round and assign the next index
	// for (roller, round) atomically with the bet insert (spec §4.4
	// steps 3+5, §5 ordering guarantee).
	round, err := ig.rounds.GetActiveRound(ctx)
	if err != nil {
		return fmt.Errorf("zapingest: no active round: %w", err)
	}

	zapJSON, err := json.Marshal(rawEventForStorage(event))
	if err != nil {
		return fmt.Errorf("zapingest: marshal zap request: %w", err)
	}

	bet := &domain.Bet{
		RollerPubkey:       rollerPubkey,
		ZapRequestJSON:     string(zapJSON),
		MultiplierNoteID:   noteID,
		NonceCommitEventID: round.CommitEventID,
		Memo:               memo,
		AmountMsat:         amountMsat,
		State:              domain.AwaitingPayment,
	}

	return ig.place(ctx, bet, round, mult)
}

// place implements steps 3-5 of spec §4.4 as a single atomic critical
// section: NextIndexAndPut assigns the bet's index and, before the row is
// persisted, invokes prepare with that same index to request the hold
// invoice whose description commits to it. Because prepare runs inside
// the same store-held lock that assigned the index, there is no window
// for a second bet to claim the same index between "next_index" and
// "put_bet" (spec §4.4/§5) — unlike computing the index from a separate,
// independent count beforehand.
func (ig *Ingestor) place(ctx context.Context, bet *domain.Bet, round domain.Round, mult domain.Multiplier) error {
	_, err := ig.store.NextIndexAndPut(ctx, bet, func(ctx context.Context, index uint32) error {
		description := BuildDescription(round.Commitment, round.CommitEventID, bet.MultiplierNoteID, bet.RollerPubkey, []byte(bet.Memo), index)

		inv, err := ig.node.AddHoldInvoice(ctx, bet.AmountMsat, description)
		if err != nil {
			return fmt.Errorf("zapingest: request hold invoice: %w", err)
		}
		bet.PaymentHash = inv.PaymentHash
		bet.Invoice = inv.PaymentRequest
		bet.InvoicePreimage = hex.EncodeToString(inv.Preimage[:])
		return nil
	})
	if err != nil {
		return fmt.Errorf("zapingest: persist bet: %w", err)
	}

	_ = mult // threshold/factor are re-looked-up by the Roll & Settlement Engine at settle time; not persisted redundantly here.
	return nil
}

// BuildDescription reproduces the deterministic, documented commitment
// string spec §4.4 step 4 requires: an external verifier with only the
// fraud-proof tuple (§4.7) must be able to reconstruct it byte-for-byte.
// Shared with internal/fraudproof so the two never drift apart.
func BuildDescription(commitment [32]byte, commitEventID, multiplierNoteID string, rollerPubkey [32]byte, memo []byte, index uint32) string {
	memoHash := sha256.Sum256(memo)
	return fmt.Sprintf(
		"nostrdice:commit=%x:event=%s:multiplier=%s:roller=%x:memo_sha256=%x:index=%d",
		commitment, commitEventID, multiplierNoteID, rollerPubkey, memoHash, index,
	)
}

func zapAmountMsat(event relay.Event) (uint64, error) {
	tag := event.Tag("amount")
	if len(tag) < 2 || tag[1] == "" {
		return 0, fmt.Errorf("zap request missing amount tag")
	}
	var msat uint64
	if _, err := fmt.Sscanf(tag[1], "%d", &msat); err != nil {
		return 0, fmt.Errorf("malformed amount tag %q: %w", tag[1], err)
	}
	if msat == 0 {
		return 0, fmt.Errorf("zero-amount zap request")
	}
	return msat, nil
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// verifySignature reconstructs the Nostr event's id and checks its
// schnorr signature via go-nostr, the same library the relay adapter uses
// to sign the server's own events.
func verifySignature(event relay.Event) error {
	nev := nostr.Event{
		ID:        event.ID,
		PubKey:    event.PubkeyHex,
		CreatedAt: nostr.Timestamp(event.CreatedAt),
		Kind:      event.Kind,
		Content:   event.Content,
		Sig:       event.SigHex,
	}
	for _, t := range event.Tags {
		nev.Tags = append(nev.Tags, nostr.Tag(t))
	}
	ok, err := nev.CheckSignature()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid signature")
	}
	if nev.GetID() != event.ID {
		return fmt.Errorf("event id does not match its signed content")
	}
	return nil
}

// rawEventForStorage preserves the exact wire shape of the zap request
// for ZapRequestJSON, so the stored bet carries the complete signed event
// that caused invoice issuance (spec §3: "zap_request: the complete
// signed request event").
func rawEventForStorage(e relay.Event) map[string]any {
	return map[string]any{
		"id":         e.ID,
		"pubkey":     e.PubkeyHex,
		"created_at": e.CreatedAt,
		"kind":       e.Kind,
		"tags":       e.Tags,
		"content":    e.Content,
		"sig":        e.SigHex,
	}
}
