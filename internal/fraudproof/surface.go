// Package fraudproof implements the Fraud-Proof Surface (spec §4.7): a
// read-only view of the material an external observer needs to verify a
// bet's roll once its round has been revealed. Grounded on the teacher's
// read-only admin lookup handlers (pkg/admin/server.go), generalized from
// an operator debug dump to a player-facing cryptographic proof.
package fraudproof

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/rollengine"
	"github.com/nostrdice/nostrdice/internal/zapingest"
)

// Proof is the public verification tuple spec §4.7 requires.
type Proof struct {
	CommitmentEventID string `json:"commitment_event_id"`
	RevealedNonceHex  string `json:"revealed_nonce_hex"`
	RollerPubkeyHex   string `json:"roller_pubkey_hex"`
	MemoSHA256Hex     string `json:"memo_sha256_hex"`
	Index             uint32 `json:"index"`
	MultiplierNoteID  string `json:"multiplier_note_id"`
	PaidInvoice       string `json:"paid_invoice"`
	PaymentPreimage   string `json:"payment_preimage,omitempty"`
	PayoutInvoice     string `json:"payout_invoice,omitempty"`
	PayoutPreimage    string `json:"payout_preimage,omitempty"`
	Roll              uint16 `json:"roll"`
	Description       string `json:"description"`
}

// Surface renders Proof documents for settled bets.
type Surface struct {
	bets   domain.BetStore
	rounds domain.RoundStore
}

func New(bets domain.BetStore, rounds domain.RoundStore) *Surface {
	return &Surface{bets: bets, rounds: rounds}
}

// Build assembles the fraud-proof tuple for paymentHash. Returns an error
// if the bet is unknown or its round has not been revealed yet (the nonce
// itself must never be disclosed before reveal, per spec §3).
func (s *Surface) Build(ctx context.Context, paymentHash [32]byte) (*Proof, error) {
	bet, err := s.bets.GetBet(ctx, paymentHash)
	if err != nil {
		return nil, fmt.Errorf("fraudproof: %w", err)
	}

	round, err := s.rounds.GetRound(ctx, bet.NonceCommitEventID)
	if err != nil {
		return nil, fmt.Errorf("fraudproof: load round: %w", err)
	}
	if round.Status != domain.RoundRevealed {
		return nil, fmt.Errorf("fraudproof: round %s has not been revealed yet", round.CommitEventID)
	}

	memoHash := sha256.Sum256([]byte(bet.Memo))
	memoHashHex := hex.EncodeToString(memoHash[:])
	description := zapingest.BuildDescription(round.Commitment, round.CommitEventID, bet.MultiplierNoteID, bet.RollerPubkey, []byte(bet.Memo), bet.Index)
	roll := rollengine.Roll(round.NonceBytes, bet.RollerPubkey, []byte(bet.Memo), bet.Index)

	return &Proof{
		CommitmentEventID: round.CommitEventID,
		RevealedNonceHex:  hex.EncodeToString(round.NonceBytes[:]),
		RollerPubkeyHex:   hex.EncodeToString(bet.RollerPubkey[:]),
		MemoSHA256Hex:     memoHashHex,
		Index:             bet.Index,
		MultiplierNoteID:  bet.MultiplierNoteID,
		PaidInvoice:       bet.Invoice,
		PaymentPreimage:   bet.InvoicePreimage,
		PayoutInvoice:     bet.PayoutInvoice,
		PayoutPreimage:    bet.PayoutPreimage,
		Roll:              roll,
		Description:       description,
	}, nil
}
