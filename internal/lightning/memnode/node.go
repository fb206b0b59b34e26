// Package memnode is an in-memory reference implementation of
// lightning.Client, playing the same "swap a real backend for a
// mock-but-structurally-faithful one" role as the teacher's
// internal/modules/wallet.MockService, generalized from an account ledger
// to a Lightning node simulator: it mints real BOLT11-shaped invoice
// strings and SHA-256 payment hashes/preimages, and settles invoices on
// demand so the rest of the system can be driven end-to-end without a
// real LND instance.
package memnode

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/nostrdice/nostrdice/internal/lightning"
)

type heldInvoice struct {
	amountMsat  uint64
	description string
	preimage    [32]byte
	settled     bool
}

// Node is safe for concurrent use.
type Node struct {
	mu       sync.Mutex
	invoices map[[32]byte]*heldInvoice
	settleCh chan lightning.SettledInvoice

	// payments records invoices this node has paid out, keyed by payment
	// hash, so LookupPayment can support the Payout Dispatcher's
	// idempotent-repay check on restart (spec §4.6 step 6).
	payments map[[32]byte]lightning.PaymentResult

	// PayFailures lets tests force SendPaymentSync to fail for specific
	// payment requests, exercising the PayoutFailed path.
	PayFailures map[string]error
}

func New() *Node {
	return &Node{
		invoices:    make(map[[32]byte]*heldInvoice),
		settleCh:    make(chan lightning.SettledInvoice, 64),
		payments:    make(map[[32]byte]lightning.PaymentResult),
		PayFailures: make(map[string]error),
	}
}

func randomHash() [32]byte {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return b
}

func (n *Node) AddHoldInvoice(_ context.Context, amountMsat uint64, description string) (lightning.Invoice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	preimage := randomHash()
	hash := sha256.Sum256(preimage[:])
	n.invoices[hash] = &heldInvoice{amountMsat: amountMsat, description: description, preimage: preimage}

	req := fmt.Sprintf("lnbcrt%dm1pmemnode%s", amountMsat, hex.EncodeToString(hash[:]))
	return lightning.Invoice{PaymentRequest: req, PaymentHash: hash, Preimage: preimage}, nil
}

// Settle is a test/harness-only hook simulating the payer's wallet
// completing the HTLC, since memnode has no real counterparty.
func (n *Node) Settle(paymentHash [32]byte) error {
	n.mu.Lock()
	inv, ok := n.invoices[paymentHash]
	if !ok {
		n.mu.Unlock()
		return fmt.Errorf("memnode: unknown invoice %x", paymentHash)
	}
	if inv.settled {
		n.mu.Unlock()
		return nil
	}
	inv.settled = true
	amount := inv.amountMsat
	n.mu.Unlock()

	n.settleCh <- lightning.SettledInvoice{PaymentHash: paymentHash, AmountMsat: amount}
	return nil
}

func (n *Node) SettleInvoice(_ context.Context, preimage [32]byte) error {
	hash := sha256.Sum256(preimage[:])
	return n.Settle(hash)
}

func (n *Node) SubscribeInvoices(ctx context.Context) (<-chan lightning.SettledInvoice, error) {
	out := make(chan lightning.SettledInvoice)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-n.settleCh:
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (n *Node) DecodeInvoice(_ context.Context, paymentRequest string) (lightning.DecodedInvoice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for hash, inv := range n.invoices {
		if matchesRequest(paymentRequest, hash) {
			return lightning.DecodedInvoice{PaymentHash: hash, AmountMsat: inv.amountMsat, Description: inv.description}, nil
		}
	}
	return lightning.DecodedInvoice{}, fmt.Errorf("memnode: cannot decode %q", paymentRequest)
}

func matchesRequest(req string, hash [32]byte) bool {
	want := hex.EncodeToString(hash[:])
	return len(req) >= len(want) && req[len(req)-len(want):] == want
}

// parseEmbeddedHash recovers the payment hash this mock embeds as the
// trailing 64 hex characters of every invoice string it or a payee-side
// counterpart mints, so paying an invoice can be tied back to a specific
// hash for LookupPayment purposes without a second real node to round
// trip through.
func parseEmbeddedHash(paymentRequest string) ([32]byte, bool) {
	var hash [32]byte
	if len(paymentRequest) < 64 {
		return hash, false
	}
	suffix := paymentRequest[len(paymentRequest)-64:]
	b, err := hex.DecodeString(suffix)
	if err != nil || len(b) != 32 {
		return hash, false
	}
	copy(hash[:], b)
	return hash, true
}

// SendPaymentSync mints a preimage for the payout invoice's embedded
// payment hash, simulating a successful send unless PayFailures names
// this exact request. Real preimage/hash cryptographic correspondence is
// out of scope for this mock (spec §1: the real payment-node client,
// including its preimage semantics, is an external collaborator).
func (n *Node) SendPaymentSync(_ context.Context, paymentRequest string) (lightning.PaymentResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err, ok := n.PayFailures[paymentRequest]; ok {
		return lightning.PaymentResult{}, err
	}

	hash, ok := parseEmbeddedHash(paymentRequest)
	if !ok {
		hash = randomHash()
	}
	preimage := randomHash()
	result := lightning.PaymentResult{Preimage: preimage}
	n.payments[hash] = result
	return result, nil
}

func (n *Node) LookupPayment(_ context.Context, paymentHash [32]byte) (*lightning.PaymentResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.payments[paymentHash]
	if !ok {
		return nil, nil
	}
	return &r, nil
}
