// Package lightning declares the payment-node collaborator interface
// (spec §6): add-hold-invoice, settle-invoice, subscribe-invoices,
// decode-invoice, send-payment-sync, lookup-payment-by-hash, all nominally
// over an authenticated TLS+macaroon RPC channel. The real wire client is
// explicitly out of scope (spec §1); internal/lightning/memnode ships an
// in-memory reference implementation instead (see DESIGN.md).
package lightning

import "context"

// InvoiceState mirrors LND's invoice lifecycle states relevant here.
type InvoiceState string

const (
	InvoiceOpen     InvoiceState = "open"
	InvoiceSettled  InvoiceState = "settled"
	InvoiceCanceled InvoiceState = "canceled"
)

// Invoice is the subset of an add-hold-invoice response the core needs.
// Preimage is the value whose SHA-256 is PaymentHash; the house (payee)
// generates it itself when requesting a hold invoice precisely so it can
// call SettleInvoice later without depending on the node to disclose it.
type Invoice struct {
	PaymentRequest string // BOLT-11
	PaymentHash    [32]byte
	Preimage       [32]byte
}

// SettledInvoice is delivered over the SubscribeInvoices channel exactly
// once per invoice transition into InvoiceSettled.
type SettledInvoice struct {
	PaymentHash  [32]byte
	AmountMsat   uint64
}

// DecodedInvoice is the result of decoding a BOLT-11 string without
// paying it (used by the Payout Dispatcher to size/validate payout
// invoices it was handed by a payee's LNURL callback).
type DecodedInvoice struct {
	PaymentHash [32]byte
	AmountMsat  uint64
	Description string
}

// PaymentResult is returned by SendPaymentSync.
type PaymentResult struct {
	Preimage [32]byte
	FeeMsat  uint64
}

// Client is the payment-node collaborator spec §6 treats as external.
type Client interface {
	// AddHoldInvoice creates a hold invoice for amountMsat carrying
	// description as its description field (spec §4.4 step 4: the
	// description/metadata field content is implementation-defined but
	// must be reconstructible by external verifiers).
	AddHoldInvoice(ctx context.Context, amountMsat uint64, description string) (Invoice, error)
	// SettleInvoice releases a held HTLC given its preimage, irrevocably
	// capturing the player's payment. Called once the
	// AwaitingPayment -> PaidUnrolled transition is durable (spec §4.1's
	// durable-before-observable rule), using the preimage the house
	// generated itself at AddHoldInvoice time.
	SettleInvoice(ctx context.Context, preimage [32]byte) error
	// SubscribeInvoices streams every invoice settlement. The channel is
	// closed when ctx is cancelled.
	SubscribeInvoices(ctx context.Context) (<-chan SettledInvoice, error)
	DecodeInvoice(ctx context.Context, paymentRequest string) (DecodedInvoice, error)
	// SendPaymentSync pays paymentRequest and blocks until it resolves or
	// the per-attempt timeout (HTLC expiry policy, spec §5) elapses.
	SendPaymentSync(ctx context.Context, paymentRequest string) (PaymentResult, error)
	LookupPayment(ctx context.Context, paymentHash [32]byte) (*PaymentResult, error)
}
