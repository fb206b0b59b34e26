package domain

import "time"

// BetState is a position in the monotonic bet lifecycle. Transitions only
// ever move forward along the DAG documented on each constant.
type BetState string

const (
	// AwaitingPayment is the initial state: a hold invoice has been issued
	// but the Lightning node has not reported settlement yet.
	AwaitingPayment BetState = "AwaitingPayment"
	// PaidUnrolled means the invoice settled but the roll has not been
	// computed yet. This state is transient within a single settle
	// notification handler call.
	PaidUnrolled BetState = "PaidUnrolled"
	// RolledWon is terminal-pending-payout: the roll beat the threshold.
	RolledWon BetState = "RolledWon"
	// RolledLost is terminal: the roll did not beat the threshold.
	RolledLost BetState = "RolledLost"
	// Paying means the Payout Dispatcher has taken ownership and is
	// attempting to pay the roller.
	Paying BetState = "Paying"
	// Paid is terminal: the payout settled.
	Paid BetState = "Paid"
	// PayoutFailed is terminal from the automated system's perspective;
	// operator-recoverable.
	PayoutFailed BetState = "PayoutFailed"
	// UnresolvedNonceExpired is terminal: the nonce for the bet's round
	// could not be found when the roll needed to be computed. Should not
	// occur given the Bet Store's ordering guarantees; logged as a
	// protocol-integrity fault.
	UnresolvedNonceExpired BetState = "UnresolvedNonceExpired"
)

// allowedPredecessors lists, for each state, the states update_state may
// transition *from*. A transition whose current state is not in this set
// is rejected (CAS-style) rather than silently applied.
var allowedPredecessors = map[BetState][]BetState{
	PaidUnrolled:            {AwaitingPayment},
	RolledWon:               {PaidUnrolled},
	RolledLost:              {PaidUnrolled},
	UnresolvedNonceExpired:  {PaidUnrolled},
	Paying:                  {RolledWon},
	Paid:                    {Paying},
	PayoutFailed:            {Paying},
}

// CanTransition reports whether a bet currently in `from` may move to `to`.
func CanTransition(from, to BetState) bool {
	for _, pred := range allowedPredecessors[to] {
		if pred == from {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state is a DAG leaf — no further transition
// is ever valid out of it.
func IsTerminal(s BetState) bool {
	switch s {
	case RolledLost, Paid, PayoutFailed, UnresolvedNonceExpired:
		return true
	default:
		return false
	}
}

// Bet is the durable record of one zap-backed wager, per spec §3.
type Bet struct {
	PaymentHash        [32]byte `gorm:"primaryKey;type:blob;size:32"`
	RollerPubkey       [32]byte `gorm:"type:blob;size:32;index"`
	Invoice            string
	InvoicePreimage    string // hex; generated by the house at AddHoldInvoice time, used to SettleInvoice once PaidUnrolled is durable
	ZapRequestJSON     string // the complete signed request event, serialized
	MultiplierNoteID   string
	NonceCommitEventID string `gorm:"index"`
	Index              uint32
	Memo               string
	AmountMsat         uint64
	State              BetState `gorm:"index"`
	PayoutMsat         uint64
	PayoutInvoice      string
	PayoutPreimage     string
	CreatedAt          time.Time
	SettledAt          *time.Time
}

func (Bet) TableName() string { return "bets" }
