package domain

import "github.com/shopspring/decimal"

// Multiplier is one betting option: a payout factor and the roll threshold
// below which a bet against it wins. Immutable once loaded (spec §3/§4.2).
type Multiplier struct {
	NoteID    string
	Factor    decimal.Decimal
	Threshold uint16
}

// Won reports whether roll wins against this multiplier's threshold.
// roll < threshold, per spec §4.5 step 5.
func (m Multiplier) Won(roll uint16) bool { return roll < m.Threshold }

// PayoutMsat computes floor(amountMsat * Factor), per spec §9: rational
// arithmetic, never a binary float, rounded down. amountMsat is assumed to
// fit in an int64 (true for any realistic Lightning payment amount).
func (m Multiplier) PayoutMsat(amountMsat uint64) uint64 {
	amount := decimal.NewFromInt(int64(amountMsat))
	payout := amount.Mul(m.Factor).Floor()
	return uint64(payout.IntPart())
}
