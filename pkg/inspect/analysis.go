package inspect

import "strings"

// Analysis is the whole-transaction result of decoding and aggregation.
// Built once from a finished intent list and never mutated; re-parsing a
// transaction produces a replacement value.
type Analysis struct {
	// Summary is a one-line description of the transaction.
	Summary string

	// Intents lists decoded instructions in transaction order.
	Intents []Intent

	// Risk is the maximum risk across intents (RiskInfo when empty).
	Risk RiskLevel

	// Warnings is the deduplicated union of per-intent warnings plus any
	// synthesized cross-instruction warnings, in first-seen order.
	Warnings []string

	// Programs lists distinct program display names in first-seen order.
	Programs []string

	// Accounts lists involved accounts deduplicated by address, first
	// occurrence winning.
	Accounts []AccountRole

	// FeeEstimate is the estimated fee in lamports, when computable.
	FeeEstimate *uint64

	// NativeCost is the summed lamports moved by native transfers,
	// omitted when the transaction contains none.
	NativeCost *uint64

	// FullyDecoded is true iff no intent is partial.
	FullyDecoded bool

	// RequiredSigners is the message header's required signature count.
	RequiredSigners int
}

// HasWarning reports whether any warning contains the given substring.
// Convenience for policy predicates and tests.
func (a *Analysis) HasWarning(substr string) bool {
	for _, w := range a.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
