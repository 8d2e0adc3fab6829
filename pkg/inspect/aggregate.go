package inspect

import (
	"fmt"
	"strings"

	"github.com/code-payments/tx-inspector/pkg/pointer"
)

// Method names the aggregator keys cross-instruction pattern checks on.
// Decoders for the corresponding programs must use these exact values.
const (
	MethodTransfer         = "transfer"
	MethodTransferWithSeed = "transferWithSeed"
	MethodApprove          = "approve"
	MethodApproveChecked   = "approveChecked"
	MethodSetAuthority     = "setAuthority"
	MethodAuthorize        = "authorize"
	MethodBurn             = "burn"
	MethodBurnChecked      = "burnChecked"
)

// Analyze folds per-instruction intents into a whole-transaction analysis.
// The zero-intent case yields an Info analysis, never an error.
func Analyze(intents []Intent) *Analysis {
	analysis := &Analysis{
		Intents:      intents,
		Risk:         RiskInfo,
		FullyDecoded: true,
	}

	seenWarnings := make(map[string]struct{})
	seenPrograms := make(map[string]struct{})
	seenAccounts := make(map[string]struct{})

	var nativeCost uint64
	var hasNativeCost bool

	for _, intent := range intents {
		analysis.Risk = analysis.Risk.Max(intent.Risk)

		if intent.Partial {
			analysis.FullyDecoded = false
		}

		for _, w := range intent.Warnings {
			if _, ok := seenWarnings[w]; ok {
				continue
			}
			seenWarnings[w] = struct{}{}
			analysis.Warnings = append(analysis.Warnings, w)
		}

		if _, ok := seenPrograms[intent.ProgramName]; !ok {
			seenPrograms[intent.ProgramName] = struct{}{}
			analysis.Programs = append(analysis.Programs, intent.ProgramName)
		}

		for _, account := range intent.Accounts {
			if _, ok := seenAccounts[account.Address]; ok {
				continue
			}
			seenAccounts[account.Address] = struct{}{}
			analysis.Accounts = append(analysis.Accounts, account)
		}

		if intent.ProgramID == SystemProgram &&
			(intent.Method == MethodTransfer || intent.Method == MethodTransferWithSeed) {
			if lamports, ok := rawAmount(intent); ok {
				nativeCost += lamports
				hasNativeCost = true
			}
		}
	}

	analysis.NativeCost = pointer.Uint64IfValid(hasNativeCost, nativeCost)

	analysis.Summary = summarize(intents)

	for _, w := range crossPatternWarnings(intents) {
		if _, ok := seenWarnings[w]; ok {
			continue
		}
		seenWarnings[w] = struct{}{}
		analysis.Warnings = append(analysis.Warnings, w)
	}

	return analysis
}

// rawAmount extracts the raw integer amount a decoder recorded, if any.
func rawAmount(intent Intent) (uint64, bool) {
	value, ok := intent.Args["lamports"]
	if !ok {
		value, ok = intent.Args["amount"]
	}
	if !ok {
		return 0, false
	}

	var amount uint64
	if _, err := fmt.Sscanf(value, "%d", &amount); err != nil {
		return 0, false
	}
	return amount, true
}

func summarize(intents []Intent) string {
	switch len(intents) {
	case 0:
		return "Empty transaction"
	case 1:
		return intents[0].Summary
	}

	// Compute budget directives are fee plumbing; a transaction that is
	// one real operation plus fee configuration reads as that operation.
	var remaining []Intent
	for _, intent := range intents {
		if intent.ProgramID == ComputeBudgetProgram {
			continue
		}
		remaining = append(remaining, intent)
	}
	if len(remaining) == 1 {
		return remaining[0].Summary
	}

	return fmt.Sprintf("%d operations", len(intents))
}

func crossPatternWarnings(intents []Intent) []string {
	var (
		hasUnlimitedApproval bool
		hasAuthorityChange   bool
		hasBurn              bool
		hasStaking           bool
		partialCount         int
	)

	for _, intent := range intents {
		switch intent.Method {
		case MethodApprove, MethodApproveChecked:
			for _, w := range intent.Warnings {
				if strings.Contains(w, "UNLIMITED") {
					hasUnlimitedApproval = true
				}
			}
		case MethodSetAuthority, MethodAuthorize:
			hasAuthorityChange = true
		case MethodBurn, MethodBurnChecked:
			hasBurn = true
		}

		if intent.ProgramID == StakeProgram {
			hasStaking = true
		}
		if intent.Partial {
			partialCount++
		}
	}

	var warnings []string
	if hasUnlimitedApproval {
		warnings = append(warnings, "Transaction grants an UNLIMITED spending approval")
	}
	if hasAuthorityChange {
		warnings = append(warnings, "Transaction changes an account or mint authority")
	}
	if hasBurn {
		warnings = append(warnings, "Transaction permanently destroys tokens")
	}
	if hasStaking {
		warnings = append(warnings, "Transaction interacts with the stake program")
	}
	if partialCount > 0 {
		warnings = append(warnings, fmt.Sprintf("%d instruction(s) were not fully understood", partialCount))
	}
	return warnings
}
