package inspect

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/tx-inspector/pkg/pointer"
	"github.com/code-payments/tx-inspector/pkg/solana"
)

// Compute budget method names the inspector keys fee estimation on.
const (
	MethodSetComputeUnitLimit = "setComputeUnitLimit"
	MethodSetComputeUnitPrice = "setComputeUnitPrice"
)

const (
	// lamportsPerSignature is the network's fixed base fee.
	lamportsPerSignature = 5000

	// defaultComputeUnitLimit applies when a transaction sets a priority
	// price without an explicit unit limit.
	defaultComputeUnitLimit = 200_000
)

// Inspector runs the full parse, decode, aggregate path over raw
// transaction bytes. It performs no I/O; lookup table contents and token
// decimals must be supplied up front.
//
// An Inspector is safe for concurrent use once constructed.
type Inspector struct {
	log      *logrus.Entry
	registry *Registry

	tokenDecimals map[string]uint8
}

// InspectorOption configures an Inspector at construction.
type InspectorOption func(*Inspector)

// WithTokenDecimals supplies mint address to decimals mappings so token
// amounts can be humanized. Later entries override earlier ones.
func WithTokenDecimals(decimals map[string]uint8) InspectorOption {
	return func(i *Inspector) {
		for mint, d := range decimals {
			i.tokenDecimals[mint] = d
		}
	}
}

// WithKnownProgram records a display name for a program the registry has
// no decoder for.
func WithKnownProgram(programID, displayName string) InspectorOption {
	return func(i *Inspector) {
		i.registry.AddKnownProgram(programID, displayName)
	}
}

// NewInspector wraps a registry. The registry may gain decoders or
// denylist entries after construction; the inspector observes them.
func NewInspector(registry *Registry, opts ...InspectorOption) *Inspector {
	inspector := &Inspector{
		log:           logrus.StandardLogger().WithField("type", "inspect/inspector"),
		registry:      registry,
		tokenDecimals: make(map[string]uint8),
	}
	for mint, d := range KnownMintDecimals() {
		inspector.tokenDecimals[mint] = d
	}
	for _, opt := range opts {
		opt(inspector)
	}
	return inspector
}

// Registry returns the backing registry, e.g. to register additional
// decoders or denylist a program at runtime.
func (i *Inspector) Registry() *Registry {
	return i.registry
}

// InspectTransaction decodes a signed transaction and aggregates the
// result. It never fails: malformed input yields a synthetic Medium-risk
// analysis carrying the parse failure as a warning.
func (i *Inspector) InspectTransaction(raw []byte) *Analysis {
	var tx solana.Transaction
	if err := tx.Unmarshal(raw); err != nil {
		i.log.WithError(err).Debug("transaction failed to parse")

		return &Analysis{
			Summary:      "Transaction could not be decoded",
			Risk:         RiskMedium,
			Warnings:     []string{fmt.Sprintf("Transaction could not be decoded: %v", err)},
			FullyDecoded: false,
		}
	}

	return i.InspectMessage(&tx.Message)
}

// InspectMessage decodes an already-parsed message.
func (i *Inspector) InspectMessage(m *solana.Message) *Analysis {
	accounts, hasUnresolved := resolveAccounts(m, i.registry)

	intents := make([]Intent, 0, len(m.Instructions))
	for index, compiled := range m.Instructions {
		intents = append(intents, i.decodeCompiled(accounts, compiled, index))
	}

	analysis := Analyze(intents)
	analysis.RequiredSigners = int(m.Header.NumSignatures)
	analysis.FeeEstimate = estimateFee(m, intents)

	if hasUnresolved {
		analysis.Warnings = append(
			analysis.Warnings,
			"Some accounts are loaded through address lookup tables and were not resolved",
		)
	}

	return analysis
}

// InspectInstruction decodes a pre-split instruction without a full
// transaction wrapper. The index identifies the instruction's position
// within its transaction.
func (i *Inspector) InspectInstruction(programID string, accounts []AccountRole, data []byte, index int) Intent {
	for idx := range accounts {
		if accounts[idx].KnownName == "" {
			if name, ok := i.registry.KnownName(accounts[idx].Address); ok {
				accounts[idx].KnownName = name
			}
		}
	}

	return i.registry.Decode(Instruction{
		ProgramID:     programID,
		Accounts:      accounts,
		Data:          data,
		Index:         index,
		TokenDecimals: i.tokenDecimals,
	})
}

func (i *Inspector) decodeCompiled(accounts []AccountRole, compiled solana.CompiledInstruction, index int) Intent {
	program, _ := accountAt(accounts, int(compiled.ProgramIndex))

	var outOfRange bool
	resolved := make([]AccountRole, 0, len(compiled.Accounts))
	for _, accountIndex := range compiled.Accounts {
		role, ok := accountAt(accounts, int(accountIndex))
		if !ok {
			outOfRange = true
		}
		resolved = append(resolved, role)
	}

	intent := i.registry.Decode(Instruction{
		ProgramID:     program.Address,
		Accounts:      resolved,
		Data:          compiled.Data,
		Index:         index,
		TokenDecimals: i.tokenDecimals,
	})

	if outOfRange {
		intent.Partial = true
		intent.Risk = intent.Risk.Max(RiskMedium)
		intent.Warnings = append(intent.Warnings,
			"Instruction references account indices that could not be resolved")
	}

	return intent
}

// resolveAccounts flattens the message's account space into roles: static
// keys first with signer/writable flags derived from the header, then
// lookup table references (writable before readonly) tagged unresolved.
func resolveAccounts(m *solana.Message, registry *Registry) (accounts []AccountRole, hasUnresolved bool) {
	numStatic := len(m.Accounts)
	numSigners := int(m.Header.NumSignatures)
	numReadonlySigned := int(m.Header.NumReadonlySigned)
	numReadonlyUnsigned := int(m.Header.NumReadOnly)

	for index, key := range m.Accounts {
		address := base58.Encode(key)

		signer := index < numSigners
		var writable bool
		if signer {
			writable = index < numSigners-numReadonlySigned
		} else {
			writable = index < numStatic-numReadonlyUnsigned
		}

		role := AccountRole{
			Address:  address,
			Signer:   signer,
			Writable: writable,
		}
		if name, ok := registry.KnownName(address); ok {
			role.KnownName = name
		}
		accounts = append(accounts, role)
	}

	appendLookups := func(writable bool) {
		for _, lookup := range m.AddressTableLookups {
			indexes := lookup.WritableIndexes
			if !writable {
				indexes = lookup.ReadonlyIndexes
			}
			for _, tableIndex := range indexes {
				hasUnresolved = true
				accounts = append(accounts, AccountRole{
					Address:    fmt.Sprintf("lut:%s:%d", base58.Encode(lookup.PublicKey), tableIndex),
					Writable:   writable,
					Unresolved: true,
				})
			}
		}
	}
	appendLookups(true)
	appendLookups(false)

	return accounts, hasUnresolved
}

// accountAt returns the role for an account index, synthesizing an
// unresolved placeholder for indices outside the combined account space.
func accountAt(accounts []AccountRole, index int) (AccountRole, bool) {
	if index >= 0 && index < len(accounts) {
		return accounts[index], true
	}
	return AccountRole{
		Address:    fmt.Sprintf("index:%d", index),
		Unresolved: true,
	}, false
}

// estimateFee computes the base signature fee plus any priority fee
// configured through compute budget instructions.
func estimateFee(m *solana.Message, intents []Intent) *uint64 {
	fee := uint64(m.Header.NumSignatures) * lamportsPerSignature

	var microLamports uint64
	var unitLimit uint64
	for _, intent := range intents {
		if intent.ProgramID != ComputeBudgetProgram {
			continue
		}
		switch intent.Method {
		case MethodSetComputeUnitPrice:
			if v, err := strconv.ParseUint(intent.Args["microLamports"], 10, 64); err == nil {
				microLamports = v
			}
		case MethodSetComputeUnitLimit:
			if v, err := strconv.ParseUint(intent.Args["units"], 10, 64); err == nil {
				unitLimit = v
			}
		}
	}

	if microLamports > 0 {
		if unitLimit == 0 {
			unitLimit = defaultComputeUnitLimit
		}

		// The priority fee multiply can exceed 64 bits for adversarial
		// values; saturate instead of wrapping.
		hi, lo := bits.Mul64(microLamports, unitLimit)
		priority := uint64(math.MaxUint64)
		if hi < 1_000_000 {
			priority, _ = bits.Div64(hi, lo, 1_000_000)
		}

		if fee > math.MaxUint64-priority {
			fee = math.MaxUint64
		} else {
			fee += priority
		}
	}

	return pointer.Uint64(fee)
}
