// Package computebudget decodes compute budget program directives. These
// carry no accounts and only tune fees and limits, so every intent is
// informational.
package computebudget

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/code-payments/tx-inspector/pkg/inspect"
)

const programName = "Compute Budget Program"

// Command identifies a compute budget instruction by its single-byte
// discriminator.
type Command byte

const (
	CommandRequestUnitsDeprecated Command = iota
	CommandRequestHeapFrame
	CommandSetComputeUnitLimit
	CommandSetComputeUnitPrice
	CommandSetLoadedAccountsDataSizeLimit
)

// Decoder decodes compute budget instructions.
type Decoder struct{}

func New() *Decoder {
	return &Decoder{}
}

// Register installs the decoder on a registry.
func Register(r *inspect.Registry) {
	r.Register(inspect.ComputeBudgetProgram, programName, New())
}

// parseValue extracts the single fixed-width value following the
// discriminator, validating the exact payload length.
func parseValue[V constraints.Unsigned](data []byte, decoder func([]byte) V) (V, error) {
	if len(data) != 1+binary.Size(V(0)) {
		return 0, errors.Errorf("invalid instruction data size: %d", len(data))
	}
	return decoder(data[1:]), nil
}

func (d *Decoder) DecodeInstruction(ixn inspect.Instruction) (inspect.Intent, error) {
	if len(ixn.Data) == 0 {
		return inspect.Intent{}, inspect.ErrUnknownInstruction
	}

	intent := inspect.Intent{
		Index:       ixn.Index,
		ProgramID:   inspect.ComputeBudgetProgram,
		ProgramName: programName,
		Accounts:    ixn.Accounts,
		Args:        make(map[string]string),
		Risk:        inspect.RiskInfo,
	}

	switch Command(ixn.Data[0]) {
	case CommandSetComputeUnitLimit:
		units, err := parseValue(ixn.Data, binary.LittleEndian.Uint32)
		if err != nil {
			return partial(intent, inspect.MethodSetComputeUnitLimit, err)
		}
		intent.Method = inspect.MethodSetComputeUnitLimit
		intent.Args["units"] = fmt.Sprintf("%d", units)
		intent.Summary = fmt.Sprintf("Limit compute to %d units", units)

	case CommandSetComputeUnitPrice:
		microLamports, err := parseValue(ixn.Data, binary.LittleEndian.Uint64)
		if err != nil {
			return partial(intent, inspect.MethodSetComputeUnitPrice, err)
		}
		intent.Method = inspect.MethodSetComputeUnitPrice
		intent.Args["microLamports"] = fmt.Sprintf("%d", microLamports)
		intent.Summary = fmt.Sprintf("Set priority fee to %d micro-lamports per unit", microLamports)

	case CommandRequestHeapFrame:
		bytes, err := parseValue(ixn.Data, binary.LittleEndian.Uint32)
		if err != nil {
			return partial(intent, "requestHeapFrame", err)
		}
		intent.Method = "requestHeapFrame"
		intent.Args["bytes"] = fmt.Sprintf("%d", bytes)
		intent.Summary = fmt.Sprintf("Request %d byte heap frame", bytes)

	case CommandSetLoadedAccountsDataSizeLimit:
		bytes, err := parseValue(ixn.Data, binary.LittleEndian.Uint32)
		if err != nil {
			return partial(intent, "setLoadedAccountsDataSizeLimit", err)
		}
		intent.Method = "setLoadedAccountsDataSizeLimit"
		intent.Args["bytes"] = fmt.Sprintf("%d", bytes)
		intent.Summary = fmt.Sprintf("Limit loaded account data to %d bytes", bytes)

	default:
		return inspect.Intent{}, inspect.ErrUnknownInstruction
	}

	return intent, nil
}

func partial(intent inspect.Intent, method string, err error) (inspect.Intent, error) {
	intent.Method = method
	intent.Partial = true
	intent.Risk = inspect.RiskMedium
	intent.Summary = "Partially decoded compute budget directive"
	intent.Warnings = append(intent.Warnings, fmt.Sprintf("Compute budget directive could not be decoded: %v", err))
	return intent, nil
}
