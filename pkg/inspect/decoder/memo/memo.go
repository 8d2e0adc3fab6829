// Package memo decodes memo program instructions. The payload is the
// memo text itself; there is no discriminator.
package memo

import (
	"fmt"
	"unicode/utf8"

	"github.com/code-payments/tx-inspector/pkg/inspect"
)

const programName = "Memo Program"

// maxDisplayLen bounds how much memo text is echoed into the summary.
const maxDisplayLen = 64

// Decoder decodes memo instructions for both memo program deployments.
type Decoder struct {
	programID   string
	programName string
}

func New(programID, programName string) *Decoder {
	return &Decoder{
		programID:   programID,
		programName: programName,
	}
}

// Register installs decoders for both memo program versions.
func Register(r *inspect.Registry) {
	r.Register(inspect.MemoProgram, programName, New(inspect.MemoProgram, programName))
	r.Register(inspect.MemoV1Program, "Memo Program (v1)", New(inspect.MemoV1Program, "Memo Program (v1)"))
}

func (d *Decoder) DecodeInstruction(ixn inspect.Instruction) (inspect.Intent, error) {
	intent := inspect.Intent{
		Index:       ixn.Index,
		ProgramID:   d.programID,
		ProgramName: d.programName,
		Method:      "memo",
		Accounts:    ixn.Accounts,
		Args:        make(map[string]string),
		Risk:        inspect.RiskInfo,
	}

	if !utf8.Valid(ixn.Data) {
		intent.Args["data"] = inspect.HexArg(ixn.Data)
		intent.Summary = "Attach non-text memo"
		return intent, nil
	}

	text := string(ixn.Data)
	intent.Args["memo"] = text

	display := text
	if len(display) > maxDisplayLen {
		// Back up to a rune boundary so the cut never splits a
		// multi-byte sequence.
		cut := maxDisplayLen
		for cut > 0 && !utf8.RuneStart(display[cut]) {
			cut--
		}
		display = display[:cut] + "…"
	}
	intent.Summary = fmt.Sprintf("Memo: %q", display)
	return intent, nil
}
