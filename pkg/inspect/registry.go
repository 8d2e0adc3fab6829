package inspect

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrUnknownInstruction is returned by a decoder when it recognizes the
// program but not the instruction's discriminator. The registry converts
// it into a generic, partially-decoded intent.
var ErrUnknownInstruction = errors.New("unknown instruction")

// Decoder turns a single instruction into an intent. Implementations must
// be safe for concurrent use; all inputs arrive via the instruction value.
type Decoder interface {
	DecodeInstruction(ixn Instruction) (Intent, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(ixn Instruction) (Intent, error)

func (f DecoderFunc) DecodeInstruction(ixn Instruction) (Intent, error) {
	return f(ixn)
}

// Registry dispatches instructions to per-program decoders. It also holds
// a display-name table for recognized-but-undecoded programs and a
// denylist of addresses flagged as suspicious.
//
// Registration typically happens at process start; the denylist may grow
// at runtime and is guarded accordingly. There is no removal API.
type Registry struct {
	log *logrus.Entry

	mu       sync.RWMutex
	decoders map[string]Decoder
	names    map[string]string
	denylist map[string]struct{}
}

// NewRegistry returns an empty registry seeded with the well-known
// program name table.
func NewRegistry() *Registry {
	r := &Registry{
		log:      logrus.StandardLogger().WithField("type", "inspect/registry"),
		decoders: make(map[string]Decoder),
		names:    make(map[string]string),
		denylist: make(map[string]struct{}),
	}
	for address, name := range KnownProgramNames() {
		r.names[address] = name
	}
	return r
}

// Register installs a decoder for a program address, along with its
// display name. Re-registering an address replaces the previous decoder.
func (r *Registry) Register(programID, displayName string, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoders[programID] = decoder
	if displayName != "" {
		r.names[programID] = displayName
	}
}

// AddKnownProgram records a display name for a program without a decoder.
func (r *Registry) AddKnownProgram(programID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.names[programID] = displayName
}

// Denylist flags a program address as suspicious. Flagged programs always
// decode to a Critical intent. Flags cannot be removed.
func (r *Registry) Denylist(programID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.denylist[programID] = struct{}{}
	r.log.WithField("program", programID).Warn("program denylisted")
}

// IsDenylisted reports whether a program address has been flagged.
func (r *Registry) IsDenylisted(programID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.denylist[programID]
	return ok
}

// KnownName reports the display name recorded for an address, if any.
func (r *Registry) KnownName(address string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.names[address]
	return name, ok
}

// ProgramName returns the display name for an address, falling back to
// its abbreviated form.
func (r *Registry) ProgramName(programID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.programNameLocked(programID)
}

func (r *Registry) programNameLocked(programID string) string {
	if name, ok := r.names[programID]; ok {
		return name
	}
	return AbbreviateAddress(programID)
}

// Decode dispatches one instruction and always returns a usable intent.
//
// Dispatch order: denylisted programs short-circuit to Critical; a
// registered decoder is tried next, degrading to a generic intent when it
// doesn't recognize the payload; recognized-but-undecoded programs yield
// Medium; entirely unknown programs yield High.
func (r *Registry) Decode(ixn Instruction) Intent {
	r.mu.RLock()
	_, denied := r.denylist[ixn.ProgramID]
	decoder, registered := r.decoders[ixn.ProgramID]
	name, recognized := r.names[ixn.ProgramID]
	r.mu.RUnlock()

	if denied {
		displayName := name
		if displayName == "" {
			displayName = AbbreviateAddress(ixn.ProgramID)
		}
		return Intent{
			Index:       ixn.Index,
			ProgramID:   ixn.ProgramID,
			ProgramName: displayName,
			Method:      "suspicious",
			Summary:     "Interaction with flagged program " + displayName,
			Accounts:    ixn.Accounts,
			Args:        map[string]string{"data": HexArg(ixn.Data)},
			Risk:        RiskCritical,
			Warnings:    []string{"Program " + ixn.ProgramID + " is flagged as suspicious"},
			Partial:     true,
		}
	}

	if registered {
		intent, err := decoder.DecodeInstruction(ixn)
		if err == nil {
			return intent
		}
		if !errors.Is(err, ErrUnknownInstruction) {
			r.log.
				WithError(err).
				WithField("program", ixn.ProgramID).
				Debug("decoder failed, degrading to generic intent")
		}
		return r.genericIntent(ixn, name, recognized)
	}

	return r.genericIntent(ixn, name, recognized)
}

func (r *Registry) genericIntent(ixn Instruction, name string, recognized bool) Intent {
	risk := RiskHigh
	warning := "Instruction for unknown program " + ixn.ProgramID + " could not be decoded"
	displayName := AbbreviateAddress(ixn.ProgramID)
	if recognized {
		risk = RiskMedium
		displayName = name
		warning = "Instruction for " + name + " could not be decoded"
	}

	return Intent{
		Index:       ixn.Index,
		ProgramID:   ixn.ProgramID,
		ProgramName: displayName,
		Method:      "unknown",
		Summary:     "Unknown instruction for " + displayName,
		Accounts:    ixn.Accounts,
		Args:        map[string]string{"data": HexArg(ixn.Data)},
		Risk:        risk,
		Warnings:    []string{warning},
		Partial:     true,
	}
}
