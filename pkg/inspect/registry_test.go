package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UnknownProgram(t *testing.T) {
	r := NewRegistry()

	intent := r.Decode(Instruction{
		ProgramID: "4Q5sfiA6mFMcqFBCmSJipeoaCTfNRjlYsyBkHSu2bJgh",
		Data:      []byte{0x01, 0x02},
	})

	assert.Equal(t, RiskHigh, intent.Risk)
	assert.True(t, intent.Partial)
	assert.Equal(t, "unknown", intent.Method)
	assert.Equal(t, "0x0102", intent.Args["data"])
	require.Len(t, intent.Warnings, 1)
	assert.Contains(t, intent.Warnings[0], "unknown program")
}

func TestRegistry_RecognizedButUndecoded(t *testing.T) {
	r := NewRegistry()

	intent := r.Decode(Instruction{
		ProgramID: VoteProgram,
		Data:      []byte{0x00},
	})

	assert.Equal(t, RiskMedium, intent.Risk)
	assert.True(t, intent.Partial)
	assert.Equal(t, "Vote Program", intent.ProgramName)
}

func TestRegistry_DenylistDominance(t *testing.T) {
	r := NewRegistry()

	programID := "GvQW5MzB3Jyb8wFJaNoHYYSiapSGC5s6k2kbvDGDwibf"

	// Register a decoder that would return a benign intent, then flag
	// the program. The flag must win.
	r.Register(programID, "Benign Looking", DecoderFunc(func(ixn Instruction) (Intent, error) {
		return Intent{Risk: RiskInfo, Summary: "nothing to see"}, nil
	}))
	r.Denylist(programID)

	require.True(t, r.IsDenylisted(programID))

	for _, data := range [][]byte{nil, {0x00}, {0xff, 0xff, 0xff}} {
		intent := r.Decode(Instruction{ProgramID: programID, Data: data})
		assert.Equal(t, RiskCritical, intent.Risk)
		assert.Equal(t, "suspicious", intent.Method)
		require.NotEmpty(t, intent.Warnings)
		assert.Contains(t, intent.Warnings[0], "suspicious")
	}
}

func TestRegistry_RegisterUpgradesUnknown(t *testing.T) {
	r := NewRegistry()

	programID := "8Lk31h7CiCkmyNLYNTgyzFvrjiL2RpqVfBtWqYLfHBWY"
	ixn := Instruction{ProgramID: programID, Data: []byte{0x07}}

	before := r.Decode(ixn)
	assert.True(t, before.Partial)
	assert.Equal(t, RiskHigh, before.Risk)

	r.Register(programID, "Custom Program", DecoderFunc(func(ixn Instruction) (Intent, error) {
		return Intent{
			ProgramID:   ixn.ProgramID,
			ProgramName: "Custom Program",
			Method:      "customOp",
			Summary:     "Custom operation",
			Risk:        RiskLow,
		}, nil
	}))

	after := r.Decode(ixn)
	assert.False(t, after.Partial)
	assert.Equal(t, "customOp", after.Method)
	assert.Equal(t, RiskLow, after.Risk)
}

func TestRegistry_DecoderFallsBackOnUnknownInstruction(t *testing.T) {
	r := NewRegistry()

	programID := "5yHyobDwLWVrVMHVtGBv82N7aRCmGdVXKNBzFuWeHPMq"
	r.Register(programID, "Partial Program", DecoderFunc(func(ixn Instruction) (Intent, error) {
		return Intent{}, ErrUnknownInstruction
	}))

	intent := r.Decode(Instruction{ProgramID: programID, Data: []byte{0x63}})

	// The program is recognized, so the generic fallback is Medium.
	assert.Equal(t, RiskMedium, intent.Risk)
	assert.True(t, intent.Partial)
	assert.Equal(t, "Partial Program", intent.ProgramName)
}
