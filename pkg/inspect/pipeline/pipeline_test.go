package pipeline

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tx-inspector/pkg/inspect"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder"
	"github.com/code-payments/tx-inspector/pkg/solana"
	"github.com/code-payments/tx-inspector/pkg/testutil"
)

func transferTransaction(t *testing.T, lamports uint64) []byte {
	payer := testutil.GenerateSolanaKey(t)
	dest := testutil.GenerateSolanaKey(t)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data, 2)
	binary.LittleEndian.PutUint64(data[4:], lamports)

	tx := solana.NewLegacyTransaction(payer, solana.NewInstruction(
		solana.MustPublicKeyFromBase58(inspect.SystemProgram),
		data,
		solana.NewAccountMeta(payer, true),
		solana.NewAccountMeta(dest, false),
	))
	return tx.Marshal()
}

func unlimitedApprovalTransaction(t *testing.T) []byte {
	payer := testutil.GenerateSolanaKey(t)
	source := testutil.GenerateSolanaKey(t)
	delegate := testutil.GenerateSolanaKey(t)

	data := make([]byte, 9)
	data[0] = 4
	binary.LittleEndian.PutUint64(data[1:], math.MaxUint64)

	tx := solana.NewLegacyTransaction(payer, solana.NewInstruction(
		solana.MustPublicKeyFromBase58(inspect.TokenProgram),
		data,
		solana.NewAccountMeta(source, false),
		solana.NewReadonlyAccountMeta(delegate, false),
		solana.NewReadonlyAccountMeta(payer, true),
	))
	return tx.Marshal()
}

func passthrough(called *bool) Handler {
	return func(ctx context.Context, req *Request) error {
		*called = true
		return nil
	}
}

func TestStage_ForwardsLowRisk(t *testing.T) {
	stage := NewStage(decoder.NewInspector(), WithBlockCritical())

	var called bool
	handler := stage.Intercept(passthrough(&called))

	req := NewRequest(transferTransaction(t, 1_000_000))
	require.NoError(t, handler(context.Background(), req))
	assert.True(t, called)

	analysis, ok := req.Analysis()
	require.True(t, ok)
	assert.Equal(t, inspect.RiskLow, analysis.Risk)
}

func TestStage_BlocksCritical(t *testing.T) {
	stage := NewStage(decoder.NewInspector(), WithBlockCritical())

	var called bool
	handler := stage.Intercept(passthrough(&called))

	req := NewRequest(unlimitedApprovalTransaction(t))
	err := handler(context.Background(), req)

	require.Error(t, err)
	assert.False(t, called)

	var policyErr *PolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, inspect.RiskCritical, policyErr.Analysis.Risk)
	assert.True(t, policyErr.Analysis.HasWarning("UNLIMITED"))

	// The analysis is stored even when the request is rejected.
	analysis, ok := req.Analysis()
	require.True(t, ok)
	assert.Equal(t, inspect.RiskCritical, analysis.Risk)
}

func TestStage_BlockHighAlsoBlocksCritical(t *testing.T) {
	stage := NewStage(decoder.NewInspector(), WithBlockHighRisk())

	var called bool
	handler := stage.Intercept(passthrough(&called))

	// A 50 SOL transfer rates High.
	err := handler(context.Background(), NewRequest(transferTransaction(t, 50_000_000_000)))
	require.Error(t, err)
	assert.False(t, called)

	err = handler(context.Background(), NewRequest(unlimitedApprovalTransaction(t)))
	require.Error(t, err)
}

func TestStage_ApproverPredicate(t *testing.T) {
	stage := NewStage(decoder.NewInspector(), WithApprover(func(analysis *inspect.Analysis) bool {
		return analysis.Risk <= inspect.RiskLow
	}))

	var called bool
	handler := stage.Intercept(passthrough(&called))

	require.NoError(t, handler(context.Background(), NewRequest(transferTransaction(t, 1_000_000))))
	assert.True(t, called)

	called = false
	err := handler(context.Background(), NewRequest(transferTransaction(t, 2_500_000_000)))
	require.Error(t, err)
	assert.False(t, called)
}

func TestStage_Observer(t *testing.T) {
	var observed *inspect.Analysis
	stage := NewStage(
		decoder.NewInspector(),
		WithObserver(func(req *Request, analysis *inspect.Analysis) {
			observed = analysis
		}),
		WithBlockCritical(),
	)

	handler := stage.Intercept(passthrough(new(bool)))

	// The observer fires even for rejected requests.
	err := handler(context.Background(), NewRequest(unlimitedApprovalTransaction(t)))
	require.Error(t, err)
	require.NotNil(t, observed)
	assert.Equal(t, inspect.RiskCritical, observed.Risk)
}

func TestStage_MalformedTransactionDegrades(t *testing.T) {
	stage := NewStage(decoder.NewInspector(), WithBlockCritical())

	var called bool
	handler := stage.Intercept(passthrough(&called))

	// Garbage bytes don't abort the pipeline; a synthetic Medium
	// analysis is attached and the request proceeds.
	req := NewRequest([]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, handler(context.Background(), req))
	assert.True(t, called)

	analysis, ok := req.Analysis()
	require.True(t, ok)
	assert.Equal(t, inspect.RiskMedium, analysis.Risk)
	assert.False(t, analysis.FullyDecoded)
	assert.NotEmpty(t, analysis.Warnings)
}

func TestStage_NoPolicyForwardsEverything(t *testing.T) {
	stage := NewStage(decoder.NewInspector())

	var called bool
	handler := stage.Intercept(passthrough(&called))

	require.NoError(t, handler(context.Background(), NewRequest(unlimitedApprovalTransaction(t))))
	assert.True(t, called)
}

func TestRequest_Metadata(t *testing.T) {
	req := NewRequest(nil)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", req.ID.String())

	_, ok := req.Metadata("missing")
	assert.False(t, ok)

	req.SetMetadata("key", 42)
	value, ok := req.Metadata("key")
	require.True(t, ok)
	assert.Equal(t, 42, value)
}
