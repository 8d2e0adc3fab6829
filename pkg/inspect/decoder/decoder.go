// Package decoder wires the per-program decoders into a registry.
package decoder

import (
	"github.com/code-payments/tx-inspector/pkg/inspect"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder/ata"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder/computebudget"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder/memo"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder/stake"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder/system"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder/token"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder/token2022"
)

// RegisterDefaults installs all built-in program decoders on a registry.
func RegisterDefaults(r *inspect.Registry) {
	system.Register(r)
	token.Register(r)
	token2022.Register(r)
	ata.Register(r)
	computebudget.Register(r)
	memo.Register(r)
	stake.Register(r)
}

// NewRegistry returns a registry with all built-in decoders installed.
func NewRegistry() *inspect.Registry {
	r := inspect.NewRegistry()
	RegisterDefaults(r)
	return r
}

// NewInspector returns an inspector backed by a fully-populated registry.
func NewInspector(opts ...inspect.InspectorOption) *inspect.Inspector {
	return inspect.NewInspector(NewRegistry(), opts...)
}
