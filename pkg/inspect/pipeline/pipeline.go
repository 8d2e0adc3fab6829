// Package pipeline provides a submission-pipeline stage that analyzes a
// transaction's intents before it is sent anywhere, and can block
// submission on risk policy.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/tx-inspector/pkg/inspect"
	"github.com/code-payments/tx-inspector/pkg/metrics"
)

// analysisMetadataKey is where the stage stores its analysis on the
// request for downstream stages.
const analysisMetadataKey = "inspect.analysis"

// Request is one in-flight transaction moving through a pipeline. Each
// request owns its metadata; no synchronization is needed across
// requests.
type Request struct {
	ID          uuid.UUID
	Transaction []byte

	metadata map[string]interface{}
}

// NewRequest wraps raw transaction bytes for pipeline processing.
func NewRequest(rawTransaction []byte) *Request {
	return &Request{
		ID:          uuid.New(),
		Transaction: rawTransaction,
		metadata:    make(map[string]interface{}),
	}
}

// SetMetadata stores a value on the request's side channel.
func (r *Request) SetMetadata(key string, value interface{}) {
	if r.metadata == nil {
		r.metadata = make(map[string]interface{})
	}
	r.metadata[key] = value
}

// Metadata retrieves a value from the request's side channel.
func (r *Request) Metadata(key string) (interface{}, bool) {
	value, ok := r.metadata[key]
	return value, ok
}

// Analysis returns the analysis stored by the inspection stage, if the
// stage has run.
func (r *Request) Analysis() (*inspect.Analysis, bool) {
	value, ok := r.metadata[analysisMetadataKey]
	if !ok {
		return nil, false
	}
	analysis, ok := value.(*inspect.Analysis)
	return analysis, ok
}

// Handler processes a request, e.g. submits it to the network. A stage
// wraps a handler with pre-submission behavior.
type Handler func(ctx context.Context, req *Request) error

// Observer is notified with every completed analysis, regardless of the
// policy decision.
type Observer func(req *Request, analysis *inspect.Analysis)

// Approver decides whether a request may proceed. Returning false
// rejects the request with a PolicyError.
type Approver func(analysis *inspect.Analysis) bool

// Stage analyzes each request's transaction and applies risk policy
// before handing off to the next handler. It performs no network I/O.
type Stage struct {
	log       *logrus.Entry
	inspector *inspect.Inspector

	blockCritical bool
	blockHigh     bool
	approver      Approver
	observer      Observer
}

// StageOption configures a Stage at construction.
type StageOption func(*Stage)

// WithBlockCritical rejects requests whose overall risk is Critical.
func WithBlockCritical() StageOption {
	return func(s *Stage) {
		s.blockCritical = true
	}
}

// WithBlockHighRisk rejects requests whose overall risk is High or
// above.
func WithBlockHighRisk() StageOption {
	return func(s *Stage) {
		s.blockHigh = true
	}
}

// WithApprover installs a caller-supplied approval predicate, applied
// after the threshold checks.
func WithApprover(approver Approver) StageOption {
	return func(s *Stage) {
		s.approver = approver
	}
}

// WithObserver installs a callback invoked with every analysis before
// policy is applied.
func WithObserver(observer Observer) StageOption {
	return func(s *Stage) {
		s.observer = observer
	}
}

// NewStage wraps an inspector with risk policy.
func NewStage(inspector *inspect.Inspector, opts ...StageOption) *Stage {
	s := &Stage{
		log:       logrus.StandardLogger().WithField("type", "inspect/pipeline/stage"),
		inspector: inspector,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Intercept wraps the next handler with analysis and policy. The
// analysis is stored on the request before the policy decision, so
// downstream stages and rejection handlers can both read it.
func (s *Stage) Intercept(next Handler) Handler {
	return func(ctx context.Context, req *Request) error {
		tracer := metrics.TraceMethodCall(ctx, "pipeline.Stage", "Intercept")
		defer tracer.End()

		analysis := s.inspector.InspectTransaction(req.Transaction)
		req.SetMetadata(analysisMetadataKey, analysis)

		log := s.log.WithFields(logrus.Fields{
			"request": req.ID,
			"risk":    analysis.Risk.String(),
		})

		tracer.AddAttributes(map[string]interface{}{
			"request":       req.ID.String(),
			"risk":          analysis.Risk.String(),
			"fully_decoded": analysis.FullyDecoded,
		})

		if s.observer != nil {
			s.observer(req, analysis)
		}

		if err := s.applyPolicy(ctx, req, analysis); err != nil {
			log.WithError(err).Info("transaction rejected by risk policy")
			tracer.OnError(err)
			return err
		}

		return next(ctx, req)
	}
}

func (s *Stage) applyPolicy(ctx context.Context, req *Request, analysis *inspect.Analysis) error {
	if s.blockCritical && analysis.Risk >= inspect.RiskCritical {
		return s.reject(ctx, req, analysis, "overall risk is critical")
	}
	if s.blockHigh && analysis.Risk >= inspect.RiskHigh {
		return s.reject(ctx, req, analysis, "overall risk is high or above")
	}
	if s.approver != nil && !s.approver(analysis) {
		return s.reject(ctx, req, analysis, "approval predicate rejected the transaction")
	}
	return nil
}

func (s *Stage) reject(ctx context.Context, req *Request, analysis *inspect.Analysis, reason string) error {
	metrics.RecordEvent(ctx, "TransactionRejected", map[string]interface{}{
		"request": req.ID.String(),
		"risk":    analysis.Risk.String(),
		"reason":  reason,
	})

	return &PolicyError{
		Analysis: analysis,
		Reason:   reason,
	}
}

// PolicyError is the stage's terminal rejection outcome. It carries the
// analysis so callers can render why the transaction was blocked.
type PolicyError struct {
	Analysis *inspect.Analysis
	Reason   string
}

func (e *PolicyError) Error() string {
	return "transaction rejected by policy: " + e.Reason
}
