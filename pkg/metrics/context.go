package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type newRelicContextKey struct{}

// NewRelicContextKey is the context key under which the New Relic
// application is stored.
var NewRelicContextKey newRelicContextKey

// WithApplication attaches a New Relic application to the context so
// metric and event recording become active.
func WithApplication(ctx context.Context, app *newrelic.Application) context.Context {
	return context.WithValue(ctx, NewRelicContextKey, app)
}
