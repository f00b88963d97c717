// Package llm is the LLM client (spec.md C4): a bounded-concurrency,
// retrying, JSON-sanitizing wrapper around whatever completion endpoint
// RunOptions.LLM points at. Every worker stage (file analysis, relationship
// resolution, directory summarization) talks to this interface, never to
// net/http directly.
package llm

import (
	"context"
	"errors"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// ErrUnparseable is returned by CompleteJSON once the sanitizer and
// self-heal loop both fail to produce parseable JSON matching the
// expected shape (spec.md §4.3's exhaustion case). Callers treat this as
// a data-shape failure: DLQ the job, pipeline continues.
var ErrUnparseable = errors.New("llm: response unparseable as json after self-heal")

// Client is the LLM contract every worker depends on.
type Client interface {
	// Complete sends prompt and returns the raw completion text plus token
	// accounting. schemaHint is passed to the provider alongside the prompt
	// (HTTPClient sends it as the request's schema_hint field) to steer the
	// model toward the expected JSON shape; it is not validated here.
	Complete(ctx context.Context, prompt, schemaHint string) (string, models.TokenStats, error)

	// CompleteJSON calls Complete, then sanitizes and unmarshals the
	// result into out (a pointer to the expected shape), self-healing up
	// to two additional attempts on parse failure before returning
	// ErrUnparseable.
	CompleteJSON(ctx context.Context, prompt string, out any) (models.TokenStats, error)
}
