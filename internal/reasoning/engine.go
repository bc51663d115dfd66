// Package reasoning holds the engines that classify incoming queries and
// synthesize final answers. The router depends only on the Engine interface;
// deployments pick the LLM-backed engine or the deterministic rule engine.
package reasoning

import (
	"context"
	"errors"

	"supportmesh/internal/types"
)

// ErrUnclassifiable is returned when an engine cannot produce a usable
// classification for a query.
var ErrUnclassifiable = errors.New("query could not be classified")

// SynthesisInput is everything an engine gets to compose the final answer.
// Results arrive in decomposition order and may contain error entries.
type SynthesisInput struct {
	Query    string
	Strategy types.Strategy
	Priority types.Priority
	Results  []types.TaskResult
}

// Engine classifies queries and synthesizes answers.
type Engine interface {
	Classify(ctx context.Context, query string) (types.Classification, error)
	Synthesize(ctx context.Context, input SynthesisInput) (string, error)
}
