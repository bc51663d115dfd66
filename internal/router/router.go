// Package router is the orchestration core. It classifies a query, breaks it
// into tasks, fans them out to specialists, blocks until every task has a
// result, and aggregates the results in decomposition order into one answer.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"supportmesh/internal/directory"
	"supportmesh/internal/logx"
	"supportmesh/internal/reasoning"
	"supportmesh/internal/types"
)

const genericFailureAnswer = "We could not understand your request. Please rephrase it or contact support directly."

// Router coordinates classification, dispatch and aggregation.
type Router struct {
	engine      reasoning.Engine
	dir         *directory.Directory
	dispatcher  Dispatcher
	taskTimeout time.Duration
	log         zerolog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithTaskTimeout bounds every dispatched task.
func WithTaskTimeout(d time.Duration) Option {
	return func(r *Router) { r.taskTimeout = d }
}

func New(engine reasoning.Engine, dir *directory.Directory, dispatcher Dispatcher, opts ...Option) *Router {
	r := &Router{
		engine:      engine,
		dir:         dir,
		dispatcher:  dispatcher,
		taskTimeout: 30 * time.Second,
		log:         logx.Component("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle serves one query end to end. A classification failure aborts before
// any task is created and yields a generic answer; anything after that point
// always produces one result per planned task, failures included.
func (r *Router) Handle(ctx context.Context, query string) types.AggregatedResponse {
	classification, err := r.engine.Classify(ctx, query)
	if err != nil {
		r.log.Warn().Err(err).Msg("classification failed")
		return types.AggregatedResponse{
			Query:    query,
			Strategy: types.StrategySingle,
			Priority: types.PriorityNormal,
			Results:  []types.TaskResult{},
			Answer:   genericFailureAnswer,
		}
	}

	plan := decompose(query, classification)
	r.log.Info().
		Str("kind", string(classification.Kind)).
		Str("priority", string(classification.Priority)).
		Int("tasks", len(plan)).
		Msg("query decomposed")

	// Agent assignment happens before any dispatch: a capability nobody
	// serves, or one served ambiguously, is a configuration error and fails
	// the whole query rather than one task of it.
	if fatal := r.assign(plan); fatal != nil {
		r.log.Error().
			Str("code", fatal.Error.Code).
			Str("message", fatal.Error.Message).
			Msg("agent assignment failed")
		return types.AggregatedResponse{
			Query:    query,
			Strategy: strategyFor(classification.Kind),
			Priority: classification.Priority,
			Results:  []types.TaskResult{*fatal},
			Answer:   summarize([]types.TaskResult{*fatal}, classification.Priority),
		}
	}

	results := r.execute(ctx, plan)

	answer, err := r.engine.Synthesize(ctx, reasoning.SynthesisInput{
		Query:    query,
		Strategy: strategyFor(classification.Kind),
		Priority: classification.Priority,
		Results:  results,
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("synthesis failed, falling back to summary")
		answer = summarize(results, classification.Priority)
	}

	return types.AggregatedResponse{
		Query:    query,
		Strategy: strategyFor(classification.Kind),
		Priority: classification.Priority,
		Results:  results,
		Answer:   answer,
	}
}

// execute runs the plan: independent tasks concurrently, dependent tasks
// gated on their dependency's recorded result. The returned slice is in plan
// order regardless of completion order.
func (r *Router) execute(ctx context.Context, plan []types.Task) []types.TaskResult {
	results := make([]types.TaskResult, len(plan))
	done := make([]chan struct{}, len(plan))
	for i := range plan {
		done[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for i := range plan {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer close(done[i])

			task := plan[i]
			if task.DependsOn >= 0 {
				select {
				case <-done[task.DependsOn]:
					embedContext(&task, results[task.DependsOn])
				case <-ctx.Done():
					results[i] = types.ErrorResult(task.CorrelationID, types.CodeTimeout, ctx.Err().Error())
					return
				}
			}
			results[i] = r.runTask(ctx, task)
		}(i)
	}
	wg.Wait()
	return results
}

// assign resolves every task's intent to an agent and skill in place. The
// returned result, when non-nil, is the query-fatal assignment failure.
func (r *Router) assign(plan []types.Task) *types.TaskResult {
	for i := range plan {
		selection, err := r.dir.Select(plan[i].Intent)
		if err != nil {
			fatal := types.ErrorResult(plan[i].CorrelationID, selectionCode(err), err.Error())
			return &fatal
		}
		plan[i].AgentID = selection.AgentID
		plan[i].SkillID = selection.SkillID
	}
	return nil
}

func (r *Router) runTask(ctx context.Context, task types.Task) types.TaskResult {
	entry, err := r.dir.Resolve(ctx, task.AgentID)
	if err != nil {
		return types.ErrorResult(task.CorrelationID, types.CodeUnknownAgent, err.Error())
	}

	taskCtx, cancel := context.WithTimeout(ctx, r.taskTimeout)
	defer cancel()

	result, err := r.dispatcher.Dispatch(taskCtx, entry, task)
	if err != nil {
		code := types.CodeDispatchFailure
		if errors.Is(err, context.DeadlineExceeded) {
			code = types.CodeTimeout
		}
		r.log.Warn().Err(err).Str("agent", task.AgentID).Str("correlation_id", task.CorrelationID).Msg("dispatch failed")
		return types.ErrorResult(task.CorrelationID, code, err.Error())
	}
	result.CorrelationID = task.CorrelationID
	return result
}

// embedContext hands the dependency's outcome to the dependent task. A
// failed dependency still flows through so the downstream specialist can
// respond to the failure instead of the chain silently dying.
func embedContext(task *types.Task, dep types.TaskResult) {
	contextData := map[string]any{"status": string(dep.Status)}
	if dep.Payload != nil {
		contextData["data"] = dep.Payload
	}
	if dep.Error != nil {
		contextData["error"] = map[string]any{"code": dep.Error.Code, "message": dep.Error.Message}
	}
	if task.Payload == nil {
		task.Payload = make(map[string]any)
	}
	task.Payload["context"] = contextData
}

func selectionCode(err error) string {
	switch {
	case errors.Is(err, directory.ErrAmbiguousCapability):
		return types.CodeAmbiguousCapability
	case errors.Is(err, directory.ErrUnknownAgent):
		return types.CodeUnknownAgent
	default:
		return types.CodeNoCapableAgent
	}
}

func summarize(results []types.TaskResult, priority types.Priority) string {
	fallback := reasoning.NewRuleEngine()
	answer, _ := fallback.Synthesize(context.Background(), reasoning.SynthesisInput{
		Priority: priority,
		Results:  results,
	})
	return answer
}
