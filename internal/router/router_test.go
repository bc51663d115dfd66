package router_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdka2a "github.com/a2aproject/a2a-go/a2a"

	"supportmesh/internal/directory"
	"supportmesh/internal/reasoning"
	"supportmesh/internal/router"
	"supportmesh/internal/types"
)

type fakeEngine struct {
	classification types.Classification
	classifyErr    error
}

func (e *fakeEngine) Classify(_ context.Context, _ string) (types.Classification, error) {
	if e.classifyErr != nil {
		return types.Classification{}, e.classifyErr
	}
	return e.classification, nil
}

func (e *fakeEngine) Synthesize(_ context.Context, input reasoning.SynthesisInput) (string, error) {
	parts := make([]string, 0, len(input.Results))
	for _, r := range input.Results {
		parts = append(parts, string(r.Status))
	}
	return strings.Join(parts, ","), nil
}

type dispatchCall struct {
	agentID string
	task    types.Task
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	fn    func(ctx context.Context, entry *directory.Entry, task types.Task) (types.TaskResult, error)
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, entry *directory.Entry, task types.Task) (types.TaskResult, error) {
	d.mu.Lock()
	d.calls = append(d.calls, dispatchCall{agentID: entry.AgentID, task: task})
	d.mu.Unlock()
	if d.fn != nil {
		return d.fn(ctx, entry, task)
	}
	return types.TaskResult{
		CorrelationID: task.CorrelationID,
		Status:        types.ResultOK,
		Payload:       map[string]any{"intent": task.Intent},
	}, nil
}

func (d *fakeDispatcher) recorded() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]dispatchCall, len(d.calls))
	copy(out, d.calls)
	return out
}

func testDirectory() *directory.Directory {
	dir := directory.New(directory.WithTTL(time.Hour))
	dir.Register("data-specialist", "http://data", &sdka2a.AgentCard{
		Name: "data-specialist",
		Skills: []sdka2a.AgentSkill{
			{ID: types.CapRecordLookup, Name: "Record Lookup"},
			{ID: types.CapRecordUpdate, Name: "Record Update"},
			{ID: types.CapCaseHistory, Name: "Case History"},
		},
	})
	dir.Register("support-specialist", "http://support", &sdka2a.AgentCard{
		Name: "support-specialist",
		Skills: []sdka2a.AgentSkill{
			{ID: types.CapGuidance, Name: "Guidance"},
		},
	})
	return dir
}

func intent(capability string, entities map[string]any) types.Intent {
	return types.Intent{Capability: capability, Entities: entities}
}

func TestSingleDataQuery(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentDataOnly,
		Priority: types.PriorityNormal,
		Intents:  []types.Intent{intent(types.CapRecordLookup, map[string]any{"customer_id": int64(5)})},
	}}
	dispatcher := &fakeDispatcher{}
	r := router.New(engine, testDirectory(), dispatcher)

	resp := r.Handle(context.Background(), "Get customer information for ID 5")

	if resp.Strategy != types.StrategySingle {
		t.Fatalf("expected single strategy, got %s", resp.Strategy)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Status != types.ResultOK {
		t.Fatalf("expected ok result: %+v", resp.Results[0])
	}

	calls := dispatcher.recorded()
	if len(calls) != 1 || calls[0].agentID != "data-specialist" {
		t.Fatalf("unexpected dispatches: %+v", calls)
	}
	if calls[0].task.SkillID != types.CapRecordLookup {
		t.Fatalf("unexpected skill: %s", calls[0].task.SkillID)
	}
	if got := calls[0].task.Payload["customer_id"]; got != int64(5) {
		t.Fatalf("customer_id not forwarded: %v", got)
	}
	if resp.Results[0].CorrelationID != calls[0].task.CorrelationID {
		t.Fatalf("correlation mismatch")
	}
}

func TestParallelIntentsRunConcurrentlyAndKeepOrder(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentMultiple,
		Priority: types.PriorityNormal,
		Intents: []types.Intent{
			intent(types.CapRecordUpdate, map[string]any{"customer_id": int64(1), "email": "a@b.c"}),
			intent(types.CapCaseHistory, map[string]any{"customer_id": int64(1)}),
		},
	}}

	// The first task blocks until the second is dispatched; sequential
	// execution would deadlock here and trip the test timeout.
	firstMayFinish := make(chan struct{})
	dispatcher := &fakeDispatcher{}
	dispatcher.fn = func(ctx context.Context, _ *directory.Entry, task types.Task) (types.TaskResult, error) {
		if task.Intent == types.CapRecordUpdate {
			select {
			case <-firstMayFinish:
			case <-ctx.Done():
				return types.TaskResult{}, ctx.Err()
			}
			return types.TaskResult{Status: types.ResultOK, Payload: map[string]any{"order": "first"}}, nil
		}
		close(firstMayFinish)
		return types.TaskResult{Status: types.ResultOK, Payload: map[string]any{"order": "second"}}, nil
	}

	r := router.New(engine, testDirectory(), dispatcher, router.WithTaskTimeout(2*time.Second))
	resp := r.Handle(context.Background(), "update my email and show my history")

	if resp.Strategy != types.StrategyParallel {
		t.Fatalf("expected parallel strategy, got %s", resp.Strategy)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	// Results stay in decomposition order even though the second intent
	// finished first.
	if resp.Results[0].Payload["order"] != "first" || resp.Results[1].Payload["order"] != "second" {
		t.Fatalf("results out of decomposition order: %+v", resp.Results)
	}
}

func TestDataThenSupportGatesOnDependency(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentDataThenSupport,
		Priority: types.PriorityNormal,
		Intents: []types.Intent{
			intent(types.CapRecordLookup, map[string]any{"customer_id": int64(4)}),
			intent(types.CapGuidance, map[string]any{"query": "refund please"}),
		},
	}}

	dispatcher := &fakeDispatcher{}
	dispatcher.fn = func(_ context.Context, _ *directory.Entry, task types.Task) (types.TaskResult, error) {
		if task.Intent == types.CapRecordLookup {
			return types.TaskResult{Status: types.ResultOK, Payload: map[string]any{"name": "Derya Aksoy"}}, nil
		}
		return types.TaskResult{Status: types.ResultOK, Payload: map[string]any{"answer": "handled"}}, nil
	}

	r := router.New(engine, testDirectory(), dispatcher)
	resp := r.Handle(context.Background(), "I need a refund for customer 4")

	if resp.Strategy != types.StrategySequential {
		t.Fatalf("expected sequential strategy, got %s", resp.Strategy)
	}
	calls := dispatcher.recorded()
	if len(calls) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(calls))
	}
	if calls[0].task.Intent != types.CapRecordLookup || calls[1].task.Intent != types.CapGuidance {
		t.Fatalf("dependency dispatched before its data task: %+v", calls)
	}

	embedded, ok := calls[1].task.Payload["context"].(map[string]any)
	if !ok {
		t.Fatalf("dependency result not embedded: %+v", calls[1].task.Payload)
	}
	data, ok := embedded["data"].(map[string]any)
	if !ok || data["name"] != "Derya Aksoy" {
		t.Fatalf("dependency payload missing from context: %+v", embedded)
	}
}

func TestDependencyFailureStillReachesSupport(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentDataThenSupport,
		Priority: types.PriorityNormal,
		Intents: []types.Intent{
			intent(types.CapRecordLookup, map[string]any{"customer_id": int64(9999)}),
			intent(types.CapGuidance, map[string]any{"query": "refund please"}),
		},
	}}

	dispatcher := &fakeDispatcher{}
	dispatcher.fn = func(_ context.Context, _ *directory.Entry, task types.Task) (types.TaskResult, error) {
		if task.Intent == types.CapRecordLookup {
			return types.TaskResult{
				Status: types.ResultError,
				Error:  &types.ErrorDetail{Code: types.CodeStoreError, Message: "customer 9999: record not found"},
			}, nil
		}
		return types.TaskResult{Status: types.ResultOK, Payload: map[string]any{"answer": "we will help"}}, nil
	}

	r := router.New(engine, testDirectory(), dispatcher)
	resp := r.Handle(context.Background(), "refund for customer 9999")

	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Status != types.ResultError || resp.Results[1].Status != types.ResultOK {
		t.Fatalf("unexpected statuses: %+v", resp.Results)
	}

	calls := dispatcher.recorded()
	embedded, ok := calls[1].task.Payload["context"].(map[string]any)
	if !ok {
		t.Fatalf("context missing on dependent task")
	}
	errInfo, ok := embedded["error"].(map[string]any)
	if !ok || errInfo["code"] != types.CodeStoreError {
		t.Fatalf("dependency error not embedded: %+v", embedded)
	}
}

func TestUrgentPriorityPropagates(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentDataThenSupport,
		Priority: types.PriorityUrgent,
		Intents: []types.Intent{
			intent(types.CapRecordLookup, map[string]any{"customer_id": int64(4)}),
			intent(types.CapGuidance, map[string]any{"query": "charged twice"}),
		},
	}}
	dispatcher := &fakeDispatcher{}
	r := router.New(engine, testDirectory(), dispatcher)

	resp := r.Handle(context.Background(), "charged twice, refund immediately")

	if resp.Priority != types.PriorityUrgent {
		t.Fatalf("expected urgent response, got %s", resp.Priority)
	}
	for _, call := range dispatcher.recorded() {
		if call.task.Priority != types.PriorityUrgent {
			t.Fatalf("task not urgent: %+v", call.task)
		}
	}
}

func TestPartialFailureDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentMultiple,
		Priority: types.PriorityNormal,
		Intents: []types.Intent{
			intent(types.CapRecordUpdate, map[string]any{"customer_id": int64(1), "email": "a@b.c"}),
			intent(types.CapCaseHistory, map[string]any{"customer_id": int64(1)}),
		},
	}}

	dispatcher := &fakeDispatcher{}
	dispatcher.fn = func(_ context.Context, _ *directory.Entry, task types.Task) (types.TaskResult, error) {
		if task.Intent == types.CapRecordUpdate {
			return types.TaskResult{}, errors.New("connection refused")
		}
		return types.TaskResult{Status: types.ResultOK, Payload: map[string]any{"cases": 3}}, nil
	}

	r := router.New(engine, testDirectory(), dispatcher)
	resp := r.Handle(context.Background(), "update my email and show my history")

	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Status != types.ResultError {
		t.Fatalf("expected first result failed: %+v", resp.Results[0])
	}
	if resp.Results[0].Error.Code != types.CodeDispatchFailure {
		t.Fatalf("expected dispatch_failure, got %s", resp.Results[0].Error.Code)
	}
	if resp.Results[1].Status != types.ResultOK {
		t.Fatalf("sibling aborted: %+v", resp.Results[1])
	}
	if resp.Answer != "error,ok" {
		t.Fatalf("synthesis did not see both results: %q", resp.Answer)
	}
}

func TestTaskTimeoutBecomesErrorResult(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentDataOnly,
		Priority: types.PriorityNormal,
		Intents:  []types.Intent{intent(types.CapRecordLookup, map[string]any{"customer_id": int64(1)})},
	}}

	dispatcher := &fakeDispatcher{}
	dispatcher.fn = func(ctx context.Context, _ *directory.Entry, _ types.Task) (types.TaskResult, error) {
		<-ctx.Done()
		return types.TaskResult{}, ctx.Err()
	}

	r := router.New(engine, testDirectory(), dispatcher, router.WithTaskTimeout(20*time.Millisecond))
	resp := r.Handle(context.Background(), "get customer 1")

	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Error == nil || resp.Results[0].Error.Code != types.CodeTimeout {
		t.Fatalf("expected timeout error, got %+v", resp.Results[0])
	}
}

func TestClassificationFailureYieldsGenericAnswer(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classifyErr: reasoning.ErrUnclassifiable}
	dispatcher := &fakeDispatcher{}
	r := router.New(engine, testDirectory(), dispatcher)

	resp := r.Handle(context.Background(), "??")

	if len(resp.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(resp.Results))
	}
	if resp.Priority != types.PriorityNormal {
		t.Fatalf("expected normal priority, got %s", resp.Priority)
	}
	if resp.Answer == "" || !strings.Contains(resp.Answer, "could not understand") {
		t.Fatalf("generic answer missing: %q", resp.Answer)
	}
	if len(dispatcher.recorded()) != 0 {
		t.Fatalf("tasks dispatched despite classification failure")
	}
}

func TestNoCapableAgentBecomesErrorResult(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentDataOnly,
		Priority: types.PriorityNormal,
		Intents:  []types.Intent{intent("telepathy", nil)},
	}}
	dispatcher := &fakeDispatcher{}
	r := router.New(engine, testDirectory(), dispatcher)

	resp := r.Handle(context.Background(), "read my mind")

	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Error == nil || resp.Results[0].Error.Code != types.CodeNoCapableAgent {
		t.Fatalf("expected no_capable_agent, got %+v", resp.Results[0])
	}
	if len(dispatcher.recorded()) != 0 {
		t.Fatalf("unresolvable task was dispatched")
	}
}

func TestAssignmentFailureIsFatalToWholeQuery(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentMultiple,
		Priority: types.PriorityNormal,
		Intents: []types.Intent{
			intent(types.CapRecordLookup, map[string]any{"customer_id": int64(1)}),
			intent("telepathy", nil),
		},
	}}
	dispatcher := &fakeDispatcher{}
	r := router.New(engine, testDirectory(), dispatcher)

	resp := r.Handle(context.Background(), "get customer 1 and read my mind")

	if len(resp.Results) != 1 {
		t.Fatalf("expected the single fatal result, got %d", len(resp.Results))
	}
	if resp.Results[0].Error == nil || resp.Results[0].Error.Code != types.CodeNoCapableAgent {
		t.Fatalf("expected no_capable_agent, got %+v", resp.Results[0])
	}
	if len(dispatcher.recorded()) != 0 {
		t.Fatalf("servable sibling dispatched despite fatal assignment failure")
	}
}

func TestAmbiguousCapabilityBecomesErrorResult(t *testing.T) {
	t.Parallel()
	dir := testDirectory()
	dir.Register("data-mirror", "http://mirror", &sdka2a.AgentCard{
		Name:   "data-mirror",
		Skills: []sdka2a.AgentSkill{{ID: types.CapRecordLookup, Name: "Record Lookup"}},
	})

	engine := &fakeEngine{classification: types.Classification{
		Kind:     types.IntentDataOnly,
		Priority: types.PriorityNormal,
		Intents:  []types.Intent{intent(types.CapRecordLookup, nil)},
	}}
	dispatcher := &fakeDispatcher{}
	r := router.New(engine, dir, dispatcher)

	resp := r.Handle(context.Background(), "get customer 1")

	if resp.Results[0].Error == nil || resp.Results[0].Error.Code != types.CodeAmbiguousCapability {
		t.Fatalf("expected ambiguous_capability, got %+v", resp.Results[0])
	}
}
