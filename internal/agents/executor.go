// Package agents implements the specialist side of the system: servers that
// accept routed tasks over the A2A protocol, run them through a skill
// handler, and report results. Failures inside a task become error results
// on a completed protocol task; only an undecodable request fails the
// protocol exchange itself.
package agents

import (
	"context"
	"errors"
	"fmt"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/rs/zerolog"

	"supportmesh/internal/a2a"
	"supportmesh/internal/gateway"
	"supportmesh/internal/logx"
	"supportmesh/internal/types"
)

// Handler executes one routed task for a specialist. The returned map is the
// task result payload; errors are mapped onto the error taxonomy by the
// executor.
type Handler interface {
	Skills() []a2a.Skill
	Handle(ctx context.Context, task types.Task) (map[string]any, error)
}

// Executor bridges the A2A server framework and a Handler, pushing work
// through the two-lane queue so urgent tasks overtake queued normal ones.
type Executor struct {
	handler Handler
	queue   *Queue
	skills  map[string]a2a.Skill
	log     zerolog.Logger
}

func NewExecutor(name string, handler Handler, queue *Queue) *Executor {
	skills := make(map[string]a2a.Skill)
	for _, s := range handler.Skills() {
		skills[s.ID] = s
	}
	return &Executor{
		handler: handler,
		queue:   queue,
		skills:  skills,
		log:     logx.Component(name),
	}
}

// Execute implements a2asrv.AgentExecutor.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	task, err := a2a.DecodeTask(reqCtx.Message)
	if err != nil {
		return fmt.Errorf("decode routed task: %w", err)
	}

	if reqCtx.StoredTask == nil {
		event := sdka2a.NewStatusUpdateEvent(reqCtx, sdka2a.TaskStateSubmitted, nil)
		if err := queue.Write(ctx, event); err != nil {
			return fmt.Errorf("write state submitted: %w", err)
		}
	}
	event := sdka2a.NewStatusUpdateEvent(reqCtx, sdka2a.TaskStateWorking, nil)
	if err := queue.Write(ctx, event); err != nil {
		return fmt.Errorf("write state working: %w", err)
	}

	result := e.process(ctx, task)

	msg, err := a2a.EncodeResult(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	final := sdka2a.NewStatusUpdateEvent(reqCtx, sdka2a.TaskStateCompleted, msg)
	final.Final = true
	if err := queue.Write(ctx, final); err != nil {
		return fmt.Errorf("write state completed: %w", err)
	}
	return nil
}

// Cancel implements a2asrv.AgentExecutor. Tasks are short-lived so a cancel
// only acknowledges the request.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	event := sdka2a.NewStatusUpdateEvent(reqCtx, sdka2a.TaskStateCanceled, nil)
	event.Final = true
	if err := queue.Write(ctx, event); err != nil {
		return fmt.Errorf("write state canceled: %w", err)
	}
	return nil
}

func (e *Executor) process(ctx context.Context, task types.Task) types.TaskResult {
	log := e.log.With().
		Str("correlation_id", task.CorrelationID).
		Str("skill", task.SkillID).
		Str("priority", string(task.Priority)).
		Logger()

	if err := e.validatePayload(task); err != nil {
		log.Warn().Err(err).Msg("payload rejected")
		return types.ErrorResult(task.CorrelationID, types.CodeInvalidTaskPayload, err.Error())
	}

	done := make(chan types.TaskResult, 1)
	submit := func() {
		payload, err := e.handler.Handle(ctx, task)
		if err != nil {
			done <- mapHandlerError(task.CorrelationID, err)
			return
		}
		done <- types.TaskResult{
			CorrelationID: task.CorrelationID,
			Status:        types.ResultOK,
			Payload:       payload,
		}
	}
	if err := e.queue.Submit(ctx, task.Priority, submit); err != nil {
		return types.ErrorResult(task.CorrelationID, types.CodeDispatchFailure, err.Error())
	}

	select {
	case result := <-done:
		if result.Status == types.ResultOK {
			log.Info().Msg("task completed")
		} else {
			log.Warn().Str("code", result.Error.Code).Msg("task failed")
		}
		return result
	case <-ctx.Done():
		log.Warn().Msg("task timed out")
		return types.ErrorResult(task.CorrelationID, types.CodeTimeout, ctx.Err().Error())
	}
}

func (e *Executor) validatePayload(task types.Task) error {
	skill, ok := e.skills[task.SkillID]
	if !ok {
		return fmt.Errorf("skill %q not offered by this agent", task.SkillID)
	}
	for _, field := range skill.Required {
		if _, ok := task.Payload[field]; !ok {
			return fmt.Errorf("missing required field %q for skill %q", field, task.SkillID)
		}
	}
	return nil
}

func mapHandlerError(correlationID string, err error) types.TaskResult {
	var toolErr *gateway.ToolError
	if errors.As(err, &toolErr) {
		return types.ErrorResult(correlationID, toolErr.Code, toolErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorResult(correlationID, types.CodeTimeout, err.Error())
	}
	return types.ErrorResult(correlationID, types.CodeDispatchFailure, err.Error())
}
