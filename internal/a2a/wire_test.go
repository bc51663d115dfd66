package a2a

import (
	"errors"
	"testing"

	sdka2a "github.com/a2aproject/a2a-go/a2a"

	"supportmesh/internal/types"
)

func TestTaskTravelsAsDataPart(t *testing.T) {
	t.Parallel()
	task := types.Task{
		CorrelationID: "corr-1",
		ChainID:       "chain-1",
		AgentID:       "data-specialist",
		SkillID:       "record-lookup",
		Intent:        "record-lookup",
		Payload:       map[string]any{"customer_id": float64(5)},
		Priority:      types.PriorityUrgent,
		DependsOn:     -1,
	}

	msg, err := EncodeTask(task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.Role != sdka2a.MessageRoleUser {
		t.Fatalf("expected user role, got %s", msg.Role)
	}
	if msg.ContextID != "chain-1" {
		t.Fatalf("chain id not used as context id: %s", msg.ContextID)
	}
	if msg.Metadata["priority"] != "urgent" {
		t.Fatalf("priority metadata missing: %+v", msg.Metadata)
	}

	decoded, err := DecodeTask(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.CorrelationID != task.CorrelationID || decoded.SkillID != task.SkillID {
		t.Fatalf("task mangled in transit: %+v", decoded)
	}
	if decoded.Priority != types.PriorityUrgent || decoded.DependsOn != -1 {
		t.Fatalf("task mangled in transit: %+v", decoded)
	}
	if decoded.Payload["customer_id"] != float64(5) {
		t.Fatalf("payload mangled: %+v", decoded.Payload)
	}
}

func TestDecodeTaskWithoutDataPart(t *testing.T) {
	t.Parallel()
	msg := &sdka2a.Message{
		Parts: sdka2a.ContentParts{&sdka2a.TextPart{Text: "hello"}},
	}
	if _, err := DecodeTask(msg); !errors.Is(err, ErrNoTaskPart) {
		t.Fatalf("expected ErrNoTaskPart, got %v", err)
	}
	if _, err := DecodeTask(nil); !errors.Is(err, ErrNoTaskPart) {
		t.Fatalf("expected ErrNoTaskPart for nil message, got %v", err)
	}
}

func TestResultTravelsInsideCompletedTask(t *testing.T) {
	t.Parallel()
	result := types.TaskResult{
		CorrelationID: "corr-2",
		Status:        types.ResultError,
		Error:         &types.ErrorDetail{Code: types.CodeStoreError, Message: "record not found"},
	}

	msg, err := EncodeResult(result)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sdkTask := &sdka2a.Task{
		ID: "t1",
		Status: sdka2a.TaskStatus{
			State:   sdka2a.TaskStateCompleted,
			Message: msg,
		},
	}

	decoded, err := DecodeResult(sdkTask)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Status != types.ResultError || decoded.Error == nil {
		t.Fatalf("result mangled: %+v", decoded)
	}
	if decoded.Error.Code != types.CodeStoreError {
		t.Fatalf("error detail mangled: %+v", decoded.Error)
	}
}

func TestDecodeResultFromBareMessage(t *testing.T) {
	t.Parallel()
	msg, err := EncodeResult(types.TaskResult{
		CorrelationID: "corr-3",
		Status:        types.ResultOK,
		Payload:       map[string]any{"answer": "done"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeResult(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Payload["answer"] != "done" {
		t.Fatalf("payload mangled: %+v", decoded)
	}
}

func TestDecodeResultWithoutResultPart(t *testing.T) {
	t.Parallel()
	task := &sdka2a.Task{ID: "t2", Status: sdka2a.TaskStatus{State: sdka2a.TaskStateCompleted}}
	if _, err := DecodeResult(task); !errors.Is(err, ErrNoResultPart) {
		t.Fatalf("expected ErrNoResultPart, got %v", err)
	}
}
