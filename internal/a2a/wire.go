// Package a2a translates between the domain task model and the A2A protocol
// types used on the wire. A routed task travels as a DataPart inside a user
// message; the specialist's result comes back as a DataPart inside the status
// message of a completed protocol task.
package a2a

import (
	"encoding/json"
	"errors"
	"fmt"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"supportmesh/internal/types"
)

const (
	// TaskDataKey is the DataPart field carrying an encoded task.
	TaskDataKey = "task"
	// ResultDataKey is the DataPart field carrying an encoded task result.
	ResultDataKey = "result"
)

var (
	ErrNoTaskPart   = errors.New("message carries no task part")
	ErrNoResultPart = errors.New("response carries no result part")
)

// EncodeTask wraps a routed task in a protocol message ready for SendMessage.
func EncodeTask(task types.Task) (*sdka2a.Message, error) {
	data, err := toMap(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return &sdka2a.Message{
		ID:        uuid.NewString(),
		Role:      sdka2a.MessageRoleUser,
		ContextID: task.ChainID,
		Parts: sdka2a.ContentParts{
			&sdka2a.DataPart{Data: map[string]any{TaskDataKey: data}},
		},
		Metadata: map[string]any{
			"correlationId": task.CorrelationID,
			"priority":      string(task.Priority),
		},
	}, nil
}

// DecodeTask extracts the routed task from an incoming protocol message.
func DecodeTask(msg *sdka2a.Message) (types.Task, error) {
	if msg == nil {
		return types.Task{}, ErrNoTaskPart
	}
	for _, p := range msg.Parts {
		dp, ok := p.(*sdka2a.DataPart)
		if !ok {
			continue
		}
		raw, ok := dp.Data[TaskDataKey]
		if !ok {
			continue
		}
		var task types.Task
		if err := fromAny(raw, &task); err != nil {
			return types.Task{}, fmt.Errorf("decode task: %w", err)
		}
		return task, nil
	}
	return types.Task{}, ErrNoTaskPart
}

// EncodeResult wraps a task result in an agent message suitable for the
// completion status of a protocol task.
func EncodeResult(result types.TaskResult) (*sdka2a.Message, error) {
	data, err := toMap(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &sdka2a.Message{
		ID:   uuid.NewString(),
		Role: sdka2a.MessageRoleAgent,
		Parts: sdka2a.ContentParts{
			&sdka2a.DataPart{Data: map[string]any{ResultDataKey: data}},
		},
	}, nil
}

// DecodeResult extracts a task result from a SendMessage response, which the
// protocol allows to be either a bare message or a task whose status message
// carries the payload.
func DecodeResult(result sdka2a.SendMessageResult) (types.TaskResult, error) {
	switch r := result.(type) {
	case *sdka2a.Message:
		return resultFromMessage(r)
	case *sdka2a.Task:
		if r.Status.Message == nil {
			return types.TaskResult{}, ErrNoResultPart
		}
		return resultFromMessage(r.Status.Message)
	default:
		return types.TaskResult{}, fmt.Errorf("unexpected response type %T", result)
	}
}

func resultFromMessage(msg *sdka2a.Message) (types.TaskResult, error) {
	if msg == nil {
		return types.TaskResult{}, ErrNoResultPart
	}
	for _, p := range msg.Parts {
		dp, ok := p.(*sdka2a.DataPart)
		if !ok {
			continue
		}
		raw, ok := dp.Data[ResultDataKey]
		if !ok {
			continue
		}
		var result types.TaskResult
		if err := fromAny(raw, &result); err != nil {
			return types.TaskResult{}, fmt.Errorf("decode result: %w", err)
		}
		return result, nil
	}
	return types.TaskResult{}, ErrNoResultPart
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromAny(raw any, out any) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}
