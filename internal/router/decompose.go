package router

import (
	"github.com/google/uuid"

	"supportmesh/internal/types"
)

// decompose turns a classification into an ordered task plan. Every task
// gets its own correlation ID; tasks in one dependency chain share a chain
// ID. The classification's priority is stamped onto every task.
func decompose(query string, c types.Classification) []types.Task {
	chainID := uuid.NewString()
	plan := make([]types.Task, 0, len(c.Intents))

	for i, intent := range c.Intents {
		task := types.Task{
			CorrelationID: uuid.NewString(),
			ChainID:       chainID,
			Intent:        intent.Capability,
			Payload:       buildPayload(query, intent, c.Priority),
			Priority:      c.Priority,
			DependsOn:     -1,
		}
		if c.Kind == types.IntentDataThenSupport && i > 0 {
			task.DependsOn = i - 1
		}
		plan = append(plan, task)
	}
	return plan
}

// buildPayload shapes the task payload for the capability from the entities
// the classifier extracted.
func buildPayload(query string, intent types.Intent, priority types.Priority) map[string]any {
	payload := make(map[string]any)
	entities := intent.Entities

	switch intent.Capability {
	case types.CapRecordLookup, types.CapCaseHistory:
		if id, ok := entities["customer_id"]; ok {
			payload["customer_id"] = id
		}
	case types.CapRecordListing, types.CapOpenCaseReport:
		if status, ok := entities["status"]; ok {
			payload["status"] = status
		}
		if limit, ok := entities["limit"]; ok {
			payload["limit"] = limit
		}
	case types.CapRecordUpdate:
		if id, ok := entities["customer_id"]; ok {
			payload["customer_id"] = id
		}
		fields := make(map[string]any)
		for _, key := range []string{"email", "phone", "name", "status"} {
			if v, ok := entities[key]; ok {
				fields[key] = v
			}
		}
		payload["fields"] = fields
	case types.CapCaseIntake:
		if id, ok := entities["customer_id"]; ok {
			payload["customer_id"] = id
		}
		issue := query
		if v, ok := entities["issue"].(string); ok && v != "" {
			issue = v
		}
		payload["issue"] = issue
		if priority == types.PriorityUrgent {
			payload["priority"] = "high"
		}
	default:
		payload["query"] = query
	}
	return payload
}

// strategyFor maps the intent taxonomy onto the response strategy tag.
func strategyFor(kind types.IntentKind) types.Strategy {
	switch kind {
	case types.IntentDataThenSupport:
		return types.StrategySequential
	case types.IntentMultiple:
		return types.StrategyParallel
	default:
		return types.StrategySingle
	}
}
