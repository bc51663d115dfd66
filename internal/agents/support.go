package agents

import (
	"context"
	"fmt"
	"strings"

	"supportmesh/internal/a2a"
	"supportmesh/internal/types"
)

// Responder produces the support answer for one query. The context map holds
// data gathered by earlier tasks in the same chain, when any.
type Responder interface {
	Respond(ctx context.Context, query string, contextData map[string]any, priority types.Priority) (string, error)
}

var supportSkills = []a2a.Skill{
	{
		ID:          types.CapGuidance,
		Name:        "Guidance",
		Description: "Answer support questions and resolve customer issues",
		Tags:        []string{"support", "guidance"},
		Required:    []string{"query"},
		Optional:    []string{"context"},
	},
	{
		ID:          "escalation",
		Name:        "Escalation",
		Description: "Handle urgent issues such as refunds and double charges",
		Tags:        []string{"support", "escalation", "urgent"},
		Required:    []string{"query"},
		Optional:    []string{"context"},
	},
}

// SupportHandler serves guidance skills through a Responder.
type SupportHandler struct {
	responder Responder
}

func NewSupportHandler(responder Responder) *SupportHandler {
	return &SupportHandler{responder: responder}
}

func (h *SupportHandler) Skills() []a2a.Skill {
	return supportSkills
}

func (h *SupportHandler) Handle(ctx context.Context, task types.Task) (map[string]any, error) {
	query, _ := task.Payload["query"].(string)
	contextData, _ := task.Payload["context"].(map[string]any)

	answer, err := h.responder.Respond(ctx, query, contextData, task.Priority)
	if err != nil {
		return nil, fmt.Errorf("respond: %w", err)
	}
	return map[string]any{"answer": answer}, nil
}

// TemplateResponder is a deterministic Responder used when no model backend
// is configured. It acknowledges the request and surfaces whatever context
// the chain gathered.
type TemplateResponder struct{}

func (TemplateResponder) Respond(_ context.Context, query string, contextData map[string]any, priority types.Priority) (string, error) {
	var b strings.Builder
	if priority == types.PriorityUrgent {
		b.WriteString("Your request has been escalated and will be handled with priority. ")
	}
	b.WriteString("We have received your request")
	if query != "" {
		b.WriteString(fmt.Sprintf(" regarding: %q", query))
	}
	b.WriteString(".")
	if len(contextData) > 0 {
		b.WriteString(" We reviewed your account details while preparing this response.")
	}
	b.WriteString(" A support specialist will follow up if anything further is needed.")
	return b.String(), nil
}
