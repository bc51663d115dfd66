package agents

import (
	"context"
	"fmt"

	"supportmesh/internal/a2a"
	"supportmesh/internal/gateway"
	"supportmesh/internal/types"
)

// skillBinding ties one advertised skill to the gateway tool serving it and
// the payload keys forwarded as tool arguments.
type skillBinding struct {
	skill a2a.Skill
	tool  string
	args  []string
}

var dataBindings = []skillBinding{
	{
		skill: a2a.Skill{
			ID:          types.CapRecordLookup,
			Name:        "Record Lookup",
			Description: "Fetch one customer record by ID",
			Tags:        []string{"data", "customer", "read"},
			Required:    []string{"customer_id"},
		},
		tool: gateway.ToolFetchRecord,
		args: []string{"customer_id"},
	},
	{
		skill: a2a.Skill{
			ID:          types.CapRecordListing,
			Name:        "Record Listing",
			Description: "List customer records, optionally filtered by status",
			Tags:        []string{"data", "customer", "read"},
			Optional:    []string{"status", "limit"},
		},
		tool: gateway.ToolListRecords,
		args: []string{"status", "limit"},
	},
	{
		skill: a2a.Skill{
			ID:          types.CapRecordUpdate,
			Name:        "Record Update",
			Description: "Update fields on one customer record",
			Tags:        []string{"data", "customer", "write"},
			Required:    []string{"customer_id", "fields"},
		},
		tool: gateway.ToolUpdateRecord,
		args: []string{"customer_id", "fields"},
	},
	{
		skill: a2a.Skill{
			ID:          types.CapCaseHistory,
			Name:        "Case History",
			Description: "Fetch the full support case history of one customer",
			Tags:        []string{"data", "cases", "read"},
			Required:    []string{"customer_id"},
		},
		tool: gateway.ToolFetchHistory,
		args: []string{"customer_id"},
	},
	{
		skill: a2a.Skill{
			ID:          types.CapOpenCaseReport,
			Name:        "Open Case Report",
			Description: "List customers that currently have open support cases",
			Tags:        []string{"data", "cases", "read"},
			Optional:    []string{"status"},
		},
		tool: gateway.ToolListRecordsWithOpenCases,
		args: []string{"status"},
	},
	{
		skill: a2a.Skill{
			ID:          types.CapCaseIntake,
			Name:        "Case Intake",
			Description: "Open a new support case for an existing customer",
			Tags:        []string{"data", "cases", "write"},
			Required:    []string{"customer_id", "issue"},
			Optional:    []string{"priority"},
		},
		tool: gateway.ToolCreateCase,
		args: []string{"customer_id", "issue", "priority"},
	},
}

// DataHandler serves record skills by calling tools on the gateway.
type DataHandler struct {
	tools    gateway.ToolCaller
	bindings map[string]skillBinding
}

func NewDataHandler(tools gateway.ToolCaller) *DataHandler {
	bindings := make(map[string]skillBinding, len(dataBindings))
	for _, b := range dataBindings {
		bindings[b.skill.ID] = b
	}
	return &DataHandler{tools: tools, bindings: bindings}
}

func (h *DataHandler) Skills() []a2a.Skill {
	skills := make([]a2a.Skill, 0, len(dataBindings))
	for _, b := range dataBindings {
		skills = append(skills, b.skill)
	}
	return skills
}

func (h *DataHandler) Handle(ctx context.Context, task types.Task) (map[string]any, error) {
	binding, ok := h.bindings[task.SkillID]
	if !ok {
		return nil, fmt.Errorf("no binding for skill %q", task.SkillID)
	}

	args := make(map[string]any, len(binding.args))
	for _, name := range binding.args {
		if v, ok := task.Payload[name]; ok {
			args[name] = v
		}
	}
	return h.tools.CallTool(ctx, binding.tool, args)
}
