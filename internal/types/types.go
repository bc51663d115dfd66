package types

// Priority is the escalation level attached to a query and to every task
// decomposed from it.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

// Strategy tags how a query was decomposed.
type Strategy string

const (
	StrategySingle     Strategy = "single"
	StrategySequential Strategy = "sequential-coordination"
	StrategyParallel   Strategy = "parallel-multi-intent"
)

// IntentKind is the top-level classification of a query.
type IntentKind string

const (
	IntentDataOnly        IntentKind = "data-only"
	IntentSupportOnly     IntentKind = "support-only"
	IntentDataThenSupport IntentKind = "data-then-support"
	IntentMultiple        IntentKind = "multiple-independent-intents"
)

// Intent is one classified need extracted from a query. Capability is the
// free-form description of the skill required to serve it; Entities carries
// whatever the classifier extracted (customer ID, update fields, issue text).
type Intent struct {
	Capability string         `json:"capability"`
	Entities   map[string]any `json:"entities,omitempty"`
}

// Classification is the structured output of the reasoning engine's
// classify step.
type Classification struct {
	Kind     IntentKind `json:"kind"`
	Intents  []Intent   `json:"intents"`
	Priority Priority   `json:"priority"`
}

// Task is one dispatchable unit of work produced by decomposition.
// CorrelationID is unique within a query; tasks belonging to one dependency
// chain share a ChainID. DependsOn is the index of the task in the same plan
// whose result must be recorded before this one may be dispatched, or -1.
type Task struct {
	CorrelationID string         `json:"correlationId"`
	ChainID       string         `json:"chainId"`
	AgentID       string         `json:"agentId"`
	SkillID       string         `json:"skillId"`
	Intent        string         `json:"intent"`
	Payload       map[string]any `json:"payload,omitempty"`
	Priority      Priority       `json:"priority"`
	DependsOn     int            `json:"dependsOn"`
}

// ResultStatus is the outcome of one task.
type ResultStatus string

const (
	ResultOK    ResultStatus = "ok"
	ResultError ResultStatus = "error"
)

// ErrorDetail is a stable, transport-independent error shape. Code is one of
// the taxonomy constants below.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in TaskResult and ToolResult error details.
const (
	CodeClassificationFailure = "classification_failure"
	CodeNoCapableAgent        = "no_capable_agent"
	CodeAmbiguousCapability   = "ambiguous_capability"
	CodeUnknownAgent          = "unknown_agent"
	CodeDispatchFailure       = "dispatch_failure"
	CodeInvalidTaskPayload    = "invalid_task_payload"
	CodeUnknownTool           = "unknown_tool"
	CodeSchemaViolation       = "schema_violation"
	CodeStoreError            = "store_error"
	CodeTimeout               = "timeout"
)

// Capability names shared between classifiers and the skills specialists
// advertise. A classifier emits these; the directory matches them against
// skill IDs on agent cards.
const (
	CapRecordLookup   = "record-lookup"
	CapRecordListing  = "record-listing"
	CapRecordUpdate   = "record-update"
	CapCaseHistory    = "case-history"
	CapOpenCaseReport = "open-case-report"
	CapCaseIntake     = "case-intake"
	CapGuidance       = "guidance"
)

// TaskResult is the outcome of exactly one Task, matched by CorrelationID.
type TaskResult struct {
	CorrelationID string         `json:"correlationId"`
	Status        ResultStatus   `json:"status"`
	Payload       map[string]any `json:"payload,omitempty"`
	Error         *ErrorDetail   `json:"error,omitempty"`
}

// ErrorResult builds an error TaskResult for the given task.
func ErrorResult(correlationID, code, message string) TaskResult {
	return TaskResult{
		CorrelationID: correlationID,
		Status:        ResultError,
		Error:         &ErrorDetail{Code: code, Message: message},
	}
}

// AggregatedResponse is the router's answer to one client query. Results are
// ordered by decomposition order, never by arrival order.
type AggregatedResponse struct {
	Query    string       `json:"query"`
	Strategy Strategy     `json:"strategy"`
	Priority Priority     `json:"priority"`
	Results  []TaskResult `json:"taskResults"`
	Answer   string       `json:"answer"`
}
