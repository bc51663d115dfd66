package reasoning

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"supportmesh/internal/types"
)

// RuleEngine is a deterministic keyword classifier. It needs no network and
// no credentials, which makes it the default engine and the one every test
// runs against.
type RuleEngine struct{}

func NewRuleEngine() *RuleEngine {
	return &RuleEngine{}
}

var (
	customerIDPattern = regexp.MustCompile(`(?i)(?:customer|id)\s*#?\s*(\d+)`)
	emailPattern      = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)

	urgencyKeywords = []string{
		"urgent", "immediately", "asap", "right away", "emergency",
		"critical", "charged twice", "refund",
	}

	supportKeywords = []string{
		"help", "refund", "upgrade", "cancel", "billing", "charged",
		"issue", "problem", "complaint", "broken", "not working",
	}
)

type dataPattern struct {
	capability string
	pattern    *regexp.Regexp
}

// Ordering matters only for tie-breaking; intents are emitted in the order
// their match appears in the query.
var dataPatterns = []dataPattern{
	{types.CapOpenCaseReport, regexp.MustCompile(`(?i)(?:open\s+(?:tickets|cases)|customers?\s+with\s+open)`)},
	{types.CapCaseHistory, regexp.MustCompile(`(?i)(?:history|past\s+(?:tickets|cases)|previous\s+(?:tickets|cases))`)},
	{types.CapRecordUpdate, regexp.MustCompile(`(?i)(?:update|change|set)\s+(?:my\s+|the\s+)?(?:email|phone|name|status|record|info)`)},
	{types.CapRecordListing, regexp.MustCompile(`(?i)list\s+(?:all\s+)?(?:customers|records)`)},
	{types.CapRecordLookup, regexp.MustCompile(`(?i)(?:get|show|fetch|look\s*up|retrieve)\s+(?:the\s+)?customer`)},
	{types.CapCaseIntake, regexp.MustCompile(`(?i)(?:create|open|file)\s+(?:a\s+)?(?:ticket|case)`)},
}

type matchedIntent struct {
	pos    int
	intent types.Intent
}

// Classify maps a query onto the intent taxonomy using keyword and pattern
// matching. It never fails; a query matching nothing becomes a support-only
// intent, mirroring how a human dispatcher would hand an unparseable request
// to a support rep.
func (e *RuleEngine) Classify(_ context.Context, query string) (types.Classification, error) {
	lower := strings.ToLower(query)
	entities := extractEntities(query)

	matches := make([]matchedIntent, 0, 2)
	for _, dp := range dataPatterns {
		loc := dp.pattern.FindStringIndex(query)
		if loc == nil {
			continue
		}
		matches = append(matches, matchedIntent{
			pos:    loc[0],
			intent: types.Intent{Capability: dp.capability, Entities: entities},
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	priority := types.PriorityNormal
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			priority = types.PriorityUrgent
			break
		}
	}

	needsSupport := false
	for _, kw := range supportKeywords {
		if strings.Contains(lower, kw) {
			needsSupport = true
			break
		}
	}

	c := types.Classification{Priority: priority}
	switch {
	case len(matches) == 0:
		c.Kind = types.IntentSupportOnly
		c.Intents = []types.Intent{{Capability: types.CapGuidance, Entities: entities}}
	case needsSupport:
		c.Kind = types.IntentDataThenSupport
		c.Intents = []types.Intent{
			matches[0].intent,
			{Capability: types.CapGuidance, Entities: entities},
		}
	case len(matches) == 1:
		c.Kind = types.IntentDataOnly
		c.Intents = []types.Intent{matches[0].intent}
	default:
		c.Kind = types.IntentMultiple
		c.Intents = make([]types.Intent, 0, len(matches))
		for _, m := range matches {
			c.Intents = append(c.Intents, m.intent)
		}
	}
	return c, nil
}

func extractEntities(query string) map[string]any {
	entities := map[string]any{"query": query}
	if m := customerIDPattern.FindStringSubmatch(query); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			entities["customer_id"] = id
		}
	}
	if m := emailPattern.FindString(query); m != "" {
		entities["email"] = m
	}
	return entities
}

// Synthesize renders a plain-text answer from the collected results. Error
// entries are reported alongside the successful ones instead of hiding them.
func (e *RuleEngine) Synthesize(_ context.Context, input SynthesisInput) (string, error) {
	var b strings.Builder
	if input.Priority == types.PriorityUrgent {
		b.WriteString("[URGENT] ")
	}

	ok, failed := 0, 0
	for _, r := range input.Results {
		if r.Status == types.ResultOK {
			ok++
		} else {
			failed++
		}
	}

	switch {
	case len(input.Results) == 0:
		b.WriteString("We could not process your request. Please rephrase or contact support directly.")
	case failed == 0:
		b.WriteString(fmt.Sprintf("Completed %d task(s) for your request.", ok))
	case ok == 0:
		b.WriteString(fmt.Sprintf("All %d task(s) for your request failed.", failed))
	default:
		b.WriteString(fmt.Sprintf("Completed %d of %d task(s); %d failed.", ok, ok+failed, failed))
	}

	for i, r := range input.Results {
		b.WriteString(fmt.Sprintf("\n%d. ", i+1))
		if r.Status == types.ResultOK {
			if answer, ok := r.Payload["answer"].(string); ok && answer != "" {
				b.WriteString(answer)
			} else {
				b.WriteString(compactPayload(r.Payload))
			}
		} else {
			b.WriteString(fmt.Sprintf("failed (%s): %s", r.Error.Code, r.Error.Message))
		}
	}
	return b.String(), nil
}

func compactPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return "done"
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, ", ")
}
