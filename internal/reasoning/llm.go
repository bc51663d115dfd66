package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"supportmesh/internal/logx"
	"supportmesh/internal/types"
)

// LLMConfig configures the OpenRouter-compatible chat completion backend.
type LLMConfig struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey      string        `envconfig:"API_KEY" split_words:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true" default:"openai/gpt-4o-mini"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// LLMEngine classifies and synthesizes through a chat completion model.
type LLMEngine struct {
	client openaisdk.Client
	cfg    LLMConfig
	log    zerolog.Logger
}

// NewLLMEngine builds an engine from config. The API key must be set; use
// the rule engine when no model backend is available.
func NewLLMEngine(cfg LLMConfig) (*LLMEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm engine requires an API key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	return &LLMEngine{
		client: openaisdk.NewClient(opts...),
		cfg:    cfg,
		log:    logx.Component("llm-engine"),
	}, nil
}

const classifySystemPrompt = `You are the routing brain of a customer support system.
Classify the user query and respond with STRICT JSON, no markdown, matching:
{"kind":"data-only|support-only|data-then-support|multiple-independent-intents",
 "priority":"normal|urgent",
 "intents":[{"capability":"record-lookup|record-listing|record-update|case-history|open-case-report|case-intake|guidance",
             "entities":{"customer_id":123,"email":"...","query":"..."}}]}
Rules:
- data-only: the query only reads or writes customer records.
- support-only: general help needing no customer data.
- data-then-support: support that first needs customer data; emit the data intent first, then a guidance intent.
- multiple-independent-intents: two or more unrelated data needs; emit them in the order they appear.
- priority is urgent when the user signals urgency (refunds, double charges, "immediately", outages).
- entities.customer_id is the numeric customer ID when present.`

// Classify asks the model for a structured classification and validates it.
func (e *LLMEngine) Classify(ctx context.Context, query string) (types.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(e.cfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(classifySystemPrompt),
			openaisdk.UserMessage(query),
		},
		Temperature: openaisdk.Float(e.cfg.Temperature),
	})
	if err != nil {
		return types.Classification{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}
	if len(resp.Choices) == 0 {
		return types.Classification{}, fmt.Errorf("%w: empty completion", ErrUnclassifiable)
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var c types.Classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &c); err != nil {
		e.log.Warn().Err(err).Str("raw", raw).Msg("unparseable classification")
		return types.Classification{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}
	if err := validateClassification(c); err != nil {
		return types.Classification{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}
	return c, nil
}

func validateClassification(c types.Classification) error {
	switch c.Kind {
	case types.IntentDataOnly, types.IntentSupportOnly, types.IntentDataThenSupport, types.IntentMultiple:
	default:
		return fmt.Errorf("unknown intent kind %q", c.Kind)
	}
	switch c.Priority {
	case types.PriorityNormal, types.PriorityUrgent:
	default:
		return fmt.Errorf("unknown priority %q", c.Priority)
	}
	if len(c.Intents) == 0 {
		return fmt.Errorf("classification has no intents")
	}
	if c.Kind == types.IntentDataThenSupport && len(c.Intents) != 2 {
		return fmt.Errorf("data-then-support needs exactly two intents, got %d", len(c.Intents))
	}
	return nil
}

const respondSystemPrompt = `You are a customer support specialist.
Answer the customer's request helpfully and concisely. When account context is
provided, ground your answer in it. Never invent account data.`

// Respond produces a support answer for one query, optionally grounded in
// data gathered earlier in the chain.
func (e *LLMEngine) Respond(ctx context.Context, query string, contextData map[string]any, priority types.Priority) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	user := "Request: " + query
	if len(contextData) > 0 {
		ctxJSON, err := json.Marshal(contextData)
		if err != nil {
			return "", fmt.Errorf("marshal context: %w", err)
		}
		user += "\nAccount context: " + string(ctxJSON)
	}
	if priority == types.PriorityUrgent {
		user += "\nThis request is urgent; acknowledge the urgency."
	}

	resp, err := e.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(e.cfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(respondSystemPrompt),
			openaisdk.UserMessage(user),
		},
		Temperature: openaisdk.Float(e.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("respond: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("respond: empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

const synthesizeSystemPrompt = `You are a customer support assistant composing the final reply.
You receive the original query and the results of the tasks executed for it, in order.
Write a concise, helpful answer. Mention failed tasks honestly. Do not invent data.`

// Synthesize composes the final answer from the task results.
func (e *LLMEngine) Synthesize(ctx context.Context, input SynthesisInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resultsJSON, err := json.Marshal(input.Results)
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}

	user := fmt.Sprintf("Query: %s\nPriority: %s\nResults: %s", input.Query, input.Priority, resultsJSON)
	resp, err := e.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(e.cfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(synthesizeSystemPrompt),
			openaisdk.UserMessage(user),
		},
		Temperature: openaisdk.Float(e.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("synthesize answer: empty completion")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if input.Priority == types.PriorityUrgent && !strings.HasPrefix(answer, "[URGENT]") {
		answer = "[URGENT] " + answer
	}
	return answer, nil
}
