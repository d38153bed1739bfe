package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/BTreeMap/RagePipe/internal/genai"
)

// Tool names offered to the judge model.
const (
	ToolProvocation = "rage_provocation"
	ToolTease       = "rage_tease"
	ToolAnnoy       = "rage_annoy"
)

// DefaultJudgePrompt instructs the model to only call tools, never to reply.
const DefaultJudgePrompt = `You classify the latest chat message sent to you. ` +
	`Call every tool whose description matches the message. ` +
	`Call no tool when the message is ordinary conversation. ` +
	`Never write a reply to the user.`

// Decision is one trigger the judge decided to fire.
type Decision struct {
	Category   Category  `json:"category"`
	Intensity  Intensity `json:"intensity,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
}

// toolGenerator is the slice of genai.Client the judge uses.
type toolGenerator interface {
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error)
}

// Judge asks the LLM whether a message is provocation, teasing or annoyance.
type Judge struct {
	llm          toolGenerator
	systemPrompt string
}

// JudgeOption configures a Judge.
type JudgeOption func(*Judge)

// WithJudgePrompt replaces DefaultJudgePrompt.
func WithJudgePrompt(p string) JudgeOption {
	return func(j *Judge) {
		if strings.TrimSpace(p) != "" {
			j.systemPrompt = p
		}
	}
}

// NewJudge creates a judge backed by llm.
func NewJudge(llm toolGenerator, opts ...JudgeOption) *Judge {
	j := &Judge{llm: llm, systemPrompt: DefaultJudgePrompt}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Tools returns the tool definitions offered to the model.
func (j *Judge) Tools() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name: ToolProvocation,
				Description: openai.String("The sender is provoking, insulting or attacking you. Use when someone " +
					"curses at you, insults you, attacks you personally, mocks or belittles you, " +
					"or deliberately tries to make you angry."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"intensity": map[string]interface{}{
							"type":        "string",
							"enum":        []string{string(IntensityMild), string(IntensityModerate), string(IntensitySevere)},
							"description": "How strong the provocation is",
						},
					},
					"required": []string{"intensity"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name: ToolTease,
				Description: openai.String("The sender is teasing or flirting with you. Use when someone hits on you, " +
					"calls you pet names like babe or darling, uses cheesy pickup lines or confessions, " +
					"asks for hugs or kisses, or talks to you suggestively."),
				Parameters: shared.FunctionParameters{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name: ToolAnnoy,
				Description: openai.String("The sender is pestering you. Use when someone keeps asking the same question, " +
					"will not leave you alone, spams or deliberately makes a mess, " +
					"or keeps pinging and interrupting you."),
				Parameters: shared.FunctionParameters{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		},
	}
}

// Evaluate classifies message. An empty message yields no decisions and no
// LLM call.
func (j *Judge) Evaluate(ctx context.Context, message string) ([]Decision, error) {
	if strings.TrimSpace(message) == "" {
		return nil, nil
	}
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(j.systemPrompt),
		openai.UserMessage(message),
	}
	resp, err := j.llm.GenerateWithTools(ctx, messages, j.Tools())
	if err != nil {
		return nil, fmt.Errorf("judge completion failed: %w", err)
	}
	decisions := ParseToolCalls(resp.ToolCalls)
	slog.Debug("Judge.Evaluate: message classified", "toolCalls", len(resp.ToolCalls), "decisions", len(decisions))
	return decisions, nil
}

// ParseToolCalls maps tool calls onto decisions. Unknown tools and malformed
// arguments are logged and skipped.
func ParseToolCalls(calls []genai.ToolCall) []Decision {
	var out []Decision
	for _, call := range calls {
		switch call.Function.Name {
		case ToolProvocation:
			var args struct {
				Intensity string `json:"intensity"`
			}
			if len(call.Function.Arguments) > 0 {
				if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
					slog.Warn("trigger.ParseToolCalls: malformed arguments, skipping",
						"tool", call.Function.Name, "toolCallID", call.ID, "arguments", string(call.Function.Arguments), "error", err)
					continue
				}
			}
			out = append(out, Decision{
				Category:   CategoryProvocation,
				Intensity:  NormalizeIntensity(args.Intensity),
				ToolCallID: call.ID,
			})
		case ToolTease:
			out = append(out, Decision{Category: CategoryTease, ToolCallID: call.ID})
		case ToolAnnoy:
			out = append(out, Decision{Category: CategoryAnnoy, ToolCallID: call.ID})
		default:
			slog.Warn("trigger.ParseToolCalls: unknown tool, skipping", "tool", call.Function.Name, "toolCallID", call.ID)
		}
	}
	return out
}
