package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/RagePipe/internal/command"
	"github.com/BTreeMap/RagePipe/internal/trigger"
)

// DefaultPersona is the base system prompt of the chat reply.
const DefaultPersona = "You are a witty chat companion with a short fuse. Reply in one or two short sentences, " +
	"in the same language as the user. Let your current mood show in your tone."

// DefaultHistoryLength is how many messages of each conversation are replayed to the model.
const DefaultHistoryLength = 30

// Role of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation history.
type Turn struct {
	Role    Role
	Content string
}

// History keeps the most recent turns of each conversation in memory.
type History struct {
	mu    sync.Mutex
	max   int
	turns map[string][]Turn
}

// NewHistory creates a history keeping up to max turns per conversation.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistoryLength
	}
	return &History{max: max, turns: make(map[string][]Turn)}
}

// Append adds a turn, dropping the oldest ones beyond the limit.
func (h *History) Append(conversationID string, role Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := append(h.turns[conversationID], Turn{Role: role, Content: content})
	if len(t) > h.max {
		t = t[len(t)-h.max:]
	}
	h.turns[conversationID] = t
}

// Turns returns a copy of the conversation's history.
func (h *History) Turns(conversationID string) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns[conversationID]...)
}

// Clear forgets a conversation.
func (h *History) Clear(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, conversationID)
}

// Judge classifies a message into trigger decisions.
type Judge interface {
	Evaluate(ctx context.Context, message string) ([]trigger.Decision, error)
}

// DecisionApplier applies trigger decisions to a conversation.
type DecisionApplier interface {
	Apply(conversationID string, decisions []trigger.Decision) []string
}

// PromptInjector prepends the rage annotation to a system prompt.
type PromptInjector interface {
	Inject(conversationID, prompt string) string
}

// Replier generates the chat reply.
type Replier interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// ChatDeps wires the chat hook. Judge and Dispatcher may be nil, in which case
// messages are answered without touching rage.
type ChatDeps struct {
	Judge      Judge
	Dispatcher DecisionApplier
	Injector   PromptInjector
	LLM        Replier
	Persona    string
	History    *History
}

// CreateCommandHook answers /rage commands. Other messages are left unhandled.
// A successful reset also clears the conversation's chat history when history
// is non-nil.
func CreateCommandHook(h *command.Handler, msgService Service, history *History) ResponseAction {
	return func(ctx context.Context, from, responseText string, timestamp int64) (bool, error) {
		res, matched := h.Handle(from, responseText)
		if !matched {
			return false, nil
		}
		slog.Debug("CommandHook: command handled", "from", from, "command", res.Command, "ok", res.OK)
		if res.OK && res.Command == command.CommandReset && history != nil {
			history.Clear(from)
		}
		if err := msgService.SendMessage(ctx, from, res.Text()); err != nil {
			return true, fmt.Errorf("failed to send command reply: %w", err)
		}
		return true, nil
	}
}

// CreateChatHook judges the message, applies the resulting rage triggers and
// answers with the rage-annotated persona.
func CreateChatHook(deps ChatDeps, msgService Service) ResponseAction {
	persona := deps.Persona
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	history := deps.History
	if history == nil {
		history = NewHistory(DefaultHistoryLength)
	}

	return func(ctx context.Context, from, responseText string, timestamp int64) (bool, error) {
		if deps.Judge != nil && deps.Dispatcher != nil {
			decisions, err := deps.Judge.Evaluate(ctx, responseText)
			if err != nil {
				slog.Warn("ChatHook: judge failed", "from", from, "error", err)
			}
			for _, msg := range deps.Dispatcher.Apply(from, decisions) {
				slog.Info("ChatHook: trigger applied", "from", from, "result", msg)
			}
		}

		system := persona
		if deps.Injector != nil {
			system = deps.Injector.Inject(from, persona)
		}
		messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
		for _, t := range history.Turns(from) {
			if t.Role == RoleAssistant {
				messages = append(messages, openai.AssistantMessage(t.Content))
			} else {
				messages = append(messages, openai.UserMessage(t.Content))
			}
		}
		messages = append(messages, openai.UserMessage(responseText))

		reply, err := deps.LLM.GenerateWithMessages(ctx, messages)
		if err != nil {
			return false, fmt.Errorf("failed to generate reply: %w", err)
		}
		history.Append(from, RoleUser, responseText)
		if strings.TrimSpace(reply) == "" {
			slog.Warn("ChatHook: empty reply, nothing sent", "from", from)
			return true, nil
		}
		history.Append(from, RoleAssistant, reply)
		if err := msgService.SendMessage(ctx, from, reply); err != nil {
			return true, fmt.Errorf("failed to send reply: %w", err)
		}
		return true, nil
	}
}
