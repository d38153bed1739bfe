// Package inject prepends the current mood to prompts sent to the reply model.
package inject

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/RagePipe/internal/rage"
)

// StateReader is the slice of rage.Engine the injector reads.
type StateReader interface {
	Config() rage.Config
	Get(conversationID string) (rage.State, error)
	LevelPrompt(conversationID string) (string, error)
}

// Injector annotates outbound LLM prompts with the conversation's rage level.
type Injector struct {
	engine StateReader
}

// New creates an injector over engine.
func New(engine StateReader) *Injector {
	return &Injector{engine: engine}
}

// Inject returns prompt with the mood annotation prepended. The prompt is
// returned unchanged when it is empty, when the conversation is calm or has
// no level prompt configured, and on any lookup error.
func (i *Injector) Inject(conversationID, prompt string) string {
	if prompt == "" {
		return prompt
	}
	levelPrompt, err := i.engine.LevelPrompt(conversationID)
	if err != nil {
		slog.Warn("Injector.Inject: level prompt lookup failed", "conversation", conversationID, "error", err)
		return prompt
	}
	if levelPrompt == "" {
		return prompt
	}
	st, err := i.engine.Get(conversationID)
	if err != nil {
		slog.Warn("Injector.Inject: state lookup failed", "conversation", conversationID, "error", err)
		return prompt
	}

	header := Header(st, i.engine.Config().Rage.MaxRage, levelPrompt)
	slog.Debug("Injector.Inject: mood injected", "conversation", conversationID, "level", st.Level)
	return header + prompt
}

// Header formats the annotation block for st.
func Header(st rage.State, maxRage float64, levelPrompt string) string {
	return fmt.Sprintf("\n[Current mood - rage level %d, rage %.0f/%.0f]\n%s\n", st.Level, st.Value, maxRage, levelPrompt)
}
