// Package command implements the /rage chat commands.
package command

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/RagePipe/internal/rage"
)

const barLength = 20

var (
	showPattern   = regexp.MustCompile(`^/rage\s+(?:show|s)$`)
	setPattern    = regexp.MustCompile(`^/rage\s+set\s+(?P<value>[+-]?\d*\.?\d+)$`)
	resetPattern  = regexp.MustCompile(`^/rage\s+(?:reset|r)$`)
	badSetPattern = regexp.MustCompile(`^/rage\s+set(?:\s+.*)?$`)
	setValueGroup = setPattern.SubexpIndex("value")
)

var (
	levelLabels = map[rage.Level]string{
		rage.LevelCalm:    "😊 calm",
		rage.LevelAnnoyed: "😤 slightly annoyed",
		rage.LevelAngry:   "😠 clearly angry",
		rage.LevelFurious: "🤬 furious",
	}
	levelEmoji = map[rage.Level]string{
		rage.LevelCalm:    "😊",
		rage.LevelAnnoyed: "😤",
		rage.LevelAngry:   "😠",
		rage.LevelFurious: "🤬",
	}
)

// User-facing messages.
const (
	MsgNoConversation = "unable to resolve conversation"
	MsgInvalidNumber  = "please enter a valid number"
	MsgReset          = "😊 Rage has been reset~"
)

// Command names reported in Result.Command.
const (
	CommandShow  = "show"
	CommandSet   = "set"
	CommandReset = "reset"
)

// Result is the outcome of a matched command.
type Result struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Reply   string `json:"reply,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns what should be sent back to the chat.
func (r Result) Text() string {
	if r.OK {
		return r.Reply
	}
	return r.Error
}

func failure(msg string) Result {
	return Result{OK: false, Error: msg}
}

// Engine is the slice of rage.Engine the commands use.
type Engine interface {
	Config() rage.Config
	Get(conversationID string) (rage.State, error)
	Set(conversationID string, value float64) (rage.State, error)
	Reset(conversationID string) (rage.State, error)
}

// Handler parses and executes /rage commands.
type Handler struct {
	engine Engine
}

// NewHandler returns a handler over engine.
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Handle executes text if it is a /rage command. matched is false for any
// other text, and for every text while commands are disabled.
func (h *Handler) Handle(conversationID, text string) (res Result, matched bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/rage") {
		return Result{}, false
	}
	if !h.engine.Config().Features.EnableCommands {
		slog.Debug("Handler.Handle: commands disabled, ignoring", "conversation", conversationID)
		return Result{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Handler.Handle: command panicked", "conversation", conversationID, "panic", r)
			res, matched = failure(fmt.Sprintf("command failed: %v", r)), true
		}
	}()

	switch {
	case showPattern.MatchString(text):
		res = h.show(conversationID)
		res.Command = CommandShow
	case setPattern.MatchString(text):
		res = h.set(conversationID, setPattern.FindStringSubmatch(text)[setValueGroup])
		res.Command = CommandSet
	case resetPattern.MatchString(text):
		res = h.reset(conversationID)
		res.Command = CommandReset
	case badSetPattern.MatchString(text):
		slog.Debug("Handler.Handle: malformed set command", "conversation", conversationID, "text", text)
		res = failure(MsgInvalidNumber)
		res.Command = CommandSet
	default:
		return Result{}, false
	}
	return res, true
}

func (h *Handler) show(conversationID string) Result {
	if conversationID == "" {
		return failure(MsgNoConversation)
	}
	st, err := h.engine.Get(conversationID)
	if err != nil {
		slog.Error("Handler.show: failed to read rage", "conversation", conversationID, "error", err)
		return failure(fmt.Sprintf("failed to get status: %v", err))
	}
	return Result{OK: true, Reply: FormatStatus(st, h.engine.Config().Rage.MaxRage)}
}

func (h *Handler) set(conversationID, raw string) Result {
	if conversationID == "" {
		return failure(MsgNoConversation)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return failure(MsgInvalidNumber)
	}
	st, err := h.engine.Set(conversationID, value)
	if err != nil {
		slog.Error("Handler.set: failed to set rage", "conversation", conversationID, "value", value, "error", err)
		return failure(fmt.Sprintf("failed: %v", err))
	}
	return Result{OK: true, Reply: fmt.Sprintf("🔥 Rage: %.1f %s", st.Value, levelEmoji[st.Level])}
}

func (h *Handler) reset(conversationID string) Result {
	if conversationID == "" {
		return failure(MsgNoConversation)
	}
	if _, err := h.engine.Reset(conversationID); err != nil {
		slog.Error("Handler.reset: failed to reset rage", "conversation", conversationID, "error", err)
		return failure(fmt.Sprintf("failed: %v", err))
	}
	return Result{OK: true, Reply: MsgReset}
}

// Bar renders value as a fixed-width bar scaled by maxRage.
func Bar(value, maxRage float64) string {
	filled := 0
	if maxRage > 0 {
		filled = int(value / maxRage * float64(barLength))
	}
	filled = max(0, min(filled, barLength))
	return strings.Repeat("█", filled) + strings.Repeat("░", barLength-filled)
}

// LevelLabel returns the emoji label for level.
func LevelLabel(level rage.Level) string {
	if l, ok := levelLabels[level]; ok {
		return l
	}
	return "unknown"
}

// FormatStatus renders the /rage show reply.
func FormatStatus(st rage.State, maxRage float64) string {
	var b strings.Builder
	b.WriteString("🔥 Rage status 🔥\n\n")
	fmt.Fprintf(&b, "Rage: %.1f/%.0f\n", st.Value, maxRage)
	fmt.Fprintf(&b, "[%s]\n\n", Bar(st.Value, maxRage))
	fmt.Fprintf(&b, "Mood: %s\n", LevelLabel(st.Level))
	fmt.Fprintf(&b, "Level: Lv.%d\n\n", st.Level)
	b.WriteString("Commands:\n")
	b.WriteString("• /rage show - show status\n")
	b.WriteString("• /rage set <value> - set rage\n")
	b.WriteString("• /rage reset - reset")
	return b.String()
}
