package rage

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Engine is the single authority for reading and mutating rage state.
type Engine struct {
	store    *StateStore
	cfg      atomic.Pointer[Config]
	now      func() time.Time
	recorder Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder installs a recorder notified after every applied mutation.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithStore uses an existing StateStore instead of a fresh one.
func WithStore(s *StateStore) Option {
	return func(e *Engine) { e.store = s }
}

// NewEngine validates cfg and returns an engine with an empty store.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = NewStateStore()
	}
	e.cfg.Store(&cfg)
	slog.Debug("rage.NewEngine: engine created", "max_rage", cfg.Rage.MaxRage, "recorder", e.recorder != nil)
	return e, nil
}

// Config returns the configuration currently in effect.
func (e *Engine) Config() Config {
	return *e.cfg.Load()
}

// SetConfig swaps in a new configuration. Invalid configurations are rejected
// and the previous one stays active. Every stored state is then clamped to the
// new max_rage and re-levelled against the new thresholds.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		slog.Warn("Engine.SetConfig: rejecting invalid configuration", "error", err)
		return err
	}
	e.cfg.Store(&cfg)
	rebounded := e.rebound(cfg)
	slog.Info("Engine.SetConfig: configuration reloaded",
		"max_rage", cfg.Rage.MaxRage, "decay_rate", cfg.Rage.DecayRate, "decay_interval", cfg.Rage.DecayInterval,
		"rebounded", rebounded)
	return nil
}

// rebound brings every stored state in line with cfg. The timestamp is kept
// and nothing is recorded: a reload is not a mutation of the conversation.
func (e *Engine) rebound(cfg Config) int {
	n := 0
	for _, id := range e.store.Keys() {
		_, changed := e.store.Update(id, func(st *State) bool {
			value := clamp(st.Value, 0, cfg.Rage.MaxRage)
			level := deriveLevel(cfg.Rage.Levels, value)
			if value == st.Value && level == st.Level {
				return false
			}
			st.Value, st.Level = value, level
			return true
		})
		if changed {
			n++
		}
	}
	return n
}

// DeriveLevel maps a value onto a level using the current thresholds.
func (e *Engine) DeriveLevel(value float64) Level {
	return deriveLevel(e.Config().Rage.Levels, value)
}

func deriveLevel(l LevelConfig, value float64) Level {
	switch {
	case value >= l.Level3Threshold:
		return LevelFurious
	case value >= l.Level2Threshold:
		return LevelAngry
	case value >= l.Level1Threshold:
		return LevelAnnoyed
	default:
		return LevelCalm
	}
}

// Get returns the state of a conversation, creating a calm one on first access.
func (e *Engine) Get(conversationID string) (State, error) {
	if conversationID == "" {
		return State{}, ErrEmptyConversation
	}
	return e.store.Load(conversationID), nil
}

// Conversations returns a snapshot of every tracked conversation id.
func (e *Engine) Conversations() []string {
	return e.store.Keys()
}

// Add is AddFrom with SourceManual.
func (e *Engine) Add(conversationID string, amount float64) (State, error) {
	return e.AddFrom(conversationID, SourceManual, amount)
}

// AddFrom adds amount to the conversation's rage, clamped to [0, max_rage].
func (e *Engine) AddFrom(conversationID string, source Source, amount float64) (State, error) {
	if conversationID == "" {
		return State{}, ErrEmptyConversation
	}
	if !finite(amount) {
		return State{}, fmt.Errorf("add %v to %s: %w", amount, conversationID, ErrInvalidAmount)
	}
	st, ch := e.mutate(conversationID, OpAdd, source, func(st *State, cfg Config) bool {
		st.Value = clamp(st.Value+amount, 0, cfg.Rage.MaxRage)
		return true
	})
	slog.Info("Engine.Add: rage increased",
		"conversation", conversationID, "source", source, "delta", amount, "value", st.Value, "level", st.Level)
	e.record(ch)
	return st, nil
}

// Set assigns value, clamped to [0, max_rage].
func (e *Engine) Set(conversationID string, value float64) (State, error) {
	if conversationID == "" {
		return State{}, ErrEmptyConversation
	}
	if !finite(value) {
		return State{}, fmt.Errorf("set %s to %v: %w", conversationID, value, ErrInvalidAmount)
	}
	st, ch := e.mutate(conversationID, OpSet, SourceManual, func(st *State, cfg Config) bool {
		st.Value = clamp(value, 0, cfg.Rage.MaxRage)
		return true
	})
	slog.Info("Engine.Set: rage assigned", "conversation", conversationID, "value", st.Value, "level", st.Level)
	e.record(ch)
	return st, nil
}

// Reset sets the conversation back to value 0 and level 0.
func (e *Engine) Reset(conversationID string) (State, error) {
	if conversationID == "" {
		return State{}, ErrEmptyConversation
	}
	st, ch := e.mutate(conversationID, OpReset, SourceReset, func(st *State, _ Config) bool {
		st.Value = 0
		return true
	})
	slog.Info("Engine.Reset: rage reset", "conversation", conversationID)
	e.record(ch)
	return st, nil
}

// Decay lowers the conversation's rage by decay_rate, never below zero. A
// conversation already at zero is left untouched, timestamp included.
func (e *Engine) Decay(conversationID string) (State, error) {
	if conversationID == "" {
		return State{}, ErrEmptyConversation
	}
	st, ch := e.mutate(conversationID, OpDecay, SourceDecay, func(st *State, cfg Config) bool {
		if st.Value <= 0 {
			return false
		}
		st.Value = clamp(st.Value-cfg.Rage.DecayRate, 0, cfg.Rage.MaxRage)
		return true
	})
	if ch != nil {
		slog.Debug("Engine.Decay: rage decayed", "conversation", conversationID, "value", st.Value, "level", st.Level)
		e.record(ch)
	}
	return st, nil
}

// LevelPrompt returns the prompt configured for the conversation's current
// level, or "" at level 0 or when no prompt is configured.
func (e *Engine) LevelPrompt(conversationID string) (string, error) {
	st, err := e.Get(conversationID)
	if err != nil {
		return "", err
	}
	if st.Level == LevelCalm {
		return "", nil
	}
	return e.Config().Prompt(st.Level), nil
}

// mutate applies fn under the conversation lock and, when fn changed the
// state, re-derives the level and bumps the timestamp. The config is read
// under the same lock so a concurrent SetConfig cannot be undone by a stale
// snapshot. The returned Change is nil when nothing was applied.
func (e *Engine) mutate(conversationID string, op Op, source Source, fn func(st *State, cfg Config) bool) (State, *Change) {
	var ch *Change

	st, _ := e.store.Update(conversationID, func(st *State) bool {
		cfg := e.Config()
		before := *st
		if !fn(st, cfg) {
			return false
		}
		st.Level = deriveLevel(cfg.Rage.Levels, st.Value)
		if op == OpReset {
			st.Level = LevelCalm
		}
		now := e.now()
		if now.Before(st.LastUpdate) {
			now = st.LastUpdate
		}
		st.LastUpdate = now
		ch = &Change{
			ConversationID: conversationID,
			Op:             op,
			Source:         source,
			Delta:          st.Value - before.Value,
			Value:          st.Value,
			Level:          st.Level,
			PreviousLevel:  before.Level,
			At:             now,
		}
		return true
	})
	return st, ch
}

func (e *Engine) record(ch *Change) {
	if e.recorder == nil || ch == nil {
		return
	}
	e.recorder.RecordChange(*ch)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
