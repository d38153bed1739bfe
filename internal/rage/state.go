// Package rage implements the per-conversation rage meter: state, store,
// mutation rules, configuration and the background decay loop.
package rage

import (
	"errors"
	"time"
)

// Level is the discrete rage tier derived from a rage value.
type Level int

const (
	LevelCalm Level = iota
	LevelAnnoyed
	LevelAngry
	LevelFurious
)

// Source labels what caused a mutation. Trigger adapters pass their category.
type Source string

const (
	SourceManual Source = "manual"
	SourceDecay  Source = "decay"
	SourceReset  Source = "reset"
)

// Op identifies the kind of mutation applied to a state.
type Op string

const (
	OpAdd   Op = "add"
	OpSet   Op = "set"
	OpReset Op = "reset"
	OpDecay Op = "decay"
)

var (
	// ErrEmptyConversation is returned when the host could not supply a conversation id.
	ErrEmptyConversation = errors.New("conversation id is empty")
	// ErrInvalidAmount is returned for NaN or infinite amounts and values.
	ErrInvalidAmount = errors.New("amount must be a finite number")
	// ErrInvalidConfig is returned when configuration fails validation.
	ErrInvalidConfig = errors.New("invalid rage configuration")
)

// State is the rage state of one conversation.
type State struct {
	Value      float64   `json:"value"`
	Level      Level     `json:"level"`
	LastUpdate time.Time `json:"last_update"`
}

// Change describes one applied mutation. It is handed to the Recorder after
// the conversation lock has been released.
type Change struct {
	ConversationID string
	Op             Op
	Source         Source
	Delta          float64
	Value          float64
	Level          Level
	PreviousLevel  Level
	At             time.Time
}

// LevelChanged reports whether the mutation moved the conversation to another level.
func (c Change) LevelChanged() bool {
	return c.Level != c.PreviousLevel
}

// Recorder receives every applied mutation. Implementations must not block.
type Recorder interface {
	RecordChange(Change)
}
