package inject

import (
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/RagePipe/internal/rage"
)

func newEngine(t *testing.T) *rage.Engine {
	t.Helper()
	cfg := rage.DefaultConfig()
	cfg.Prompts = rage.PromptConfig{Level1: "be curt", Level2: "calm down", Level3: "back off"}
	e, err := rage.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestInject_AddsHeader(t *testing.T) {
	e := newEngine(t)
	if _, err := e.Set("c", 65); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got := New(e).Inject("c", "You are a helpful bot.")
	want := "\n[Current mood - rage level 2, rage 65/100]\ncalm down\nYou are a helpful bot."
	if got != want {
		t.Errorf("unexpected injection:\n got %q\nwant %q", got, want)
	}
}

func TestInject_CalmUnchanged(t *testing.T) {
	e := newEngine(t)
	if _, err := e.Set("c", 10); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := New(e).Inject("c", "prompt"); got != "prompt" {
		t.Errorf("expected prompt unchanged at level 0, got %q", got)
	}
}

func TestInject_EmptyPromptUnchanged(t *testing.T) {
	e := newEngine(t)
	_, _ = e.Set("c", 90)
	if got := New(e).Inject("c", ""); got != "" {
		t.Errorf("expected empty prompt to stay empty, got %q", got)
	}
}

func TestInject_UnsetLevelPrompt(t *testing.T) {
	e := newEngine(t)
	cfg := e.Config()
	cfg.Prompts.Level3 = ""
	if err := e.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	_, _ = e.Set("c", 95)
	if got := New(e).Inject("c", "prompt"); got != "prompt" {
		t.Errorf("expected no injection without a level prompt, got %q", got)
	}
}

func TestInject_EmptyConversation(t *testing.T) {
	if got := New(newEngine(t)).Inject("", "prompt"); got != "prompt" {
		t.Errorf("expected prompt unchanged on lookup error, got %q", got)
	}
}

func TestInject_ScalesByMaxRage(t *testing.T) {
	cfg := rage.DefaultConfig()
	cfg.Rage.MaxRage = 50
	cfg.Rage.Levels = rage.LevelConfig{Level1Threshold: 10, Level2Threshold: 20, Level3Threshold: 40}
	e, err := rage.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	_, _ = e.Set("c", 45)
	got := New(e).Inject("c", "p")
	if !strings.Contains(got, "rage level 3, rage 45/50]") {
		t.Errorf("expected header scaled by max rage, got %q", got)
	}
}

// brokenReader fails the state lookup after a successful prompt lookup.
type brokenReader struct{}

func (brokenReader) Config() rage.Config { return rage.DefaultConfig() }
func (brokenReader) Get(string) (rage.State, error) {
	return rage.State{}, errors.New("gone")
}
func (brokenReader) LevelPrompt(string) (string, error) { return "angry", nil }

func TestInject_StateError(t *testing.T) {
	if got := New(brokenReader{}).Inject("c", "prompt"); got != "prompt" {
		t.Errorf("expected prompt unchanged, got %q", got)
	}
}
