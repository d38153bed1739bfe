package rage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDecayer lets tests control the tracked ids and the per-id outcome.
type fakeDecayer struct {
	mu      sync.Mutex
	cfg     Config
	ids     []string
	decayed []string
	fail    map[string]error
	panics  map[string]bool
	onDecay func(id string)
}

func newFakeDecayer(ids ...string) *fakeDecayer {
	return &fakeDecayer{cfg: DefaultConfig(), ids: ids, fail: map[string]error{}, panics: map[string]bool{}}
}

func (f *fakeDecayer) Config() Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeDecayer) Conversations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func (f *fakeDecayer) Decay(id string) (State, error) {
	f.mu.Lock()
	hook := f.onDecay
	err := f.fail[id]
	p := f.panics[id]
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if p {
		panic("boom")
	}
	if err != nil {
		return State{}, err
	}
	f.mu.Lock()
	f.decayed = append(f.decayed, id)
	f.mu.Unlock()
	return State{}, nil
}

func (f *fakeDecayer) addID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *fakeDecayer) decayedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.decayed...)
}

func TestDecayScheduler_ActivateOnce(t *testing.T) {
	s := NewDecayScheduler(newFakeDecayer())
	defer s.Stop()

	if !s.Activate(context.Background()) {
		t.Fatal("first Activate should return true")
	}
	if s.Activate(context.Background()) {
		t.Error("second Activate should return false")
	}
	if s.State() != SchedulerRunning {
		t.Errorf("expected running, got %s", s.State())
	}
}

func TestDecayScheduler_StopEndsLoop(t *testing.T) {
	s := NewDecayScheduler(newFakeDecayer())
	s.Activate(context.Background())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if s.State() != SchedulerStopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
	s.Stop()
}

func TestDecayScheduler_StopBeforeActivate(t *testing.T) {
	s := NewDecayScheduler(newFakeDecayer())
	s.Stop()
	if s.Activate(context.Background()) {
		t.Error("Activate after Stop should return false")
	}
	if s.State() != SchedulerStopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
}

func TestDecayScheduler_ContextCancelEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewDecayScheduler(newFakeDecayer())
	s.Activate(ctx)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != SchedulerStopped {
		if time.Now().After(deadline) {
			t.Fatal("loop did not stop after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDecayScheduler_RunCycleSnapshot(t *testing.T) {
	f := newFakeDecayer("A")
	var once sync.Once
	f.onDecay = func(string) {
		once.Do(func() { f.addID("B") })
	}
	s := NewDecayScheduler(f)

	first := s.RunCycle()
	if first.Conversations != 1 || first.Decayed != 1 {
		t.Errorf("unexpected first report: %+v", first)
	}
	if got := f.decayedIDs(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("B must not be decayed in the cycle it was created in, got %v", got)
	}

	second := s.RunCycle()
	if second.Conversations != 2 || second.Decayed != 2 {
		t.Errorf("unexpected second report: %+v", second)
	}
}

func TestDecayScheduler_RunCycleDisabled(t *testing.T) {
	f := newFakeDecayer("A")
	f.cfg.Features.EnableDecay = false
	s := NewDecayScheduler(f)

	report := s.RunCycle()
	if !report.Skipped {
		t.Errorf("expected skipped cycle, got %+v", report)
	}
	if got := f.decayedIDs(); len(got) != 0 {
		t.Errorf("expected no decay, got %v", got)
	}
}

func TestDecayScheduler_FailureIsolation(t *testing.T) {
	f := newFakeDecayer("a", "b", "c", "d")
	f.fail["b"] = errors.New("store unavailable")
	f.panics["c"] = true
	s := NewDecayScheduler(f)

	report := s.RunCycle()
	if report.Failed != 2 || report.Decayed != 2 {
		t.Errorf("expected 2 failed 2 decayed, got %+v", report)
	}
	got := f.decayedIDs()
	if len(got) != 2 || got[0] != "a" || got[1] != "d" {
		t.Errorf("expected a and d decayed, got %v", got)
	}
}

func TestDecayScheduler_LoopKeepsRunningWhileDisabled(t *testing.T) {
	f := newFakeDecayer("A")
	f.cfg.Rage.DecayInterval = 1
	f.cfg.Features.EnableDecay = false
	s := NewDecayScheduler(f)
	defer s.Stop()

	reports := make(chan CycleReport, 8)
	s.SetOnCycle(func(r CycleReport) { reports <- r })
	s.Activate(context.Background())

	select {
	case r := <-reports:
		if !r.Skipped {
			t.Fatalf("expected skipped cycle while disabled, got %+v", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no cycle observed")
	}

	f.mu.Lock()
	f.cfg.Features.EnableDecay = true
	f.mu.Unlock()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case r := <-reports:
			if r.Skipped {
				continue
			}
			if r.Decayed != 1 {
				t.Fatalf("expected one decayed conversation, got %+v", r)
			}
			return
		case <-timeout:
			t.Fatal("no cycle observed after re-enabling")
		}
	}
}

func TestDecayScheduler_WithEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rage.DecayRate = 10
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := e.Set("A", 50); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := e.Get("idle"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	report := NewDecayScheduler(e).RunCycle()
	if report.Conversations != 2 || report.Failed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	st, _ := e.Get("A")
	if st.Value != 40 {
		t.Errorf("expected A at 40 after one cycle, got %v", st.Value)
	}
	idle, _ := e.Get("idle")
	if idle.Value != 0 {
		t.Errorf("expected idle conversation to stay at 0, got %v", idle.Value)
	}
}
