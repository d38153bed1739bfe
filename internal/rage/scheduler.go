package rage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SchedulerState is the lifecycle state of a DecayScheduler.
type SchedulerState int32

const (
	SchedulerIdle SchedulerState = iota
	SchedulerRunning
	SchedulerStopped
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerIdle:
		return "idle"
	case SchedulerRunning:
		return "running"
	case SchedulerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("SchedulerState(%d)", int32(s))
	}
}

// Decayer is what the scheduler needs from the engine.
type Decayer interface {
	Config() Config
	Conversations() []string
	Decay(conversationID string) (State, error)
}

// CycleReport summarizes one decay pass.
type CycleReport struct {
	Conversations int  `json:"conversations"`
	Decayed       int  `json:"decayed"`
	Failed        int  `json:"failed"`
	Skipped       bool `json:"skipped"`
}

// DecayScheduler periodically decays every tracked conversation. Only one
// loop runs per scheduler; Activate is idempotent.
type DecayScheduler struct {
	engine   Decayer
	state    atomic.Int32
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	onCycle func(CycleReport)
}

// NewDecayScheduler returns an idle scheduler for engine.
func NewDecayScheduler(engine Decayer) *DecayScheduler {
	return &DecayScheduler{
		engine: engine,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetOnCycle installs a callback invoked after every completed or skipped cycle.
func (s *DecayScheduler) SetOnCycle(f func(CycleReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCycle = f
}

// State returns the current lifecycle state.
func (s *DecayScheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// Activate starts the decay loop. It returns false, doing nothing, when the
// scheduler was already activated. The loop ends when ctx is done or Stop is called.
func (s *DecayScheduler) Activate(ctx context.Context) bool {
	if !s.state.CompareAndSwap(int32(SchedulerIdle), int32(SchedulerRunning)) {
		slog.Debug("DecayScheduler.Activate: already activated", "state", s.State())
		return false
	}
	slog.Info("DecayScheduler.Activate: decay loop started", "interval", s.engine.Config().Interval())
	go s.run(ctx)
	return true
}

// Stop ends the loop and waits for it to exit. Safe to call more than once,
// and on a scheduler that was never activated.
func (s *DecayScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.state.CompareAndSwap(int32(SchedulerIdle), int32(SchedulerStopped)) {
		return
	}
	<-s.done
}

func (s *DecayScheduler) run(ctx context.Context) {
	defer func() {
		s.state.Store(int32(SchedulerStopped))
		close(s.done)
		slog.Info("DecayScheduler.run: decay loop stopped")
	}()

	for {
		// Checked before every sleep so a stop never waits a full interval.
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		default:
		}

		timer := time.NewTimer(s.engine.Config().Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		report := s.RunCycle()
		s.mu.Lock()
		onCycle := s.onCycle
		s.mu.Unlock()
		if onCycle != nil {
			onCycle(report)
		}
	}
}

// RunCycle performs one decay pass over a snapshot of the tracked
// conversations, unless decay is disabled in the current configuration.
// Conversations created while the pass runs are left for the next cycle.
func (s *DecayScheduler) RunCycle() CycleReport {
	if !s.engine.Config().Features.EnableDecay {
		slog.Debug("DecayScheduler.RunCycle: decay disabled, skipping cycle")
		return CycleReport{Skipped: true}
	}

	ids := s.engine.Conversations()
	report := CycleReport{Conversations: len(ids)}
	for _, id := range ids {
		if err := s.decayOne(id); err != nil {
			report.Failed++
			slog.Error("DecayScheduler.RunCycle: decay failed", "conversation", id, "error", err)
			continue
		}
		report.Decayed++
	}
	slog.Debug("DecayScheduler.RunCycle: cycle complete",
		"conversations", report.Conversations, "decayed", report.Decayed, "failed", report.Failed)
	return report
}

func (s *DecayScheduler) decayOne(id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during decay: %v", r)
		}
	}()
	_, err = s.engine.Decay(id)
	return err
}
