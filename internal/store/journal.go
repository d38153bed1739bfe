package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/BTreeMap/RagePipe/internal/models"
	"github.com/BTreeMap/RagePipe/internal/rage"
)

// DefaultJournalBuffer is the queue size used when NewJournal gets a non-positive size.
const DefaultJournalBuffer = 256

// EventWriter persists rage events.
type EventWriter interface {
	AddRageEvent(e models.RageEvent) error
}

// Journal records rage changes asynchronously. It implements rage.Recorder:
// RecordChange never blocks, and events are dropped when the queue is full.
type Journal struct {
	writer EventWriter
	queue  chan models.RageEvent

	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once

	written atomic.Int64
	dropped atomic.Int64
}

// NewJournal creates a journal writing to w through a queue of the given size.
func NewJournal(w EventWriter, buffer int) *Journal {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	return &Journal{
		writer: w,
		queue:  make(chan models.RageEvent, buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// EventFromChange converts an engine change into a journal row with a fresh id.
func EventFromChange(c rage.Change) models.RageEvent {
	return models.RageEvent{
		ID:             uuid.NewString(),
		ConversationID: c.ConversationID,
		Op:             string(c.Op),
		Source:         string(c.Source),
		Delta:          c.Delta,
		Value:          c.Value,
		Level:          int(c.Level),
		PreviousLevel:  int(c.PreviousLevel),
		CreatedAt:      c.At,
	}
}

// RecordChange queues c for writing. Decays that leave the level unchanged
// are not journaled.
func (j *Journal) RecordChange(c rage.Change) {
	if c.Op == rage.OpDecay && !c.LevelChanged() {
		return
	}
	select {
	case j.queue <- EventFromChange(c):
	default:
		n := j.dropped.Add(1)
		slog.Warn("Journal.RecordChange: queue full, dropping event",
			"conversation", c.ConversationID, "op", c.Op, "dropped", n)
	}
}

// Start launches the writer goroutine. It stops when ctx is done or Close is
// called, writing whatever is still queued first.
func (j *Journal) Start(ctx context.Context) {
	if !j.started.CompareAndSwap(false, true) {
		return
	}
	slog.Info("Journal.Start: rage journal started", "buffer", cap(j.queue))
	go j.run(ctx)
}

// Close stops the writer and waits for it to flush the queue.
func (j *Journal) Close() {
	j.stopOnce.Do(func() { close(j.stop) })
	if j.started.Load() {
		<-j.done
	}
}

// Written returns how many events were persisted.
func (j *Journal) Written() int64 { return j.written.Load() }

// Dropped returns how many events were discarded because the queue was full.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

func (j *Journal) run(ctx context.Context) {
	defer close(j.done)
	for {
		select {
		case <-ctx.Done():
			j.drain()
			return
		case <-j.stop:
			j.drain()
			return
		case ev := <-j.queue:
			j.write(ev)
		}
	}
}

func (j *Journal) drain() {
	for {
		select {
		case ev := <-j.queue:
			j.write(ev)
		default:
			slog.Info("Journal.run: rage journal stopped", "written", j.written.Load(), "dropped", j.dropped.Load())
			return
		}
	}
}

func (j *Journal) write(ev models.RageEvent) {
	if err := j.writer.AddRageEvent(ev); err != nil {
		slog.Error("Journal.write: failed to persist rage event", "conversation", ev.ConversationID, "op", ev.Op, "error", err)
		return
	}
	j.written.Add(1)
}
