package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/RagePipe/internal/models"
)

// eventQueues holds the receipt and response channels shared by the
// transports. Emits after close are dropped.
type eventQueues struct {
	receipts  chan models.Receipt
	responses chan models.Response

	mu      sync.RWMutex
	stopped bool
}

func newEventQueues() *eventQueues {
	return &eventQueues{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (q *eventQueues) isStopped() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.stopped
}

// emitReceipt never blocks; a full channel drops the receipt.
func (q *eventQueues) emitReceipt(r models.Receipt) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return
	}
	select {
	case q.receipts <- r:
	default:
		slog.Warn("messaging.emitReceipt: receipts channel full, dropping receipt", "to", r.To, "status", r.Status)
	}
}

// emitResponse waits up to DefaultChannelTimeout for room in the channel.
func (q *eventQueues) emitResponse(r models.Response) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		slog.Warn("messaging.emitResponse: service stopped, dropping message", "from", r.From)
		return false
	}
	select {
	case q.responses <- r:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("messaging.emitResponse: responses channel blocked, dropping message", "from", r.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

// close closes both channels once. It waits for in-flight emits, which hold
// the read lock.
func (q *eventQueues) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	close(q.receipts)
	close(q.responses)
}
