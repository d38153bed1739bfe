// Package store provides storage backends for RagePipe.
//
// It holds message receipts, inbound responses and the rage event journal.
// Backends are in-memory, SQLite and PostgreSQL; the journal is append-only
// and is never read back into the rage engine.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/RagePipe/internal/models"
)

// DefaultEventLimit caps ListRageEvents when the caller passes no limit.
const DefaultEventLimit = 50

// Store is the persistence interface shared by all backends.
type Store interface {
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)
	AddRageEvent(e models.RageEvent) error
	// ListRageEvents returns the newest events for a conversation, newest first.
	ListRageEvents(conversationID string, limit int) ([]models.RageEvent, error)
	// PruneRageEvents deletes events created before cutoff and returns how many were removed.
	PruneRageEvents(cutoff time.Time) (int64, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Database driver names returned by DetectDSNType.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DetectDSNType reports whether dsn points at PostgreSQL or SQLite.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "user=") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open returns the backend matching dsn.
func Open(dsn string) (Store, error) {
	if DetectDSNType(dsn) == DriverPostgres {
		slog.Debug("store.Open: using PostgreSQL backend")
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	slog.Debug("store.Open: using SQLite backend", "path", dsn)
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

// InMemoryStore is a process-local Store, safe for concurrent use.
type InMemoryStore struct {
	mu        sync.RWMutex
	receipts  []models.Receipt
	responses []models.Response
	events    []models.RageEvent
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Receipt(nil), s.receipts...), nil
}

func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Response(nil), s.responses...), nil
}

func (s *InMemoryStore) AddRageEvent(e models.RageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *InMemoryStore) ListRageEvents(conversationID string, limit int) ([]models.RageEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	s.mu.RLock()
	var out []models.RageEvent
	for _, e := range s.events {
		if e.ConversationID == conversationID {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) PruneRageEvents(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
