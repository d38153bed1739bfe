package store

import (
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/RagePipe/internal/models"
)

func event(id, conv string, at time.Time) models.RageEvent {
	return models.RageEvent{ID: id, ConversationID: conv, Op: "add", Source: "tease", Delta: 5, Value: 5, Level: 0, CreatedAt: at}
}

// exerciseStore runs the same checks against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	if err := s.AddReceipt(models.Receipt{To: "+123", Status: models.MessageStatusSent, Time: 1}); err != nil {
		t.Fatalf("AddReceipt: %v", err)
	}
	receipts, err := s.GetReceipts()
	if err != nil {
		t.Fatalf("GetReceipts: %v", err)
	}
	if len(receipts) != 1 || receipts[0].To != "+123" || receipts[0].Status != models.MessageStatusSent {
		t.Errorf("Receipt not stored or retrieved correctly: %+v", receipts)
	}

	if err := s.AddResponse(models.Response{From: "+123", Body: "hi", Time: 2}); err != nil {
		t.Fatalf("AddResponse: %v", err)
	}
	responses, err := s.GetResponses()
	if err != nil {
		t.Fatalf("GetResponses: %v", err)
	}
	if len(responses) != 1 || responses[0].Body != "hi" {
		t.Errorf("Response not stored or retrieved correctly: %+v", responses)
	}

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000003",
	} {
		if err := s.AddRageEvent(event(id, "conv-a", base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AddRageEvent: %v", err)
		}
	}
	if err := s.AddRageEvent(event("00000000-0000-0000-0000-000000000004", "conv-b", base)); err != nil {
		t.Fatalf("AddRageEvent: %v", err)
	}

	events, err := s.ListRageEvents("conv-a", 2)
	if err != nil {
		t.Fatalf("ListRageEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "00000000-0000-0000-0000-000000000003" || !events[0].CreatedAt.Equal(base.Add(2*time.Hour)) {
		t.Errorf("expected newest event first, got %+v", events[0])
	}

	removed, err := s.PruneRageEvents(base.Add(90 * time.Minute))
	if err != nil {
		t.Fatalf("PruneRageEvents: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 pruned events, got %d", removed)
	}
	events, _ = s.ListRageEvents("conv-a", 0)
	if len(events) != 1 {
		t.Errorf("expected 1 remaining event for conv-a, got %d", len(events))
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ragepipe.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore_NoDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Fatal("expected error without DSN")
	}
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; DATABASE_URL holds the connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	for _, table := range []string{"receipts", "responses", "rage_events"} {
		pgStore.db.Exec("DELETE FROM " + table)
	}
	exerciseStore(t, pgStore)
}

func TestDetectDSNType(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://user:pw@localhost/db", DriverPostgres},
		{"postgresql://localhost/db", DriverPostgres},
		{"host=localhost user=me dbname=rage sslmode=disable", DriverPostgres},
		{"/var/lib/ragepipe/state.db", DriverSQLite},
		{"file:test.db?cache=shared", DriverSQLite},
	}
	for _, tt := range tests {
		if got := DetectDSNType(tt.dsn); got != tt.want {
			t.Errorf("DetectDSNType(%q) = %s, want %s", tt.dsn, got, tt.want)
		}
	}
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "open.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", s)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
