package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/BTreeMap/RagePipe/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore.NewPostgresStore: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		slog.Error("PostgresStore.NewPostgresStore: failed to open connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore.NewPostgresStore: ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore.NewPostgresStore: failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: migrations applied")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("PostgresStore.AddReceipt: insert failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("PostgresStore.AddReceipt: stored", "to", r.To, "status", r.Status)
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore.GetReceipts: query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

func (s *PostgresStore) AddResponse(r models.Response) error {
	_, err := s.db.Exec(`INSERT INTO responses (sender, body, time) VALUES ($1, $2, $3)`, r.From, r.Body, r.Time)
	if err != nil {
		slog.Error("PostgresStore.AddResponse: insert failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	return nil
}

func (s *PostgresStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT sender, body, time FROM responses ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore.GetResponses: query failed", "error", err)
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()
	return scanResponses(rows)
}

func (s *PostgresStore) AddRageEvent(e models.RageEvent) error {
	_, err := s.db.Exec(`INSERT INTO rage_events
		(id, conversation_id, op, source, delta, value, level, previous_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ConversationID, e.Op, e.Source, e.Delta, e.Value, e.Level, e.PreviousLevel, e.CreatedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore.AddRageEvent: insert failed", "error", err, "conversation", e.ConversationID, "op", e.Op)
		return fmt.Errorf("failed to insert rage event for %s: %w", e.ConversationID, err)
	}
	return nil
}

func (s *PostgresStore) ListRageEvents(conversationID string, limit int) ([]models.RageEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	rows, err := s.db.Query(`SELECT id, conversation_id, op, source, delta, value, level, previous_level, created_at
		FROM rage_events WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2`, conversationID, limit)
	if err != nil {
		slog.Error("PostgresStore.ListRageEvents: query failed", "error", err, "conversation", conversationID)
		return nil, fmt.Errorf("failed to query rage events: %w", err)
	}
	defer rows.Close()
	return scanRageEvents(rows)
}

func (s *PostgresStore) PruneRageEvents(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM rage_events WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		slog.Error("PostgresStore.PruneRageEvents: delete failed", "error", err)
		return 0, fmt.Errorf("failed to prune rage events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("PostgresStore.Close: failed to close database", "error", err)
		return err
	}
	return nil
}
