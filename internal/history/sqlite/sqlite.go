package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/vpnclient/internal/history"
)

// Sink writes history records to SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	// Handle sqlite:// prefix
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vpn_history(
			occurred_at TIMESTAMP NOT NULL,
			operation_id TEXT NOT NULL,
			status TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vpn_history_operation ON vpn_history(operation_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, r history.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vpn_history(occurred_at, operation_id, status, timestamp_ms)
		VALUES(?, ?, ?, ?);`,
		r.OccurredAt.UTC(), r.OperationID, r.Status.String(), r.Timestamp)
	return err
}

// Count returns the number of mirrored records for an operation.
func (s *Sink) Count(ctx context.Context, operationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vpn_history WHERE operation_id = ?;`, operationID).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
