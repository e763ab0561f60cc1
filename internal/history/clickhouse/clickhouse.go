package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/vpnclient/internal/history"
)

// Sink sends records to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options configures the connection; zero values fall back to the ClickHouse defaults.
type Options struct {
	Database string
	Username string
	Password string
}

func New(addr, table string, opts ...Options) (*Sink, error) {
	o := Options{Database: "default", Username: "default"}
	if len(opts) > 0 {
		if opts[0].Database != "" {
			o.Database = opts[0].Database
		}
		if opts[0].Username != "" {
			o.Username = opts[0].Username
		}
		o.Password = opts[0].Password
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			occurred_at DateTime64(3),
			operation_id String,
			status LowCardinality(String),
			timestamp_ms Int64
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, operation_id)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, r history.Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, operation_id, status, timestamp_ms) VALUES (?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		r.OccurredAt.UTC(),
		r.OperationID,
		r.Status.String(),
		r.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert record into ClickHouse: %w", err)
	}

	return nil
}
