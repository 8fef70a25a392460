package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultPostgresTable is the table used when none is configured.
const DefaultPostgresTable = "groupsync_rollback"

// Querier is the part of *pgxpool.Pool and *pgx.Conn used by PostgresStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the record as text in a single-row table. The row is
// written with one upsert, so a reader sees either the old or the new
// record.
type PostgresStore struct {
	db    Querier
	table string // sanitized identifier
}

// NewPostgresStore returns a PostgresStore using table, or
// DefaultPostgresTable if empty. Call EnsureSchema before first use.
func NewPostgresStore(db Querier, table string) *PostgresStore {
	if table == "" {
		table = DefaultPostgresTable
	}
	return &PostgresStore{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureSchema creates the table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
	id         smallint PRIMARY KEY CHECK (id = 1),
	record     text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (*Record, error) {
	var text string
	err := s.db.QueryRow(ctx, `SELECT record FROM `+s.table+` WHERE id = 1`).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s: %w", s.table, err)
	}
	return Decode([]byte(text))
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, r *Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO `+s.table+` (id, record) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`, string(data))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", s.table, err)
	}
	return nil
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE id = 1`); err != nil {
		return fmt.Errorf("delete %s: %w", s.table, err)
	}
	return nil
}
