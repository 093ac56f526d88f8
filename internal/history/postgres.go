package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*Postgres)(nil)

const ddlPlays = `
CREATE TABLE IF NOT EXISTS plays (
    id              BIGSERIAL    PRIMARY KEY,
    chat_id         BIGINT       NOT NULL,
    session_id      TEXT         NOT NULL DEFAULT '',
    source_id       TEXT         NOT NULL,
    provider        TEXT         NOT NULL DEFAULT '',
    title           TEXT         NOT NULL DEFAULT '',
    artist          TEXT         NOT NULL DEFAULT '',
    duration        TEXT         NOT NULL DEFAULT '',
    link            TEXT         NOT NULL DEFAULT '',
    requester_id    BIGINT       NOT NULL DEFAULT 0,
    requester_name  TEXT         NOT NULL DEFAULT '',
    started_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_plays_chat_started
    ON plays (chat_id, started_at DESC);
`

// Postgres is a [Store] backed by PostgreSQL.
//
// All methods are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, pings the server and creates the plays table
// if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// Migrate creates the schema. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlPlays); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record implements [Store].
func (s *Postgres) Record(ctx context.Context, p Play) error {
	const q = `
		INSERT INTO plays
		    (chat_id, session_id, source_id, provider, title, artist, duration, link,
		     requester_id, requester_name, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, q,
		p.ChatID,
		p.SessionID,
		p.SourceID,
		p.Provider,
		p.Title,
		p.Artist,
		p.Duration,
		p.Link,
		p.RequestedBy.ID,
		p.RequestedBy.DisplayName,
		p.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *Postgres) Recent(ctx context.Context, chatID int64, limit int) ([]Play, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	const q = `
		SELECT chat_id, session_id, source_id, provider, title, artist, duration, link,
		       requester_id, requester_name, started_at
		FROM   plays
		WHERE  chat_id = $1
		ORDER  BY started_at DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	plays, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Play, error) {
		var p Play
		err := row.Scan(
			&p.ChatID,
			&p.SessionID,
			&p.SourceID,
			&p.Provider,
			&p.Title,
			&p.Artist,
			&p.Duration,
			&p.Link,
			&p.RequestedBy.ID,
			&p.RequestedBy.DisplayName,
			&p.StartedAt,
		)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return plays, nil
}

// Ping checks the database connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [Store].
func (s *Postgres) Close() {
	s.pool.Close()
}
