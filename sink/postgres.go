package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/banzaicloud/ess-billing-exporter/config"
	"github.com/banzaicloud/ess-billing-exporter/enrich"
)

var postgresColumns = []string{"index_name", "document", "ingested_at"}

type pgConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Postgres copies every batch into one JSONB table. A COPY is all or
// nothing, so a failure reports the whole batch.
type Postgres struct {
	db      pgConn
	table   pgx.Identifier
	closeFn func()
	created bool
	now     func() time.Time
}

// NewPostgres opens a connection pool and checks it with a ping.
func NewPostgres(ctx context.Context, cfg config.Postgres) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := newPostgres(pool, cfg.Table)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgres(db pgConn, table string) *Postgres {
	return &Postgres{
		db:    db,
		table: pgx.Identifier{table},
		now:   time.Now,
	}
}

func (s *Postgres) ensureTable(ctx context.Context) error {
	if s.created {
		return nil
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	index_name TEXT NOT NULL,
	document JSONB NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL
)`, s.table.Sanitize()))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table.Sanitize(), err)
	}
	s.created = true
	log.Debugf("ensured document table [table=%s]", s.table.Sanitize())
	return nil
}

func (s *Postgres) Write(ctx context.Context, docs []enrich.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx); err != nil {
		return failAll(docs, 0, err)
	}

	now := s.now().UTC()
	rows := make([][]any, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d.Source)
		if err != nil {
			return fmt.Errorf("encode document %d [index=%s]: %w", i, d.Index, err)
		}
		rows[i] = []any{d.Index, string(b), now}
	}

	n, err := s.db.CopyFrom(ctx, s.table, postgresColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return failAll(docs, 0, fmt.Errorf("copy into %s: %w", s.table.Sanitize(), err))
	}
	if int(n) != len(docs) {
		return failAll(docs, 0, fmt.Errorf("copy into %s: wrote %d of %d rows", s.table.Sanitize(), n, len(docs)))
	}
	return nil
}

func (s *Postgres) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
