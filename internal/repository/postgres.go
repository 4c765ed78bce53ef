package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/chronicle/internal/db"
)

// postgresStore implements Store on top of the shared connection pool.
type postgresStore struct {
	conn *db.Connection
}

// NewStore creates a Postgres-backed Store.
func NewStore(conn *db.Connection) Store {
	return &postgresStore{conn: conn}
}

func (s *postgresStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&postgresTx{tx: tx})
	})
}

// postgresTx bundles the table accessors over one pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Entities() EntityStore  { return &entityStore{tx: t.tx} }
func (t *postgresTx) Details() DetailStore   { return &detailStore{tx: t.tx} }
func (t *postgresTx) Types() EntityTypeStore { return &entityTypeStore{tx: t.tx} }
func (t *postgresTx) Audit() AuditWriter     { return &auditWriter{tx: t.tx} }
