package store

import (
	"context"
	"database/sql"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Tx scopes multi-row writes to one transaction: a turn's events plus the
// entities and edges derived from it commit or roll back together.
type Tx struct {
	s   *Store
	tx  *sql.Tx
	ctx context.Context
}

// Begin opens a write transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "beginning transaction")
	}
	return &Tx{s: s, tx: tx, ctx: ctx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "committing transaction")
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
