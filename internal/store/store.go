// Package store is the Postgres persistence layer: users, their tracked
// birthdays and the reminder run log.
//
// Single-statement reads and writes live on Queries and are promoted onto
// Store. Operations that read then write (Google sign-in linking) or write
// many rows at once (contact import) run inside withTx.
//
// Dependency rule: store imports calendar only. It never imports api, worker,
// auth, or email.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store holds a *sql.DB for starting transactions and embeds a Queries bound
// to the pool for everything else.
type Store struct {
	// pool is the raw connection pool, used only to begin transactions.
	pool *sql.DB

	*Queries
}

// New creates a Store from a live connection pool. The pool must already be
// open and verified (e.g. via db.PingContext) before calling New.
func New(pool *sql.DB) *Store {
	return &Store{pool: pool, Queries: &Queries{db: pool}}
}

// Ping checks the pool is reachable; used by /healthz.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.PingContext(ctx)
}

// txFunc receives a transactional Queries. Returning a non-nil error causes
// withTx to roll back automatically.
type txFunc func(ctx context.Context, q *Queries) error

// withTx begins a transaction, passes a Queries scoped to that transaction to
// fn, and commits on success or rolls back on any error (including panics).
//
// Serializable isolation is used because LoginWithGoogle checks for an
// existing row before inserting.
func (s *Store) withTx(ctx context.Context, fn txFunc) error {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	// Roll back on panic so the connection is never left in a broken state.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-panic after rollback
		}
	}()

	if err := fn(ctx, s.Queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: fn error: %w; rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// ─── MULTI-STEP OPERATIONS ───────────────────────────────────────────────────

// LoginWithGoogle finds the account for a verified Google identity, creating
// it when the email is new and linking the Google ID when the account exists
// without one. An account already linked to a Google ID is returned as is.
func (s *Store) LoginWithGoogle(ctx context.Context, p GoogleUserParams) (User, error) {
	var user User

	err := s.withTx(ctx, func(ctx context.Context, q *Queries) error {
		existing, err := q.GetUserByEmail(ctx, p.Email)
		switch {
		case errors.Is(err, ErrNotFound):
			user, err = q.createGoogleUser(ctx, p)
			if err != nil {
				return fmt.Errorf("LoginWithGoogle: create: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("LoginWithGoogle: lookup: %w", err)
		}

		if existing.GoogleID.Valid && existing.GoogleID.String != "" {
			user = existing
			return nil
		}
		user, err = q.linkGoogleID(ctx, existing.ID, p.GoogleID)
		if err != nil {
			return fmt.Errorf("LoginWithGoogle: link: %w", err)
		}
		return nil
	})
	return user, err
}

// ImportBirthdays inserts every row or none. Used by the vCard import so a
// half-imported address book never shows up in the roster.
func (s *Store) ImportBirthdays(ctx context.Context, rows []CreateBirthdayParams) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	err := s.withTx(ctx, func(ctx context.Context, q *Queries) error {
		for i, row := range rows {
			if _, err := q.CreateBirthday(ctx, row); err != nil {
				return fmt.Errorf("ImportBirthdays: row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
