package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/port"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Store is the Postgres-backed repository. A Store created by WithTx has a nil db
// and runs every query on the open transaction.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

var _ port.Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a database transaction
func (s *Store) WithTx(ctx context.Context, fn func(repo port.Repository) error) error {
	return s.inTx(ctx, func(tx *Store) error {
		return fn(tx)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *Store) error) (txErr error) {
	// already inside a transaction
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rbErr))
			}
		}
	}()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// escapeLike escapes LIKE wildcards so the term matches literally
func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

// whereClause collects SQL predicates with positional arguments
type whereClause struct {
	parts []string
	args  []interface{}
}

func (w *whereClause) add(predicate string, arg interface{}) {
	w.args = append(w.args, arg)
	w.parts = append(w.parts, strings.ReplaceAll(predicate, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereClause) addRaw(predicate string) {
	w.parts = append(w.parts, predicate)
}

func (w *whereClause) String() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

func (w *whereClause) next() string {
	return fmt.Sprintf("$%d", len(w.args)+1)
}
