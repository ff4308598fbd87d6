package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/crm/internal/store"
)

var _ store.CRMStore = (*CRMStore)(nil)

// CRMStore implements store.CRMStore using PostgreSQL.
// Every statement carries the organization ID as a predicate.
type CRMStore struct {
	pool *pgxpool.Pool
}

// NewCRMStore creates a new PostgreSQL-backed CRM store.
func NewCRMStore(pool *pgxpool.Pool) *CRMStore {
	return &CRMStore{
		pool: pool,
	}
}

// Ping verifies the database is reachable.
func (s *CRMStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// conditions accumulates a WHERE clause with positional arguments.
type conditions struct {
	clauses []string
	args    []any
}

// add appends clause, replacing each ? with the placeholder for arg.
func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(c.args))))
}

func (c *conditions) where() string {
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// list counts and fetches a page of rows in one round trip.
func list[T any](ctx context.Context, pool *pgxpool.Pool, columns, table, orderBy string, cond *conditions, page store.Page, scan func(scanner) (*T, error)) ([]*T, int, error) {
	countSQL := "SELECT count(*) FROM " + table + cond.where()
	selectSQL := "SELECT " + columns + " FROM " + table + cond.where() + " ORDER BY " + orderBy

	args := cond.args
	if page.Limit > 0 {
		args = append(args[:len(args):len(args)], page.Limit, page.Offset())
		selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	batch := &pgx.Batch{}
	batch.Queue(countSQL, cond.args...)
	batch.Queue(selectSQL, args...)

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var total int
	if err := results.QueryRow().Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", table, mapPostgresError(err))
	}

	rows, err := results.Query()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", table, mapPostgresError(err))
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*T, error) {
		return scan(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan %s: %w", table, mapPostgresError(err))
	}

	return items, total, nil
}

// getOne maps a missing row to store.ErrNotFound.
func getOne[T any](row pgx.Row, what string, scan func(scanner) (*T, error)) (*T, error) {
	item, err := scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, mapPostgresError(err))
	}
	return item, nil
}

// execOne runs a statement that must touch exactly one row of the organization.
func execOne(ctx context.Context, db execer, what, query string, args ...any) error {
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
