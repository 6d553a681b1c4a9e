// Package repository implements the Repository Layer: generic CRUD over
// the domain model against a relational store, with row→entity factories
// keyed by a discriminator column for the polymorphic entities
// (Server, IoTDevice), per spec.md §4.C.
//
// Grounded on original_source/Repositories/GenericRepo.hpp's template —
// Go generics play the role the C++ RepoTrait/Factory template
// parameters played there.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/falcata-iot/edge/core/csql"
)

// Scanner is the subset of *sql.Row/*sql.Rows the Factory functions
// below need.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Trait supplies the SQL templates and row factory for a Repository[T],
// the Go-generics analogue of GenericRepo.hpp's RepoTrait/Factory.
type Trait[T any] struct {
	SelectAllSql   string
	ListSql        string
	SelectByIDSql  string
	InsertSql      string
	UpdateSql      string
	DeleteSql      string
	SetDisableSql  string

	// FromRow scans one result row into a T.
	FromRow func(Scanner) (T, error)
}

// Repository is a generic CRUD accessor for a single entity type,
// parameterized by a Trait[T]. It implements the operation table in
// spec.md §4.C: find_all, list, find_by_id, insert, update, remove,
// set_disabled. find_by_ids and find_by_discriminator are not
// implemented, here or elsewhere; the polymorphic entities' dedicated
// repositories (ServerRepository, DeviceRepository) offer FindAll,
// FindByID and Insert, dispatching each row on its protocol column.
type Repository[T any] struct {
	db    *csql.DB
	trait Trait[T]
}

// New creates a Repository[T] bound to db using trait's SQL templates
// and row factory.
func New[T any](db *csql.DB, trait Trait[T]) *Repository[T] {
	return &Repository[T]{db: db, trait: trait}
}

// FindAll returns every row, in the order SelectAllSql specifies.
func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, r.trait.SelectAllSql)
	if err != nil {
		return nil, fmt.Errorf("find_all: %w", err)
	}
	defer rows.Close()
	return scanAll(rows, r.trait.FromRow)
}

// List returns a bounded sequence using ListSql with the given params
// (typical params: tenant_id, limit).
func (r *Repository[T]) List(ctx context.Context, params ...interface{}) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, r.trait.ListSql, params...)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()
	return scanAll(rows, r.trait.FromRow)
}

// FindByID returns the row matching id, or (zero, false, nil) if none exists.
// More than one matching row is an error.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	rows, err := r.db.QueryContext(ctx, r.trait.SelectByIDSql, id)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("find_by_id: %w", err)
	}
	defer rows.Close()

	found, ok, err := scanOptional(rows, r.trait.FromRow)
	if err != nil {
		return found, false, fmt.Errorf("find_by_id: %w", err)
	}
	return found, ok, nil
}

// Insert executes InsertSql with params and returns the inserted id
// (expected as the first returned column).
func (r *Repository[T]) Insert(ctx context.Context, params ...interface{}) (string, error) {
	var id string
	row := r.db.QueryRowContext(ctx, r.trait.InsertSql, params...)
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}
	return id, nil
}

// Update executes UpdateSql with params.
func (r *Repository[T]) Update(ctx context.Context, params ...interface{}) error {
	res, err := r.db.ExecContext(ctx, r.trait.UpdateSql, params...)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return requireRowsAffected(res, "update")
}

// Remove executes DeleteSql with params.
func (r *Repository[T]) Remove(ctx context.Context, params ...interface{}) error {
	res, err := r.db.ExecContext(ctx, r.trait.DeleteSql, params...)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return requireRowsAffected(res, "remove")
}

// SetDisabled executes SetDisableSql with params (typically disabled, id).
func (r *Repository[T]) SetDisabled(ctx context.Context, params ...interface{}) error {
	res, err := r.db.ExecContext(ctx, r.trait.SetDisableSql, params...)
	if err != nil {
		return fmt.Errorf("set_disabled: %w", err)
	}
	return requireRowsAffected(res, "set_disabled")
}

func requireRowsAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: no rows affected", op)
	}
	return nil
}

func scanAll[T any](rows *sql.Rows, fromRow func(Scanner) (T, error)) ([]T, error) {
	var out []T
	for rows.Next() {
		v, err := fromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanOptional[T any](rows *sql.Rows, fromRow func(Scanner) (T, error)) (T, bool, error) {
	var zero T
	if !rows.Next() {
		return zero, false, rows.Err()
	}
	v, err := fromRow(rows)
	if err != nil {
		return zero, false, err
	}
	if rows.Next() {
		return zero, false, fmt.Errorf("expected 1 row, got more")
	}
	return v, true, nil
}
