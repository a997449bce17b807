package store

import (
	"context"
	"errors"
	"lms/pkg/circuitbreaker"
	"lms/pkg/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnfilteredWrite guards Update and Delete against touching a whole table.
var ErrUnfilteredWrite = errors.New("refusing to write without a filter")

// StorageError carries a backend failure. Error returns the backend's
// message unmodified.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err came from the backend.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Record is the set of tables the gateway can address.
type Record interface {
	models.Member | models.Book | models.BorrowRecord
	TableName() string
	PrimaryKey() string
	Key() uint
}

// Fields maps column names to new values for a partial update.
type Fields map[string]interface{}

// Increment is applied in the database as col = col + Increment.
type Increment int

// Incr returns a field value adding n to the current column value.
func Incr(n int) Increment { return Increment(n) }

// Gateway executes CRUD round trips against the members, books and
// borrow_records tables.
type Gateway struct {
	db      *gorm.DB
	breaker *circuitbreaker.CircuitBreaker
}

// New wraps db. breaker may be nil.
func New(db *gorm.DB, breaker *circuitbreaker.CircuitBreaker) *Gateway {
	if breaker != nil {
		breaker.CountOnly(IsStorageError)
	}
	return &Gateway{db: db, breaker: breaker}
}

// DB exposes the underlying handle, e.g. for health checks.
func (g *Gateway) DB() *gorm.DB { return g.db }

// Transaction runs fn against a gateway bound to a single database
// transaction. An error from fn rolls back and is returned as is.
func (g *Gateway) Transaction(ctx context.Context, fn func(tx *Gateway) error) error {
	var fnErr error
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&Gateway{db: tx, breaker: g.breaker})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return wrap("commit", err)
	}
	return nil
}

func (g *Gateway) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	call := func() error {
		if err := fn(g.db.WithContext(ctx)); err != nil {
			return wrap(op, err)
		}
		return nil
	}
	if g.breaker == nil {
		return call()
	}
	err := g.breaker.Execute(call)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return &StorageError{Op: op, Err: err}
	}
	return err
}

func wrap(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Insert creates rec and returns it with generated columns filled in.
func Insert[T Record](ctx context.Context, g *Gateway, rec *T) (*T, error) {
	err := g.run(ctx, "insert", func(db *gorm.DB) error {
		return db.Create(rec).Error
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Select returns all rows matching f ordered by primary key.
func Select[T Record](ctx context.Context, g *Gateway, f Filter) ([]T, error) {
	var zero T
	var out []T
	err := g.run(ctx, "select", func(db *gorm.DB) error {
		return f.apply(db.Model(new(T))).
			Order(clause.OrderByColumn{Column: clause.Column{Name: zero.PrimaryKey()}}).
			Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the lowest-keyed row matching f, or nil when none does.
func First[T Record](ctx context.Context, g *Gateway, f Filter) (*T, error) {
	rows, err := Select[T](ctx, g, f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Update applies fields to every row matching f and returns the affected
// rows as they are after the write. Empty fields write nothing and return
// the matching rows.
func Update[T Record](ctx context.Context, g *Gateway, f Filter, fields Fields) ([]T, error) {
	if f.Empty() {
		return nil, &StorageError{Op: "update", Err: ErrUnfilteredWrite}
	}
	matched, err := Select[T](ctx, g, f)
	if err != nil || len(matched) == 0 || len(fields) == 0 {
		return matched, err
	}

	var zero T
	keys := keysOf(matched)
	assignments := toAssignments(fields)
	var affected int64
	err = g.run(ctx, "update", func(db *gorm.DB) error {
		res := f.In(zero.PrimaryKey(), keys...).apply(db.Model(new(T))).Updates(assignments)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return []T{}, nil
	}
	// rows may have stopped matching f between the select and the write
	return Select[T](ctx, g, Where().In(zero.PrimaryKey(), keys...))
}

// Delete removes every row matching f and returns the removed rows.
func Delete[T Record](ctx context.Context, g *Gateway, f Filter) ([]T, error) {
	if f.Empty() {
		return nil, &StorageError{Op: "delete", Err: ErrUnfilteredWrite}
	}
	matched, err := Select[T](ctx, g, f)
	if err != nil || len(matched) == 0 {
		return matched, err
	}

	var zero T
	err = g.run(ctx, "delete", func(db *gorm.DB) error {
		return f.In(zero.PrimaryKey(), keysOf(matched)...).apply(db).Delete(new(T)).Error
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

// Count returns the number of rows matching f.
func Count[T Record](ctx context.Context, g *Gateway, f Filter) (int64, error) {
	var n int64
	err := g.run(ctx, "count", func(db *gorm.DB) error {
		return f.apply(db.Model(new(T))).Count(&n).Error
	})
	return n, err
}

func keysOf[T Record](rows []T) []interface{} {
	keys := make([]interface{}, len(rows))
	for i, r := range rows {
		keys[i] = r.Key()
	}
	return keys
}

func toAssignments(fields Fields) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for col, v := range fields {
		if inc, ok := v.(Increment); ok {
			out[col] = gorm.Expr("? + ?", clause.Column{Name: col}, int(inc))
			continue
		}
		out[col] = v
	}
	return out
}
