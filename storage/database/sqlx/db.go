package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/piyuguide/core"
)

// psql builds statements with postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type txKey struct{}

// DB is the Transactor of the sqlx repositories. Repositories called with a ctx
// handed out by InTx run their statements on that transaction.
type DB struct {
	db *sqlx.DB
}

var _ core.Transactor = (*DB)(nil) // interface compliance check

func NewDB(db *sqlx.DB) *DB {
	return &DB{db: db}
}

// InTx runs fn in a transaction. A ctx already inside one joins it.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	txCtx, hooks := core.WithTxHooks(ctx)
	txCtx = context.WithValue(txCtx, txKey{}, tx)
	txCtx = core.WithSavepointer(txCtx, savepointer(tx))

	if err = fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	hooks.Run(ctx)
	return nil
}

// savepointer isolates best-effort writes: a failed statement aborts a postgres
// transaction unless it ran under a savepoint that is rolled back.
func savepointer(tx *sqlx.Tx) core.Savepointer {
	var n int
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		n++
		name := fmt.Sprintf("best_effort_%d", n)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
			return errors.Wrap(err, "creating savepoint")
		}
		if err := fn(ctx); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
				return errors.Wrap(rbErr, "rolling back to savepoint")
			}
			return err
		}
		_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return errors.Wrap(err, "releasing savepoint")
	}
}

// ext returns the transaction carried by ctx, or the pool.
func (db *DB) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.db
}

func (db *DB) get(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, db.ext(ctx), dest, query, args...)
}

func (db *DB) selectAll(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, db.ext(ctx), dest, query, args...)
}

// exec returns the number of affected rows.
func (db *DB) exec(ctx context.Context, b sq.Sqlizer) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := db.ext(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (db *DB) count(ctx context.Context, b sq.SelectBuilder) (int, error) {
	var n int
	err := db.get(ctx, &n, b)
	return n, err
}

// countBy fills counts from the rows of a grouped query selecting `key` and `n`.
func countBy(ctx context.Context, db *DB, counts map[string]int, b sq.SelectBuilder) error {
	var rows []struct {
		Key string `db:"key"`
		N   int    `db:"n"`
	}
	if err := db.selectAll(ctx, &rows, b); err != nil {
		return err
	}
	for _, r := range rows {
		counts[r.Key] = r.N
	}
	return nil
}

// paged applies page to b. A zero page leaves b unbounded.
func paged(b sq.SelectBuilder, page core.Page) sq.SelectBuilder {
	if page.PerPage <= 0 {
		return b
	}
	return b.Limit(uint64(page.PerPage)).Offset(uint64(page.Offset()))
}

// notFound maps sql.ErrNoRows to errNotFound.
func notFound(err, errNotFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a postgres unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func newID() string {
	return uuid.New().String()
}

// isUUID guards lookups on uuid columns, which reject malformed input with an error.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// nullString stores an empty string as NULL.
func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
