// Package sqlxrepos implements the repositories on top of jmoiron/sqlx, for the postgres & mysql engines.
// Queries are written with "?" placeholders and rebound to the driver's bindvar.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type repository struct {
	db *sqlx.DB
}

func (repo repository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return repo.db.GetContext(ctx, dest, repo.db.Rebind(query), args...)
}

func (repo repository) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return repo.db.SelectContext(ctx, dest, repo.db.Rebind(query), args...)
}

func (repo repository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// in expands the slice args of query (sqlx.In) then rebinds it.
func (repo repository) in(query string, args ...interface{}) (string, []interface{}, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return repo.db.Rebind(query), args, nil
}

// withTx runs fn in a transaction, rolled back if fn fails.
func (repo repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// trapNoRowsErr maps the "no rows" error to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// where joins the conditions with AND.
func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
