// Package sqlxrepos implements the core repositories on top of jmoiron/sqlx.
//
// Queries are written with `?` placeholders and rebound for the executor's driver,
// so the same repositories run against postgres and sqlite3.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
)

type baseRepository struct {
	exec core.DBExecutor
}

// getExec returns the executor handed over by a service (eg. a transaction), or the repository's own.
func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps "no rows" errors to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// execAffecting runs an UPDATE/DELETE and returns the number of affected rows.
func execAffecting(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int, error) {
	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
