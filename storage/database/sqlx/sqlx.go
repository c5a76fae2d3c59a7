// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core"
)

const uniqueViolation = "23505"

var nowFunc = time.Now // mockable

func now() time.Time {
	return nowFunc().UTC()
}

// dbError wraps a driver failure into a *core.DatabaseError.
func dbError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if core.IsDatabaseError(err) {
		return err
	}
	return core.NewDatabaseError(errors.Wrap(err, msg), isConnectionErr(err))
}

func isConnectionErr(err error) bool {
	cause := errors.Cause(err)
	if cause == driver.ErrBadConn || cause == sql.ErrConnDone {
		return true
	}
	var pqErr *pq.Error
	if errors.As(cause, &pqErr) {
		// 08: connection exception, 57: operator intervention (admin shutdown...)
		class := pqErr.Code.Class()
		return class == "08" || class == "57"
	}
	var netErr net.Error
	return errors.As(cause, &netErr)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(errors.Cause(err), &pqErr) && pqErr.Code == uniqueViolation
}

// trapNoRowsErr maps "no rows" to notFound and wraps any other failure.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return dbError(err, msg)
}

// validID reports whether id can be compared with a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// withTx runs fn in a transaction, committed only when fn succeeds.
func withTx(ctx context.Context, db core.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return dbError(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = dbError(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

func rowsAffected(res sql.Result, msg string) (int64, error) {
	n, err := res.RowsAffected()
	return n, dbError(err, msg)
}
