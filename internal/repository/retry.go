package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// mysqlDeadlock is ER_LOCK_DEADLOCK. InnoDB has already rolled the
// transaction back when it reports it.
const mysqlDeadlock = 1213

// IsDeadlock reports whether err is a MySQL deadlock.
func IsDeadlock(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDeadlock
}

// RetryOnDeadlock runs fn and runs it once more if it failed with a
// deadlock. fn must be a whole transaction.
func RetryOnDeadlock(fn func() error) error {
	err := fn()
	if IsDeadlock(err) {
		err = fn()
	}
	return err
}
