package database

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mysqlLockWaitTimeout is ER_LOCK_WAIT_TIMEOUT.
const mysqlLockWaitTimeout = 1205

// SetLockWaitTimeout bounds row-lock waits for the rest of tx on MySQL.
// Other dialects rely on the context deadline alone.
func SetLockWaitTimeout(tx *gorm.DB, d time.Duration) error {
	if tx.Dialector.Name() != DriverMySQL {
		return nil
	}
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return tx.Exec("SET SESSION innodb_lock_wait_timeout = ?", secs).Error
}

// IsLockTimeout reports whether err came from a lock wait that ran out,
// either in the database or through the caller's deadline.
func IsLockTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlLockWaitTimeout
}
