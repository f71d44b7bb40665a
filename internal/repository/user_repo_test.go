package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dryRunMySQL renders statements with the MySQL dialect without a server.
func dryRunMySQL(t *testing.T) (*gorm.DB, *[]string) {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "clubimpact:clubimpact@tcp(127.0.0.1:3306)/clubimpact?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)

	var statements []string
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:record_sql", func(tx *gorm.DB) {
		statements = append(statements, tx.Statement.SQL.String())
	}))
	return db, &statements
}

func TestGetForUpdateLocksTheRow(t *testing.T) {
	db, statements := dryRunMySQL(t)

	_, err := NewUserRepository(db).GetForUpdate(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, *statements, 1)
	sql := (*statements)[0]
	assert.Contains(t, sql, "FROM `users`")
	assert.Contains(t, sql, "id = ?")
	assert.Contains(t, sql, "FOR UPDATE")
}

func TestGetByIDDoesNotLock(t *testing.T) {
	db, statements := dryRunMySQL(t)

	_, err := NewUserRepository(db).GetByID(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, *statements, 1)
	assert.NotContains(t, (*statements)[0], "FOR UPDATE")
}
