package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfsignup/internal/platform/config"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"000001_users.up.sql":   {Data: []byte("CREATE TABLE users (id UUID);")},
		"000001_users.down.sql": {Data: []byte("DROP TABLE users;")},
		"000002_regs.up.sql":    {Data: []byte("CREATE TABLE regs (id UUID);")},
	}
}

func TestMigrateAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("000001_users.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE regs")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs("000002_regs.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := Migrate(context.Background(), db, testMigrations(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackFailedFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE users")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	n, err := Migrate(context.Background(), db, testMigrations(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000001_users.up.sql")
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenWithoutURL(t *testing.T) {
	db, err := Open(context.Background(), config.PostgresConfig{})
	assert.NoError(t, err)
	assert.Nil(t, db)
}
