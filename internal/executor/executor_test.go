package executor

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapask/internal/testutil"
	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	postgresDialect = adapter.Dialect{Name: "postgres", ReadOnlyTx: true, StatementTimeout: "SET LOCAL statement_timeout = %d", Placeholder: "$1"}
	sqliteDialect   = adapter.Dialect{Name: "sqlite", Placeholder: "?"}
)

type testConn struct {
	adapter.BaseSQLAdapter
	dialect adapter.Dialect
}

func (c *testConn) Dialect() adapter.Dialect { return c.dialect }

func newTestExecutor(t *testing.T, d adapter.Dialect, opts ...Option) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn := &testConn{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db}, dialect: d}
	v := validator.New(validator.Options{Schema: testutil.FactorySchema()})
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	return New(conn, v, opts...), mock
}

func TestExecute_Postgres(t *testing.T) {
	e, mock := newTestExecutor(t, postgresDialect)
	query := "SELECT employees.full_name, employees.id FROM employees ORDER BY employees.full_name ASC LIMIT 100"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout = 5000")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRows([]string{"full_name", "id"}).
			AddRow([]byte("Dana Levi"), int64(1)).
			AddRow("Igor Petrov", int64(2)))
	mock.ExpectRollback()

	res, err := e.Execute(context.Background(), query, validator.Strict)
	require.NoError(t, err)
	assert.Equal(t, []string{"full_name", "id"}, res.Columns)
	assert.Equal(t, [][]any{{"Dana Levi", int64(1)}, {"Igor Petrov", int64(2)}}, res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_RunsSanitizedSQL(t *testing.T) {
	e, mock := newTestExecutor(t, sqliteDialect)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT machines.name FROM machines LIMIT 100")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectRollback()

	res, err := e.Execute(context.Background(), "SELECT machines.name FROM machines;", validator.Strict)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_CustomTimeout(t *testing.T) {
	e, mock := newTestExecutor(t, postgresDialect, WithStatementTimeout(1500*time.Millisecond))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout = 1500")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(3)))
	mock.ExpectRollback()

	_, err := e.Execute(context.Background(), "SELECT COUNT(lots.id) AS n FROM lots LIMIT 100", validator.Strict)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_TimeoutDirectiveFailureIgnored(t *testing.T) {
	e, mock := newTestExecutor(t, postgresDialect)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL").WillReturnError(errors.New("unrecognized configuration parameter"))
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectRollback()

	res, err := e.Execute(context.Background(), "SELECT COUNT(lots.id) AS n FROM lots LIMIT 100", validator.Strict)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_ValidationError(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		level validator.Level
	}{
		{"drop at permissive", "SELECT 1; DROP TABLE lots", validator.Permissive},
		{"delete at strict", "DELETE FROM lots", validator.Strict},
		{"unknown column", "SELECT lots.secret FROM lots", validator.Moderate},
		{"empty", "   ", validator.Strict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, mock := newTestExecutor(t, postgresDialect)

			res, err := e.Execute(context.Background(), tt.sql, tt.level)
			assert.Nil(t, res)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.False(t, verr.Result.Valid)
			assert.NotEmpty(t, verr.Result.Errors)
			assert.Contains(t, err.Error(), "sql validation failed")
			assert.NoError(t, mock.ExpectationsWereMet(), "no database work on invalid sql")
		})
	}
}

func TestExecute_ExecutionError(t *testing.T) {
	cause := errors.New(`relation "lots" does not exist`)

	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
	}{
		{
			name: "begin fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(cause)
			},
		},
		{
			name: "query fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT").WillReturnError(cause)
				mock.ExpectRollback()
			},
		},
		{
			name: "row iteration fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT").WillReturnRows(
					sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).RowError(0, cause))
				mock.ExpectRollback()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, mock := newTestExecutor(t, sqliteDialect)
			tt.setup(mock)

			_, err := e.Execute(context.Background(), "SELECT lots.id FROM lots LIMIT 100", validator.Strict)
			var xerr *ExecutionError
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, "query execution failed", err.Error())
			assert.ErrorIs(t, err, cause)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
