package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockExecutor(t *testing.T) (*Executor, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return New(mock), mock
}

func TestExecute_ResultSet(t *testing.T) {
	e, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT title FROM film`).
		WillReturnRows(pgxmock.NewRows([]string{"title"}).
			AddRow("ACADEMY DINOSAUR").
			AddRow("ACE GOLDFINGER"))
	mock.ExpectCommit()

	out, err := e.Execute(context.Background(), "SELECT title FROM film")
	require.NoError(t, err)

	assert.Equal(t, []string{"title"}, out.Columns)
	assert.Equal(t, int64(2), out.RowCount)
	assert.False(t, out.Mutation)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "ACADEMY DINOSAUR", out.Rows[0][0])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_Mutation(t *testing.T) {
	e, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE film SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))
	mock.ExpectCommit()

	out, err := e.Execute(context.Background(), "UPDATE film SET rental_rate = 1")
	require.NoError(t, err)

	assert.True(t, out.Mutation)
	assert.Equal(t, int64(7), out.RowCount)
	assert.Empty(t, out.Columns)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_StatementError_RollsBack(t *testing.T) {
	e, mock := newMockExecutor(t)

	dbErr := errors.New(`column "titel" does not exist`)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT titel FROM film`).WillReturnError(dbErr)
	mock.ExpectRollback()

	out, err := e.Execute(context.Background(), "SELECT titel FROM film")
	require.Error(t, err)
	assert.Nil(t, out)

	// The database's message is carried verbatim.
	var se *StatementError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, `column "titel" does not exist`, se.Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_MutationError_RollsBack(t *testing.T) {
	e, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM payment`).
		WillReturnError(errors.New("update or delete violates foreign key constraint"))
	mock.ExpectRollback()

	_, err := e.Execute(context.Background(), "DELETE FROM payment")
	require.Error(t, err)

	var se *StatementError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "foreign key constraint")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_BeginFailure_IsNotStatementError(t *testing.T) {
	e, mock := newMockExecutor(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := e.Execute(context.Background(), "SELECT 1")
	require.Error(t, err)

	var se *StatementError
	assert.False(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "begin transaction")
}

func TestExecute_ReturningClauseProducesRows(t *testing.T) {
	e, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO actor .* RETURNING actor_id`).
		WillReturnRows(pgxmock.NewRows([]string{"actor_id"}).AddRow(int32(201)))
	mock.ExpectCommit()

	out, err := e.Execute(context.Background(), "INSERT INTO actor (first_name) VALUES ('A') RETURNING actor_id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.RowCount)
	assert.Equal(t, []string{"actor_id"}, out.Columns)
}
