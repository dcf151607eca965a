package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestListNamesReturnsRowsInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM organizations ORDER BY id")).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Acme").AddRow("Globex"))

	names, err := NewOrganizations().ListNames(context.Background(), mock)
	require.NoError(t, err)
	require.Equal(t, []string{"Acme", "Globex"}, names)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNamesEmptyIsNotNil(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT name FROM organizations").
		WillReturnRows(pgxmock.NewRows([]string{"name"}))

	names, err := NewOrganizations().ListNames(context.Background(), mock)
	require.NoError(t, err)
	require.NotNil(t, names)
	require.Empty(t, names)
}

func TestListNamesQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT name FROM organizations").WillReturnError(errors.New("relation does not exist"))

	_, err = NewOrganizations().ListNames(context.Background(), mock)
	require.ErrorContains(t, err, "relation does not exist")
}
