package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

const testKey = "maxscroll:UA-1:plugins/max-scroll-tracker"

func newMockProvider(t *testing.T) (*Provider, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	p, err := NewProviderWithPool(mock, "")
	require.NoError(t, err)
	return p, mock
}

func TestNewProviderWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewProviderWithPool(mock, "scroll;drop")
	require.Error(t, err)
	_, err = NewProviderWithPool(nil, "scroll_state")
	require.Error(t, err)
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	p, mock := newMockProvider(t)
	s, err := p.Open(context.Background(), "UA-1", "plugins/max-scroll-tracker")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT field, value FROM scroll_state").
		WithArgs(testKey).
		WillReturnRows(pgxmock.NewRows([]string{"field", "value"}).
			AddRow("/a", int64(40)).
			AddRow("/b", int64(0)))

	got, err := s.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"/a": 40, "/b": 0}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetOr(t *testing.T) {
	t.Parallel()

	p, mock := newMockProvider(t)
	s, err := p.Open(context.Background(), "UA-1", "plugins/max-scroll-tracker")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM scroll_state").
		WithArgs(testKey, "/a").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(int64(55)))
	mock.ExpectQuery("SELECT value FROM scroll_state").
		WithArgs(testKey, "/missing").
		WillReturnRows(pgxmock.NewRows([]string{"value"}))
	mock.ExpectQuery("SELECT value FROM scroll_state").
		WithArgs(testKey, "/boom").
		WillReturnError(errors.New("connection reset"))

	v, err := s.GetOr(context.Background(), "/a", 0)
	require.NoError(t, err)
	require.Equal(t, int64(55), v)

	v, err = s.GetOr(context.Background(), "/missing", 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	_, err = s.GetOr(context.Background(), "/boom", 0)
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSetAndClear(t *testing.T) {
	t.Parallel()

	p, mock := newMockProvider(t)
	s, err := p.Open(context.Background(), "UA-1", "plugins/max-scroll-tracker")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO scroll_state").
		WithArgs(testKey, []string{"/a", "/b"}, []int64{30, 100}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("DELETE FROM scroll_state").
		WithArgs(testKey).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.Set(context.Background(), map[string]int64{"/b": 100, "/a": 30}))
	require.NoError(t, s.Set(context.Background(), nil), "empty set issues no statement")
	require.NoError(t, s.Clear(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderEnsureSchema(t *testing.T) {
	t.Parallel()

	p, mock := newMockProvider(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scroll_state").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, p.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()
	p, err := NewProviderWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	require.NoError(t, p.Ping(context.Background()))
	require.ErrorContains(t, p.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
