package events

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lookupSQL = `FROM processed_events WHERE provider = \$1 AND event_id = \$2`
	insertSQL = `INSERT INTO processed_events`
	purgeSQL  = `DELETE FROM processed_events`
)

func newMockStore(t *testing.T) (*ProcessedStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return newProcessedStore(mock), mock
}

func TestProcessedStoreLookup(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(lookupSQL).WithArgs(ProviderWhatsApp, "wamid.1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	seen, err := store.AlreadyProcessed(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.True(t, seen)

	mock.ExpectQuery(lookupSQL).WithArgs(ProviderWhatsApp, "wamid.2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	seen, err = store.AlreadyProcessed(ctx, ProviderWhatsApp, "wamid.2")
	require.NoError(t, err)
	assert.False(t, seen)

	mock.ExpectQuery(lookupSQL).WithArgs(ProviderWhatsApp, "wamid.3").WillReturnError(errors.New("conn reset"))
	_, err = store.AlreadyProcessed(ctx, ProviderWhatsApp, "wamid.3")
	assert.ErrorContains(t, err, "events: lookup wamid.3")
}

func TestProcessedStoreMark(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(insertSQL).WithArgs(ProviderWhatsApp, "wamid.3").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	first, err := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.3")
	require.NoError(t, err)
	assert.True(t, first)

	mock.ExpectExec(insertSQL).WithArgs(ProviderWhatsApp, "wamid.3").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	again, err := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.3")
	require.NoError(t, err)
	assert.False(t, again, "redelivery loses the insert")

	_, err = store.MarkProcessed(ctx, ProviderWhatsApp, " ")
	assert.ErrorIs(t, err, errNoEventID)
}

func TestProcessedStorePurgesInBatches(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(purgeSQL).WithArgs(cutoff, purgeBatch).WillReturnResult(pgxmock.NewResult("DELETE", purgeBatch))
	mock.ExpectExec(purgeSQL).WithArgs(cutoff, purgeBatch).WillReturnResult(pgxmock.NewResult("DELETE", 12))
	n, err := store.Purge(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(purgeBatch+12), n)
}

func TestProcessedStorePurgeKeepsCountOnError(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(purgeSQL).WithArgs(cutoff, purgeBatch).WillReturnResult(pgxmock.NewResult("DELETE", purgeBatch))
	mock.ExpectExec(purgeSQL).WithArgs(cutoff, purgeBatch).WillReturnError(errors.New("lock timeout"))
	n, err := store.Purge(context.Background(), cutoff)
	assert.Error(t, err)
	assert.Equal(t, int64(purgeBatch), n)
}

func TestMemoryProcessedStore(t *testing.T) {
	store := NewMemoryProcessedStore()
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	first, _ := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.1")
	second, _ := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.1")
	assert.True(t, first)
	assert.False(t, second)
	seen, _ := store.AlreadyProcessed(ctx, ProviderWhatsApp, "wamid.1")
	assert.True(t, seen)

	n, _ := store.Purge(ctx, clock.Add(time.Minute))
	assert.Equal(t, int64(1), n)
	seen, _ = store.AlreadyProcessed(ctx, ProviderWhatsApp, "wamid.1")
	assert.False(t, seen)

	_, err := store.MarkProcessed(ctx, ProviderWhatsApp, "")
	assert.ErrorIs(t, err, errNoEventID)
}

func TestRedisProcessedStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisProcessedStore(client, time.Hour)
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := store.MarkProcessed(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.False(t, again)

	seen, err := store.AlreadyProcessed(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL(redisKeyPrefix+"whatsapp:wamid.1"))

	mr.FastForward(time.Hour + time.Second)
	seen, err = store.AlreadyProcessed(ctx, ProviderWhatsApp, "wamid.1")
	require.NoError(t, err)
	assert.False(t, seen, "expired with retention")

	n, err := store.Purge(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
