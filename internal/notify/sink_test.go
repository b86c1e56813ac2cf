package notify

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agsys/smart-irrigation/internal/storage"
)

type recorder struct {
	kinds    []string
	payloads []any
}

func (r *recorder) Broadcast(kind string, payload any) {
	r.kinds = append(r.kinds, kind)
	r.payloads = append(r.payloads, payload)
}

func setupDB(t *testing.T) *storage.DB {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "agri-test-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	db, err := storage.Open(tmpFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
		os.Remove(tmpFile.Name())
	})

	require.NoError(t, db.CreateFarm(context.Background(), &storage.Farm{ID: "farm-1", FarmerID: "farmer-1", Name: "North"}))
	return db
}

func TestNotifyStoresThenBroadcasts(t *testing.T) {
	db := setupDB(t)
	live := &recorder{}
	sink := NewSink(db, live)
	ctx := context.Background()

	n := &storage.Notification{
		FarmerID: "farmer-1",
		FarmID:   "farm-1",
		Type:     "irrigation",
		Title:    "Irrigation Completed",
		Message:  "Irrigation completed for 30 minutes",
	}
	require.NoError(t, sink.Notify(ctx, n))

	assert.NotZero(t, n.ID)
	assert.Equal(t, "medium", n.Priority)
	assert.Equal(t, []string{"in_app"}, n.Channels)

	require.Len(t, live.kinds, 1)
	assert.Equal(t, EventNotification, live.kinds[0])
	assert.Same(t, n, live.payloads[0])

	recent, err := sink.Recent(ctx, "farm-1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, n.ID, recent[0].ID)
	assert.Equal(t, "Irrigation Completed", recent[0].Title)
}

func TestNotifyWithoutLiveSubscribers(t *testing.T) {
	db := setupDB(t)
	sink := NewSink(db, nil)

	require.NoError(t, sink.Notify(context.Background(), &storage.Notification{
		FarmerID: "farmer-1", FarmID: "farm-1", Type: "alert", Priority: "high", Title: "t", Message: "m",
	}))

	recent, err := sink.Recent(context.Background(), "farm-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "high", recent[0].Priority)
}

func TestRecentEmpty(t *testing.T) {
	db := setupDB(t)

	recent, err := NewSink(db, nil).Recent(context.Background(), "farm-1", 10)
	require.NoError(t, err)
	assert.NotNil(t, recent)
	assert.Empty(t, recent)
}
