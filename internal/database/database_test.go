package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hound/internal/pipeline"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "hound.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Migrate())
}

func TestEvents(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, rec := range []*EventRecord{
		{ID: "1", EntityID: "image_processing.a", EventType: pipeline.EventPersonDetected, Timestamp: base},
		{ID: "2", EntityID: "image_processing.b", EventType: pipeline.EventVehicleDetected, Timestamp: base.Add(time.Minute),
			Data: map[string]any{"plate": "ABC123"}},
		{ID: "3", EntityID: "image_processing.a", EventType: pipeline.EventFileSaved, Timestamp: base.Add(2 * time.Minute),
			Data: map[string]any{"file_path": "/tmp/a_latest.jpg"}},
	} {
		require.NoError(t, db.SaveEvent(rec), i)
	}
	// duplicate ids are ignored
	require.NoError(t, db.SaveEvent(&EventRecord{ID: "1", EntityID: "x", EventType: "y", Timestamp: base}))

	all, err := db.ListEvents("", nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID)
	assert.Equal(t, "/tmp/a_latest.jpg", all[0].Data["file_path"])
	assert.True(t, all[2].Timestamp.Equal(base))

	forA, err := db.ListEvents("image_processing.a", nil, 0)
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	since := base.Add(30 * time.Second)
	recent, err := db.ListEvents("", &since, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "3", recent[0].ID)

	n, err := db.DeleteOldEvents(base.Add(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestEntityState(t *testing.T) {
	db := openTestDB(t)

	missing, err := db.GetEntityState("image_processing.none")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveEntityState(&EntityStateRecord{
		EntityID: "image_processing.drive", Count: 1, Plates: []string{"ABC123"},
		LastDetection: "2024-05-01_10:00:00", UpdatedAt: now,
	}))
	require.NoError(t, db.SaveEntityState(&EntityStateRecord{
		EntityID: "image_processing.drive", Count: 0, Plates: []string{},
		LastDetection: "2024-05-01_10:00:00", UpdatedAt: now.Add(time.Minute),
	}))

	state, err := db.GetEntityState("image_processing.drive")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 0, state.Count)
	assert.Empty(t, state.Plates)
	assert.Equal(t, "2024-05-01_10:00:00", state.LastDetection)
	assert.True(t, state.UpdatedAt.Equal(now.Add(time.Minute)))
}

func TestJournal(t *testing.T) {
	db := openTestDB(t)
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	j := NewJournal(db, mock)

	bus := pipeline.NewEventBus()
	bus.Subscribe(j)
	bus.Publish(pipeline.NewEvent(pipeline.EventFaceDetected, "image_processing.door",
		mock.Now().Add(-48*time.Hour), map[string]any{"gender": "female"}))
	bus.Publish(pipeline.NewEvent(pipeline.EventPersonDetected, "image_processing.door", mock.Now(), nil))

	events, err := db.ListEvents("image_processing.door", nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, pipeline.EventPersonDetected, events[0].EventType)
	assert.Equal(t, "image_processing.door", events[0].Data["entity_id"])

	assert.Equal(t, "", j.LastDetection("image_processing.door"))
	j.OnStateChanged("image_processing.door", pipeline.State{Count: 1, Faces: 1, LastDetection: "2024-05-01_12:00:00"})
	assert.Equal(t, "2024-05-01_12:00:00", j.LastDetection("image_processing.door"))

	j.Prune(24 * time.Hour)
	events, err = db.ListEvents("", nil, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
