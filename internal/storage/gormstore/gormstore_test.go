package gormstore

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/InsightXR/recorder/internal/database"
	"github.com/InsightXR/recorder/internal/storage"
	"github.com/InsightXR/recorder/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testMeta() core.SessionMeta {
	return core.SessionMeta{
		SessionID:  "sess-1",
		UserID:     "user",
		CustomerID: "acme",
		StartTime:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func snap(x float64, parent string) core.TransformSnapshot {
	return core.TransformSnapshot{
		Position: core.Vector3{X: x, Y: 2, Z: 3},
		Rotation: core.IdentityRotation(),
		Parent:   parent,
	}
}

func TestInit_RequiresDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
}

func TestRecord_WithoutSession(t *testing.T) {
	b := newTestBackend(t)

	assert.ErrorIs(t, b.RecordSnapshot("Crate_07", snap(1, core.WorldParent)), ErrNoSession)
	assert.ErrorIs(t, b.RecordEvent(core.EventLogEntry{Label: "x"}), ErrNoSession)
	assert.Equal(t, 0, b.Pending())
}

func TestRecord_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testMeta()))

	require.NoError(t, b.RecordSnapshot("Crate_07", snap(1, core.WorldParent)))
	require.NoError(t, b.RecordSnapshot("Crate_07", snap(2, core.WorldParent)))
	require.NoError(t, b.RecordEvent(core.EventLogEntry{TimestampMillis: 1250, Label: "Shot Fired"}))
	assert.Equal(t, 3, b.Pending())

	var count int64
	require.NoError(t, b.deps.DB.Model(&SampleRecord{}).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.Pending())

	require.NoError(t, b.deps.DB.Model(&SampleRecord{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var samples []SampleRecord
	require.NoError(t, b.deps.DB.Order("seq").Find(&samples).Error)
	assert.Equal(t, 0, samples[0].Seq)
	assert.Equal(t, 1, samples[1].Seq)
	assert.Equal(t, 2.0, samples[1].PosX)
}

func TestLoadSession_FromRows(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testMeta()))

	require.NoError(t, b.RecordSnapshot("Crate_07", snap(1, core.WorldParent)))
	require.NoError(t, b.RecordSnapshot("Door", snap(5, "Wall")))
	require.NoError(t, b.RecordSnapshot("Crate_07", snap(2, "Table")))
	require.NoError(t, b.RecordEvent(core.EventLogEntry{TimestampMillis: 1250, Label: "Shot Fired"}))
	require.NoError(t, b.Flush())

	got, err := b.LoadSession("sess-1")
	require.NoError(t, err)

	assert.Equal(t, "acme", got.CustomerID)
	assert.WithinDuration(t, testMeta().StartTime, got.StartTime, time.Second)
	assert.Equal(t, []core.EventLogEntry{{TimestampMillis: 1250, Label: "Shot Fired"}}, got.EventLog)
	assert.Equal(t, []core.TransformSnapshot{snap(1, core.WorldParent), snap(2, "Table")}, got.ObjectMotionData["Crate_07"])
	assert.Equal(t, []core.TransformSnapshot{snap(5, "Wall")}, got.ObjectMotionData["Door"])
}

func TestEndSession_StoresDocument(t *testing.T) {
	b := newTestBackend(t)
	meta := testMeta()
	require.NoError(t, b.StartSession(meta))
	require.NoError(t, b.RecordSnapshot("Crate_07", snap(1, core.WorldParent)))

	save := &core.SaveData{
		SessionID:        meta.SessionID,
		UserID:           meta.UserID,
		CustomerID:       meta.CustomerID,
		StartTime:        meta.StartTime,
		EndTime:          meta.StartTime.Add(1500 * time.Millisecond),
		DurationMillis:   1500,
		EventLog:         []core.EventLogEntry{},
		ObjectMotionData: core.ObjectMotionLog{"Crate_07": {snap(1, core.WorldParent)}},
	}
	require.NoError(t, b.EndSession(save))
	assert.Equal(t, 0, b.Pending())

	// session closed for live data
	assert.ErrorIs(t, b.RecordEvent(core.EventLogEntry{}), ErrNoSession)

	var rec SessionRecord
	require.NoError(t, b.deps.DB.Where("session_id = ?", "sess-1").First(&rec).Error)
	assert.True(t, rec.Ended)
	assert.Equal(t, 1500.0, rec.DurationMillis)
	require.NotNil(t, rec.EndTime)

	got, err := b.LoadSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, save, got)
}

func TestEndSession_WithoutStart(t *testing.T) {
	b := newTestBackend(t)

	save := &core.SaveData{
		SessionID:        "late",
		CustomerID:       "acme",
		EventLog:         []core.EventLogEntry{},
		ObjectMotionData: core.ObjectMotionLog{},
	}
	require.NoError(t, b.EndSession(save))

	got, err := b.LoadSession("late")
	require.NoError(t, err)
	assert.Equal(t, "late", got.SessionID)
}

func TestLoadSession_Missing(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.LoadSession("nope")
	assert.Error(t, err)
}

func TestListSessions(t *testing.T) {
	b := newTestBackend(t)

	for _, m := range []core.SessionMeta{
		{SessionID: "a", CustomerID: "acme"},
		{SessionID: "b", CustomerID: "other"},
		{SessionID: "c", CustomerID: "acme"},
	} {
		require.NoError(t, b.StartSession(m))
	}

	ids, err := b.ListSessions("acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	all, err := b.ListSessions("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStartSession_DuplicateID(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testMeta()))
	assert.Error(t, b.StartSession(testMeta()))
}

func TestWriteLoop_FlushesPeriodically(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "loop.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testMeta()))
	require.NoError(t, b.RecordEvent(core.EventLogEntry{Label: "tick"}))

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Flush())

	var count int64
	require.NoError(t, db.Model(&EventRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEndSession_WarnsOnlyForItsOwnOverflow(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)

	var logs bytes.Buffer
	b := New(Dependencies{DB: db, MaxQueuedRows: 2, Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.StartSession(testMeta()))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordSnapshot("Crate_07", snap(float64(i), core.WorldParent)))
	}
	require.NoError(t, b.EndSession(&core.SaveData{SessionID: "sess-1", CustomerID: "acme"}))
	assert.Equal(t, 1, strings.Count(logs.String(), "Archive queues overflowed"))
	assert.Contains(t, logs.String(), "dropped=3")

	next := testMeta()
	next.SessionID = "sess-2"
	require.NoError(t, b.StartSession(next))
	require.NoError(t, b.RecordSnapshot("Crate_07", snap(9, core.WorldParent)))
	require.NoError(t, b.EndSession(&core.SaveData{SessionID: "sess-2", CustomerID: "acme"}))

	assert.Equal(t, 1, strings.Count(logs.String(), "Archive queues overflowed"))
	assert.Equal(t, 3, b.Dropped())
}
