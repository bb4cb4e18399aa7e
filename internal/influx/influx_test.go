package influx

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/InsightXR/recorder/internal/config"
	"github.com/InsightXR/recorder/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSave() *core.SaveData {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &core.SaveData{
		SessionID:      "6f1c",
		UserID:         "trainee-4",
		CustomerID:     "acme",
		StartTime:      start,
		EndTime:        start.Add(2 * time.Second),
		DurationMillis: 2000,
		EventLog:       []core.EventLogEntry{{TimestampMillis: 120, Label: "grab"}},
		ObjectMotionData: core.ObjectMotionLog{
			"LeftHand": {
				{Rotation: core.IdentityRotation(), Parent: core.WorldParent},
				{Rotation: core.IdentityRotation(), Parent: core.WorldParent},
			},
		},
	}
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.Error(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
}

func TestWritePoint_NotInitialized(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.Error(t, m.WriteSession(testSave()))
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "metrics.lp.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:    true,
		Host:       "127.0.0.1",
		Port:       "1",
		Protocol:   "http",
		Org:        "insightxr",
		Bucket:     "sessions",
		BackupPath: backup,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	require.NoError(t, m.WriteSession(testSave()))
	require.NoError(t, m.WriteUpload(true, time.Unix(1, 0)))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, "session,customer=acme,user=trainee-4 ")
	assert.Contains(t, text, "samples=2i")
	assert.Contains(t, text, "upload,ok=true count=1i")
}

func TestSessionPoint(t *testing.T) {
	line := influxdb2_write.PointToLineProtocol(SessionPoint(testSave()), time.Millisecond)

	assert.Contains(t, line, "session,customer=acme,user=trainee-4 ")
	assert.Contains(t, line, `session_id="6f1c"`)
	assert.Contains(t, line, "duration_ms=2000")
	assert.Contains(t, line, "events=1i")
	assert.Contains(t, line, "objects=1i")
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name: "tags and fields",
			args: []string{`"frame_time"`, `"tag::device::quest3"`, `"field::float::ms::11.1"`, `"field::int::dropped::2"`},
			want: []string{"frame_time,device=quest3", "ms=11.1", "dropped=2i"},
		},
		{
			name: "bool and string fields",
			args: []string{"battery", "field::bool::charging::yes", "field::string::state::low"},
			want: []string{"charging=true", `state="low"`},
		},
		{name: "empty", args: nil, wantErr: true},
		{name: "no fields", args: []string{"battery", "tag::device::quest3"}, wantErr: true},
		{name: "bad int", args: []string{"battery", "field::int::level::high"}, wantErr: true},
		{name: "unknown type", args: []string{"battery", "field::uint::level::3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseMetric(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			line := influxdb2_write.PointToLineProtocol(p, time.Second)
			for _, w := range tt.want {
				assert.Contains(t, line, w)
			}
		})
	}
}
