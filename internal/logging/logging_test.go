package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testTime = time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

func TestLogFilePath(t *testing.T) {
	tests := []struct {
		name       string
		logsDir    string
		binaryName string
		want       string
	}{
		{
			name:       "relative",
			logsDir:    "./insightxr-logs",
			binaryName: "insightxr_recorder",
			want:       filepath.Join("insightxr-logs", "insightxr_recorder.20260212_213836.log"),
		},
		{
			name:       "absolute",
			logsDir:    filepath.Join("/var", "log", "insightxr"),
			binaryName: "insightxr_recorder",
			want:       filepath.Join("/var", "log", "insightxr", "insightxr_recorder.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, tt.binaryName, testTime))
		})
	}
}
