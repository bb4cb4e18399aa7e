// internal/storage/memory/export.go
package memory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/InsightXR/recorder/internal/codec"
	"github.com/InsightXR/recorder/pkg/core"
)

// exportJSON writes the session document to <outputDir>/<sessionId>.json[.gz]
func (b *Backend) exportJSON(save *core.SaveData) (string, error) {
	if save.SessionID == "" {
		return "", fmt.Errorf("session id is empty")
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := codec.Encode(save, b.cfg.CompressOutput)
	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(b.cfg.OutputDir, save.SessionID+codec.Extension(b.cfg.CompressOutput))
	if err := codec.WriteFile(outputPath, data); err != nil {
		return "", err
	}
	return outputPath, nil
}
