// Package codec serializes SaveData documents to their transport form.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/InsightXR/recorder/pkg/core"
	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/gzip"
)

const (
	// ExtJSON is the suffix of plain documents.
	ExtJSON = ".json"
	// ExtGzip is the suffix of compressed documents.
	ExtGzip = ".json.gz"
)

// gzip magic bytes
var gzipMagic = []byte{0x1f, 0x8b}

// Extension returns the file suffix for the given compression setting.
func Extension(compress bool) string {
	if compress {
		return ExtGzip
	}
	return ExtJSON
}

// Encode renders save as JSON, gzip-compressed when compress is set.
func Encode(save *core.SaveData, compress bool) ([]byte, error) {
	if save == nil {
		return nil, fmt.Errorf("nil save data")
	}

	var buf bytes.Buffer
	if !compress {
		if err := json.NewEncoder(&buf).Encode(save); err != nil {
			return nil, fmt.Errorf("failed to encode save data: %w", err)
		}
		return buf.Bytes(), nil
	}

	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(save); err != nil {
		gz.Close()
		return nil, fmt.Errorf("failed to encode save data: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a document produced by Encode. Compression is detected from the content.
func Decode(data []byte) (*core.SaveData, error) {
	var r io.Reader = bytes.NewReader(data)
	if bytes.HasPrefix(data, gzipMagic) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var save core.SaveData
	if err := json.NewDecoder(r).Decode(&save); err != nil {
		return nil, fmt.Errorf("failed to decode save data: %w", err)
	}
	if save.EventLog == nil {
		save.EventLog = []core.EventLogEntry{}
	}
	if save.ObjectMotionData == nil {
		save.ObjectMotionData = core.ObjectMotionLog{}
	}
	return &save, nil
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads and decodes a document from disk.
func ReadFile(path string) (*core.SaveData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Decode(data)
}

// IsDocument reports whether name carries one of the document suffixes.
func IsDocument(name string) bool {
	return strings.HasSuffix(name, ExtJSON) || strings.HasSuffix(name, ExtGzip)
}
