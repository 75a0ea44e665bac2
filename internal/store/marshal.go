package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/mechbank/internal/mechanism"
)

// Column formats for time values.
const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

// marshalDocument converts a record to JSON TEXT for storage.
// HTML escaping is disabled so citations round-trip byte for byte.
func marshalDocument(r mechanism.Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalDocument parses a stored document.
func unmarshalDocument(data string) (mechanism.Record, error) {
	var r mechanism.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return mechanism.Record{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return r, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
