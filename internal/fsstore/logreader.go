package fsstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadLogEntries reads an append-only log that may be in any of the three
// historic shapes:
//
//  1. strict JSONL, one object per line (the only form writers produce today)
//  2. a single JSON object {"entries": [...]}
//  3. hybrid: the wrapper object followed by loose JSONL lines appended after
//     it by newer writers
//
// Corrupt lines are skipped; every parseable entry is returned in file order.
func ReadLogEntries(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}

	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage

	// A leading legacy wrapper object is consumed first; whatever follows it
	// is treated as JSONL.
	if data[0] == '{' {
		if wrapped, rest, ok := splitLegacyWrapper(data); ok {
			entries = append(entries, wrapped...)
			data = rest
		}
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		entries = append(entries, json.RawMessage(append([]byte(nil), line...)))
	}
	return entries, nil
}

// splitLegacyWrapper tries to interpret the head of data as the legacy
// {"entries": [...]} wrapper. It scans for the matching closing brace of the
// first object (skipping string literals and escapes) so a wrapper that is
// pretty-printed across many lines is still recognized. Returns the wrapper's
// entries, the remaining bytes after the wrapper, and whether a wrapper
// containing an entries array was actually present.
func splitLegacyWrapper(data []byte) ([]json.RawMessage, []byte, bool) {
	end := matchBrace(data)
	if end < 0 {
		return nil, data, false
	}
	head := data[:end+1]

	// The wrapper shape is only claimed when it parses and carries entries.
	var wrapper struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(head, &wrapper); err != nil || wrapper.Entries == nil {
		// A single-line JSON object that is just a normal JSONL entry falls
		// through to line-by-line parsing.
		if !bytes.Contains(head, []byte(`"entries"`)) {
			return nil, data, false
		}
		return nil, data, false
	}
	return wrapper.Entries, data[end+1:], true
}

// matchBrace returns the index of the brace closing the object that starts at
// data[0], or -1. String literals and escape sequences are skipped.
func matchBrace(data []byte) int {
	if len(data) == 0 || data[0] != '{' {
		return -1
	}
	depth := 0
	inString := false
	escaped := false
	for i, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// CountLogEntries returns the number of parseable entries without keeping
// them in memory beyond the scan.
func CountLogEntries(path string) (int, error) {
	entries, err := ReadLogEntries(path)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// DecodeLogEntries unmarshals raw entries into out, skipping entries that do
// not fit the target shape. out must be a pointer to a slice.
func DecodeLogEntries[T any](raw []json.RawMessage) []T {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// sanitizeForFilename converts a timestamp into a filesystem-safe fragment.
func sanitizeForFilename(s string) string {
	return strings.NewReplacer(":", "", "-", "", ".", "", "T", "_", "Z", "").Replace(s)
}
