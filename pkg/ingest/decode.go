package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format is the decoded representation of an input file
type Format int

const (
	FormatRaw Format = iota
	FormatJSON
	FormatNDJSON
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatNDJSON:
		return "ndjson"
	case FormatCSV:
		return "csv"
	default:
		return "raw"
	}
}

// RawField holds the line of a file that could not be decoded into columns
const RawField = "raw"

// decompress unwraps known compression suffixes
// Returned name is what remains for format detection
func decompress(name string, data []byte) (string, []byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return name, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return name, nil, fmt.Errorf("gzip: %w", err)
		}
		return strings.TrimSuffix(name, filepath.Ext(name)), out, nil
	case ".zst", ".zstd":
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return name, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return name, nil, fmt.Errorf("zstd: %w", err)
		}
		return strings.TrimSuffix(name, filepath.Ext(name)), out, nil
	}
	return name, data, nil
}

// decode picks a decoder by extension
// Anything that fails to decode is returned as raw lines, decode itself never fails
func decode(name string, data []byte) ([]map[string]interface{}, Format) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".ndjson", ".jsonl":
		if rows, format, ok := decodeJSON(data); ok {
			return rows, format
		}
	case ".csv":
		if rows, ok := decodeCSV(data); ok {
			return rows, FormatCSV
		}
	}
	return decodeRaw(data), FormatRaw
}

// decodeJSON tries a whole document first, then one object per line
// A single bad line rejects the entire file
func decodeJSON(data []byte) ([]map[string]interface{}, Format, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, FormatJSON, true
	}
	var doc interface{}
	if err := json.Unmarshal(trimmed, &doc); err == nil {
		switch v := doc.(type) {
		case []interface{}:
			rows := make([]map[string]interface{}, 0, len(v))
			for _, item := range v {
				rows = append(rows, asRow(item))
			}
			return rows, FormatJSON, true
		case map[string]interface{}:
			return []map[string]interface{}{v}, FormatJSON, true
		}
	}

	rows := make([]map[string]interface{}, 0)
	for _, line := range splitLines(trimmed) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(line, &obj); err != nil {
			return nil, FormatNDJSON, false
		}
		rows = append(rows, obj)
	}
	return rows, FormatNDJSON, true
}

func asRow(item interface{}) map[string]interface{} {
	if obj, ok := item.(map[string]interface{}); ok {
		return obj
	}
	return map[string]interface{}{RawField: item}
}

// decodeCSV reads a header row followed by records
// Empty cells are left out, so they read as absent fields
func decodeCSV(data []byte) ([]map[string]interface{}, bool) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if err == io.EOF {
		return nil, true
	}
	if err != nil {
		return nil, false
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	rows := make([]map[string]interface{}, 0)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false
		}
		row := make(map[string]interface{}, len(header))
		for i, val := range rec {
			if i >= len(header) || val == "" {
				continue
			}
			row[header[i]] = val
		}
		rows = append(rows, row)
	}
	return rows, true
}

// decodeRaw yields one record per non-blank line
func decodeRaw(data []byte) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0)
	for _, line := range splitLines(data) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rows = append(rows, map[string]interface{}{RawField: string(line)})
	}
	return rows
}

// splitLines cuts data on LF and drops a trailing CR from each line
// The whole file is already in memory, so line length is not capped
func splitLines(data []byte) [][]byte {
	lines := bytes.Split(data, []byte{'\n'})
	for i, line := range lines {
		lines[i] = bytes.TrimSuffix(line, []byte{'\r'})
	}
	return lines
}
