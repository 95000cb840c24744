package records

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"catalog-importer/internal/common/errors"

	"gopkg.in/yaml.v3"
)

// Format identifies an input encoding
type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatCSV    Format = "csv"
	FormatYAML   Format = "yaml"
)

// FormatFromPath picks a format from the file extension, defaulting to JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ndjson", ".jsonl":
		return FormatNDJSON
	case ".csv":
		return FormatCSV
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseFormat validates a user supplied format name
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatJSON, FormatNDJSON, FormatCSV, FormatYAML:
		return f, nil
	case "jsonl":
		return FormatNDJSON, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", errors.ConfigError(fmt.Sprintf("unsupported input format %q", name))
	}
}

// LoadFile reads the whole input set from path. Any read or decode failure
// is an input error and aborts the run.
func LoadFile(path string, format Format) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.InputError("cannot open input", err).WithContext("path", path)
	}
	defer f.Close()

	if format == "" {
		format = FormatFromPath(path)
	}
	recs, err := Load(f, format)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			return nil, appErr.WithContext("path", path)
		}
		return nil, err
	}
	return recs, nil
}

// Load decodes records from r in the given format
func Load(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatJSON:
		return loadJSON(r)
	case FormatNDJSON:
		return loadNDJSON(r)
	case FormatCSV:
		return loadCSV(r)
	case FormatYAML:
		return loadYAML(r)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported input format %q", format))
	}
}

func loadJSON(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.InputError("input is not valid JSON", err)
	}
	if dec.More() {
		return nil, errors.InputError("unexpected data after JSON document", nil)
	}
	return fromSequence(doc)
}

func loadNDJSON(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil || obj == nil {
			return nil, errors.InputError("line is not a JSON object", err).WithContext("line", lineNo)
		}
		out = append(out, NewRecord(len(out)+1, obj))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.InputError("cannot read input", err)
	}
	return out, nil
}

// loadCSV treats the first row as the header. Empty cells are Missing.
func loadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, errors.InputError("cannot read CSV header", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var out []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.InputError("malformed CSV row", err).WithContext("record", len(out)+1)
		}

		fields := make(map[string]any, len(header))
		for i, name := range header {
			if i >= len(row) || row[i] == "" {
				continue
			}
			fields[name] = row[i]
		}
		out = append(out, NewRecord(len(out)+1, fields))
	}
	return out, nil
}

func loadYAML(r io.Reader) ([]Record, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return []Record{}, nil
		}
		return nil, errors.InputError("input is not valid YAML", err)
	}
	return fromSequence(doc)
}

func fromSequence(doc any) ([]Record, error) {
	items, ok := doc.([]any)
	if !ok {
		return nil, errors.InputError("input must be a list of records", nil)
	}

	out := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, errors.InputError("record is not a mapping", nil).WithContext("record", i+1)
		}
		out = append(out, NewRecord(i+1, obj))
	}
	return out, nil
}
