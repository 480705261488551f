package visual

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultPreviewRows is the number of records a preview shows by default.
const DefaultPreviewRows = 10

// Preview is a tabular excerpt of a dataset.
type Preview struct {
	Columns []string            `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
	Total   int                 `json:"total"`
}

// valueColumn names the single column used for non-object records.
const valueColumn = "value"

// NewPreview tabulates the first maxRows records of dataset. Object
// records contribute their keys as columns in order of first appearance;
// other records are shown under a single value column. A dataset that is
// not an array is treated as one record.
func NewPreview(dataset json.RawMessage, maxRows int) (*Preview, error) {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	records, err := splitRecords(dataset)
	if err != nil {
		return nil, err
	}

	p := &Preview{Columns: []string{}, Rows: [][]json.RawMessage{}, Total: len(records)}
	if len(records) > maxRows {
		records = records[:maxRows]
	}

	index := map[string]int{}
	var parsed [][]field
	for _, rec := range records {
		fields, err := recordFields(rec)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if _, ok := index[f.key]; !ok {
				index[f.key] = len(p.Columns)
				p.Columns = append(p.Columns, f.key)
			}
		}
		parsed = append(parsed, fields)
	}

	for _, fields := range parsed {
		row := make([]json.RawMessage, len(p.Columns))
		for i := range row {
			row[i] = json.RawMessage("null")
		}
		for _, f := range fields {
			row[index[f.key]] = f.value
		}
		p.Rows = append(p.Rows, row)
	}
	return p, nil
}

type field struct {
	key   string
	value json.RawMessage
}

func splitRecords(dataset json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(dataset)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return []json.RawMessage{trimmed}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("reading dataset records: %w", err)
	}
	return records, nil
}

// recordFields returns the keys of an object record in document order.
func recordFields(rec json.RawMessage) ([]field, error) {
	trimmed := bytes.TrimSpace(rec)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return []field{{key: valueColumn, value: trimmed}}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading record key: %w", err)
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("reading record %q: %w", key, err)
		}
		fields = append(fields, field{key: key, value: value})
	}
	return fields, nil
}
