package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rbruinekool/singularity/internal/model"
)

// marshalCells converts row cells to JSON TEXT for storage.
// Map keys are sorted by encoding/json, so equal cells store identically.
func marshalCells(cells model.Cells) (string, error) {
	if len(cells) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cells); err != nil {
		return "", fmt.Errorf("marshal cells: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// unmarshalCells parses stored JSON TEXT back into cells. Top-level
// numbers come back as int64 when integral and float64 otherwise.
func unmarshalCells(data string) (model.Cells, error) {
	if data == "" || data == "{}" {
		return model.Cells{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var cells model.Cells
	if err := dec.Decode(&cells); err != nil {
		return nil, fmt.Errorf("unmarshal cells: %w", err)
	}
	if cells == nil {
		return model.Cells{}, nil
	}
	for k, v := range cells {
		cells[k] = model.NormalizeNumber(v)
	}
	return cells, nil
}

// normalizeCells applies the same numeric normalization as a storage
// round trip, so change diffs compare like with like.
func normalizeCells(cells model.Cells) (model.Cells, error) {
	data, err := marshalCells(cells)
	if err != nil {
		return nil, err
	}
	return unmarshalCells(data)
}
