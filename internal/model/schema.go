package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FieldDescriptor describes one editable property of a subcomposition.
type FieldDescriptor struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	DefaultValue any    `json:"defaultValue,omitempty"`
	Selections   []any  `json:"selections,omitempty"`
	Source       string `json:"source,omitempty"`
	SourceURL    string `json:"sourceUrl,omitempty"`
}

// SubComposition is a remotely defined graphic element. Subcompositions
// nest; the field schema of each lives in Model.
type SubComposition struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Model           []FieldDescriptor `json:"model"`
	SubCompositions []SubComposition  `json:"subcompositions,omitempty"`
}

// Schema is the parsed model document of a connection.
type Schema struct {
	SubCompositions []SubComposition `json:"subcompositions"`
}

// Connection is a remote control app the rundown drives.
type Connection struct {
	AppToken string          `json:"appToken"`
	Label    string          `json:"label"`
	Model    json.RawMessage `json:"model"`
}

// SchemaParseError reports a connection model that could not be decoded.
type SchemaParseError struct {
	AppToken string
	Err      error
}

func (e *SchemaParseError) Error() string {
	if e.AppToken != "" {
		return fmt.Sprintf("parse schema for %s: %v", e.AppToken, e.Err)
	}
	return fmt.Sprintf("parse schema: %v", e.Err)
}

func (e *SchemaParseError) Unwrap() error {
	return e.Err
}

// Schema decodes the connection's model document.
func (c Connection) Schema() (*Schema, error) {
	s, err := ParseSchema(c.Model)
	if err != nil {
		var pe *SchemaParseError
		if errors.As(err, &pe) {
			pe.AppToken = c.AppToken
		}
		return nil, err
	}
	return s, nil
}

// ParseSchema decodes a model document. Empty input is a parse error.
func ParseSchema(raw []byte) (*Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &SchemaParseError{Err: fmt.Errorf("empty model document")}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var s Schema
	if err := dec.Decode(&s); err != nil {
		return nil, &SchemaParseError{Err: err}
	}
	return &s, nil
}

// Find locates a subcomposition by id, searching nested subcompositions
// depth-first.
func (s *Schema) Find(id string) (*SubComposition, bool) {
	return findSubComposition(s.SubCompositions, id)
}

func findSubComposition(list []SubComposition, id string) (*SubComposition, bool) {
	for i := range list {
		if list[i].ID == id {
			return &list[i], true
		}
		if sc, ok := findSubComposition(list[i].SubCompositions, id); ok {
			return sc, true
		}
	}
	return nil, false
}

// Fields returns the field descriptors of the given subcomposition.
func (s *Schema) Fields(subCompositionID string) ([]FieldDescriptor, bool) {
	sc, ok := s.Find(subCompositionID)
	if !ok {
		return nil, false
	}
	return sc.Model, true
}

// DefaultCells seeds the cells of a new row from the field defaults.
// Fields without a default start as an empty string.
func (sc *SubComposition) DefaultCells() Cells {
	cells := make(Cells, len(sc.Model))
	for _, f := range sc.Model {
		if f.ID == "" {
			continue
		}
		if f.DefaultValue == nil {
			cells[f.ID] = ""
			continue
		}
		cells[f.ID] = NormalizeNumber(f.DefaultValue)
	}
	return cells
}

// ItemCells seeds the cells of a new rundown item driving the given
// subcomposition: the field defaults plus the bookkeeping columns that
// link the row to this connection. The item starts off air.
func (c Connection) ItemCells(subCompositionID string) (Cells, error) {
	s, err := c.Schema()
	if err != nil {
		return nil, err
	}
	sc, ok := s.Find(subCompositionID)
	if !ok {
		return nil, fmt.Errorf("subcomposition %s in %s: %w", subCompositionID, c.AppToken, ErrNotFound)
	}

	cells := sc.DefaultCells()
	cells[ColumnSubcompID] = sc.ID
	cells[ColumnTemplate] = sc.Name
	cells[ColumnName] = sc.Name
	cells[ColumnAppToken] = c.AppToken
	cells[ColumnAppLabel] = c.Label
	cells[ColumnStatus] = string(StateOut1)
	return cells, nil
}
