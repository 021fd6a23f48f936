// Package connection loads connection documents from disk, validates their
// shape, and stores them.
//
// A connection document names a remote control app and carries its field
// schema:
//
//	{
//	  "appToken": "abc123",
//	  "label": "Studio A",
//	  "model": {"subcompositions": [{"id": "...", "name": "...", "model": [...]}]}
//	}
//
// Documents may be JSON, JSON with comments and trailing commas (.jsonc),
// or CUE (.cue). Every format is checked against the embedded #Connection
// schema before anything is written.
package connection

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/tidwall/jsonc"

	"github.com/rbruinekool/singularity/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// Format is the syntax of a connection document.
type Format int

const (
	// FormatJSON covers plain JSON and JSON with comments.
	FormatJSON Format = iota
	// FormatCUE is a CUE file.
	FormatCUE
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return FormatCUE
	}
	return FormatJSON
}

// Load reads and validates the connection document at path.
func Load(path string) (model.Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Connection{}, fmt.Errorf("read connection: %w", err)
	}
	return Parse(data, path, FormatFor(path))
}

// Parse validates a connection document. filename is used in error
// positions only.
func Parse(data []byte, filename string, format Format) (model.Connection, error) {
	if format == FormatJSON {
		// JSON is valid CUE once comments and trailing commas are gone.
		data = jsonc.ToJSON(data)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Connection"))
	if err := schema.Err(); err != nil {
		return model.Connection{}, fmt.Errorf("connection schema: %w", err)
	}

	doc := ctx.CompileBytes(data, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return model.Connection{}, documentError(filename, err)
	}

	v := schema.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return model.Connection{}, documentError(filename, err)
	}

	return extract(v, filename)
}

func extract(v cue.Value, filename string) (model.Connection, error) {
	var conn model.Connection
	var err error

	conn.AppToken, err = v.LookupPath(cue.ParsePath("appToken")).String()
	if err != nil {
		return model.Connection{}, documentError(filename, err)
	}
	conn.Label, err = v.LookupPath(cue.ParsePath("label")).String()
	if err != nil {
		return model.Connection{}, documentError(filename, err)
	}

	raw, err := v.LookupPath(cue.ParsePath("model")).MarshalJSON()
	if err != nil {
		return model.Connection{}, documentError(filename, err)
	}
	conn.Model = json.RawMessage(raw)

	// The stored document must also decode the way dispatch reads it.
	if _, err := conn.Schema(); err != nil {
		return model.Connection{}, err
	}
	return conn, nil
}

// Writer stores connections.
type Writer interface {
	PutConnection(ctx context.Context, conn model.Connection) error
}

// Import loads the document at path and stores it, replacing any
// connection with the same token.
func Import(ctx context.Context, w Writer, path string) (model.Connection, error) {
	conn, err := Load(path)
	if err != nil {
		return model.Connection{}, err
	}
	if err := w.PutConnection(ctx, conn); err != nil {
		return model.Connection{}, fmt.Errorf("import %s: %w", path, err)
	}
	return conn, nil
}
