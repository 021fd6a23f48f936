package connection

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbruinekool/singularity/internal/model"
)

func TestLoad_AllFormatsAgree(t *testing.T) {
	for _, name := range []string{"studio.json", "studio.jsonc", "studio.cue"} {
		t.Run(name, func(t *testing.T) {
			conn, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)

			assert.Equal(t, "tok-studio", conn.AppToken)
			assert.Equal(t, "Studio A", conn.Label)

			schema, err := conn.Schema()
			require.NoError(t, err)
			fields, ok := schema.Fields("sc-lower")
			require.True(t, ok)
			require.Len(t, fields, 2)
			assert.Equal(t, "title", fields[0].ID)
			assert.Equal(t, "clock", fields[1].ID)
		})
	}
}

func TestLoad_NestedSubcompositions(t *testing.T) {
	conn, err := Load(filepath.Join("testdata", "studio.json"))
	require.NoError(t, err)

	schema, err := conn.Schema()
	require.NoError(t, err)
	sc, ok := schema.Find("sc-lower-bug")
	require.True(t, ok)
	assert.Equal(t, "Bug", sc.Name)
}

func TestLoad_MissingToken(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing_token.json"))

	var de *DocumentError
	require.ErrorAs(t, err, &de)
	require.NotEmpty(t, de.Problems)
	assert.Contains(t, de.Error(), "appToken")
}

func TestLoad_EmptyFieldID(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "bad_field.json"))

	var de *DocumentError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, filepath.Join("testdata", "bad_field.json"), de.File)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope.json"))
	assert.Error(t, err)
}

func TestParse_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse([]byte("{\n  \"appToken\": \"x\",\n  \"label\": \n}"), "broken.json", FormatJSON)

	var de *DocumentError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "broken.json", de.File)
	require.NotEmpty(t, de.Problems)
	assert.Positive(t, de.Problems[0].Line)
	assert.True(t, strings.HasPrefix(de.Error(), "broken.json:"))
}

func TestParse_DefaultsFilled(t *testing.T) {
	conn, err := Parse([]byte(`{"appToken":"t","model":{"subcompositions":[{"id":"a"}]}}`), "min.json", FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "", conn.Label)
	assert.JSONEq(t, `{"subcompositions":[{"id":"a","name":"","model":[]}]}`, string(conn.Model))
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatCUE, FormatFor("a/b.CUE"))
	assert.Equal(t, FormatJSON, FormatFor("a/b.jsonc"))
	assert.Equal(t, FormatJSON, FormatFor("a/b"))
}

type fakeWriter struct {
	got []model.Connection
	err error
}

func (w *fakeWriter) PutConnection(_ context.Context, conn model.Connection) error {
	w.got = append(w.got, conn)
	return w.err
}

func TestImport_StoresConnection(t *testing.T) {
	w := &fakeWriter{}

	conn, err := Import(context.Background(), w, filepath.Join("testdata", "studio.jsonc"))
	require.NoError(t, err)

	require.Len(t, w.got, 1)
	assert.Equal(t, conn, w.got[0])
}

func TestImport_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("disk full")}

	_, err := Import(context.Background(), w, filepath.Join("testdata", "studio.json"))
	assert.ErrorContains(t, err, "disk full")
}
