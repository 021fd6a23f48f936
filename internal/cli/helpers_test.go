package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbruinekool/singularity/internal/model"
)

const studioConnection = "testdata/connections/studio.json"

// runCLI executes the root command with args and returns everything
// written to stdout and stderr.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// listRows returns the rows of c via `rundown list --format json`.
func listRows(t *testing.T, db string, c model.Collection) []model.Row {
	t.Helper()
	out, err := runCLI(t, "", "--db", db, "--format", "json", "rundown", "list", string(c))
	require.NoError(t, err, out)

	var resp struct {
		Status string      `json:"status"`
		Data   []model.Row `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func rowOrders(rows []model.Row) map[int64]int64 {
	out := make(map[int64]int64, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Order
	}
	return out
}

// fakeRenderer records control requests as "METHOD path body".
type fakeRenderer struct {
	mu       sync.Mutex
	status   int
	requests []string
	srv      *httptest.Server
}

func newFakeRenderer(t *testing.T) *fakeRenderer {
	t.Helper()
	r := &fakeRenderer{status: http.StatusOK}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, fmt.Sprintf("%s %s %s", req.Method, req.URL.Path, body))
		status := r.status
		r.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRenderer) respondWith(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *fakeRenderer) taken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

// writeConfig writes a config file pointing dispatch at baseURL.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "singularity.yaml")
	content := fmt.Sprintf("remote:\n  baseURL: %s\ndispatch:\n  timeout: 2s\n", baseURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// seedStudioItem imports the studio connection and inserts one lower
// third, returning its id.
func seedStudioItem(t *testing.T, db string) int64 {
	t.Helper()
	out, err := runCLI(t, "", "--db", db, "connection", "import", studioConnection)
	require.NoError(t, err, out)

	out, err = runCLI(t, "", "--db", db, "--format", "json",
		"rundown", "add", "rundown", "--token", "tok-studio", "--subcomp", "sc-lower")
	require.NoError(t, err, out)

	var resp struct {
		Data idResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Data.ID
}
