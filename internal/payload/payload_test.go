package payload

import (
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rbruinekool/singularity/internal/model"
)

func fields(ids ...string) []model.FieldDescriptor {
	out := make([]model.FieldDescriptor, len(ids))
	for i, id := range ids {
		out[i] = model.FieldDescriptor{ID: id, Type: "text"}
	}
	return out
}

func TestResolve_TimerSentinel(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	got := Resolve(model.Cells{"clock": "::add-30000"}, fields("clock"), now)

	assert.Equal(t, int64(1_030_000), got["clock"])
}

func TestResolve_NegativeOffset(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	got := Resolve(model.Cells{"clock": "::add--500"}, fields("clock"), now)

	assert.Equal(t, int64(999_500), got["clock"])
}

func TestResolve_NonMatchingStringsPassThrough(t *testing.T) {
	now := time.UnixMilli(0)
	cells := model.Cells{
		"a": "::add-",
		"b": "::add-12x",
		"c": " ::add-5",
		"d": "::sub-5",
		"e": "plain",
	}

	got := Resolve(cells, fields("a", "b", "c", "d", "e"), now)

	assert.Equal(t, map[string]any(cells), got)
}

func TestResolve_NonStringValuesUnchanged(t *testing.T) {
	cells := model.Cells{"n": int64(3), "f": 2.5, "b": true}

	got := Resolve(cells, fields("n", "f", "b"), time.Now())

	assert.Equal(t, int64(3), got["n"])
	assert.Equal(t, 2.5, got["f"])
	assert.Equal(t, true, got["b"])
}

func TestResolve_KeysAreSchemaIntersectRow(t *testing.T) {
	cells := model.Cells{"title": "x", "subtitle": "y", "extra": "z", "status": "In"}
	schema := fields("title", "subtitle", "missing")

	got := Resolve(cells, schema, time.Now())

	keys := slices.Sorted(maps.Keys(got))
	assert.Equal(t, []string{"subtitle", "title"}, keys)
}

func TestResolve_EmptySchema(t *testing.T) {
	got := Resolve(model.Cells{"a": 1}, nil, time.Now())

	assert.NotNil(t, got)
	assert.Empty(t, got)
}
