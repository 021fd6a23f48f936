// Package payload maps a row's flat cells onto a remote field schema.
package payload

import (
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/rbruinekool/singularity/internal/model"
)

// timerSentinel marks a deferred timer value: "::add-<ms>" resolves to
// the dispatch time plus <ms> milliseconds.
var timerSentinel = regexp.MustCompile(`^::add-(-?\d+)$`)

// Resolve builds the outbound field map for one row. Fields are visited in
// schema order; a field the row has no cell for is skipped with a warning.
// The result's keys are exactly the schema ids present on the row.
func Resolve(cells model.Cells, fields []model.FieldDescriptor, now time.Time) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := cells[f.ID]
		if !ok {
			slog.Warn("field missing from row", "field", f.ID, "type", f.Type)
			continue
		}
		out[f.ID] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	m := timerSentinel.FindStringSubmatch(s)
	if m == nil {
		return v
	}
	offset, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// Out of int64 range; pass the literal through.
		return v
	}
	return now.UnixMilli() + offset
}
