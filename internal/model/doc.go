// Package model provides the shared types of the rundown control service.
//
// This package contains type definitions and small value helpers only. All
// other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - A row is an id, an order, and a flat map of scalar cells
//   - The animation state lives in the "status" cell and is one of Out1, In, Out2
//   - Cells are never interpreted against a schema at write time
//   - Numbers read back from storage are int64 when integral, float64 otherwise
package model
