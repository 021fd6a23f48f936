package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rbruinekool/singularity/internal/model"
)

// PutConnection inserts or replaces a connection.
func (s *Store) PutConnection(ctx context.Context, conn model.Connection) error {
	if conn.AppToken == "" {
		return fmt.Errorf("put connection: app token is required")
	}
	doc := string(conn.Model)
	if doc == "" {
		doc = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (app_token, label, model, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(app_token) DO UPDATE SET
			label = excluded.label,
			model = excluded.model,
			updated_at = excluded.updated_at
	`, conn.AppToken, conn.Label, doc, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put connection: %w", err)
	}
	return nil
}

// Connection returns the connection with the given token.
// Missing connections wrap model.ErrNotFound.
func (s *Store) Connection(ctx context.Context, appToken string) (model.Connection, error) {
	var conn model.Connection
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT app_token, label, model FROM connections WHERE app_token = ?
	`, appToken).Scan(&conn.AppToken, &conn.Label, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Connection{}, fmt.Errorf("connection %s: %w", appToken, model.ErrNotFound)
	}
	if err != nil {
		return model.Connection{}, fmt.Errorf("read connection: %w", err)
	}
	conn.Model = json.RawMessage(doc)
	return conn, nil
}

// Connections returns every connection ordered by label, then token.
func (s *Store) Connections(ctx context.Context) ([]model.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_token, label, model FROM connections
		ORDER BY label ASC, app_token ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	out := []model.Connection{}
	for rows.Next() {
		var conn model.Connection
		var doc string
		if err := rows.Scan(&conn.AppToken, &conn.Label, &doc); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conn.Model = json.RawMessage(doc)
		out = append(out, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}

// DeleteConnection removes a connection. Rows referencing it are kept;
// dispatches for them fail with a not-found error until it is re-imported.
func (s *Store) DeleteConnection(ctx context.Context, appToken string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE app_token = ?`, appToken)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %s: %w", appToken, model.ErrNotFound)
	}
	return nil
}
