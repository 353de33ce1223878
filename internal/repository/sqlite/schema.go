package sqlite

import (
	"context"
	"database/sql"

	"github.com/garnizeh/recruit/pkg/models"
)

// UpsertSchema inserts a schema or replaces the body of the one with the same name.
func (r *SQLiteRepo) UpsertSchema(ctx context.Context, name, description, schemaJSON string) error {
	ts := now()
	_, err := r.conn.Exec(ctx, `INSERT INTO json_schemas (name, description, schema_json, created, updated) VALUES (?, ?, ?, ?, ?) ON CONFLICT(name) DO UPDATE SET description = excluded.description, schema_json = excluded.schema_json, updated = excluded.updated`, name, description, schemaJSON, ts, ts)
	return err
}

func (r *SQLiteRepo) GetSchemaByName(ctx context.Context, name string) (*models.Schema, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, name, description, schema_json, created, updated FROM json_schemas WHERE name = ?`, name)
	var s models.Schema
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, name, description, schema_json, created, updated FROM json_schemas ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Schema
	for rows.Next() {
		var s models.Schema
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
