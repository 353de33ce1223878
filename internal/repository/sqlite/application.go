package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garnizeh/recruit/pkg/models"
)

func (r *SQLiteRepo) NextApplicationSeq(ctx context.Context, year int) (int64, error) {
	var last int64
	row := r.conn.QueryRow(ctx, `INSERT INTO application_sequences (year, last) VALUES (?, 1) ON CONFLICT(year) DO UPDATE SET last = last + 1 RETURNING last`, year)
	if err := row.Scan(&last); err != nil {
		return 0, fmt.Errorf("next application sequence: %w", err)
	}
	return last, nil
}

func (r *SQLiteRepo) CreateApplication(ctx context.Context, a *models.Application) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("application is nil")
	}
	stages, docs, err := encodeApplication(a)
	if err != nil {
		return 0, err
	}
	ts := now()
	submitted := ts
	if !a.SubmittedDate.IsZero() {
		submitted = a.SubmittedDate.UnixMilli()
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO applications (application_id, owner_id, position, status, current_stage, stages_json, documents_json, notes, submitted, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ApplicationID, a.OwnerID, a.Position, string(a.Status), string(a.CurrentStage), stages, docs, a.Notes, submitted, ts, ts)
	if err != nil {
		return 0, conflict("insert application", err)
	}

	return res.LastInsertId()
}

func encodeApplication(a *models.Application) (string, string, error) {
	stages, err := json.Marshal(a.Stages)
	if err != nil {
		return "", "", fmt.Errorf("encode stages: %w", err)
	}
	docs, err := json.Marshal(a.Documents)
	if err != nil {
		return "", "", fmt.Errorf("encode documents: %w", err)
	}
	return string(stages), string(docs), nil
}

const applicationSelect = `SELECT a.id, a.application_id, a.owner_id, a.position, a.status, a.current_stage, a.stages_json, a.documents_json, a.notes, a.submitted, a.created, a.updated, u.id, u.name, u.email, u.phone
FROM applications a LEFT JOIN users u ON u.id = a.owner_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(s rowScanner) (*models.Application, error) {
	var (
		a                         models.Application
		status, stage             string
		stagesJSON, docsJSON      string
		submitted, created, upd   int64
		ownerID                   sql.NullInt64
		ownerName, ownerEmail, ph sql.NullString
	)
	if err := s.Scan(&a.ID, &a.ApplicationID, &a.OwnerID, &a.Position, &status, &stage, &stagesJSON, &docsJSON, &a.Notes, &submitted, &created, &upd, &ownerID, &ownerName, &ownerEmail, &ph); err != nil {
		return nil, err
	}
	a.Status = models.ApplicationStatus(status)
	a.CurrentStage = models.Stage(stage)
	if err := json.Unmarshal([]byte(stagesJSON), &a.Stages); err != nil {
		return nil, fmt.Errorf("decode stages of %s: %w", a.ApplicationID, err)
	}
	if err := json.Unmarshal([]byte(docsJSON), &a.Documents); err != nil {
		return nil, fmt.Errorf("decode documents of %s: %w", a.ApplicationID, err)
	}
	a.SubmittedDate = fromMillis(submitted)
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(upd)
	if ownerID.Valid {
		a.Owner = &models.Owner{ID: ownerID.Int64, Name: ownerName.String, Email: ownerEmail.String, Phone: ph.String}
	}
	return &a, nil
}

func (r *SQLiteRepo) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	a, err := scanApplication(r.conn.QueryRow(ctx, applicationSelect+` WHERE a.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *SQLiteRepo) listApplications(ctx context.Context, query string, args ...any) ([]models.Application, error) {
	rows, err := r.conn.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) ListApplications(ctx context.Context) ([]models.Application, error) {
	return r.listApplications(ctx, applicationSelect+` ORDER BY a.id`)
}

func (r *SQLiteRepo) ListApplicationsByOwner(ctx context.Context, ownerID int64) ([]models.Application, error) {
	return r.listApplications(ctx, applicationSelect+` WHERE a.owner_id = ? ORDER BY a.id`, ownerID)
}

// UpdateApplication rewrites the mutable columns; application_id and owner_id never change.
func (r *SQLiteRepo) UpdateApplication(ctx context.Context, a *models.Application) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}
	stages, docs, err := encodeApplication(a)
	if err != nil {
		return err
	}
	_, err = r.conn.Exec(ctx, `UPDATE applications SET position = ?, status = ?, current_stage = ?, stages_json = ?, documents_json = ?, notes = ?, updated = ? WHERE id = ?`,
		a.Position, string(a.Status), string(a.CurrentStage), stages, docs, a.Notes, now(), a.ID)
	return err
}

func (r *SQLiteRepo) DeleteApplication(ctx context.Context, id int64) ([]models.UploadedDocument, bool, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, documentSelect+` WHERE application_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, false, fmt.Errorf("select documents: %w", err)
	}
	var removed []models.UploadedDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return nil, false, err
		}
		removed = append(removed, *d)
	}
	if err := rows.Close(); err != nil {
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM uploaded_documents WHERE application_id = ?`, id); err != nil {
		return nil, false, fmt.Errorf("delete documents: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, id)
	if err != nil {
		return nil, false, fmt.Errorf("delete application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return removed, true, nil
}
