package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/recruit/pkg/models"
)

const documentSelect = `SELECT id, application_id, owner_id, document_type, file_name, storage_locator, file_size, mime_type, verified, verified_by, verified_at, created FROM uploaded_documents`

func scanDocument(s rowScanner) (*models.UploadedDocument, error) {
	var (
		d          models.UploadedDocument
		docType    string
		verified   int
		verifiedBy sql.NullInt64
		verifiedAt sql.NullInt64
		created    int64
	)
	if err := s.Scan(&d.ID, &d.ApplicationID, &d.OwnerID, &docType, &d.FileName, &d.StorageLocator, &d.FileSizeBytes, &d.MimeType, &verified, &verifiedBy, &verifiedAt, &created); err != nil {
		return nil, err
	}
	t, err := models.ParseDocumentType(docType)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", d.ID, err)
	}
	d.DocumentType = t
	d.Verified = verified != 0
	if verifiedBy.Valid {
		v := verifiedBy.Int64
		d.VerifiedBy = &v
	}
	if verifiedAt.Valid {
		v := fromMillis(verifiedAt.Int64)
		d.VerifiedAt = &v
	}
	d.CreatedAt = fromMillis(created)
	return &d, nil
}

func (r *SQLiteRepo) CreateDocument(ctx context.Context, d *models.UploadedDocument) (int64, error) {
	if d == nil {
		return 0, fmt.Errorf("document is nil")
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO uploaded_documents (application_id, owner_id, document_type, file_name, storage_locator, file_size, mime_type, verified, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ApplicationID, d.OwnerID, d.DocumentType.String(), d.FileName, d.StorageLocator, d.FileSizeBytes, d.MimeType, boolInt(d.Verified), now())
	if err != nil {
		return 0, conflict("insert document", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetDocument(ctx context.Context, id int64) (*models.UploadedDocument, error) {
	d, err := scanDocument(r.conn.QueryRow(ctx, documentSelect+` WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (r *SQLiteRepo) ListDocumentsByApplication(ctx context.Context, applicationID int64) ([]models.UploadedDocument, error) {
	rows, err := r.conn.QueryRows(ctx, documentSelect+` WHERE application_id = ? ORDER BY id`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UploadedDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) CountDocumentsByType(ctx context.Context, applicationID int64, t models.DocumentType) (int64, error) {
	var n int64
	row := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM uploaded_documents WHERE application_id = ? AND document_type = ?`, applicationID, t.String())
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateDocument persists the verification fields, the only mutable part of a document.
func (r *SQLiteRepo) UpdateDocument(ctx context.Context, d *models.UploadedDocument) error {
	if d == nil {
		return fmt.Errorf("document is nil")
	}
	var verifiedAt any
	if d.VerifiedAt != nil {
		verifiedAt = d.VerifiedAt.UnixMilli()
	}
	var verifiedBy any
	if d.VerifiedBy != nil {
		verifiedBy = *d.VerifiedBy
	}
	_, err := r.conn.Exec(ctx, `UPDATE uploaded_documents SET verified = ?, verified_by = ?, verified_at = ? WHERE id = ?`, boolInt(d.Verified), verifiedBy, verifiedAt, d.ID)
	return err
}

func (r *SQLiteRepo) DeleteDocument(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM uploaded_documents WHERE id = ?`, id)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
