// Package documents tracks uploaded files and keeps each application's
// completeness record in step with them.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/garnizeh/recruit/internal/access"
	"github.com/garnizeh/recruit/internal/apperr"
	"github.com/garnizeh/recruit/internal/blob"
	"github.com/garnizeh/recruit/internal/lifecycle"
	"github.com/garnizeh/recruit/pkg/models"
	"github.com/garnizeh/recruit/pkg/repository"
)

// DefaultMaxBytes is the upload size limit when none is configured.
const DefaultMaxBytes = 5 << 20

// DefaultExtensions are the accepted file extensions, without the dot.
var DefaultExtensions = []string{"pdf", "jpg", "jpeg", "png"}

// mimeByExt maps each accepted extension to the media types a client may declare for it.
var mimeByExt = map[string][]string{
	"pdf":  {"application/pdf"},
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
	"png":  {"image/png"},
}

type Config struct {
	MaxBytes          int64
	AllowedExtensions []string
}

// Upload describes one incoming file.
type Upload struct {
	ApplicationID int64
	DocumentType  string
	FileName      string
	ContentType   string
	// Size is the client-declared length; zero or negative means unknown.
	Size int64
	Body io.Reader
}

type Registry struct {
	apps    repository.ApplicationRepo
	docs    repository.DocumentRepo
	store   blob.Store
	cleaner lifecycle.Cleaner
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func New(apps repository.ApplicationRepo, docs repository.DocumentRepo, store blob.Store, cleaner lifecycle.Cleaner, cfg Config, logger *slog.Logger) *Registry {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		apps:    apps,
		docs:    docs,
		store:   store,
		cleaner: cleaner,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) allowedExt(ext string) bool {
	for _, a := range r.cfg.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

// checkFile validates the name and declared media type and returns the media
// type to store. An empty or generic declaration is replaced by sniffing head.
func (r *Registry) checkFile(name, declared string, head []byte) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" || !r.allowedExt(ext) {
		return "", apperr.Validation(fmt.Sprintf("file type not allowed; accepted types: %s", strings.Join(r.cfg.AllowedExtensions, ", ")))
	}

	mt := ""
	if declared != "" {
		parsed, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", apperr.Validation("invalid content type")
		}
		mt = parsed
	}
	if mt == "" || mt == "application/octet-stream" {
		mt, _, _ = mime.ParseMediaType(http.DetectContentType(head))
	}
	for _, m := range mimeByExt[ext] {
		if m == mt {
			return mt, nil
		}
	}
	return "", apperr.Validation(fmt.Sprintf("content type %s does not match a .%s file", mt, ext))
}

func (r *Registry) tooLarge() error {
	return apperr.Validation(fmt.Sprintf("file exceeds the %d MB limit", r.cfg.MaxBytes>>20))
}

func (r *Registry) loadApplication(ctx context.Context, id int64) (*models.Application, error) {
	a, err := r.apps.GetApplication(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load application", err)
	}
	if a == nil {
		return nil, apperr.NotFound("application not found")
	}
	return a, nil
}

func (r *Registry) loadDocument(ctx context.Context, id int64) (*models.UploadedDocument, error) {
	d, err := r.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load document", err)
	}
	if d == nil {
		return nil, apperr.NotFound("document not found")
	}
	return d, nil
}

// Upload stores the file for an application owned by the caller and marks
// its document type present. The record insert and the application update
// are separate writes.
func (r *Registry) Upload(ctx context.Context, p access.Principal, u Upload) (*models.UploadedDocument, error) {
	if p.ID <= 0 {
		return nil, apperr.Unauthenticated("authentication required")
	}
	if u.Body == nil {
		return nil, apperr.Validation("no file uploaded")
	}
	docType, err := models.ParseDocumentType(u.DocumentType)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("unknown document type %q", u.DocumentType))
	}
	fileName := path.Base(strings.ReplaceAll(u.FileName, "\\", "/"))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, apperr.Validation("file name is required")
	}

	app, err := r.loadApplication(ctx, u.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !access.Owner(p, app.OwnerID) {
		return nil, apperr.Forbidden("only the applicant may upload documents")
	}
	if u.Size > r.cfg.MaxBytes {
		return nil, r.tooLarge()
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(u.Body, r.cfg.MaxBytes+1))
	if err != nil {
		return nil, apperr.Validation("could not read uploaded file")
	}
	if n > r.cfg.MaxBytes {
		return nil, r.tooLarge()
	}
	if n == 0 {
		return nil, apperr.Validation("uploaded file is empty")
	}
	mt, err := r.checkFile(fileName, u.ContentType, buf.Bytes())
	if err != nil {
		return nil, err
	}

	key := blob.NewKey(app.ApplicationID, fileName)
	if err := r.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), n, mt); err != nil {
		return nil, apperr.Internal("store file", err)
	}

	doc := &models.UploadedDocument{
		ApplicationID:  app.ID,
		OwnerID:        p.ID,
		DocumentType:   docType,
		FileName:       fileName,
		StorageLocator: key,
		FileSizeBytes:  n,
		MimeType:       mt,
	}
	id, err := r.docs.CreateDocument(ctx, doc)
	if err != nil {
		if derr := r.store.Delete(ctx, key); derr != nil {
			r.logger.Warn("remove orphaned blob", "locator", key, "err", derr)
		}
		return nil, apperr.Internal("create document", err)
	}

	if err := r.setPresent(ctx, app.ID, docType, true); err != nil {
		r.logger.Error("completeness update after upload", "application", app.ID, "document", id, "err", err)
		return nil, err
	}

	created, err := r.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	r.logger.Info("document uploaded", "id", id, "application", app.ApplicationID, "type", docType.String(), "size", n)
	return created, nil
}

// setPresent re-reads the application and writes its completeness flag for t.
func (r *Registry) setPresent(ctx context.Context, appID int64, t models.DocumentType, present bool) error {
	app, err := r.apps.GetApplication(ctx, appID)
	if err != nil {
		return apperr.Internal("load application", err)
	}
	if app == nil || app.Documents.Has(t) == present {
		return nil
	}
	app.Documents.Set(t, present)
	if err := r.apps.UpdateApplication(ctx, app); err != nil {
		return apperr.Internal("update application", err)
	}
	return nil
}

// ListForApplication returns the documents of an application the caller owns
// or administers.
func (r *Registry) ListForApplication(ctx context.Context, p access.Principal, applicationID int64) ([]models.UploadedDocument, error) {
	app, err := r.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !access.OwnerOrAdmin(p, app.OwnerID) {
		return nil, apperr.Forbidden("not allowed to view these documents")
	}
	out, err := r.docs.ListDocumentsByApplication(ctx, applicationID)
	if err != nil {
		return nil, apperr.Internal("list documents", err)
	}
	if out == nil {
		out = []models.UploadedDocument{}
	}
	return out, nil
}

// Verify marks a document verified by the calling admin.
func (r *Registry) Verify(ctx context.Context, p access.Principal, id int64) (*models.UploadedDocument, error) {
	if !access.Admin(p, 0) {
		return nil, apperr.Forbidden("admin access required")
	}
	d, err := r.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	by := p.ID
	at := r.now()
	d.Verified = true
	d.VerifiedBy = &by
	d.VerifiedAt = &at
	if err := r.docs.UpdateDocument(ctx, d); err != nil {
		return nil, apperr.Internal("update document", err)
	}
	r.logger.Info("document verified", "id", id, "by", p.ID)
	return r.loadDocument(ctx, id)
}

// Delete removes a document record, clears the completeness flag when no
// other document of the same type remains, and schedules the blob removal.
func (r *Registry) Delete(ctx context.Context, p access.Principal, id int64) error {
	d, err := r.loadDocument(ctx, id)
	if err != nil {
		return err
	}
	if !access.Authorize(p, d.OwnerID, models.RoleAdmin) {
		return apperr.Forbidden("not allowed to delete this document")
	}

	if err := r.docs.DeleteDocument(ctx, id); err != nil {
		return apperr.Internal("delete document", err)
	}

	left, err := r.docs.CountDocumentsByType(ctx, d.ApplicationID, d.DocumentType)
	if err != nil {
		return apperr.Internal("count documents", err)
	}
	if left == 0 {
		if err := r.setPresent(ctx, d.ApplicationID, d.DocumentType, false); err != nil {
			return err
		}
	}

	if r.cleaner != nil {
		r.cleaner.RemoveBlob(ctx, d.StorageLocator)
	}
	r.logger.Info("document deleted", "id", id, "by", p.ID)
	return nil
}

// Open returns the stored bytes of a document the caller owns or administers.
// The caller must close the reader.
func (r *Registry) Open(ctx context.Context, p access.Principal, id int64) (io.ReadCloser, *models.UploadedDocument, error) {
	d, err := r.loadDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !access.OwnerOrAdmin(p, d.OwnerID) {
		return nil, nil, apperr.Forbidden("not allowed to read this document")
	}
	rc, err := r.store.Open(ctx, d.StorageLocator)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, apperr.NotFound("file not found")
		}
		return nil, nil, apperr.Internal("open file", err)
	}
	return rc, d, nil
}
