package documents_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/garnizeh/recruit/internal/access"
	"github.com/garnizeh/recruit/internal/apperr"
	"github.com/garnizeh/recruit/internal/blob"
	"github.com/garnizeh/recruit/internal/documents"
	"github.com/garnizeh/recruit/internal/lifecycle"
	"github.com/garnizeh/recruit/pkg/models"
	"github.com/garnizeh/recruit/pkg/repository/mock"
)

var pdfBody = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

// memStore is an in-memory blob.Store.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore { return &memStore{files: map[string][]byte{}} }

func (m *memStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.files[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.files, key)
	m.mu.Unlock()
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type recordingCleaner struct {
	locators []string
}

func (c *recordingCleaner) RemoveBlob(ctx context.Context, locator string) {
	c.locators = append(c.locators, locator)
}

type fixture struct {
	reg     *documents.Registry
	mocks   *mock.Mocks
	blobs   *memStore
	cleaner *recordingCleaner
	app     *models.Application
	owner   access.Principal
	other   access.Principal
	admin   access.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	m := mock.NewMocks()
	mk := func(email string, role models.Role) access.Principal {
		id, err := m.Users.CreateUser(ctx, &models.User{Name: email, Email: email, Role: role, PasswordHash: "x"})
		if err != nil {
			t.Fatalf("CreateUser error: %v", err)
		}
		return access.Principal{ID: id, Role: role}
	}
	f := &fixture{
		mocks:   m,
		blobs:   newMemStore(),
		cleaner: &recordingCleaner{},
		owner:   mk("owner@example.com", models.RoleUser),
		other:   mk("other@example.com", models.RoleUser),
		admin:   mk("admin@example.com", models.RoleAdmin),
	}
	app, err := lifecycle.New(m.Store, nil, nil).Create(ctx, f.owner, "Scientist B")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	f.app = app
	f.reg = documents.New(m.Store, m.Store, f.blobs, f.cleaner, documents.Config{}, nil)
	return f
}

func (f *fixture) upload(p access.Principal, docType, name string, body []byte) (*models.UploadedDocument, error) {
	return f.reg.Upload(context.Background(), p, documents.Upload{
		ApplicationID: f.app.ID,
		DocumentType:  docType,
		FileName:      name,
		ContentType:   "application/pdf",
		Body:          bytes.NewReader(body),
	})
}

func (f *fixture) application(t *testing.T) *models.Application {
	t.Helper()
	a, err := f.mocks.Store.GetApplication(context.Background(), f.app.ID)
	if err != nil || a == nil {
		t.Fatalf("GetApplication: %v", err)
	}
	return a
}

func TestUpload_SetsCompleteness(t *testing.T) {
	f := newFixture(t)
	d, err := f.upload(f.owner, "Birth Certificate", "birth.pdf", pdfBody)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if d.Verified || d.VerifiedBy != nil || d.DocumentType != models.DocBirthCertificate {
		t.Fatalf("unexpected document: %#v", d)
	}
	if d.FileSizeBytes != int64(len(pdfBody)) || d.MimeType != "application/pdf" || d.OwnerID != f.owner.ID {
		t.Fatalf("unexpected metadata: %#v", d)
	}
	if !strings.HasPrefix(d.StorageLocator, "applications/"+f.app.ApplicationID+"/") || !strings.HasSuffix(d.StorageLocator, ".pdf") {
		t.Fatalf("unexpected locator %q", d.StorageLocator)
	}

	a := f.application(t)
	if !a.Documents.Has(models.DocBirthCertificate) || a.Documents.Count() != 1 {
		t.Fatalf("expected only Birth Certificate present got %#v", a.Documents)
	}
	docs, _ := f.mocks.Store.ListDocumentsByApplication(context.Background(), f.app.ID)
	if len(docs) != 1 {
		t.Fatalf("expected exactly one document got %d", len(docs))
	}
	if f.blobs.count() != 1 {
		t.Fatalf("expected one stored blob got %d", f.blobs.count())
	}
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	big := bytes.Repeat([]byte("a"), 6<<20)

	tests := []struct {
		name string
		p    access.Principal
		up   documents.Upload
		want error
	}{
		{name: "exe", p: f.owner, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "setup.exe", ContentType: "application/octet-stream", Body: bytes.NewReader([]byte("MZ"))}, want: apperr.ErrValidation},
		{name: "6 MiB streamed", p: f.owner, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "big.pdf", ContentType: "application/pdf", Body: bytes.NewReader(big)}, want: apperr.ErrValidation},
		{name: "6 MiB declared", p: f.owner, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "big.pdf", ContentType: "application/pdf", Size: 6 << 20, Body: bytes.NewReader(pdfBody)}, want: apperr.ErrValidation},
		{name: "mime mismatch", p: f.owner, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "birth.pdf", ContentType: "image/png", Body: bytes.NewReader(pdfBody)}, want: apperr.ErrValidation},
		{name: "unknown type", p: f.owner, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Driving Licence", FileName: "dl.pdf", ContentType: "application/pdf", Body: bytes.NewReader(pdfBody)}, want: apperr.ErrValidation},
		{name: "empty file", p: f.owner, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "birth.pdf", ContentType: "application/pdf", Body: bytes.NewReader(nil)}, want: apperr.ErrValidation},
		{name: "stranger with oversize declaration", p: f.other, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "big.pdf", ContentType: "application/pdf", Size: 6 << 20, Body: bytes.NewReader(pdfBody)}, want: apperr.ErrForbidden},
		{name: "stranger with executable", p: f.other, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "setup.exe", ContentType: "application/octet-stream", Body: bytes.NewReader([]byte("MZ"))}, want: apperr.ErrForbidden},
		{name: "stranger", p: f.other, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "birth.pdf", ContentType: "application/pdf", Body: bytes.NewReader(pdfBody)}, want: apperr.ErrForbidden},
		{name: "admin", p: f.admin, up: documents.Upload{ApplicationID: f.app.ID, DocumentType: "Birth Certificate", FileName: "birth.pdf", ContentType: "application/pdf", Body: bytes.NewReader(pdfBody)}, want: apperr.ErrForbidden},
		{name: "missing application", p: f.owner, up: documents.Upload{ApplicationID: 9999, DocumentType: "Birth Certificate", FileName: "birth.pdf", ContentType: "application/pdf", Body: bytes.NewReader(pdfBody)}, want: apperr.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.reg.Upload(ctx, tc.p, tc.up); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, err)
			}
		})
	}

	if f.blobs.count() != 0 {
		t.Fatalf("rejected uploads must not write blobs, got %d", f.blobs.count())
	}
	if f.application(t).Documents.Count() != 0 {
		t.Fatalf("rejected uploads must not touch completeness")
	}
}

func TestUpload_SniffsGenericContentType(t *testing.T) {
	f := newFixture(t)
	d, err := f.reg.Upload(context.Background(), f.owner, documents.Upload{
		ApplicationID: f.app.ID,
		DocumentType:  models.DocPhotoIDProof.String(),
		FileName:      "id.PDF",
		ContentType:   "application/octet-stream",
		Body:          bytes.NewReader(pdfBody),
	})
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if d.MimeType != "application/pdf" {
		t.Fatalf("expected sniffed pdf got %q", d.MimeType)
	}
}

func TestUpload_RecordFailureRemovesBlob(t *testing.T) {
	f := newFixture(t)
	f.mocks.Store.DocErr = errors.New("insert failed")

	_, err := f.upload(f.owner, "Birth Certificate", "birth.pdf", pdfBody)
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error got %v", err)
	}
	if f.blobs.count() != 0 {
		t.Fatalf("expected orphaned blob removed")
	}
}

func TestListForApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.reg.ListForApplication(ctx, f.owner, f.app.ID)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty list got %#v, %v", empty, err)
	}
	if _, err := f.upload(f.owner, "Birth Certificate", "birth.pdf", pdfBody); err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	for _, p := range []access.Principal{f.owner, f.admin} {
		docs, err := f.reg.ListForApplication(ctx, p, f.app.ID)
		if err != nil || len(docs) != 1 {
			t.Fatalf("list by %d: %d, %v", p.ID, len(docs), err)
		}
	}
	if _, err := f.reg.ListForApplication(ctx, f.other, f.app.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
	if _, err := f.reg.ListForApplication(ctx, f.admin, 9999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.upload(f.owner, "Birth Certificate", "birth.pdf", pdfBody)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}

	if _, err := f.reg.Verify(ctx, f.owner, d.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for owner got %v", err)
	}
	got, err := f.reg.Verify(ctx, f.admin, d.ID)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !got.Verified || got.VerifiedBy == nil || *got.VerifiedBy != f.admin.ID || got.VerifiedAt == nil {
		t.Fatalf("unexpected verification state: %#v", got)
	}
	if _, err := f.reg.Verify(ctx, f.admin, 9999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
	if !f.application(t).Documents.Has(models.DocBirthCertificate) {
		t.Fatalf("verify must leave completeness set")
	}
}

func TestDelete_RecomputesCompleteness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.upload(f.owner, "Birth Certificate", "a.pdf", pdfBody)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	second, err := f.upload(f.owner, "Birth Certificate", "b.pdf", pdfBody)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}

	if err := f.reg.Delete(ctx, f.other, first.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for stranger got %v", err)
	}

	if err := f.reg.Delete(ctx, f.owner, first.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if !f.application(t).Documents.Has(models.DocBirthCertificate) {
		t.Fatalf("flag must stay set while another copy remains")
	}

	if err := f.reg.Delete(ctx, f.admin, second.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if f.application(t).Documents.Has(models.DocBirthCertificate) {
		t.Fatalf("flag must clear once the last copy is gone")
	}
	if len(f.cleaner.locators) != 2 || f.cleaner.locators[0] != first.StorageLocator {
		t.Fatalf("expected both blobs scheduled for removal got %v", f.cleaner.locators)
	}
	if err := f.reg.Delete(ctx, f.admin, second.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.upload(f.owner, "Birth Certificate", "birth.pdf", pdfBody)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}

	rc, meta, err := f.reg.Open(ctx, f.owner, d.ID)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(b, pdfBody) || meta.FileName != "birth.pdf" {
		t.Fatalf("unexpected content %q / %#v", b, meta)
	}

	if _, _, err := f.reg.Open(ctx, f.other, d.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
	if err := f.blobs.Delete(ctx, d.StorageLocator); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, _, err := f.reg.Open(ctx, f.admin, d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for missing blob got %v", err)
	}
}
