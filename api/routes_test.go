package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/garnizeh/recruit/api"
	dbfs "github.com/garnizeh/recruit/db"
	"github.com/garnizeh/recruit/internal/blob"
	"github.com/garnizeh/recruit/internal/config"
	"github.com/garnizeh/recruit/internal/documents"
	"github.com/garnizeh/recruit/internal/jobs"
	"github.com/garnizeh/recruit/internal/lifecycle"
	"github.com/garnizeh/recruit/internal/validation"
	"github.com/garnizeh/recruit/pkg/models"
	"github.com/garnizeh/recruit/pkg/repository/mock"
)

const testSecret = "routes-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Count   *int            `json:"count"`
}

type testServer struct {
	t      *testing.T
	router http.Handler
	mocks  *mock.Mocks
	blobs  *blob.Disk
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	m := mock.NewMocks()

	seeds, err := fs.Sub(dbfs.SeedFiles, "seed")
	if err != nil {
		t.Fatalf("sub fs: %v", err)
	}
	if err := validation.Seed(ctx, m.Schemas, seeds); err != nil {
		t.Fatalf("seed schemas: %v", err)
	}
	schemas, err := validation.NewLoader(ctx, m.Schemas)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	store, err := blob.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	janitor := jobs.NewBlobJanitor(nil, store, nil)

	cfg := &config.Config{JWTSecret: testSecret, TokenDuration: time.Hour, Upload: config.UploadConfig{MaxBytes: 5 << 20}}
	router := api.NewRouter(cfg, "test", "now", api.Services{
		Users:     m.Users,
		Engine:    lifecycle.New(m.Store, janitor, nil),
		Documents: documents.New(m.Store, m.Store, store, janitor, documents.Config{MaxBytes: cfg.Upload.MaxBytes}, nil),
		Schemas:   schemas,
	})
	return &testServer{t: t, router: router, mocks: m, blobs: store}
}

func (s *testServer) token(email string, role models.Role) string {
	s.t.Helper()
	u := &models.User{Name: email, Email: email, Role: role, PasswordHash: "x"}
	id, err := s.mocks.Users.CreateUser(context.Background(), u)
	if err != nil {
		s.t.Fatalf("CreateUser: %v", err)
	}
	u.ID = id
	tok, err := api.IssueToken(testSecret, time.Hour, u)
	if err != nil {
		s.t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	w := s.do(method, path, token, "application/json", r)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: response is not an envelope: %s", method, path, w.Body.String())
	}
	return w.Code, env
}

func (s *testServer) upload(token string, appID int64, docType, name, contentType string, content []byte) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("applicationId", strconv.FormatInt(appID, 10))
	_ = mw.WriteField("documentType", docType)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="document"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		s.t.Fatalf("CreatePart: %v", err)
	}
	_, _ = part.Write(content)
	_ = mw.Close()

	w := s.do(http.MethodPost, "/api/documents/upload", token, mw.FormDataContentType(), &buf)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("upload: response is not an envelope: %s", w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", string(raw), err)
	}
	return v
}

func TestRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)
	for _, rt := range []struct{ method, path string }{
		{http.MethodGet, "/api/applications"},
		{http.MethodPost, "/api/applications"},
		{http.MethodGet, "/api/applications/1"},
		{http.MethodPut, "/api/applications/1/stage"},
		{http.MethodPost, "/api/documents/upload"},
		{http.MethodGet, "/api/documents/application/1"},
		{http.MethodPut, "/api/documents/1/verify"},
		{http.MethodGet, "/api/documents/1/file"},
		{http.MethodDelete, "/api/documents/1"},
		{http.MethodGet, "/auth/me"},
	} {
		code, env := s.json(rt.method, rt.path, "", nil)
		if code != http.StatusUnauthorized || env.Success {
			t.Fatalf("%s %s: expected 401 envelope got %d %+v", rt.method, rt.path, code, env)
		}
	}
}

func TestRoutes_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	user := s.token("applicant@example.com", models.RoleUser)
	stranger := s.token("stranger@example.com", models.RoleUser)
	admin := s.token("admin@example.com", models.RoleAdmin)

	// user creates an application
	code, env := s.json(http.MethodPost, "/api/applications", user, map[string]string{"position": "Scientist B"})
	if code != http.StatusCreated || !env.Success {
		t.Fatalf("create: %d %+v", code, env)
	}
	app := decode[models.Application](t, env.Data)
	if !regexp.MustCompile(`^APP\d{4}\d+$`).MatchString(app.ApplicationID) {
		t.Fatalf("unexpected applicationId %q", app.ApplicationID)
	}
	if app.CurrentStage != models.StageApplicationSubmitted || app.Stages[0].Status != models.StageCompleted {
		t.Fatalf("unexpected initial stage: %+v", app)
	}
	appPath := "/api/applications/" + strconv.FormatInt(app.ID, 10)

	code, _ = s.json(http.MethodPost, "/api/applications", user, map[string]string{"position": ""})
	if code != http.StatusBadRequest {
		t.Fatalf("blank position: expected 400 got %d", code)
	}

	// access rules
	if code, _ := s.json(http.MethodGet, appPath, stranger, nil); code != http.StatusForbidden {
		t.Fatalf("stranger get: expected 403 got %d", code)
	}
	if code, _ := s.json(http.MethodPut, appPath+"/stage", user, map[string]string{"currentStage": "Document Verification", "stageStatus": "in-progress"}); code != http.StatusForbidden {
		t.Fatalf("owner advance: expected 403 got %d", code)
	}
	if code, _ := s.json(http.MethodDelete, appPath, user, nil); code != http.StatusForbidden {
		t.Fatalf("owner delete: expected 403 got %d", code)
	}

	// admin advances the stage
	code, env = s.json(http.MethodPut, appPath+"/stage", admin, map[string]string{"currentStage": "Document Verification", "stageStatus": "in-progress"})
	if code != http.StatusOK {
		t.Fatalf("advance: %d %+v", code, env)
	}
	app = decode[models.Application](t, env.Data)
	if app.CurrentStage != models.StageDocumentVerification || app.Stages[1].Status != models.StageInProgress {
		t.Fatalf("unexpected stage after advance: %+v", app)
	}
	if code, _ := s.json(http.MethodPut, appPath+"/stage", admin, map[string]string{"currentStage": "Interview", "stageStatus": "completed"}); code != http.StatusBadRequest {
		t.Fatalf("unknown stage: expected 400 got %d", code)
	}

	// admin patches allow-listed fields only
	if code, _ := s.json(http.MethodPut, appPath, admin, map[string]string{"applicationId": "APP0000000001"}); code != http.StatusBadRequest {
		t.Fatalf("patch unknown field: expected 400 got %d", code)
	}
	if code, _ := s.json(http.MethodPut, appPath, admin, map[string]string{"status": "archived"}); code != http.StatusBadRequest {
		t.Fatalf("patch bad status: expected 400 got %d", code)
	}
	if code, _ := s.json(http.MethodPut, appPath, user, map[string]string{"notes": "self-approved"}); code != http.StatusForbidden {
		t.Fatalf("owner patch: expected 403 got %d", code)
	}
	code, env = s.json(http.MethodPut, appPath, admin, map[string]string{"notes": "interview scheduled"})
	if code != http.StatusOK || decode[models.Application](t, env.Data).Notes != "interview scheduled" {
		t.Fatalf("patch notes: %d %+v", code, env)
	}

	// user uploads a PDF birth certificate
	pdf := []byte("%PDF-1.4\n%test\n")
	code, env = s.upload(user, app.ID, "Birth Certificate", "birth.pdf", "application/pdf", pdf)
	if code != http.StatusCreated {
		t.Fatalf("upload: %d %+v", code, env)
	}
	doc := decode[models.UploadedDocument](t, env.Data)
	if doc.Verified || doc.DocumentType != models.DocBirthCertificate {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if code, env = s.upload(user, app.ID, "Birth Certificate", "setup.exe", "application/octet-stream", []byte("MZ")); code != http.StatusBadRequest || env.Message == "" {
		t.Fatalf("exe upload: expected 400 with message got %d %+v", code, env)
	}
	if code, _ = s.upload(admin, app.ID, "Birth Certificate", "birth.pdf", "application/pdf", pdf); code != http.StatusForbidden {
		t.Fatalf("admin upload: expected 403 got %d", code)
	}

	code, env = s.json(http.MethodGet, appPath, user, nil)
	if code != http.StatusOK {
		t.Fatalf("get: %d", code)
	}
	var raw struct {
		Documents map[string]bool `json:"documents"`
	}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		t.Fatalf("decode documents: %v", err)
	}
	if len(raw.Documents) != models.NumDocumentTypes || !raw.Documents["Birth Certificate"] {
		t.Fatalf("unexpected completeness: %v", raw.Documents)
	}

	listPath := "/api/documents/application/" + strconv.FormatInt(app.ID, 10)
	code, env = s.json(http.MethodGet, listPath, admin, nil)
	if code != http.StatusOK || env.Count == nil || *env.Count != 1 {
		t.Fatalf("list documents: %d %+v", code, env)
	}
	if code, _ := s.json(http.MethodGet, listPath, stranger, nil); code != http.StatusForbidden {
		t.Fatalf("stranger list: expected 403 got %d", code)
	}

	docPath := "/api/documents/" + strconv.FormatInt(doc.ID, 10)
	w := s.do(http.MethodGet, docPath+"/file", user, "", nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), pdf) || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("download: %d %q %q", w.Code, w.Header().Get("Content-Type"), w.Body.String())
	}
	if w := s.do(http.MethodGet, docPath+"/file", stranger, "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("stranger download: expected 403 got %d", w.Code)
	}

	// verification is admin-only
	if code, _ := s.json(http.MethodPut, docPath+"/verify", user, nil); code != http.StatusForbidden {
		t.Fatalf("owner verify: expected 403 got %d", code)
	}
	code, env = s.json(http.MethodPut, docPath+"/verify", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("verify: %d %+v", code, env)
	}
	if v := decode[models.UploadedDocument](t, env.Data); !v.Verified || v.VerifiedBy == nil || v.VerifiedAt == nil {
		t.Fatalf("unexpected verified document: %+v", v)
	}

	// listing is scoped by role
	code, env = s.json(http.MethodGet, "/api/applications", stranger, nil)
	if code != http.StatusOK || env.Count == nil || *env.Count != 0 {
		t.Fatalf("stranger list: %d %+v", code, env)
	}
	code, env = s.json(http.MethodGet, "/api/applications", admin, nil)
	if code != http.StatusOK || env.Count == nil || *env.Count != 1 {
		t.Fatalf("admin list: %d %+v", code, env)
	}

	// admin deletes the application; everything under it goes away
	if code, env = s.json(http.MethodDelete, appPath, admin, nil); code != http.StatusOK || !env.Success {
		t.Fatalf("delete: %d %+v", code, env)
	}
	for _, tok := range []string{user, admin} {
		if code, _ := s.json(http.MethodGet, appPath, tok, nil); code != http.StatusNotFound {
			t.Fatalf("get after delete: expected 404 got %d", code)
		}
	}
	if w := s.do(http.MethodGet, docPath+"/file", admin, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("download after delete: expected 404 got %d", w.Code)
	}
	if _, err := s.blobs.Open(context.Background(), doc.StorageLocator); err == nil {
		t.Fatalf("expected blob removed after application delete")
	}
}

func TestRoutes_UploadTooLarge(t *testing.T) {
	s := newTestServer(t)
	user := s.token("big@example.com", models.RoleUser)
	code, env := s.json(http.MethodPost, "/api/applications", user, map[string]string{"position": "Clerk"})
	if code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	app := decode[models.Application](t, env.Data)

	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), 6<<20)...)
	code, env = s.upload(user, app.ID, "Birth Certificate", "big.pdf", "application/pdf", big)
	if code != http.StatusBadRequest || env.Success {
		t.Fatalf("expected 400 for 6 MiB upload got %d %+v", code, env)
	}
}
