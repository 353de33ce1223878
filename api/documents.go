package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/garnizeh/recruit/internal/apperr"
	"github.com/garnizeh/recruit/internal/documents"
)

// multipart overhead allowed on top of the file size limit
const formSlack = 1 << 20

type DocumentsHandler struct {
	registry *documents.Registry
	maxBytes int64
}

func NewDocumentsHandler(registry *documents.Registry, maxBytes int64) *DocumentsHandler {
	if maxBytes <= 0 {
		maxBytes = documents.DefaultMaxBytes
	}
	return &DocumentsHandler{registry: registry, maxBytes: maxBytes}
}

func (h *DocumentsHandler) tooLarge() error {
	return apperr.Validation("file exceeds the " + strconv.FormatInt(h.maxBytes>>20, 10) + " MB limit")
}

// Upload accepts a multipart form with applicationId, documentType and document fields.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formSlack)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, h.tooLarge())
			return
		}
		writeError(w, r, apperr.Validation("expected a multipart form"))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logger.Warn("remove multipart temp files", slog.Any("err", err))
		}
	}()

	appID, err := strconv.ParseInt(r.FormValue("applicationId"), 10, 64)
	if err != nil || appID <= 0 {
		writeError(w, r, apperr.Validation("applicationId is required"))
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, r, apperr.Validation("no file uploaded"))
		return
	}
	defer file.Close()

	d, err := h.registry.Upload(r.Context(), p, documents.Upload{
		ApplicationID: appID,
		DocumentType:  r.FormValue("documentType"),
		FileName:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Size:          header.Size,
		Body:          file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, d, "Document uploaded")
}

func (h *DocumentsHandler) ListForApplication(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	appID, err := pathID(r, "applicationId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := h.registry.ListForApplication(r.Context(), p, appID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, docs)
}

func (h *DocumentsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.registry.Verify(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d, "Document verified")
}

func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.registry.Delete(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Document deleted")
}

// File streams the stored bytes of a document.
func (h *DocumentsHandler) File(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rc, d, err := h.registry.Open(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", d.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(d.FileSizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": d.FileName}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("stream document", slog.Int64("id", id), slog.Any("err", err))
	}
}
