package api

import (
	"encoding/json"
	"net/http"

	"github.com/garnizeh/recruit/internal/access"
	"github.com/garnizeh/recruit/internal/apperr"
	"github.com/garnizeh/recruit/internal/lifecycle"
	"github.com/garnizeh/recruit/internal/validation"
)

type ApplicationsHandler struct {
	engine  *lifecycle.Engine
	schemas *validation.Loader
}

// NewApplicationsHandler wires the lifecycle engine. schemas may be nil, which
// skips JSON schema checks on admin bodies.
func NewApplicationsHandler(engine *lifecycle.Engine, schemas *validation.Loader) *ApplicationsHandler {
	return &ApplicationsHandler{engine: engine, schemas: schemas}
}

type createApplicationRequest struct {
	Position string `json:"position"`
}

type stageRequest struct {
	CurrentStage string `json:"currentStage"`
	StageStatus  string `json:"stageStatus"`
}

// adminBody authorizes an admin-only request and returns its body after
// checking it against the named schema.
func (h *ApplicationsHandler) adminBody(w http.ResponseWriter, r *http.Request, schema string) (access.Principal, []byte, error) {
	p, err := principal(r)
	if err != nil {
		return p, nil, err
	}
	if !p.IsAdmin() {
		return p, nil, apperr.Forbidden("admin access required")
	}
	b, err := readBody(w, r)
	if err != nil {
		return p, nil, err
	}
	if h.schemas != nil {
		if err := h.schemas.Validate(r.Context(), schema, b); err != nil {
			return p, nil, err
		}
	}
	return p, b, nil
}

func (h *ApplicationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createApplicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.engine.Create(r.Context(), p, req.Position)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, a, "Application submitted")
}

func (h *ApplicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apps, err := h.engine.List(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, apps)
}

func (h *ApplicationsHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	a, err := h.engine.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a, "")
}

func (h *ApplicationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, body, err := h.adminBody(w, r, validation.ApplicationPatch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch lifecycle.ApplicationPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		writeError(w, r, apperr.Validation("invalid request body"))
		return
	}
	a, err := h.engine.AdminUpdate(r.Context(), p, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a, "Application updated")
}

func (h *ApplicationsHandler) AdvanceStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, body, err := h.adminBody(w, r, validation.StageUpdate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req stageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, apperr.Validation("invalid request body"))
		return
	}
	a, err := h.engine.AdvanceStage(r.Context(), p, id, req.CurrentStage, req.StageStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a, "Stage updated")
}

func (h *ApplicationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.engine.Delete(r.Context(), p, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Application deleted")
}
