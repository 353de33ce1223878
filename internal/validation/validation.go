// Package validation compiles the JSON schemas stored in the json_schemas
// table and checks request bodies against them.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/garnizeh/recruit/internal/apperr"
	"github.com/garnizeh/recruit/pkg/repository"
	"github.com/qri-io/jsonschema"
)

// Schema names seeded by the migrations.
const (
	ApplicationPatch = "application_patch"
	StageUpdate      = "stage_update"
)

// Loader loads and caches compiled JSON schemas from the repository.
type Loader struct {
	repo  repository.SchemaRepo
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func NewLoader(ctx context.Context, r repository.SchemaRepo) (*Loader, error) {
	l := &Loader{
		repo:  r,
		cache: make(map[string]*jsonschema.Schema),
	}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

// GetSchema returns the compiled schema registered under name.
func (l *Loader) GetSchema(name string) (*jsonschema.Schema, bool) {
	l.mu.RLock()
	s, ok := l.cache[name]
	l.mu.RUnlock()

	return s, ok
}

// Reload loads all schemas from the DB and compiles them.
func (l *Loader) Reload(ctx context.Context) error {
	rows, err := l.repo.ListSchemas(ctx)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	newCache := make(map[string]*jsonschema.Schema, len(rows))
	for _, r := range rows {
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal([]byte(r.SchemaJSON), rs); err != nil {
			return fmt.Errorf("compile schema %s: %w", r.Name, err)
		}
		newCache[r.Name] = rs
	}

	l.mu.Lock()
	l.cache = newCache
	l.mu.Unlock()
	return nil
}

// Validate checks body against the named schema. Malformed JSON and schema
// violations come back as validation errors; a missing schema is internal.
func (l *Loader) Validate(ctx context.Context, name string, body []byte) error {
	s, ok := l.GetSchema(name)
	if !ok || s == nil {
		return apperr.Internal("validation unavailable", fmt.Errorf("no schema named %s", name))
	}

	if !json.Valid(body) {
		return apperr.Validation("request body must be valid JSON")
	}

	verrs, err := s.ValidateBytes(ctx, body)
	if err != nil {
		return apperr.Validation("request body must be valid JSON")
	}
	if len(verrs) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(verrs))
	for _, v := range verrs {
		p := v.PropertyPath
		if p == "" || p == "/" {
			msgs = append(msgs, v.Message)
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", strings.TrimPrefix(p, "/"), v.Message))
	}
	sort.Strings(msgs)
	return apperr.Validation(strings.Join(msgs, "; "))
}

// Seed upserts every *.json file in fsys into r, named after the file stem.
// The schema's own "description" keyword becomes the stored description.
func Seed(ctx context.Context, r repository.SchemaRepo, fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return err
	}
	for _, n := range names {
		b, err := fs.ReadFile(fsys, n)
		if err != nil {
			return fmt.Errorf("read %s: %w", n, err)
		}
		var meta struct {
			Description string `json:"description"`
		}
		if err := json.Unmarshal(b, &meta); err != nil {
			return fmt.Errorf("parse %s: %w", n, err)
		}
		name := strings.TrimSuffix(path.Base(n), path.Ext(n))
		if err := r.UpsertSchema(ctx, name, meta.Description, string(b)); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}
	return nil
}
