// Package lifecycle owns the Application entity: identifier allocation, the
// five-stage pipeline and the authorization rules for every mutation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garnizeh/recruit/internal/access"
	"github.com/garnizeh/recruit/internal/apperr"
	"github.com/garnizeh/recruit/pkg/models"
	"github.com/garnizeh/recruit/pkg/repository"
)

const (
	MaxPositionLen = 200
	MaxNotesLen    = 2000

	allocAttempts = 5
	allocBackoff  = 10 * time.Millisecond
)

// Cleaner removes stored file bytes once their records are gone.
type Cleaner interface {
	RemoveBlob(ctx context.Context, locator string)
}

type Engine struct {
	apps    repository.ApplicationRepo
	cleaner Cleaner
	logger  *slog.Logger
	now     func() time.Time
}

// New returns an Engine. cleaner may be nil, in which case blobs of deleted
// applications are left in place.
func New(apps repository.ApplicationRepo, cleaner Cleaner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		apps:    apps,
		cleaner: cleaner,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ApplicationPatch lists the fields an administrator may change. Nil means unchanged.
type ApplicationPatch struct {
	Status   *string `json:"status,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Position *string `json:"position,omitempty"`
}

func (p ApplicationPatch) empty() bool {
	return p.Status == nil && p.Notes == nil && p.Position == nil
}

func validPosition(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperr.Validation("position is required")
	}
	if utf8.RuneCountInString(s) > MaxPositionLen {
		return "", apperr.Validation(fmt.Sprintf("position must be at most %d characters", MaxPositionLen))
	}
	return s, nil
}

// newStages builds the canonical pipeline with the first stage already completed.
func newStages(at time.Time) []models.StageEntry {
	stages := make([]models.StageEntry, len(models.Stages))
	for i, name := range models.Stages {
		stages[i] = models.StageEntry{Name: name, Status: models.StagePending}
	}
	done := at
	stages[0].Status = models.StageCompleted
	stages[0].CompletedAt = &done
	return stages
}

// Create registers a new application owned by the caller.
func (e *Engine) Create(ctx context.Context, p access.Principal, position string) (*models.Application, error) {
	if p.ID <= 0 {
		return nil, apperr.Unauthenticated("authentication required")
	}
	pos, err := validPosition(position)
	if err != nil {
		return nil, err
	}

	now := e.now()
	a := &models.Application{
		OwnerID:       p.ID,
		Position:      pos,
		Status:        models.StatusInProgress,
		CurrentStage:  models.StageApplicationSubmitted,
		Stages:        newStages(now),
		SubmittedDate: now,
	}

	id, err := e.allocate(ctx, a)
	if err != nil {
		return nil, err
	}

	created, err := e.apps.GetApplication(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load application", err)
	}
	if created == nil {
		return nil, apperr.Internal("load application", fmt.Errorf("application %d vanished after insert", id))
	}

	e.logger.Info("application created", "id", id, "application_id", created.ApplicationID, "owner_id", p.ID)
	return created, nil
}

// allocate assigns the next APP<year><seq> identifier and inserts a. A
// uniqueness conflict draws a fresh sequence number after a backoff.
func (e *Engine) allocate(ctx context.Context, a *models.Application) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < allocAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, allocBackoff<<(attempt-1)); err != nil {
				return 0, apperr.Internal("allocate application id", err)
			}
		}

		year := a.SubmittedDate.Year()
		seq, err := e.apps.NextApplicationSeq(ctx, year)
		if err != nil {
			return 0, apperr.Internal("allocate application id", err)
		}
		a.ApplicationID = FormatApplicationID(year, seq)

		id, err := e.apps.CreateApplication(ctx, a)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return 0, apperr.Internal("create application", err)
		}
		lastErr = err
		e.logger.Warn("application id collision", "application_id", a.ApplicationID, "attempt", attempt+1)
	}
	return 0, apperr.Conflict("could not allocate a unique application id", lastErr)
}

// FormatApplicationID renders the business key, e.g. APP2024000042.
func FormatApplicationID(year int, seq int64) string {
	return fmt.Sprintf("APP%04d%06d", year, seq)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) load(ctx context.Context, id int64) (*models.Application, error) {
	a, err := e.apps.GetApplication(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load application", err)
	}
	if a == nil {
		return nil, apperr.NotFound("application not found")
	}
	return a, nil
}

func requireAdmin(p access.Principal) error {
	if !access.Admin(p, 0) {
		return apperr.Forbidden("admin access required")
	}
	return nil
}

// Get returns the application if the caller owns it or is an admin.
func (e *Engine) Get(ctx context.Context, p access.Principal, id int64) (*models.Application, error) {
	a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.OwnerOrAdmin(p, a.OwnerID) {
		return nil, apperr.Forbidden("not allowed to view this application")
	}
	return a, nil
}

// List returns every application for admins and the caller's own otherwise.
func (e *Engine) List(ctx context.Context, p access.Principal) ([]models.Application, error) {
	var (
		out []models.Application
		err error
	)
	if p.IsAdmin() {
		out, err = e.apps.ListApplications(ctx)
	} else {
		out, err = e.apps.ListApplicationsByOwner(ctx, p.ID)
	}
	if err != nil {
		return nil, apperr.Internal("list applications", err)
	}
	if out == nil {
		out = []models.Application{}
	}
	return out, nil
}

// AdminUpdate applies patch after validating every field it sets.
func (e *Engine) AdminUpdate(ctx context.Context, p access.Principal, id int64, patch ApplicationPatch) (*models.Application, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if patch.empty() {
		return nil, apperr.Validation("no updatable fields supplied")
	}

	var (
		status   models.ApplicationStatus
		position string
		err      error
	)
	if patch.Status != nil {
		if status, err = models.ParseApplicationStatus(*patch.Status); err != nil {
			return nil, apperr.Validation(fmt.Sprintf("invalid status %q", *patch.Status))
		}
	}
	if patch.Notes != nil && utf8.RuneCountInString(*patch.Notes) > MaxNotesLen {
		return nil, apperr.Validation(fmt.Sprintf("notes must be at most %d characters", MaxNotesLen))
	}
	if patch.Position != nil {
		if position, err = validPosition(*patch.Position); err != nil {
			return nil, err
		}
	}

	a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil {
		a.Status = status
	}
	if patch.Notes != nil {
		a.Notes = *patch.Notes
	}
	if patch.Position != nil {
		a.Position = position
	}

	if err := e.apps.UpdateApplication(ctx, a); err != nil {
		return nil, apperr.Internal("update application", err)
	}
	e.logger.Info("application updated", "id", id, "by", p.ID)
	return e.load(ctx, id)
}

// AdvanceStage moves the application to stage and sets that stage's status.
// Any stage may be set to any status; ordering is not enforced.
func (e *Engine) AdvanceStage(ctx context.Context, p access.Principal, id int64, stage, status string) (*models.Application, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	target, err := models.ParseStage(stage)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("unknown stage %q", stage))
	}
	st, err := models.ParseStageStatus(status)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid stage status %q", status))
	}

	a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	idx := target.Index()
	if idx >= len(a.Stages) || a.Stages[idx].Name != target {
		return nil, apperr.Internal("advance stage", fmt.Errorf("application %d has malformed stages", id))
	}

	a.CurrentStage = target
	a.Stages[idx].Status = st
	if st == models.StageCompleted {
		at := e.now()
		a.Stages[idx].CompletedAt = &at
	} else {
		a.Stages[idx].CompletedAt = nil
	}

	if err := e.apps.UpdateApplication(ctx, a); err != nil {
		return nil, apperr.Internal("update application", err)
	}
	e.logger.Info("stage advanced", "id", id, "stage", string(target), "status", string(st), "by", p.ID)
	return e.load(ctx, id)
}

// Delete removes the application together with its document records and
// schedules removal of their blobs.
func (e *Engine) Delete(ctx context.Context, p access.Principal, id int64) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	removed, ok, err := e.apps.DeleteApplication(ctx, id)
	if err != nil {
		return apperr.Internal("delete application", err)
	}
	if !ok {
		return apperr.NotFound("application not found")
	}

	if e.cleaner != nil {
		for _, d := range removed {
			e.cleaner.RemoveBlob(ctx, d.StorageLocator)
		}
	}
	e.logger.Info("application deleted", "id", id, "documents", len(removed), "by", p.ID)
	return nil
}
