package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/recruit/internal/models"
	pub "github.com/garnizeh/recruit/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Lookups by id return (nil, nil) when no row matches.

// ErrConflict is returned (wrapped) when a write violates a uniqueness constraint.
var ErrConflict = errors.New("unique constraint violation")

type UserRepo interface {
	CreateUser(ctx context.Context, u *pub.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*pub.User, error)
	GetUserByEmail(ctx context.Context, email string) (*pub.User, error)
	UpdateUserRole(ctx context.Context, id int64, role pub.Role) error
}

type ApplicationRepo interface {
	// NextApplicationSeq atomically increments and returns the counter for year.
	NextApplicationSeq(ctx context.Context, year int) (int64, error)
	CreateApplication(ctx context.Context, a *pub.Application) (int64, error)
	GetApplication(ctx context.Context, id int64) (*pub.Application, error)
	ListApplications(ctx context.Context) ([]pub.Application, error)
	ListApplicationsByOwner(ctx context.Context, ownerID int64) ([]pub.Application, error)
	UpdateApplication(ctx context.Context, a *pub.Application) error
	// DeleteApplication removes the application and its document records together
	// and returns the removed documents. It returns (nil, false, nil) when absent.
	DeleteApplication(ctx context.Context, id int64) ([]pub.UploadedDocument, bool, error)
}

type DocumentRepo interface {
	CreateDocument(ctx context.Context, d *pub.UploadedDocument) (int64, error)
	GetDocument(ctx context.Context, id int64) (*pub.UploadedDocument, error)
	ListDocumentsByApplication(ctx context.Context, applicationID int64) ([]pub.UploadedDocument, error)
	CountDocumentsByType(ctx context.Context, applicationID int64, t pub.DocumentType) (int64, error)
	UpdateDocument(ctx context.Context, d *pub.UploadedDocument) error
	DeleteDocument(ctx context.Context, id int64) error
}

type SchemaRepo interface {
	UpsertSchema(ctx context.Context, name, description, schemaJSON string) error
	GetSchemaByName(ctx context.Context, name string) (*pub.Schema, error)
	ListSchemas(ctx context.Context) ([]pub.Schema, error)
}

type JobRepo interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error)
	FetchNext(ctx context.Context) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
}
