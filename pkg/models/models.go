package models

import "time"

// Domain models matching the database schema in db/migrations.

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created"`
}

// Owner is the user identity attached to an application when it is read back.
type Owner struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Application struct {
	ID            int64             `json:"id"`
	ApplicationID string            `json:"applicationId"`
	OwnerID       int64             `json:"ownerId"`
	Owner         *Owner            `json:"owner,omitempty"`
	Position      string            `json:"position"`
	Status        ApplicationStatus `json:"status"`
	CurrentStage  Stage             `json:"currentStage"`
	Stages        []StageEntry      `json:"stages"`
	Documents     Completeness      `json:"documents"`
	Notes         string            `json:"notes,omitempty"`
	SubmittedDate time.Time         `json:"submittedDate"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

type StageEntry struct {
	Name        Stage       `json:"name"`
	Status      StageStatus `json:"status"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

type UploadedDocument struct {
	ID             int64        `json:"id"`
	ApplicationID  int64        `json:"applicationId"`
	OwnerID        int64        `json:"ownerId"`
	DocumentType   DocumentType `json:"documentType"`
	FileName       string       `json:"fileName"`
	StorageLocator string       `json:"storageLocator"`
	FileSizeBytes  int64        `json:"fileSizeBytes"`
	MimeType       string       `json:"mimeType"`
	Verified       bool         `json:"verified"`
	VerifiedBy     *int64       `json:"verifiedBy,omitempty"`
	VerifiedAt     *time.Time   `json:"verifiedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Schema is a stored JSON schema used to validate request bodies.
type Schema struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	SchemaJSON  string `json:"schema_json" db:"schema_json"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}
