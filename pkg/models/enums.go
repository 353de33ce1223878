package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidEnum is returned when a value is outside one of the closed sets below.
var ErrInvalidEnum = errors.New("invalid enum value")

type ApplicationStatus string

const (
	StatusPending    ApplicationStatus = "pending"
	StatusInProgress ApplicationStatus = "in-progress"
	StatusCompleted  ApplicationStatus = "completed"
	StatusRejected   ApplicationStatus = "rejected"
)

func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	switch st := ApplicationStatus(s); st {
	case StatusPending, StatusInProgress, StatusCompleted, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: application status %q", ErrInvalidEnum, s)
}

type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in-progress"
	StageCompleted  StageStatus = "completed"
)

func ParseStageStatus(s string) (StageStatus, error) {
	switch st := StageStatus(s); st {
	case StagePending, StageInProgress, StageCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: stage status %q", ErrInvalidEnum, s)
}

type Stage string

const (
	StageApplicationSubmitted   Stage = "Application Submitted"
	StageDocumentVerification   Stage = "Document Verification"
	StageMedicalExamination     Stage = "Medical Examination"
	StageBackgroundVerification Stage = "Background Verification"
	StageFinalClearance         Stage = "Final Clearance"
)

// Stages lists the pipeline in canonical order.
var Stages = [...]Stage{
	StageApplicationSubmitted,
	StageDocumentVerification,
	StageMedicalExamination,
	StageBackgroundVerification,
	StageFinalClearance,
}

// Index returns the position of s in the canonical order, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func ParseStage(s string) (Stage, error) {
	if st := Stage(s); st.Index() >= 0 {
		return st, nil
	}
	return "", fmt.Errorf("%w: stage %q", ErrInvalidEnum, s)
}

// DocumentType is one of the eight required document kinds. The zero value is invalid.
type DocumentType uint8

const (
	DocBirthCertificate DocumentType = iota + 1
	DocEducationalCertificates
	DocExperienceLetters
	DocCasteCertificate
	DocMedicalFitnessCertificate
	DocCharacterCertificate
	DocPhotoIDProof
	DocPassportPhotographs
)

// NumDocumentTypes is the size of the closed document type set.
const NumDocumentTypes = int(DocPassportPhotographs)

var documentLabels = [NumDocumentTypes]string{
	"Birth Certificate",
	"Educational Certificates",
	"Experience Letters",
	"Caste Certificate (if applicable)",
	"Medical Fitness Certificate",
	"Character Certificate",
	"Photo ID Proof (Aadhaar/PAN)",
	"Passport Size Photographs",
}

// DocumentTypes returns every document type in canonical order.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, NumDocumentTypes)
	for i := range out {
		out[i] = DocumentType(i + 1)
	}
	return out
}

func (d DocumentType) Valid() bool {
	return d >= DocBirthCertificate && d <= DocPassportPhotographs
}

func (d DocumentType) String() string {
	if !d.Valid() {
		return fmt.Sprintf("DocumentType(%d)", uint8(d))
	}
	return documentLabels[d-1]
}

func ParseDocumentType(label string) (DocumentType, error) {
	for i, l := range documentLabels {
		if l == label {
			return DocumentType(i + 1), nil
		}
	}
	return 0, fmt.Errorf("%w: document type %q", ErrInvalidEnum, label)
}

func (d DocumentType) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: document type %d", ErrInvalidEnum, uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *DocumentType) UnmarshalText(b []byte) error {
	v, err := ParseDocumentType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Completeness records, per document type, whether at least one copy was uploaded.
// It always holds exactly the eight canonical types.
type Completeness [NumDocumentTypes]bool

func (c *Completeness) Set(d DocumentType, v bool) {
	if d.Valid() {
		c[d-1] = v
	}
}

func (c Completeness) Has(d DocumentType) bool {
	return d.Valid() && c[d-1]
}

// Count returns how many document types are marked present.
func (c Completeness) Count() int {
	n := 0
	for _, v := range c {
		if v {
			n++
		}
	}
	return n
}

// MarshalJSON writes the labels in canonical order.
func (c Completeness) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(documentLabels[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		if v {
			buf.WriteString(":true")
		} else {
			buf.WriteString(":false")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON rejects labels outside the canonical set; missing labels read as false.
func (c *Completeness) UnmarshalJSON(b []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out Completeness
	for k, v := range raw {
		d, err := ParseDocumentType(k)
		if err != nil {
			return err
		}
		out.Set(d, v)
	}
	*c = out
	return nil
}
