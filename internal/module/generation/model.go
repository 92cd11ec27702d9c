package generation

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Status is the persisted job status.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OutputKind says where the generated image lands in the editor.
type OutputKind string

const (
	OutputAsset OutputKind = "ASSET"
	OutputFrame OutputKind = "FRAME"
)

// Funding records what paid for a job.
type Funding string

const (
	FundingCredits Funding = "credits"
	FundingOwnKey  Funding = "own_key"
)

// ErrorKind is the failure classification exposed to clients.
type ErrorKind string

const (
	KindInsufficientProviderCredit ErrorKind = "insufficient_provider_credit"
	KindProviderUnavailable        ErrorKind = "provider_unavailable"
	KindProviderRejected           ErrorKind = "provider_rejected"
	KindProviderFailed             ErrorKind = "provider_failed"
	KindProviderCanceled           ErrorKind = "provider_canceled"
	KindEmptyOutput                ErrorKind = "empty_output"
	KindMaterializationFailed      ErrorKind = "materialization_failed"
	KindInternal                   ErrorKind = "internal_error"
)

// Generation is one image generation job.
//
// ImageURL is set if and only if Status is COMPLETED. ProviderJobHandle is set
// for every PROCESSING and COMPLETED job. It is null while PENDING and also on
// FAILED jobs that never became PROCESSING: the provider refused the start, or
// the start could not be debited or recorded. Those FAILED rows are the one
// exception to "only PENDING lacks a handle"; the orphaned handle, if any, is
// kept in ErrorMessage.
type Generation struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ProjectID         uuid.UUID      `gorm:"type:uuid;not null;index"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index"`
	Prompt            string         `gorm:"not null"`
	ReferenceImageURL *string        `gorm:"column:reference_image_url"`
	AspectRatio       string         `gorm:"not null"`
	ResolutionTier    string         `gorm:"not null"`
	Width             int            `gorm:"not null"`
	Height            int            `gorm:"not null"`
	OutputKind        OutputKind     `gorm:"not null;default:ASSET"`
	OutputFormat      string         `gorm:"not null;default:png"`
	Provider          string         `gorm:"not null"`
	ModelID           string         `gorm:"not null"`
	Status            Status         `gorm:"not null;default:PENDING"`
	ProviderJobHandle *string        `gorm:"column:provider_job_handle"`
	ProviderOutputs   pq.StringArray `gorm:"type:text[]"`
	ImageURL          *string        `gorm:"column:image_url"`
	ErrorKind         *ErrorKind     `gorm:"column:error_kind"`
	ErrorMessage      *string        `gorm:"column:error_message"`
	Funding           Funding        `gorm:"not null"`
	CreditDebited     bool           `gorm:"not null;default:false"`
	ClaimToken        *uuid.UUID     `gorm:"type:uuid"`
	ClaimExpiresAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName returns the database table name.
func (Generation) TableName() string {
	return "generations"
}
