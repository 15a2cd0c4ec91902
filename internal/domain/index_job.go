package domain

import (
	"fmt"
	"time"
)

// IndexJobStatus represents the status of an index job
type IndexJobStatus string

const (
	IndexJobStatusPending    IndexJobStatus = "pending"
	IndexJobStatusProcessing IndexJobStatus = "processing"
	IndexJobStatusCompleted  IndexJobStatus = "completed"
	IndexJobStatusFailed     IndexJobStatus = "failed"
)

// IndexJob represents a queued indexing run for one site
type IndexJob struct {
	ID          string
	DomainID    string
	Status      IndexJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewIndexJob creates a pending IndexJob
func NewIndexJob(id, domainID string, createdAt time.Time) *IndexJob {
	return &IndexJob{
		ID:        id,
		DomainID:  domainID,
		Status:    IndexJobStatusPending,
		CreatedAt: createdAt,
	}
}

// ValidateIndexJob validates an IndexJob instance
func ValidateIndexJob(j *IndexJob) error {
	if j == nil {
		return fmt.Errorf("index job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("index job ID is required")
	}

	if j.DomainID == "" {
		return fmt.Errorf("index job DomainID is required")
	}

	if !isValidIndexJobStatus(j.Status) {
		return fmt.Errorf("index job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("index job Retries cannot be negative")
	}

	return nil
}

func isValidIndexJobStatus(s IndexJobStatus) bool {
	switch s {
	case IndexJobStatusPending, IndexJobStatusProcessing,
		IndexJobStatusCompleted, IndexJobStatusFailed:
		return true
	}
	return false
}
