package repository

import (
	"context"

	"go-rash-triage/pkg/models"
)

// RecordRepository defines the interface for anonymized record retention
type RecordRepository interface {
	// SaveRecord stores one anonymized analysis record
	SaveRecord(ctx context.Context, record *models.AnalysisRecord) error
}
