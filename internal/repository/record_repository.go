package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"

	"go-rash-triage/internal/storage"
	"go-rash-triage/pkg/models"
)

const recordPrefix = "records"

// BlobRecordRepository implements RecordRepository on top of a blob store
type BlobRecordRepository struct {
	store storage.BlobStore
}

// NewBlobRecordRepository creates a blob-backed record repository
func NewBlobRecordRepository(store storage.BlobStore) RecordRepository {
	return &BlobRecordRepository{
		store: store,
	}
}

// SaveRecord writes the record as JSON under records/YYYY/MM/DD/<id>.json
func (r *BlobRecordRepository) SaveRecord(ctx context.Context, record *models.AnalysisRecord) error {
	if err := checkRecord(record); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.ID, err)
	}
	if err := r.store.PutObject(ctx, RecordKey(record), data, "application/json"); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return nil
}

// RecordKey returns the blob name of a record
func RecordKey(record *models.AnalysisRecord) string {
	ts := record.Timestamp.UTC()
	return path.Join(recordPrefix, ts.Format("2006"), ts.Format("01"), ts.Format("02"), record.ID+".json")
}

// LogRecordRepository implements RecordRepository by logging each record
type LogRecordRepository struct {
	logger *logrus.Logger
}

// NewLogRecordRepository creates a log-only record repository
func NewLogRecordRepository(logger *logrus.Logger) RecordRepository {
	return &LogRecordRepository{
		logger: logger,
	}
}

// SaveRecord logs the record fields at info level
func (r *LogRecordRepository) SaveRecord(ctx context.Context, record *models.AnalysisRecord) error {
	if err := checkRecord(record); err != nil {
		return err
	}
	fields := logrus.Fields{
		"record_id":        record.ID,
		"request_id":       record.RequestID,
		"outcome":          record.Outcome,
		"provider":         record.Provider,
		"model":            record.Model,
		"effective_labels": record.EffectiveLabels,
		"attempts":         record.Attempts,
		"duration_ms":      record.DurationMs,
	}
	if record.ErrorCode != "" {
		fields["error_code"] = record.ErrorCode
	}
	if record.Top != "" {
		fields["top"] = record.Top
		fields["triage_level"] = record.TriageLevel
		fields["confidence"] = record.Confidence
		fields["red_flag_count"] = record.RedFlagCount
	}
	if record.AgeMonths != nil {
		fields["age_months"] = *record.AgeMonths
	}
	if record.BiologicalSex != nil {
		fields["biological_sex"] = *record.BiologicalSex
	}
	if record.FeverPresent != nil {
		fields["fever_present"] = *record.FeverPresent
	}
	r.logger.WithFields(fields).Info("Analysis record")
	return nil
}

func checkRecord(record *models.AnalysisRecord) error {
	if record == nil || record.ID == "" || record.Timestamp.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}
