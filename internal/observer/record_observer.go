package observer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-rash-triage/internal/repository"
	"go-rash-triage/pkg/models"
)

const defaultRecordTimeout = 10 * time.Second

// RecordingObserver retains anonymized metadata about finished analyses.
// Images, free-text context and red flag wording are never stored.
type RecordingObserver struct {
	repo    repository.RecordRepository
	logger  *logrus.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRecordingObserver creates an observer saving records into repo
func NewRecordingObserver(repo repository.RecordRepository, logger *logrus.Logger) *RecordingObserver {
	return &RecordingObserver{
		repo:    repo,
		logger:  logger,
		timeout: defaultRecordTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnEvent saves a record for terminal events
func (o *RecordingObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	if event.EventType != AnalysisCompleted && event.EventType != AnalysisFailed {
		return
	}

	record := BuildRecord(event)
	record.ID = uuid.NewString()
	if record.Timestamp.IsZero() {
		record.Timestamp = o.now()
	}

	// The request may already be answered and its context cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	if err := o.repo.SaveRecord(saveCtx, record); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": event.RequestID,
			"record_id":  record.ID,
		}).Error("Failed to save analysis record")
	}
}

// GetObserverName returns the observer name
func (o *RecordingObserver) GetObserverName() string {
	return "recording_observer"
}

// BuildRecord extracts the anonymized fields of an event
func BuildRecord(event AnalysisEvent) *models.AnalysisRecord {
	record := &models.AnalysisRecord{
		RequestID:       event.RequestID,
		Timestamp:       event.Timestamp,
		Provider:        event.Provider,
		Model:           event.Model,
		EffectiveLabels: event.EffectiveLabels,
		Attempts:        event.Attempts,
		DurationMs:      event.ProcessingTime.Milliseconds(),
	}

	if event.EventType == AnalysisCompleted {
		record.Outcome = "completed"
	} else {
		record.Outcome = "failed"
		record.ErrorCode = event.ErrorCode
	}

	if r := event.Result; r != nil {
		record.Top = r.Top
		record.TriageLevel = r.TriageLevel
		record.Confidence = r.Confidence
		record.RedFlagCount = len(r.RedFlags)
	}
	if pc := event.PatientContext; pc != nil {
		record.AgeMonths = pc.AgeMonths
		record.BiologicalSex = pc.BiologicalSex
		record.FeverPresent = pc.FeverPresent
	}
	return record
}
