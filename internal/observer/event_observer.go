package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-rash-triage/pkg/models"
)

// AnalysisEvent represents an analysis lifecycle event
type AnalysisEvent struct {
	EventType      EventType     `json:"event_type"`
	Timestamp      time.Time     `json:"timestamp"`
	RequestID      string        `json:"request_id,omitempty"`
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	ProcessingTime time.Duration `json:"processing_time"`
	Success        bool          `json:"success"`
	ErrorCode      string        `json:"error_code,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`

	// Retry details, set on UpstreamRetry
	Attempt        int           `json:"attempt,omitempty"`
	Delay          time.Duration `json:"delay,omitempty"`
	UpstreamStatus int           `json:"upstream_status,omitempty"`

	// Attempts is the number of upstream calls made, set on terminal events
	Attempts        int                    `json:"attempts,omitempty"`
	EffectiveLabels []string               `json:"effective_labels,omitempty"`
	PatientContext  *models.PatientContext `json:"-"`
	Result          *models.AnalysisResult `json:"-"`
}

// EventType represents the type of analysis event
type EventType string

const (
	// AnalysisStarted when a request enters the pipeline
	AnalysisStarted EventType = "analysis_started"
	// UpstreamRetry when a transient upstream failure is about to be retried
	UpstreamRetry EventType = "upstream_retry"
	// AnalysisCompleted when a result was decoded
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisFailed when the request ended in an error
	AnalysisFailed EventType = "analysis_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event AnalysisEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event AnalysisEvent)
}

// LoggingObserver logs analysis events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles analysis events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"request_id": event.RequestID,
		"provider":   event.Provider,
		"model":      event.Model,
	}

	switch event.EventType {
	case AnalysisStarted:
		o.logger.WithFields(fields).Debug("Analysis started")
	case UpstreamRetry:
		fields["attempt"] = event.Attempt
		fields["delay_ms"] = event.Delay.Milliseconds()
		fields["upstream_status"] = event.UpstreamStatus
		fields["error"] = event.ErrorMessage
		o.logger.WithFields(fields).Warn("Retrying upstream call")
	case AnalysisCompleted:
		fields["processing_time_ms"] = event.ProcessingTime.Milliseconds()
		fields["attempts"] = event.Attempts
		fields["effective_labels"] = event.EffectiveLabels
		if event.Result != nil {
			fields["top"] = event.Result.Top
			fields["triage_level"] = event.Result.TriageLevel
			fields["red_flag_count"] = len(event.Result.RedFlags)
		}
		o.logger.WithFields(fields).Info("Analysis completed")
	case AnalysisFailed:
		fields["processing_time_ms"] = event.ProcessingTime.Milliseconds()
		fields["attempts"] = event.Attempts
		fields["error_code"] = event.ErrorCode
		fields["error"] = event.ErrorMessage
		o.logger.WithFields(fields).Warn("Analysis failed")
	default:
		o.logger.WithFields(fields).Info("Analysis event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects metrics from analysis events
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalAnalyses       int64
	successfulAnalyses  int64
	failedAnalyses      int64
	upstreamRetries     int64
	failuresByCode      map[string]int64
	triageLevels        map[string]int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		failuresByCode: make(map[string]int64),
		triageLevels:   make(map[string]int64),
	}
}

// OnEvent handles analysis events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case AnalysisStarted:
		o.totalAnalyses++
	case UpstreamRetry:
		o.upstreamRetries++
	case AnalysisCompleted:
		o.successfulAnalyses++
		o.totalProcessingTime += event.ProcessingTime
		if event.Result != nil {
			o.triageLevels[event.Result.TriageLevel]++
		}
	case AnalysisFailed:
		o.failedAnalyses++
		o.failuresByCode[event.ErrorCode]++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successfulAnalyses > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successfulAnalyses)
	}

	failures := make(map[string]int64, len(o.failuresByCode))
	for code, n := range o.failuresByCode {
		failures[code] = n
	}
	levels := make(map[string]int64, len(o.triageLevels))
	for level, n := range o.triageLevels {
		levels[level] = n
	}

	return map[string]interface{}{
		"total_analyses":         o.totalAnalyses,
		"successful_analyses":    o.successfulAnalyses,
		"failed_analyses":        o.failedAnalyses,
		"upstream_retries":       o.upstreamRetries,
		"failures_by_code":       failures,
		"triage_levels":          levels,
		"avg_processing_time_ms": avgProcessingTime.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	inflight  sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event AnalysisEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	// Notify observers concurrently
	for _, observer := range observers {
		p.inflight.Add(1)
		go func(obs Observer) {
			defer p.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					// Log panic but don't crash the application
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

// Wait blocks until every notification delivered so far has been handled
func (p *EventPublisher) Wait() {
	p.inflight.Wait()
}
