package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"go-rash-triage/internal/analyzer"
	apperrors "go-rash-triage/internal/errors"
	"go-rash-triage/internal/logger"
	"go-rash-triage/internal/observer"
	"go-rash-triage/internal/retry"
	"go-rash-triage/internal/triage"
	"go-rash-triage/internal/upstream"
	"go-rash-triage/pkg/models"
)

// AnalyzeInput is one analysis request as received from a caller
type AnalyzeInput struct {
	analyzer.RawInput
	RequestID string
}

// PingResult is the answer to a connectivity probe. Parsed is nil when the
// model's text is not JSON.
type PingResult struct {
	Parsed interface{}
	Raw    string
}

// AnalysisService defines the request lifecycle: Built, Invoking, then
// Decoded or Failed. Callers only see the terminal state.
type AnalysisService interface {
	Analyze(ctx context.Context, input AnalyzeInput) (*models.AnalysisResult, error)
	Ping(ctx context.Context) (*PingResult, error)
}

// analysisService implements AnalysisService against a single VisionModel
type analysisService struct {
	builder analyzer.RequestBuilder
	decoder analyzer.ResponseDecoder
	model   upstream.VisionModel
	policy  retry.Policy
	events  observer.Subject
}

// NewAnalysisService creates a new analysis service. events may be nil.
func NewAnalysisService(
	builder analyzer.RequestBuilder,
	decoder analyzer.ResponseDecoder,
	model upstream.VisionModel,
	policy retry.Policy,
	events observer.Subject,
) AnalysisService {
	return &analysisService{
		builder: builder,
		decoder: decoder,
		model:   model,
		policy:  policy,
		events:  events,
	}
}

// Analyze validates input, calls the model with retries and decodes its
// answer. A panic in the pipeline is reported as a server_error failure.
func (s *analysisService) Analyze(ctx context.Context, input AnalyzeInput) (result *models.AnalysisResult, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			appErr := apperrors.NewInternalError("unexpected failure", fmt.Errorf("panic: %v", rec))
			s.fail(ctx, input.RequestID, nil, 0, start, appErr)
			result, err = nil, appErr
		}
	}()
	s.publish(ctx, observer.AnalysisEvent{EventType: observer.AnalysisStarted, RequestID: input.RequestID})

	req, err := s.builder.Build(input.RawInput)
	if err != nil {
		s.fail(ctx, input.RequestID, nil, 0, start, err)
		return nil, err
	}

	gen, err := req.GenerateRequest()
	if err != nil {
		appErr := apperrors.NewInternalError("failed to build upstream request", err)
		s.fail(ctx, input.RequestID, req, 0, start, appErr)
		return nil, appErr
	}

	logger.WithFields(logrus.Fields{
		"request_id":       input.RequestID,
		"provider":         s.model.Provider(),
		"model":            s.model.Name(),
		"effective_labels": triage.Strings(req.EffectiveLabels),
		"media_type":       req.Image.MediaType,
		"image_bytes":      req.Image.Size(),
	}).Debug("Analysis request built")

	raw, attempts, err := s.invoke(ctx, input.RequestID, gen)
	if err != nil {
		appErr := classifyUpstreamError(err)
		s.fail(ctx, input.RequestID, req, attempts, start, appErr)
		return nil, appErr
	}

	result, err = s.decoder.Decode(raw)
	if err != nil {
		s.fail(ctx, input.RequestID, req, attempts, start, err)
		return nil, err
	}

	if problems := triage.CheckConsistency(result); len(problems) > 0 {
		logger.WithFields(logrus.Fields{
			"request_id": input.RequestID,
			"problems":   problems,
		}).Warn("Model output is internally inconsistent")
	}

	pc := req.PatientContext
	s.publish(ctx, observer.AnalysisEvent{
		EventType:       observer.AnalysisCompleted,
		RequestID:       input.RequestID,
		ProcessingTime:  time.Since(start),
		Success:         true,
		Attempts:        attempts,
		EffectiveLabels: triage.Strings(req.EffectiveLabels),
		PatientContext:  &pc,
		Result:          result,
	})
	return result, nil
}

// Ping sends the smallest possible structured request through the same
// retry policy
func (s *analysisService) Ping(ctx context.Context) (*PingResult, error) {
	gen := &upstream.GenerateRequest{
		SystemInstruction: analyzer.PingInstruction,
		Text:              analyzer.PingText,
		Schema:            analyzer.PongSchema(),
	}

	raw, _, err := s.invoke(ctx, "", gen)
	if err != nil {
		return nil, classifyUpstreamError(err)
	}

	result := &PingResult{Raw: raw}
	if object, err := analyzer.ExtractObject(raw); err == nil {
		var parsed interface{}
		if json.Unmarshal(object, &parsed) == nil {
			result.Parsed = parsed
		}
	}
	return result, nil
}

// invoke runs one Generate call under the retry policy and reports how
// many attempts were made
func (s *analysisService) invoke(ctx context.Context, requestID string, gen *upstream.GenerateRequest) (string, int, error) {
	attempts := 0
	previous := s.policy.OnRetry
	policy := s.policy.WithRetryHook(func(attempt int, delay time.Duration, err error) {
		status, _ := retry.Status(err)
		s.publish(ctx, observer.AnalysisEvent{
			EventType:      observer.UpstreamRetry,
			RequestID:      requestID,
			Attempt:        attempt,
			Delay:          delay,
			UpstreamStatus: status,
			ErrorMessage:   err.Error(),
		})
		if previous != nil {
			previous(attempt, delay, err)
		}
	})

	raw, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		attempts++
		return s.model.Generate(ctx, gen)
	})
	return raw, attempts, err
}

func (s *analysisService) fail(ctx context.Context, requestID string, req *analyzer.AnalysisRequest, attempts int, start time.Time, err error) {
	event := observer.AnalysisEvent{
		EventType:      observer.AnalysisFailed,
		RequestID:      requestID,
		ProcessingTime: time.Since(start),
		Attempts:       attempts,
		ErrorCode:      apperrors.CodeServerError,
		ErrorMessage:   err.Error(),
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		event.ErrorCode = appErr.Code
		event.UpstreamStatus = appErr.UpstreamStatus
	}
	if req != nil {
		pc := req.PatientContext
		event.EffectiveLabels = triage.Strings(req.EffectiveLabels)
		event.PatientContext = &pc
	}
	s.publish(ctx, event)
}

func (s *analysisService) publish(ctx context.Context, event observer.AnalysisEvent) {
	if s.events == nil {
		return
	}
	event.Provider = s.model.Provider()
	event.Model = s.model.Name()
	s.events.NotifyObservers(ctx, event)
}

// classifyUpstreamError maps a failed upstream call onto the error taxonomy.
// Rate limits and 5xx that outlived the retries are transient; any other
// status, and failures without one, are permanent.
func classifyUpstreamError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	if status, ok := retry.Status(err); ok {
		if retry.Retryable(err) {
			return apperrors.NewTransientUpstreamError(status, err)
		}
		return apperrors.NewPermanentUpstreamError(status, err)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewPermanentUpstreamError(0, err).WithStatus(504)
	case errors.Is(err, context.Canceled):
		return apperrors.NewInternalError("request cancelled", err)
	default:
		return apperrors.NewPermanentUpstreamError(0, err)
	}
}
