package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-rash-triage/internal/analyzer"
	"go-rash-triage/internal/config"
	apperrors "go-rash-triage/internal/errors"
	"go-rash-triage/internal/logger"
	"go-rash-triage/internal/service"
	"go-rash-triage/pkg/models"
)

// Version is reported by /health
var Version = "1.0.0"

// MetricsSource exposes aggregated counters for /api/debug
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

func NewHandler(svc service.AnalysisService, cfg *config.Config, metrics MetricsSource) http.Handler {
	r := gin.New()

	// Add middleware
	r.Use(
		requestID(),
		requestLogger(),
		gin.CustomRecovery(recoverPanic),
		cors(cfg.CORSAllowedOrigin),
		requestSizeLimiter(cfg.MaxRequestBodySize),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	api := r.Group("/api")
	api.POST("/analyze", analyzePhoto(svc, cfg))
	api.POST("/ping", ping(svc, cfg))
	api.GET("/debug", debug(cfg, metrics))

	return r
}

func analyzePhoto(svc service.AnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		img, err := readPhoto(c)
		if err != nil {
			respondError(c, err)
			return
		}

		input := service.AnalyzeInput{
			RequestID: c.GetString(requestIDKey),
			RawInput: analyzer.RawInput{
				Image:              img,
				Diseases:           c.PostFormArray("diseases"),
				PatientContextJSON: c.PostForm("patient_context"),
			},
		}

		result, err := svc.Analyze(ctx, input)
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id":   input.RequestID,
			"top":          result.Top,
			"triage_level": result.TriageLevel,
			"confidence":   result.Confidence,
		}).Info("Rash photo analysis completed")

		c.Data(http.StatusOK, "application/json; charset=utf-8", result.Raw)
	}
}

// readPhoto returns the uploaded "photo" part, or nil when the form has none
func readPhoto(c *gin.Context) (*analyzer.Image, error) {
	fh, err := c.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.NewValidationError(apperrors.CodeImageTooLarge, "request body too large", err).
				WithStatus(http.StatusRequestEntityTooLarge)
		}
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"reason":     err.Error(),
		}).Debug("No photo in request")
		return nil, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to open uploaded photo", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read uploaded photo", err)
	}

	return &analyzer.Image{
		Data:      data,
		MediaType: fh.Header.Get("Content-Type"),
		Filename:  fh.Filename,
	}, nil
}

func ping(svc service.AnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		result, err := svc.Ping(ctx)
		if err != nil {
			status := http.StatusInternalServerError
			detail := err.Error()
			if appErr, ok := apperrors.AsAppError(err); ok {
				if appErr.UpstreamStatus != 0 {
					status = appErr.UpstreamStatus
				}
				detail = errorDetail(appErr)
			}

			logger.WithError(err).WithFields(logrus.Fields{
				"request_id":  c.GetString(requestIDKey),
				"status_code": status,
			}).Error("Ping failed")

			c.AbortWithStatusJSON(status, models.PingFailure{OK: false, Status: status, Detail: detail})
			return
		}

		resp := models.PingResponse{OK: true, Parsed: result.Parsed}
		if result.Raw != "" {
			raw := result.Raw
			resp.Raw = &raw
		}
		c.JSON(http.StatusOK, resp)
	}
}

func debug(cfg *config.Config, metrics MetricsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := cfg.ActiveProvider()
		cwd, _ := os.Getwd()

		resp := models.DebugResponse{
			OK:         true,
			Server:     "up",
			Provider:   cfg.Provider,
			Model:      active.Model,
			KeyPresent: active.APIKey != "",
			KeyMasked:  maskKey(active.APIKey),
			Cwd:        cwd,
		}
		if metrics != nil {
			resp.Metrics = metrics.GetMetrics()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "available",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// maskKey keeps the first 7 and last 4 characters
func maskKey(key string) *string {
	if key == "" {
		return nil
	}
	head, tail := key, key
	if len(key) > 7 {
		head = key[:7]
	}
	if len(key) > 4 {
		tail = key[len(key)-4:]
	}
	masked := head + "..." + tail
	return &masked
}

// recoverPanic answers a panic with the typed server_error body
func recoverPanic(c *gin.Context, rec any) {
	respondError(c, apperrors.NewInternalError("unexpected failure", fmt.Errorf("panic: %v", rec)))
}

func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.NewInternalError("unexpected failure", err)
	}

	body := models.ErrorResponse{
		Error:   appErr.Code,
		Detail:  errorDetail(appErr),
		Details: appErr.Details,
		Raw:     appErr.Raw,
	}
	if appErr.Code == apperrors.CodeUpstreamError {
		body.Status = appErr.UpstreamStatus
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"request_id":  c.GetString(requestIDKey),
		"error_code":  appErr.Code,
		"status_code": appErr.StatusCode,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(appErr.StatusCode, body)
}

// errorDetail adds the cause for failures the client cannot fix itself
func errorDetail(appErr *apperrors.AppError) string {
	switch appErr.Type {
	case apperrors.ErrorTypeTransientUpstream, apperrors.ErrorTypePermanentUpstream, apperrors.ErrorTypeInternal:
		if appErr.Cause != nil {
			return appErr.Message + ": " + appErr.Cause.Error()
		}
	}
	return appErr.Message
}
