package container

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"go-rash-triage/internal/analyzer"
	"go-rash-triage/internal/config"
	"go-rash-triage/internal/factory"
	"go-rash-triage/internal/logger"
	"go-rash-triage/internal/observer"
	"go-rash-triage/internal/service"
	"go-rash-triage/internal/transport"
	"go-rash-triage/internal/upstream"
	"go-rash-triage/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	model           upstream.VisionModel
	analysisService service.AnalysisService
	publisher       *observer.EventPublisher
	metrics         *observer.MetricsObserver
	handler         http.Handler
}

// NewContainer creates a new dependency injection container from the
// environment
func NewContainer() (*Container, error) {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewContainerWithConfig(cfg, factory.NewComponentFactory(logger.Logger))
}

// NewContainerWithConfig builds the dependency graph for cfg
func NewContainerWithConfig(cfg *config.Config, components *factory.ComponentFactory) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	options := analyzer.DefaultOptions()
	if cfg.SystemPromptFile != "" {
		instruction, err := os.ReadFile(cfg.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read system prompt: %w", err)
		}
		if strings.TrimSpace(string(instruction)) == "" {
			return nil, fmt.Errorf("system prompt file %s is empty", cfg.SystemPromptFile)
		}
		options = options.WithInstruction(string(instruction))
	}

	// Build dependency graph
	model, err := components.ModelFactory.CreateModel(cfg.UpstreamConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	repo, err := components.RepositoryFactory.CreateRepository(cfg.RecordStorage, cfg.Azure)
	if err != nil {
		return nil, fmt.Errorf("failed to create record repository: %w", err)
	}

	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)
	if repo != nil {
		publisher.Subscribe(observer.NewRecordingObserver(repo, logger.Logger))
	}

	builder := analyzer.NewRequestBuilder(options, validation.NewPatientContextValidator())
	analysisService := service.NewAnalysisService(builder, analyzer.NewResponseDecoder(), model, cfg.RetryPolicy(), publisher)
	handler := transport.NewHandler(analysisService, cfg, metrics)

	logger.WithFields(logrus.Fields{
		"provider":       model.Provider(),
		"model":          model.Name(),
		"record_storage": cfg.RecordStorage,
		"max_attempts":   cfg.Retry.MaxAttempts,
	}).Info("Container initialized")

	return &Container{
		config:          cfg,
		model:           model,
		analysisService: analysisService,
		publisher:       publisher,
		metrics:         metrics,
		handler:         handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the analysis service
func (c *Container) Service() service.AnalysisService {
	return c.analysisService
}

// Metrics returns the aggregated analysis counters
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Close waits for in-flight observer notifications such as record uploads
func (c *Container) Close() {
	c.publisher.Wait()
}
