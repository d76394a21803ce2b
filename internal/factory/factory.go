package factory

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"go-rash-triage/internal/config"
	"go-rash-triage/internal/repository"
	"go-rash-triage/internal/storage"
	"go-rash-triage/internal/upstream"
)

// ModelFactory creates the vision model for a provider
type ModelFactory interface {
	CreateModel(cfg upstream.Config, opts ...upstream.Option) (upstream.VisionModel, error)
}

// RepositoryFactory creates record repositories. A nil repository with a
// nil error means retention is disabled.
type RepositoryFactory interface {
	CreateRepository(storageType string, azure config.AzureConfig) (repository.RecordRepository, error)
}

// modelFactory implements ModelFactory
type modelFactory struct{}

// NewModelFactory creates a new model factory
func NewModelFactory() ModelFactory {
	return &modelFactory{}
}

// CreateModel creates a model based on the configured provider
func (f *modelFactory) CreateModel(cfg upstream.Config, opts ...upstream.Option) (upstream.VisionModel, error) {
	switch cfg.Provider {
	case upstream.ProviderGemini:
		return upstream.NewGeminiModel(cfg, opts...)
	case upstream.ProviderOpenAI:
		return upstream.NewOpenAIModel(cfg, opts...)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// repositoryFactory implements RepositoryFactory
type repositoryFactory struct {
	logger *logrus.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(logger *logrus.Logger) RepositoryFactory {
	return &repositoryFactory{logger: logger}
}

// CreateRepository creates a record repository for the storage type
func (f *repositoryFactory) CreateRepository(storageType string, azure config.AzureConfig) (repository.RecordRepository, error) {
	switch storageType {
	case config.RecordStorageNone:
		return nil, nil
	case config.RecordStorageLog:
		return repository.NewLogRecordRepository(f.logger), nil
	case config.RecordStorageAzure:
		store, err := storage.NewAzureStorage(azure.Account, azure.Key, azure.Container)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure storage: %w", err)
		}
		return repository.NewBlobRecordRepository(store), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	ModelFactory      ModelFactory
	RepositoryFactory RepositoryFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(logger *logrus.Logger) *ComponentFactory {
	return &ComponentFactory{
		ModelFactory:      NewModelFactory(),
		RepositoryFactory: NewRepositoryFactory(logger),
	}
}
