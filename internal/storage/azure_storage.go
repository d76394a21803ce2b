package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// BlobStore writes small objects to a blob container
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type azureStorage struct {
	client    *azblob.Client
	container string
}

// NewAzureStorage creates a BlobStore on the account's blob endpoint
func NewAzureStorage(accountName, accountKey, container string) (BlobStore, error) {
	return NewAzureStorageWithURL(fmt.Sprintf("https://%s.blob.core.windows.net", accountName), accountName, accountKey, container)
}

// NewAzureStorageWithURL creates a BlobStore on an explicit service URL,
// e.g. a local emulator
func NewAzureStorageWithURL(serviceURL, accountName, accountKey, container string) (BlobStore, error) {
	if strings.TrimSpace(accountName) == "" || strings.TrimSpace(accountKey) == "" {
		return nil, fmt.Errorf("azure storage: account name and key are required")
	}
	if strings.TrimSpace(container) == "" {
		return nil, fmt.Errorf("azure storage: container is required")
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure storage: credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("azure storage: client: %w", err)
	}

	return &azureStorage{client: client, container: container}, nil
}

func (s *azureStorage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}

	if _, err := s.client.UploadBuffer(ctx, s.container, key, data, opts); err != nil {
		return fmt.Errorf("upload %s/%s failed: %w", s.container, key, err)
	}
	return nil
}
