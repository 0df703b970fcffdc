// Package storage provides the Azure Blob Storage backend for the photo
// gateway.
//
// Photos are written as block blobs into a single container under the name
// the gateway chose. The visibility tag is stored as blob metadata; Azure
// may return metadata keys with different casing, which ObjectInfo
// lookups tolerate.
//
// Credentials come from a connection string when configured (required for
// SAS signing), otherwise from DefaultAzureCredential (env vars, managed
// identity, Azure CLI, etc.).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client interface
// that the backend uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// ServiceURL returns the account's blob service URL.
	ServiceURL() string
	// UploadBlob streams body into a block blob, overwriting if it exists.
	UploadBlob(ctx context.Context, containerName, blobName string, body io.Reader, contentType string, metadata map[string]string) error
	// ListBlobs lists blob names in the container with the given prefix.
	ListBlobs(ctx context.Context, containerName, prefix string) ([]string, error)
	// GetBlobProperties retrieves the blob's system properties and metadata.
	GetBlobProperties(ctx context.Context, containerName, blobName string) (*AzureBlobProperties, error)
	// BlobSASURL returns a read-only SAS URL for the blob. Requires a
	// shared key credential.
	BlobSASURL(containerName, blobName string, expiry time.Time) (string, error)
	// ContainerExists returns nil if the container is reachable.
	ContainerExists(ctx context.Context, containerName string) error
}

// AzureBlobProperties is the blob property subset the backend reads.
type AzureBlobProperties struct {
	ContentType  string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// AzureBackend implements ObjectStore on an Azure Blob Storage container.
type AzureBackend struct {
	// Container is the Azure Blob container name.
	Container string
	// AccountURL is the Azure storage account URL (e.g. https://account.blob.core.windows.net).
	AccountURL string
	// client is the Azure Blob client (satisfying AzureBlobAPI interface).
	client AzureBlobAPI
	// now is the clock used for SAS expiry.
	now func() time.Time
}

// NewAzureBackend creates a new AzureBackend bound to the specified
// container. accountURL may be empty when a connection string is given; the
// service URL is then taken from the client.
func NewAzureBackend(ctx context.Context, container, accountURL, connectionString string) (*AzureBackend, error) {
	client, err := newRealAzureClient(accountURL, connectionString)
	if err != nil {
		return nil, fmt.Errorf("creating Azure client: %w", err)
	}

	if accountURL == "" {
		accountURL = client.ServiceURL()
	}

	b := &AzureBackend{
		Container:  container,
		AccountURL: accountURL,
		client:     client,
		now:        time.Now,
	}

	slog.Info("Azure storage backend initialized", "container", container, "account", accountURL)
	return b, nil
}

// NewAzureBackendWithClient creates an AzureBackend with a pre-configured
// Azure client. This is primarily used for testing with mock clients.
func NewAzureBackendWithClient(container, accountURL string, client AzureBlobAPI) *AzureBackend {
	return &AzureBackend{
		Container:  container,
		AccountURL: accountURL,
		client:     client,
		now:        time.Now,
	}
}

// Bucket returns the container name.
func (b *AzureBackend) Bucket() string {
	return b.Container
}

// PutObject streams the object into a block blob.
func (b *AzureBackend) PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error {
	if err := b.client.UploadBlob(ctx, b.Container, name, reader, opts.ContentType, opts.Metadata); err != nil {
		return fmt.Errorf("uploading to Azure: %w", err)
	}
	return nil
}

// ListObjects lists blob names under prefix.
func (b *AzureBackend) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	names, err := b.client.ListBlobs(ctx, b.Container, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing Azure blobs: %w", err)
	}
	return names, nil
}

// StatObject fetches blob properties and metadata.
func (b *AzureBackend) StatObject(ctx context.Context, name string) (*ObjectInfo, error) {
	props, err := b.client.GetBlobProperties(ctx, b.Container, name)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("getting Azure blob properties: %w", err)
	}
	return &ObjectInfo{
		Name:        name,
		ContentType: props.ContentType,
		Size:        props.Size,
		Updated:     props.LastModified,
		Metadata:    props.Metadata,
	}, nil
}

// SignedURL returns a read-only SAS URL. Only shared key (connection
// string) credentials can sign.
func (b *AzureBackend) SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	u, err := b.client.BlobSASURL(b.Container, name, b.now().Add(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnsupported, err)
	}
	return u, nil
}

// PublicHost returns the storage account host.
func (b *AzureBackend) PublicHost() string {
	u, err := url.Parse(b.AccountURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(b.AccountURL, "/")
	}
	return u.Host
}

// HealthCheck verifies that the container is accessible.
func (b *AzureBackend) HealthCheck(ctx context.Context) error {
	if err := b.client.ContainerExists(ctx, b.Container); err != nil {
		return fmt.Errorf("cannot access Azure container %q: %w", b.Container, err)
	}
	return nil
}

// isAzureNotFound checks if an Azure error is a 404/not-found error.
func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "blobnotfound") || strings.Contains(msg, "containernotfound") ||
		strings.Contains(msg, "the specified blob does not exist") ||
		strings.Contains(msg, "the specified container does not exist") {
		return true
	}
	return false
}

// Ensure AzureBackend implements ObjectStore at compile time.
var _ ObjectStore = (*AzureBackend)(nil)
