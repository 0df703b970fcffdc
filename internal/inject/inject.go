// Package inject wires the photo gateway's services together.
package inject

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do"

	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/config"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/logging"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/photo"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/server"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/storage"
)

// Setup returns an injector that lazily builds the object store, gateway and
// server from cfg. Call Shutdown on it to release the store.
func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	log := logging.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue[*config.Config](injector, cfg)
	do.ProvideValue[*slog.Logger](injector, log)

	do.Provide[storage.ObjectStore](injector, func(i *do.Injector) (storage.ObjectStore, error) {
		return NewObjectStore(ctx, do.MustInvoke[*config.Config](i).Storage)
	})
	do.Provide[*photo.Gateway](injector, NewGateway)
	do.Provide[*server.Server](injector, func(i *do.Injector) (*server.Server, error) {
		return server.New(do.MustInvoke[*config.Config](i), do.MustInvoke[*photo.Gateway](i))
	})

	return injector
}

// NewGateway builds the photo gateway from the injected config and store.
func NewGateway(i *do.Injector) (*photo.Gateway, error) {
	cfg := do.MustInvoke[*config.Config](i)
	store, err := do.Invoke[storage.ObjectStore](i)
	if err != nil {
		return nil, err
	}
	return photo.NewGateway(store, photo.Options{
		Prefix:           cfg.Storage.Prefix,
		PublicHost:       cfg.Storage.PublicHost,
		StrictVisibility: cfg.Upload.StrictVisibility,
		ListConcurrency:  cfg.Listing.Concurrency,
	}), nil
}

// NewObjectStore creates the object store selected by cfg.Backend.
func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "gcp":
		return storage.NewGCPBackend(ctx, cfg.Bucket, cfg.GCPProject, cfg.CredentialsFile)
	case "aws":
		return storage.NewAWSBackend(ctx, cfg.Bucket, cfg.AWSRegion, cfg.AWSEndpoint, cfg.AWSUsePathStyle, cfg.AWSAccessKey, cfg.AWSSecretKey)
	case "azure":
		accountURL := cfg.AzureAccountURL
		if accountURL == "" && cfg.AzureAccount != "" {
			accountURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccount)
		}
		if accountURL == "" && cfg.AzureConnectionString == "" {
			return nil, fmt.Errorf("azure backend needs azure_account, azure_account_url or azure_connection_string")
		}
		return storage.NewAzureBackend(ctx, cfg.Bucket, accountURL, cfg.AzureConnectionString)
	case "sqlite":
		return storage.NewSQLiteBackend(cfg.SQLitePath, cfg.Bucket)
	case "local":
		local, err := storage.NewLocalBackend(cfg.LocalRoot, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		// Leftover temp files are incomplete writes from a previous crash.
		if err := local.CleanTempFiles(); err != nil {
			slog.Warn("Failed to clean temp files", "root", cfg.LocalRoot, "error", err)
		}
		return local, nil
	case "memory":
		return storage.NewMemoryBackend(cfg.Bucket, 0), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}
