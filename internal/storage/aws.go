// Package storage provides the AWS S3 backend for the photo gateway.
//
// Photos are written to a single upstream S3 bucket (or any S3-compatible
// endpoint such as MinIO) under the name the gateway chose. The visibility
// tag travels as S3 user metadata (x-amz-meta-visibility).
//
// Credentials are resolved via the standard AWS credential chain
// (env vars, ~/.aws/credentials, IAM role, etc.) unless static keys are
// configured.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API defines the subset of the AWS S3 client interface that the backend
// uses. This allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Presigner is the subset of *s3.PresignClient used to mint signed URLs.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// AWSBackend implements ObjectStore on an Amazon S3 bucket.
type AWSBackend struct {
	// BucketName is the upstream S3 bucket name.
	BucketName string
	// Region is the AWS region of the upstream bucket.
	Region string
	// Endpoint is the custom endpoint URL, empty for AWS itself.
	Endpoint string
	// client is the AWS S3 client (satisfying S3API interface).
	client S3API
	// presigner signs GET URLs. May be nil, in which case signing is
	// unsupported.
	presigner S3Presigner
}

// NewAWSBackend creates a new AWSBackend bound to the specified S3 bucket in
// the given region. It initializes the AWS SDK client using the default
// credential chain, with optional overrides for custom endpoint, path-style
// addressing, and static credentials.
func NewAWSBackend(ctx context.Context, bucket, region, endpointURL string, usePathStyle bool, accessKeyID, secretAccessKey string) (*AWSBackend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(region))

	// Use static credentials if provided, otherwise fall back to default chain.
	if accessKeyID != "" && secretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
		})
	}
	if usePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3Opts...)

	b := &AWSBackend{
		BucketName: bucket,
		Region:     region,
		Endpoint:   endpointURL,
		client:     client,
		presigner:  s3.NewPresignClient(client),
	}

	slog.Info("AWS storage backend initialized", "bucket", bucket, "region", region, "endpoint", endpointURL)
	return b, nil
}

// NewAWSBackendWithClient creates an AWSBackend with a pre-configured S3
// client and presigner. This is primarily used for testing with mock clients.
func NewAWSBackendWithClient(bucket, region, endpointURL string, client S3API, presigner S3Presigner) *AWSBackend {
	return &AWSBackend{
		BucketName: bucket,
		Region:     region,
		Endpoint:   endpointURL,
		client:     client,
		presigner:  presigner,
	}
}

// Bucket returns the S3 bucket name.
func (b *AWSBackend) Bucket() string {
	return b.BucketName
}

// PutObject uploads the object to S3. S3 needs a seekable body to sign the
// payload, so non-seekable readers are buffered first.
func (b *AWSBackend) PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error {
	body, ok := reader.(io.ReadSeeker)
	if !ok || size < 0 {
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("reading object data: %w", err)
		}
		body = bytes.NewReader(data)
		size = int64(len(data))
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.BucketName),
		Key:           aws.String(name),
		Body:          body,
		ContentLength: aws.Int64(size),
		Metadata:      copyMetadata(opts.Metadata),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("uploading to S3: %w", err)
	}
	return nil
}

// ListObjects lists all keys under prefix, following continuation tokens.
func (b *AWSBackend) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.BucketName),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var names []string
	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			names = append(names, aws.ToString(obj.Key))
		}
	}
	return names, nil
}

// StatObject issues a HeadObject for the key.
func (b *AWSBackend) StatObject(ctx context.Context, name string) (*ObjectInfo, error) {
	resp, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.BucketName),
		Key:    aws.String(name),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("heading S3 object: %w", err)
	}

	info := &ObjectInfo{
		Name:        name,
		ContentType: aws.ToString(resp.ContentType),
		Size:        aws.ToInt64(resp.ContentLength),
		Metadata:    resp.Metadata,
	}
	if resp.LastModified != nil {
		info.Updated = *resp.LastModified
	}
	return info, nil
}

// SignedURL presigns a GET request for the object. S3 caps SigV4 presigned
// URLs at seven days.
func (b *AWSBackend) SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	if b.presigner == nil {
		return "", ErrSigningUnsupported
	}
	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.BucketName),
		Key:    aws.String(name),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnsupported, err)
	}
	return req.URL, nil
}

// PublicHost returns the custom endpoint's host, or the regional S3 host.
func (b *AWSBackend) PublicHost() string {
	if b.Endpoint != "" {
		if u, err := url.Parse(b.Endpoint); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return "s3." + b.Region + ".amazonaws.com"
}

// HealthCheck verifies that the upstream bucket is accessible.
func (b *AWSBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.BucketName),
	})
	if err != nil {
		return fmt.Errorf("cannot access upstream S3 bucket %q: %w", b.BucketName, err)
	}
	return nil
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchKey error.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" || code == "NoSuchBucket" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	// HeadObject has no body, so a 404 may surface only as a status code.
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == 404 {
			return true
		}
	}
	return false
}

// Ensure AWSBackend implements ObjectStore at compile time.
var _ ObjectStore = (*AWSBackend)(nil)
