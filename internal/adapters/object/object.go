// Package object implements the tenant-scoped object store adapter
// over an S3/MinIO-compatible backend, grounded on the teacher's
// internal/aws S3 client wrapper. Each tenant owns a distinct bucket
// named tenant-{tenant_id}, created on first use, rather than a single
// shared bucket with a key prefix.
package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ragforge/rag-mcp/internal/adapters"
	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/config"
)

const bucketPrefix = "tenant-"

// Store is the tenant-scoped object adapter. Every tenant resolves to
// its own bucket; Store caches which buckets are known to already
// exist so a hot path doesn't re-issue CreateBucket on every call.
type Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	region     string

	mu      sync.Mutex
	ensured map[string]bool
}

// New constructs a Store backed by cfg. When cfg.Endpoint is set (for
// MinIO or a local S3-compatible test server) it is used instead of the
// default AWS endpoint resolution.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("object: load aws config: %w", err)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey}, nil
		})
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		region:     cfg.Region,
		ensured:    make(map[string]bool),
	}, nil
}

// BucketName returns the tenant-owned bucket name, "tenant-{tenantID}".
func BucketName(tenantID string) string {
	return bucketPrefix + tenantID
}

// tenantOfBucket extracts the tenant embedded in a bucket name, for the
// defense-in-depth prefix validation in validateBucket.
func tenantOfBucket(bucket string) (string, bool) {
	if !strings.HasPrefix(bucket, bucketPrefix) {
		return "", false
	}
	return strings.TrimPrefix(bucket, bucketPrefix), true
}

// validateBucket is the object adapter's defense-in-depth check: it
// confirms a bucket embeds the caller's tenant, via the shared
// adapters.RequireTenant helper. GetDocumentVersion and GetObjectByKey
// call it; the put, list and delete methods do not.
func validateBucket(bucket, tenantID string) error {
	embedded, ok := tenantOfBucket(bucket)
	if !ok {
		return apperrors.TenantIsolation(fmt.Sprintf("object bucket %q has no tenant prefix", bucket))
	}
	return adapters.RequireTenant(tenantID, embedded)
}

func objectKey(documentID, versionID string) string {
	return fmt.Sprintf("documents/%s/versions/%s.bin", documentID, versionID)
}

// ensureBucket resolves tenantID's bucket, creating it on demand.
// Bucket-already-exists responses from a concurrent creator are
// treated as success.
func (s *Store) ensureBucket(ctx context.Context, tenantID string) (string, error) {
	bucket := BucketName(tenantID)

	s.mu.Lock()
	known := s.ensured[bucket]
	s.mu.Unlock()
	if known {
		return bucket, nil
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		s.mu.Lock()
		s.ensured[bucket] = true
		s.mu.Unlock()
		return bucket, nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	_, err = s.client.CreateBucket(ctx, input)
	var alreadyOwned *types.BucketAlreadyOwnedByYou
	var alreadyExists *types.BucketAlreadyExists
	if err != nil && !errors.As(err, &alreadyOwned) && !errors.As(err, &alreadyExists) {
		return "", apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-009", fmt.Errorf("object: create bucket %s: %w", bucket, err))
	}

	s.mu.Lock()
	s.ensured[bucket] = true
	s.mu.Unlock()
	return bucket, nil
}

// PutDocumentVersion uploads the raw content for one document version.
func (s *Store) PutDocumentVersion(ctx context.Context, tenantID, documentID, versionID string, content []byte) error {
	if len(content) == 0 {
		return apperrors.Validation("content", "document content must not be empty")
	}
	bucket, err := s.ensureBucket(ctx, tenantID)
	if err != nil {
		return err
	}
	key := objectKey(documentID, versionID)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-001", fmt.Errorf("object: put %s/%s: %w", bucket, key, err))
	}
	return nil
}

// GetDocumentVersion downloads the raw content for one document version.
func (s *Store) GetDocumentVersion(ctx context.Context, tenantID, documentID, versionID string) ([]byte, error) {
	bucket := BucketName(tenantID)
	if err := validateBucket(bucket, tenantID); err != nil {
		return nil, err
	}
	key := objectKey(documentID, versionID)
	buf := manager.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, "FR-OBJECT-002", fmt.Errorf("object: get %s/%s: %w", bucket, key, err))
	}
	return buf.Bytes(), nil
}

// DeleteDocumentVersion removes one version's object, used by hard
// tenant deletion's destructive-operation path.
func (s *Store) DeleteDocumentVersion(ctx context.Context, tenantID, documentID, versionID string) error {
	bucket := BucketName(tenantID)
	key := objectKey(documentID, versionID)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-003", fmt.Errorf("object: delete %s/%s: %w", bucket, key, err))
	}
	return nil
}

// ListDocumentObjects lists every stored object key for documentID
// within tenantID, used by backup and tenant deletion.
func (s *Store) ListDocumentObjects(ctx context.Context, tenantID, documentID string) ([]string, error) {
	prefix := fmt.Sprintf("documents/%s/", documentID)
	return s.listPrefix(ctx, tenantID, prefix)
}

// ListTenantObjects lists every object key under a tenant's bucket,
// used by backup/export and tenant deletion.
func (s *Store) ListTenantObjects(ctx context.Context, tenantID string) ([]string, error) {
	return s.listPrefix(ctx, tenantID, "")
}

func (s *Store) listPrefix(ctx context.Context, tenantID, prefix string) ([]string, error) {
	bucket := BucketName(tenantID)
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-004", fmt.Errorf("object: list %s/%s: %w", bucket, prefix, err))
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// GetObjectByKey downloads a raw key as listed by ListTenantObjects,
// used by rag_backup_tenant_data which works from listed keys rather
// than reconstructed (documentID, versionID) tuples.
func (s *Store) GetObjectByKey(ctx context.Context, tenantID, key string) ([]byte, error) {
	bucket := BucketName(tenantID)
	if err := validateBucket(bucket, tenantID); err != nil {
		return nil, err
	}
	buf := manager.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, "FR-OBJECT-006", fmt.Errorf("object: get %s/%s: %w", bucket, key, err))
	}
	return buf.Bytes(), nil
}

// PutObjectByKey uploads raw content under a literal key within
// tenantID's bucket, the restore counterpart to GetObjectByKey.
func (s *Store) PutObjectByKey(ctx context.Context, tenantID, key string, content []byte) error {
	bucket, err := s.ensureBucket(ctx, tenantID)
	if err != nil {
		return err
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-007", fmt.Errorf("object: put %s/%s: %w", bucket, key, err))
	}
	return nil
}

// DeleteObjectByKey removes a raw key as listed by ListTenantObjects,
// the hard-deletion counterpart to GetObjectByKey.
func (s *Store) DeleteObjectByKey(ctx context.Context, tenantID, key string) error {
	bucket := BucketName(tenantID)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-008", fmt.Errorf("object: delete %s/%s: %w", bucket, key, err))
	}
	return nil
}

// DeleteTenantBucket removes the tenant's entire bucket, used by hard
// tenant deletion once every object inside has been removed.
func (s *Store) DeleteTenantBucket(ctx context.Context, tenantID string) error {
	bucket := BucketName(tenantID)
	if _, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-010", fmt.Errorf("object: delete bucket %s: %w", bucket, err))
	}
	s.mu.Lock()
	delete(s.ensured, bucket)
	s.mu.Unlock()
	return nil
}

// HealthCheck confirms the S3-compatible endpoint is reachable by
// listing buckets, used by rag_get_system_health (the object store has
// no single tenant in that context).
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-005", fmt.Errorf("object: list buckets: %w", err))
	}
	return nil
}

// TenantHealthCheck confirms tenantID's own bucket is reachable, used
// by rag_get_tenant_health.
func (s *Store) TenantHealthCheck(ctx context.Context, tenantID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	bucket := BucketName(tenantID)
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-OBJECT-005", fmt.Errorf("object: head bucket %s: %w", bucket, err))
	}
	return nil
}
