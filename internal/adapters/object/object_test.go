package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/apperrors"
)

func TestBucketName(t *testing.T) {
	assert.Equal(t, "tenant-abc123", BucketName("abc123"))
}

func TestTenantOfBucket(t *testing.T) {
	tenant, ok := tenantOfBucket("tenant-abc123")
	require.True(t, ok)
	assert.Equal(t, "abc123", tenant)

	_, ok = tenantOfBucket("some-other-bucket")
	assert.False(t, ok)
}

func TestValidateBucket(t *testing.T) {
	assert.NoError(t, validateBucket(BucketName("t1"), "t1"))

	err := validateBucket(BucketName("t1"), "t2")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTenantIsolation, apperrors.KindOf(err))

	err = validateBucket("not-a-tenant-bucket", "t1")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTenantIsolation, apperrors.KindOf(err))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "documents/doc-1/versions/v1.bin", objectKey("doc-1", "v1"))
}
