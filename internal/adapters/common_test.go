package adapters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/adapters"
	"github.com/ragforge/rag-mcp/internal/apperrors"
)

func TestRequireTenant_Matching(t *testing.T) {
	assert.NoError(t, adapters.RequireTenant("tenant-a", "tenant-a"))
}

func TestRequireTenant_Mismatch(t *testing.T) {
	err := adapters.RequireTenant("tenant-a", "tenant-b")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindTenantIsolation, appErr.Kind)
}
