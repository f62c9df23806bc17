package apperrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragforge/rag-mcp/internal/apperrors"
)

func TestHTTPStatus_MapsEveryKind(t *testing.T) {
	cases := map[apperrors.Kind]int{
		apperrors.KindValidation:      400,
		apperrors.KindAuthentication:  401,
		apperrors.KindAuthorization:   403,
		apperrors.KindTenantIsolation: 403,
		apperrors.KindNotFound:        404,
		apperrors.KindConflict:        409,
		apperrors.KindRateLimited:     429,
		apperrors.KindTransient:       503,
		apperrors.KindInternal:        500,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), "kind %s", kind)
	}
}

func TestValidation_SetsFieldAndKind(t *testing.T) {
	err := apperrors.Validation("query", "must not be empty")
	assert.Equal(t, apperrors.KindValidation, err.Kind)
	assert.Equal(t, "query", err.Field)
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := apperrors.Wrap(apperrors.KindTransient, "FR-TEST-001", cause)
	assert.Equal(t, apperrors.KindTransient, wrapped.Kind)
	assert.True(t, errors.Is(wrapped, cause))
}

func TestAs_ExtractsTypedError(t *testing.T) {
	err := apperrors.NotFound("missing")
	var wrapped error = err
	got, ok := apperrors.As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, apperrors.KindNotFound, got.Kind)
}

func TestAs_FalseForPlainError(t *testing.T) {
	_, ok := apperrors.As(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOf_DefaultsToInternalForPlainError(t *testing.T) {
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(errors.New("plain")))
}

func TestKindOf_ExtractsFromTypedError(t *testing.T) {
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(apperrors.Authorization("nope")))
}

func TestWithField_DoesNotMutateOriginal(t *testing.T) {
	base := apperrors.New(apperrors.KindValidation, "FR-TEST-002", "bad")
	withField := base.WithField("arg")
	assert.Empty(t, base.Field)
	assert.Equal(t, "arg", withField.Field)
}
