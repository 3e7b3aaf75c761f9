package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogStatuses(t *testing.T) {
	want := map[Code]int{
		CodeValidation:            http.StatusBadRequest,
		CodeEmptyCart:             http.StatusBadRequest,
		CodeInvalidShippingMethod: http.StatusBadRequest,
		CodeInvalidAddress:        http.StatusBadRequest,
		CodeSignatureInvalid:      http.StatusBadRequest,
		CodeUnauthorized:          http.StatusUnauthorized,
		CodeForbidden:             http.StatusForbidden,
		CodeNotFound:              http.StatusNotFound,
		CodeConflict:              http.StatusConflict,
		CodeInsufficientStock:     http.StatusConflict,
		CodeDuplicateOrderNumber:  http.StatusConflict,
		CodeIllegalTransition:     http.StatusUnprocessableEntity,
		CodeIdempotency:           http.StatusUnprocessableEntity,
		CodeRateLimit:             http.StatusTooManyRequests,
		CodePersistence:           http.StatusInternalServerError,
		CodeInternal:              http.StatusInternalServerError,
		CodeDependency:            http.StatusServiceUnavailable,
	}
	require.Len(t, catalog, len(want))
	for code, status := range want {
		assert.Equal(t, status, MetadataFor(code).HTTPStatus, string(code))
	}
}

func TestCatalogFlags(t *testing.T) {
	assert.True(t, MetadataFor(CodeDuplicateOrderNumber).Retryable)
	assert.False(t, MetadataFor(CodeConflict).Retryable)

	assert.True(t, MetadataFor(CodeInsufficientStock).DetailsAllowed)
	assert.True(t, MetadataFor(CodeIllegalTransition).DetailsAllowed)
	assert.False(t, MetadataFor(CodeUnauthorized).DetailsAllowed)

	// internal failures never leak their message
	assert.False(t, MetadataFor(CodeInternal).PassMessage)
	assert.False(t, MetadataFor(CodeSignatureInvalid).PassMessage)
	assert.True(t, MetadataFor(CodeNotFound).PassMessage)
}

func TestUnknownCodeFallsBackToInternal(t *testing.T) {
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: order missing", New(CodeNotFound, "order missing").Error())
	assert.Equal(t, "PERSISTENCE_FAILURE: save: disk full",
		Wrap(CodePersistence, stdErrors.New("disk full"), "save").Error())
	assert.Equal(t, "CONFLICT: no cause", Wrap(CodeConflict, nil, "no cause").Error())
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeConflict, cause, "ctx").WithDetails(map[string]any{"field": "foo"})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeConflict, err.Code())
	assert.Equal(t, "ctx", err.Message())
	assert.Equal(t, map[string]any{"field": "foo"}, err.Details())
}

func TestLookupThroughWrapping(t *testing.T) {
	err := fmt.Errorf("checkout: %w", New(CodeInsufficientStock, "Only 2 left in stock"))

	require.NotNil(t, As(err))
	assert.Equal(t, CodeInsufficientStock, CodeOf(err))
	assert.True(t, IsCode(err, CodeInsufficientStock))
	assert.False(t, IsCode(err, CodeConflict))

	assert.Nil(t, As(nil))
	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestNilErrorAccessors(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.Details())
	assert.Nil(t, e.WithDetails("x"))
	assert.NoError(t, e.Unwrap())
}
