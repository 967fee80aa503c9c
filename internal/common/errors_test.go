package common_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-erp/internal/common"
)

func TestAppErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("row not found")
	appErr := common.NotFoundError("order not found", cause)

	require.True(t, common.IsAppError(appErr))
	require.ErrorIs(t, appErr, cause)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestAsAppErrorDefaultsToInternal(t *testing.T) {
	t.Parallel()

	plain := errors.New("boom")
	appErr := common.AsAppError(plain)
	require.Equal(t, common.CodeInternal, appErr.Code)
	require.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)

	wrapped := common.ValidationError("bad qty", nil)
	require.Same(t, wrapped, common.AsAppError(wrapped))
}

func TestImmutableStateDistinctFromValidation(t *testing.T) {
	t.Parallel()

	imm := common.ImmutableStateError("shipment already shipped", nil)
	val := common.ValidationError("quantity exceeds availability", nil)

	require.Equal(t, imm.HTTPStatus, val.HTTPStatus)
	require.NotEqual(t, imm.Code, val.Code)
}
