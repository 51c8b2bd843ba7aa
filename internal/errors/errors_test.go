package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"gooutlier/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("PORT is required")
	wrapped := Wrap(base, "failed to load server configuration")
	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.True(t, stderrors.Is(wrapped, base))
	assert.Equal(t, "failed to load server configuration: PORT is required", wrapped.Error())
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestFromDomain(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{core.NewCutoffError("missing NORMAL"), CodeConfigInvalid},
		{core.ErrNotConfigured, CodeConfigInvalid},
		{fmt.Errorf("fetch: %w", core.ErrInsufficientContext), CodeInsufficientData},
		{core.ErrInvalidPercentile, CodeInvalidInput},
		{stderrors.New("boom"), CodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := FromDomain(tc.err)
			assert.Equal(t, tc.code, GetCode(err))
			assert.True(t, stderrors.Is(err, tc.err))
		})
	}
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput("bad payload")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("outlier")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(DatabaseError("insert failed", stderrors.New("locked"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("boom")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(WithCode(CodeValidationError, stderrors.New("x"))))
}
