package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vedran77/consult/internal/codec"
	"github.com/vedran77/consult/internal/service"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
		known  bool
	}{
		{service.ErrAccessDenied, http.StatusForbidden, CodeForbidden, true},
		{fmt.Errorf("x: %w", service.ErrChannelNotFound), http.StatusNotFound, CodeNotFound, true},
		{service.ErrChannelInactive, http.StatusConflict, CodeChannelInactive, true},
		{service.ErrAlreadyRated, http.StatusBadRequest, CodeAlreadyRated, true},
		{&service.ValidationError{Field: "content", Message: "required"}, http.StatusBadRequest, CodeValidation, true},
		{fmt.Errorf("decrypt: %w", codec.ErrCrypto), http.StatusInternalServerError, CodeInternal, false},
		{fmt.Errorf("append: %w: %w", service.ErrStorage, errors.New("conn refused")), http.StatusInternalServerError, CodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			e, ok := Classify(tt.err)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.known, ok)
			assert.NotContains(t, e.Message, "conn refused")
		})
	}
}
