package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/logvault/internal/errors"
)

func TestHandleErrorGin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{"not found", apperrors.Wrap(apperrors.ErrNotFound, "log not found"), http.StatusNotFound, "not_found"},
		{"conflict", apperrors.Wrap(apperrors.ErrConflict, "rotation in progress"), http.StatusConflict, "conflict"},
		{"invalid input", apperrors.Wrap(apperrors.ErrInvalidInput, "bad share"), http.StatusUnprocessableEntity, "invalid_input"},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", apperrors.Wrap(apperrors.ErrForbidden, "access denied"), http.StatusForbidden, "forbidden"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			HandleErrorGin(c, tt.err, nil)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Contains(t, w.Body.String(), `"error":"`+tt.expectedErr+`"`)
		})
	}

	t.Run("internal errors are masked", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		HandleErrorGin(c, errors.New("secret detail"), nil)

		assert.NotContains(t, w.Body.String(), "secret detail")
	})

	t.Run("conflict carries domain message", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		HandleErrorGin(c, apperrors.Wrap(apperrors.ErrConflict, "rotation in progress"), nil)

		assert.Contains(t, w.Body.String(), "rotation in progress")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		HandleErrorGin(c, nil, nil)

		assert.Empty(t, w.Body.String())
	})
}

func TestHandleBadRequestGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleBadRequestGin(c, errors.New("invalid json"), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad_request","message":"invalid json"}`, w.Body.String())
}

func TestHandleValidationErrorGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleValidationErrorGin(c, errors.New("reason: cannot be blank"), nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"validation_error","message":"reason: cannot be blank"}`, w.Body.String())
}
