package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/apperror"
	"erpdir/internal/infrastructure/http/v1/dto"
)

func newErrorRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), ErrorHandler())
	r.GET("/fail", func(c *gin.Context) { _ = c.Error(errors.New("db down")) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(apperror.NewNotFound("record", "x")) })
	return r
}

func get(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, dto.ErrorResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(HeaderRequestID, "req-42")
	req.Header.Set(HeaderTraceID, "trace-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestInternalErrorsCarryRequestIDs(t *testing.T) {
	r := newErrorRouter()
	for _, path := range []string{"/fail", "/panic"} {
		rec, body := get(t, r, path)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Equal(t, apperror.CodeInternal, body.Code, path)
		assert.Equal(t, "req-42", body.Details["request_id"], path)
		assert.Equal(t, "trace-42", body.Details["trace_id"], path)
		assert.NotContains(t, rec.Body.String(), "db down")
	}
}

func TestAppErrorsKeepTheirStatus(t *testing.T) {
	rec, body := get(t, newErrorRouter(), "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEqual(t, apperror.CodeInternal, body.Code)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
}
