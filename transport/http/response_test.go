package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	kerrors "github.com/kochabx/kais/errors"
)

func TestGinJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		data any
		want string
	}{
		{"string data", "test data", `{"code":200,"msg":"success","data":"test data"}`},
		{"map data", map[string]string{"key": "value"}, `{"code":200,"msg":"success","data":{"key":"value"}}`},
		{"nil data", nil, `{"code":200,"msg":"success"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			GinJSON(c, tt.data)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestGinJSONE(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		code       int
		data       any
		wantStatus int
		want       string
	}{
		{"structured error", 401, kerrors.SessionExpired("session expired"), 401, `{"code":401,"msg":"session expired"}`},
		{"plain error", 503, errors.New("boom"), 503, `{"code":503,"msg":"boom"}`},
		{"string", 400, "invalid parameters", 400, `{"code":400,"msg":"invalid parameters"}`},
		{"nil", 500, nil, 500, `{"code":500,"msg":"operation failed"}`},
		{"data", 409, map[string]int{"id": 1}, 409, `{"code":409,"data":{"id":1}}`},
		{"business code", 10001, "custom", 500, `{"code":10001,"msg":"custom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			GinJSONE(c, tt.code, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestGinJSONNilContext(t *testing.T) {
	assert.NotPanics(t, func() {
		GinJSON(nil, "x")
		GinJSONE(nil, 400, "x")
	})
}
