package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_StatusWithoutDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	controller := NewHealthController(nil, "test-version")
	router.GET("/health", controller.Status)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test-version", resp.Version)
	assert.Equal(t, "not configured", resp.Checks["database"])
}
