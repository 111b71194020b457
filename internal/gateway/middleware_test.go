package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/chart-studio/internal/auth"
	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

func TestRequestLogger(t *testing.T) {
	require.NoError(t, logger.Init("info", "json"))
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(auth.UserIDKey, "user-7") }, RequestLogger())
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "/missing", entry["path"])
	assert.Equal(t, float64(404), entry["status"])
	assert.Equal(t, "user-7", entry["user_id"])
}
