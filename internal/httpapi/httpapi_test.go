package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestResponseHeaders_StampsFixedHeadersAndEchoesOrg(t *testing.T) {
	r := gin.New()
	r.Use(responseHeaders())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("openai-organization", "org-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "bedrock-gateway", w.Header().Get("server"))
	assert.Equal(t, "2020-10-01", w.Header().Get("openai-version"))
	assert.Equal(t, "org-123", w.Header().Get("openai-organization"))
	assert.NotEmpty(t, w.Header().Get("openai-processing-ms"))
}

func TestResponseHeaders_OmitsOrgHeaderWhenAbsent(t *testing.T) {
	r := gin.New()
	r.Use(responseHeaders())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("openai-organization"))
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "0", formatMillis(500*time.Microsecond))
	assert.Equal(t, "12", formatMillis(12*time.Millisecond))
}

func TestWriteAPIErr_UsesStatusAndSanitizedEnvelopeForWithStatus(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeAPIErr(c, apierr.New(429, apierr.TypeRateLimit, "rate_limited", "", "slow down"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "slow down")
}

func TestWriteAPIErr_WrapsPlainErrorsAs500(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeAPIErr(c, assertErr("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWriteCatalogErr_ModalityMismatchIsBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeCatalogErr(c, "some-model", &catalog.ErrModalityMismatch{
		Modality: "audio", MatchingIDs: []string{"a", "b"},
	}, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "audio")
}

func TestWriteCatalogErr_NotFoundAppendsDeprecationHint(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeCatalogErr(c, "old-model", catalog.ErrModelNotFound, "use new-model instead")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "use new-model instead")
}

func TestIsStreamingResponse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	assert.False(t, isStreamingResponse(c))

	c.Header("Content-Type", "text/event-stream")
	assert.True(t, isStreamingResponse(c))
}

func TestRequestContextFrom_FallsBackToFreshContext(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	rc := RequestContextFrom(c)
	require.NotNil(t, rc)
	assert.NotEmpty(t, rc.RequestID)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
