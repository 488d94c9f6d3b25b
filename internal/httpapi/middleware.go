package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/credential"
	"github.com/relaybridge/bedrock-gateway/internal/obslog"
	"github.com/relaybridge/bedrock-gateway/internal/reqctx"
	"github.com/relaybridge/bedrock-gateway/internal/tracing"
)

const requestContextKey = "gateway.requestContext"

// authMiddleware verifies the Authorization bearer token against the
// credential store, per spec.md §4.1. A nil/disarmed store (no key source
// configured) lets every request through, matching spec.md's "auth is
// disabled when no credential source is configured" decision.
func authMiddleware(store *credential.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.New()
		c.Set(requestContextKey, rc)
		c.Header("x-request-id", rc.RequestID)

		if store != nil && !store.Verify(c.GetHeader("Authorization")) {
			writeError(c, apierr.New(401, apierr.TypeAuthentication, "", "", "Incorrect API key provided.").Sanitized(), 401)
			c.Abort()
			return
		}
		c.Next()
	}
}

// tracingMiddleware opens the request's distributed-tracing span, a no-op
// when otel is disabled (see internal/tracing). The span stays open across
// c.Next(), which gin does not return from until any streamed response body
// has been fully written, satisfying the "streaming-aware hook" requirement
// of spec.md §5 without any extra bookkeeping here.
func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := RequestContextFrom(c)
		ctx, span := tracing.StartRequestSpan(c.Request.Context(), c.Request.Method+" "+c.FullPath(), rc.RequestID)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		tracing.SetModel(span, rc.Model)
		tracing.SetStatus(span, c.Writer.Status(), "")
	}
}

// RequestContextFrom retrieves the per-request reqctx.RequestContext
// stamped by authMiddleware, for handlers to thread into the translation
// layers.
func RequestContextFrom(c *gin.Context) *reqctx.RequestContext {
	v, ok := c.Get(requestContextKey)
	if !ok {
		return reqctx.New()
	}
	rc, ok := v.(*reqctx.RequestContext)
	if !ok {
		return reqctx.New()
	}
	return rc
}

// requestLogger emits one obslog `request` (or `request_stream`) event per
// completed call, once the response has been fully written, per spec.md §7.
// logRequestParams/logClientIP gate the two opt-in verbosity knobs of
// spec.md §6 (log_request_params, log_client_ip) — off by default since
// request bodies and client IPs can carry sensitive data.
func requestLogger(logRequestParams, logClientIP bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var params map[string]any
		if logRequestParams && c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewReader(body))
				_ = json.Unmarshal(body, &params)
			}
		}

		c.Next()

		rc := RequestContextFrom(c)
		status := c.Writer.Status()
		lvl := obslog.LevelInfo
		switch {
		case status >= 500:
			lvl = obslog.LevelError
		case status >= 400:
			lvl = obslog.LevelWarning
		}

		clientIP := ""
		if logClientIP {
			clientIP = c.ClientIP()
		}

		if isStreamingResponse(c) {
			obslog.RequestStream(lvl, obslog.RequestStreamFields{
				RequestID:  rc.RequestID,
				Method:     c.Request.Method,
				Path:       c.FullPath(),
				ModelID:    rc.Model,
				StatusCode: status,
				Duration:   time.Since(start),
			})
			return
		}
		obslog.Request(lvl, obslog.RequestFields{
			RequestID:     rc.RequestID,
			Method:        c.Request.Method,
			Path:          c.FullPath(),
			ModelID:       rc.Model,
			StatusCode:    status,
			Duration:      time.Since(start),
			ClientIP:      clientIP,
			RequestParams: params,
		})
	}
}

func isStreamingResponse(c *gin.Context) bool {
	return strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")
}

// writeError writes the OpenAI error envelope with the given status,
// applying Sanitized() at the call site for 401/403 so handlers never leak
// provider-internal detail to the client.
func writeError(c *gin.Context, env apierr.Envelope, status int) {
	c.JSON(status, env)
}
