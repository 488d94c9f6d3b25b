package apierr

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelNotFound(t *testing.T) {
	e := ModelNotFound("anthropic.claude-bogus")
	assert.Equal(t, http.StatusNotFound, e.StatusCode)
	assert.Equal(t, TypeInvalidRequest, e.Envelope.Error.Type)
	code := e.Envelope.Error.Code
	assert.Equal(t, CodeModelNotFound, *code)
	assert.Equal(t, "model", *e.Envelope.Error.Param)
}

func TestUnsupportedParameter(t *testing.T) {
	e := UnsupportedParameter("top_k", "top_k is not supported by this model")
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Equal(t, "top_k", *e.Envelope.Error.Param)
	assert.Equal(t, CodeUnsupportedParameter, *e.Envelope.Error.Code)
}

func TestNew_NilPointersForEmptyParamCode(t *testing.T) {
	e := InvalidRequest("bad input")
	assert.Nil(t, e.Envelope.Error.Param)
	assert.Nil(t, e.Envelope.Error.Code)
}

func TestSanitized_HidesCauseFor401And403(t *testing.T) {
	e := FromProvider(ProviderAuth, "AccessDeniedException", "the real AWS reason nobody should see")
	env := e.Sanitized()
	assert.Equal(t, "Unauthorized", env.Error.Message)

	f := FromProvider(ProviderAccessDenied, "AccessDeniedException", "also hidden")
	env2 := f.Sanitized()
	assert.Equal(t, "Forbidden", env2.Error.Message)
}

func TestSanitized_LeavesOtherMessagesAlone(t *testing.T) {
	e := FromProvider(ProviderThrottle, "ThrottlingException", "rate exceeded")
	env := e.Sanitized()
	assert.Equal(t, "rate exceeded", env.Error.Message)
	assert.Equal(t, http.StatusTooManyRequests, e.StatusCode)
}

func TestFromProvider_LogLevels(t *testing.T) {
	warn := FromProvider(ProviderValidation, "", "bad")
	assert.Equal(t, "warning", warn.LogLevel)

	crit := FromProvider(ProviderUnavailable, "", "down")
	assert.Equal(t, "error", crit.LogLevel)
}
