package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveRoutingID(t *testing.T) {
	d := ModelDescriptor{ID: "anthropic.claude-3-5-sonnet", InferenceProfileID: "us.anthropic.claude-3-5-sonnet"}
	assert.Equal(t, "us.anthropic.claude-3-5-sonnet", d.EffectiveRoutingID(true))
	assert.Equal(t, "anthropic.claude-3-5-sonnet", d.EffectiveRoutingID(false))

	noProfile := ModelDescriptor{ID: "amazon.titan-text"}
	assert.Equal(t, "amazon.titan-text", noProfile.EffectiveRoutingID(true))
}

func TestRegisterExtra_MergesWithoutOverwritingFoundation(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	c.current.foundation["anthropic.claude-3-5-sonnet"] = ModelDescriptor{
		ID: "anthropic.claude-3-5-sonnet", InputModalities: []string{"TEXT"},
	}
	c.current.all["anthropic.claude-3-5-sonnet"] = c.current.foundation["anthropic.claude-3-5-sonnet"]

	c.RegisterExtra(ModelDescriptor{ID: "amazon.polly.joanna", Service: "polly", OutputModalities: []string{"AUDIO"}})

	_, err := c.Get("anthropic.claude-3-5-sonnet")
	require.NoError(t, err)
	_, err = c.Get("amazon.polly.joanna")
	require.NoError(t, err)
}

func TestGet_NotFound(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	_, err := c.Get("nonexistent")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestValidate_ModalityMismatchReturnsMatchingIDs(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	c.current.foundation["a"] = ModelDescriptor{ID: "a", InputModalities: []string{"TEXT"}}
	c.current.foundation["b"] = ModelDescriptor{ID: "b", InputModalities: []string{"TEXT", "IMAGE"}}
	c.current.all["a"] = c.current.foundation["a"]
	c.current.all["b"] = c.current.foundation["b"]
	indexModalities(c.current, c.current.foundation["a"])
	indexModalities(c.current, c.current.foundation["b"])

	_, _, err := c.Validate(t.Context(), "a", "image", "", false)
	require.Error(t, err)
	mm, ok := err.(*ErrModalityMismatch)
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, mm.MatchingIDs)
}

func TestCapabilitiesFor_KnownFamilies(t *testing.T) {
	assert.True(t, CapabilitiesFor("anthropic.claude-3-5-sonnet-20241022").Tools)
	assert.True(t, CapabilitiesFor("us.anthropic.claude-3-5-sonnet-20241022").Thinking)
	assert.False(t, CapabilitiesFor("deepseek.r1-v1").Tools)
	assert.True(t, CapabilitiesFor("meta.llama3-70b").Tools)
}

func TestArnToModelID(t *testing.T) {
	assert.Equal(t, "anthropic.claude-3-5-sonnet", arnToModelID("arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude-3-5-sonnet"))
	assert.Equal(t, "no-slash", arnToModelID("no-slash"))
}

func TestListForResponse_SortedByID(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	c.current.all["z"] = ModelDescriptor{ID: "z"}
	c.current.all["a"] = ModelDescriptor{ID: "a"}
	c.current.all["m"] = ModelDescriptor{ID: "m"}

	list := c.ListForResponse()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "m", "z"}, []string{list[0].ID, list[1].ID, list[2].ID})
}
