package chat

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

func TestFinishReasonFor(t *testing.T) {
	assert.Equal(t, "length", FinishReasonFor(types.StopReasonMaxTokens, false))
	assert.Equal(t, "content_filter", FinishReasonFor(types.StopReasonContentFiltered, false))
	assert.Equal(t, "content_filter", FinishReasonFor(types.StopReasonGuardrailIntervened, false))
	assert.Equal(t, "tool_calls", FinishReasonFor(types.StopReasonToolUse, false))
	assert.Equal(t, "function_call", FinishReasonFor(types.StopReasonToolUse, true))
	assert.Equal(t, "stop", FinishReasonFor(types.StopReasonEndTurn, false))
}

func TestServiceTierFor(t *testing.T) {
	optimized, echoed := ServiceTierFor("priority")
	assert.True(t, optimized)
	assert.Equal(t, "priority", echoed)

	optimized, echoed = ServiceTierFor("default")
	assert.False(t, optimized)
	assert.Equal(t, "default", echoed)

	optimized, echoed = ServiceTierFor("")
	assert.False(t, optimized)
	assert.Equal(t, "default", echoed)
}

func TestDecodeStop(t *testing.T) {
	assert.Equal(t, []string{"END"}, decodeStop(json.RawMessage(`"END"`)))
	assert.Equal(t, []string{"A", "B"}, decodeStop(json.RawMessage(`["A","B"]`)))
	assert.Nil(t, decodeStop(nil))
	assert.Nil(t, decodeStop(json.RawMessage(`""`)))
}

func TestBuildToolChoice(t *testing.T) {
	choice, err := buildToolChoice(json.RawMessage(`"auto"`))
	require.NoError(t, err)
	_, ok := choice.(*types.ToolChoiceMemberAuto)
	assert.True(t, ok)

	choice, err = buildToolChoice(json.RawMessage(`"required"`))
	require.NoError(t, err)
	_, ok = choice.(*types.ToolChoiceMemberAny)
	assert.True(t, ok)

	_, err = buildToolChoice(json.RawMessage(`"none"`))
	assert.Error(t, err)

	choice, err = buildToolChoice(json.RawMessage(`{"type":"function","function":{"name":"get_weather"}}`))
	require.NoError(t, err)
	tc, ok := choice.(*types.ToolChoiceMemberTool)
	require.True(t, ok)
	assert.Equal(t, "get_weather", *tc.Value.Name)
}

func TestBuildToolChoice_Empty(t *testing.T) {
	choice, err := buildToolChoice(nil)
	require.NoError(t, err)
	assert.Nil(t, choice)
}

func TestDocumentExtFor(t *testing.T) {
	ext, ok := documentExtFor("application/pdf")
	require.True(t, ok)
	assert.Equal(t, "pdf", ext)

	_, ok = documentExtFor("application/zip")
	assert.False(t, ok)
}

func TestImageFormatFromMIME(t *testing.T) {
	assert.Equal(t, types.ImageFormatPng, imageFormatFromMIME("image/png"))
	assert.Equal(t, types.ImageFormatJpeg, imageFormatFromMIME("image/jpeg"))
	assert.Equal(t, types.ImageFormat(""), imageFormatFromMIME("image/bmp"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Greater(t, estimateTokens("this is a somewhat longer sentence to tokenize"), 0)
}

func TestEstimateTokens_ZeroWhenEstimationDisabled(t *testing.T) {
	SetEstimationEnabled(false)
	defer SetEstimationEnabled(true)

	assert.Equal(t, 0, estimateTokens("this is a somewhat longer sentence to tokenize"))
}

func TestEstimationEnabled_ReflectsSetEstimationEnabled(t *testing.T) {
	SetEstimationEnabled(false)
	assert.False(t, EstimationEnabled())
	SetEstimationEnabled(true)
	assert.True(t, EstimationEnabled())
}

func TestBuildReasoningConfig_Budget(t *testing.T) {
	maxTokens := 4097
	req := &openaiapi.ChatCompletionRequest{ReasoningEffort: "high", MaxTokens: &maxTokens}
	cfg := buildReasoningConfig(req, BuildOptions{})
	require.NotNil(t, cfg)
}

func TestBuildReasoningConfig_ThinkingBudgetOverridesFormula(t *testing.T) {
	enabled := true
	budget := 2048
	req := &openaiapi.ChatCompletionRequest{EnableThinking: &enabled, ThinkingBudget: &budget}
	cfg := buildReasoningConfig(req, BuildOptions{})
	require.NotNil(t, cfg)

	raw, err := cfg.MarshalSmithyDocument()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2048")
}

func TestBuildConverseRequest_RejectsReasoningEffortWithThinkingBudget(t *testing.T) {
	enabled := true
	budget := 2048
	req := &openaiapi.ChatCompletionRequest{
		Messages:        []openaiapi.ChatMessage{{Role: "user", Content: json.RawMessage(`"hi"`)}},
		ReasoningEffort: "high",
		EnableThinking:  &enabled,
		ThinkingBudget:  &budget,
	}
	_, err := BuildConverseRequest(t.Context(), req, BuildOptions{})
	require.Error(t, err)
}

func TestBuildConverseRequest_RejectsThinkingBudgetWithEnableThinkingFalse(t *testing.T) {
	disabled := false
	budget := 2048
	req := &openaiapi.ChatCompletionRequest{
		Messages:       []openaiapi.ChatMessage{{Role: "user", Content: json.RawMessage(`"hi"`)}},
		EnableThinking: &disabled,
		ThinkingBudget: &budget,
	}
	_, err := BuildConverseRequest(t.Context(), req, BuildOptions{})
	require.Error(t, err)
}

func TestBuildConverseRequest_RejectsThinkingBudgetWithoutEnableThinking(t *testing.T) {
	budget := 2048
	req := &openaiapi.ChatCompletionRequest{
		Messages:       []openaiapi.ChatMessage{{Role: "user", Content: json.RawMessage(`"hi"`)}},
		ThinkingBudget: &budget,
	}
	_, err := BuildConverseRequest(t.Context(), req, BuildOptions{})
	require.Error(t, err)
}

func TestBuildReasoningConfig_NoEffortIsNil(t *testing.T) {
	req := &openaiapi.ChatCompletionRequest{}
	assert.Nil(t, buildReasoningConfig(req, BuildOptions{}))
}
