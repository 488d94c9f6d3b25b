package chat

import (
	"encoding/json"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// namedInferenceFields are the OpenAI request fields the gateway handles
// explicitly (typed InferenceConfiguration members or other parts of the
// Converse request), so they are never forwarded as
// AdditionalModelRequestFields, per spec.md §4.4.
var namedInferenceFields = map[string]bool{
	"model": true, "messages": true, "tools": true, "functions": true,
	"tool_choice": true, "function_call": true, "temperature": true,
	"top_p": true, "max_tokens": true, "max_completion_tokens": true,
	"stop": true, "stream": true, "stream_options": true, "n": true,
	"reasoning_effort": true, "enable_thinking": true, "thinking_budget": true,
	"service_tier": true, "modalities": true,
	"audio": true, "response_format": true,
}

// buildInferenceConfig unions per-model defaults and request-level fields
// (request wins), emitting named Converse fields plus a map of "everything
// else" destined for AdditionalModelRequestFields, with nulls filtered.
func buildInferenceConfig(req *openaiapi.ChatCompletionRequest, defaults map[string]any) (*types.InferenceConfiguration, map[string]any) {
	cfg := &types.InferenceConfiguration{}

	maxTokens := req.MaxTokens
	if maxTokens == nil {
		maxTokens = req.MaxCompletionTokens
	}
	if maxTokens != nil {
		v := int32(*maxTokens)
		cfg.MaxTokens = &v
	} else if v, ok := defaults["max_tokens"].(float64); ok {
		iv := int32(v)
		cfg.MaxTokens = &iv
	}

	if req.Temperature != nil {
		v := float32(*req.Temperature)
		cfg.Temperature = &v
	} else if v, ok := defaults["temperature"].(float64); ok {
		fv := float32(v)
		cfg.Temperature = &fv
	}

	if req.TopP != nil {
		v := float32(*req.TopP)
		cfg.TopP = &v
	} else if v, ok := defaults["top_p"].(float64); ok {
		fv := float32(v)
		cfg.TopP = &fv
	}

	if stops := decodeStop(req.Stop); len(stops) > 0 {
		cfg.StopSequences = stops
	}

	extras := make(map[string]any)
	for k, v := range defaults {
		if namedInferenceFields[k] || v == nil {
			continue
		}
		extras[k] = v
	}
	var reqExtra map[string]json.RawMessage
	if req.Extra != nil {
		reqExtra = req.Extra
	}
	for k, raw := range reqExtra {
		if namedInferenceFields[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil || v == nil {
			continue
		}
		extras[k] = v
	}

	return cfg, extras
}

func decodeStop(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}

// buildReasoningConfig implements spec.md §4.4's budget formula:
// max(1024, floor((max_tokens-1) * factor[effort])). An explicit
// thinking_budget overrides the formula outright and is used as the budget
// directly, grounded on the original implementation's set_reasoning_configuration
// (stdapi/aws_bedrock.py), which prefers a caller-supplied budget_tokens over
// the effort-derived one. Families that require a string enum instead of a
// structured budget fold "minimal" to "low".
func buildReasoningConfig(req *openaiapi.ChatCompletionRequest, opts BuildOptions) document.Interface {
	effort := req.ReasoningEffort
	if effort == "" && req.ThinkingBudget == nil {
		return nil
	}
	factor, ok := reasoningEffortFactor[effort]
	if !ok {
		factor = reasoningEffortFactor["medium"]
	}

	if opts.StringReasoningConfigFamily {
		stringEffort := effort
		if stringEffort == "" {
			stringEffort = "medium"
		}
		if stringEffort == "minimal" {
			stringEffort = "low"
		}
		return document.NewLazyDocument(map[string]any{"reasoning_config": stringEffort})
	}

	var budget int
	if req.ThinkingBudget != nil {
		budget = *req.ThinkingBudget
	} else {
		maxTokens := 4096
		if req.MaxTokens != nil {
			maxTokens = *req.MaxTokens
		} else if req.MaxCompletionTokens != nil {
			maxTokens = *req.MaxCompletionTokens
		}
		budget = int(math.Max(1024, math.Floor(float64(maxTokens-1)*factor)))
	}

	return document.NewLazyDocument(map[string]any{
		"reasoning_config": map[string]any{
			"type":          "enabled",
			"budget_tokens": budget,
		},
	})
}

// buildGuardrail resolves per-request guardrail headers over the process
// default, per spec.md §4.4.
func buildGuardrail(req *openaiapi.ChatCompletionRequest, def GuardrailDefaults) *types.GuardrailConfiguration {
	id, version := req.GuardrailIdentifier, req.GuardrailVersion
	if id == "" || version == "" {
		id, version = def.Identifier, def.Version
	}
	if id == "" || version == "" {
		return nil
	}

	trace := types.GuardrailTraceDisabled
	traceValue := req.GuardrailTrace
	if traceValue == "" {
		traceValue = def.Trace
	}
	switch traceValue {
	case "enabled":
		trace = types.GuardrailTraceEnabled
	case "enabled_full":
		trace = types.GuardrailTraceEnabledFull
	}

	return &types.GuardrailConfiguration{
		GuardrailIdentifier: strPtr(id),
		GuardrailVersion:    strPtr(version),
		Trace:               trace,
	}
}

// ServiceTierFor maps spec.md §4.4's service_tier rule: "priority" maps to
// optimized latency and echoes "priority"; any other non-null tier maps to
// standard and echoes "default".
func ServiceTierFor(requested string) (latencyOptimized bool, echoed string) {
	if requested == "priority" {
		return true, "priority"
	}
	return false, "default"
}
