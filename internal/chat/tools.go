package chat

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// buildToolConfig merges "tools" and legacy "functions" into a single
// ToolConfiguration per spec.md §4.4, rejecting unsupported tool shapes and
// tool_choice values with an unsupported_parameter error.
func buildToolConfig(req *openaiapi.ChatCompletionRequest, caps catalog.Capabilities) (*types.ToolConfiguration, bool, error) {
	if len(req.Tools) == 0 && len(req.Functions) == 0 {
		return nil, false, nil
	}
	if !caps.Tools {
		return nil, false, apierr.UnsupportedParameter("tools", "this model does not support tool use")
	}

	legacy := len(req.Tools) == 0 && len(req.Functions) > 0

	var specs []types.Tool
	for _, t := range req.Tools {
		if t.Type != "function" {
			return nil, false, apierr.UnsupportedParameter("tools", "custom (non-function) tools are not supported")
		}
		specs = append(specs, toolSpecFrom(t.Function.Name, t.Function.Description, t.Function.Parameters))
	}
	for _, f := range req.Functions {
		specs = append(specs, toolSpecFrom(f.Name, f.Description, f.Parameters))
	}
	if len(specs) == 0 {
		return nil, legacy, nil
	}

	cfg := &types.ToolConfiguration{Tools: specs}

	choiceRaw := req.ToolChoice
	if legacy {
		choiceRaw = req.FunctionCall
	}
	choice, err := buildToolChoice(choiceRaw)
	if err != nil {
		return nil, legacy, err
	}
	cfg.ToolChoice = choice

	return cfg, legacy, nil
}

func toolSpecFrom(name, description string, parameters json.RawMessage) types.Tool {
	var schema map[string]any
	if len(parameters) > 0 {
		_ = json.Unmarshal(parameters, &schema)
	}
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	spec := types.ToolSpecification{
		Name:        strPtr(name),
		Description: strPtr(description),
		InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
	}
	return &types.ToolMemberToolSpec{Value: spec}
}

// buildToolChoice maps spec.md §4.4's tool_choice table. "none" and
// allowed_tools are explicitly rejected as unsupported parameters.
func buildToolChoice(raw json.RawMessage) (types.ToolChoice, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "auto":
			return &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}, nil
		case "required":
			return &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}, nil
		case "none":
			return nil, apierr.UnsupportedParameter("tool_choice", `tool_choice:"none" is not supported`)
		default:
			return nil, apierr.UnsupportedParameter("tool_choice", "unrecognized tool_choice value")
		}
	}

	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apierr.InvalidRequest("malformed tool_choice")
	}
	if obj.Type == "allowed_tools" {
		return nil, apierr.UnsupportedParameter("tool_choice", `tool_choice type "allowed_tools" is not supported`)
	}
	name := obj.Function.Name
	if name == "" {
		name = obj.Name
	}
	if name == "" {
		return nil, apierr.InvalidRequest("tool_choice object missing function name")
	}
	return &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: strPtr(name)}}, nil
}
