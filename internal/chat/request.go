// Package chat implements the chat translation core (C8): OpenAI Chat
// Completions <-> AWS Bedrock Converse/ConverseStream. Grounded on the
// teacher's deepseek adaptor (relay/adaptor/aws/deepseek/main.go) for the
// Converse request/response shape and streaming-event folding, generalized
// from DeepSeek's single-turn plain-string messages to the full OpenAI
// multi-part, multi-role, tool-calling message format spec.md §4.4
// describes, and to the Anthropic-family content-block vocabulary the
// teacher's claude adaptor (relay/adaptor/aws/claude/adapter.go) delegates
// to a conversion package not present in the retrieval pack.
package chat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/media"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// reasoningEffortFactor implements spec.md §4.4's budget formula factors.
var reasoningEffortFactor = map[string]float64{
	"minimal": 0.25,
	"low":     0.5,
	"medium":  0.75,
	"high":    1.0,
}

// BuildOptions carries the configuration inputs the request builder needs
// beyond the OpenAI request body itself.
type BuildOptions struct {
	Capabilities       catalog.Capabilities
	DefaultModelParams map[string]any
	DefaultGuardrail   GuardrailDefaults
	Fetcher            *media.Fetcher
	// StringReasoningConfigFamily is set for model families whose reasoning
	// configuration field is a string enum rather than a structured budget
	// (spec.md §4.4: "certain model families require a string reasoning_config").
	StringReasoningConfigFamily bool
}

type GuardrailDefaults struct {
	Identifier string
	Version    string
	Trace      string
}

// Built is the result of translating one OpenAI request: the Converse input
// plus bookkeeping the response translator needs (the legacy function flag
// for finish-reason and tool-call mapping).
type Built struct {
	Messages              []types.Message
	System                []types.SystemContentBlock
	ToolConfig            *types.ToolConfiguration
	InferenceConfig       *types.InferenceConfiguration
	AdditionalModelFields document.Interface
	ReasoningConfig       document.Interface
	Guardrail             *types.GuardrailConfiguration
	LegacyFunctionMode    bool
}

// BuildConverseRequest translates an OpenAI chat completion request into
// its Converse-API equivalent, per spec.md §4.4's "Request translation"
// rules.
func BuildConverseRequest(ctx context.Context, req *openaiapi.ChatCompletionRequest, opts BuildOptions) (*Built, error) {
	if req.ThinkingBudget != nil && req.ReasoningEffort != "" {
		return nil, apierr.InvalidRequest("cannot combine reasoning_effort and thinking_budget")
	}
	if req.ThinkingBudget != nil && (req.EnableThinking == nil || !*req.EnableThinking) {
		return nil, apierr.InvalidRequest("thinking_budget requires enable_thinking to be true")
	}

	system, conversation, err := splitMessages(ctx, req.Messages, opts.Fetcher)
	if err != nil {
		return nil, err
	}

	built := &Built{Messages: conversation, System: system}

	toolConfig, legacy, err := buildToolConfig(req, opts.Capabilities)
	if err != nil {
		return nil, err
	}
	built.ToolConfig = toolConfig
	built.LegacyFunctionMode = legacy

	inference, extras := buildInferenceConfig(req, opts.DefaultModelParams)
	built.InferenceConfig = inference

	if len(extras) > 0 {
		built.AdditionalModelFields = document.NewLazyDocument(extras)
	}

	if reasoningCfg := buildReasoningConfig(req, opts); reasoningCfg != nil {
		built.ReasoningConfig = reasoningCfg
	}

	built.Guardrail = buildGuardrail(req, opts.DefaultGuardrail)

	return built, nil
}

// splitMessages implements the system_blocks/conversation_messages split and
// the per-role conversion table of spec.md §4.4.
func splitMessages(ctx context.Context, messages []openaiapi.ChatMessage, fetcher *media.Fetcher) ([]types.SystemContentBlock, []types.Message, error) {
	var system []types.SystemContentBlock
	var conversation []types.Message
	var pendingToolResults []types.ContentBlock

	flushToolResults := func() {
		if len(pendingToolResults) == 0 {
			return
		}
		conversation = append(conversation, types.Message{
			Role:    types.ConversationRoleUser,
			Content: pendingToolResults,
		})
		pendingToolResults = nil
	}

	for _, m := range messages {
		switch m.Role {
		case "system", "developer":
			text, err := stringContent(m.Content)
			if err != nil {
				return nil, nil, err
			}
			system = append(system, &types.SystemContentBlockMemberText{Value: text})

		case "user":
			flushToolResults()
			blocks, err := buildContentBlocks(ctx, m.Content, fetcher)
			if err != nil {
				return nil, nil, err
			}
			conversation = append(conversation, types.Message{Role: types.ConversationRoleUser, Content: blocks})

		case "assistant":
			flushToolResults()
			blocks, err := buildAssistantBlocks(ctx, m, fetcher)
			if err != nil {
				return nil, nil, err
			}
			conversation = append(conversation, types.Message{Role: types.ConversationRoleAssistant, Content: blocks})

		case "tool":
			block, err := buildToolResultBlock(m.ToolCallID, m.Content)
			if err != nil {
				return nil, nil, err
			}
			pendingToolResults = append(pendingToolResults, block)

		case "function":
			block, err := buildToolResultBlock(m.Name, m.Content)
			if err != nil {
				return nil, nil, err
			}
			pendingToolResults = append(pendingToolResults, block)

		default:
			return nil, nil, apierr.InvalidRequest("unsupported message role: " + m.Role)
		}
	}
	flushToolResults()

	return system, conversation, nil
}

func stringContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []openaiapi.ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", errors.Wrap(err, "decode message content")
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}

func buildContentBlocks(ctx context.Context, raw json.RawMessage, fetcher *media.Fetcher) ([]types.ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []types.ContentBlock{&types.ContentBlockMemberText{Value: s}}, nil
	}

	var parts []openaiapi.ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, errors.Wrap(err, "decode message content parts")
	}

	var blocks []types.ContentBlock
	for _, p := range parts {
		switch p.Type {
		case "text":
			blocks = append(blocks, &types.ContentBlockMemberText{Value: p.Text})
		case "image_url":
			if p.ImageURL == nil {
				return nil, apierr.InvalidRequest("image_url part missing url")
			}
			block, err := buildImageBlock(ctx, p.ImageURL.URL, fetcher)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		case "file":
			if p.File == nil {
				return nil, apierr.InvalidRequest("file part missing file_data")
			}
			block, err := buildFileBlock(*p.File)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		default:
			return nil, apierr.InvalidRequest("unsupported content part type: " + p.Type)
		}
	}
	return blocks, nil
}

func buildImageBlock(ctx context.Context, rawURL string, fetcher *media.Fetcher) (types.ContentBlock, error) {
	decoded, err := fetcher.ResolveImageSource(ctx, rawURL)
	if err != nil {
		return nil, apierr.InvalidRequest("invalid image source: " + err.Error())
	}

	if decoded.S3Ref != nil {
		format := imageFormatFromExt(decoded.S3Ref.Ext)
		return &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberS3Location{Value: types.S3Location{
				Uri: strPtr("s3://" + decoded.S3Ref.Bucket + "/" + decoded.S3Ref.Key),
			}},
		}}, nil
	}

	format := imageFormatFromMIME(decoded.MIMEType)
	if format == "" {
		return nil, apierr.InvalidRequest("unsupported image mime type: " + decoded.MIMEType)
	}
	return &types.ContentBlockMemberImage{Value: types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: decoded.Bytes},
	}}, nil
}

func imageFormatFromMIME(mimeType string) types.ImageFormat {
	switch strings.TrimPrefix(mimeType, "image/") {
	case "png":
		return types.ImageFormatPng
	case "jpeg", "jpg":
		return types.ImageFormatJpeg
	case "gif":
		return types.ImageFormatGif
	case "webp":
		return types.ImageFormatWebp
	default:
		return ""
	}
}

func imageFormatFromExt(ext string) types.ImageFormat {
	switch ext {
	case "jpeg", "jpg":
		return types.ImageFormatJpeg
	case "png":
		return types.ImageFormatPng
	case "gif":
		return types.ImageFormatGif
	case "webp":
		return types.ImageFormatWebp
	default:
		return types.ImageFormatPng
	}
}

var videoFormatByMIME = map[string]types.VideoFormat{
	"mp4":       types.VideoFormatMp4,
	"mov":       types.VideoFormatMov,
	"mkv":       types.VideoFormatMkv,
	"webm":      types.VideoFormatWebm,
	"flv":       types.VideoFormatFlv,
	"mpeg":      types.VideoFormatMpeg,
	"wmv":       types.VideoFormatWmv,
	"three_gp":  types.VideoFormatThreeGp,
}

func buildFileBlock(f openaiapi.FilePart) (types.ContentBlock, error) {
	data, err := media.DecodeBase64(f.FileData)
	if err != nil {
		return nil, apierr.InvalidRequest("invalid base64 file_data")
	}
	mimeType := media.SniffMIME(data)

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		format := imageFormatFromMIME(mimeType)
		if format == "" {
			return nil, apierr.InvalidRequest("unsupported image mime type: " + mimeType)
		}
		return &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: data},
		}}, nil

	case strings.HasPrefix(mimeType, "video/"):
		subtype := media.VideoFormatFor(mimeType)
		format, ok := videoFormatByMIME[subtype]
		if !ok {
			return nil, apierr.InvalidRequest("unsupported video mime type: " + mimeType)
		}
		return &types.ContentBlockMemberVideo{Value: types.VideoBlock{
			Format: format,
			Source: &types.VideoSourceMemberBytes{Value: data},
		}}, nil

	case strings.HasPrefix(mimeType, "text/") || strings.HasPrefix(mimeType, "application/"):
		ext, ok := documentExtFor(mimeType)
		if !ok {
			return nil, apierr.InvalidRequest("unsupported document mime type: " + mimeType)
		}
		name := f.Filename
		if name == "" {
			name = "file-" + ext
		}
		return &types.ContentBlockMemberDocument{Value: types.DocumentBlock{
			Format: types.DocumentFormat(ext),
			Name:   strPtr(name),
			Source: &types.DocumentSourceMemberBytes{Value: data},
		}}, nil

	default:
		return nil, apierr.InvalidRequest("unsupported file mime type: " + mimeType)
	}
}

// documentMIMEExt is the fixed document subset spec.md §9's Open Question 2
// resolves on.
var documentMIMEExt = map[string]string{
	"text/csv":                "csv",
	"text/html":                "html",
	"application/pdf":          "pdf",
	"application/msword":       "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       "xlsx",
	"text/plain":               "txt",
	"text/markdown":            "md",
}

func documentExtFor(mimeType string) (string, bool) {
	ext, ok := documentMIMEExt[mimeType]
	return ext, ok
}

func buildAssistantBlocks(ctx context.Context, m openaiapi.ChatMessage, fetcher *media.Fetcher) ([]types.ContentBlock, error) {
	var blocks []types.ContentBlock

	if len(m.Content) > 0 {
		content, err := buildContentBlocks(ctx, m.Content, fetcher)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, content...)
	}
	if m.ReasoningContent != "" {
		blocks = append(blocks, &types.ContentBlockMemberReasoningContent{
			Value: &types.ReasoningContentBlockMemberReasoningText{
				Value: types.ReasoningTextBlock{Text: strPtr(m.ReasoningContent)},
			},
		})
	}

	for _, tc := range m.ToolCalls {
		input, err := parseToolArguments(tc.Function.Arguments)
		if err != nil {
			input = document.NewLazyDocument(map[string]any{})
		}
		blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: strPtr(tc.ID),
			Name:      strPtr(tc.Function.Name),
			Input:     input,
		}})
	}
	if m.FunctionCall != nil {
		input, err := parseToolArguments(m.FunctionCall.Arguments)
		if err != nil {
			input = document.NewLazyDocument(map[string]any{})
		}
		blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: strPtr(m.FunctionCall.Name),
			Name:      strPtr(m.FunctionCall.Name),
			Input:     input,
		}})
	}

	return blocks, nil
}

func parseToolArguments(raw string) (document.Interface, error) {
	var v map[string]any
	if raw == "" {
		return document.NewLazyDocument(map[string]any{}), nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return document.NewLazyDocument(v), nil
}

func buildToolResultBlock(toolUseID string, raw json.RawMessage) (types.ContentBlock, error) {
	text, err := stringContent(raw)
	if err != nil {
		return nil, err
	}
	return &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
		ToolUseId: strPtr(toolUseID),
		Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: text}},
	}}, nil
}

func strPtr(s string) *string { return &s }
