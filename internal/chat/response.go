package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// FinishReasonFor implements spec.md §4.4's finish-reason mapping table.
func FinishReasonFor(stopReason types.StopReason, legacyFunctionMode bool) string {
	switch stopReason {
	case types.StopReasonMaxTokens:
		return "length"
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return "content_filter"
	case types.StopReasonToolUse:
		if legacyFunctionMode {
			return "function_call"
		}
		return "tool_calls"
	default:
		return "stop"
	}
}

// Invoker is the subset of *bedrockruntime.Client this package calls,
// narrowed to ease testing with a fake.
type Invoker interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// InvokeN launches n concurrent Converse calls (spec.md §4.4: "n concurrent
// converse calls are launched; each response yields one Choice") and
// translates each into an OpenAI Choice, summing usage across all of them.
func InvokeN(ctx context.Context, client Invoker, input *bedrockruntime.ConverseInput, n int, legacyFunctionMode bool) ([]openaiapi.Choice, openaiapi.Usage, error) {
	if n <= 0 {
		n = 1
	}

	type result struct {
		choice openaiapi.Choice
		usage  openaiapi.Usage
		err    error
	}

	results := make([]result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := client.Converse(ctx, input)
			if err != nil {
				results[i] = result{err: errors.Wrap(err, "converse")}
				return
			}
			choice, usage := translateConverseOutput(i, out, legacyFunctionMode)
			results[i] = result{choice: choice, usage: usage}
		}(i)
	}
	wg.Wait()

	var choices []openaiapi.Choice
	var total openaiapi.Usage
	for _, r := range results {
		if r.err != nil {
			return nil, openaiapi.Usage{}, r.err
		}
		choices = append(choices, r.choice)
		total.PromptTokens += r.usage.PromptTokens
		total.CompletionTokens += r.usage.CompletionTokens
		total.TotalTokens += r.usage.TotalTokens
	}
	return choices, total, nil
}

func translateConverseOutput(index int, out *bedrockruntime.ConverseOutput, legacyFunctionMode bool) (openaiapi.Choice, openaiapi.Usage) {
	var usage openaiapi.Usage
	if out.Usage != nil {
		if out.Usage.InputTokens != nil {
			usage.PromptTokens = int(*out.Usage.InputTokens)
		}
		if out.Usage.OutputTokens != nil {
			usage.CompletionTokens = int(*out.Usage.OutputTokens)
		}
		if out.Usage.TotalTokens != nil {
			usage.TotalTokens = int(*out.Usage.TotalTokens)
		}
	}

	msg := openaiapi.ChatMessage{Role: "assistant"}
	var textBuilder, reasoningBuilder strings.Builder

	outputMsg, _ := out.Output.(*types.ConverseOutputMemberMessage)
	if outputMsg != nil {
		for _, block := range outputMsg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				textBuilder.WriteString(b.Value)
			case *types.ContentBlockMemberReasoningContent:
				if rt, ok := b.Value.(*types.ReasoningContentBlockMemberReasoningText); ok && rt.Value.Text != nil {
					reasoningBuilder.WriteString(*rt.Value.Text)
				}
			case *types.ContentBlockMemberToolUse:
				args := "{}"
				if b.Value.Input != nil {
					if raw, err := json.Marshal(b.Value.Input); err == nil {
						args = string(raw)
					}
				}
				name := derefOr(b.Value.Name, "")
				id := derefOr(b.Value.ToolUseId, "")
				if legacyFunctionMode {
					msg.FunctionCall = &openaiapi.FunctionCall{Name: name, Arguments: args}
				} else {
					msg.ToolCalls = append(msg.ToolCalls, openaiapi.ToolCall{
						ID:   id,
						Type: "function",
						Function: openaiapi.FunctionCall{Name: name, Arguments: args},
					})
				}
			}
		}
	}

	msg.Content, _ = json.Marshal(textBuilder.String())
	msg.ReasoningContent = reasoningBuilder.String()

	finish := "stop"
	if out.StopReason != "" {
		finish = FinishReasonFor(out.StopReason, legacyFunctionMode)
	}

	if reasoningBuilder.Len() > 0 && EstimationEnabled() && usage.CompletionTokensDetails == nil && out.Usage != nil && out.Usage.OutputTokens == nil {
		estimated := estimateTokens(reasoningBuilder.String())
		usage.CompletionTokens += estimated
		usage.TotalTokens += estimated
		usage.CompletionTokensDetails = &openaiapi.CompletionTokensDetails{ReasoningTokens: estimated}
	}

	return openaiapi.Choice{Index: index, Message: msg, FinishReason: finish}, usage
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
