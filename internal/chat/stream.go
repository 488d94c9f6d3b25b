package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// blockState is the per-content-block state machine of spec.md §4.4:
//
//	IDLE --contentBlockStart--> OPEN
//	OPEN --contentBlockDelta--> OPEN  (append)
//	OPEN --contentBlockStop---> DONE  (no chunk emitted)
//	OPEN/DONE --messageStop---> ENDED (finish_reason set)
type blockState int

const (
	blockIdle blockState = iota
	blockOpen
	blockDone
	blockEnded
)

// choiceAccumulator folds one choice's ConverseStream events into a
// sequence of OpenAI chunks.
type choiceAccumulator struct {
	index              int
	id                 string
	model              string
	createdAt          int64
	legacyFunctionMode bool

	state        blockState
	toolIndex    int
	finishReason *string
	usage        *openaiapi.Usage
}

// StreamingInvoker is the subset of *bedrockruntime.Client this package
// calls for streaming, narrowed to ease testing with a fake.
type StreamingInvoker interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// StreamChunk is one item in the merged output queue: a chunk ready to
// serialize as an SSE "data:" line, or a terminal error.
type StreamChunk struct {
	ChoiceIndex int
	Chunk       *openaiapi.ChatCompletionChunk
	Err         error
	Final       bool
}

// InvokeNStream launches n independent ConverseStream calls and fans them
// into a single output channel tagged by choice index, emitting items in
// arrival order and closing the channel once every stream has closed, per
// spec.md §4.4's streaming concurrency model.
func InvokeNStream(ctx context.Context, client StreamingInvoker, input *bedrockruntime.ConverseStreamInput, n int, id, model string, createdAt int64, legacyFunctionMode, includeUsage bool) <-chan StreamChunk {
	if n <= 0 {
		n = 1
	}
	out := make(chan StreamChunk, n*4)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runOneStream(ctx, client, input, i, id, model, createdAt, legacyFunctionMode, includeUsage, out)
		}(i)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func runOneStream(ctx context.Context, client StreamingInvoker, input *bedrockruntime.ConverseStreamInput, index int, id, model string, createdAt int64, legacyFunctionMode, includeUsage bool, out chan<- StreamChunk) {
	resp, err := client.ConverseStream(ctx, input)
	if err != nil {
		out <- StreamChunk{ChoiceIndex: index, Err: err, Final: true}
		return
	}
	stream := resp.GetStream()
	defer stream.Close()

	acc := &choiceAccumulator{index: index, id: id, model: model, createdAt: createdAt, legacyFunctionMode: legacyFunctionMode}

	// The first chunk carries role=assistant only, per spec.md §4.4.
	out <- StreamChunk{ChoiceIndex: index, Chunk: &openaiapi.ChatCompletionChunk{
		ID: id, Object: "chat.completion.chunk", Created: createdAt, Model: model,
		Choices: []openaiapi.ChunkChoice{{Index: index, Delta: openaiapi.ChatDelta{Role: "assistant"}}},
	}}

	for event := range stream.Events() {
		chunk, terminal, err := acc.fold(event, includeUsage)
		if err != nil {
			out <- StreamChunk{ChoiceIndex: index, Err: err, Final: true}
			return
		}
		if chunk != nil {
			out <- StreamChunk{ChoiceIndex: index, Chunk: chunk}
		}
		if terminal {
			out <- StreamChunk{ChoiceIndex: index, Final: true}
		}
	}

	if err := stream.Err(); err != nil {
		out <- StreamChunk{ChoiceIndex: index, Err: err, Final: true}
	}
}

// fold advances the state machine for one ConverseStream event, returning a
// chunk to emit (nil when the event produces no visible content) and
// whether this event terminates the choice's stream.
func (a *choiceAccumulator) fold(event types.ConverseStreamOutput, includeUsage bool) (*openaiapi.ChatCompletionChunk, bool, error) {
	switch v := event.(type) {
	case *types.ConverseStreamOutputMemberContentBlockStart:
		a.state = blockOpen
		if toolUse, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			idx := a.toolIndex
			a.toolIndex++
			name := derefOr(toolUse.Value.Name, "")
			delta := openaiapi.ChatDelta{}
			if a.legacyFunctionMode {
				delta.FunctionCall = &openaiapi.FunctionCall{Name: name}
			} else {
				delta.ToolCalls = []openaiapi.ToolCall{{Index: &idx, ID: derefOr(toolUse.Value.ToolUseId, ""), Type: "function", Function: openaiapi.FunctionCall{Name: name}}}
			}
			return a.chunkFor(delta, nil), false, nil
		}
		return nil, false, nil

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		return a.foldDelta(v.Value.Delta)

	case *types.ConverseStreamOutputMemberContentBlockStop:
		a.state = blockDone
		return nil, false, nil

	case *types.ConverseStreamOutputMemberMessageStop:
		reason := FinishReasonFor(v.Value.StopReason, a.legacyFunctionMode)
		a.finishReason = &reason
		a.state = blockEnded
		return a.chunkFor(openaiapi.ChatDelta{}, a.finishReason), true, nil

	case *types.ConverseStreamOutputMemberMetadata:
		if v.Value.Usage != nil {
			u := &openaiapi.Usage{}
			if v.Value.Usage.InputTokens != nil {
				u.PromptTokens = int(*v.Value.Usage.InputTokens)
			}
			if v.Value.Usage.OutputTokens != nil {
				u.CompletionTokens = int(*v.Value.Usage.OutputTokens)
			}
			if v.Value.Usage.TotalTokens != nil {
				u.TotalTokens = int(*v.Value.Usage.TotalTokens)
			}
			a.usage = u
		}
		if !includeUsage || a.usage == nil {
			return nil, false, nil
		}
		chunk := a.chunkFor(openaiapi.ChatDelta{}, a.finishReason)
		chunk.Usage = a.usage
		return chunk, false, nil

	default:
		return nil, false, classifyException(event)
	}
}

func (a *choiceAccumulator) foldDelta(delta types.ContentBlockDelta) (*openaiapi.ChatCompletionChunk, bool, error) {
	switch d := delta.(type) {
	case *types.ContentBlockDeltaMemberText:
		if d.Value == "" {
			return nil, false, nil
		}
		return a.chunkFor(openaiapi.ChatDelta{Content: d.Value}, nil), false, nil

	case *types.ContentBlockDeltaMemberReasoningContent:
		if rt, ok := d.Value.(*types.ReasoningContentBlockDeltaMemberText); ok && rt.Value != "" {
			return a.chunkFor(openaiapi.ChatDelta{ReasoningContent: rt.Value}, nil), false, nil
		}
		return nil, false, nil

	case *types.ContentBlockDeltaMemberToolUse:
		frag := derefOr(d.Value.Input, "")
		if frag == "" {
			return nil, false, nil
		}
		idx := a.toolIndex - 1
		if idx < 0 {
			idx = 0
		}
		if a.legacyFunctionMode {
			return a.chunkFor(openaiapi.ChatDelta{FunctionCall: &openaiapi.FunctionCall{Arguments: frag}}, nil), false, nil
		}
		return a.chunkFor(openaiapi.ChatDelta{ToolCalls: []openaiapi.ToolCall{{
			Index:    &idx,
			Type:     "function",
			Function: openaiapi.FunctionCall{Arguments: frag},
		}}}, nil), false, nil

	default:
		return nil, false, nil
	}
}

func (a *choiceAccumulator) chunkFor(delta openaiapi.ChatDelta, finishReason *string) *openaiapi.ChatCompletionChunk {
	return &openaiapi.ChatCompletionChunk{
		ID: a.id, Object: "chat.completion.chunk", Created: a.createdAt, Model: a.model,
		Choices: []openaiapi.ChunkChoice{{Index: a.index, Delta: delta, FinishReason: finishReason}},
	}
}

// classifyException turns any *Exception union member present on a stream
// event into a client-facing error, per spec.md §4.4: "any *Exception key
// in an event is turned into a client error with the matching code."
func classifyException(event types.ConverseStreamOutput) error {
	typeName := fmtType(event)
	if !strings.HasSuffix(typeName, "Exception") {
		return nil
	}
	return apierr.New(502, apierr.TypeServer, typeName, "", "provider stream error: "+typeName)
}

func fmtType(v any) string {
	type namer interface{ ExceptionType() string }
	if n, ok := v.(namer); ok {
		return n.ExceptionType()
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}
