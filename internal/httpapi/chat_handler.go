package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/relaybridge/bedrock-gateway/internal/adapters/speech"
	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/awsclients"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/chat"
	"github.com/relaybridge/bedrock-gateway/internal/media"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
	"github.com/relaybridge/bedrock-gateway/internal/streaming"
)

// ChatHandler backs POST /v1/chat/completions, translating the request via
// internal/chat's Converse builders and fanning the response back through
// either a single JSON body or an SSE stream, per spec.md §4.4.
type ChatHandler struct {
	Pool               *awsclients.Pool
	Catalog            *catalog.Catalog
	Fetcher            *media.Fetcher
	DefaultModelParams map[string]map[string]any
	CrossRegionEnabled bool

	// DefaultGuardrail is the process-level guardrail association applied
	// when a request supplies neither guardrail header, per spec.md §4.4.
	DefaultGuardrail chat.GuardrailDefaults

	// Speech backs the "modalities":["text","audio"] auxiliary TTS call of
	// spec.md §4.4 ("an auxiliary TTS call is launched per choice and
	// attached as message.audio"). Nil disables audio-modality support.
	Speech *speech.Adapter
}

// audioModalityRequested reports whether the request asked for an audio
// modality, and whether it omitted "text" alongside it — the latter is the
// boundary case spec.md §8 requires rejecting with 400.
func audioModalityRequested(modalities []string) (wantsAudio, missingText bool) {
	if len(modalities) == 0 {
		return false, false
	}
	hasAudio, hasText := false, false
	for _, m := range modalities {
		switch m {
		case "audio":
			hasAudio = true
		case "text":
			hasText = true
		}
	}
	return hasAudio, hasAudio && !hasText
}

func (h *ChatHandler) Handle(c *gin.Context) {
	var req openaiapi.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIErr(c, apierr.InvalidRequest("invalid request body: "+err.Error()))
		return
	}

	req.GuardrailIdentifier = c.GetHeader("X-Amzn-Bedrock-GuardrailIdentifier")
	req.GuardrailVersion = c.GetHeader("X-Amzn-Bedrock-GuardrailVersion")
	req.GuardrailTrace = c.GetHeader("X-Amzn-Bedrock-Trace")

	rc := RequestContextFrom(c)
	rc.Model = req.Model

	wantsAudio, missingText := audioModalityRequested(req.Modalities)
	if missingText {
		writeAPIErr(c, apierr.InvalidRequest(`modalities requires "text" alongside "audio"`))
		return
	}
	if wantsAudio && req.Audio == nil {
		writeAPIErr(c, apierr.InvalidRequest(`audio modality requires an "audio" parameter`))
		return
	}

	if req.Stream && req.N != nil && *req.N > 1 {
		writeAPIErr(c, apierr.InvalidRequest("n>1 is not supported with stream=true"))
		return
	}

	desc, deprecationHint, err := h.Catalog.Validate(c.Request.Context(), req.Model, "text", "text", false)
	if err != nil {
		writeCatalogErr(c, req.Model, err, deprecationHint)
		return
	}

	caps := catalog.CapabilitiesFor(desc.ID)
	built, err := chat.BuildConverseRequest(c.Request.Context(), &req, chat.BuildOptions{
		Capabilities:        caps,
		DefaultModelParams:  h.DefaultModelParams[desc.ID],
		DefaultGuardrail:    h.DefaultGuardrail,
		Fetcher:             h.Fetcher,
	})
	if err != nil {
		writeAPIErr(c, err)
		return
	}

	region := pickRegion(h.Pool, desc)
	client, err := awsclients.Get[*bedrockruntime.Client](h.Pool, awsclients.ServiceBedrockRuntime, region)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(err, "resolve bedrock client"))
		return
	}

	routingID := desc.EffectiveRoutingID(h.CrossRegionEnabled)
	n := 1
	if req.N != nil && *req.N > 0 {
		n = *req.N
	}

	id := "chatcmpl-" + ulid.Make().String()
	created := time.Now().Unix()

	if req.Stream {
		h.handleStream(c, client, routingID, built, n, id, created, req)
		return
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:                 aws.String(routingID),
		Messages:                built.Messages,
		System:                  built.System,
		ToolConfig:              built.ToolConfig,
		InferenceConfig:         built.InferenceConfig,
		AdditionalModelRequestFields: built.AdditionalModelFields,
		GuardrailConfig:         built.Guardrail,
	}

	choices, usage, err := chat.InvokeN(c.Request.Context(), client, input, n, built.LegacyFunctionMode)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(err, "invoke model"))
		return
	}

	if wantsAudio && h.Speech != nil {
		h.attachAudio(c.Request.Context(), choices, req.Audio)
	}

	c.JSON(http.StatusOK, openaiapi.ChatCompletionResponse{
		ID: id, Object: "chat.completion", Created: created, Model: desc.ID,
		Choices: choices, Usage: &usage,
	})
}

func (h *ChatHandler) handleStream(c *gin.Context, client *bedrockruntime.Client, routingID string, built *chat.Built, n int, id string, created int64, req openaiapi.ChatCompletionRequest) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:                 aws.String(routingID),
		Messages:                built.Messages,
		System:                  built.System,
		ToolConfig:              built.ToolConfig,
		InferenceConfig:         built.InferenceConfig,
		AdditionalModelRequestFields: built.AdditionalModelFields,
		GuardrailConfig:         built.Guardrail,
	}

	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
	raw := chat.InvokeNStream(c.Request.Context(), client, input, n, id, req.Model, created, built.LegacyFunctionMode, includeUsage)

	frames := make(chan streaming.Frame, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		defer close(errs)
		for sc := range raw {
			if sc.Err != nil {
				errs <- sc.Err
				return
			}
			if sc.Chunk != nil {
				data, err := json.Marshal(sc.Chunk)
				if err != nil {
					errs <- err
					return
				}
				frames <- streaming.Frame{Data: data}
			}
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	src := streaming.ChanSource{Frames: frames, Errs: errs}
	_, _, err := streaming.EmitSSE(c.Request.Context(), c.Writer, c.Writer.Flush, src, true)
	if err != nil {
		rc := RequestContextFrom(c)
		rc.WithField("stream_error", err.Error())
	}
}

// attachAudio runs one TTS call per choice concurrently and assigns the
// resulting message.audio, per spec.md §4.4. Synthesis failures are left
// unattached rather than failing the whole chat response, since the primary
// text content already succeeded.
func (h *ChatHandler) attachAudio(ctx context.Context, choices []openaiapi.Choice, req *openaiapi.AudioRequest) {
	format := req.Format
	if format == "" {
		format = "mp3"
	}

	var wg sync.WaitGroup
	for i := range choices {
		text := textOf(choices[i].Message.Content)
		if text == "" {
			continue
		}
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			audio, err := h.Speech.SynthesizeBuffered(ctx, text, req.Voice, format)
			if err != nil {
				return
			}
			choices[i].Message.Audio = &openaiapi.AudioOutput{
				ID:         "audio-" + ulid.Make().String(),
				ExpiresAt:  time.Now().Add(24 * time.Hour).Unix(),
				Data:       base64.StdEncoding.EncodeToString(audio),
				Transcript: text,
			}
		}(i, text)
	}
	wg.Wait()
}

// textOf decodes a ChatMessage.Content json.RawMessage back to a plain
// string; content is always a marshaled string at this layer (see
// internal/chat/response.go), never the multi-part array shape a request
// may have used.
func textOf(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func pickRegion(pool *awsclients.Pool, desc catalog.ModelDescriptor) string {
	if desc.Region != "" {
		return desc.Region
	}
	regions := pool.Regions(awsclients.ServiceBedrockRuntime)
	if len(regions) > 0 {
		return regions[0]
	}
	return ""
}

func writeAPIErr(c *gin.Context, err error) {
	if ws, ok := err.(*apierr.WithStatus); ok {
		c.JSON(ws.StatusCode, ws.Sanitized())
		return
	}
	ws := apierr.Wrap(err, "")
	c.JSON(ws.StatusCode, ws.Sanitized())
}

func writeCatalogErr(c *gin.Context, modelID string, err error, deprecationHint string) {
	if mm, ok := err.(*catalog.ErrModalityMismatch); ok {
		env := apierr.InvalidRequest("model " + mm.Modality + " mismatch; candidates: " + strings.Join(mm.MatchingIDs, ", "))
		c.JSON(env.StatusCode, env.Envelope)
		return
	}
	env := apierr.ModelNotFound(modelID)
	if deprecationHint != "" {
		env.Envelope.Error.Message += " " + deprecationHint
	}
	c.JSON(env.StatusCode, env.Envelope)
}
