package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge/bedrock-gateway/internal/adapters/speech"
	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
	"github.com/relaybridge/bedrock-gateway/internal/streaming"
)

// SpeechHandler backs POST /v1/audio/speech, responding either as chunked
// binary audio (the default) or as an SSE stream of base64 audio deltas
// when stream_format="sse", per spec.md §4.5.
type SpeechHandler struct {
	Catalog *catalog.Catalog
	Adapter *speech.Adapter

	// DefaultModel backs spec.md §6's default_tts_model knob, used when the
	// request omits "model" entirely.
	DefaultModel string
}

var speechContentTypes = map[string]string{
	"mp3":       "audio/mpeg",
	"opus":      "audio/opus",
	"aac":       "audio/aac",
	"flac":      "audio/flac",
	"wav":       "audio/wav",
	"pcm":       "audio/pcm",
	"ogg_vorbis": "audio/ogg",
}

func (h *SpeechHandler) Handle(c *gin.Context) {
	var req openaiapi.SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIErr(c, apierr.InvalidRequest("invalid request body: "+err.Error()))
		return
	}

	if req.Model == "" {
		req.Model = h.DefaultModel
	}

	rc := RequestContextFrom(c)
	rc.Model = req.Model

	_, deprecationHint, err := h.Catalog.Validate(c.Request.Context(), req.Model, "text", "audio", false)
	if err != nil {
		writeCatalogErr(c, req.Model, err, deprecationHint)
		return
	}

	format := req.ResponseFormat
	if format == "" {
		format = "mp3"
	}

	if req.StreamFormat == "sse" {
		h.handleStream(c, req, format)
		return
	}

	audio, err := h.Adapter.SynthesizeBuffered(c.Request.Context(), req.Input, req.Voice, format)
	if err != nil {
		writeAPIErr(c, err)
		return
	}

	contentType := speechContentTypes[format]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	_, err = streaming.EmitChunked(c.Writer, c.Writer.Flush, bytes.NewReader(audio))
	if err != nil {
		rc.WithField("stream_error", err.Error())
	}
}

func (h *SpeechHandler) handleStream(c *gin.Context, req openaiapi.SpeechRequest, format string) {
	rc := RequestContextFrom(c)
	pr, err := h.Adapter.Synthesize(c.Request.Context(), req.Input, req.Voice, format)
	if err != nil {
		writeAPIErr(c, err)
		return
	}
	defer pr.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	frames := make(chan streaming.Frame, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		defer close(errs)
		buf := make([]byte, 32*1024)
		for {
			n, readErr := pr.Read(buf)
			if n > 0 {
				data, marshalErr := json.Marshal(map[string]string{
					"type":  "speech.audio.delta",
					"audio": base64.StdEncoding.EncodeToString(buf[:n]),
				})
				if marshalErr != nil {
					errs <- marshalErr
					return
				}
				frames <- streaming.Frame{Data: data}
			}
			if readErr == io.EOF {
				doneData, _ := json.Marshal(map[string]string{"type": "speech.audio.done"})
				frames <- streaming.Frame{Data: doneData}
				return
			}
			if readErr != nil {
				errs <- readErr
				return
			}
		}
	}()

	src := streaming.ChanSource{Frames: frames, Errs: errs}
	_, _, err = streaming.EmitSSE(c.Request.Context(), c.Writer, c.Writer.Flush, src, false)
	if err != nil {
		rc.WithField("stream_error", err.Error())
	}
}

