package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge/bedrock-gateway/internal/adapters/transcription"
	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// TranscriptionHandler backs POST /v1/audio/transcriptions, a
// multipart/form-data endpoint, grounded on the teacher's
// extractAudioModelFromMultipart helper in relay/controller.
type TranscriptionHandler struct {
	Catalog *catalog.Catalog
	Adapter *transcription.Adapter
}

func (h *TranscriptionHandler) Handle(c *gin.Context) {
	model := c.PostForm("model")
	rc := RequestContextFrom(c)
	rc.Model = model

	_, deprecationHint, err := h.Catalog.Validate(c.Request.Context(), model, "audio", "text", false)
	if err != nil {
		writeCatalogErr(c, model, err, deprecationHint)
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		writeAPIErr(c, apierr.InvalidRequest("missing required field 'file': "+err.Error()))
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		writeAPIErr(c, apierr.InvalidRequest("read uploaded file: "+err.Error()))
		return
	}

	responseFormat := c.PostForm("response_format")
	if responseFormat == "" {
		responseFormat = "json"
	}
	languageHint := c.PostForm("language")

	subtitleFormat := ""
	if responseFormat == "srt" || responseFormat == "vtt" {
		subtitleFormat = responseFormat
	}

	result, err := h.Adapter.Run(c.Request.Context(), rc.RequestID, audio, languageHint, subtitleFormat)
	if err != nil {
		writeAPIErr(c, err)
		return
	}

	writeTranscriptionResult(c, result, responseFormat)
}

func writeTranscriptionResult(c *gin.Context, result *transcription.Result, responseFormat string) {
	switch responseFormat {
	case "text":
		c.String(http.StatusOK, result.Text)
	case "srt", "vtt":
		contentType := "application/x-subrip"
		if responseFormat == "vtt" {
			contentType = "text/vtt"
		}
		c.Data(http.StatusOK, contentType, []byte(result.SubtitleBody))
	case "verbose_json":
		segs := make([]openaiapi.TranscriptionSegment, len(result.Segments))
		for i, s := range result.Segments {
			segs[i] = openaiapi.TranscriptionSegment{ID: s.ID, Start: s.Start, End: s.End, Text: s.Text}
		}
		c.JSON(http.StatusOK, openaiapi.TranscriptionResponse{
			Text: result.Text, Language: result.LanguageCode, Duration: result.DurationSeconds,
			Segments: segs,
			Usage: &openaiapi.TranscriptionUsage{Type: "duration", Seconds: int(result.DurationSeconds)},
		})
	default: // "json"
		c.JSON(http.StatusOK, openaiapi.TranscriptionResponse{
			Text: result.Text,
			Usage: &openaiapi.TranscriptionUsage{Type: "duration", Seconds: int(result.DurationSeconds)},
		})
	}
}
