package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge/bedrock-gateway/internal/adapters/translation"
	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// TranslationHandler backs POST /v1/audio/translations, the multipart
// endpoint that transcribes then translates audio to English, per
// spec.md §4.5.
type TranslationHandler struct {
	Catalog *catalog.Catalog
	Adapter *translation.Adapter
}

func (h *TranslationHandler) Handle(c *gin.Context) {
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
	subtitleFormat := ""
	if responseFormat == "srt" || responseFormat == "vtt" {
		subtitleFormat = responseFormat
	}

	result, err := h.Adapter.Run(c.Request.Context(), rc.RequestID, audio, subtitleFormat)
	if err != nil {
		writeAPIErr(c, err)
		return
	}

	switch responseFormat {
	case "text":
		c.String(http.StatusOK, result.Text)
	case "srt", "vtt":
		contentType := "application/x-subrip"
		if responseFormat == "vtt" {
			contentType = "text/vtt"
		}
		c.Data(http.StatusOK, contentType, []byte(result.SubtitleBody))
	default: // "json"
		c.JSON(http.StatusOK, openaiapi.TranslationResponse{
			Text:     result.Text,
			Duration: result.DurationSeconds,
			Usage:    &openaiapi.TranscriptionUsage{Type: "duration", Seconds: int(result.DurationSeconds)},
		})
	}
}
