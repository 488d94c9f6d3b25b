package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// modelsListHandler backs GET /v1/models, the OpenAI-shaped model listing.
func modelsListHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		descriptors := cat.ListForResponse()
		list := openaiapi.ModelList{Object: "list"}
		for _, d := range descriptors {
			list.Data = append(list.Data, openaiapi.Model{
				ID:      d.ID,
				Object:  "model",
				Created: time.Now().Unix(),
				OwnedBy: d.Provider,
			})
		}
		c.JSON(http.StatusOK, list)
	}
}

// modelGetHandler backs GET /v1/models/{id}.
func modelGetHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		d, err := cat.Get(id)
		if err != nil {
			env := apierr.ModelNotFound(id)
			c.JSON(env.StatusCode, env.Envelope)
			return
		}
		c.JSON(http.StatusOK, openaiapi.Model{
			ID:      d.ID,
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: d.Provider,
		})
	}
}

// availableModelsHandler backs GET /available_models, an unauthenticated
// diagnostic endpoint listing richer per-model metadata (region, modality
// support, inference-profile routing), grounded on the teacher's
// /api/models status-style endpoint used for client-side discovery.
func availableModelsHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		descriptors := cat.ListForResponse()
		out := make([]openaiapi.AvailableModel, 0, len(descriptors))
		for _, d := range descriptors {
			out = append(out, openaiapi.AvailableModel{
				ID:                 d.ID,
				Provider:           d.Provider,
				Region:             d.Region,
				InputModalities:    d.InputModalities,
				OutputModalities:   d.OutputModalities,
				ResponseStreaming:  d.ResponseStreaming,
				Legacy:             d.Legacy,
				InferenceProfileID: d.InferenceProfileID,
			})
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}
