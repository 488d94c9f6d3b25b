package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge/bedrock-gateway/internal/adapters/embeddings"
	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// EmbeddingsHandler backs POST /v1/embeddings.
type EmbeddingsHandler struct {
	Catalog  *catalog.Catalog
	Adapter  *embeddings.Adapter
}

func (h *EmbeddingsHandler) Handle(c *gin.Context) {
	var req openaiapi.EmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIErr(c, apierr.InvalidRequest("invalid request body: "+err.Error()))
		return
	}

	rc := RequestContextFrom(c)
	rc.Model = req.Model

	desc, deprecationHint, err := h.Catalog.Validate(c.Request.Context(), req.Model, "text", "embedding", false)
	if err != nil {
		writeCatalogErr(c, req.Model, err, deprecationHint)
		return
	}
	req.Model = desc.ID

	resp, err := h.Adapter.Invoke(c.Request.Context(), rc.RequestID, &req)
	if err != nil {
		writeAPIErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
