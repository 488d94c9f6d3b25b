package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaybridge/bedrock-gateway/internal/adapters/images"
	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/openaiapi"
)

// ImagesHandler backs POST /v1/images/generations.
type ImagesHandler struct {
	Catalog *catalog.Catalog
	Adapter *images.Adapter
}

func (h *ImagesHandler) Handle(c *gin.Context) {
	var req openaiapi.ImageGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIErr(c, apierr.InvalidRequest("invalid request body: "+err.Error()))
		return
	}

	rc := RequestContextFrom(c)
	rc.Model = req.Model

	desc, deprecationHint, err := h.Catalog.Validate(c.Request.Context(), req.Model, "text", "image", false)
	if err != nil {
		writeCatalogErr(c, req.Model, err, deprecationHint)
		return
	}

	resp, err := h.Adapter.Invoke(c.Request.Context(), desc.ID, &req, "png")
	if err != nil {
		writeAPIErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
