package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/proapi/proapi/internal/gateway"
	"github.com/proapi/proapi/internal/server/middleware"
	"github.com/proapi/proapi/pkg/api"
)

type ModelHandler struct {
	service *gateway.Service
}

func NewModelHandler(service *gateway.Service) *ModelHandler {
	return &ModelHandler{service: service}
}

// ListModels returns the models the calling token may route to, in the
// shape of the upstream models endpoint.
func (h *ModelHandler) ListModels(c *gin.Context) {
	token := c.GetString(middleware.ContextToken)

	c.JSON(http.StatusOK, api.ModelList{
		Object: "list",
		Data:   h.service.ListModels(token),
	})
}
