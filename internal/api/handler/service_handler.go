package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsplit/stemsplit/internal/version"
)

// Connect handles GET /connect
// Liveness probe for clients before they submit.
func (h *JobHandler) Connect(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":  version.ServiceName,
		"version":  version.Version,
		"protocol": version.Protocol,
	})
}

// Models handles GET /models
// Lists the model names a submission may select.
func (h *JobHandler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, h.models)
}
