package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) dashboardHandler(c *gin.Context) {
	metrics, err := a.dash.Snapshot(c.Request.Context())
	if err != nil {
		a.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}
