package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/models"
)

func (h *Handler) ListProviders(c *gin.Context) {
	var providers []models.Provider
	if err := h.DB.WithContext(c.Request.Context()).Order("name").Find(&providers).Error; err != nil {
		h.Log.Error("list providers", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list providers")
		return
	}
	common.OK(c, providers)
}
