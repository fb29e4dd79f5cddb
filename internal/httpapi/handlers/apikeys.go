package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/models"
)

type createAPIKeyRequest struct {
	ProviderID  string `json:"provider_id" binding:"required"`
	Label       string `json:"label" binding:"required"`
	APIKeyValue string `json:"api_key_value" binding:"required"`
}

type updateAPIKeyRequest struct {
	Label    *string `json:"label"`
	IsActive *bool   `json:"is_active"`
}

func (h *Handler) ListAPIKeys(c *gin.Context) {
	ctx := c.Request.Context()
	q := h.DB.WithContext(ctx).Model(&models.APIKey{})
	if pid := c.Query("provider_id"); pid != "" {
		q = q.Where("provider_id = ?", pid)
	}
	var keys []models.APIKey
	if err := q.Order("created_at").Find(&keys).Error; err != nil {
		h.Log.Error("list api keys", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list api keys")
		return
	}
	common.OK(c, keys)
}

func (h *Handler) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "provider_id, label and api_key_value are required")
		return
	}
	ctx := c.Request.Context()

	var prov models.Provider
	if err := h.DB.WithContext(ctx).First(&prov, "id = ?", req.ProviderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "provider not found")
			return
		}
		h.Log.Error("load provider", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create api key")
		return
	}

	enc, err := h.Cipher.Encrypt(req.APIKeyValue)
	if err != nil {
		h.Log.Error("encrypt api key", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create api key")
		return
	}

	key := models.APIKey{
		ProviderID:   prov.ID,
		Label:        req.Label,
		KeyEncrypted: enc,
		IsActive:     true,
	}
	if err := h.DB.WithContext(ctx).Create(&key).Error; err != nil {
		h.Log.Error("create api key", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create api key")
		return
	}
	common.OK(c, key)
}

func (h *Handler) UpdateAPIKey(c *gin.Context) {
	var req updateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "invalid request body")
		return
	}
	ctx := c.Request.Context()

	var key models.APIKey
	if err := h.DB.WithContext(ctx).First(&key, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "api key not found")
			return
		}
		h.Log.Error("load api key", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to update api key")
		return
	}

	updates := map[string]any{}
	if req.Label != nil {
		updates["label"] = *req.Label
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := h.DB.WithContext(ctx).Model(&key).Updates(updates).Error; err != nil {
			h.Log.Error("update api key", "error", err)
			common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to update api key")
			return
		}
	}
	common.OK(c, key)
}

func (h *Handler) DeleteAPIKey(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var key models.APIKey
	if err := h.DB.WithContext(ctx).First(&key, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "api key not found")
			return
		}
		h.Log.Error("load api key", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to delete api key")
		return
	}

	var jobCount int64
	if err := h.DB.WithContext(ctx).Model(&models.ImportJob{}).Where("api_key_id = ?", id).Count(&jobCount).Error; err != nil {
		h.Log.Error("count jobs for api key", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to delete api key")
		return
	}
	if jobCount > 0 {
		common.Fail(c, http.StatusConflict, common.CodeConflict, "api key is referenced by import jobs; deactivate it instead")
		return
	}

	if err := h.DB.WithContext(ctx).Delete(&key).Error; err != nil {
		h.Log.Error("delete api key", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to delete api key")
		return
	}
	common.OK(c, gin.H{"deleted": id})
}
