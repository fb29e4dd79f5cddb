package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/export"
	"github.com/convault/convault/internal/models"
)

type createEditRequest struct {
	Label          string  `json:"label" binding:"required"`
	EditedMarkdown string  `json:"edited_markdown" binding:"required"`
	Notes          *string `json:"notes"`
}

type updateEditRequest struct {
	Label          *string `json:"label"`
	EditedMarkdown *string `json:"edited_markdown"`
	Notes          *string `json:"notes"`
}

func (h *Handler) ListConversationEdits(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")

	var count int64
	if err := h.DB.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", convID).Count(&count).Error; err != nil {
		h.Log.Error("load conversation", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list edits")
		return
	}
	if count == 0 {
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "conversation not found")
		return
	}

	var edits []models.ConversationEdit
	if err := h.DB.WithContext(ctx).Where("conversation_id = ?", convID).Order("created_at").Find(&edits).Error; err != nil {
		h.Log.Error("list edits", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list edits")
		return
	}
	common.OK(c, edits)
}

func (h *Handler) CreateConversationEdit(c *gin.Context) {
	var req createEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "label and edited_markdown are required")
		return
	}
	ctx := c.Request.Context()

	var conv models.Conversation
	err := h.DB.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("sequence_index") }).
		Preload("Artifacts", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&conv, "id = ?", c.Param("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "conversation not found")
			return
		}
		h.Log.Error("load conversation", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create edit")
		return
	}

	// Hash of the current base export so a stale edit can be detected later.
	var prov models.Provider
	if err := h.DB.WithContext(ctx).First(&prov, "id = ?", conv.ProviderID).Error; err != nil {
		h.Log.Error("load provider", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create edit")
		return
	}
	names, err := h.projectNames(c, conv.ID)
	if err != nil {
		h.Log.Error("load conversation projects", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create edit")
		return
	}
	sum := sha256.Sum256([]byte(export.Markdown(&conv, prov.DisplayName, names)))
	baseHash := hex.EncodeToString(sum[:])

	edit := models.ConversationEdit{
		ConversationID:       conv.ID,
		Label:                req.Label,
		EditedMarkdown:       req.EditedMarkdown,
		Notes:                req.Notes,
		BaseConversationHash: &baseHash,
	}
	if err := h.DB.WithContext(ctx).Create(&edit).Error; err != nil {
		h.Log.Error("create edit", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create edit")
		return
	}
	common.OK(c, edit)
}

func (h *Handler) UpdateConversationEdit(c *gin.Context) {
	var req updateEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "invalid request body")
		return
	}
	ctx := c.Request.Context()

	var edit models.ConversationEdit
	if err := h.DB.WithContext(ctx).First(&edit, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "edit not found")
			return
		}
		h.Log.Error("load edit", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to update edit")
		return
	}

	updates := map[string]any{}
	if req.Label != nil {
		updates["label"] = *req.Label
	}
	if req.EditedMarkdown != nil {
		updates["edited_markdown"] = *req.EditedMarkdown
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) > 0 {
		if err := h.DB.WithContext(ctx).Model(&edit).Updates(updates).Error; err != nil {
			h.Log.Error("update edit", "error", err)
			common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to update edit")
			return
		}
	}
	common.OK(c, edit)
}

func (h *Handler) DeleteConversationEdit(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	res := h.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.ConversationEdit{})
	if res.Error != nil {
		h.Log.Error("delete edit", "error", res.Error)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to delete edit")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "edit not found")
		return
	}
	common.OK(c, gin.H{"deleted": id})
}
