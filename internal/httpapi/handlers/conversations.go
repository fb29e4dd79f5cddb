package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/export"
	"github.com/convault/convault/internal/models"
)

type conversationListItem struct {
	ID                     string     `json:"id"`
	ProviderID             string     `json:"provider_id"`
	ProviderConversationID *string    `json:"provider_conversation_id"`
	Title                  *string    `json:"title"`
	StartedAt              *time.Time `json:"started_at"`
	EndedAt                *time.Time `json:"ended_at"`
	Origin                 string     `json:"origin"`
	Archived               bool       `json:"archived"`
	MessageCount           int64      `json:"message_count"`
	HasArtifacts           bool       `json:"has_artifacts"`
	Projects               []string   `json:"projects"`
}

type conversationPage struct {
	Items      []conversationListItem `json:"items"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int64                  `json:"total_pages"`
}

func (h *Handler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()

	page, pageSize, err := h.pageParams(c)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, err.Error())
		return
	}

	q := h.DB.WithContext(ctx).Model(&models.Conversation{})

	if pid := c.Query("provider_id"); pid != "" {
		q = q.Where("provider_id = ?", pid)
	}
	if projID := c.Query("project_id"); projID != "" {
		q = q.Where("id IN (?)", h.DB.Model(&models.ConversationProject{}).
			Select("conversation_id").Where("project_id = ?", projID))
	}
	if search := c.Query("search"); search != "" {
		term := "%" + search + "%"
		q = q.Where("title LIKE ? OR id IN (?)", term,
			h.DB.Model(&models.Message{}).Select("conversation_id").Where("content LIKE ?", term))
	}
	if from := c.Query("from_date"); from != "" {
		t, err := parseDate(from)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "from_date must be RFC3339 or YYYY-MM-DD")
			return
		}
		q = q.Where("started_at >= ?", t)
	}
	if to := c.Query("to_date"); to != "" {
		t, err := parseDateEnd(to)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "to_date must be RFC3339 or YYYY-MM-DD")
			return
		}
		q = q.Where("started_at <= ?", t)
	}
	if ha := c.Query("has_artifacts"); ha != "" {
		want, err := strconv.ParseBool(ha)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "has_artifacts must be a boolean")
			return
		}
		sub := h.DB.Model(&models.Artifact{}).Select("conversation_id")
		if want {
			q = q.Where("id IN (?)", sub)
		} else {
			q = q.Where("id NOT IN (?)", sub)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		h.Log.Error("count conversations", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list conversations")
		return
	}

	var convs []models.Conversation
	if err := q.Order("started_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&convs).Error; err != nil {
		h.Log.Error("list conversations", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list conversations")
		return
	}

	items := make([]conversationListItem, 0, len(convs))
	for _, conv := range convs {
		var msgCount int64
		if err := h.DB.WithContext(ctx).Model(&models.Message{}).
			Where("conversation_id = ?", conv.ID).Count(&msgCount).Error; err != nil {
			h.Log.Error("count messages", "error", err)
			common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list conversations")
			return
		}
		var artCount int64
		if err := h.DB.WithContext(ctx).Model(&models.Artifact{}).
			Where("conversation_id = ?", conv.ID).Count(&artCount).Error; err != nil {
			h.Log.Error("count artifacts", "error", err)
			common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list conversations")
			return
		}
		names, err := h.projectNames(c, conv.ID)
		if err != nil {
			h.Log.Error("load conversation projects", "error", err)
			common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list conversations")
			return
		}
		items = append(items, conversationListItem{
			ID:                     conv.ID,
			ProviderID:             conv.ProviderID,
			ProviderConversationID: conv.ProviderConversationID,
			Title:                  conv.Title,
			StartedAt:              conv.StartedAt,
			EndedAt:                conv.EndedAt,
			Origin:                 conv.Origin,
			Archived:               conv.Archived,
			MessageCount:           msgCount,
			HasArtifacts:           artCount > 0,
			Projects:               names,
		})
	}

	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	common.OK(c, conversationPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

func (h *Handler) GetConversation(c *gin.Context) {
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
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to load conversation")
		return
	}

	names, err := h.projectNames(c, conv.ID)
	if err != nil {
		h.Log.Error("load conversation projects", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to load conversation")
		return
	}

	common.OK(c, gin.H{
		"conversation": conv,
		"projects":     names,
	})
}

func (h *Handler) ExportConversationMarkdown(c *gin.Context) {
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
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to export conversation")
		return
	}

	var prov models.Provider
	if err := h.DB.WithContext(ctx).First(&prov, "id = ?", conv.ProviderID).Error; err != nil {
		h.Log.Error("load provider", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to export conversation")
		return
	}

	names, err := h.projectNames(c, conv.ID)
	if err != nil {
		h.Log.Error("load conversation projects", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to export conversation")
		return
	}

	doc := export.Markdown(&conv, prov.DisplayName, names)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", conv.ID+".md"))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(doc))
}

type assignProjectRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
}

func (h *Handler) AssignConversationProject(c *gin.Context) {
	var req assignProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "project_id is required")
		return
	}
	ctx := c.Request.Context()
	convID := c.Param("id")

	var conv models.Conversation
	if err := h.DB.WithContext(ctx).First(&conv, "id = ?", convID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "conversation not found")
			return
		}
		h.Log.Error("load conversation", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to assign project")
		return
	}
	var project models.Project
	if err := h.DB.WithContext(ctx).First(&project, "id = ?", req.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "project not found")
			return
		}
		h.Log.Error("load project", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to assign project")
		return
	}

	link := models.ConversationProject{ConversationID: convID, ProjectID: project.ID}
	if err := h.DB.WithContext(ctx).FirstOrCreate(&link, link).Error; err != nil {
		h.Log.Error("assign project", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to assign project")
		return
	}
	common.OK(c, link)
}

func (h *Handler) RemoveConversationProject(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")
	projID := c.Param("project_id")

	res := h.DB.WithContext(ctx).
		Where("conversation_id = ? AND project_id = ?", convID, projID).
		Delete(&models.ConversationProject{})
	if res.Error != nil {
		h.Log.Error("remove project", "error", res.Error)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to remove project")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "conversation is not assigned to this project")
		return
	}
	common.OK(c, gin.H{"removed": projID})
}

func (h *Handler) projectNames(c *gin.Context, conversationID string) ([]string, error) {
	names := []string{}
	err := h.DB.WithContext(c.Request.Context()).Model(&models.Project{}).
		Joins("JOIN conversation_projects cp ON cp.project_id = projects.id").
		Where("cp.conversation_id = ?", conversationID).
		Order("projects.name").
		Pluck("projects.name", &names).Error
	return names, err
}

func (h *Handler) pageParams(c *gin.Context) (page, pageSize int, err error) {
	page = 1
	pageSize = h.Cfg.DefaultPageSize
	if v := c.Query("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
	}
	if v := c.Query("page_size"); v != "" {
		pageSize, err = strconv.Atoi(v)
		if err != nil || pageSize < 1 {
			return 0, 0, errors.New("page_size must be a positive integer")
		}
	}
	if pageSize > h.Cfg.MaxPageSize {
		pageSize = h.Cfg.MaxPageSize
	}
	return page, pageSize, nil
}

// parseDate accepts RFC3339 timestamps or bare dates.
func parseDate(s string) (time.Time, error) {
	t, _, err := parseDateOnly(s)
	return t, err
}

func parseDateOnly(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", s)
	return t, true, err
}

// parseDateEnd parses an upper bound. A bare date covers its whole day.
func parseDateEnd(s string) (time.Time, error) {
	t, dateOnly, err := parseDateOnly(s)
	if err != nil {
		return time.Time{}, err
	}
	if dateOnly {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
