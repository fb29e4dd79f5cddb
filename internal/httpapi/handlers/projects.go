package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/models"
)

type createProjectRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) ListProjects(c *gin.Context) {
	var projects []models.Project
	if err := h.DB.WithContext(c.Request.Context()).Order("name").Find(&projects).Error; err != nil {
		h.Log.Error("list projects", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list projects")
		return
	}
	common.OK(c, projects)
}

func (h *Handler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "name is required")
		return
	}
	ctx := c.Request.Context()

	var count int64
	if err := h.DB.WithContext(ctx).Model(&models.Project{}).Where("name = ?", req.Name).Count(&count).Error; err != nil {
		h.Log.Error("check project name", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create project")
		return
	}
	if count > 0 {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "a project with this name already exists")
		return
	}

	project := models.Project{Name: req.Name, Description: req.Description}
	if err := h.DB.WithContext(ctx).Create(&project).Error; err != nil {
		h.Log.Error("create project", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create project")
		return
	}
	common.OK(c, project)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "invalid request body")
		return
	}
	ctx := c.Request.Context()

	var project models.Project
	if err := h.DB.WithContext(ctx).First(&project, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "project not found")
			return
		}
		h.Log.Error("load project", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to update project")
		return
	}

	updates := map[string]any{}
	if req.Name != nil && *req.Name != project.Name {
		var count int64
		if err := h.DB.WithContext(ctx).Model(&models.Project{}).Where("name = ? AND id <> ?", *req.Name, project.ID).Count(&count).Error; err != nil {
			h.Log.Error("check project name", "error", err)
			common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to update project")
			return
		}
		if count > 0 {
			common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "a project with this name already exists")
			return
		}
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) > 0 {
		if err := h.DB.WithContext(ctx).Model(&project).Updates(updates).Error; err != nil {
			h.Log.Error("update project", "error", err)
			common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to update project")
			return
		}
	}
	common.OK(c, project)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var project models.Project
	if err := h.DB.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "project not found")
			return
		}
		h.Log.Error("load project", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to delete project")
		return
	}

	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.ConversationProject{}).Error; err != nil {
			return err
		}
		return tx.Delete(&project).Error
	})
	if err != nil {
		h.Log.Error("delete project", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to delete project")
		return
	}
	common.OK(c, gin.H{"deleted": id})
}
