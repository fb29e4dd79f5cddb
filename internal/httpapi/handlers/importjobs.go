package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/models"
)

type createImportJobRequest struct {
	ProviderID string `json:"provider_id" binding:"required"`
	APIKeyID   string `json:"api_key_id" binding:"required"`
	FromDate   string `json:"from_date"`
	ToDate     string `json:"to_date"`
}

func (h *Handler) ListImportJobs(c *gin.Context) {
	ctx := c.Request.Context()
	q := h.DB.WithContext(ctx).Model(&models.ImportJob{})
	if pid := c.Query("provider_id"); pid != "" {
		q = q.Where("provider_id = ?", pid)
	}
	var jobs []models.ImportJob
	if err := q.Order("started_at DESC").Find(&jobs).Error; err != nil {
		h.Log.Error("list import jobs", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to list import jobs")
		return
	}
	common.OK(c, jobs)
}

func (h *Handler) GetImportJob(c *gin.Context) {
	var job models.ImportJob
	if err := h.DB.WithContext(c.Request.Context()).First(&job, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "import job not found")
			return
		}
		h.Log.Error("load import job", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to load import job")
		return
	}
	common.OK(c, job)
}

func (h *Handler) CreateImportJob(c *gin.Context) {
	var req createImportJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "provider_id and api_key_id are required")
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
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create import job")
		return
	}
	if _, err := h.Registry.Get(prov.Name); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "no import adapter is available for this provider")
		return
	}

	var key models.APIKey
	if err := h.DB.WithContext(ctx).First(&key, "id = ?", req.APIKeyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "api key not found")
			return
		}
		h.Log.Error("load api key", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create import job")
		return
	}
	if key.ProviderID != prov.ID {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "api key belongs to a different provider")
		return
	}
	if !key.IsActive {
		common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "api key is inactive")
		return
	}

	// stored normalized to RFC3339 so the runner can parse it back
	requested := map[string]*string{"from_date": nil, "to_date": nil}
	if req.FromDate != "" {
		t, err := parseDate(req.FromDate)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "from_date must be RFC3339 or YYYY-MM-DD")
			return
		}
		s := t.UTC().Format(time.RFC3339)
		requested["from_date"] = &s
	}
	if req.ToDate != "" {
		t, err := parseDateEnd(req.ToDate)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, common.CodeBadRequest, "to_date must be RFC3339 or YYYY-MM-DD")
			return
		}
		s := t.UTC().Format(time.RFC3339)
		requested["to_date"] = &s
	}
	rangeJSON, err := json.Marshal(requested)
	if err != nil {
		h.Log.Error("marshal requested range", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create import job")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		h.Log.Error("generate job id", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create import job")
		return
	}

	job := models.ImportJob{
		ID:             jobID,
		ProviderID:     prov.ID,
		APIKeyID:       key.ID,
		StartedAt:      time.Now().UTC(),
		Status:         models.JobRunning,
		RequestedRange: rangeJSON,
	}
	if err := h.DB.WithContext(ctx).Create(&job).Error; err != nil {
		h.Log.Error("create import job", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to create import job")
		return
	}

	if err := h.Dispatcher.Dispatch(ctx, job.ID); err != nil {
		h.Log.Error("dispatch import job", "job_id", job.ID, "error", err)
		now := time.Now().UTC()
		detail := "job could not be dispatched for execution"
		h.DB.WithContext(ctx).Model(&models.ImportJob{}).
			Where("id = ? AND status = ?", job.ID, models.JobRunning).
			Updates(map[string]any{
				"status":        models.JobError,
				"finished_at":   &now,
				"error_details": &detail,
			})
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "failed to dispatch import job")
		return
	}

	common.OK(c, job)
}
