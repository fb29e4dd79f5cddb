package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/config"
	"github.com/convault/convault/internal/provider"
	"github.com/convault/convault/internal/queue"
	"github.com/convault/convault/internal/secrets"
)

// Handler carries the dependencies shared by all route handlers.
type Handler struct {
	DB         *gorm.DB
	Cfg        config.Config
	Cipher     *secrets.Cipher
	Registry   *provider.Registry
	Dispatcher queue.Dispatcher
	Log        *slog.Logger
}

func New(db *gorm.DB, cfg config.Config, cipher *secrets.Cipher, reg *provider.Registry, disp queue.Dispatcher, log *slog.Logger) *Handler {
	return &Handler{
		DB:         db,
		Cfg:        cfg,
		Cipher:     cipher,
		Registry:   reg,
		Dispatcher: disp,
		Log:        log,
	}
}

func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		common.Fail(c, http.StatusServiceUnavailable, common.CodeInternal, "database unavailable")
		return
	}
	common.OK(c, gin.H{"status": "ok"})
}
