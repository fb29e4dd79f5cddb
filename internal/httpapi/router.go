package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convault/convault/internal/common"
	"github.com/convault/convault/internal/httpapi/handlers"
	"github.com/convault/convault/internal/httpapi/middleware"
	"github.com/convault/convault/internal/observability"
)

// NewRouter wires middleware and all API routes around a prepared Handler.
func NewRouter(h *handlers.Handler, metrics *observability.Metrics, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(h.Log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics(metrics))

	if h.Cfg.Env == "development" {
		// The browser UI runs off a different origin during development.
		r.Use(cors.Default())
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")

	api.GET("/providers", h.ListProviders)

	api.GET("/api-keys", h.ListAPIKeys)
	api.POST("/api-keys", h.CreateAPIKey)
	api.PATCH("/api-keys/:id", h.UpdateAPIKey)
	api.DELETE("/api-keys/:id", h.DeleteAPIKey)

	api.GET("/projects", h.ListProjects)
	api.POST("/projects", h.CreateProject)
	api.PATCH("/projects/:id", h.UpdateProject)
	api.DELETE("/projects/:id", h.DeleteProject)

	api.GET("/conversations", h.ListConversations)
	api.GET("/conversations/:id", h.GetConversation)
	api.GET("/conversations/:id/export-markdown", h.ExportConversationMarkdown)
	api.POST("/conversations/:id/projects", h.AssignConversationProject)
	api.DELETE("/conversations/:id/projects/:project_id", h.RemoveConversationProject)
	api.GET("/conversations/:id/edits", h.ListConversationEdits)
	api.POST("/conversations/:id/edits", h.CreateConversationEdit)
	api.PATCH("/edits/:id", h.UpdateConversationEdit)
	api.DELETE("/edits/:id", h.DeleteConversationEdit)

	api.GET("/import-jobs", h.ListImportJobs)
	api.POST("/import-jobs", h.CreateImportJob)
	api.GET("/import-jobs/:id", h.GetImportJob)

	return r
}
