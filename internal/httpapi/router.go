package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hongbietcode/voice-to-slide/internal/common"
	"github.com/hongbietcode/voice-to-slide/internal/config"
	"github.com/hongbietcode/voice-to-slide/internal/download"
	"github.com/hongbietcode/voice-to-slide/internal/httpapi/handlers"
	"github.com/hongbietcode/voice-to-slide/internal/httpapi/middleware"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/store/redisstore"
)

func NewRouter(cfg config.Config, svc *job.Service, rds *redisstore.Store, tokens *download.Tokens) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(cors.Default())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(cfg, svc, rds, tokens)

	r.GET("/ping", func(c *gin.Context) { common.Ok(c, gin.H{"pong": true}) })

	v1 := r.Group("/api/v1")
	v1.POST("/generate", middleware.RateLimit(rds, cfg.RateLimitPerHour), h.Generate)
	v1.GET("/jobs", h.ListJobs)
	v1.GET("/jobs/:job_id", h.GetJob)
	v1.DELETE("/jobs/:job_id", h.DeleteJob)
	v1.POST("/jobs/:job_id/edit-structure", h.EditStructure)
	v1.POST("/jobs/:job_id/confirm-generation", h.ConfirmGeneration)
	v1.GET("/download/:job_id", h.Download)
	v1.GET("/download/:job_id/transcription", h.DownloadTranscription)
	v1.GET("/preview/:job_id/slide/:slide_number", h.PreviewSlide)
	v1.GET("/ws/:job_id", h.WatchJob)

	return r
}
