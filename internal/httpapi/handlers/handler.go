package handlers

import (
	"github.com/hongbietcode/voice-to-slide/internal/config"
	"github.com/hongbietcode/voice-to-slide/internal/download"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/store/redisstore"
)

type Handler struct {
	Cfg    config.Config
	Svc    *job.Service
	Redis  *redisstore.Store
	Tokens *download.Tokens
}

func NewHandler(cfg config.Config, svc *job.Service, rds *redisstore.Store, tokens *download.Tokens) *Handler {
	return &Handler{Cfg: cfg, Svc: svc, Redis: rds, Tokens: tokens}
}

// viewOf shapes a job for API responses, attaching the signed download URL
// once the deck exists.
func (h *Handler) viewOf(j *job.Job) job.View {
	url := ""
	if j.Status == job.StatusCompleted && j.PPTXFilePath != nil {
		url = h.Tokens.URL(j.ID)
	}
	return job.NewView(j, url)
}
