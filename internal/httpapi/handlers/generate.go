package handlers

import (
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hongbietcode/voice-to-slide/internal/common"
	"github.com/hongbietcode/voice-to-slide/internal/job"
)

var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".webm": true,
}

// Generate starts a new presentation job from an uploaded recording.
func (h *Handler) Generate(c *gin.Context) {
	fh, err := c.FormFile("audio_file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "audio_file is required")
		return
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExtensions[ext] {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid file format, allowed: .mp3, .wav, .m4a, .ogg, .webm")
		return
	}

	maxBytes := int64(h.Cfg.MaxUploadSizeMB) * 1024 * 1024
	if fh.Size > maxBytes {
		common.Fail(c, http.StatusRequestEntityTooLarge, 10003, "file too large")
		return
	}

	cfg := job.SubmitConfig{
		Theme:             c.DefaultPostForm("theme", job.DefaultTheme),
		IncludeImages:     c.DefaultPostForm("include_images", "true") == "true",
		InteractiveMode:   c.PostForm("interactive_mode") == "true",
		SaveTranscription: c.DefaultPostForm("save_transcription", "true") == "true",
	}

	f, err := fh.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "cannot read upload")
		return
	}
	defer f.Close()

	j, err := h.Svc.Submit(c.Request.Context(), filepath.Base(fh.Filename), f, cfg)
	if err != nil {
		log.Printf("submit failed filename=%s err=%v", fh.Filename, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create job")
		return
	}

	common.Ok(c, gin.H{
		"job_id": j.ID,
		"status": j.Status,
	})
}
