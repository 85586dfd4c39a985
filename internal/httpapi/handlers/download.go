package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hongbietcode/voice-to-slide/internal/common"
	"github.com/hongbietcode/voice-to-slide/internal/job"
)

// Download serves the assembled deck. The link is self-authorizing: the
// token signed into pptx_file_url must match the job id in the path.
func (h *Handler) Download(c *gin.Context) {
	jobID := c.Param("job_id")

	token := c.Query("token")
	if token == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "download token required")
		return
	}
	tokenJobID, err := h.Tokens.Verify(token)
	if err != nil || tokenJobID != jobID {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid download token")
		return
	}

	j, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if j.Status != job.StatusCompleted || j.PPTXFilePath == nil {
		common.Fail(c, http.StatusConflict, 40902, "presentation not ready")
		return
	}
	if _, err := os.Stat(*j.PPTXFilePath); err != nil {
		common.Fail(c, http.StatusNotFound, 40402, "presentation file missing")
		return
	}

	c.FileAttachment(*j.PPTXFilePath, "presentation.pptx")
}

// DownloadTranscription serves the full transcript JSON. Available as soon as
// the transcribe stage stored it; jobs submitted with save_transcription=false
// never have one.
func (h *Handler) DownloadTranscription(c *gin.Context) {
	jobID := c.Param("job_id")

	j, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if j.TranscriptionJSON == nil || *j.TranscriptionJSON == "" {
		common.Fail(c, http.StatusNotFound, 40403, "transcription not available")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="transcription.json"`)
	c.Data(http.StatusOK, "application/json", []byte(*j.TranscriptionJSON))
}

// PreviewSlide serves one rendered slide PNG by its zero-based index, so a
// client can show the deck before (or without) downloading the pptx.
func (h *Handler) PreviewSlide(c *gin.Context) {
	jobID := c.Param("job_id")

	n, err := strconv.Atoi(c.Param("slide_number"))
	if err != nil || n < 0 {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid slide number")
		return
	}

	j, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	files, ok := j.ImageFilesOf()
	if !ok || n >= len(files) {
		common.Fail(c, http.StatusNotFound, 40404, "slide preview not available")
		return
	}
	if _, err := os.Stat(files[n]); err != nil {
		common.Fail(c, http.StatusGone, 41001, "slide image expired or deleted")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="slide_%02d.png"`, n))
	c.File(files[n])
}
