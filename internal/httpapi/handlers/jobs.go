package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hongbietcode/voice-to-slide/internal/common"
	"github.com/hongbietcode/voice-to-slide/internal/job"
)

func (h *Handler) GetJob(c *gin.Context) {
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

	common.Ok(c, h.viewOf(j))
}

func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	jobs, err := h.Svc.ListRecent(c.Request.Context(), limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "internal error")
		return
	}

	views := make([]job.View, 0, len(jobs))
	for i := range jobs {
		views = append(views, h.viewOf(&jobs[i]))
	}
	common.Ok(c, gin.H{"jobs": views})
}

type editStructureReq struct {
	Feedback string `json:"feedback" binding:"required"`
}

// EditStructure revises the structure from user feedback; valid only while
// the job waits at the editing gate.
func (h *Handler) EditStructure(c *gin.Context) {
	jobID := c.Param("job_id")

	var req editStructureReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "feedback is required")
		return
	}

	revised, err := h.Svc.SubmitEdit(c.Request.Context(), jobID, req.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
		case errors.Is(err, job.ErrNotInteractive):
			common.Fail(c, http.StatusBadRequest, 40002, "job is not in interactive mode")
		case errors.Is(err, job.ErrNotEditing):
			common.Fail(c, http.StatusBadRequest, 40003, "job is not in editing phase")
		case errors.Is(err, job.ErrNoStructure):
			common.Fail(c, http.StatusBadRequest, 40004, "no structure available to edit")
		default:
			log.Printf("edit structure failed job=%s err=%v", jobID, err)
			common.Fail(c, http.StatusInternalServerError, 50003, "failed to edit structure")
		}
		return
	}

	common.Ok(c, gin.H{
		"updated_structure": revised,
		"message":           "Structure updated successfully",
	})
}

// ConfirmGeneration closes the editing gate and schedules the final stage.
func (h *Handler) ConfirmGeneration(c *gin.Context) {
	jobID := c.Param("job_id")

	err := h.Svc.Confirm(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
		case errors.Is(err, job.ErrNotEditing):
			common.Fail(c, http.StatusBadRequest, 40003, "job is not in editing phase")
		default:
			log.Printf("confirm failed job=%s err=%v", jobID, err)
			common.Fail(c, http.StatusInternalServerError, 50004, "failed to start generation")
		}
		return
	}

	common.Ok(c, gin.H{
		"message": "PPTX generation started",
		"status":  job.StatusGenerating,
	})
}

// DeleteJob cancels a running job (discarding in-flight work) and removes its
// record and files. Completed jobs are kept; their deletion is a 409 so a
// finished deck is never removed by a stray cancel.
func (h *Handler) DeleteJob(c *gin.Context) {
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

	if j.Status == job.StatusCompleted {
		common.Fail(c, http.StatusConflict, 40901, "job already completed (cannot cancel)")
		return
	}

	if !j.Status.Terminal() {
		if err := h.Svc.Cancel(c.Request.Context(), jobID); err != nil && !errors.Is(err, job.ErrAlreadyCompleted) {
			log.Printf("cancel failed job=%s err=%v", jobID, err)
		}
	}
	if err := h.Svc.Delete(c.Request.Context(), jobID); err != nil {
		log.Printf("delete failed job=%s err=%v", jobID, err)
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to delete job")
		return
	}

	common.Ok(c, gin.H{"message": "Job cancelled successfully"})
}
