package job

import (
	"encoding/json"
	"time"
)

// View is the API-facing shape of a job. Structure is included verbatim when
// present; transcription is truncated to a preview.
type View struct {
	JobID                 string          `json:"job_id"`
	Status                Status          `json:"status"`
	ProgressPercentage    int             `json:"progress_percentage"`
	CurrentStep           string          `json:"current_step,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	AudioFilename         string          `json:"audio_filename"`
	Theme                 string          `json:"theme"`
	IncludeImages         bool            `json:"include_images"`
	InteractiveMode       bool            `json:"interactive_mode"`
	TranscriptionPreview  *string         `json:"transcription_preview,omitempty"`
	Structure             json.RawMessage `json:"structure,omitempty"`
	PPTXFileURL           *string         `json:"pptx_file_url,omitempty"`
	TotalSlides           *int            `json:"total_slides,omitempty"`
	ImagesFetched         *int            `json:"images_fetched,omitempty"`
	ProcessingTimeSeconds *int            `json:"processing_time_seconds,omitempty"`
	EditCount             int             `json:"edit_count"`
	ErrorMessage          *string         `json:"error_message,omitempty"`
}

const previewLimit = 500

// NewView shapes a job for API responses. downloadURL is only set for
// completed jobs and is built by the caller (it carries a signed token).
func NewView(j *Job, downloadURL string) View {
	v := View{
		JobID:                 j.ID,
		Status:                j.Status,
		ProgressPercentage:    j.ProgressPercentage,
		CurrentStep:           j.CurrentStep,
		CreatedAt:             j.CreatedAt,
		UpdatedAt:             j.UpdatedAt,
		CompletedAt:           j.CompletedAt,
		AudioFilename:         j.AudioFilename,
		Theme:                 j.Theme,
		IncludeImages:         j.IncludeImages,
		InteractiveMode:       j.InteractiveMode,
		TotalSlides:           j.TotalSlides,
		ImagesFetched:         j.ImagesFetched,
		ProcessingTimeSeconds: j.ProcessingTimeSeconds,
		EditCount:             j.EditCount,
		ErrorMessage:          j.ErrorMessage,
	}

	if j.TranscriptionText != nil {
		preview := *j.TranscriptionText
		// Limit counts characters, not bytes; never split a rune.
		if r := []rune(preview); len(r) > previewLimit {
			preview = string(r[:previewLimit]) + "..."
		}
		v.TranscriptionPreview = &preview
	}

	if j.Structure != nil && *j.Structure != "" {
		v.Structure = json.RawMessage(*j.Structure)
	}

	if j.PPTXFilePath != nil && downloadURL != "" {
		v.PPTXFileURL = &downloadURL
	}

	return v
}
