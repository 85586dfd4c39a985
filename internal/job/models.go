package job

import "time"

type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusEditing      Status = "editing"
	StatusGenerating   Status = "generating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transitions may occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names carried in queue messages. Each stage starts from a known
// source status; the controller drops messages whose job moved on.
const (
	StageTranscribe = "transcribe"
	StageAnalyze    = "analyze"
	StageGenerate   = "generate"
)

// Job is one presentation generation run.
//
// Status flow:
// pending -> transcribing -> analyzing -> [editing] -> generating -> completed/failed
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	Status             Status `gorm:"type:varchar(16);index;not null"`
	ProgressPercentage int    `gorm:"not null;default:0"`
	CurrentStep        string `gorm:"type:varchar(100)"`

	// Input
	AudioFilename   string  `gorm:"type:varchar(255);not null"`
	AudioFilePath   string  `gorm:"type:varchar(500);not null"`
	AudioFileSizeMB float64 `gorm:"type:decimal(10,2)"`

	// Config snapshot, immutable after creation
	Theme             string `gorm:"type:varchar(100);not null"`
	IncludeImages     bool   `gorm:"not null"`
	InteractiveMode   bool   `gorm:"not null"`
	SaveTranscription bool   `gorm:"not null"`

	// Stage artifacts, each populated by exactly one stage
	TranscriptionText *string  `gorm:"type:text"`
	TranscriptionJSON *string  `gorm:"type:text"`
	Structure         *string  `gorm:"type:text"`
	ImageData         *string  `gorm:"type:text"`
	HTMLFiles         *string  `gorm:"type:text"`
	ImageFiles        *string  `gorm:"type:text"`
	PPTXFilePath      *string  `gorm:"type:varchar(500)"`
	PPTXFileSizeMB    *float64 `gorm:"type:decimal(10,2)"`

	// Filled when failed
	ErrorMessage *string `gorm:"type:text"`

	// Statistics
	TotalSlides           *int
	ImagesFetched         *int
	ProcessingTimeSeconds *int
	EditCount             int `gorm:"not null;default:0"`

	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (Job) TableName() string { return "jobs" }

// SubmitConfig is the caller-supplied configuration captured at creation.
type SubmitConfig struct {
	Theme             string
	IncludeImages     bool
	InteractiveMode   bool
	SaveTranscription bool
}

const DefaultTheme = "Modern Professional"
