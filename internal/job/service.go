package job

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/hongbietcode/voice-to-slide/internal/common"
	"github.com/hongbietcode/voice-to-slide/internal/progress"
	"github.com/hongbietcode/voice-to-slide/internal/storage"
)

var (
	ErrNotEditing       = errors.New("job is not in editing phase")
	ErrNotInteractive   = errors.New("job is not in interactive mode")
	ErrAlreadyCompleted = errors.New("job already completed")
	ErrNoStructure      = errors.New("no structure available")
)

// StageQueue schedules pipeline stages; satisfied by the rabbitmq publisher.
type StageQueue interface {
	PublishStage(ctx context.Context, jobID, stage string) error
}

// Reviser applies user feedback to a structure, returning a revised structure
// of the same schema. Backed by a language model in production.
type Reviser interface {
	Revise(ctx context.Context, s Structure, feedback string) (Structure, error)
}

// Service is the caller-facing surface of the pipeline: submission, the
// editing gate, cancel and delete. Stage execution itself lives in the
// pipeline controller on the worker side.
type Service struct {
	repo    *Repo
	store   *storage.Store
	queue   StageQueue
	pub     progress.Publisher
	reviser Reviser
}

func NewService(repo *Repo, store *storage.Store, queue StageQueue, pub progress.Publisher, reviser Reviser) *Service {
	return &Service{repo: repo, store: store, queue: queue, pub: pub, reviser: reviser}
}

// Submit persists the upload, creates the job in pending and schedules the
// first stage.
func (s *Service) Submit(ctx context.Context, filename string, audio io.Reader, cfg SubmitConfig) (*Job, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	path, err := s.store.SaveUpload(id, filename, audio)
	if err != nil {
		return nil, err
	}

	if cfg.Theme == "" {
		cfg.Theme = DefaultTheme
	}

	j := &Job{
		ID:                 id,
		Status:             StatusPending,
		ProgressPercentage: 0,
		CurrentStep:        "Initializing...",
		AudioFilename:      filename,
		AudioFilePath:      path,
		AudioFileSizeMB:    storage.FileSizeMB(path),
		Theme:              cfg.Theme,
		IncludeImages:      cfg.IncludeImages,
		InteractiveMode:    cfg.InteractiveMode,
		SaveTranscription:  cfg.SaveTranscription,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		s.store.Remove(id)
		return nil, err
	}

	if err := s.queue.PublishStage(ctx, id, StageTranscribe); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListRecent(ctx context.Context, limit int) ([]Job, error) {
	return s.repo.ListRecent(ctx, limit)
}

// SubmitEdit revises the structure from user feedback. Valid only while the
// job sits at the editing gate; the job's status does not change, so repeated
// edits re-enter the same state.
func (s *Service) SubmitEdit(ctx context.Context, id string, feedback string) (Structure, error) {
	j, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Structure{}, err
	}
	if !j.InteractiveMode {
		return Structure{}, ErrNotInteractive
	}
	if j.Status != StatusEditing {
		return Structure{}, ErrNotEditing
	}
	current, ok := j.StructureOf()
	if !ok {
		return Structure{}, ErrNoStructure
	}

	revised, err := s.reviser.Revise(ctx, current, feedback)
	if err != nil {
		return Structure{}, err
	}
	if err := s.repo.SaveStructure(ctx, id, revised, true); err != nil {
		return Structure{}, err
	}

	raw, _ := json.Marshal(revised)
	s.pub.Publish(ctx, progress.StructureReady(id, raw))
	return revised, nil
}

// Confirm closes the editing gate: the job moves to generating and the final
// stage is scheduled with the current structure.
func (s *Service) Confirm(ctx context.Context, id string) error {
	j, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if j.Status != StatusEditing {
		return ErrNotEditing
	}

	ok, err := s.repo.Transition(ctx, id, StatusEditing, StatusGenerating, 40, "Starting PPTX generation...")
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEditing
	}
	s.pub.Publish(ctx, progress.Progress(id, string(StatusGenerating), 40, "Starting PPTX generation..."))
	return s.queue.PublishStage(ctx, id, StageGenerate)
}

// Cancel marks a non-terminal job failed. An in-flight stage is not
// interrupted; its result is discarded by the guarded transitions once the
// row shows the job is no longer active.
func (s *Service) Cancel(ctx context.Context, id string) error {
	j, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if j.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	marked, err := s.repo.MarkFailed(ctx, id, "cancelled by user")
	if err != nil {
		return err
	}
	if marked {
		s.pub.Publish(ctx, progress.Error(id, "cancelled by user", "CANCELLED"))
	}
	return nil
}

// Delete removes the row and the job's artifact subtree. File removal is
// best effort and never blocks the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.store.Remove(id)
	return nil
}
