package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hongbietcode/voice-to-slide/internal/images"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/progress"
	"github.com/hongbietcode/voice-to-slide/internal/storage"
)

// StageQueue schedules the next stage of a job. The rabbitmq publisher
// satisfies it in production; tests use an in-memory queue.
type StageQueue interface {
	PublishStage(ctx context.Context, jobID, stage string) error
}

// Collaborator ports. Each wraps one opaque external capability; failures
// must come back classified (Retryable/Fatal) or as raw transport errors,
// which the executor treats as transient.

type Transcription struct {
	Text string
	Raw  []byte
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Transcription, error)
}

type Structurer interface {
	Structure(ctx context.Context, text string, useImages bool) (job.Structure, error)
}

type ImageSource interface {
	ForSlides(ctx context.Context, queries []string) ([]*images.ImageData, int, error)
}

type HTMLGenerator interface {
	Generate(ctx context.Context, s job.Structure, imgs []*images.ImageData, theme, outDir string) ([]string, error)
}

type Renderer interface {
	Render(ctx context.Context, htmlFiles []string, outDir string) ([]string, error)
}

type Assembler interface {
	Assemble(imageFiles []string, outPath string) error
}

// DownloadURL builds the client-facing link published in completed events.
type DownloadURL func(jobID string) string

// Controller is the pipeline state machine. It is not a long-running
// process: the worker invokes RunStage once per queued stage message, and
// the controller persists the resulting transitions, publishes progress,
// and either schedules the next stage or halts (editing gate, terminal
// states). The JobRecord row is the sole source of truth between calls.
type Controller struct {
	repo  *job.Repo
	store *storage.Store
	queue StageQueue
	pub   progress.Publisher

	transcriber Transcriber
	structurer  Structurer
	imageSource ImageSource
	htmlGen     HTMLGenerator
	renderer    Renderer
	assembler   Assembler

	exec        *Executor
	downloadURL DownloadURL
}

func NewController(
	repo *job.Repo,
	store *storage.Store,
	queue StageQueue,
	pub progress.Publisher,
	transcriber Transcriber,
	structurer Structurer,
	imageSource ImageSource,
	htmlGen HTMLGenerator,
	renderer Renderer,
	assembler Assembler,
	exec *Executor,
	downloadURL DownloadURL,
) *Controller {
	return &Controller{
		repo:        repo,
		store:       store,
		queue:       queue,
		pub:         pub,
		transcriber: transcriber,
		structurer:  structurer,
		imageSource: imageSource,
		htmlGen:     htmlGen,
		renderer:    renderer,
		assembler:   assembler,
		exec:        exec,
		downloadURL: downloadURL,
	}
}

// RunStage drives one stage of one job. Messages for jobs that moved on
// (cancelled, already processed by another delivery) are dropped, not failed.
func (c *Controller) RunStage(ctx context.Context, jobID, stage string) error {
	j, err := c.repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		log.Printf("job=%s stage=%s dropped: job is %s", jobID, stage, j.Status)
		return nil
	}

	switch stage {
	case job.StageTranscribe:
		return c.runTranscribe(ctx, j)
	case job.StageAnalyze:
		return c.runAnalyze(ctx, j)
	case job.StageGenerate:
		return c.runGenerate(ctx, j)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// advance persists a guarded transition and publishes the matching progress
// event. ok=false means the job is no longer where this worker thinks it is;
// the caller must discard its work.
func (c *Controller) advance(ctx context.Context, jobID string, from, to job.Status, pct int, step string) (bool, error) {
	ok, err := c.repo.Transition(ctx, jobID, from, to, pct, step)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Printf("job=%s transition %s->%s skipped: status changed underneath", jobID, from, to)
		return false, nil
	}
	c.pub.Publish(ctx, progress.Progress(jobID, string(to), pct, step))
	return true, nil
}

// fail makes the failure terminal: persist error_message and status, then
// publish the error event, in that order.
func (c *Controller) fail(ctx context.Context, jobID string, cause error, code string) error {
	marked, err := c.repo.MarkFailed(ctx, jobID, cause.Error())
	if err != nil {
		log.Printf("job=%s mark failed err=%v (cause=%v)", jobID, err, cause)
		return cause
	}
	if marked {
		c.pub.Publish(ctx, progress.Error(jobID, cause.Error(), code))
	}
	return cause
}

func (c *Controller) runTranscribe(ctx context.Context, j *job.Job) error {
	ok, err := c.advance(ctx, j.ID, job.StatusPending, job.StatusTranscribing, 10, "Transcribing audio...")
	if err != nil || !ok {
		return err
	}

	var result Transcription
	err = c.exec.Run(ctx, job.StageTranscribe, func(ctx context.Context) error {
		var terr error
		result, terr = c.transcriber.Transcribe(ctx, j.AudioFilePath)
		return terr
	})
	if err != nil {
		return c.fail(ctx, j.ID, err, "TRANSCRIPTION_FAILED")
	}

	raw := result.Raw
	if !j.SaveTranscription {
		raw = nil
	}
	if err := c.repo.SaveTranscription(ctx, j.ID, result.Text, raw); err != nil {
		return c.fail(ctx, j.ID, err, "TRANSCRIPTION_FAILED")
	}

	ok, err = c.advance(ctx, j.ID, job.StatusTranscribing, job.StatusAnalyzing, 25, "Transcription complete")
	if err != nil || !ok {
		return err
	}
	return c.queue.PublishStage(ctx, j.ID, job.StageAnalyze)
}

func (c *Controller) runAnalyze(ctx context.Context, j *job.Job) error {
	ok, err := c.advance(ctx, j.ID, job.StatusAnalyzing, job.StatusAnalyzing, 30, "Analyzing content structure...")
	if err != nil || !ok {
		return err
	}

	text := ""
	if j.TranscriptionText != nil {
		text = *j.TranscriptionText
	}
	if text == "" {
		return c.fail(ctx, j.ID, fmt.Errorf("no transcription available"), "ANALYSIS_FAILED")
	}

	var s job.Structure
	err = c.exec.Run(ctx, job.StageAnalyze, func(ctx context.Context) error {
		var serr error
		s, serr = c.structurer.Structure(ctx, text, j.IncludeImages)
		return serr
	})
	if err != nil {
		return c.fail(ctx, j.ID, err, "ANALYSIS_FAILED")
	}

	if err := c.repo.SaveStructure(ctx, j.ID, s, false); err != nil {
		return c.fail(ctx, j.ID, err, "ANALYSIS_FAILED")
	}

	if j.InteractiveMode {
		// Editing gate: no stage is scheduled. The pipeline resumes only
		// through an external confirm.
		ok, err = c.advance(ctx, j.ID, job.StatusAnalyzing, job.StatusEditing, 35, "Waiting for user confirmation...")
		if err != nil || !ok {
			return err
		}
		raw, _ := json.Marshal(s)
		c.pub.Publish(ctx, progress.StructureReady(j.ID, raw))
		return nil
	}

	ok, err = c.advance(ctx, j.ID, job.StatusAnalyzing, job.StatusGenerating, 40, "Starting generation...")
	if err != nil || !ok {
		return err
	}
	return c.queue.PublishStage(ctx, j.ID, job.StageGenerate)
}

// runGenerate performs four checkpointed sub-steps: images, HTML, render,
// assemble. A retried stage redoes all four; each rewrites its own output
// location, so the redo is idempotent.
func (c *Controller) runGenerate(ctx context.Context, j *job.Job) error {
	s, okS := j.StructureOf()
	if !okS {
		return c.fail(ctx, j.ID, fmt.Errorf("no structure available"), "GENERATION_FAILED")
	}

	// Sub-step 1: images.
	ok, err := c.advance(ctx, j.ID, job.StatusGenerating, job.StatusGenerating, 45, "Fetching images...")
	if err != nil || !ok {
		return err
	}
	var imgs []*images.ImageData
	if j.IncludeImages {
		queries := make([]string, 0, len(s.Slides))
		for _, slide := range s.Slides {
			queries = append(queries, slide.ImageTheme)
		}
		var fetched int
		err = c.exec.Run(ctx, "fetch_images", func(ctx context.Context) error {
			var ierr error
			imgs, fetched, ierr = c.imageSource.ForSlides(ctx, queries)
			return ierr
		})
		if err != nil {
			return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
		}
		raw, _ := json.Marshal(imgs)
		if err := c.repo.SaveImageData(ctx, j.ID, raw, fetched); err != nil {
			return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
		}
	}

	// Sub-step 2: HTML.
	ok, err = c.advance(ctx, j.ID, job.StatusGenerating, job.StatusGenerating, 60, "Generating HTML slides...")
	if err != nil || !ok {
		return err
	}
	slidesDir, err := c.store.SlidesDir(j.ID)
	if err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}
	var htmlFiles []string
	err = c.exec.Run(ctx, "generate_html", func(ctx context.Context) error {
		var herr error
		htmlFiles, herr = c.htmlGen.Generate(ctx, s, imgs, j.Theme, slidesDir)
		return herr
	})
	if err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}
	if err := c.repo.SaveHTMLFiles(ctx, j.ID, htmlFiles); err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}

	// Sub-step 3: render.
	ok, err = c.advance(ctx, j.ID, job.StatusGenerating, job.StatusGenerating, 80, "Rendering slides to images...")
	if err != nil || !ok {
		return err
	}
	imagesDir, err := c.store.SlideImagesDir(j.ID)
	if err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}
	var imageFiles []string
	err = c.exec.Run(ctx, "render_slides", func(ctx context.Context) error {
		var rerr error
		imageFiles, rerr = c.renderer.Render(ctx, htmlFiles, imagesDir)
		return rerr
	})
	if err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}
	if err := c.repo.SaveImageFiles(ctx, j.ID, imageFiles); err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}

	// Sub-step 4: assemble.
	outPath, err := c.store.OutputPath(j.ID)
	if err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}
	err = c.exec.Run(ctx, "assemble_pptx", func(ctx context.Context) error {
		return c.assembler.Assemble(imageFiles, outPath)
	})
	if err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}
	if err := c.repo.SavePPTX(ctx, j.ID, outPath, storage.FileSizeMB(outPath)); err != nil {
		return c.fail(ctx, j.ID, err, "GENERATION_FAILED")
	}

	ok, err = c.advance(ctx, j.ID, job.StatusGenerating, job.StatusCompleted, 100, "Presentation generated successfully")
	if err != nil || !ok {
		return err
	}
	c.pub.Publish(ctx, progress.Completed(j.ID, c.downloadURL(j.ID)))
	return nil
}
