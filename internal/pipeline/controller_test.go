package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/hongbietcode/voice-to-slide/internal/images"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/progress"
	"github.com/hongbietcode/voice-to-slide/internal/storage"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&job.Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type queuedStage struct {
	JobID string
	Stage string
}

type fakeQueue struct {
	msgs []queuedStage
}

func (q *fakeQueue) PublishStage(ctx context.Context, jobID, stage string) error {
	_ = ctx
	q.msgs = append(q.msgs, queuedStage{JobID: jobID, Stage: stage})
	return nil
}

func (q *fakeQueue) pop(t *testing.T) queuedStage {
	t.Helper()
	if len(q.msgs) == 0 {
		t.Fatalf("expected a queued stage, queue is empty")
	}
	m := q.msgs[0]
	q.msgs = q.msgs[1:]
	return m
}

type capturePub struct {
	events []progress.Event
}

func (p *capturePub) Publish(ctx context.Context, ev progress.Event) {
	_ = ctx
	p.events = append(p.events, ev)
}

func (p *capturePub) last(t *testing.T) progress.Event {
	t.Helper()
	if len(p.events) == 0 {
		t.Fatalf("expected published events, got none")
	}
	return p.events[len(p.events)-1]
}

type fakeTranscriber struct {
	calls  int
	result Transcription
	err    error
	hook   func() // runs inside Transcribe, before returning
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (Transcription, error) {
	_ = ctx
	_ = audioPath
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return Transcription{}, f.err
	}
	return f.result, nil
}

type fakeStructurer struct {
	calls  int
	result job.Structure
	err    error
}

func (f *fakeStructurer) Structure(ctx context.Context, text string, useImages bool) (job.Structure, error) {
	_ = ctx
	_ = text
	_ = useImages
	f.calls++
	if f.err != nil {
		return job.Structure{}, f.err
	}
	return f.result, nil
}

type fakeImageSource struct {
	result  []*images.ImageData
	fetched int
}

func (f *fakeImageSource) ForSlides(ctx context.Context, queries []string) ([]*images.ImageData, int, error) {
	_ = ctx
	_ = queries
	return f.result, f.fetched, nil
}

type fakeHTMLGen struct{}

func (fakeHTMLGen) Generate(ctx context.Context, s job.Structure, imgs []*images.ImageData, theme, outDir string) ([]string, error) {
	_ = ctx
	_ = imgs
	_ = theme
	files := make([]string, 0, s.TotalSlides())
	for i := 0; i < s.TotalSlides(); i++ {
		files = append(files, filepath.Join(outDir, "slide.html"))
	}
	return files, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(ctx context.Context, htmlFiles []string, outDir string) ([]string, error) {
	_ = ctx
	files := make([]string, 0, len(htmlFiles))
	for range htmlFiles {
		files = append(files, filepath.Join(outDir, "slide.png"))
	}
	return files, nil
}

type fakeAssembler struct {
	calls int
	err   error
}

func (f *fakeAssembler) Assemble(imageFiles []string, outPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("pptx"), 0o644)
}

type controllerEnv struct {
	db          *gorm.DB
	repo        *job.Repo
	queue       *fakeQueue
	pub         *capturePub
	transcriber *fakeTranscriber
	structurer  *fakeStructurer
	assembler   *fakeAssembler
	controller  *Controller
}

func newControllerEnv(t *testing.T) *controllerEnv {
	t.Helper()

	db := openTestDB(t)
	repo := job.NewRepo(db)
	store := storage.New(t.TempDir())
	queue := &fakeQueue{}
	pub := &capturePub{}

	transcriber := &fakeTranscriber{
		result: Transcription{Text: "hello from the recording", Raw: []byte(`{"text":"hello from the recording"}`)},
	}
	structurer := &fakeStructurer{
		result: job.Structure{
			Title: "Quarterly Review",
			Slides: []job.Slide{
				{Title: "Wins", BulletPoints: []string{"shipped v2"}, ImageTheme: "trophy"},
				{Title: "Next", BulletPoints: []string{"scale out"}},
			},
		},
	}
	assembler := &fakeAssembler{}

	exec := NewExecutor(3, time.Millisecond, 0)
	exec.sleep = func(time.Duration) {}

	c := NewController(
		repo,
		store,
		queue,
		pub,
		transcriber,
		structurer,
		&fakeImageSource{result: []*images.ImageData{{URL: "https://img/1"}, nil}, fetched: 1},
		fakeHTMLGen{},
		fakeRenderer{},
		assembler,
		exec,
		func(jobID string) string { return "/api/v1/download/" + jobID },
	)

	return &controllerEnv{
		db:          db,
		repo:        repo,
		queue:       queue,
		pub:         pub,
		transcriber: transcriber,
		structurer:  structurer,
		assembler:   assembler,
		controller:  c,
	}
}

func (e *controllerEnv) seed(t *testing.T, id string, interactive bool) {
	t.Helper()
	j := &job.Job{
		ID:                id,
		Status:            job.StatusPending,
		CurrentStep:       "Initializing...",
		AudioFilename:     "talk.mp3",
		AudioFilePath:     "/tmp/talk.mp3",
		Theme:             job.DefaultTheme,
		IncludeImages:     true,
		InteractiveMode:   interactive,
		SaveTranscription: true,
	}
	if err := e.repo.Create(context.Background(), j); err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func (e *controllerEnv) get(t *testing.T, id string) *job.Job {
	t.Helper()
	j, err := e.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return j
}

func TestPipelineCompletesNonInteractive(t *testing.T) {
	env := newControllerEnv(t)
	ctx := context.Background()
	const id = "01CTRLNONINTERACTIVE000000"
	env.seed(t, id, false)

	if err := env.controller.RunStage(ctx, id, job.StageTranscribe); err != nil {
		t.Fatalf("transcribe stage: %v", err)
	}
	m := env.queue.pop(t)
	if m.Stage != job.StageAnalyze {
		t.Fatalf("expected analyze queued, got %q", m.Stage)
	}

	if err := env.controller.RunStage(ctx, id, job.StageAnalyze); err != nil {
		t.Fatalf("analyze stage: %v", err)
	}
	m = env.queue.pop(t)
	if m.Stage != job.StageGenerate {
		t.Fatalf("expected generate queued, got %q", m.Stage)
	}

	if err := env.controller.RunStage(ctx, id, job.StageGenerate); err != nil {
		t.Fatalf("generate stage: %v", err)
	}

	j := env.get(t, id)
	if j.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed", j.Status)
	}
	if j.ProgressPercentage != 100 {
		t.Fatalf("progress = %d, want 100", j.ProgressPercentage)
	}
	if j.TotalSlides == nil || *j.TotalSlides != 3 {
		t.Fatalf("total_slides = %v, want 3 (2 content + title)", j.TotalSlides)
	}
	if j.ImagesFetched == nil || *j.ImagesFetched != 1 {
		t.Fatalf("images_fetched = %v, want 1", j.ImagesFetched)
	}
	if j.TranscriptionText == nil || *j.TranscriptionText != "hello from the recording" {
		t.Fatalf("transcription not persisted: %v", j.TranscriptionText)
	}
	if j.PPTXFilePath == nil || *j.PPTXFilePath == "" {
		t.Fatalf("pptx path not persisted")
	}
	if j.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
	if env.assembler.calls != 1 {
		t.Fatalf("assembler calls = %d, want 1", env.assembler.calls)
	}

	ev := env.pub.last(t)
	if ev.Type != "completed" {
		t.Fatalf("last event type = %q, want completed", ev.Type)
	}
	if ev.PPTXFileURL != "/api/v1/download/"+id {
		t.Fatalf("completed event url = %q", ev.PPTXFileURL)
	}
}

func TestPipelineHaltsAtEditingGate(t *testing.T) {
	env := newControllerEnv(t)
	ctx := context.Background()
	const id = "01CTRLINTERACTIVE000000000"
	env.seed(t, id, true)

	if err := env.controller.RunStage(ctx, id, job.StageTranscribe); err != nil {
		t.Fatalf("transcribe stage: %v", err)
	}
	env.queue.pop(t) // analyze

	if err := env.controller.RunStage(ctx, id, job.StageAnalyze); err != nil {
		t.Fatalf("analyze stage: %v", err)
	}

	j := env.get(t, id)
	if j.Status != job.StatusEditing {
		t.Fatalf("status = %q, want editing", j.Status)
	}
	if j.ProgressPercentage != 35 {
		t.Fatalf("progress = %d, want 35", j.ProgressPercentage)
	}
	if len(env.queue.msgs) != 0 {
		t.Fatalf("no stage may be scheduled while editing, got %v", env.queue.msgs)
	}
	ev := env.pub.last(t)
	if ev.Type != "structure_ready" {
		t.Fatalf("last event type = %q, want structure_ready", ev.Type)
	}
	if len(ev.Structure) == 0 {
		t.Fatalf("structure_ready event has no structure payload")
	}

	// Resume after confirmation.
	ok, err := env.repo.Transition(ctx, id, job.StatusEditing, job.StatusGenerating, 40, "Starting PPTX generation...")
	if err != nil || !ok {
		t.Fatalf("confirm transition: ok=%v err=%v", ok, err)
	}
	if err := env.controller.RunStage(ctx, id, job.StageGenerate); err != nil {
		t.Fatalf("generate stage: %v", err)
	}
	if got := env.get(t, id).Status; got != job.StatusCompleted {
		t.Fatalf("status after confirm+generate = %q, want completed", got)
	}
}

func TestPipelineFailsAfterRetryBudget(t *testing.T) {
	env := newControllerEnv(t)
	ctx := context.Background()
	const id = "01CTRLRETRYEXHAUSTED000000"
	env.seed(t, id, false)

	env.transcriber.err = Retryablef("upstream flaking")

	err := env.controller.RunStage(ctx, id, job.StageTranscribe)
	if err == nil {
		t.Fatalf("expected stage failure")
	}
	if env.transcriber.calls != 3 {
		t.Fatalf("transcriber calls = %d, want 3", env.transcriber.calls)
	}

	j := env.get(t, id)
	if j.Status != job.StatusFailed {
		t.Fatalf("status = %q, want failed", j.Status)
	}
	if j.ErrorMessage == nil || *j.ErrorMessage == "" {
		t.Fatalf("error_message not persisted")
	}
	ev := env.pub.last(t)
	if ev.Type != "error" || ev.ErrorCode != "TRANSCRIPTION_FAILED" {
		t.Fatalf("expected error event with TRANSCRIPTION_FAILED, got %+v", ev)
	}
	if len(env.queue.msgs) != 0 {
		t.Fatalf("failed job must not schedule further stages")
	}
}

func TestPipelineFatalErrorSkipsRetries(t *testing.T) {
	env := newControllerEnv(t)
	ctx := context.Background()
	const id = "01CTRLFATALSHORTCIRCUIT000"
	env.seed(t, id, false)

	if err := env.controller.RunStage(ctx, id, job.StageTranscribe); err != nil {
		t.Fatalf("transcribe stage: %v", err)
	}
	env.queue.pop(t)

	env.structurer.err = Fatalf("reply is not a structure")
	if err := env.controller.RunStage(ctx, id, job.StageAnalyze); err == nil {
		t.Fatalf("expected stage failure")
	}
	if env.structurer.calls != 1 {
		t.Fatalf("structurer calls = %d, want 1 (fatal must not retry)", env.structurer.calls)
	}
	if got := env.get(t, id).Status; got != job.StatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}
	if ev := env.pub.last(t); ev.ErrorCode != "ANALYSIS_FAILED" {
		t.Fatalf("error code = %q, want ANALYSIS_FAILED", ev.ErrorCode)
	}
}

func TestPipelineDiscardsResultAfterCancel(t *testing.T) {
	env := newControllerEnv(t)
	ctx := context.Background()
	const id = "01CTRLCANCELLEDMIDFLIGHT00"
	env.seed(t, id, false)

	// Cancel lands while transcription is in flight.
	env.transcriber.hook = func() {
		if _, err := env.repo.MarkFailed(ctx, id, "cancelled by user"); err != nil {
			t.Errorf("cancel during stage: %v", err)
		}
	}

	if err := env.controller.RunStage(ctx, id, job.StageTranscribe); err != nil {
		t.Fatalf("stage should discard silently, got %v", err)
	}

	j := env.get(t, id)
	if j.Status != job.StatusFailed {
		t.Fatalf("status = %q, want failed (cancelled)", j.Status)
	}
	if j.ErrorMessage == nil || *j.ErrorMessage != "cancelled by user" {
		t.Fatalf("cancel reason overwritten: %v", j.ErrorMessage)
	}
	if len(env.queue.msgs) != 0 {
		t.Fatalf("cancelled job must not schedule further stages")
	}
}

func TestGenerateRedeliveryIsIdempotent(t *testing.T) {
	env := newControllerEnv(t)
	ctx := context.Background()
	const id = "01CTRLGENERATEREDELIVERY00"
	env.seed(t, id, false)

	if err := env.controller.RunStage(ctx, id, job.StageTranscribe); err != nil {
		t.Fatalf("transcribe stage: %v", err)
	}
	env.queue.pop(t)
	if err := env.controller.RunStage(ctx, id, job.StageAnalyze); err != nil {
		t.Fatalf("analyze stage: %v", err)
	}
	env.queue.pop(t)
	if err := env.controller.RunStage(ctx, id, job.StageGenerate); err != nil {
		t.Fatalf("generate stage: %v", err)
	}
	first := env.get(t, id)

	// Redelivered generate message: the first delivery did all the work but
	// the broker never saw its ack, so the row is wound back to generating.
	res := env.db.Model(&job.Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":              job.StatusGenerating,
		"progress_percentage": 40,
		"completed_at":        nil,
	})
	if res.Error != nil || res.RowsAffected != 1 {
		t.Fatalf("wind back: rows=%d err=%v", res.RowsAffected, res.Error)
	}

	if err := env.controller.RunStage(ctx, id, job.StageGenerate); err != nil {
		t.Fatalf("redelivered generate stage: %v", err)
	}

	second := env.get(t, id)
	if second.Status != job.StatusCompleted || second.ProgressPercentage != 100 {
		t.Fatalf("redelivery ended at %q/%d, want completed/100", second.Status, second.ProgressPercentage)
	}
	if *second.TotalSlides != *first.TotalSlides {
		t.Fatalf("total_slides changed across redelivery: %d -> %d", *first.TotalSlides, *second.TotalSlides)
	}
	if *second.PPTXFilePath != *first.PPTXFilePath {
		t.Fatalf("pptx path changed across redelivery: %q -> %q", *first.PPTXFilePath, *second.PPTXFilePath)
	}
	if *second.HTMLFiles != *first.HTMLFiles {
		t.Fatalf("html file list changed across redelivery")
	}
	if *second.ImageFiles != *first.ImageFiles {
		t.Fatalf("image file list changed across redelivery")
	}
	if env.assembler.calls != 2 {
		t.Fatalf("assembler calls = %d, want one per delivery", env.assembler.calls)
	}
	if len(env.queue.msgs) != 0 {
		t.Fatalf("completed redelivery must not schedule further stages")
	}
}

func TestRunStageDropsTerminalJobs(t *testing.T) {
	env := newControllerEnv(t)
	ctx := context.Background()
	const id = "01CTRLTERMINALDROPPED00000"
	env.seed(t, id, false)

	if _, err := env.repo.MarkFailed(ctx, id, "cancelled by user"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := env.controller.RunStage(ctx, id, job.StageTranscribe); err != nil {
		t.Fatalf("terminal job message should be dropped, got %v", err)
	}
	if env.transcriber.calls != 0 {
		t.Fatalf("transcriber ran for a terminal job")
	}
}

func TestRunStageRejectsUnknownStage(t *testing.T) {
	env := newControllerEnv(t)
	const id = "01CTRLUNKNOWNSTAGE00000000"
	env.seed(t, id, false)

	if err := env.controller.RunStage(context.Background(), id, "polish"); err == nil {
		t.Fatalf("expected unknown stage error")
	}
}
