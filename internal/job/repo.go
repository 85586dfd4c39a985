package job

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, j *Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// ListRecent returns jobs newest first.
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var jobs []Job
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Transition moves a job from one status to another, updating progress and the
// step label. The WHERE guard on the source status means a stale worker (or a
// worker racing a cancel) updates zero rows; callers must check the returned
// bool and discard their result when it is false.
func (r *Repo) Transition(ctx context.Context, id string, from, to Status, progress int, step string) (bool, error) {
	updates := map[string]any{
		"status":              to,
		"progress_percentage": progress,
	}
	if step != "" {
		updates["current_step"] = step
	}
	if to.Terminal() {
		j, err := r.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		now := time.Now().UTC()
		updates["completed_at"] = now
		updates["processing_time_seconds"] = int(now.Sub(j.CreatedAt).Seconds())
	}

	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// MarkFailed is terminal from any non-terminal status.
func (r *Repo) MarkFailed(ctx context.Context, id string, errMsg string) (bool, error) {
	j, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if j.Status.Terminal() {
		return false, nil
	}
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, []Status{StatusCompleted, StatusFailed}).
		Updates(map[string]any{
			"status":                  StatusFailed,
			"error_message":           errMsg,
			"completed_at":            now,
			"processing_time_seconds": int(now.Sub(j.CreatedAt).Seconds()),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *Repo) SaveTranscription(ctx context.Context, id string, text string, rawJSON []byte) error {
	raw := string(rawJSON)
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"transcription_text": text,
			"transcription_json": raw,
		}).Error
}

// SaveStructure persists the structure and derived slide count. Revisions from
// the editing gate bump edit_count; the initial save does not.
func (r *Repo) SaveStructure(ctx context.Context, id string, s Structure, revision bool) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"structure":    string(raw),
		"total_slides": s.TotalSlides(),
	}
	if revision {
		updates["edit_count"] = gorm.Expr("edit_count + 1")
	}
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repo) SaveImageData(ctx context.Context, id string, rawJSON []byte, fetched int) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"image_data":     string(rawJSON),
			"images_fetched": fetched,
		}).Error
}

func (r *Repo) SaveHTMLFiles(ctx context.Context, id string, files []string) error {
	raw, err := json.Marshal(files)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Update("html_files", string(raw)).Error
}

func (r *Repo) SaveImageFiles(ctx context.Context, id string, files []string) error {
	raw, err := json.Marshal(files)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Update("image_files", string(raw)).Error
}

func (r *Repo) SavePPTX(ctx context.Context, id string, path string, sizeMB float64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"pptx_file_path":    path,
			"pptx_file_size_mb": sizeMB,
		}).Error
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Job{}, "id = ?", id).Error
}

// ImageFilesOf decodes the persisted rendered-slide path list.
func (j *Job) ImageFilesOf() ([]string, bool) {
	if j.ImageFiles == nil || *j.ImageFiles == "" {
		return nil, false
	}
	var files []string
	if err := json.Unmarshal([]byte(*j.ImageFiles), &files); err != nil || len(files) == 0 {
		return nil, false
	}
	return files, true
}

// StructureOf decodes the persisted structure column.
func (j *Job) StructureOf() (Structure, bool) {
	if j.Structure == nil || *j.Structure == "" {
		return Structure{}, false
	}
	var s Structure
	if err := json.Unmarshal([]byte(*j.Structure), &s); err != nil {
		return Structure{}, false
	}
	return s, true
}
