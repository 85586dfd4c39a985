package storage

import (
	"io"
	"math"
	"os"
	"path/filepath"
)

// Store lays artifact files out under a single root, keyed by job id:
//
//	uploads/<job_id>/<filename>       uploaded audio
//	workspace/<job_id>/slides/        generated HTML
//	workspace/<job_id>/slide_images/  rendered PNGs
//	outputs/<job_id>/presentation.pptx
//
// Concurrent jobs never share a path; a job's stages are the only writers
// under its subtree.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// SaveUpload writes the uploaded audio under the job's upload dir and returns
// the stored path.
func (s *Store) SaveUpload(jobID, filename string, r io.Reader) (string, error) {
	dir := filepath.Join(s.root, "uploads", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Store) WorkspaceDir(jobID string) string {
	return filepath.Join(s.root, "workspace", jobID)
}

func (s *Store) SlidesDir(jobID string) (string, error) {
	dir := filepath.Join(s.WorkspaceDir(jobID), "slides")
	return dir, os.MkdirAll(dir, 0o755)
}

func (s *Store) SlideImagesDir(jobID string) (string, error) {
	dir := filepath.Join(s.WorkspaceDir(jobID), "slide_images")
	return dir, os.MkdirAll(dir, 0o755)
}

// OutputPath returns the final deck path, creating the output dir.
func (s *Store) OutputPath(jobID string) (string, error) {
	dir := filepath.Join(s.root, "outputs", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "presentation.pptx"), nil
}

// Remove deletes every subtree belonging to the job. Best effort: partial
// deletion is acceptable and never surfaces an error.
func (s *Store) Remove(jobID string) {
	for _, sub := range []string{"uploads", "workspace", "outputs"} {
		_ = os.RemoveAll(filepath.Join(s.root, sub, jobID))
	}
}

// FileSizeMB returns the file size in megabytes rounded to two decimals,
// or 0 when the file cannot be read.
func FileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	mb := float64(info.Size()) / (1024 * 1024)
	return math.Round(mb*100) / 100
}
