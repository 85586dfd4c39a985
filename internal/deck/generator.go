package deck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hongbietcode/voice-to-slide/internal/ai"
	"github.com/hongbietcode/voice-to-slide/internal/images"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/pipeline"
)

// Generator produces one standalone HTML document per slide (title slide
// first) and writes them into the job's workspace. Files are numbered so
// render order matches slide order.
type Generator struct {
	provider ai.Provider
}

func NewGenerator(provider ai.Provider) *Generator {
	return &Generator{provider: provider}
}

const slidePrompt = `You are a slide designer. Produce a single standalone HTML document for one presentation slide.

CONSTRAINTS:
- Fixed canvas: 1280x720 pixels, no scrolling
- All CSS inline in a <style> block; no external assets except the image URL given below
- Theme: %s
- Return ONLY the HTML document, no explanations

SLIDE CONTENT:
%s`

func (g *Generator) Generate(ctx context.Context, s job.Structure, imgs []*images.ImageData, theme, outDir string) ([]string, error) {
	files := make([]string, 0, len(s.Slides)+1)

	titleSpec := fmt.Sprintf("Title slide.\nPresentation title: %s\nSlide count: %d", s.Title, len(s.Slides))
	path, err := g.generateOne(ctx, titleSpec, theme, outDir, 0)
	if err != nil {
		return nil, err
	}
	files = append(files, path)

	for i, slide := range s.Slides {
		var spec strings.Builder
		fmt.Fprintf(&spec, "Content slide %d of %d.\nSlide title: %s\nBullet points:\n", i+1, len(s.Slides), slide.Title)
		for _, bp := range slide.BulletPoints {
			fmt.Fprintf(&spec, "- %s\n", bp)
		}
		if i < len(imgs) && imgs[i] != nil {
			fmt.Fprintf(&spec, "Background or side image URL: %s (%s)\n", imgs[i].URL, imgs[i].Description)
		}

		path, err := g.generateOne(ctx, spec.String(), theme, outDir, i+1)
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}

func (g *Generator) generateOne(ctx context.Context, spec, theme, outDir string, idx int) (string, error) {
	reply, err := g.provider.Complete(ctx, fmt.Sprintf(slidePrompt, theme, spec))
	if err != nil {
		return "", err
	}

	html := ExtractHTMLBlock(reply)
	if !strings.Contains(strings.ToLower(html), "<html") {
		return "", pipeline.Retryablef("slide %d: model reply contains no html document", idx)
	}

	path := filepath.Join(outDir, fmt.Sprintf("slide_%03d.html", idx))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ExtractHTMLBlock unwraps a fenced ```html block, or returns the reply from
// its doctype/first tag onward.
func ExtractHTMLBlock(reply string) string {
	if i := strings.Index(reply, "```html"); i >= 0 {
		rest := reply[i+len("```html"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	lower := strings.ToLower(reply)
	if i := strings.Index(lower, "<!doctype"); i >= 0 {
		return strings.TrimSpace(reply[i:])
	}
	if i := strings.Index(lower, "<html"); i >= 0 {
		return strings.TrimSpace(reply[i:])
	}
	return strings.TrimSpace(reply)
}
