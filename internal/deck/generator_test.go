package deck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hongbietcode/voice-to-slide/internal/images"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/pipeline"
)

type scriptedProvider struct {
	prompts []string
	reply   string
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	_ = ctx
	p.prompts = append(p.prompts, prompt)
	return p.reply, nil
}

func TestGenerateWritesOneFilePerSlide(t *testing.T) {
	dir := t.TempDir()
	prov := &scriptedProvider{reply: "```html\n<!DOCTYPE html><html><body>slide</body></html>\n```"}
	g := NewGenerator(prov)

	s := job.Structure{
		Title: "Roadmap",
		Slides: []job.Slide{
			{Title: "Q1", BulletPoints: []string{"ship", "measure"}},
			{Title: "Q2", BulletPoints: []string{"scale"}},
		},
	}
	imgs := []*images.ImageData{{URL: "https://img/ocean", Description: "ocean"}, nil}

	files, err := g.Generate(context.Background(), s, imgs, "Minimal Dark", dir)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %d, want title + 2 content", len(files))
	}
	for i, f := range files {
		want := filepath.Join(dir, fmt.Sprintf("slide_%03d.html", i))
		if f != want {
			t.Fatalf("file[%d] = %q, want %q", i, f, want)
		}
		body, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if !strings.Contains(string(body), "<html") {
			t.Fatalf("file %s is not an html document", f)
		}
	}

	if len(prov.prompts) != 3 {
		t.Fatalf("provider calls = %d, want 3", len(prov.prompts))
	}
	if !strings.Contains(prov.prompts[0], "Title slide") {
		t.Fatalf("first prompt is not the title slide")
	}
	if !strings.Contains(prov.prompts[1], "https://img/ocean") {
		t.Fatalf("slide 1 prompt missing its image url")
	}
	if strings.Contains(prov.prompts[2], "Background or side image") {
		t.Fatalf("slide 2 has no image but its prompt mentions one")
	}
	for _, p := range prov.prompts {
		if !strings.Contains(p, "Minimal Dark") {
			t.Fatalf("prompt missing theme")
		}
	}
}

func TestGenerateRejectsNonHTMLReply(t *testing.T) {
	prov := &scriptedProvider{reply: "I cannot produce a slide for that."}
	g := NewGenerator(prov)

	s := job.Structure{Title: "T", Slides: []job.Slide{{Title: "A", BulletPoints: []string{"x"}}}}
	_, err := g.Generate(context.Background(), s, nil, "Modern", t.TempDir())
	if err == nil {
		t.Fatalf("expected error for non-html reply")
	}
	if !pipeline.IsRetryable(err) || pipeline.IsFatal(err) {
		t.Fatalf("bad reply should be retryable, got %v", err)
	}
}

func TestExtractHTMLBlock(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{"html fence", "Sure:\n```html\n<html><body>x</body></html>\n```", "<html><body>x</body></html>"},
		{"doctype prefix", "Here it is: <!DOCTYPE html><html></html>", "<!DOCTYPE html><html></html>"},
		{"html tag prefix", "reply: <html lang=\"en\"></html>", "<html lang=\"en\"></html>"},
		{"plain", "<html></html>", "<html></html>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractHTMLBlock(tc.reply); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
