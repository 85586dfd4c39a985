package deck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Slide canvas in pixels; matches the HTML documents the generator asks for.
const (
	slideWidth  = 1280
	slideHeight = 720
)

// Renderer screenshots slide HTML files with headless Chrome. One browser
// is started per batch; each page gets its own tab and timeout.
type Renderer struct {
	Timeout time.Duration
}

func NewRenderer(timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Renderer{Timeout: timeout}
}

// Render converts every HTML file to a PNG under outDir, preserving order.
func (r *Renderer) Render(ctx context.Context, htmlFiles []string, outDir string) ([]string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(slideWidth, slideHeight),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	out := make([]string, 0, len(htmlFiles))
	for i, htmlPath := range htmlFiles {
		pngPath := filepath.Join(outDir, fmt.Sprintf("slide_%03d.png", i))
		if err := r.renderOne(browserCtx, htmlPath, pngPath); err != nil {
			return nil, fmt.Errorf("render slide %d: %w", i, err)
		}
		out = append(out, pngPath)
	}
	return out, nil
}

func (r *Renderer) renderOne(browserCtx context.Context, htmlPath, pngPath string) error {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tctx, cancelTimeout := context.WithTimeout(tabCtx, r.Timeout)
	defer cancelTimeout()

	var buf []byte
	err = chromedp.Run(tctx,
		chromedp.EmulateViewport(slideWidth, slideHeight),
		chromedp.Navigate("file://"+abs),
		// Give remote images and web fonts a moment to settle.
		chromedp.Sleep(500*time.Millisecond),
		chromedp.FullScreenshot(&buf, 95),
	)
	if err != nil {
		return err
	}
	return os.WriteFile(pngPath, buf, 0o644)
}
