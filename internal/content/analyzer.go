package content

import (
	"context"
	"fmt"

	"github.com/hongbietcode/voice-to-slide/internal/ai"
	"github.com/hongbietcode/voice-to-slide/internal/job"
	"github.com/hongbietcode/voice-to-slide/internal/pipeline"
)

// Analyzer turns a transcription into a presentation structure. The model
// reply is validated against the structure schema right here; nothing
// downstream sees unvalidated output.
type Analyzer struct {
	provider ai.Provider
}

func NewAnalyzer(provider ai.Provider) *Analyzer {
	return &Analyzer{provider: provider}
}

const analyzePrompt = `You are a presentation content analyst. Convert the following voice transcription into a structured slide outline.

INSTRUCTIONS:
1. Extract the main topic as the presentation title
2. Break the content into 4-8 logical slides
3. Each slide gets a short title and 2-5 bullet points
%s
4. Return ONLY a JSON object, no explanations

OUTPUT FORMAT:
` + "```json" + `
{
  "title": "Presentation Title",
  "slides": [
    {
      "title": "Slide Title",
      "bullet_points": ["Point 1", "Point 2"],
      "image_theme": "optional search query"
    }
  ]
}
` + "```" + `

TRANSCRIPTION:
%s`

func (a *Analyzer) Structure(ctx context.Context, text string, useImages bool) (job.Structure, error) {
	imageLine := ""
	if useImages {
		imageLine = `3b. For each slide, add an "image_theme": a short stock-photo search query matching the slide topic`
	}

	reply, err := a.provider.Complete(ctx, fmt.Sprintf(analyzePrompt, imageLine, text))
	if err != nil {
		return job.Structure{}, err
	}

	s, err := job.ParseStructure([]byte(job.ExtractJSONBlock(reply)))
	if err != nil {
		// The model produced unusable output; retrying the same prompt is
		// still worthwhile once, so surface it transient at first and let
		// the executor's budget bound it.
		return job.Structure{}, pipeline.Retryable(err)
	}
	return s, nil
}
