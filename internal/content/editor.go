package content

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hongbietcode/voice-to-slide/internal/ai"
	"github.com/hongbietcode/voice-to-slide/internal/job"
)

// Editor revises a structure from user feedback while the job sits at the
// editing gate. The revised structure must satisfy the same schema as the
// original; it is validated before being returned.
type Editor struct {
	provider ai.Provider
}

func NewEditor(provider ai.Provider) *Editor {
	return &Editor{provider: provider}
}

const editPrompt = `You are a presentation structure editor. Edit the following presentation structure based on the user's feedback.

INSTRUCTIONS:
1. Analyze the user's feedback carefully
2. Make the requested changes to the structure
3. Maintain the same JSON format
4. Ensure all required fields are present (title, slides with title and bullet_points)
5. Return ONLY the updated JSON structure, no explanations

CURRENT STRUCTURE:
` + "```json" + `
%s
` + "```" + `

USER FEEDBACK:
%s

Please return the updated structure:`

func (e *Editor) Revise(ctx context.Context, s job.Structure, feedback string) (job.Structure, error) {
	current, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return job.Structure{}, err
	}

	reply, err := e.provider.Complete(ctx, fmt.Sprintf(editPrompt, current, feedback))
	if err != nil {
		return job.Structure{}, err
	}

	revised, err := job.ParseStructure([]byte(job.ExtractJSONBlock(reply)))
	if err != nil {
		return job.Structure{}, fmt.Errorf("revised structure rejected: %w", err)
	}
	return revised, nil
}
