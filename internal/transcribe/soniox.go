package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hongbietcode/voice-to-slide/internal/pipeline"
)

// Client transcribes audio files through the Soniox REST API: upload the
// file, start an async transcription, poll until it finishes, fetch the
// transcript.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client

	// PollInterval is shortened in tests.
	PollInterval time.Duration
}

type Token struct {
	Text       string `json:"text"`
	StartMS    int    `json:"start_ms"`
	DurationMS int    `json:"duration_ms"`
}

type Result struct {
	Text   string  `json:"text"`
	Tokens []Token `json:"tokens"`
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.soniox.com"
	}
	return &Client{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        "stt-async-preview",
		Client:       &http.Client{Timeout: 60 * time.Second},
		PollInterval: 2 * time.Second,
	}
}

// Transcribe runs the upload/start/poll/fetch sequence for one audio file and
// returns the transcript text with word timestamps.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (pipeline.Transcription, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return pipeline.Transcription{}, pipeline.Fatalf("soniox: api key is required")
	}

	fileID, err := c.uploadFile(ctx, audioPath)
	if err != nil {
		return pipeline.Transcription{}, err
	}

	trID, err := c.startTranscription(ctx, fileID)
	if err != nil {
		return pipeline.Transcription{}, err
	}

	if err := c.waitForCompletion(ctx, trID); err != nil {
		return pipeline.Transcription{}, err
	}

	result, err := c.fetchTranscript(ctx, trID)
	if err != nil {
		return pipeline.Transcription{}, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return pipeline.Transcription{}, err
	}
	return pipeline.Transcription{Text: result.Text, Raw: raw}, nil
}

func (c *Client) uploadFile(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", pipeline.Fatal(fmt.Errorf("soniox: open audio: %w", err))
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/files", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	var decoded struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &decoded); err != nil {
		return "", err
	}
	if decoded.ID == "" {
		return "", errors.New("soniox: upload returned no file id")
	}
	return decoded.ID, nil
}

func (c *Client) startTranscription(ctx context.Context, fileID string) (string, error) {
	b, err := json.Marshal(map[string]any{
		"file_id": fileID,
		"model":   c.Model,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/transcriptions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	var decoded struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &decoded); err != nil {
		return "", err
	}
	if decoded.ID == "" {
		return "", errors.New("soniox: no transcription id")
	}
	return decoded.ID, nil
}

func (c *Client) waitForCompletion(ctx context.Context, trID string) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/transcriptions/"+trID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)

		var decoded struct {
			Status       string `json:"status"`
			ErrorMessage string `json:"error_message"`
		}
		if err := c.do(req, &decoded); err != nil {
			return err
		}

		switch decoded.Status {
		case "completed":
			return nil
		case "error":
			return pipeline.Fatalf("soniox: transcription failed: %s", decoded.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

func (c *Client) fetchTranscript(ctx context.Context, trID string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/transcriptions/"+trID+"/transcript", nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	var result Result
	if err := c.do(req, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.Client.Do(req)
	if err != nil {
		return pipeline.Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return pipeline.ClassifyHTTPStatus(resp.StatusCode, "soniox: "+string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
