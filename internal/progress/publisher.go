package progress

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one message on a job's progress channel. Type is one of
// "progress", "structure_ready", "completed", "error"; the remaining fields
// are populated per type.
type Event struct {
	Type               string          `json:"type"`
	JobID              string          `json:"job_id"`
	Status             string          `json:"status,omitempty"`
	ProgressPercentage int             `json:"progress_percentage,omitempty"`
	CurrentStep        string          `json:"current_step,omitempty"`
	Structure          json.RawMessage `json:"structure,omitempty"`
	Message            string          `json:"message,omitempty"`
	PPTXFileURL        string          `json:"pptx_file_url,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	ErrorCode          string          `json:"error_code,omitempty"`
	Timestamp          string          `json:"timestamp"`
}

func Progress(jobID, status string, pct int, step string) Event {
	return Event{Type: "progress", JobID: jobID, Status: status, ProgressPercentage: pct, CurrentStep: step}
}

func StructureReady(jobID string, structure json.RawMessage) Event {
	return Event{
		Type:      "structure_ready",
		JobID:     jobID,
		Structure: structure,
		Message:   "Structure analysis complete. You can now provide feedback or confirm to generate.",
	}
}

func Completed(jobID, pptxFileURL string) Event {
	return Event{Type: "completed", JobID: jobID, PPTXFileURL: pptxFileURL}
}

func Error(jobID, errMsg, code string) Event {
	return Event{Type: "error", JobID: jobID, ErrorMessage: errMsg, ErrorCode: code}
}

// Publisher broadcasts events to a job's subscribers. Delivery is at most
// once and fire-and-forget: implementations never block the pipeline and
// never surface delivery failures to it.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Channel is the per-job pub/sub topic name.
func Channel(jobID string) string { return "job:" + jobID }

// RedisPublisher publishes events as JSON on redis pub/sub. The client is
// injected and owned by the caller; there is no lazy global connection.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("progress marshal job=%s type=%s err=%v", ev.JobID, ev.Type, err)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.rdb.Publish(cctx, Channel(ev.JobID), body).Err(); err != nil {
		// Subscribers are best effort; the pipeline never retries or fails on this.
		log.Printf("progress publish job=%s type=%s err=%v", ev.JobID, ev.Type, err)
	}
}

// Subscribe opens a subscription on a job's channel. The returned PubSub must
// be closed by the caller; its Channel() feeds raw event JSON to a websocket
// bridge. A subscriber connecting after an event was published never sees it.
func Subscribe(ctx context.Context, rdb *redis.Client, jobID string) *redis.PubSub {
	return rdb.Subscribe(ctx, Channel(jobID))
}
