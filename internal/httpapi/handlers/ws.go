package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/hongbietcode/voice-to-slide/internal/common"
	"github.com/hongbietcode/voice-to-slide/internal/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is served cross-origin behind CORS; the socket carries only
	// job progress, keyed by an unguessable ULID.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 15 * time.Second
)

// WatchJob bridges the job's redis progress channel to a websocket. Events
// published before the client connected are gone; the first frame is a
// snapshot of the current record so late subscribers catch up, then live
// events follow.
func (h *Handler) WatchJob(c *gin.Context) {
	jobID := c.Param("job_id")

	j, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed job=%s err=%v", jobID, err)
		return
	}
	defer conn.Close()

	// Subscriptions outlive the HTTP request context; the read pump below
	// decides when we are done.
	sub := progress.Subscribe(c, h.Redis.Client, jobID)
	defer sub.Close()

	snapshot, _ := json.Marshal(gin.H{
		"type": "snapshot",
		"job":  h.viewOf(j),
	})
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
		return
	}

	// Read pump: we never expect client frames, but reading is how we learn
	// the peer went away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	events := sub.Channel()
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
