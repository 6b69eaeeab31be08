package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumeapp/agenda/internal/notifier"
)

// WatchBooking streams reconciliation events for one booking over SSE. The
// watch also starts a heartbeat that polls the booking while the stream is
// open, so a viewer sees the confirmation without waiting for a sweep.
func (s *Server) WatchBooking(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	go s.poller.RunBookingHeartbeat(c.Request.Context(), id)
	s.streamEvents(c, id.String())
}

// WatchOwner streams reconciliation events for every booking the owner has.
func (s *Server) WatchOwner(c *gin.Context) {
	s.streamEvents(c, strings.TrimSpace(c.Param("id")))
}

func (s *Server) streamEvents(c *gin.Context, topic string) {
	if s.changes == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	if topic == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	subscription, backlog, err := s.changes.Subscribe(topic)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeChangeEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeChangeEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeChangeEvent(w io.Writer, event notifier.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
	return err
}
