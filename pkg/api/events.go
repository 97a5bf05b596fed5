package api

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/security"
)

// EventMessage is the websocket encoding of a queue event.
type EventMessage struct {
	Type      string `json:"type"`
	ActionID  string `json:"actionId,omitempty"`
	Action    string `json:"action,omitempty"`
	JobID     string `json:"jobId,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	Error     string `json:"error,omitempty"`
	RecordID  string `json:"recordId,omitempty"`
	Dropped   int    `json:"dropped,omitempty"`
	Online    *bool  `json:"online,omitempty"`
	NextRunAt int64  `json:"nextRunAt,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewEventMessage converts e for the wire.
func NewEventMessage(e core.Event) EventMessage {
	msg := EventMessage{Type: core.EventName(e)}

	setAction := func(a *core.QueuedAction) {
		if a == nil {
			return
		}
		msg.ActionID = a.ID
		msg.Action = string(a.Type)
		msg.JobID = a.Payload.JobID
	}
	setError := func(err error) {
		if err != nil {
			msg.Error = security.SanitizeErrorMessage(err.Error())
		}
	}

	switch ev := e.(type) {
	case *core.ActionEnqueued:
		setAction(ev.Action)
		msg.Timestamp = ev.Timestamp.UnixMilli()
	case *core.ActionSucceeded:
		setAction(ev.Action)
		if ev.Record != nil {
			msg.RecordID = ev.Record.ID
		}
		msg.Timestamp = ev.Timestamp.UnixMilli()
	case *core.ActionRetrying:
		setAction(ev.Action)
		setError(ev.Error)
		msg.Attempt = ev.Attempt
		msg.NextRunAt = ev.NextRunAt.UnixMilli()
		msg.Timestamp = ev.Timestamp.UnixMilli()
	case *core.ActionFailed:
		setAction(ev.Action)
		setError(ev.Error)
		msg.Timestamp = ev.Timestamp.UnixMilli()
	case *core.ActionEvicted:
		setAction(ev.Action)
		msg.Timestamp = ev.Timestamp.UnixMilli()
	case *core.QueueCleared:
		msg.Dropped = ev.Dropped
		msg.Timestamp = ev.Timestamp.UnixMilli()
	case *core.ConnectivityChanged:
		online := ev.Online
		msg.Online = &online
		msg.Timestamp = ev.Timestamp.UnixMilli()
	}
	return msg
}

// Events streams queue events over a websocket until the client goes away.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "goodbye")

	events := s.queue.Events()
	defer s.queue.Unsubscribe(events)

	// The stream is write-only; CloseRead handles control frames and
	// cancels ctx when the client disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, NewEventMessage(e))
			cancel()
			if err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
