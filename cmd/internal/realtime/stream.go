package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// UserFunc extracts the authenticated user id from a request. The auth
// middleware runs before any stream handler, so it only feeds logs and
// subscriber labels.
type UserFunc func(*http.Request) string

// StreamHandler serves the change stream as Server-Sent Events.
//
// Wire format:
//
//	event: ping
//	data: keep-alive
//
//	event: cards
//	data: {"type":"cards-changed","scope":"any","ts":1700000000}
//
// A ping is sent on connect and after every heartbeat interval without an
// event.
type StreamHandler struct {
	log          *slog.Logger
	hub          *Hub
	metrics      *Metrics
	user         UserFunc
	heartbeat    time.Duration
	writeTimeout time.Duration
}

type StreamOptions struct {
	Heartbeat    time.Duration
	WriteTimeout time.Duration
	User         UserFunc
	Metrics      *Metrics
}

func NewStreamHandler(log *slog.Logger, hub *Hub, opts StreamOptions) *StreamHandler {
	if log == nil {
		log = slog.Default()
	}
	s := &StreamHandler{
		log:          log,
		hub:          hub,
		metrics:      opts.Metrics,
		user:         opts.User,
		heartbeat:    opts.Heartbeat,
		writeTimeout: opts.WriteTimeout,
	}
	if s.heartbeat <= 0 {
		s.heartbeat = heartbeatInterval
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = streamWriteTimeout
	}
	if s.user == nil {
		s.user = func(*http.Request) string { return "" }
	}
	return s
}

func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Nothing may be written or flushed before the headers below are set.
	if !canFlush(w) {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := s.hub.Subscribe(s.user(r))
	if err != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer s.hub.Unsubscribe(sub)
	s.metrics.incConnection("sse")

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	log := s.log.With("subscriber_id", sub.ID, "user_id", sub.UserID)
	log.Info("stream.open", "transport", "sse")
	defer log.Info("stream.close", "transport", "sse")

	if err := s.write(w, rc, EventPing, PingData); err != nil {
		return
	}

	timer := time.NewTimer(s.heartbeat)
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case ev := <-sub.Events():
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error("stream.encode.fail", "err", err)
				return
			}
			if err := s.write(w, rc, EventCards, string(data)); err != nil {
				log.Debug("stream.write.fail", "err", err)
				return
			}
		case <-timer.C:
			if err := s.write(w, rc, EventPing, PingData); err != nil {
				log.Debug("stream.write.fail", "err", err)
				return
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.heartbeat)
	}
}

// write emits one SSE frame under a per-write deadline, so a stalled
// client cannot hold the handler past writeTimeout while the server's
// global WriteTimeout does not cut healthy long-lived streams.
func (s *StreamHandler) write(w http.ResponseWriter, rc *http.ResponseController, event, data string) error {
	_ = rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}

// canFlush reports whether w, or a writer it wraps, is an http.Flusher.
func canFlush(w http.ResponseWriter) bool {
	for {
		if _, ok := w.(http.Flusher); ok {
			return true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
}
