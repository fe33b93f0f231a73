package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/b0bbywan/odio-bluetooth/backend"
	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

const (
	defaultKeepAlive = 30 * time.Second
	minKeepAlive     = 10 * time.Second
	maxKeepAlive     = 120 * time.Second
)

// sseStream writes events in text/event-stream framing and flushes each one.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEStream(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &sseStream{w: w, flusher: flusher}, true
}

func (s *sseStream) send(e events.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		logger.Warn("[sse] cannot encode %s: %v", e.Type, err)
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) info(message string) error {
	return s.send(events.Event{Type: events.TypeServerInfo, Data: message})
}

// sseHandler streams broadcaster events to one client until it disconnects.
// A server.info "love" frame goes out whenever the stream has been idle for
// the keepalive period.
func sseHandler(b *backend.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		idle, err := parseKeepAlive(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		stream, ok := newSSEStream(w)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		if err := stream.info("connected"); err != nil {
			return
		}

		ch := b.SubscribeFunc(filter)
		defer b.Unsubscribe(ch)
		timer := time.NewTimer(idle)
		defer timer.Stop()

		for {
			select {
			case <-r.Context().Done():
				if err := stream.info("bye"); err != nil {
					logger.Debug("[sse] client gone before goodbye: %v", err)
				}
				return
			case <-timer.C:
				if err := stream.info("love"); err != nil {
					logger.Warn("[sse] keepalive failed, closing: %v", err)
					return
				}
			case e, ok := <-ch:
				if !ok {
					return
				}
				if err := stream.send(e); err != nil {
					logger.Warn("[sse] write failed, closing: %v", err)
					return
				}
			}
			timer.Reset(idle)
		}
	}
}

// parseKeepAlive reads ?keepalive=<seconds>, bounded to [10, 120].
func parseKeepAlive(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("keepalive")
	if raw == "" {
		return defaultKeepAlive, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("keepalive must be an integer (seconds)")
	}
	d := time.Duration(secs) * time.Second
	if d < minKeepAlive || d > maxKeepAlive {
		return 0, fmt.Errorf("keepalive must be between %d and %d seconds", int(minKeepAlive.Seconds()), int(maxKeepAlive.Seconds()))
	}
	return d, nil
}

// splitList returns the trimmed, non-empty items of a comma separated value.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseFilter builds an event filter from the query:
//
//	?types=device.added,device.removed
//	?backend=bluetooth,killswitch
//	?exclude=adapter.updated
//
// server.info always passes and cannot be excluded.
func parseFilter(r *http.Request) (func(events.Event) bool, error) {
	q := r.URL.Query()

	include := splitList(q.Get("types"))
	for _, name := range splitList(q.Get("backend")) {
		include = append(include, events.BackendTypes[name]...)
	}
	if len(include) > 0 && !slices.Contains(include, events.TypeServerInfo) {
		include = append(include, events.TypeServerInfo)
	}

	exclude := splitList(q.Get("exclude"))
	if slices.Contains(exclude, events.TypeServerInfo) {
		return nil, errors.New("server.info cannot be excluded")
	}

	return events.NewFilter(include, exclude), nil
}
