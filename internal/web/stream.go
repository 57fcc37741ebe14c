package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vadiminshakov/remit/internal/domain"
	"go.uber.org/zap"
)

const heartbeatInterval = 30 * time.Second

// handleEventStream replays transition events from the log and keeps tailing it.
// Resume with ?after=<index> or the Last-Event-ID header; narrow with ?machine= and ?entity=.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.admins.IsAdmin(caller) {
		s.writeError(w, r, domain.ErrUnauthorizedActor.New("only admins can stream transitions"))
		return
	}
	if s.transitions == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "transition log not available")
		return
	}

	lastIndex, err := resumeIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	machine := domain.Machine(r.URL.Query().Get("machine"))
	entity := r.URL.Query().Get("entity")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	sendEvents := func() error {
		records, err := s.transitions.EventsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			lastIndex = record.Index
			if machine != "" && record.Event.Machine != machine {
				continue
			}
			if entity != "" && record.Event.EntityID != entity {
				continue
			}
			payload, err := json.Marshal(record.Event)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: %s\n", record.Event.Machine)
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		flusher.Flush()
		return nil
	}

	var wake chan domain.TransitionEvent
	if s.live != nil {
		wake = s.live.Subscribe()
		defer s.live.Unsubscribe(wake)
	}

	if err := sendEvents(); err != nil {
		s.l.Error("transition stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendEvents(); err != nil {
				s.l.Warn("transition stream poll", zap.Error(err))
			}
		case <-wake:
			// the log is the source of truth; the live event only shortens the wait
			if err := sendEvents(); err != nil {
				s.l.Warn("transition stream wake", zap.Error(err))
			}
		}
	}
}

func resumeIndex(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("after")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	idx, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, domain.ErrValidation.Newf("invalid resume index %q", raw)
	}
	return idx, nil
}
