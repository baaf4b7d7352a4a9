package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/flowchat/pkg/observe"
)

// HistoryUpdate is the notification payload published for each append.
type HistoryUpdate struct {
	SessionID string
	Ordinal   int
	Event     Event
}

// Archive receives a best-effort copy of every appended event. The in-memory
// history stays authoritative; archive failures are logged and ignored.
type Archive interface {
	SaveEvent(ctx context.Context, sessionID string, ordinal int, ev Event) error
	ListEvents(ctx context.Context, sessionID string) ([]Event, error)
	Close() error
}

// History is the per-session append-only log of chat events. Appends notify
// attached observers synchronously; insertion order is the only ordering
// guarantee. When an archive is configured, a session's first access after
// process start rehydrates its log from the archive, so ordinals continue
// past archived events instead of overwriting them.
type History struct {
	mu       sync.Mutex
	events   map[string][]Event
	hydrated map[string]bool
	subject  *observe.Subject[HistoryUpdate]
	archive  Archive
}

func NewHistory(archive Archive) *History {
	return &History{
		events:   map[string][]Event{},
		hydrated: map[string]bool{},
		subject:  observe.NewSubject[HistoryUpdate](),
		archive:  archive,
	}
}

// Attach registers an observer for history updates and returns a detach
// function.
func (h *History) Attach(obs observe.Observer[HistoryUpdate]) func() {
	if h == nil {
		return func() {}
	}
	return h.subject.Attach(obs)
}

// hydrateLocked loads a session's archived events into memory, once per
// session lifetime. A load failure leaves the session on its in-memory log
// only; the archive stays best-effort.
func (h *History) hydrateLocked(sessionID string) {
	if h.archive == nil || h.hydrated[sessionID] {
		return
	}
	h.hydrated[sessionID] = true
	if len(h.events[sessionID]) > 0 {
		return
	}
	archived, err := h.archive.ListEvents(context.Background(), sessionID)
	if err != nil {
		log.Warn().Err(err).Str("component", "history").Str("session_id", sessionID).Msg("archive rehydrate failed")
		return
	}
	if len(archived) > 0 {
		h.events[sessionID] = archived
	}
}

// Append adds an event to a session's history and notifies observers. A
// subsequent Get on the same goroutine observes the appended event.
func (h *History) Append(sessionID string, ev Event) {
	if h == nil || sessionID == "" {
		return
	}
	h.mu.Lock()
	h.hydrateLocked(sessionID)
	h.events[sessionID] = append(h.events[sessionID], ev)
	ordinal := len(h.events[sessionID]) - 1
	h.mu.Unlock()

	if h.archive != nil {
		if err := h.archive.SaveEvent(context.Background(), sessionID, ordinal, ev); err != nil {
			log.Warn().Err(err).Str("component", "history").Str("session_id", sessionID).Msg("archive append failed")
		}
	}

	h.subject.Notify(HistoryUpdate{SessionID: sessionID, Ordinal: ordinal, Event: ev})
}

// Get returns the ordered events for a session. With includeControl false,
// start/stream events are filtered out, leaving only user-visible turns.
func (h *History) Get(sessionID string, includeControl bool) []Event {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	h.hydrateLocked(sessionID)
	src := h.events[sessionID]
	events := make([]Event, len(src))
	copy(events, src)
	h.mu.Unlock()

	if includeControl {
		return events
	}
	filtered := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.IsControl() {
			continue
		}
		filtered = append(filtered, ev)
	}
	return filtered
}

// Len reports the total number of events recorded for a session.
func (h *History) Len(sessionID string) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hydrateLocked(sessionID)
	return len(h.events[sessionID])
}

// Clear drops a session's in-memory history, used when an idle session is
// evicted. Archived events survive and rehydrate on the session's next access.
func (h *History) Clear(sessionID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	delete(h.events, sessionID)
	delete(h.hydrated, sessionID)
	h.mu.Unlock()
}
