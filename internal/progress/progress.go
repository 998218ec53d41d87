// Package progress fans out merge progress events to control-surface
// websocket subscribers: one hub per in-flight merge instead of one hub
// for the whole process, since a subscriber only ever cares about a
// single device_id's merge.
package progress

import (
	"encoding/json"
	"sync"
	"time"
)

// Stage names an orchestrator phase; events are tagged with one so a
// subscriber can render a progress bar without parsing free text.
type Stage string

const (
	StageEnumerating Stage = "enumerating"
	StageDownloading Stage = "downloading"
	StageReconciling Stage = "reconciling"
	StageMerging     Stage = "merging"
	StagePlaylists   Stage = "playlists"
	StageRingtones   Stage = "ringtones"
	StageUploading   Stage = "uploading"
	StageSwapping    Stage = "swapping"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Event is one progress update, JSON-serialized verbatim to every
// subscriber of the merge it belongs to.
type Event struct {
	DeviceID  string    `json:"device_id"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message,omitempty"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Err       string    `json:"error,omitempty"`
}

// Hub fans events for a single merge out to its subscribers. A merge that
// nobody is watching still runs; Publish on a hub with no subscribers is a
// no-op beyond the buffered history.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Event]bool
	history     []Event
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]bool)}
}

// Subscribe registers a new channel and replays history already published
// before the caller connected, so a websocket client that dials in mid-merge
// still sees the stages it missed.
func (h *Hub) Subscribe() chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, len(h.history)+32)
	for _, e := range h.history {
		ch <- e
	}
	h.subscribers[ch] = true
	return ch
}

// Unsubscribe removes and closes ch.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// Publish records e and delivers it to every current subscriber. A
// subscriber whose buffer is full is dropped rather than blocking the
// merge worker.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, e)
	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}

// Marshal renders e as the JSON frame written to a websocket connection.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Registry tracks one Hub per active or recently finished merge, keyed by
// device ID.
type Registry struct {
	mu   sync.Mutex
	hubs map[string]*Hub
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hubs: make(map[string]*Hub)}
}

// HubFor returns the Hub for deviceID, creating one if this is the first
// call for that device.
func (r *Registry) HubFor(deviceID string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[deviceID]
	if !ok {
		h = NewHub()
		r.hubs[deviceID] = h
	}
	return h
}

// Remove drops the Hub for deviceID once its merge has finished and every
// subscriber has had a chance to read the terminal event.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hubs, deviceID)
}
