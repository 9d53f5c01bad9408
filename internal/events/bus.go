// Package events fans out overlay and panel changes to live subscribers.
package events

import "sync"

// Event kinds.
const (
	KindLayer  = "layer"  // overlay redrawn or visibility changed
	KindPanel  = "panel"  // polygon fieldset replaced or toggled
	KindOption = "option" // global option changed
	KindAlert  = "alert"  // modal notification for the user
	KindPage   = "page"   // page to open in a new viewing context
)

// Event represents a change visible to the user.
type Event struct {
	Kind    string
	Action  string // e.g. "redrawn", "replaced", "toggled"
	ID      string // polygon identity or option name
	Message string
	URL     string
	Body    string
}

// Bus is a simple fan-out pub/sub.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
