// Package events defines the typed domain events the engine emits to its host.
//
// The core never talks to a presentation layer directly: operations publish
// events on a Bus and the host drains them at its own pace. Publishing never
// blocks; when nobody is listening the event is dropped.
package events

// Event is implemented by every domain event type.
type Event interface {
	isEvent()
}

// EntryAdded signals that a new entry was appended to the collection.
type EntryAdded struct {
	Key string
}

// FetchCompleted reports the outcome of one per-entry PDF fetch attempt.
type FetchCompleted struct {
	Key    string
	Source string // source that produced the result, empty if all failed
	Status string // "success", "skipped" or "failed"
	Path   string // stored file path on success
	Reason string // aggregate failure reason, empty on success
}

// CitekeysUnified carries the old-key to new-key mapping of a unify pass.
type CitekeysUnified struct {
	Mapping map[string]string
}

// UpdateAvailable signals that a newer release was observed.
type UpdateAvailable struct {
	Version string
}

func (EntryAdded) isEvent()      {}
func (FetchCompleted) isEvent()  {}
func (CitekeysUnified) isEvent() {}
func (UpdateAvailable) isEvent() {}

// Bus is a buffered, drop-on-overflow event channel.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given buffer size (minimum 16).
func NewBus(size int) *Bus {
	if size < 16 {
		size = 16
	}
	return &Bus{ch: make(chan Event, size)}
}

// Publish enqueues an event without blocking. A nil bus discards everything,
// so components can treat the bus as optional.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	select {
	case b.ch <- e:
	default:
	}
}

// C returns the receive side of the bus.
func (b *Bus) C() <-chan Event {
	return b.ch
}

// Drain returns all currently queued events without waiting for more.
func (b *Bus) Drain() []Event {
	if b == nil {
		return nil
	}
	var out []Event
	for {
		select {
		case e := <-b.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
