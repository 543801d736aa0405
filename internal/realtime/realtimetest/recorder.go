// Package realtimetest records emitted events for assertions.
package realtimetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/oggyb/tweetheart/internal/realtime"
)

// Emitted is one recorded Emit call.
type Emitted struct {
	Room  string
	Event realtime.Event
}

// Recorder is a realtime.Emitter that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []Emitted
}

func (r *Recorder) Emit(_ context.Context, room string, ev realtime.Event) {
	r.mu.Lock()
	r.events = append(r.events, Emitted{Room: room, Event: ev})
	r.mu.Unlock()
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emitted(nil), r.events...)
}

// To returns the events sent to room, optionally filtered by type.
func (r *Recorder) To(room string, types ...string) []realtime.Event {
	var out []realtime.Event
	for _, e := range r.All() {
		if e.Room != room {
			continue
		}
		if len(types) > 0 && !contains(types, e.Event.Type) {
			continue
		}
		out = append(out, e.Event)
	}
	return out
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Decode round-trips ev.Data through JSON so tests can inspect the wire shape.
func Decode(ev realtime.Event) map[string]any {
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Subscribe joins a fresh subscriber of hub to room until ctx is done or
// the returned cancel func is called.
func Subscribe(ctx context.Context, hub *realtime.Hub, room string) (<-chan realtime.Event, func()) {
	sub := hub.NewSubscriber()
	hub.Join(sub, room)
	var once sync.Once
	cleanup := func() { once.Do(func() { hub.Remove(sub) }) }
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.Events(), cleanup
}
