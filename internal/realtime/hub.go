package realtime

import (
	"context"
	"sync"
)

const defaultBufferSize = 64

// Hub is the in-process room registry. Each subscriber owns a buffered
// stream; Emit drops the event for a subscriber whose buffer is full.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[int64]*Subscriber
	nextID     int64
	bufferSize int
}

// Subscriber is one connected client. It may be in several rooms.
type Subscriber struct {
	id     int64
	stream chan Event

	mu    sync.Mutex
	rooms map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[int64]*Subscriber),
		bufferSize: defaultBufferSize,
	}
}

// NewSubscriber registers a subscriber that is not in any room yet.
func (h *Hub) NewSubscriber() *Subscriber {
	return &Subscriber{
		id:     h.nextSequence(),
		stream: make(chan Event, h.bufferSize),
		rooms:  make(map[string]struct{}),
	}
}

// Events is the subscriber's delivery stream. It is never closed.
func (s *Subscriber) Events() <-chan Event {
	return s.stream
}

// Offer queues ev for this subscriber only. It reports false when the
// buffer is full and the event was dropped.
func (s *Subscriber) Offer(ev Event) bool {
	select {
	case s.stream <- ev:
		return true
	default:
		return false
	}
}

// In reports whether the subscriber joined room.
func (s *Subscriber) In(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok
}

func (h *Hub) Join(sub *Subscriber, room string) {
	h.mu.Lock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[int64]*Subscriber)
	}
	h.rooms[room][sub.id] = sub
	h.mu.Unlock()

	sub.mu.Lock()
	sub.rooms[room] = struct{}{}
	sub.mu.Unlock()
}

func (h *Hub) Leave(sub *Subscriber, room string) {
	h.mu.Lock()
	h.removeLocked(room, sub.id)
	h.mu.Unlock()

	sub.mu.Lock()
	delete(sub.rooms, room)
	sub.mu.Unlock()
}

// Remove takes the subscriber out of every room it joined.
func (h *Hub) Remove(sub *Subscriber) {
	sub.mu.Lock()
	rooms := make([]string, 0, len(sub.rooms))
	for room := range sub.rooms {
		rooms = append(rooms, room)
	}
	sub.rooms = make(map[string]struct{})
	sub.mu.Unlock()

	h.mu.Lock()
	for _, room := range rooms {
		h.removeLocked(room, sub.id)
	}
	h.mu.Unlock()
}

// Emit implements Emitter for this process only.
func (h *Hub) Emit(_ context.Context, room string, ev Event) {
	if room == "" || ev.Type == "" {
		return
	}
	h.mu.RLock()
	members := h.rooms[room]
	if len(members) == 0 {
		h.mu.RUnlock()
		return
	}
	copies := make([]*Subscriber, 0, len(members))
	for _, sub := range members {
		copies = append(copies, sub)
	}
	h.mu.RUnlock()

	for _, sub := range copies {
		sub.Offer(ev)
	}
}

// RoomSize reports how many subscribers are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) nextSequence() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID
}

func (h *Hub) removeLocked(room string, id int64) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}
