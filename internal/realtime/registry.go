// Package realtime – Registry
//
// Maps room identifiers to their channels. Channels are created on first use
// and never replaced, so every session of a room shares one channel.
package realtime

import (
	"sync"
)

// RoomChannel is the publish/subscribe channel of one room.
type RoomChannel = Broadcast[Event]

// Registry maps room ids to their channels. Entries are created on first
// access and live as long as the Registry; there is no remove. Lookups of
// warm rooms only take the read lock.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*RoomChannel
	capacity int
}

// NewRegistry returns an empty registry whose channels buffer capacity events.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		rooms:    make(map[string]*RoomChannel),
		capacity: capacity,
	}
}

// GetOrCreate returns the room's channel, creating it on first use. Every
// call for the same id returns the same channel.
func (r *Registry) GetOrCreate(roomID string) *RoomChannel {
	r.mu.RLock()
	ch, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.rooms[roomID]; ok {
		return ch
	}
	ch = NewBroadcast[Event](r.capacity)
	r.rooms[roomID] = ch
	roomsActive.Set(float64(len(r.rooms)))
	return ch
}

// Lookup returns the room's channel without creating it.
func (r *Registry) Lookup(roomID string) (*RoomChannel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.rooms[roomID]
	return ch, ok
}

// Len returns the number of rooms with a channel.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// CloseAll closes every channel so live sessions wind down. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.rooms {
		ch.Close()
	}
}
