package sse

import (
	"context"
	"sync"

	"ms-club-ticketing/internal/models"
)

// HoldEventEmitter fans hold snapshots out to the dashboards watching an
// event.
type HoldEventEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan models.HoldSnapshot
}

func NewHoldEventEmitter() *HoldEventEmitter {
	return &HoldEventEmitter{clients: make(map[string][]chan models.HoldSnapshot)}
}

// Subscribe registers a client for eventID until ctx is done, after which
// the returned channel is closed.
func (e *HoldEventEmitter) Subscribe(ctx context.Context, eventID string) <-chan models.HoldSnapshot {
	ch := make(chan models.HoldSnapshot, 10)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()
	return ch
}

// Emit never blocks; a client with a full buffer misses the snapshot.
func (e *HoldEventEmitter) Emit(snap models.HoldSnapshot) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[snap.EventID] {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (e *HoldEventEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}

func (e *HoldEventEmitter) remove(eventID string, ch chan models.HoldSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}
