package ingest

import (
	"context"
	"sync"
)

// Slot identifies one running listener: a feed on a destination.
type Slot struct {
	DestinationID string
	Feed          string
}

// Registry tracks per-feed listener goroutines so a feed update can replace
// its running listener and shutdown can stop them all.
type Registry struct {
	mu      sync.Mutex
	cancels map[Slot]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{cancels: make(map[Slot]context.CancelFunc)}
}

// Start runs fn in its own goroutine under a cancellable child of ctx. If the
// slot already has a listener it is cancelled first.
func (r *Registry) Start(ctx context.Context, slot Slot, fn func(ctx context.Context)) {
	r.mu.Lock()
	if cancel, ok := r.cancels[slot]; ok {
		cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancels[slot] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		fn(runCtx)
	}()
}

func (r *Registry) Stop(slot Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[slot]; ok {
		cancel()
		delete(r.cancels, slot)
	}
}

func (r *Registry) Active(slot Slot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[slot]
	return ok
}

// StopAll cancels every listener and waits for the goroutines to return.
func (r *Registry) StopAll() {
	r.mu.Lock()
	for slot, cancel := range r.cancels {
		cancel()
		delete(r.cancels, slot)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
