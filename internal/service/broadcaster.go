package service

import (
	"sync"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/port"
)

// Broadcaster fans sync events out to observers. Status lines and progress
// events are separate streams so a subscriber can take one without the
// other. Observers run synchronously on the sync goroutine and must not
// block.
type Broadcaster struct {
	mu       sync.RWMutex
	seq      int
	status   map[int]port.StatusFunc
	progress map[int]port.ProgressFunc
}

// NewBroadcaster creates a broadcaster with no observers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		status:   make(map[int]port.StatusFunc),
		progress: make(map[int]port.ProgressFunc),
	}
}

// SubscribeStatus registers fn for status lines. The returned func removes it.
func (b *Broadcaster) SubscribeStatus(fn port.StatusFunc) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := b.seq
	b.status[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.status, id)
	}
}

// SubscribeProgress registers fn for progress events. The returned func
// removes it.
func (b *Broadcaster) SubscribeProgress(fn port.ProgressFunc) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := b.seq
	b.progress[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.progress, id)
	}
}

// Status publishes u to every status observer.
func (b *Broadcaster) Status(u domain.StatusUpdate) {
	b.mu.RLock()
	observers := make([]port.StatusFunc, 0, len(b.status))
	for _, fn := range b.status {
		observers = append(observers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range observers {
		fn(u)
	}
}

// Progress publishes p to every progress observer.
func (b *Broadcaster) Progress(p domain.SyncProgress) {
	b.mu.RLock()
	observers := make([]port.ProgressFunc, 0, len(b.progress))
	for _, fn := range b.progress {
		observers = append(observers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range observers {
		fn(p)
	}
}
