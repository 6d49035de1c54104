package project

import (
	"log"
	"sync"
	"time"

	"nexflow/internal/graph"
)

// Autosaver saves the project after graph mutations, debounced so a burst of
// edits (drags, batch results) produces one write.
type Autosaver struct {
	store *graph.Store
	path  string
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewAutosaver(store *graph.Store, path string, delay time.Duration) *Autosaver {
	if delay <= 0 {
		delay = time.Second
	}
	return &Autosaver{store: store, path: path, delay: delay}
}

// Bind subscribes the autosaver to the store.
func (a *Autosaver) Bind() {
	a.store.Subscribe(func(graph.Event) { a.schedule() })
}

func (a *Autosaver) schedule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.flush)
}

func (a *Autosaver) flush() {
	if err := Save(a.path, a.store); err != nil {
		log.Printf("autosave %s failed: %v", a.path, err)
	}
}

// Flush saves immediately, for shutdown.
func (a *Autosaver) Flush() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	a.flush()
}
