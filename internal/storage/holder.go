package storage

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/koustreak/imgbed/internal/config"
)

// Holder owns the current Manager. Readers call Load on every request;
// Reload swaps in a freshly initialized Manager after a config change.
type Holder struct {
	current *atomic.Pointer[Manager]
	opts    Options

	mu sync.Mutex // serializes Reload
}

// NewHolder wraps m. opts is reused by Reload.
func NewHolder(m *Manager, opts Options) *Holder {
	return &Holder{current: atomic.NewPointer(m), opts: opts}
}

// Load returns the current Manager.
func (h *Holder) Load() *Manager {
	return h.current.Load()
}

// Reload builds a Manager from src, publishes it and closes the previous one
// once its in-flight notifications finish.
func (h *Holder) Reload(src config.Source) *Manager {
	h.mu.Lock()
	opts := h.opts
	opts.Source = src
	next := Initialize(src.Full(), opts)
	prev := h.current.Swap(next)
	h.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return next
}

// Close closes the current Manager.
func (h *Holder) Close() error {
	if m := h.current.Load(); m != nil {
		return m.Close()
	}
	return nil
}
