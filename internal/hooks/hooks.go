// Package hooks holds sibling subsystems that ride the transport lifecycle
// (serial console, network card, Bluetooth). They are set up once the bus is
// live and cleaned up before it is released.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Subsystem is one setup/cleanup pair.
type Subsystem interface {
	Name() string
	Setup(ctx context.Context) error
	Cleanup()
}

// Registry keeps subsystems in registration order.
type Registry struct {
	mu    sync.RWMutex
	items []Subsystem
	index map[string]int
}

func NewRegistry(subs ...Subsystem) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, s := range subs {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any subsystem with the same name in place.
func (r *Registry) Register(s Subsystem) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[s.Name()]; ok {
		r.items[i] = s
		return
	}
	r.index[s.Name()] = len(r.items)
	r.items = append(r.items, s)
}

func (r *Registry) Get(name string) (Subsystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.items[i], true
}

func (r *Registry) All() []Subsystem {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Subsystem(nil), r.items...)
}

// Setup runs every subsystem in order. On failure the ones already set up
// are cleaned up in reverse and the error is returned.
func Setup(ctx context.Context, subs []Subsystem, logger zerolog.Logger) ([]Subsystem, error) {
	done := make([]Subsystem, 0, len(subs))
	for _, s := range subs {
		if err := s.Setup(ctx); err != nil {
			Cleanup(done, logger)
			return nil, fmt.Errorf("hooks: %s setup: %w", s.Name(), err)
		}
		logger.Debug().Str("subsystem", s.Name()).Msg("subsystem_setup")
		done = append(done, s)
	}
	return done, nil
}

// Cleanup tears subsystems down in reverse order.
func Cleanup(subs []Subsystem, logger zerolog.Logger) {
	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Cleanup()
		logger.Debug().Str("subsystem", subs[i].Name()).Msg("subsystem_cleanup")
	}
}

// Func adapts plain functions into a Subsystem.
type Func struct {
	ID        string
	SetupFn   func(ctx context.Context) error
	CleanupFn func()
}

func (f Func) Name() string { return f.ID }

func (f Func) Setup(ctx context.Context) error {
	if f.SetupFn == nil {
		return nil
	}
	return f.SetupFn(ctx)
}

func (f Func) Cleanup() {
	if f.CleanupFn != nil {
		f.CleanupFn()
	}
}
