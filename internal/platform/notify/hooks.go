package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/carebridge/cds-agent/internal/platform/realtime"
)

// Hooks is a page-level callback bag. Pages register side effects (refresh
// a worklist, invalidate a cache) against the raw events; hook dispatch
// happens during event delivery and is independent of whether a toast was
// queued for the same event.
type Hooks struct {
	OnOrderStatusChanged func(realtime.OrderStatusChanged)
	OnOrderCreated       func(realtime.OrderCreated)
	OnOrderCancelled     func(realtime.OrderCancelled)
	OnInferenceResult    func(realtime.InferenceResult)
}

// HookRegistry maps consumer ids to their hook bags. Registering an id
// twice replaces the earlier bag, so a remounted page never doubles its
// side effects.
type HookRegistry struct {
	mu     sync.RWMutex
	hooks  map[string]*Hooks
	logger zerolog.Logger
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry(logger zerolog.Logger) *HookRegistry {
	return &HookRegistry{
		hooks:  make(map[string]*Hooks),
		logger: logger.With().Str("component", "notify-hooks").Logger(),
	}
}

// Register installs a hook bag under the given consumer id.
func (r *HookRegistry) Register(id string, h Hooks) {
	r.mu.Lock()
	r.hooks[id] = &h
	r.mu.Unlock()
}

// Unregister removes the hook bag for the given consumer id.
func (r *HookRegistry) Unregister(id string) {
	r.mu.Lock()
	delete(r.hooks, id)
	r.mu.Unlock()
}

// Count returns the number of registered consumers.
func (r *HookRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// Dispatch delivers one raw event to every registered hook bag. A
// panicking hook is contained so the remaining consumers still run.
func (r *HookRegistry) Dispatch(evt interface{}) {
	r.mu.RLock()
	snapshot := make([]*Hooks, 0, len(r.hooks))
	for _, h := range r.hooks {
		snapshot = append(snapshot, h)
	}
	r.mu.RUnlock()

	for _, h := range snapshot {
		r.invoke(h, evt)
	}
}

func (r *HookRegistry) invoke(h *Hooks, evt interface{}) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("page hook panicked")
		}
	}()

	switch e := evt.(type) {
	case realtime.OrderStatusChanged:
		if h.OnOrderStatusChanged != nil {
			h.OnOrderStatusChanged(e)
		}
	case realtime.OrderCreated:
		if h.OnOrderCreated != nil {
			h.OnOrderCreated(e)
		}
	case realtime.OrderCancelled:
		if h.OnOrderCancelled != nil {
			h.OnOrderCancelled(e)
		}
	case realtime.InferenceResult:
		if h.OnInferenceResult != nil {
			h.OnInferenceResult(e)
		}
	}
}
