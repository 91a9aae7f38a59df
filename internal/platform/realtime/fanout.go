package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Callbacks is a subscriber's callback set. Every field is optional; a
// subscriber only receives the event kinds it registered a callback for.
//
// OnOpen and OnClose are connectivity signals, not errors: pages use them
// to toggle a degraded-mode indicator. Transport failures are never
// returned to subscribers.
type Callbacks struct {
	OnOrderStatusChanged func(OrderStatusChanged)
	OnOrderCreated       func(OrderCreated)
	OnOrderCancelled     func(OrderCancelled)
	OnInferenceResult    func(InferenceResult)

	OnOpen  func()
	OnClose func()
	OnError func(err error)
}

// fanout is the mutex-guarded subscriber registry. Dispatch walks a
// snapshot taken per event, so a subscriber removed mid-batch still
// receives the events that arrived before its removal and no others.
type fanout struct {
	mu    sync.RWMutex
	order []string
	subs  map[string]*Callbacks
}

func newFanout() *fanout {
	return &fanout{subs: make(map[string]*Callbacks)}
}

func (f *fanout) add(cb *Callbacks) string {
	id := uuid.New().String()
	f.mu.Lock()
	f.subs[id] = cb
	f.order = append(f.order, id)
	f.mu.Unlock()
	return id
}

func (f *fanout) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return
	}
	delete(f.subs, id)
	for i, sid := range f.order {
		if sid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// snapshot returns subscribers in registration order.
func (f *fanout) snapshot() []*Callbacks {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Callbacks, 0, len(f.subs))
	for _, id := range f.order {
		if cb, ok := f.subs[id]; ok {
			out = append(out, cb)
		}
	}
	return out
}

func (f *fanout) dispatch(evt interface{}, logger zerolog.Logger) {
	for _, cb := range f.snapshot() {
		invoke(cb, evt, logger)
	}
}

func (f *fanout) notifyOpen(logger zerolog.Logger) {
	for _, cb := range f.snapshot() {
		if cb.OnOpen != nil {
			guarded(logger, func() { cb.OnOpen() })
		}
	}
}

func (f *fanout) notifyClose(logger zerolog.Logger) {
	for _, cb := range f.snapshot() {
		if cb.OnClose != nil {
			guarded(logger, func() { cb.OnClose() })
		}
	}
}

func (f *fanout) notifyError(err error, logger zerolog.Logger) {
	for _, cb := range f.snapshot() {
		if cb.OnError != nil {
			cbErr := err
			cbRef := cb
			guarded(logger, func() { cbRef.OnError(cbErr) })
		}
	}
}

// invoke delivers one event to one subscriber. A panicking handler is
// contained here so the remaining subscribers still get the event.
func invoke(cb *Callbacks, evt interface{}, logger zerolog.Logger) {
	guarded(logger, func() {
		switch e := evt.(type) {
		case OrderStatusChanged:
			if cb.OnOrderStatusChanged != nil {
				cb.OnOrderStatusChanged(e)
			}
		case OrderCreated:
			if cb.OnOrderCreated != nil {
				cb.OnOrderCreated(e)
			}
		case OrderCancelled:
			if cb.OnOrderCancelled != nil {
				cb.OnOrderCancelled(e)
			}
		case InferenceResult:
			if cb.OnInferenceResult != nil {
				cb.OnInferenceResult(e)
			}
		}
	})
}

func guarded(logger zerolog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("subscriber callback panicked")
		}
	}()
	fn()
}
