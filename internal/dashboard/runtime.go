// Package dashboard binds the realtime transport, the inference job
// service, and the notification queue into the one runtime the dashboard
// shell talks to. Pages never touch the transport directly; they register
// hooks and read the queue.
package dashboard

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/carebridge/cds-agent/internal/domain/inference"
	"github.com/carebridge/cds-agent/internal/platform/notify"
	"github.com/carebridge/cds-agent/internal/platform/realtime"
	"github.com/carebridge/cds-agent/internal/platform/session"
)

// Runtime owns the long-lived subscriptions on both event categories and
// translates raw events into job updates, page hooks, and toasts.
type Runtime struct {
	sess      *session.Manager
	orders    *realtime.Manager
	inferFeed *realtime.Manager
	jobs      *inference.Service
	queue     *notify.Queue
	hooks     *notify.HookRegistry
	logger    zerolog.Logger

	mu         sync.Mutex
	orderSubID string
	inferSubID string
	stopWatch  func()
	started    bool
}

// New assembles a runtime from its already-constructed parts.
func New(sess *session.Manager, orders, inferFeed *realtime.Manager, jobs *inference.Service, queue *notify.Queue, hooks *notify.HookRegistry, logger zerolog.Logger) *Runtime {
	return &Runtime{
		sess:      sess,
		orders:    orders,
		inferFeed: inferFeed,
		jobs:      jobs,
		queue:     queue,
		hooks:     hooks,
		logger:    logger.With().Str("component", "dashboard").Logger(),
	}
}

// Start subscribes to both categories and begins reacting to session
// token changes. Calling Start twice is a no-op.
func (r *Runtime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	r.orderSubID = r.orders.Subscribe(realtime.Callbacks{
		OnOrderStatusChanged: r.onOrderStatusChanged,
		OnOrderCreated:       r.onOrderCreated,
		OnOrderCancelled:     r.onOrderCancelled,
		OnOpen:               func() { r.logger.Info().Str("category", realtime.CategoryOrderChange).Msg("push channel up") },
		OnClose:              func() { r.logger.Warn().Str("category", realtime.CategoryOrderChange).Msg("push channel down") },
	})

	r.inferSubID = r.inferFeed.Subscribe(realtime.Callbacks{
		OnInferenceResult: r.onInferenceResult,
		OnOpen:            func() { r.logger.Info().Str("category", realtime.CategoryInference).Msg("push channel up") },
		OnClose:           func() { r.logger.Warn().Str("category", realtime.CategoryInference).Msg("push channel down") },
	})

	r.stopWatch = r.sess.Watch(func(string) {
		r.orders.SessionChanged()
		r.inferFeed.SessionChanged()
	})
}

// Stop tears everything down for process shutdown.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.started = false

	r.orders.Unsubscribe(r.orderSubID)
	r.inferFeed.Unsubscribe(r.inferSubID)
	if r.stopWatch != nil {
		r.stopWatch()
		r.stopWatch = nil
	}
	r.orders.Close()
	r.inferFeed.Close()
	r.jobs.Close()
}

// Jobs exposes the job service to the shell and the status API.
func (r *Runtime) Jobs() *inference.Service {
	return r.jobs
}

// Queue exposes the notification queue.
func (r *Runtime) Queue() *notify.Queue {
	return r.queue
}

// Hooks exposes the page hook registry.
func (r *Runtime) Hooks() *notify.HookRegistry {
	return r.hooks
}

// Connectivity reports per-category push availability. A false value is a
// persistent degraded-mode signal, not a transient toast: the poll
// backstop keeps job state converging while push is down.
func (r *Runtime) Connectivity() map[string]bool {
	return map[string]bool{
		realtime.CategoryOrderChange: r.orders.Connected(),
		realtime.CategoryInference:   r.inferFeed.Connected(),
	}
}

func (r *Runtime) onOrderStatusChanged(e realtime.OrderStatusChanged) {
	r.hooks.Dispatch(e)
	msg := e.Message
	if msg == "" {
		msg = e.PatientName + ": " + e.FromStatus + " -> " + e.ToStatus
	}
	r.queue.Add(notify.KindInfo, "Order status updated", msg, e.OCSID, notify.OrderAlertTTL)
}

func (r *Runtime) onOrderCreated(e realtime.OrderCreated) {
	r.hooks.Dispatch(e)
	msg := e.Message
	if msg == "" {
		msg = e.JobType + " order for " + e.PatientName
	}
	r.queue.Add(notify.KindInfo, "New order placed", msg, e.OCSID, notify.OrderAlertTTL)
}

func (r *Runtime) onOrderCancelled(e realtime.OrderCancelled) {
	r.hooks.Dispatch(e)
	msg := e.Message
	if msg == "" {
		msg = "Cancelled: " + e.Reason
	}
	r.queue.Add(notify.KindWarning, "Order cancelled", msg, e.OCSID, notify.OrderAlertTTL)
}

func (r *Runtime) onInferenceResult(e realtime.InferenceResult) {
	r.hooks.Dispatch(e)
	r.jobs.ApplyPush(e)
}
