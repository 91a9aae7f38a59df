package notify

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/carebridge/cds-agent/internal/platform/realtime"
)

func TestHookRegistry_DispatchByEventType(t *testing.T) {
	r := NewHookRegistry(zerolog.Nop())

	var statusChanges, results int
	r.Register("worklist", Hooks{
		OnOrderStatusChanged: func(realtime.OrderStatusChanged) { statusChanges++ },
		OnInferenceResult:    func(realtime.InferenceResult) { results++ },
	})

	r.Dispatch(realtime.OrderStatusChanged{OCSID: "ocs-1"})
	r.Dispatch(realtime.InferenceResult{JobID: "j-1"})
	r.Dispatch(realtime.OrderCancelled{OCSID: "ocs-1"})

	if statusChanges != 1 {
		t.Errorf("expected 1 status-change dispatch, got %d", statusChanges)
	}
	if results != 1 {
		t.Errorf("expected 1 inference dispatch, got %d", results)
	}
}

func TestHookRegistry_RegisterReplacesSameID(t *testing.T) {
	r := NewHookRegistry(zerolog.Nop())

	var old, replacement int
	r.Register("page", Hooks{OnOrderCreated: func(realtime.OrderCreated) { old++ }})
	r.Register("page", Hooks{OnOrderCreated: func(realtime.OrderCreated) { replacement++ }})

	r.Dispatch(realtime.OrderCreated{OCSID: "ocs-1"})

	if old != 0 {
		t.Error("replaced hook bag must not run")
	}
	if replacement != 1 {
		t.Errorf("expected replacement to run once, got %d", replacement)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 consumer, got %d", r.Count())
	}
}

func TestHookRegistry_Unregister(t *testing.T) {
	r := NewHookRegistry(zerolog.Nop())

	var calls int
	r.Register("page", Hooks{OnOrderCreated: func(realtime.OrderCreated) { calls++ }})
	r.Unregister("page")

	r.Dispatch(realtime.OrderCreated{OCSID: "ocs-1"})

	if calls != 0 {
		t.Error("unregistered hook must not run")
	}
}

func TestHookRegistry_PanicDoesNotStopOthers(t *testing.T) {
	r := NewHookRegistry(zerolog.Nop())

	var survived int
	r.Register("bad", Hooks{OnOrderCreated: func(realtime.OrderCreated) { panic("boom") }})
	r.Register("good", Hooks{OnOrderCreated: func(realtime.OrderCreated) { survived++ }})

	r.Dispatch(realtime.OrderCreated{OCSID: "ocs-1"})

	if survived != 1 {
		t.Errorf("expected surviving hook to run, got %d calls", survived)
	}
}
