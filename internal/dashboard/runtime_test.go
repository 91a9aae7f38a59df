package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/carebridge/cds-agent/internal/domain/inference"
	"github.com/carebridge/cds-agent/internal/platform/gateway"
	"github.com/carebridge/cds-agent/internal/platform/notify"
	"github.com/carebridge/cds-agent/internal/platform/realtime"
	"github.com/carebridge/cds-agent/internal/platform/session"
)

type scriptConn struct {
	in   chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newScriptConn() *scriptConn {
	return &scriptConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *scriptConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return gorillawebsocket.TextMessage, data, nil
	case <-c.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *scriptConn) WriteMessage(int, []byte) error { return nil }

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *scriptConn) deliver(frame string) { c.in <- []byte(frame) }

type scriptDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*scriptConn
}

func (d *scriptDialer) Dial(ctx context.Context, url string) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	c := newScriptConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *scriptDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *scriptDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

func (d *scriptDialer) conn(i int) *scriptConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type stubGateway struct {
	submitResp *gateway.SubmitResponse
}

func (s *stubGateway) SubmitInference(ctx context.Context, modelType string, params map[string]interface{}) (*gateway.SubmitResponse, error) {
	return s.submitResp, nil
}

func (s *stubGateway) JobStatus(ctx context.Context, jobID string) (*gateway.JobStatusResponse, error) {
	return &gateway.JobStatusResponse{Status: string(inference.StatusProcessing)}, nil
}

type fixture struct {
	rt          *Runtime
	sess        *session.Manager
	queue       *notify.Queue
	hooks       *notify.HookRegistry
	jobs        *inference.Service
	orderDialer *scriptDialer
	inferDialer *scriptDialer
}

func newFixture(t *testing.T, gw inference.GatewayClient) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	sess := session.NewManager("tok-1", logger)
	queue := notify.NewQueue(logger)
	hooks := notify.NewHookRegistry(logger)
	jobs := inference.NewService(inference.NewStore(), gw, queue, logger, inference.WithPollInterval(time.Hour))

	orderDialer := &scriptDialer{}
	inferDialer := &scriptDialer{}
	orders := realtime.NewManager(realtime.CategoryOrderChange, "ws://gw.local/ws", sess, logger,
		realtime.WithDialer(orderDialer), realtime.WithPingInterval(time.Hour))
	inferFeed := realtime.NewManager(realtime.CategoryInference, "ws://gw.local/ws", sess, logger,
		realtime.WithDialer(inferDialer), realtime.WithPingInterval(time.Hour))

	rt := New(sess, orders, inferFeed, jobs, queue, hooks, logger)
	t.Cleanup(rt.Stop)

	return &fixture{
		rt:          rt,
		sess:        sess,
		queue:       queue,
		hooks:       hooks,
		jobs:        jobs,
		orderDialer: orderDialer,
		inferDialer: inferDialer,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRuntime_StartConnectsBothCategories(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	f.rt.Start()

	waitFor(t, "both connections", func() bool {
		conn := f.rt.Connectivity()
		return conn[realtime.CategoryOrderChange] && conn[realtime.CategoryInference]
	})

	if !strings.Contains(f.orderDialer.lastURL(), "/order-change/") {
		t.Errorf("unexpected order endpoint: %s", f.orderDialer.lastURL())
	}
	if !strings.Contains(f.inferDialer.lastURL(), "/inference-result/") {
		t.Errorf("unexpected inference endpoint: %s", f.inferDialer.lastURL())
	}
}

func TestRuntime_OrderEventToastsAndRunsHooks(t *testing.T) {
	f := newFixture(t, &stubGateway{})

	var mu sync.Mutex
	var hooked []string
	f.hooks.Register("worklist", notify.Hooks{
		OnOrderStatusChanged: func(e realtime.OrderStatusChanged) {
			mu.Lock()
			hooked = append(hooked, e.OCSID)
			mu.Unlock()
		},
	})

	f.rt.Start()
	waitFor(t, "order connection", func() bool {
		return f.rt.Connectivity()[realtime.CategoryOrderChange]
	})

	f.orderDialer.conn(0).deliver(`{"type":"OCS_STATUS_CHANGED","ocs_id":"ocs-1","from_status":"ORDERED","to_status":"IN_PROGRESS","patient_name":"Kim"}`)

	waitFor(t, "toast", func() bool { return f.queue.Len() == 1 })

	items := f.queue.Snapshot()
	if items[0].Kind != notify.KindInfo || items[0].RelatedID != "ocs-1" {
		t.Errorf("unexpected toast: %+v", items[0])
	}
	if items[0].Message != "Kim: ORDERED -> IN_PROGRESS" {
		t.Errorf("unexpected fallback message: %q", items[0].Message)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hooked) != 1 || hooked[0] != "ocs-1" {
		t.Errorf("expected hook dispatch for ocs-1, got %v", hooked)
	}
}

func TestRuntime_InferencePushCompletesJob(t *testing.T) {
	f := newFixture(t, &stubGateway{submitResp: &gateway.SubmitResponse{JobID: "j-1"}})
	f.rt.Start()
	waitFor(t, "inference connection", func() bool {
		return f.rt.Connectivity()[realtime.CategoryInference]
	})

	if _, err := f.jobs.Submit(context.Background(), "sepsis-risk", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.inferDialer.conn(0).deliver(`{"type":"AI_INFERENCE_RESULT","job_id":"j-1","status":"COMPLETED","result":{"score":0.9}}`)

	waitFor(t, "job completion", func() bool {
		job, ok := f.jobs.Job("j-1")
		return ok && job.Status == inference.StatusCompleted
	})
}

func TestRuntime_SessionSwitchRebuildsBothConnections(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	f.rt.Start()
	waitFor(t, "both connections", func() bool {
		conn := f.rt.Connectivity()
		return conn[realtime.CategoryOrderChange] && conn[realtime.CategoryInference]
	})

	f.sess.SetToken("tok-2")

	waitFor(t, "redial under new token", func() bool {
		return f.orderDialer.dialCount() == 2 && f.inferDialer.dialCount() == 2
	})
	waitFor(t, "connections restored", func() bool {
		conn := f.rt.Connectivity()
		return conn[realtime.CategoryOrderChange] && conn[realtime.CategoryInference]
	})

	if !strings.Contains(f.orderDialer.lastURL(), "token=tok-2") {
		t.Errorf("order endpoint still carries old token: %s", f.orderDialer.lastURL())
	}
	if !strings.Contains(f.inferDialer.lastURL(), "token=tok-2") {
		t.Errorf("inference endpoint still carries old token: %s", f.inferDialer.lastURL())
	}
}

func TestRuntime_StopTearsEverythingDown(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	f.rt.Start()
	waitFor(t, "both connections", func() bool {
		conn := f.rt.Connectivity()
		return conn[realtime.CategoryOrderChange] && conn[realtime.CategoryInference]
	})

	f.rt.Stop()

	conn := f.rt.Connectivity()
	if conn[realtime.CategoryOrderChange] || conn[realtime.CategoryInference] {
		t.Error("expected both categories disconnected after Stop")
	}
	if f.jobs.Polling() {
		t.Error("expected reconciler stopped after Stop")
	}

	// A token change after Stop must not resurrect the connections.
	f.sess.SetToken("tok-3")
	time.Sleep(20 * time.Millisecond)
	if f.orderDialer.dialCount() != 1 || f.inferDialer.dialCount() != 1 {
		t.Error("stopped runtime must not redial on session change")
	}
}

func TestRuntime_StartTwiceIsNoop(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	f.rt.Start()
	f.rt.Start()

	waitFor(t, "connection", func() bool {
		return f.rt.Connectivity()[realtime.CategoryOrderChange]
	})
	time.Sleep(20 * time.Millisecond)

	if got := f.orderDialer.dialCount(); got != 1 {
		t.Errorf("double Start must not dial twice, got %d", got)
	}
}
