package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roughmark/roughmark/internal/dispatch"
	"github.com/roughmark/roughmark/internal/status"
	"github.com/roughmark/roughmark/internal/ws"
	"github.com/roughmark/roughmark/pkg/types"
)

const testFlush = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// startHub serves hub over httptest and runs its loop until the returned
// cancel is called or the test ends.
func startHub(t *testing.T, st *status.Store) (wsURL string, hub *ws.Hub, cancel func()) {
	t.Helper()

	hub = ws.New(st, testFlush)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m ws.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

// waitSubscribers polls until hub reports n subscribers.
func waitSubscribers(t *testing.T, hub *ws.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Count: got %d, want %d", hub.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ------------------------------------------------------------------

func TestHub_EmptyStore_Idle(t *testing.T) {
	wsURL, _, _ := startHub(t, status.New(time.Minute))
	m := readMessage(t, dial(t, wsURL))
	if m.Event != ws.EventIdle || m.Data != nil {
		t.Errorf("got %+v, want idle without data", m)
	}
}

func TestHub_ConnectMidRun_ReceivesProgress(t *testing.T) {
	st := status.New(time.Minute)
	st.RunStarted("run-1", 2, 4)
	st.PhaseChanged("run-1", dispatch.PhaseReactive)
	st.Collected("run-1", 1, types.NewResult(0, 1))

	wsURL, _, _ := startHub(t, st)
	m := readMessage(t, dial(t, wsURL))

	if m.Event != ws.EventProgress || m.Data == nil {
		t.Fatalf("got %+v, want progress", m)
	}
	if m.Data.RunID != "run-1" || m.Data.Phase != "reactive" || m.Data.Progress != 0.25 {
		t.Errorf("data: %+v", m.Data)
	}
}

func TestHub_PushesRunEvents(t *testing.T) {
	st := status.New(time.Minute)
	wsURL, hub, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // idle
	waitSubscribers(t, hub, 1)

	hub.RunStarted("run-2", 2, 2)
	if m := readMessage(t, conn); m.Event != ws.EventStarted || m.Data.RunID != "run-2" {
		t.Fatalf("after RunStarted: %+v", m)
	}

	hub.PhaseChanged("run-2", dispatch.PhaseFanOut)
	if m := readMessage(t, conn); m.Event != ws.EventPhase || m.Data.Phase != "fan_out" {
		t.Fatalf("after PhaseChanged: %+v", m)
	}

	hub.Dispatched("run-2", 1, 0)
	hub.Dispatched("run-2", 2, 1)
	hub.Collected("run-2", 1, types.NewResult(0, 1))
	hub.Collected("run-2", 2, types.NewResult(1, 2))
	// The flush tick may split the two results across frames.
	var m ws.Message
	for i := 0; i < 2; i++ {
		m = readMessage(t, conn)
		if m.Event != ws.EventProgress {
			t.Fatalf("after Collected: %+v", m)
		}
		if m.Data.Collected == 2 {
			break
		}
	}
	if m.Data.Collected != 2 || m.Data.Dispatched != 2 {
		t.Errorf("progress: %+v, want 2 collected", m.Data)
	}

	hub.RunFinished("run-2", nil, nil, errors.New("boom"))
	m = readMessage(t, conn)
	for m.Event == ws.EventProgress { // a late flush may still be queued
		m = readMessage(t, conn)
	}
	if m.Event != ws.EventFinished || m.Data.Error != "boom" || m.Data.FinishedAt == "" {
		t.Fatalf("after RunFinished: %+v", m)
	}
}

func TestHub_RecordsIntoStore(t *testing.T) {
	st := status.New(time.Minute)
	hub := ws.New(st, testFlush)

	hub.RunStarted("run-3", 1, 1)
	hub.Dispatched("run-3", 1, 0)
	hub.Collected("run-3", 1, types.NewResult(0, 3))
	hub.RunFinished("run-3", []types.Result{{ID: 0, FinalScore: 4}}, nil, nil)

	run, ok := st.Get("run-3")
	if !ok {
		t.Fatal("run not recorded")
	}
	if run.Dispatched != 1 || run.Collected != 1 || !run.Finished() {
		t.Errorf("recorded run: %+v", run)
	}
}

func TestHub_CountAndDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, status.New(time.Minute))

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	waitSubscribers(t, hub, 3)

	conns[0].Close()
	waitSubscribers(t, hub, 2)
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, status.New(time.Minute))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitSubscribers(t, hub, 1)

	cancel()
	waitSubscribers(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("after cancel: err = %v, want normal close", err)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	srv := httptest.NewServer(ws.New(status.New(time.Minute), testFlush))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
