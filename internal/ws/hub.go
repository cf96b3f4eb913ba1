package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roughmark/roughmark/internal/api"
	"github.com/roughmark/roughmark/internal/dispatch"
	"github.com/roughmark/roughmark/internal/status"
	"github.com/roughmark/roughmark/pkg/types"
)

// Event names.
const (
	EventIdle     = "idle"
	EventStarted  = "started"
	EventPhase    = "phase"
	EventProgress = "progress"
	EventFinished = "finished"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	queueDepth   = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON frame sent to clients.
type Message struct {
	Event string           `json:"event"`
	Data  *api.RunResponse `json:"data,omitempty"`
}

// Hub is a dispatch.Observer that records every event in a status.Store and
// pushes the resulting run state to WebSocket subscribers.
//
// Start, phase and finish events are pushed as they happen. Collected results
// are coalesced: at most one progress frame per flush interval, sent by Run.
type Hub struct {
	store *status.Store
	flush time.Duration

	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	pending bool // results collected since the last progress frame
}

var _ dispatch.Observer = (*Hub)(nil)

// New creates a Hub recording into st. flush bounds how often progress
// frames are sent while results stream in.
func New(st *status.Store, flush time.Duration) *Hub {
	return &Hub{
		store: st,
		flush: flush,
		subs:  make(map[*subscriber]struct{}),
	}
}

// RunStarted implements dispatch.Observer.
func (h *Hub) RunStarted(runID string, workers, items int) {
	h.store.RunStarted(runID, workers, items)
	h.publish(EventStarted)
}

// PhaseChanged implements dispatch.Observer.
func (h *Hub) PhaseChanged(runID string, phase dispatch.Phase) {
	h.store.PhaseChanged(runID, phase)
	h.publish(EventPhase)
}

// Dispatched implements dispatch.Observer. Assignments are not pushed.
func (h *Hub) Dispatched(runID string, worker, id int) {
	h.store.Dispatched(runID, worker, id)
}

// Collected implements dispatch.Observer.
func (h *Hub) Collected(runID string, worker int, res types.Result) {
	h.store.Collected(runID, worker, res)
	h.mu.Lock()
	h.pending = true
	h.mu.Unlock()
}

// RunFinished implements dispatch.Observer.
func (h *Hub) RunFinished(runID string, byID, byBand []types.Result, err error) {
	h.store.RunFinished(runID, byID, byBand, err)
	h.publish(EventFinished)
}

// Run flushes coalesced progress every flush interval and pings subscribers
// every pingPeriod. On cancellation it disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	flush := time.NewTicker(h.flush)
	defer flush.Stop()
	keepalive := time.NewTicker(pingPeriod)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			return
		case <-flush.C:
			h.mu.Lock()
			due := h.pending
			h.mu.Unlock()
			if due {
				h.publish(EventProgress)
			}
		case <-keepalive.C:
			h.fanOut(frame{kind: websocket.PingMessage})
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request, sends the current run state, then streams
// frames until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := &subscriber{conn: conn, queue: make(chan frame, queueDepth)}
	if data, err := h.current(); err == nil {
		s.queue <- frame{kind: websocket.TextMessage, data: data}
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go s.write()
	s.read()
	h.drop(s)
}

// --- internal ---------------------------------------------------------------

// frame is one queued WebSocket write.
type frame struct {
	kind int
	data []byte
}

type subscriber struct {
	conn  *websocket.Conn
	queue chan frame
}

// current renders the latest run, or idle when there is none.
func (h *Hub) current() ([]byte, error) {
	run, ok := api.Progress(h.store)
	if !ok {
		return json.Marshal(Message{Event: EventIdle})
	}
	event := EventProgress
	if run.FinishedAt != "" {
		event = EventFinished
	}
	return json.Marshal(Message{Event: event, Data: &run})
}

// publish sends the latest run under event and clears pending progress.
func (h *Hub) publish(event string) {
	h.mu.Lock()
	h.pending = false
	h.mu.Unlock()

	run, ok := api.Progress(h.store)
	if !ok {
		return
	}
	data, err := json.Marshal(Message{Event: event, Data: &run})
	if err != nil {
		slog.Warn("ws: encode frame", "event", event, "err", err)
		return
	}
	h.fanOut(frame{kind: websocket.TextMessage, data: data})
}

// fanOut queues f for every subscriber without blocking. A subscriber whose
// queue is full is disconnected.
func (h *Hub) fanOut(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.queue <- f:
		default:
			slog.Debug("ws: dropping slow subscriber")
			delete(h.subs, s)
			close(s.queue)
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.queue)
	}
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.queue)
	}
}

// write is the only writer on the connection. A closed queue ends the
// session with a close frame.
func (s *subscriber) write() {
	defer s.conn.Close()
	for f := range s.queue {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(f.kind, f.data); err != nil {
			return
		}
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint:errcheck
}

// read discards client frames and returns once the peer is gone or stops
// answering pings.
func (s *subscriber) read() {
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}
