package executorproxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kandev/durabletask/internal/common/logger"
	"go.uber.org/zap"
)

// errFullSendBuffer is returned when the worker's outbound buffer is full,
// which given spec.md §4.7's "only one message may be in flight at a time"
// should never happen in practice since the proxy never pipelines requests
// to an instance still awaiting a reply.
var errFullSendBuffer = errors.New("durabletask: worker send buffer full")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 * 1024 // history replay payloads can be large
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// workerConn wraps one worker's WebSocket connection: a single send channel
// serializes every outbound frame (spec.md §4.7: "the proxy serializes
// outbound writes"), mirroring the teacher's per-client send channel.
type workerConn struct {
	conn   *websocket.Conn
	send   chan []byte
	proxy  *Proxy
	logger *logger.Logger
}

func newWorkerConn(conn *websocket.Conn, proxy *Proxy, log *logger.Logger) *workerConn {
	return &workerConn{
		conn:   conn,
		send:   make(chan []byte, 64),
		proxy:  proxy,
		logger: log,
	}
}

func (wc *workerConn) start() {
	go wc.writePump()
	go wc.readPump()
}

// sendFrame enqueues one frame for the write pump. It never blocks on the
// network itself — the send channel is the serialization point spec.md
// §4.7 requires.
func (wc *workerConn) sendFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case wc.send <- data:
		return nil
	default:
		return errFullSendBuffer
	}
}

func (wc *workerConn) readPump() {
	defer func() {
		wc.proxy.Detach(wc)
		wc.conn.Close()
	}()

	wc.conn.SetReadLimit(maxMessageSize)
	wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	wc.conn.SetPongHandler(func(string) error {
		wc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wc.logger.Warn("worker connection read error", zap.Error(err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			wc.logger.Warn("invalid frame from worker", zap.Error(err))
			continue
		}

		switch f.Kind {
		case frameCompleteOrchestrator:
			if f.OrchestratorCompletion == nil {
				continue
			}
			if err := wc.proxy.resolveOrchestrator(*f.OrchestratorCompletion); err != nil {
				wc.logger.Warn("orchestrator completion for unknown instance",
					zap.String("instance_id", f.OrchestratorCompletion.InstanceID), zap.Error(err))
			}
		case frameCompleteActivity:
			if f.ActivityCompletion == nil {
				continue
			}
			if err := wc.proxy.resolveActivity(*f.ActivityCompletion); err != nil {
				wc.logger.Warn("activity completion for unknown task",
					zap.String("instance_id", f.ActivityCompletion.InstanceID), zap.Error(err))
			}
		default:
			wc.logger.Warn("unexpected frame kind from worker", zap.String("kind", string(f.Kind)))
		}
	}
}

func (wc *workerConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wc.conn.Close()
	}()

	for {
		select {
		case data, ok := <-wc.send:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Upgrade upgrades an HTTP request to the worker WebSocket and attaches it
// to the proxy as the sole connected worker. Callers (the gin route
// handler in internal/durable/api) are expected to surface a failed Attach
// as the resource-exhausted error it returns.
func (p *Proxy) Upgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	wc := newWorkerConn(conn, p, p.logger)
	if err := p.Attach(wc); err != nil {
		conn.Close()
		return err
	}
	return nil
}
