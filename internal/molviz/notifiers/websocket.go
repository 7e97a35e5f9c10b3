package notifiers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
	"github.com/gorilla/websocket"
)

// FrameEncoder turns a frame into the bytes pushed to clients, e.g. a PNG.
type FrameEncoder func(molviz.Frame) ([]byte, error)

type outbound struct {
	messageType int
	data        []byte
}

// WebSocketNotifier is a session's push hub. Scene events go out as JSON text
// messages and are queued; encoded frames go out as binary messages and are
// dropped when a newer frame is already waiting.
type WebSocketNotifier struct {
	id         string
	mu         sync.RWMutex
	clients    map[*websocket.Conn]bool
	upgrader   websocket.Upgrader
	encoder    FrameEncoder
	broadcast  chan outbound
	frames     chan outbound
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewWebSocketNotifier creates a hub. encoder may be nil, in which case
// frames are ignored.
func NewWebSocketNotifier(id string, encoder FrameEncoder) *WebSocketNotifier {
	notifier := &WebSocketNotifier{
		id:         id,
		clients:    make(map[*websocket.Conn]bool),
		encoder:    encoder,
		broadcast:  make(chan outbound, 256),
		frames:     make(chan outbound, 1),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}

	notifier.wg.Add(1)
	go notifier.run()

	return notifier
}

// ID returns the notifier ID
func (wsn *WebSocketNotifier) ID() string {
	return wsn.id
}

// Type returns the notifier type
func (wsn *WebSocketNotifier) Type() string {
	return "websocket"
}

// RegisterClient adds a connection to the broadcast set.
func (wsn *WebSocketNotifier) RegisterClient(conn *websocket.Conn) {
	select {
	case wsn.register <- conn:
	case <-wsn.done:
	}
}

// UnregisterClient removes and closes a connection.
func (wsn *WebSocketNotifier) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsn.unregister <- conn:
	case <-wsn.done:
	}
}

// ClientCount is the number of connected clients.
func (wsn *WebSocketNotifier) ClientCount() int {
	wsn.mu.RLock()
	defer wsn.mu.RUnlock()
	return len(wsn.clients)
}

// Notify queues the event for every connected client.
func (wsn *WebSocketNotifier) Notify(ctx context.Context, event molviz.SceneEvent) error {
	data, err := event.JSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	select {
	case wsn.broadcast <- outbound{messageType: websocket.TextMessage, data: data}:
		return nil
	case <-wsn.done:
		return fmt.Errorf("notifier %s is closed", wsn.id)
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(1 * time.Second):
		return fmt.Errorf("notification queue full")
	}
}

// RenderFrame encodes the frame and offers it to the clients. Nothing is
// encoded while no client is connected.
func (wsn *WebSocketNotifier) RenderFrame(f molviz.Frame) error {
	if wsn.encoder == nil || wsn.ClientCount() == 0 {
		return nil
	}
	data, err := wsn.encoder(f)
	if err != nil {
		return err
	}
	msg := outbound{messageType: websocket.BinaryMessage, data: data}
	select {
	case <-wsn.done:
		return nil
	default:
	}
	select {
	case wsn.frames <- msg:
	default:
		// replace the stale frame
		select {
		case <-wsn.frames:
		default:
		}
		select {
		case wsn.frames <- msg:
		default:
		}
	}
	return nil
}

func (wsn *WebSocketNotifier) run() {
	defer wsn.wg.Done()
	for {
		select {
		case <-wsn.done:
			return

		case conn := <-wsn.register:
			if conn == nil {
				continue
			}
			wsn.mu.Lock()
			wsn.clients[conn] = true
			wsn.mu.Unlock()

		case conn := <-wsn.unregister:
			if conn == nil {
				continue
			}
			wsn.mu.Lock()
			if _, ok := wsn.clients[conn]; ok {
				delete(wsn.clients, conn)
				conn.Close()
			}
			wsn.mu.Unlock()

		case msg := <-wsn.broadcast:
			wsn.write(msg)

		case msg := <-wsn.frames:
			wsn.write(msg)
		}
	}
}

func (wsn *WebSocketNotifier) write(msg outbound) {
	wsn.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(wsn.clients))
	for conn := range wsn.clients {
		conns = append(conns, conn)
	}
	wsn.mu.RUnlock()

	var failed []*websocket.Conn
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(msg.messageType, msg.data); err != nil {
			failed = append(failed, conn)
			conn.Close()
		}
	}

	if len(failed) > 0 {
		wsn.mu.Lock()
		for _, conn := range failed {
			delete(wsn.clients, conn)
		}
		wsn.mu.Unlock()
	}
}

// Close disconnects every client and stops the hub. It is safe to call
// more than once.
func (wsn *WebSocketNotifier) Close() error {
	wsn.closeOnce.Do(func() {
		close(wsn.done)
		wsn.wg.Wait()

		wsn.mu.Lock()
		for conn := range wsn.clients {
			conn.Close()
			delete(wsn.clients, conn)
		}
		wsn.mu.Unlock()
	})
	return nil
}

// GetUpgrader returns the WebSocket upgrader for HTTP handlers
func (wsn *WebSocketNotifier) GetUpgrader() websocket.Upgrader {
	return wsn.upgrader
}
