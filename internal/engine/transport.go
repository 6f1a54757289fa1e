package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 10 * time.Second

// TransportHandlers are the callbacks a Transport fires from its read side.
// OnClose fires at most once per Connect, for both remote closes and local
// read errors.
type TransportHandlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(err error)
}

// Transport is one dial attempt's worth of connection. Connect may be called
// again after OnClose to establish a fresh connection.
type Transport interface {
	Connect(h TransportHandlers) error
	Send(v any) error
	Close() error
}

// WebsocketTransport speaks the table protocol over a single websocket. All
// frames are JSON text messages.
type WebsocketTransport struct {
	url string
	log zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebsocketTransport(url string, log zerolog.Logger) *WebsocketTransport {
	return &WebsocketTransport{url: url, log: log}
}

func (t *WebsocketTransport) Connect(h TransportHandlers) error {
	conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	t.mu.Unlock()

	if h.OnOpen != nil {
		h.OnOpen()
	}
	go t.readLoop(conn, h)
	return nil
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn, h TransportHandlers) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Debug().Err(err).Msg("websocket read ended")
			}
			if h.OnClose != nil {
				h.OnClose(err)
			}
			return
		}
		if h.OnMessage != nil {
			h.OnMessage(data)
		}
	}
}

func (t *WebsocketTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("websocket not connected")
	}

	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}
