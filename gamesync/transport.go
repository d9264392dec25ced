package gamesync

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lefinal/spikematch/errors"
	"go.uber.org/zap"
)

// dialTimeout is the timeout for establishing the websocket connection.
const dialTimeout = 10 * time.Second

// receiveBufferSize is the buffer for incoming messages per connection.
const receiveBufferSize = 64

// Conn is an established connection to the server of record.
type Conn interface {
	// Send sends the given raw message to the server.
	Send(raw []byte) error
	// Receive is the channel for incoming raw messages. It is closed when the
	// connection ends.
	Receive() <-chan []byte
	// Close closes the connection.
	Close() error
}

// Transport establishes connections to the server of record. It exists as an
// interface so that tests can replace the network.
type Transport interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// webSocketTransport is the Transport for production use.
type webSocketTransport struct {
	logger *zap.Logger
}

// NewWebSocketTransport creates a Transport that dials websocket addresses.
func NewWebSocketTransport(logger *zap.Logger) Transport {
	return &webSocketTransport{logger: logger}
}

func (t *webSocketTransport) Dial(ctx context.Context, addr string) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	wsConn, _, err := websocket.DefaultDialer.DialContext(dialCtx, addr, nil)
	if err != nil {
		return nil, errors.NewCommunicationErrorFromErr(err, "dial server",
			errors.Details{"addr": addr})
	}
	conn := &webSocketConn{
		logger:  t.logger,
		conn:    wsConn,
		receive: make(chan []byte, receiveBufferSize),
	}
	go conn.readPump()
	return conn, nil
}

// webSocketConn wraps a gorilla websocket connection.
type webSocketConn struct {
	logger *zap.Logger
	conn   *websocket.Conn
	// writeM serializes writes as required by gorilla/websocket.
	writeM  sync.Mutex
	receive chan []byte
}

// readPump forwards incoming messages to the receive channel until the
// connection ends.
func (c *webSocketConn) readPump() {
	defer close(c.receive)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}
		c.receive <- raw
	}
}

func (c *webSocketConn) Send(raw []byte) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return errors.NewCommunicationErrorFromErr(err, "write message to server", nil)
	}
	return nil
}

func (c *webSocketConn) Receive() <-chan []byte {
	return c.receive
}

func (c *webSocketConn) Close() error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	// Best effort close message. The connection is closed either way.
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
