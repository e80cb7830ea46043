package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/godocompany/meetsession-api/signaling"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrSignalingClosed is returned when emitting on a closed connection
var ErrSignalingClosed = errors.New("signaling connection closed")

const signalingWriteWait = 10 * time.Second

// Signaler is the session's connection to the signaling hub
type Signaler interface {
	Emit(event string, args ...interface{}) error
	Close() error
}

// FrameHandler receives every frame from the hub, in order
type FrameHandler func(frame *signaling.Frame)

// SignalingClient is a Signaler over the hub's JSON websocket transport
type SignalingClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
	log    *logrus.Entry
}

// DialSignaling connects to the hub and starts delivering frames to handler.
// onLost is called once if the connection drops without Close being called.
func DialSignaling(ctx context.Context, url string, handler FrameHandler, onLost func(error)) (*SignalingClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &SignalingClient{
		conn: conn,
		log:  logrus.WithField("component", "signaling_client"),
	}
	go c.readLoop(handler, onLost)
	return c, nil
}

// Emit sends one event to the hub
func (c *SignalingClient) Emit(event string, args ...interface{}) error {
	data, err := signaling.EncodeFrame(event, args...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSignalingClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(signalingWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close disconnects from the hub. Safe to call more than once.
func (c *SignalingClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	_ = c.conn.SetWriteDeadline(time.Now().Add(signalingWriteWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (c *SignalingClient) readLoop(handler FrameHandler, onLost func(error)) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.closed = true
			c.mu.Unlock()

			if !closed {
				c.conn.Close()
				if onLost != nil {
					onLost(err)
				}
			}
			return
		}

		frame, err := signaling.DecodeFrame(data)
		if err != nil {
			c.log.WithError(err).Debug("frame dropped")
			continue
		}
		handler(frame)
	}
}
