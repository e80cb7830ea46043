package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/godocompany/meetsession-api/signaling"
	"github.com/godocompany/meetsession-api/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Default time allowed to read the next pong message from the peer
	defaultPongWait = 60 * time.Second

	// Maximum frame size accepted from a participant
	maxFrameSize = 128 * 1024

	// Outbound frames buffered per connection
	sendBufferSize = 256
)

// WebSocketsService binds the signaling hub to plain websocket connections
// carrying JSON frames. Liveness is checked with ping/pong, so a killed tab
// is noticed within PongWait.
type WebSocketsService struct {
	Hub            *signaling.Hub
	AllowedOrigins []string
	PongWait       time.Duration
	upgrader       websocket.Upgrader
	once           sync.Once
}

func (s *WebSocketsService) setup() {
	s.once.Do(func() {
		if s.PongWait <= 0 {
			s.PongWait = defaultPongWait
		}
		s.upgrader = websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     CheckOrigin(s.AllowedOrigins),
		}
	})
}

// ServeHTTP upgrades the request and runs the connection until it closes
func (s *WebSocketsService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.setup()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}
	logrus.WithFields(logrus.Fields{
		"conn_id": conn.id,
		"ip":      utils.GetIpAddress(r.Header, ws.RemoteAddr()),
	}).Info("websocket client connected")

	s.Hub.Connect(conn)
	go s.writePump(conn)
	s.readPump(conn)
}

// readPump feeds frames from the connection into the hub. It runs on the
// request goroutine and leaves the hub when the connection dies.
func (s *WebSocketsService) readPump(c *wsConn) {
	log := logrus.WithField("conn_id", c.id)
	defer func() {
		s.Hub.Leave(c)
		c.close()
		c.ws.Close()
		log.Info("websocket client disconnected")
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ev, err := signaling.ParseEvent(data)
		if err != nil {
			log.WithError(err).Debug("frame dropped")
			continue
		}
		s.Hub.Dispatch(c, ev)
	}
}

// writePump drains the send queue and pings the peer
func (s *WebSocketsService) writePump(c *wsConn) {
	ticker := time.NewTicker((s.PongWait * 9) / 10)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsConn is one websocket participant as seen by the hub
type wsConn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func (c *wsConn) ID() string { return c.id }

// Emit queues an event for the write pump. A full queue drops the event.
func (c *wsConn) Emit(event string, args ...interface{}) {
	data, err := signaling.EncodeFrame(event, args...)
	if err != nil {
		logrus.WithField("conn_id", c.id).WithError(err).Warn("failed to encode frame")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		logrus.WithFields(logrus.Fields{
			"conn_id": c.id,
			"event":   event,
		}).Warn("send queue full, frame dropped")
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// CheckOrigin allows requests without an Origin header and those from an
// allowed origin. An empty allow-list allows everything.
func CheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowedOrigins) == 0 {
			return true
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}
