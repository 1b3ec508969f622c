package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xhad/crossrag/pkg/query"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one websocket frame in either direction. Clients send
// {"type":"query","data":{...request...}}; the server answers with any
// number of "event" frames followed by a "result" or an "error".
type Message struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const (
	MessageQuery  = "query"
	MessageEvent  = "event"
	MessageResult = "result"
	MessageError  = "error"
)

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msgType, content string, data interface{}) error {
	msg := Message{Type: msgType, Content: content}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	c := &wsConn{conn: conn}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.log.WithError(err).Debug("websocket read ended")
			}
			return
		}

		if msg.Type != MessageQuery {
			c.send(MessageError, "unsupported message type "+msg.Type, nil)
			continue
		}
		// Queries on one connection run one at a time so results arrive in
		// the order they were asked.
		s.handleMessage(r.Context(), c, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *wsConn, msg Message) {
	var req query.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.send(MessageError, "invalid query payload", nil)
		return
	}
	if !s.limiter.Allow() {
		c.send(MessageError, "rate limit exceeded, try again shortly", nil)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	resp, err := s.querier.Run(ctx, req, func(e query.Event) {
		if err := c.send(MessageEvent, e.Message, e); err != nil {
			s.log.WithError(err).Debug("dropping progress event")
		}
	})
	if err != nil {
		c.send(MessageError, err.Error(), nil)
		return
	}
	if err := c.send(MessageResult, "", resp); err != nil {
		s.log.WithError(err).Warn("failed to send result")
	}
}
