// Package wstest provides a mock Bitfinex WebSocket server for tests. It
// speaks just enough of the v2 protocol to exercise the stream client:
// subscribe acks with incrementing channel ids, pong replies, and arbitrary
// pushed frames.
package wstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/websocket"
)

// Server is a mock exchange endpoint backed by httptest.
type Server struct {
	// URL is the ws:// address clients should dial.
	URL string

	httpServer *httptest.Server
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
	nextChan int
	autoAck  bool
	autoPong bool
}

// NewServer starts a mock server that acknowledges subscriptions and answers
// pings.
func NewServer() *Server {
	s := &Server{
		nextChan: 1,
		autoAck:  true,
		autoPong: true,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + s.httpServer.URL[len("http"):]
	return s
}

// SetAutoAck toggles automatic subscribed/unsubscribed acknowledgments.
func (s *Server) SetAutoAck(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoAck = on
}

// SetAutoPong toggles automatic pong replies.
func (s *Server) SetAutoPong(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPong = on
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	// greet like the real endpoint
	conn.WriteJSON(map[string]interface{}{
		"event":    "info",
		"version":  2,
		"platform": map[string]int{"status": 1},
	})

	go s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		autoAck, autoPong := s.autoAck, s.autoPong
		s.mu.Unlock()

		var req map[string]interface{}
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		switch req["event"] {
		case "subscribe":
			if !autoAck {
				continue
			}
			s.mu.Lock()
			chanID := s.nextChan
			s.nextChan++
			s.mu.Unlock()
			conn.WriteJSON(map[string]interface{}{
				"event":   "subscribed",
				"channel": req["channel"],
				"chanId":  chanID,
				"symbol":  req["symbol"],
			})
		case "unsubscribe":
			if !autoAck {
				continue
			}
			conn.WriteJSON(map[string]interface{}{
				"event":  "unsubscribed",
				"status": "OK",
				"chanId": req["chanId"],
			})
		case "ping":
			if !autoPong {
				continue
			}
			conn.WriteJSON(map[string]interface{}{
				"event": "pong",
				"cid":   req["cid"],
			})
		}
	}
}

// Push writes a raw frame to every connected client.
func (s *Server) Push(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// Received returns a copy of all frames received from clients.
func (s *Server) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

// DropClients severs all client connections without close frames,
// simulating an abnormal closure.
func (s *Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// Close shuts the server down.
func (s *Server) Close() {
	s.DropClients()
	s.httpServer.Close()
}
