// Package dashscopetest runs an in-process DashScope websocket endpoint for
// tests.
package dashscopetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"ai_voice/dashscope"
)

// Server accepts websocket connections and hands each to the handler.
type Server struct {
	*httptest.Server
	URL string

	mu   sync.Mutex
	auth []string
}

// NewServer starts a server; it is closed when the test ends.
func NewServer(t testing.TB, handle func(s *Session)) *Server {
	t.Helper()
	srv := &Server{}
	upgrader := websocket.Upgrader{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.mu.Lock()
		srv.auth = append(srv.auth, r.Header.Get("Authorization"))
		srv.mu.Unlock()
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handle(&Session{ws: ws})
	}))
	srv.URL = "ws" + strings.TrimPrefix(srv.Server.URL, "http")
	t.Cleanup(srv.Close)
	return srv
}

// Auth returns the Authorization headers seen so far.
func (s *Server) Auth() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...)
}

// Session is the server side of one connection.
type Session struct {
	ws *websocket.Conn
}

// ReadFrame reads the next JSON frame, collecting any binary messages that
// arrive before it.
func (s *Session) ReadFrame() (dashscope.Frame, [][]byte, error) {
	var audio [][]byte
	for {
		typ, msg, err := s.ws.ReadMessage()
		if err != nil {
			return dashscope.Frame{}, audio, err
		}
		if typ == websocket.BinaryMessage {
			audio = append(audio, msg)
			continue
		}
		var f dashscope.Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			return dashscope.Frame{}, audio, err
		}
		return f, audio, nil
	}
}

// Send emits an event frame with an optional output payload.
func (s *Session) Send(event, taskID string, output any) error {
	var raw json.RawMessage
	if output != nil {
		b, err := json.Marshal(output)
		if err != nil {
			return err
		}
		raw = b
	}
	return s.ws.WriteJSON(dashscope.Frame{
		Header:  dashscope.Header{TaskID: taskID, Event: event},
		Payload: dashscope.Payload{Output: raw},
	})
}

func (s *Session) Fail(taskID, code, message string) error {
	return s.ws.WriteJSON(dashscope.Frame{
		Header: dashscope.Header{TaskID: taskID, Event: dashscope.EventFailed, ErrorCode: code, ErrorMessage: message},
	})
}

func (s *Session) SendAudio(chunk []byte) error {
	return s.ws.WriteMessage(websocket.BinaryMessage, chunk)
}
