// Package wtserver is an in-process WebTiles server stub used by tests. It
// speaks the framing real servers use: one raw-deflate stream per client,
// sync-flushed after every message with the flush marker stripped from the
// frame.
package wtserver

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Handler scripts the server side of a test: it is called once per inbound
// client message and replies through the session.
type Handler func(s *Session, msg map[string]any)

type Server struct {
	ts      *httptest.Server
	handler Handler
}

func New(handler Handler) *Server {
	s := &Server{handler: handler}
	r := chi.NewRouter()
	r.Get("/socket", s.accept)
	s.ts = httptest.NewServer(r)
	return s
}

// URL returns the websocket endpoint clients dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/socket"
}

func (s *Server) Close() {
	s.ts.Close()
}

// Session is one connected client. Send and SendRaw are safe to call from
// the handler or from the test goroutine.
type Session struct {
	ctx  context.Context
	conn *websocket.Conn

	mu  sync.Mutex
	buf bytes.Buffer
	zw  *flate.Writer
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sess := &Session{ctx: r.Context(), conn: conn}
	sess.zw, _ = flate.NewWriter(&sess.buf, flate.DefaultCompression)

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var msg map[string]any
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if s.handler != nil {
			s.handler(sess, msg)
		}
	}
}

// Send delivers v as one compressed frame. Every frame of a session goes
// through the same deflate stream, exactly like a real server.
func (s *Session) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw compresses and sends an arbitrary payload, JSON or not. Tests
// use it to reproduce the malformed frames old game versions emit.
func (s *Session) SendRaw(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Reset()
	if _, err := s.zw.Write(payload); err != nil {
		return err
	}
	if err := s.zw.Flush(); err != nil {
		return err
	}
	// Drop the sync-flush marker; the client restores it before inflating.
	frame := s.buf.Bytes()
	frame = frame[:len(frame)-4]
	return s.conn.Write(s.ctx, websocket.MessageBinary, frame)
}

// Msg builds a message object; a nil fields map sends a bare type.
func Msg(typ string, fields map[string]any) map[string]any {
	msg := map[string]any{"msg": typ}
	for k, v := range fields {
		msg[k] = v
	}
	return msg
}

// Batch wraps messages in the msgs envelope.
func Batch(msgs ...map[string]any) map[string]any {
	return map[string]any{"msgs": msgs}
}
