package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/protocol"
	"tileforge.dev/internal/tilemap"
)

type Config struct {
	// Token, when set, must be presented in HELLO.auth.token.
	Token           string
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	SendQueue       int
	// ActionTimeout bounds how long a request waits for the session.
	ActionTimeout time.Duration
}

type Server struct {
	session *editor.Session
	log     *log.Logger
	cfg     Config

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

func NewServer(s *editor.Session, cfg Config, logger *log.Logger) *Server {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1 << 20
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 64
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	return &Server{
		session: s,
		log:     logger,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Clients reports the number of connected clients.
func (s *Server) Clients() int { return int(s.clients.Load()) }

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(s.cfg.MaxMessageBytes)

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.clients.Add(1)
		defer s.clients.Add(-1)
		s.logf("client connected session=%s remote=%s", sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		ctx = editor.WithSource(ctx, "ws:"+sessionID)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			res := s.handle(ctx, msg)
			b, err := json.Marshal(res)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		s.logf("client disconnected session=%s", sessionID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	if s.cfg.Token != "" {
		token := ""
		if hello.Auth != nil {
			token = strings.TrimSpace(hello.Auth.Token)
		}
		if token != s.cfg.Token {
			closeWith(conn, protocol.ErrUnauthorized)
			return "", nil
		}
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 || maxQ > s.cfg.SendQueue {
		maxQ = s.cfg.SendQueue
	}
	out = make(chan []byte, maxQ)

	sessionID = uuid.NewString()
	if err := writeJSON(conn, s.welcome(sessionID), s.cfg.WriteTimeout); err != nil {
		return "", nil
	}
	return sessionID, out
}

func (s *Server) welcome(sessionID string) protocol.WelcomeMsg {
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Actions:         []protocol.ActionRef{},
		Documents:       []protocol.DocRef{},
	}
	for _, a := range s.session.Registry().List() {
		w.Actions = append(w.Actions, protocol.ActionRef{ID: a.ID, Text: a.Text, Shortcut: a.Shortcut, Disabled: a.Disabled})
	}
	for _, d := range s.session.Documents() {
		w.Documents = append(w.Documents, protocol.DocRef{
			ID: d.ID, Path: d.Path, Width: d.Size.W, Height: d.Size.H,
			Infinite: d.Infinite, Revision: d.Revision, Dirty: d.Dirty,
		})
	}
	if d, ok := s.session.Active(); ok {
		w.Active = d.ID
	}
	return w
}

func (s *Server) handle(ctx context.Context, msg []byte) protocol.ResultMsg {
	res := protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version}
	fail := func(code, message string) protocol.ResultMsg {
		res.Code, res.Message = code, message
		return res
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fail(protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.ProtocolVersion != protocol.Version {
		return fail(protocol.ErrProtoBadRequest, "bad protocol_version")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	switch base.Type {
	case protocol.TypeAction:
		var m protocol.ActionMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return fail(protocol.ErrProtoBadRequest, "bad ACTION")
		}
		res.ID, res.DocID, res.Action = m.ID, m.DocID, m.Action
		if m.Action == "" {
			return fail(protocol.ErrBadRequest, "missing action")
		}
		var sel *tilemap.Rect
		if m.Selection != nil {
			if m.Selection.W < 0 || m.Selection.H < 0 {
				return fail(protocol.ErrBadRequest, "negative selection size")
			}
			r := tilemap.R(m.Selection.X, m.Selection.Y, m.Selection.W, m.Selection.H)
			sel = &r
		}
		ar, err := s.session.RunOn(ctx, m.DocID, m.Action, sel)
		return s.fill(res, ar, err)

	case protocol.TypeUndo, protocol.TypeRedo:
		var m protocol.DocMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return fail(protocol.ErrProtoBadRequest, "bad "+base.Type)
		}
		res.ID, res.DocID = m.ID, m.DocID
		run := s.session.Undo
		if base.Type == protocol.TypeRedo {
			run = s.session.Redo
		}
		ar, err := run(ctx, m.DocID)
		return s.fill(res, ar, err)

	case protocol.TypeSave:
		var m protocol.DocMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return fail(protocol.ErrProtoBadRequest, "bad SAVE")
		}
		res.ID, res.DocID = m.ID, m.DocID
		path, err := s.session.Save(ctx, m.DocID)
		if err != nil {
			return fail(codeFor(err), err.Error())
		}
		res.Applied, res.Message = true, path
		if d, ok := s.lookup(m.DocID); ok {
			res.Width, res.Height = d.Map.Width, d.Map.Height
		}
		return res

	default:
		return fail(protocol.ErrProtoBadRequest, "unknown type "+base.Type)
	}
}

func (s *Server) lookup(docID string) (*editor.Document, bool) {
	if docID == "" {
		return s.session.Active()
	}
	return s.session.Document(docID)
}

func (s *Server) fill(res protocol.ResultMsg, ar actions.Result, err error) protocol.ResultMsg {
	if err != nil {
		code := codeFor(err)
		if code == protocol.ErrInternal {
			s.logf("request id=%s action=%s: %v", res.ID, res.Action, err)
		}
		res.Code, res.Message = code, err.Error()
		return res
	}
	res.Action = ar.Action
	res.Applied = ar.Applied
	res.Width, res.Height = ar.After.W, ar.After.H
	if !ar.Applied {
		// No-ops report the document's current size.
		if d, ok := s.lookup(res.DocID); ok {
			res.Width, res.Height = d.Map.Width, d.Map.Height
		}
	}
	if ar.Span != nil {
		res.Span = &protocol.Span{Start: ar.Span.Start, Extent: ar.Span.Extent}
	}
	res.Message = ar.Message
	return res
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, actions.ErrUnknownAction):
		return protocol.ErrUnknownAction
	case errors.Is(err, actions.ErrDisabled):
		return protocol.ErrActionDisabled
	case errors.Is(err, editor.ErrDocNotFound):
		return protocol.ErrDocNotFound
	case errors.Is(err, editor.ErrNoActiveDocument):
		return protocol.ErrNoActiveDoc
	case errors.Is(err, editor.ErrNoPath):
		return protocol.ErrNoPath
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrBusy
	default:
		return protocol.ErrInternal
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any, timeout time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
