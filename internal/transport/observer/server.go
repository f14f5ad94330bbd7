package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/observerproto"
	"tileforge.dev/internal/protocol"
)

// Server streams journal entries to read-only observers. It is a journal
// sink: the session hands it every entry and it fans them out without
// blocking; slow observers lose entries.
type Server struct {
	session *editor.Session
	log     *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber

	dropTotal atomic.Uint64
}

type subscriber struct {
	mu     sync.Mutex
	filter observerproto.SubscribeMsg
	out    chan []byte
}

func (s *subscriber) wants(e editor.JournalEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Kind == editor.EntrySave && !s.filter.IncludeSaves {
		return false
	}
	return s.filter.Doc == "" || s.filter.Doc == e.Doc
}

func (s *subscriber) setFilter(f observerproto.SubscribeMsg) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

func NewServer(sess *editor.Session, logger *log.Logger) *Server {
	return &Server{
		session: sess,
		log:     logger,
		subs:    map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// WriteEntry implements editor.JournalSink.
func (s *Server) WriteEntry(e editor.JournalEntry) error {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	if len(subs) == 0 {
		return nil
	}

	b, err := json.Marshal(observerproto.EntryMsg{
		Type:            observerproto.TypeEntry,
		ProtocolVersion: observerproto.Version,
		Entry:           e,
	})
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropTotal.Add(1)
		}
	}
	return nil
}

// Observers reports the connected observer count.
func (s *Server) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) Dropped() uint64 { return s.dropTotal.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Documents:       []protocol.DocRef{},
		}
		for _, d := range s.session.Documents() {
			resp.Documents = append(resp.Documents, protocol.DocRef{
				ID: d.ID, Path: d.Path, Width: d.Size.W, Height: d.Size.H,
				Infinite: d.Infinite, Revision: d.Revision, Dirty: d.Dirty,
			})
		}
		if d, ok := s.session.Active(); ok {
			resp.Active = d.ID
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		st := &subscriber{filter: sub, out: make(chan []byte, 256)}
		s.mu.Lock()
		s.subs[sid] = st
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()
		if s.log != nil {
			s.log.Printf("observer joined session=%s doc=%q", sid, sub.Doc)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-st.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				st.setFilter(sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	sub.Doc = strings.TrimSpace(sub.Doc)
	return sub, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
