// Package observer serves loopback-only diagnostics: the bootstrap and
// intent endpoints, and a websocket stream of tick reports.
package observer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/observerproto"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
)

// Source is what the observer reads. QueryActiveIntent must be safe from any
// goroutine.
type Source interface {
	ID() string
	TickRateHz() int
	CurrentTick() uint64
	QueryActiveIntent(h agent.Handle) (arbiter.Intent, bool)
}

type Stats struct {
	Subscribers int    `json:"subscribers"`
	Sent        uint64 `json:"sent"`
	Missed      uint64 `json:"missed"`
}

type Server struct {
	src Source
	log *slog.Logger

	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]*subscriber

	sent   atomic.Uint64
	missed atomic.Uint64
}

type subscriber struct {
	id     string
	out    chan []byte
	every  int
	watch  []agent.Handle
	missed int
}

func NewServer(src Source, logger *slog.Logger) *Server {
	return &Server{
		src:  src,
		log:  logging.OrDiscard(logger),
		subs: map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()
	return Stats{Subscribers: n, Sent: s.sent.Load(), Missed: s.missed.Load()}
}

// WriteReport fans rep out to every subscriber due this tick. It runs on the
// tick goroutine and never blocks: a full client buffer counts as a miss.
func (s *Server) WriteReport(rep applier.TickReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	worldID := s.src.ID()
	for _, sub := range s.subs {
		if sub.every > 1 && rep.Tick%uint64(sub.every) != 0 {
			continue
		}
		msg := observerproto.TickMsg{
			Type:            observerproto.TypeTick,
			ProtocolVersion: observerproto.Version,
			WorldID:         worldID,
			Report:          rep,
			Missed:          sub.missed,
		}
		for _, h := range sub.watch {
			if in, ok := s.src.QueryActiveIntent(h); ok {
				msg.Intents = append(msg.Intents, in)
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		select {
		case sub.out <- b:
			sub.missed = 0
			s.sent.Add(1)
		default:
			sub.missed++
			s.missed.Add(1)
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(rw, observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         s.src.ID(),
			Tick:            s.src.CurrentTick(),
			TickRateHz:      s.src.TickRateHz(),
			Tiers:           action.Tiers(),
		})
	}
}

// IntentHandler serves GET ?agent=A12.3 from the published arbiter view.
func (s *Server) IntentHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h, err := agent.ParseHandle(r.URL.Query().Get("agent"))
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		resp := observerproto.IntentResponse{Agent: h}
		if in, ok := s.src.QueryActiveIntent(h); ok {
			resp.Active = true
			resp.Intent = &in
		}
		writeJSON(rw, resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
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
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		ss := &subscriber{id: uuid.NewString(), out: make(chan []byte, 16)}
		applySubscribe(ss, sub)
		s.mu.Lock()
		s.subs[ss.id] = ss
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, ss.id)
			s.mu.Unlock()
		}()
		s.log.Info("observer subscribed", "session", ss.id, "every", ss.every, "watch", len(ss.watch))

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
				case b := <-ss.out:
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
			if sub, ok := decodeSubscribe(msg); ok {
				s.mu.Lock()
				applySubscribe(ss, sub)
				s.mu.Unlock()
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

func decodeSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func applySubscribe(ss *subscriber, sub observerproto.SubscribeMsg) {
	ss.every = sub.Every
	if ss.every < 1 {
		ss.every = 1
	}
	if ss.every > 1000 {
		ss.every = 1000
	}
	ss.watch = sub.Watch
	if len(ss.watch) > 64 {
		ss.watch = ss.watch[:64]
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

// IsLoopbackRemote reports whether a request's RemoteAddr is a loopback address.
func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
