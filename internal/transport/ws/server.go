// Package ws serves the agent control socket: a remote client steers one
// agent by submitting actions into the same queue the decision workers feed.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/protocol"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/actionqueue"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/world"
)

// Submitter accepts actions from any goroutine without blocking.
type Submitter interface {
	SubmitAction(a action.Action) actionqueue.PushResult
}

// World is the part of the world a control session needs.
type World interface {
	ID() string
	TickRateHz() int
	CurrentTick() uint64
	RequestJoin(ctx context.Context, req world.JoinRequest) (agent.Handle, error)
	RequestLeave(ctx context.Context, h agent.Handle) error
	RequestAgent(ctx context.Context, h agent.Handle) (world.AgentView, error)
}

// DefaultMaxPriority keeps remote intents below hazard escape and survival.
const DefaultMaxPriority = action.PriorityEncounter

type Stats struct {
	Sessions uint64 `json:"sessions"`
	Active   int64  `json:"active"`
	Acts     uint64 `json:"acts"`
	Rejected uint64 `json:"rejected"`
	Overflow uint64 `json:"overflow"`
	AcksLost uint64 `json:"acks_lost"`
}

type Server struct {
	world        World
	submit       Submitter
	log          *slog.Logger
	now          func() time.Time
	writeWelcome func(conn *websocket.Conn, v any) error

	MaxPriority uint8

	upgrader websocket.Upgrader

	sessions atomic.Uint64
	active   atomic.Int64
	acts     atomic.Uint64
	rejected atomic.Uint64
	overflow atomic.Uint64
	acksLost atomic.Uint64
}

func NewServer(w World, submit Submitter, logger *slog.Logger) *Server {
	s := &Server{
		world:        w,
		submit:       submit,
		log:          logging.OrDiscard(logger),
		now:          time.Now,
		writeWelcome: writeJSON,
		MaxPriority:  DefaultMaxPriority,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Stats() Stats {
	return Stats{
		Sessions: s.sessions.Load(),
		Active:   s.active.Load(),
		Acts:     s.acts.Load(),
		Rejected: s.rejected.Load(),
		Overflow: s.overflow.Load(),
		AcksLost: s.acksLost.Load(),
	}
}

type session struct {
	id      string
	agent   agent.Handle
	spawned bool
	out     chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(r.Context(), conn)
		if sess == nil {
			return
		}
		s.sessions.Add(1)
		s.active.Add(1)
		defer s.active.Add(-1)
		log := s.log.With("session", sess.id, "agent", sess.agent)
		log.Info("control session started", "spawned", sess.spawned)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
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
				cancel()
				break
			}
			s.handle(sess, msg, log)
		}

		s.leave(sess, log)
		log.Info("control session ended")
	}
}

// leave removes an agent the session spawned. Attached agents stay.
func (s *Server) leave(sess *session, log *slog.Logger) {
	if !sess.spawned {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.world.RequestLeave(ctx, sess.agent); err != nil {
		log.Warn("leave after disconnect failed", "err", err)
	}
}

func (s *Server) handle(sess *session, msg []byte, log *slog.Logger) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.reject(sess, "", protocol.ErrProtoBadRequest, "malformed json")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.reject(sess, "", protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}
	if err := protocol.ValidateMessage(base.Type, msg); err != nil {
		s.reject(sess, "", protocol.ErrProtoBadRequest, err.Error())
		return
	}

	var (
		a   action.Action
		ref string
	)
	switch base.Type {
	case protocol.TypeAct:
		var act protocol.ActMsg
		if err := json.Unmarshal(msg, &act); err != nil {
			s.reject(sess, "", protocol.ErrProtoBadRequest, err.Error())
			return
		}
		ref = act.Ref
		a, err = act.ToAction(sess.agent, s.MaxPriority, s.now())
		if err != nil {
			s.reject(sess, ref, protocol.CodeFor(err), err.Error())
			return
		}
	case protocol.TypeRelease:
		var rel protocol.ReleaseMsg
		if err := json.Unmarshal(msg, &rel); err != nil {
			s.reject(sess, "", protocol.ErrProtoBadRequest, err.Error())
			return
		}
		ref = rel.Ref
		a = rel.ToAction(sess.agent)
	default:
		s.reject(sess, "", protocol.ErrProtoBadRequest, "unexpected "+base.Type)
		return
	}

	s.acts.Add(1)
	res := s.submit.SubmitAction(a)
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ref,
		ActionID:        res.ID,
		Accepted:        res.Accepted,
		Evicted:         res.Evicted != nil,
		ServerTick:      s.world.CurrentTick(),
	}
	if !res.Accepted {
		s.overflow.Add(1)
		ack.Code = protocol.ErrQueueOverflow
		ack.Message = "queue full of higher-priority actions"
		logging.Trace(log, "remote action dropped", "ref", ref, "priority", a.Priority)
	}
	s.send(sess, ack)
}

func (s *Server) reject(sess *session, ref, code, msg string) {
	s.rejected.Add(1)
	s.send(sess, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ref,
		Code:            code,
		Message:         msg,
		ServerTick:      s.world.CurrentTick(),
	})
}

// send never blocks the reader; a client that stops reading loses acks.
func (s *Server) send(sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case sess.out <- b:
	default:
		s.acksLost.Add(1)
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return nil
	}
	if err := protocol.ValidateMessage(protocol.TypeHello, msg); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 1024 {
		maxQ = 1024
	}
	sess := &session{id: uuid.NewString(), out: make(chan []byte, maxQ)}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if !hello.Agent.IsNil() {
		if _, err := s.world.RequestAgent(reqCtx, hello.Agent); err != nil {
			code := websocket.CloseTryAgainLater
			if errors.Is(err, world.ErrUnknownAgent) {
				code = websocket.ClosePolicyViolation
			}
			closeWith(conn, code, protocol.ErrStale)
			return nil
		}
		sess.agent = hello.Agent
	} else {
		if hello.Name == "" {
			hello.Name = "remote"
		}
		h, err := s.world.RequestJoin(reqCtx, world.JoinRequest{Name: hello.Name, Role: hello.Role, Team: hello.Team, Squad: -1})
		if err != nil {
			closeWith(conn, websocket.CloseTryAgainLater, protocol.ErrWorldBusy)
			return nil
		}
		sess.agent = h
		sess.spawned = true
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Agent:           sess.agent,
		Spawned:         sess.spawned,
		WorldID:         s.world.ID(),
		TickRateHz:      s.world.TickRateHz(),
		Tick:            s.world.CurrentTick(),
		MaxPriority:     s.MaxPriority,
	}
	if err := s.writeWelcome(conn, welcome); err != nil {
		s.leave(sess, s.log.With("session", sess.id, "agent", sess.agent))
		return nil
	}
	return sess
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
