package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"botcraft.ai/internal/protocol"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
	"botcraft.ai/internal/sim/snapshot"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "agent name")
		role     = flag.String("role", string(snapshot.RoleDPS), "role for a spawned agent")
		attach   = flag.String("agent", "", "attach to an existing agent handle instead of spawning")
		every    = flag.Duration("every", 2*time.Second, "interval between patrol moves")
		radius   = flag.Float64("radius", 24, "patrol radius around the origin")
		priority = flag.Uint("priority", 2, "priority for patrol moves")
		ttl      = flag.Duration("ttl", 5*time.Second, "lifetime of each move before it expires")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "waypoint rng seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Role:            snapshot.Role(*role),
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if *attach != "" {
		h, err := agent.ParseHandle(*attach)
		if err != nil {
			logger.Fatalf("bad -agent: %v", err)
		}
		hello.Agent = h
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		logger.Fatalf("expected WELCOME, got %q", welcome.Type)
	}
	logger.Printf("WELCOME agent=%s spawned=%v world=%s tick_rate=%d max_priority=%d",
		welcome.Agent, welcome.Spawned, welcome.WorldID, welcome.TickRateHz, welcome.MaxPriority)

	acks := make(chan protocol.AckMsg, 16)
	go readLoop(conn, logger, acks)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	p := patrol{
		rng:      rand.New(rand.NewPCG(*seed, 0x9e3779b97f4a7c15)),
		radius:   *radius,
		priority: uint8(min(*priority, uint(welcome.MaxPriority))),
		ttl:      *ttl,
	}
	tick := time.NewTicker(*every)
	defer tick.Stop()

	var sent, rejected int
	for {
		select {
		case <-stop:
			_ = conn.WriteJSON(protocol.ReleaseMsg{
				Type:            protocol.TypeRelease,
				ProtocolVersion: protocol.Version,
				Ref:             "bye",
				Source:          patrolSource,
			})
			logger.Printf("stop sent=%d rejected=%d", sent, rejected)
			return
		case ack, ok := <-acks:
			if !ok {
				logger.Printf("connection closed sent=%d rejected=%d", sent, rejected)
				return
			}
			if !ack.Accepted {
				rejected++
				logger.Printf("ACK %s rejected code=%s msg=%s", ack.AckFor, ack.Code, ack.Message)
			} else if ack.Evicted {
				logger.Printf("ACK %s accepted id=%d (evicted an older action)", ack.AckFor, ack.ActionID)
			}
		case <-tick.C:
			sent++
			msg := p.next(strconv.Itoa(sent))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Printf("send ACT: %v", err)
				return
			}
		}
	}
}

const patrolSource = "patrol"

type patrol struct {
	rng      *rand.Rand
	radius   float64
	priority uint8
	ttl      time.Duration
}

// next picks a uniformly distributed waypoint inside the patrol disc.
func (p *patrol) next(ref string) protocol.ActMsg {
	theta := p.rng.Float64() * 2 * math.Pi
	r := p.radius * math.Sqrt(p.rng.Float64())
	dst := geom.Vec3{X: r * math.Cos(theta), Z: r * math.Sin(theta)}
	return protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		Kind:            "MOVE",
		Priority:        p.priority,
		Source:          patrolSource,
		TTLMs:           int(p.ttl / time.Millisecond),
		MoveKind:        "POINT",
		Destination:     &dst,
	}
}

func readLoop(conn *websocket.Conn, logger *log.Logger, acks chan<- protocol.AckMsg) {
	defer close(acks)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.Type != protocol.TypeAck {
			logger.Printf("ignoring %s", base.Type)
			continue
		}
		var ack protocol.AckMsg
		if err := json.Unmarshal(msg, &ack); err != nil {
			continue
		}
		acks <- ack
	}
}
