package world

import (
	"context"
	"fmt"

	"botcraft.ai/internal/sim/agent"
)

// RequestJoin spawns an agent at the next tick and returns its handle.
func (w *World) RequestJoin(ctx context.Context, req JoinRequest) (agent.Handle, error) {
	req.Resp = make(chan JoinResponse, 1)
	select {
	case w.join <- req:
	case <-ctx.Done():
		return agent.Nil, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp.Agent, nil
	case <-ctx.Done():
		return agent.Nil, ctx.Err()
	}
}

// RequestLeave removes an agent at the next tick.
func (w *World) RequestLeave(ctx context.Context, h agent.Handle) error {
	select {
	case w.leave <- h:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestAgent returns a copy of an agent's state.
func (w *World) RequestAgent(ctx context.Context, h agent.Handle) (AgentView, error) {
	req := inspectReq{Agent: h, Resp: make(chan inspectResp, 1)}
	select {
	case w.inspect <- req:
	case <-ctx.Done():
		return AgentView{}, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		if !resp.OK {
			return AgentView{}, fmt.Errorf("%w: %s", ErrUnknownAgent, h)
		}
		return resp.View, nil
	case <-ctx.Done():
		return AgentView{}, ctx.Err()
	}
}
