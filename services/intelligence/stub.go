package ai

import (
	"context"
	"sync"
	"time"

	"unmute/models"
)

// StubReply is one scripted gateway outcome.
type StubReply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// StubGateway replays scripted replies in order and records every history it
// was sent. Once the script is exhausted it answers with Fallback.
type StubGateway struct {
	mu       sync.Mutex
	script   []StubReply
	calls    [][]models.Turn
	Fallback string
}

func NewStubGateway(replies ...StubReply) *StubGateway {
	return &StubGateway{script: replies, Fallback: "I'm here for you."}
}

func (s *StubGateway) Send(ctx context.Context, history []models.Turn) (string, error) {
	s.mu.Lock()
	cp := make([]models.Turn, len(history))
	copy(cp, history)
	s.calls = append(s.calls, cp)
	reply := StubReply{Text: s.Fallback}
	if len(s.script) > 0 {
		reply, s.script = s.script[0], s.script[1:]
	}
	s.mu.Unlock()

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-ctx.Done():
			return "", &GatewayError{Reason: ReasonNetworkUnavailable, Err: ctx.Err()}
		}
	}
	if reply.Err != nil {
		return "", reply.Err
	}
	return reply.Text, nil
}

// Calls returns the histories received so far.
func (s *StubGateway) Calls() [][]models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]models.Turn, len(s.calls))
	copy(out, s.calls)
	return out
}
