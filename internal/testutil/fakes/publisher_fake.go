package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/dhima/mysql-connector/internal/audit"
)

// FakePublisher captures audit events and can simulate failures.
type FakePublisher struct {
	mu        sync.Mutex
	Events    []audit.Event
	FailNext  bool
	FailError error
	Closed    bool
}

func (p *FakePublisher) Publish(_ context.Context, e audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailNext {
		p.FailNext = false
		if p.FailError == nil {
			p.FailError = errors.New("publish failed")
		}
		return p.FailError
	}
	p.Events = append(p.Events, e)
	return nil
}

func (p *FakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Types returns the types of the captured events in order.
func (p *FakePublisher) Types() []audit.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audit.EventType, len(p.Events))
	for i, e := range p.Events {
		out[i] = e.Type
	}
	return out
}
