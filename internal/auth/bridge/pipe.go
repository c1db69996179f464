package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrNoHandler is returned when the host wired into a Pipe does not serve the
// requested channel.
var ErrNoHandler = errors.New("bridge: host does not handle this channel")

// ErrEmptyResponse is returned when the host answered a federated sign-in
// request with no payload.
var ErrEmptyResponse = errors.New("bridge: host returned no payload")

const eventBuffer = 16

// Host is the set of handlers an embedding shell wires into a Pipe. Any nil
// handler makes the corresponding channel unavailable.
type Host struct {
	// FederatedToken answers a federated sign-in request. Returning a nil
	// token models a host that swallowed the request.
	FederatedToken func(ctx context.Context, provider string) (*FederatedToken, error)

	// Products, Purchase and Transactions receive fire-and-forget requests.
	// Results, if any, are delivered through Pipe.Emit.
	Products     func(ctx context.Context, offerNames []string) error
	Purchase     func(ctx context.Context, req PurchaseRequest) error
	Transactions func(ctx context.Context) error
}

// Pipe is an in-process Bridge adapter: requests invoke host handlers
// directly and events are pushed through a buffered channel. It stands in for
// the postMessage transport of a real native shell.
type Pipe struct {
	host Host

	mu     sync.Mutex
	events chan Event
	closed bool
}

// NewPipe returns a Pipe serving the given host handlers.
func NewPipe(host Host) *Pipe {
	return &Pipe{
		host:   host,
		events: make(chan Event, eventBuffer),
	}
}

func (p *Pipe) RequestFederatedToken(ctx context.Context, provider string) (FederatedToken, error) {
	if p.host.FederatedToken == nil {
		return FederatedToken{}, ErrNoHandler
	}

	token, err := p.host.FederatedToken(ctx, provider)
	if err != nil {
		return FederatedToken{}, err
	}
	if token == nil {
		return FederatedToken{}, ErrEmptyResponse
	}
	return *token, nil
}

func (p *Pipe) RequestProducts(ctx context.Context, offerNames []string) error {
	if p.host.Products == nil {
		return ErrNoHandler
	}
	return p.host.Products(ctx, offerNames)
}

func (p *Pipe) RequestPurchase(ctx context.Context, req PurchaseRequest) error {
	if p.host.Purchase == nil {
		return ErrNoHandler
	}
	return p.host.Purchase(ctx, req)
}

func (p *Pipe) RequestTransactions(ctx context.Context) error {
	if p.host.Transactions == nil {
		return ErrNoHandler
	}
	return p.host.Transactions(ctx)
}

func (p *Pipe) Events() <-chan Event {
	return p.events
}

// Emit delivers a named event to the sandbox side. Events emitted while the
// buffer is full are dropped, matching a UI that missed a window event.
func (p *Pipe) Emit(name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	select {
	case p.events <- Event{Name: name, Payload: raw}:
	default:
	}
}

// Close shuts the event stream. Requests after Close still reach the host;
// only event delivery stops.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
}
