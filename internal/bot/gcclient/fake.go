package gcclient

import (
	"context"
	"sync"
)

// FakeGCClient is an in-memory GCClient for bot/worker/workermanager tests:
// no network, deterministic replies, and hooks to simulate GC-side stalls
// (for deadline tests) or disconnects.
type FakeGCClient struct {
	mu sync.Mutex

	LoginResult LoginResult
	LoginErr    error

	// InspectFunc, if set, computes the reply for InspectItem. Tests that
	// want to simulate a stall set this to block until ctx is done.
	InspectFunc func(ctx context.Context, owner, assetID, descriptor string) (InspectReply, error)

	events chan Event
	closed bool
}

// NewFakeGCClient builds a FakeGCClient that logs on successfully by
// default and echoes an empty InspectReply.
func NewFakeGCClient() *FakeGCClient {
	return &FakeGCClient{
		events: make(chan Event, 4),
	}
}

func (f *FakeGCClient) LogOn(ctx context.Context, creds Credentials) (LoginResult, error) {
	if f.LoginErr != nil {
		return LoginResult{}, f.LoginErr
	}
	return f.LoginResult, nil
}

func (f *FakeGCClient) InspectItem(ctx context.Context, owner, assetID, descriptor string) (InspectReply, error) {
	if f.InspectFunc != nil {
		return f.InspectFunc(ctx, owner, assetID, descriptor)
	}
	select {
	case <-ctx.Done():
		return InspectReply{}, ctx.Err()
	default:
	}
	return InspectReply{}, nil
}

func (f *FakeGCClient) Events() <-chan Event { return f.events }

func (f *FakeGCClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// Disconnect lets a test push a disconnect event to the Bot under test.
func (f *FakeGCClient) Disconnect(kind DisconnectKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- Event{Kind: kind}:
	default:
	}
}

var _ GCClient = (*FakeGCClient)(nil)
var _ GCClient = (*SteamGCClient)(nil)
