package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/roughmark/roughmark/pkg/types"
)

// LocalEndpoint is an in-memory Endpoint. All endpoints created by one
// NewLocal call form a pool.
type LocalEndpoint struct {
	rank  int
	pool  []*LocalEndpoint
	inbox chan types.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

// NewLocal returns size connected endpoints; index i has rank i.
func NewLocal(size int) []*LocalEndpoint {
	// Each rank has at most a handful of messages in flight per peer, so
	// sized inboxes never block a well-behaved sender.
	capacity := 2*size + 8
	pool := make([]*LocalEndpoint, size)
	for i := range pool {
		pool[i] = &LocalEndpoint{
			rank:  i,
			inbox: make(chan types.Envelope, capacity),
			done:  make(chan struct{}),
		}
	}
	for _, ep := range pool {
		ep.pool = pool
	}
	return pool
}

func (e *LocalEndpoint) Rank() int { return e.rank }

func (e *LocalEndpoint) Size() int { return len(e.pool) }

func (e *LocalEndpoint) Send(ctx context.Context, dest int, env types.Envelope) error {
	if dest < 0 || dest >= len(e.pool) {
		return fmt.Errorf("transport: rank %d out of range [0,%d)", dest, len(e.pool))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	env.Source = e.rank
	peer := e.pool[dest]
	select {
	case peer.inbox <- env:
		return nil
	case <-peer.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *LocalEndpoint) Recv(ctx context.Context) (types.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return types.Envelope{}, err
	}
	select {
	case env := <-e.inbox:
		return env, nil
	case <-e.done:
		return types.Envelope{}, ErrClosed
	case <-ctx.Done():
		return types.Envelope{}, ctx.Err()
	}
}

func (e *LocalEndpoint) Close() error {
	e.closeOnce.Do(func() { close(e.done) })
	return nil
}
