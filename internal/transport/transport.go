package transport

import (
	"context"
	"errors"

	"github.com/roughmark/roughmark/pkg/types"
)

// CoordinatorRank is the rank of the coordinator in every pool.
const CoordinatorRank = 0

// ErrClosed is returned by Send and Recv once the endpoint has been closed or
// the peer has gone away.
var ErrClosed = errors.New("transport: endpoint closed")

// Endpoint is one process's view of the pool.
type Endpoint interface {
	// Rank is this endpoint's position in the pool; 0 is the coordinator.
	Rank() int

	// Size is the total number of processes, coordinator included.
	Size() int

	// Send delivers env to dest. Envelope.Source is overwritten with Rank().
	Send(ctx context.Context, dest int, env types.Envelope) error

	// Recv blocks until a message from any rank is available or ctx is done.
	Recv(ctx context.Context) (types.Envelope, error)

	// Close releases the endpoint.
	Close() error
}
