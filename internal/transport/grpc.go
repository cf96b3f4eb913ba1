package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/pkg/types"
)

const (
	serviceName  = "roughmark.v1.Exchange"
	attachMethod = "/" + serviceName + "/Attach"

	// closeGrace bounds how long Server.Close waits for workers to hang up
	// before the remaining streams are cut.
	closeGrace = 5 * time.Second
)

// exchangeServer is the handler type registered for the Exchange service.
type exchangeServer interface {
	Attach(stream grpc.ServerStream) error
}

var exchangeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchangeServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName: "Attach",
		Handler: func(srv interface{}, stream grpc.ServerStream) error {
			return srv.(exchangeServer).Attach(stream)
		},
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "roughmark/v1/exchange",
}

// Server is the coordinator's Endpoint over gRPC. Workers attach with one
// bidirectional stream each.
type Server struct {
	expected int
	srv      *grpc.Server
	lis      net.Listener
	inbox    chan types.Envelope

	mu       sync.Mutex
	peers    map[int]*serverPeer
	next     int
	attached int
	ready    chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// serverPeer is one attached worker stream. SendMsg is not safe for
// concurrent use, hence mu.
type serverPeer struct {
	rank   int
	mu     sync.Mutex
	stream grpc.ServerStream
}

func (p *serverPeer) send(env *types.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream.SendMsg(env)
}

// Listen starts the Exchange service on addr for a pool of workers workers.
// It returns as soon as the listener is up; call Wait before dispatching.
func Listen(addr string, workers int) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w: %w", addr, fault.ErrStartup, err)
	}

	s := &Server{
		expected: workers,
		lis:      lis,
		inbox:    make(chan types.Envelope, 2*workers+8),
		peers:    make(map[int]*serverPeer, workers),
		next:     CoordinatorRank + 1,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	if workers <= 0 {
		close(s.ready)
	}

	s.srv = grpc.NewServer()
	s.srv.RegisterService(&exchangeServiceDesc, s)
	go func() {
		if err := s.srv.Serve(lis); err != nil {
			slog.Error("transport: grpc server stopped", "err", err)
		}
	}()

	slog.Info("transport: listening", "addr", lis.Addr().String(), "workers", workers)
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string { return s.lis.Addr().String() }

// Wait blocks until every expected worker has attached or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		attached := s.attached
		s.mu.Unlock()
		return fmt.Errorf("transport: %d of %d workers attached: %w: %w",
			attached, s.expected, fault.ErrStartup, ctx.Err())
	}
}

// Attached returns the number of workers currently attached.
func (s *Server) Attached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

func (s *Server) Rank() int { return CoordinatorRank }

func (s *Server) Size() int { return s.expected + 1 }

// Attach is the stream handler for one worker. It assigns the next free rank,
// announces it, and forwards everything the worker sends to the inbox until
// the worker hangs up.
func (s *Server) Attach(stream grpc.ServerStream) error {
	s.mu.Lock()
	if s.next > s.expected {
		s.mu.Unlock()
		return status.Error(codes.ResourceExhausted, "worker pool is full")
	}
	rank := s.next
	s.next++
	s.mu.Unlock()

	p := &serverPeer{rank: rank, stream: stream}
	welcome := types.Envelope{Tag: types.TagWelcome, Source: CoordinatorRank, ID: rank, Size: s.Size()}
	if err := p.send(&welcome); err != nil {
		return err
	}

	remote := "unknown"
	if pr, ok := peer.FromContext(stream.Context()); ok {
		remote = pr.Addr.String()
	}

	s.mu.Lock()
	s.peers[rank] = p
	s.attached++
	if s.attached == s.expected {
		close(s.ready)
	}
	s.mu.Unlock()
	slog.Info("transport: worker attached", "rank", rank, "remote", remote)

	for {
		var env types.Envelope
		if err := stream.RecvMsg(&env); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Debug("transport: worker hung up", "rank", rank)
				return nil
			}
			slog.Warn("transport: worker stream failed", "rank", rank, "err", err)
			return err
		}
		env.Source = rank

		select {
		case s.inbox <- env:
		case <-s.done:
			return nil
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func (s *Server) Send(_ context.Context, dest int, env types.Envelope) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.mu.Lock()
	p, ok := s.peers[dest]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no worker attached with rank %d", dest)
	}

	env.Source = CoordinatorRank
	if err := p.send(&env); err != nil {
		return fmt.Errorf("transport: send %s to rank %d: %w", env.Tag, dest, err)
	}
	return nil
}

func (s *Server) Recv(ctx context.Context) (types.Envelope, error) {
	select {
	case env := <-s.inbox:
		return env, nil
	case <-s.done:
		return types.Envelope{}, ErrClosed
	case <-ctx.Done():
		return types.Envelope{}, ctx.Err()
	}
}

// Close stops accepting work and shuts the gRPC server down, giving attached
// workers closeGrace to hang up on their own first.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		stopped := make(chan struct{})
		go func() {
			s.srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(closeGrace):
			s.srv.Stop()
		}
	})
	return nil
}

// Client is a worker's Endpoint over gRPC.
type Client struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
	rank   int
	size   int

	sendMu sync.Mutex

	inbox   chan types.Envelope
	recvErr error         // set before inbox is closed
	done    chan struct{} // closed by Close
	stopped chan struct{} // closed when recvLoop returns

	closeOnce sync.Once
}

// Dial attaches to the coordinator at addr. It waits for the coordinator to
// come up and for the welcome envelope until ctx is done.
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := grpc.DialContext(ctx, addr, //nolint:staticcheck // DialContext kept for grpc <1.63 compat
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w: %w", addr, fault.ErrStartup, err)
	}

	// The stream outlives ctx; ctx only bounds the handshake.
	streamCtx, cancel := context.WithCancel(context.Background())
	stopHandshake := context.AfterFunc(ctx, cancel)
	defer stopHandshake()

	stream, err := conn.NewStream(streamCtx, &exchangeServiceDesc.Streams[0], attachMethod, grpc.WaitForReady(true))
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("transport: attach %s: %w: %w", addr, fault.ErrStartup, err)
	}

	var welcome types.Envelope
	if err := stream.RecvMsg(&welcome); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("transport: await welcome from %s: %w: %w", addr, fault.ErrStartup, err)
	}
	if welcome.Tag != types.TagWelcome || welcome.ID <= CoordinatorRank {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("transport: unexpected %s envelope during handshake: %w", welcome.Tag, fault.ErrStartup)
	}

	c := &Client{
		conn:    conn,
		stream:  stream,
		cancel:  cancel,
		rank:    welcome.ID,
		size:    welcome.Size,
		inbox:   make(chan types.Envelope, 8),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.recvLoop()

	slog.Info("transport: attached to coordinator", "addr", addr, "rank", c.rank, "size", c.size)
	return c, nil
}

// recvLoop feeds the inbox until the stream fails or Close is called, even
// if nobody is draining the inbox.
func (c *Client) recvLoop() {
	defer close(c.stopped)
	defer close(c.inbox)
	for {
		var env types.Envelope
		if err := c.stream.RecvMsg(&env); err != nil {
			c.recvErr = err
			return
		}
		env.Source = CoordinatorRank
		select {
		case c.inbox <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) Rank() int { return c.rank }

func (c *Client) Size() int { return c.size }

func (c *Client) Send(_ context.Context, dest int, env types.Envelope) error {
	if dest != CoordinatorRank {
		return fmt.Errorf("transport: workers can only send to rank %d, not %d", CoordinatorRank, dest)
	}
	env.Source = c.rank

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.SendMsg(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrClosed
		}
		return fmt.Errorf("transport: send %s: %w", env.Tag, err)
	}
	return nil
}

func (c *Client) Recv(ctx context.Context) (types.Envelope, error) {
	select {
	case env, ok := <-c.inbox:
		if !ok {
			if c.recvErr == nil || errors.Is(c.recvErr, io.EOF) || status.Code(c.recvErr) == codes.Canceled {
				return types.Envelope{}, ErrClosed
			}
			return types.Envelope{}, fmt.Errorf("transport: recv: %w", c.recvErr)
		}
		return env, nil
	case <-ctx.Done():
		return types.Envelope{}, ctx.Err()
	}
}

// Close half-closes the stream and tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.sendMu.Lock()
		c.stream.CloseSend() //nolint:errcheck
		c.sendMu.Unlock()
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
