package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roughmark/roughmark/internal/compute"
	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/internal/transport"
	"github.com/roughmark/roughmark/pkg/types"
)

// Options configures a worker loop.
type Options struct {
	// RowWidth is the number of marks every assignment must carry.
	RowWidth int

	// Score maps a row to its initial score. Defaults to compute.InitialScore.
	Score func(row []float64) float64
}

// Stats summarises one worker's run.
type Stats struct {
	Rank     int
	Computed int
}

// Run serves assignments from ep until the coordinator terminates the pool.
// It returns nil after a terminate, or the fatal error that stopped it.
func Run(ctx context.Context, ep transport.Endpoint, opts Options) (Stats, error) {
	if opts.Score == nil {
		opts.Score = compute.InitialScore
	}
	if opts.RowWidth <= 0 {
		opts.RowWidth = compute.DefaultRowWidth
	}
	log := slog.With("rank", ep.Rank())
	st := Stats{Rank: ep.Rank()}

	for {
		env, err := ep.Recv(ctx)
		if err != nil {
			return st, fmt.Errorf("worker %d: wait: %w", ep.Rank(), err)
		}

		switch env.Tag {
		case types.TagTerminate:
			log.Info("worker: terminate received", "computed", st.Computed)
			return st, nil

		case types.TagAbort:
			log.Warn("worker: abort received", "reason", env.Reason)
			return st, fmt.Errorf("worker %d: %s: %w", ep.Rank(), env.Reason, fault.ErrAborted)

		case types.TagAssignData:
			id, err := awaitID(ctx, ep, env, opts.RowWidth)
			if err != nil {
				abort(ctx, ep, err)
				return st, err
			}

			res := types.NewResult(id, opts.Score(env.Row))
			log.Debug("worker: computed", "id", id, "ins", res.InitialScore)

			if err := ep.Send(ctx, transport.CoordinatorRank, types.Envelope{Tag: types.TagResult, Result: &res}); err != nil {
				return st, fmt.Errorf("worker %d: respond id %d: %w", ep.Rank(), id, err)
			}
			st.Computed++

		default:
			err := fmt.Errorf("worker %d: unexpected %s while waiting for work: %w",
				ep.Rank(), env.Tag, fault.ErrMalformedExchange)
			abort(ctx, ep, err)
			return st, err
		}
	}
}

// awaitID completes an exchange opened by data: the very next envelope must
// be the assign_id half with the same exchange number.
func awaitID(ctx context.Context, ep transport.Endpoint, data types.Envelope, width int) (int, error) {
	if len(data.Row) != width {
		return 0, fmt.Errorf("worker %d: exchange %d: row has %d marks, want %d: %w",
			ep.Rank(), data.Exchange, len(data.Row), width, fault.ErrMalformedExchange)
	}

	env, err := ep.Recv(ctx)
	if err != nil {
		return 0, fmt.Errorf("worker %d: exchange %d: wait for id: %w", ep.Rank(), data.Exchange, err)
	}
	if env.Tag != types.TagAssignID {
		return 0, fmt.Errorf("worker %d: exchange %d: id not received correctly, got %s: %w",
			ep.Rank(), data.Exchange, env.Tag, fault.ErrMalformedExchange)
	}
	if env.Exchange != data.Exchange {
		return 0, fmt.Errorf("worker %d: id for exchange %d paired with data for exchange %d: %w",
			ep.Rank(), env.Exchange, data.Exchange, fault.ErrMalformedExchange)
	}
	if env.ID < 0 {
		return 0, fmt.Errorf("worker %d: exchange %d: negative id %d: %w",
			ep.Rank(), data.Exchange, env.ID, fault.ErrMalformedExchange)
	}
	return env.ID, nil
}

// abort tells the coordinator to take the pool down. Delivery is best-effort.
func abort(ctx context.Context, ep transport.Endpoint, cause error) {
	slog.Error("worker: aborting pool", "rank", ep.Rank(), "err", cause)
	err := ep.Send(ctx, transport.CoordinatorRank, types.Envelope{Tag: types.TagAbort, Reason: cause.Error()})
	if err != nil {
		slog.Warn("worker: abort not delivered", "rank", ep.Rank(), "err", err)
	}
}
