// Package worker implements the worker side of the dispatch protocol.
//
// Run loops over a small state machine:
//
//	WAIT ──assign_data──▶ (expect assign_id, same exchange) ──▶ COMPUTE ──▶ RESPOND ──▶ WAIT
//	WAIT ──terminate────▶ STOP
//	WAIT ──abort────────▶ STOP (fault.ErrAborted)
//
// Any other sequence is fault.ErrMalformedExchange. The worker then sends an
// abort envelope to the coordinator, which takes the rest of the pool down,
// and returns the error.
package worker
