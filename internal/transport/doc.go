// Package transport provides the tagged point-to-point messaging used between
// the coordinator (rank 0) and the workers (ranks 1..N).
//
// Endpoint is the contract: Send to a rank, Recv from any rank. Every
// Envelope is delivered whole, so a receiver classifies a message and reads
// its payload in one step. Order is preserved per (sender, receiver) pair and
// nothing is retransmitted.
//
// Two implementations exist:
//   - NewLocal(size) returns in-memory endpoints for a pool that lives inside
//     one process (goroutines). Used by the -local mode and by tests.
//   - Listen/Dial run the protocol over one bidirectional gRPC stream per
//     worker (service roughmark.v1.Exchange, method Attach). Envelopes are
//     JSON-encoded by a codec registered under the "json" content-subtype, so
//     no generated protobuf code is involved. The server assigns ranks in
//     attach order and announces them with a welcome envelope.
package transport
