// Package dispatch implements the coordinator side of the dispatch protocol.
//
// Coordinator.Run hands out work items greedily: every worker gets one item
// up front, and each returned result immediately earns its sender the next
// undispatched item. Once the queue is empty the coordinator only drains
// results. When every item has a result the set is banded (package scorer)
// and every worker receives a terminate envelope, whether or not it ever
// received work.
//
// An item travels as two envelopes on the same channel, assign_data then
// assign_id, stamped with the same per-worker exchange number. At most one
// item is outstanding per worker.
//
// Any envelope the protocol does not allow, a result for an id that was not
// outstanding at its sender, or an abort from a worker ends the run: the
// coordinator sends abort to every worker and returns the error. There are no
// retries and no partial results.
package dispatch
