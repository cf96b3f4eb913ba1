// Package types defines the data model shared by the coordinator, the workers
// and the transport: work items, results, message tags and the Envelope that
// carries every message on the wire.
package types
