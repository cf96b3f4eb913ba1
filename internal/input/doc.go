// Package input loads the rough-marking file: whitespace-separated reals,
// consumed rowWidth at a time. Each complete row becomes one WorkItem whose
// ID is its zero-based row index. A trailing partial row is discarded.
//
// All rows of one load live in a single contiguous arena owned by the
// returned slice; each WorkItem.Row is a capacity-capped window into it.
//
// Watch re-delivers the file every time it is written, for the coordinator's
// watch mode.
package input
