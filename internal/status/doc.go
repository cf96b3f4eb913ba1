// Package status keeps an in-memory record of grading runs for the status
// surface. Store implements dispatch.Observer, so a coordinator created with
// dispatch.WithObserver(store) feeds it directly. Finished runs older than
// the retention window are evicted by Run; the most recent run is always kept.
package status
