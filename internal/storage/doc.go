// Package storage provides the persistence layer behind every monitor.
//
// It currently supports:
//   - The baseline ("previous") snapshot of each monitor
//   - The changed-flag artifact consumed by the notifier (at-most-once)
//   - Run history appends (one record per run)
//
// The baseline and flag of a run are written together through Commit so a run
// that fails halfway never advances one without the other.
package storage
