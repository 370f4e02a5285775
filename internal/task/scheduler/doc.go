// Package scheduler runs named jobs on cron specs, fixed intervals or once
// after a delay. Each run gets its own timeout context; overlapping runs of
// the same schedule are skipped.
package scheduler
