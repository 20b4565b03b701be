// Package stability provides the engine's only waiting mechanism: bounded
// polling until the document stops changing and an optional caller
// predicate holds. Every component that must tolerate delayed rendering
// waits through this package; nothing else in the repo sleeps on a hunch.
package stability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"formscout/internal/application/port/output"
	"formscout/internal/dom"
	"formscout/internal/domain/entity"
)

// Default bounds, used when neither the watcher nor the call overrides
// them.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 100 * time.Millisecond
	DefaultQuiet    = 250 * time.Millisecond
)

// Observation is one poll of the live document: the parsed tree and the
// snapshot captured from it. The snapshot's fingerprint doubles as the
// structural-change detector between polls.
type Observation struct {
	Doc      *dom.Document
	Snapshot *entity.FormSnapshot
	Location string
}

// Probe reads and captures the live document once. The session owns the
// probe so that revision numbering stays in one place.
type Probe func(ctx context.Context) (*Observation, error)

// Options bounds one wait. A zero field falls back to the watcher's
// defaults. Predicate, when set, must hold in addition to the generic
// quiet-window heuristic.
type Options struct {
	Timeout   time.Duration
	Interval  time.Duration
	Quiet     time.Duration
	Predicate func(*Observation) bool
}

// Watcher polls a probe until the document settles.
type Watcher struct {
	probe    Probe
	log      output.LoggerPort
	defaults Options
}

// New builds a watcher around a probe. Zero default bounds fall back to
// the package constants.
func New(probe Probe, log output.LoggerPort, defaults Options) *Watcher {
	return &Watcher{probe: probe, log: log, defaults: defaults}
}

// Observe runs the probe once, with no waiting. Callers that need the
// current state rather than a settled one use this.
func (w *Watcher) Observe(ctx context.Context) (*Observation, error) {
	return w.probe(ctx)
}

// AwaitSettled polls until two consecutive observations at least Quiet
// apart share a fingerprint and the predicate (when given) holds, or the
// timeout elapses. On timeout the returned error is an EngineError with
// code stability_timeout carrying the last snapshot observed, which is
// still useful for diagnostics. Probe failures inside the window are
// retried until the deadline unless the driver is gone or the context is
// cancelled.
func (w *Watcher) AwaitSettled(ctx context.Context, opts Options) (*Observation, error) {
	opts = w.merged(opts)
	deadline := time.Now().Add(opts.Timeout)

	var (
		last        *Observation
		lastErr     error
		fingerprint uint64
		quietSince  time.Time
		streak      int
	)
	for {
		obs, err := w.probe(ctx)
		now := time.Now()
		switch {
		case err != nil:
			if errors.Is(err, output.ErrDriverClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("await settled: %w", err)
			}
			lastErr = err
			streak = 0
			w.log.Warn("stability probe failed", "error", err.Error())
		case streak == 0 || obs.Snapshot.Fingerprint != fingerprint:
			fingerprint = obs.Snapshot.Fingerprint
			quietSince = now
			streak = 1
			last = obs
		default:
			streak++
			last = obs
		}

		if err == nil && streak >= 2 && now.Sub(quietSince) >= opts.Quiet {
			if opts.Predicate == nil || opts.Predicate(obs) {
				obs.Snapshot.Settled = true
				return obs, nil
			}
		}

		if now.After(deadline) {
			var lastSnap *entity.FormSnapshot
			if last != nil {
				lastSnap = last.Snapshot
			}
			timeoutErr := entity.NewStabilityTimeout(
				fmt.Sprintf("document did not settle within %s", opts.Timeout), lastSnap)
			if lastErr != nil {
				return nil, timeoutErr.WithCause(lastErr)
			}
			return nil, timeoutErr
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await settled: %w", ctx.Err())
		case <-time.After(opts.Interval):
		}
	}
}

func (w *Watcher) merged(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = w.defaults.Timeout
	}
	if opts.Interval <= 0 {
		opts.Interval = w.defaults.Interval
	}
	if opts.Quiet <= 0 {
		opts.Quiet = w.defaults.Quiet
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Quiet <= 0 {
		opts.Quiet = DefaultQuiet
	}
	if opts.Predicate == nil {
		opts.Predicate = w.defaults.Predicate
	}
	return opts
}
