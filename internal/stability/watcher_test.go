package stability

import (
	"context"
	"errors"
	"testing"
	"time"

	"formscout/internal/application/port/output"
	"formscout/internal/dom"
	"formscout/internal/domain/entity"
	"formscout/internal/infrastructure/logger"
)

// scriptedProbe serves a sequence of markups, repeating the last one once
// the script runs out.
func scriptedProbe(t *testing.T, markups ...string) Probe {
	t.Helper()
	i := 0
	var revision uint64
	return func(ctx context.Context) (*Observation, error) {
		markup := markups[i]
		if i < len(markups)-1 {
			i++
		}
		doc, err := dom.Parse(markup)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		revision++
		return &Observation{
			Doc: doc,
			Snapshot: &entity.FormSnapshot{
				Revision:    revision,
				Fingerprint: dom.Fingerprint(markup),
			},
		}, nil
	}
}

func testWatcher(probe Probe) *Watcher {
	return New(probe, logger.NewNop(), Options{
		Timeout:  time.Second,
		Interval: 5 * time.Millisecond,
		Quiet:    10 * time.Millisecond,
	})
}

func TestAwaitSettledStableDocument(t *testing.T) {
	w := testWatcher(scriptedProbe(t, `<html><body><input name="a"></body></html>`))

	obs, err := w.AwaitSettled(context.Background(), Options{})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !obs.Snapshot.Settled {
		t.Error("returned snapshot should be marked settled")
	}
	if obs.Snapshot.Revision < 2 {
		t.Errorf("settling requires at least two polls, revision = %d", obs.Snapshot.Revision)
	}
}

func TestAwaitSettledWaitsOutMutations(t *testing.T) {
	// three distinct states before the document stabilizes
	w := testWatcher(scriptedProbe(t,
		`<html><body></body></html>`,
		`<html><body><div>loading</div></body></html>`,
		`<html><body><div>loading...</div></body></html>`,
		`<html><body><input name="a"></body></html>`,
	))

	obs, err := w.AwaitSettled(context.Background(), Options{})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if got := dom.Fingerprint(`<html><body><input name="a"></body></html>`); obs.Snapshot.Fingerprint != got {
		t.Error("should settle on the final state, not an intermediate one")
	}
}

func TestAwaitSettledHonorsPredicate(t *testing.T) {
	blank := `<html><body><form id="f"></form></body></html>`
	filled := `<html><body><form id="f"><input name="email"></form></body></html>`
	delay := 60 * time.Millisecond

	start := time.Now()
	probe := func(ctx context.Context) (*Observation, error) {
		markup := blank
		if time.Since(start) >= delay {
			markup = filled
		}
		doc, _ := dom.Parse(markup)
		return &Observation{
			Doc:      doc,
			Snapshot: &entity.FormSnapshot{Fingerprint: dom.Fingerprint(markup)},
		}, nil
	}
	w := testWatcher(probe)

	hasField := func(obs *Observation) bool {
		return obs.Doc.Find(`[name="email"]`) != nil
	}
	obs, err := w.AwaitSettled(context.Background(), Options{Predicate: hasField})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("settled after %v, before the %v render delay", elapsed, delay)
	}
	if !hasField(obs) {
		t.Error("returned observation should satisfy the predicate")
	}
}

func TestAwaitSettledTimeoutCarriesLastSnapshot(t *testing.T) {
	w := testWatcher(scriptedProbe(t, `<html><body><p>empty</p></body></html>`))

	_, err := w.AwaitSettled(context.Background(), Options{
		Timeout:   50 * time.Millisecond,
		Predicate: func(*Observation) bool { return false },
	})
	if err == nil {
		t.Fatal("expected a timeout")
	}
	if !entity.IsCode(err, entity.ErrStabilityTimeout) {
		t.Fatalf("error code = %v", err)
	}
	var engineErr *entity.EngineError
	if !errors.As(err, &engineErr) || engineErr.Snapshot == nil {
		t.Error("timeout should carry the last observed snapshot")
	}
}

func TestAwaitSettledNeverSettlesOnFlappingDocument(t *testing.T) {
	i := 0
	probe := func(ctx context.Context) (*Observation, error) {
		i++
		markup := `<html><body><div>a</div></body></html>`
		if i%2 == 0 {
			markup = `<html><body><div>b</div></body></html>`
		}
		doc, _ := dom.Parse(markup)
		return &Observation{Doc: doc, Snapshot: &entity.FormSnapshot{Fingerprint: dom.Fingerprint(markup)}}, nil
	}
	w := testWatcher(probe)

	_, err := w.AwaitSettled(context.Background(), Options{Timeout: 60 * time.Millisecond})
	if !entity.IsCode(err, entity.ErrStabilityTimeout) {
		t.Fatalf("flapping document must time out, got %v", err)
	}
}

func TestAwaitSettledContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := testWatcher(scriptedProbe(t, `<html><body></body></html>`))

	done := make(chan error, 1)
	go func() {
		_, err := w.AwaitSettled(ctx, Options{
			Timeout:   10 * time.Second,
			Predicate: func(*Observation) bool { return false },
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancel should surface context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation did not quiet the poll promptly")
	}
}

func TestAwaitSettledRetriesTransientProbeErrors(t *testing.T) {
	i := 0
	probe := func(ctx context.Context) (*Observation, error) {
		i++
		if i < 3 {
			return nil, errors.New("connection reset")
		}
		markup := `<html><body><input name="a"></body></html>`
		doc, _ := dom.Parse(markup)
		return &Observation{Doc: doc, Snapshot: &entity.FormSnapshot{Fingerprint: dom.Fingerprint(markup)}}, nil
	}
	w := testWatcher(probe)

	if _, err := w.AwaitSettled(context.Background(), Options{}); err != nil {
		t.Fatalf("transient probe failures should be retried: %v", err)
	}
}

func TestAwaitSettledAbortsOnClosedDriver(t *testing.T) {
	probe := func(ctx context.Context) (*Observation, error) {
		return nil, output.ErrDriverClosed
	}
	w := testWatcher(probe)

	start := time.Now()
	_, err := w.AwaitSettled(context.Background(), Options{Timeout: 5 * time.Second})
	if !errors.Is(err, output.ErrDriverClosed) {
		t.Fatalf("expected driver-closed error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("closed driver should abort immediately, not burn the timeout")
	}
}
