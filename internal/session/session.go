// Package session drives one application attempt through its state
// machine: Discovering -> Filling -> Submitting -> AwaitingConfirmation ->
// {Confirmed | Abandoned}, with a bounded Filling -> Discovering self-loop
// whenever a dispatched value changes the document's structure. The
// session owns the probe, so snapshot revisions stay monotonic per
// attempt, and it is the only caller of the driver's mutating primitives.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"formscout/internal/application/port/output"
	"formscout/internal/discovery"
	"formscout/internal/dom"
	"formscout/internal/domain/entity"
	"formscout/internal/options"
	"formscout/internal/siteprofile"
	"formscout/internal/stability"
)

// Bounds applied when the config leaves them zero.
const (
	DefaultMaxRediscoveries = 3
	DefaultRetryAttempts    = 2
	DefaultMaxPages         = 8
)

// Config bounds one session. Zero durations fall back to the stability
// package defaults; the profile's timeout overrides take precedence over
// all of them.
type Config struct {
	MaxRediscoveries int
	RetryAttempts    int
	MaxPages         int
	SettleTimeout    time.Duration
	SettleInterval   time.Duration
	SettleQuiet      time.Duration
	ResolveTimeout   time.Duration
	ConfirmTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRediscoveries <= 0 {
		c.MaxRediscoveries = DefaultMaxRediscoveries
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	return c
}

// Session is one application attempt against one live document.
type Session struct {
	driver   output.Driver
	provider output.ValueProvider
	profile  *siteprofile.Profile
	log      output.LoggerPort
	cfg      Config

	watcher  *stability.Watcher
	resolver *options.Resolver

	state    *entity.SessionState
	revision uint64
}

// New builds a session. A nil profile falls back to the default
// confirmation signature; the profile's timeout overrides are folded into
// the config here.
func New(driver output.Driver, provider output.ValueProvider, profile *siteprofile.Profile, log output.LoggerPort, cfg Config) *Session {
	if profile == nil {
		profile = siteprofile.Default()
	}
	cfg = cfg.withDefaults()
	cfg.SettleTimeout = profile.Timeouts.Settle(cfg.SettleTimeout)
	cfg.ResolveTimeout = profile.Timeouts.Resolve(cfg.ResolveTimeout)
	cfg.ConfirmTimeout = profile.Timeouts.Confirm(cfg.ConfirmTimeout)

	id := uuid.NewString()
	s := &Session{
		driver:   driver,
		provider: provider,
		profile:  profile,
		log:      log.WithField("session", id),
		cfg:      cfg,
		state: &entity.SessionState{
			ID:        id,
			Phase:     entity.PhaseDiscovering,
			Status:    entity.StatusInProgress,
			StartedAt: time.Now(),
		},
	}
	s.watcher = stability.New(s.probe, s.log, stability.Options{
		Timeout:  cfg.SettleTimeout,
		Interval: cfg.SettleInterval,
		Quiet:    cfg.SettleQuiet,
	})
	s.resolver = options.New(driver, s.watcher, s.log, options.Config{
		Timeout:  cfg.ResolveTimeout,
		Interval: cfg.SettleInterval,
		Quiet:    cfg.SettleQuiet,
	})
	return s
}

// State exposes the session's externally visible state.
func (s *Session) State() *entity.SessionState {
	return s.state
}

// probe is the single read path: one structural read, one parse, one
// capture, one revision tick.
func (s *Session) probe(ctx context.Context) (*stability.Observation, error) {
	markup, err := s.driver.ReadStructure(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := dom.Parse(markup)
	if err != nil {
		return nil, fmt.Errorf("parse structure: %w", err)
	}
	s.revision++
	snap := discovery.Capture(doc, discovery.CaptureOptions{
		Revision: s.revision,
		Location: s.driver.CurrentLocation(),
		Rules:    s.profile.Dependencies,
	})
	return &stability.Observation{Doc: doc, Snapshot: snap, Location: snap.Location}, nil
}

// Discover waits for the document to settle, captures the field inventory,
// resolves options for every visible unresolved choice field and appends
// the snapshot to the current page's history.
func (s *Session) Discover(ctx context.Context) (*entity.FormSnapshot, error) {
	return s.discover(ctx, nil)
}

// DiscoverWhen additionally waits for a caller predicate over the captured
// snapshot, e.g. "at least one field exists" on pages that render their
// form late.
func (s *Session) DiscoverWhen(ctx context.Context, predicate func(*entity.FormSnapshot) bool) (*entity.FormSnapshot, error) {
	var p func(*stability.Observation) bool
	if predicate != nil {
		p = func(o *stability.Observation) bool { return predicate(o.Snapshot) }
	}
	return s.discover(ctx, p)
}

func (s *Session) discover(ctx context.Context, predicate func(*stability.Observation) bool) (*entity.FormSnapshot, error) {
	if s.state.Phase.Terminal() {
		return nil, fmt.Errorf("session %s is already %s", s.state.ID, s.state.Phase)
	}
	s.state.Phase = entity.PhaseDiscovering
	page := s.currentPage()

	obs, err := s.awaitSettledRetrying(ctx, stability.Options{Predicate: predicate})
	if err != nil {
		return nil, err
	}
	snap := obs.Snapshot
	prev := page.Latest()
	discovery.AdoptResolutions(prev, snap)
	if err := s.resolveChoices(ctx, snap); err != nil {
		return nil, err
	}
	page.Snapshots = append(page.Snapshots, snap)
	page.Location = snap.Location

	if d := discovery.Diff(prev, snap); !d.Empty() {
		s.log.Debug("discovery diff",
			"appeared", strings.Join(d.Appeared, ","),
			"disappeared", strings.Join(d.Disappeared, ","),
			"changed_required", strings.Join(d.ChangedRequired, ","),
			"changed_options", strings.Join(d.ChangedOptions, ","))
	}
	s.log.Info("fields discovered",
		"page", page.Page, "fields", len(snap.Fields), "skipped", len(snap.Skipped), "revision", snap.Revision)
	return snap, nil
}

// Fill walks the latest snapshot in document order, asks the provider for
// a value per fillable field and dispatches it. After every dispatched
// value the document is re-observed; a structural change loops back into
// discovery, bounded by MaxRediscoveries per page.
func (s *Session) Fill(ctx context.Context) (*entity.FormSnapshot, error) {
	if s.state.Phase.Terminal() {
		return nil, fmt.Errorf("session %s is already %s", s.state.ID, s.state.Phase)
	}
	page := s.currentPage()
	snap := page.Latest()
	if snap == nil {
		var err error
		if snap, err = s.Discover(ctx); err != nil {
			return nil, err
		}
	}
	s.state.Phase = entity.PhaseFilling

	attempted := map[string]bool{}
	for {
		f := nextUnfilled(snap, attempted)
		if f == nil {
			break
		}
		attempted[f.ID] = true

		value, ok, err := s.provider.ValueFor(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("value for %s: %w", f.ID, err)
		}
		if !ok || value == "" {
			continue
		}
		dispatched, err := s.dispatchFill(ctx, f, value)
		if err != nil {
			if isTeardown(err) {
				return nil, err
			}
			s.log.Warn("fill dispatch failed", "field", f.ID, "error", err.Error())
			continue
		}
		if !dispatched {
			continue
		}
		page.Fills = append(page.Fills, entity.FillRecord{FieldID: f.ID, Value: value, At: time.Now()})

		next, structural, err := s.afterFill(ctx, page, f, snap)
		if err != nil {
			return nil, err
		}
		snap = next
		if structural && page.Rediscoveries > s.cfg.MaxRediscoveries {
			err := fmt.Errorf("fill: %d rediscoveries on page %s, document keeps oscillating",
				page.Rediscoveries, page.Page)
			s.abandon(err.Error())
			return nil, err
		}
	}
	s.log.Info("page filled", "page", page.Page, "fills", len(page.Fills))
	return snap, nil
}

// Submit verifies that every visible required field carries a value,
// dispatches the submission and polls for the site's confirmation
// signature. The required gate runs before any submission interaction is
// dispatched; failing it abandons the session.
func (s *Session) Submit(ctx context.Context) error {
	if s.state.Phase.Terminal() {
		return fmt.Errorf("session %s is already %s", s.state.ID, s.state.Phase)
	}
	page := s.currentPage()
	snap := page.Latest()
	if snap == nil {
		return fmt.Errorf("submit: nothing discovered yet")
	}
	s.state.Phase = entity.PhaseSubmitting

	for _, id := range snap.VisibleRequired() {
		if f := snap.Field(id); f != nil && !f.Filled() {
			err := entity.NewRequiredFieldUnfillable(id, "no value for visible required field").WithSnapshot(snap)
			s.abandon(err.Error())
			return err
		}
	}

	target := s.profile.Submit
	if target == "" {
		obs, err := s.watcher.Observe(ctx)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		target = detectSubmit(obs.Doc)
	}
	if target == "" {
		err := errors.New("submit: no submission control found")
		s.abandon(err.Error())
		return err
	}

	s.log.Info("submitting", "page", page.Page, "target", target)
	if err := s.driver.DispatchClick(ctx, target); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	s.state.Status = entity.StatusSubmitted
	s.state.Phase = entity.PhaseAwaitingConfirmation

	if err := s.awaitConfirmation(ctx); err != nil {
		s.abandon(err.Error())
		return err
	}
	s.state.Phase = entity.PhaseConfirmed
	s.state.Status = entity.StatusConfirmed
	s.state.FinishedAt = time.Now()
	s.log.Info("submission confirmed", "location", s.driver.CurrentLocation())
	return nil
}

// Apply drives a complete attempt: discover and fill page by page,
// advancing through declared or detected next controls, submitting on the
// final page.
func (s *Session) Apply(ctx context.Context) error {
	for pageIdx := 0; ; pageIdx++ {
		if pageIdx >= s.cfg.MaxPages {
			err := fmt.Errorf("apply: page budget of %d exhausted", s.cfg.MaxPages)
			s.abandon(err.Error())
			return err
		}
		if _, err := s.Fill(ctx); err != nil {
			return err
		}
		obs, err := s.watcher.Observe(ctx)
		if err != nil {
			return fmt.Errorf("apply: %w", err)
		}
		next := s.nextTarget(obs.Doc, pageIdx)
		if next == "" {
			return s.Submit(ctx)
		}
		if err := s.advance(ctx, next, pageIdx); err != nil {
			return err
		}
	}
}

// Abandon ends the session without submitting.
func (s *Session) Abandon(reason string) {
	s.abandon(reason)
}

// Close abandons a session still in flight and releases the driver. No
// poll survives teardown: once the driver is closed every probe fails with
// ErrDriverClosed and the watcher returns immediately.
func (s *Session) Close() error {
	if !s.state.Phase.Terminal() {
		s.abandon("session closed")
	}
	return s.driver.Close()
}

// Diagnostics returns a screenshot of the live document when the driver
// supports taking one, for abandonment reports.
func (s *Session) Diagnostics(ctx context.Context) []byte {
	shooter, ok := s.driver.(output.Screenshotter)
	if !ok {
		return nil
	}
	img, err := shooter.Screenshot(ctx)
	if err != nil {
		s.log.Warn("screenshot failed", "error", err.Error())
		return nil
	}
	return img
}

func (s *Session) abandon(reason string) {
	if s.state.Phase.Terminal() {
		return
	}
	s.state.Phase = entity.PhaseAbandoned
	s.state.Status = entity.StatusAbandoned
	s.state.Reason = reason
	s.state.FinishedAt = time.Now()
	s.log.Warn("session abandoned", "reason", reason)
}

func (s *Session) currentPage() *entity.PageRecord {
	if page := s.state.CurrentPage(); page != nil {
		return page
	}
	return s.state.OpenPage(s.profile.PageAt(0).Name, s.driver.CurrentLocation())
}

// awaitSettledRetrying retries stability timeouts with the same bound;
// anything else escalates immediately.
func (s *Session) awaitSettledRetrying(ctx context.Context, opts stability.Options) (*stability.Observation, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		obs, err := s.watcher.AwaitSettled(ctx, opts)
		if err == nil {
			return obs, nil
		}
		if !entity.IsCode(err, entity.ErrStabilityTimeout) {
			return nil, err
		}
		lastErr = err
		s.log.Warn("settle attempt failed", "attempt", attempt, "error", err.Error())
	}
	return nil, lastErr
}

// resolveChoices resolves options serially for every visible choice field
// still unresolved. A failed resolution leaves the field degraded to its
// carrier when one exists; only teardown aborts.
func (s *Session) resolveChoices(ctx context.Context, snap *entity.FormSnapshot) error {
	for i := range snap.Fields {
		f := &snap.Fields[i]
		if !f.Kind.IsChoice() || !f.Visible {
			continue
		}
		if f.Options != nil && f.Options.State != entity.OptionsUnresolved {
			continue
		}
		var set *entity.OptionSet
		var err error
		for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
			set, err = s.resolver.Resolve(ctx, f)
			if err == nil || !entity.IsCode(err, entity.ErrOptionResolutionFailed) {
				break
			}
			s.log.Warn("option resolution attempt failed", "field", f.ID, "attempt", attempt, "error", err.Error())
		}
		if err != nil {
			if isTeardown(err) {
				return err
			}
			s.log.Warn("options unresolvable", "field", f.ID, "error", err.Error())
		}
		if set != nil {
			f.Options = set
		}
	}
	return nil
}

// afterFill re-observes the document once a value landed: wait for quiet,
// carry resolved option sets forward, drop the sets the profile declares
// dependent on the changed trigger, resolve anything newly unresolved and
// append the snapshot. The bool reports a structural change.
func (s *Session) afterFill(ctx context.Context, page *entity.PageRecord, filled *entity.FieldDescriptor, prev *entity.FormSnapshot) (*entity.FormSnapshot, bool, error) {
	s.state.Phase = entity.PhaseDiscovering
	defer func() { s.state.Phase = entity.PhaseFilling }()

	obs, err := s.awaitSettledRetrying(ctx, stability.Options{})
	if err != nil {
		return nil, false, err
	}
	snap := obs.Snapshot
	discovery.AdoptResolutions(prev, snap)
	s.invalidateDependents(filled, snap)
	if err := s.resolveChoices(ctx, snap); err != nil {
		return nil, false, err
	}
	page.Snapshots = append(page.Snapshots, snap)
	page.Location = snap.Location

	d := discovery.Diff(prev, snap)
	if d.Structural() {
		page.Rediscoveries++
		s.log.Debug("structural change after fill", "field", filled.ID,
			"appeared", strings.Join(d.Appeared, ","),
			"disappeared", strings.Join(d.Disappeared, ","))
	}
	return snap, d.Structural(), nil
}

// invalidateDependents resets the option sets of fields whose options the
// profile declares dependent on the just-changed trigger. Any change to
// the trigger invalidates them, whatever the new value is.
func (s *Session) invalidateDependents(filled *entity.FieldDescriptor, snap *entity.FormSnapshot) {
	rules := s.profile.DependentsOf(filled.ID)
	if filled.Name != "" && filled.Name != filled.ID {
		rules = append(rules, s.profile.DependentsOf(filled.Name)...)
	}
	for _, rule := range rules {
		for i := range snap.Fields {
			f := &snap.Fields[i]
			if !f.Kind.IsChoice() {
				continue
			}
			if rule.Reoption(f.ID) || (f.Name != "" && rule.Reoption(f.Name)) {
				f.Options = entity.NewOptionSet()
				s.log.Debug("option set invalidated", "field", f.ID, "trigger", filled.ID)
			}
		}
	}
}

// awaitConfirmation polls for the profile's confirmation signature,
// retrying stability timeouts before giving up.
func (s *Session) awaitConfirmation(ctx context.Context) error {
	satisfied := func(o *stability.Observation) bool {
		return s.profile.Confirmation.Satisfied(o.Location, o.Doc)
	}
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		_, err := s.watcher.AwaitSettled(ctx, stability.Options{
			Timeout:   s.cfg.ConfirmTimeout,
			Predicate: satisfied,
		})
		if err == nil {
			return nil
		}
		if !entity.IsCode(err, entity.ErrStabilityTimeout) {
			return err
		}
		lastErr = err
		s.log.Warn("confirmation not seen yet", "attempt", attempt, "error", err.Error())
	}
	var engErr *entity.EngineError
	var last *entity.FormSnapshot
	if errors.As(lastErr, &engErr) {
		last = engErr.Snapshot
	}
	return entity.NewSubmissionNotConfirmed("confirmation signature never appeared", last).WithCause(lastErr)
}

// nextUnfilled returns the first visible fillable field that has neither
// been attempted nor already carries a value. A radio member whose group
// already has a checked member counts as filled.
func nextUnfilled(snap *entity.FormSnapshot, attempted map[string]bool) *entity.FieldDescriptor {
	for i := range snap.Fields {
		f := &snap.Fields[i]
		if attempted[f.ID] || !f.Fillable() || f.Filled() {
			continue
		}
		if f.Kind == entity.KindRadio && radioGroupChecked(snap, f) {
			continue
		}
		return f
	}
	return nil
}

func radioGroupChecked(snap *entity.FormSnapshot, member *entity.FieldDescriptor) bool {
	if member.Name == "" {
		return false
	}
	for i := range snap.Fields {
		f := &snap.Fields[i]
		if f.Kind == entity.KindRadio && f.Name == member.Name && f.Checked {
			return true
		}
	}
	return false
}

// dispatchFill translates one field kind into the right driver
// interaction. The bool reports whether anything was dispatched; a radio
// member whose value does not match stays untouched without error.
func (s *Session) dispatchFill(ctx context.Context, f *entity.FieldDescriptor, value string) (bool, error) {
	switch f.Kind {
	case entity.KindCheckbox:
		if !truthy(value, f.Value) {
			return false, nil
		}
		return true, s.driver.DispatchClick(ctx, f.Target)
	case entity.KindRadio:
		if value != f.Value && value != f.Label {
			return false, nil
		}
		return true, s.driver.DispatchClick(ctx, f.Target)
	case entity.KindSelectSingle, entity.KindSelectMulti:
		opt, ok := f.Options.Find(value)
		if !ok {
			return false, fmt.Errorf("%q is not among the %d options of %s", value, len(f.Options.Options), f.ID)
		}
		return true, s.driver.SetValue(ctx, f.Target, opt.Value)
	case entity.KindChoiceCustom:
		return s.fillCustomChoice(ctx, f, value)
	default:
		return true, s.driver.SetValue(ctx, f.Target, value)
	}
}

// fillCustomChoice clicks through the widget when its options resolved,
// falling back to the hidden carrier when the widget cannot be driven.
func (s *Session) fillCustomChoice(ctx context.Context, f *entity.FieldDescriptor, value string) (bool, error) {
	if f.Options != nil && f.Options.State == entity.OptionsResolved {
		opt, ok := f.Options.Find(value)
		if !ok {
			return false, fmt.Errorf("%q is not among the options of %s", value, f.ID)
		}
		err := s.resolver.Select(ctx, f, opt.Value)
		if err == nil {
			return true, nil
		}
		if isTeardown(err) || f.CarrierTarget == "" {
			return false, err
		}
		s.log.Warn("option click failed, falling back to carrier", "field", f.ID, "error", err.Error())
	}
	if f.CarrierTarget == "" {
		return false, fmt.Errorf("no resolved options and no carrier for %s", f.ID)
	}
	return true, s.driver.SetValue(ctx, f.CarrierTarget, value)
}

// truthy interprets a provider value for a toggle: the declared control
// value matches, as do the usual affirmative spellings.
func truthy(value, declared string) bool {
	if declared != "" && value == declared {
		return true
	}
	switch strings.ToLower(value) {
	case "true", "yes", "on", "1", "checked":
		return true
	}
	return false
}

func isTeardown(err error) bool {
	return errors.Is(err, output.ErrDriverClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
