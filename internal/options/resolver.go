// Package options resolves the selectable values of choice fields. Pages
// render dropdowns three ways - native selects, ARIA listboxes, and fully
// custom widgets that mount their list anywhere in the document - so the
// resolver runs a fixed strategy chain instead of a type hierarchy: direct
// read, triggered-local, triggered-portal. Strategies that do not match a
// field's evidence step aside; the first one that yields options wins.
package options

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"formscout/internal/application/port/output"
	"formscout/internal/dom"
	"formscout/internal/domain/entity"
	"formscout/internal/stability"
)

// errNotApplicable signals that a strategy found no evidence for its
// rendering style and the chain should move on.
var errNotApplicable = errors.New("option strategy not applicable")

// closeTarget is where the resolver clicks to dismiss an open overlay.
const closeTarget = "/html/body"

// Config bounds every triggered wait. Zero fields fall back to the
// watcher's defaults.
type Config struct {
	Timeout  time.Duration
	Interval time.Duration
	Quiet    time.Duration
}

// Resolver extracts option sets through the driver seam. It is strictly
// serialized: at most one overlay is open at a time, and opening a second
// while one is tracked open is a usage error.
type Resolver struct {
	driver  output.Driver
	watcher *stability.Watcher
	log     output.LoggerPort
	cfg     Config
	open    string // field ID whose overlay is tracked open
}

// New builds a resolver over the driver and the session's watcher.
func New(driver output.Driver, watcher *stability.Watcher, log output.LoggerPort, cfg Config) *Resolver {
	return &Resolver{driver: driver, watcher: watcher, log: log, cfg: cfg}
}

type resolveContext struct {
	field   *entity.FieldDescriptor
	obs     *stability.Observation // read taken before any open interaction
	trigger *html.Node
}

type strategyFunc struct {
	name string
	run  func(context.Context, *resolveContext) (*entity.OptionSet, error)
}

func (r *Resolver) strategies() []strategyFunc {
	return []strategyFunc{
		{"direct", r.direct},
		{"triggered-local", r.triggeredLocal},
		{"triggered-portal", r.triggeredPortal},
	}
}

// Resolve runs the strategy chain for one choice field. On success the
// returned set is resolved and records which strategy produced it; when
// every applicable strategy fails within its bound, the set comes back
// failed alongside an option_resolution_failed error.
func (r *Resolver) Resolve(ctx context.Context, field *entity.FieldDescriptor) (*entity.OptionSet, error) {
	if !field.Kind.IsChoice() {
		return nil, fmt.Errorf("resolve options: %s is not a choice field", field.ID)
	}
	obs, err := r.watcher.Observe(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve options: %w", err)
	}
	rc := &resolveContext{field: field, obs: obs, trigger: obs.Doc.Find(field.Target)}
	if rc.trigger == nil {
		set := &entity.OptionSet{State: entity.OptionsFailed, Revision: obs.Snapshot.Revision}
		return set, entity.NewOptionResolutionFailed(field.ID,
			fmt.Sprintf("trigger %s not found in document", field.Target), nil)
	}

	var lastErr error
	for _, strat := range r.strategies() {
		set, err := strat.run(ctx, rc)
		switch {
		case errors.Is(err, errNotApplicable):
			continue
		case err != nil:
			if isTeardown(err) || entity.IsCode(err, entity.ErrOverlayAlreadyOpen) {
				return nil, err
			}
			lastErr = err
			r.log.Warn("option strategy failed",
				"field", field.ID, "strategy", strat.name, "error", err.Error())
			continue
		}
		set.State = entity.OptionsResolved
		set.Strategy = strat.name
		r.log.Debug("options resolved",
			"field", field.ID, "strategy", strat.name, "count", len(set.Options))
		return set, nil
	}

	failed := &entity.OptionSet{State: entity.OptionsFailed, Revision: rc.obs.Snapshot.Revision}
	return failed, entity.NewOptionResolutionFailed(field.ID, "no strategy produced options", lastErr)
}

// direct reads options already present in the document: a populated native
// select, or a custom widget whose list is expanded right now. Zero
// interactions are dispatched.
func (r *Resolver) direct(_ context.Context, rc *resolveContext) (*entity.OptionSet, error) {
	switch rc.field.Kind {
	case entity.KindSelectSingle, entity.KindSelectMulti:
		nodes := nativeOptions(rc.trigger)
		if !populated(nodes) {
			return nil, errNotApplicable
		}
		return &entity.OptionSet{Options: optionsOf(nodes), Revision: rc.obs.Snapshot.Revision}, nil
	default:
		list := expandedList(rc.obs.Doc, rc.trigger)
		if list == nil {
			return nil, errNotApplicable
		}
		nodes := containerOptions(list)
		if len(nodes) == 0 {
			return nil, errNotApplicable
		}
		return &entity.OptionSet{Options: optionsOf(nodes), Revision: rc.obs.Snapshot.Revision}, nil
	}
}

// triggeredLocal opens the widget and polls for options inside the list
// container the markup already designates, via aria-controls or a
// list-shaped element in the widget's own subtree. Native selects whose
// options populate lazily fall in here too, with the select itself as the
// container.
func (r *Resolver) triggeredLocal(ctx context.Context, rc *resolveContext) (*entity.OptionSet, error) {
	containerLoc := r.localContainer(rc)
	if containerLoc == "" {
		return nil, errNotApplicable
	}
	native := rc.field.Kind != entity.KindChoiceCustom
	if !native {
		if err := r.trackOpen(rc.field.ID); err != nil {
			return nil, err
		}
	}
	if err := r.driver.DispatchClick(ctx, rc.field.Target); err != nil {
		if !native {
			r.open = ""
		}
		return nil, fmt.Errorf("open %s: %w", rc.field.ID, err)
	}
	obs, err := r.watcher.AwaitSettled(ctx, r.poll(func(o *stability.Observation) bool {
		c := o.Doc.Find(containerLoc)
		if c == nil || !dom.Visible(c) {
			return false
		}
		nodes := containerOptions(c)
		if native {
			nodes = nativeOptions(c)
		}
		return populated(nodes)
	}))
	if err != nil {
		if !native {
			r.resetOpen(ctx)
		}
		return nil, err
	}
	container := obs.Doc.Find(containerLoc)
	var nodes []optionNode
	if native {
		nodes = nativeOptions(container)
	} else {
		nodes = containerOptions(container)
	}
	set := &entity.OptionSet{Options: optionsOf(nodes), Revision: obs.Snapshot.Revision}
	if !native {
		if err := r.dismiss(ctx, containerLoc); err != nil && isTeardown(err) {
			return nil, err
		}
	}
	return set, nil
}

// triggeredPortal opens the widget and scans the whole document for a
// newly appeared option list - one that was not visible and populated
// before the open interaction. Afterwards it clicks outside so the overlay
// cannot contaminate the next field's search.
func (r *Resolver) triggeredPortal(ctx context.Context, rc *resolveContext) (*entity.OptionSet, error) {
	if rc.field.Kind != entity.KindChoiceCustom {
		return nil, errNotApplicable
	}
	baseline := listBaseline(rc.obs.Doc)
	if err := r.trackOpen(rc.field.ID); err != nil {
		return nil, err
	}
	if err := r.driver.DispatchClick(ctx, rc.field.Target); err != nil {
		r.open = ""
		return nil, fmt.Errorf("open %s: %w", rc.field.ID, err)
	}
	obs, err := r.watcher.AwaitSettled(ctx, r.poll(func(o *stability.Observation) bool {
		return findNewList(o.Doc, baseline) != nil
	}))
	if err != nil {
		r.resetOpen(ctx)
		return nil, err
	}
	container := findNewList(obs.Doc, baseline)
	nodes := containerOptions(container)
	set := &entity.OptionSet{Options: optionsOf(nodes), Revision: obs.Snapshot.Revision}
	if err := r.dismiss(ctx, obs.Doc.Locator(container)); err != nil && isTeardown(err) {
		return nil, err
	}
	return set, nil
}

// Select fills a custom choice field by clicking the option matching the
// given value (by value first, label second), opening the widget first if
// it is not already expanded, and closing it afterwards.
func (r *Resolver) Select(ctx context.Context, field *entity.FieldDescriptor, value string) error {
	if field.Kind != entity.KindChoiceCustom {
		return fmt.Errorf("select option: %s is not a custom choice field", field.ID)
	}
	obs, err := r.watcher.Observe(ctx)
	if err != nil {
		return fmt.Errorf("select option: %w", err)
	}
	trigger := obs.Doc.Find(field.Target)
	if trigger == nil {
		return fmt.Errorf("select option: trigger %s not found", field.Target)
	}

	if list := expandedList(obs.Doc, trigger); list != nil {
		node := matchOption(list, value)
		if node == nil {
			return entity.NewOptionResolutionFailed(field.ID,
				fmt.Sprintf("option %q not present in expanded list", value), nil)
		}
		return r.clickAndClose(ctx, dom.Path(node), obs.Doc.Locator(list))
	}

	rc := &resolveContext{field: field, obs: obs, trigger: trigger}
	containerLoc := r.localContainer(rc)
	var baseline map[string]struct{}
	if containerLoc == "" {
		baseline = listBaseline(obs.Doc)
	}
	if err := r.trackOpen(field.ID); err != nil {
		return err
	}
	if err := r.driver.DispatchClick(ctx, field.Target); err != nil {
		r.open = ""
		return fmt.Errorf("open %s: %w", field.ID, err)
	}
	find := func(o *stability.Observation) *html.Node {
		if containerLoc != "" {
			c := o.Doc.Find(containerLoc)
			if c == nil || !dom.Visible(c) {
				return nil
			}
			return matchOption(c, value)
		}
		if list := findNewList(o.Doc, baseline); list != nil {
			return matchOption(list, value)
		}
		return nil
	}
	settled, err := r.watcher.AwaitSettled(ctx, r.poll(func(o *stability.Observation) bool {
		return find(o) != nil
	}))
	if err != nil {
		r.resetOpen(ctx)
		if isTeardown(err) {
			return err
		}
		return entity.NewOptionResolutionFailed(field.ID,
			fmt.Sprintf("option %q never appeared", value), err)
	}
	node := find(settled)
	listLoc := containerLoc
	if listLoc == "" {
		listLoc = settled.Doc.Locator(findNewList(settled.Doc, baseline))
	}
	return r.clickAndClose(ctx, dom.Path(node), listLoc)
}

func (r *Resolver) clickAndClose(ctx context.Context, optionPath, listLoc string) error {
	if err := r.driver.DispatchClick(ctx, optionPath); err != nil {
		return fmt.Errorf("click option: %w", err)
	}
	if err := r.dismiss(ctx, listLoc); err != nil && isTeardown(err) {
		return err
	}
	return nil
}

// trackOpen enforces the one-overlay-at-a-time contract. Re-opening for
// the same field is allowed so a retry can recover a stuck widget.
func (r *Resolver) trackOpen(fieldID string) error {
	if r.open != "" && r.open != fieldID {
		return entity.NewOverlayAlreadyOpen(fieldID)
	}
	r.open = fieldID
	return nil
}

// resetOpen restores a known-closed state after a failed open: best-effort
// click outside, then the tracking slot is freed.
func (r *Resolver) resetOpen(ctx context.Context) {
	_ = r.driver.DispatchClick(ctx, closeTarget)
	r.open = ""
}

// dismiss closes the overlay whose list lives at containerLoc and waits,
// briefly, until it is gone. When the page ignores the close interaction
// the overlay stays tracked open, so the next open surfaces the
// serialization violation instead of reading stale options.
func (r *Resolver) dismiss(ctx context.Context, containerLoc string) error {
	gone := func(o *stability.Observation) bool {
		c := o.Doc.Find(containerLoc)
		return c == nil || !dom.Visible(c) || len(containerOptions(c)) == 0
	}
	if obs, err := r.watcher.Observe(ctx); err == nil && gone(obs) {
		r.open = ""
		return nil
	} else if err != nil && isTeardown(err) {
		return err
	}
	if err := r.driver.DispatchClick(ctx, closeTarget); err != nil {
		return fmt.Errorf("close overlay: %w", err)
	}
	if _, err := r.watcher.AwaitSettled(ctx, stability.Options{
		Timeout:   r.closeBound(),
		Interval:  r.cfg.Interval,
		Quiet:     r.cfg.Quiet,
		Predicate: gone,
	}); err != nil {
		if isTeardown(err) {
			return err
		}
		r.log.Warn("overlay did not close", "container", containerLoc, "error", err.Error())
		return fmt.Errorf("overlay at %s still open after close interaction", containerLoc)
	}
	r.open = ""
	return nil
}

// localContainer returns the locator of the list container the widget
// owns, or "" when the markup designates none and only a portal search can
// find the options.
func (r *Resolver) localContainer(rc *resolveContext) string {
	if rc.field.Kind != entity.KindChoiceCustom {
		// a native select with no real options yet populates in place
		return rc.field.Target
	}
	if c := localListNode(rc.obs.Doc, rc.trigger); c != nil {
		return rc.obs.Doc.Locator(c)
	}
	return ""
}

func (r *Resolver) poll(pred func(*stability.Observation) bool) stability.Options {
	return stability.Options{
		Timeout:   r.cfg.Timeout,
		Interval:  r.cfg.Interval,
		Quiet:     r.cfg.Quiet,
		Predicate: pred,
	}
}

func (r *Resolver) closeBound() time.Duration {
	quiet := r.cfg.Quiet
	if quiet <= 0 {
		quiet = stability.DefaultQuiet
	}
	return 4 * quiet
}

func isTeardown(err error) bool {
	return errors.Is(err, output.ErrDriverClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// listishRe matches the class naming conventions option-list containers
// follow; naming is non-semantic and varies per widget library, so this is
// deliberately a heuristic over a fixed selector.
var listishRe = regexp.MustCompile(`(?i)(?:^|[-_ ])(?:options?|option-list|listbox|menu|results?|choices|dropdown|list|suggestions?)(?:$|[-_ ])`)

// optionishRe matches option entries inside such containers.
var optionishRe = regexp.MustCompile(`(?i)(?:^|[-_ ])(?:option|item|choice|result|entry)(?:$|[-_ ])`)

type optionNode struct {
	node *html.Node
	opt  entity.Option
}

func optionsOf(nodes []optionNode) []entity.Option {
	out := make([]entity.Option, 0, len(nodes))
	for _, on := range nodes {
		out = append(out, on.opt)
	}
	return out
}

// populated distinguishes a real option list from a lone valueless
// placeholder of the "-- choose --" sort that pages keep while the actual
// values load.
func populated(nodes []optionNode) bool {
	if len(nodes) == 0 {
		return false
	}
	if len(nodes) == 1 && nodes[0].opt.Value == "" {
		return false
	}
	return true
}

// nativeOptions reads a select's option elements. Options inside a
// collapsed select count as present; only declared-disabled entries are
// skipped. Values are deduplicated preserving document order.
func nativeOptions(sel *html.Node) []optionNode {
	if sel == nil {
		return nil
	}
	var out []optionNode
	seen := map[string]bool{}
	dom.Walk(sel, func(n *html.Node) bool {
		if n.Data != "option" || optionDisabled(n) {
			return true
		}
		opt := extractOption(n)
		if !seen[opt.Value] {
			seen[opt.Value] = true
			out = append(out, optionNode{node: n, opt: opt})
		}
		return false
	})
	return out
}

// containerOptions reads the visible option entries of a custom list
// container. An option's own subtree is not descended into, so inner
// label spans cannot double-count.
func containerOptions(container *html.Node) []optionNode {
	if container == nil {
		return nil
	}
	var out []optionNode
	seen := map[string]bool{}
	dom.Walk(container, func(n *html.Node) bool {
		if n == container {
			return true
		}
		if !optionish(n) {
			return true
		}
		if !dom.Visible(n) || optionDisabled(n) {
			return false
		}
		opt := extractOption(n)
		if opt.Value == "" && opt.Label == "" {
			return false
		}
		if !seen[opt.Value] {
			seen[opt.Value] = true
			out = append(out, optionNode{node: n, opt: opt})
		}
		return false
	})
	return out
}

func optionish(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if strings.ToLower(dom.Attr(n, "role")) == "option" {
		return true
	}
	if n.Data == "option" || n.Data == "li" {
		return true
	}
	return optionishRe.MatchString(dom.Attr(n, "class"))
}

func optionDisabled(n *html.Node) bool {
	return dom.HasAttr(n, "disabled") || dom.Attr(n, "aria-disabled") == "true"
}

// extractOption prefers the most specific value source available: a
// declared value attribute, then a data-*value* attribute, then the
// trimmed visible text, which also serves as the label throughout.
func extractOption(n *html.Node) entity.Option {
	label := dom.Text(n)
	if dom.HasAttr(n, "value") {
		return entity.Option{Value: dom.Attr(n, "value"), Label: label}
	}
	for _, a := range n.Attr {
		if strings.HasPrefix(a.Key, "data-") && strings.Contains(a.Key, "value") {
			return entity.Option{Value: a.Val, Label: label}
		}
	}
	return entity.Option{Value: label, Label: label}
}

// isListContainer judges whether an element could be an option list:
// explicit role, list tag, or a list-shaped class name on a generic
// container.
func isListContainer(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch strings.ToLower(dom.Attr(n, "role")) {
	case "listbox", "menu":
		return true
	}
	switch n.Data {
	case "ul", "ol", "datalist":
		return true
	case "div", "span", "section", "nav":
		return listishRe.MatchString(dom.Attr(n, "class"))
	}
	return false
}

// localListNode finds the list container a trigger owns: an
// aria-controls/aria-owns reference first, then a list-shaped element in
// the widget's immediate container chain.
func localListNode(doc *dom.Document, trigger *html.Node) *html.Node {
	for _, key := range [...]string{"aria-controls", "aria-owns"} {
		for _, id := range strings.Fields(dom.Attr(trigger, key)) {
			if c := doc.ByID(id); c != nil && c.Data != "input" {
				return c
			}
		}
	}
	scope := trigger
	for depth := 0; depth < 3 && scope.Parent != nil; depth++ {
		scope = scope.Parent
		if scope.Type != html.ElementNode || scope.Data == "form" || scope.Data == "body" {
			break
		}
		if c := listContainerIn(scope, trigger); c != nil {
			return c
		}
	}
	return nil
}

func listContainerIn(scope, exclude *html.Node) *html.Node {
	var found *html.Node
	dom.Walk(scope, func(n *html.Node) bool {
		if found != nil || n == exclude {
			return false
		}
		if n != scope && isListContainer(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// expandedList returns the widget's list when it is open right now: the
// trigger is itself a listbox, or its designated container is visible and
// populated.
func expandedList(doc *dom.Document, trigger *html.Node) *html.Node {
	if strings.ToLower(dom.Attr(trigger, "role")) == "listbox" && dom.Visible(trigger) {
		if len(containerOptions(trigger)) > 0 {
			return trigger
		}
	}
	c := localListNode(doc, trigger)
	if c != nil && dom.Visible(c) && len(containerOptions(c)) > 0 {
		return c
	}
	return nil
}

// listBaseline records which option lists are already visible and
// populated, so a triggered-portal search can tell a newly appeared list
// from leftovers.
func listBaseline(doc *dom.Document) map[string]struct{} {
	paths := map[string]struct{}{}
	dom.Walk(doc.Root(), func(n *html.Node) bool {
		if isListContainer(n) && dom.Visible(n) && len(containerOptions(n)) > 0 {
			paths[dom.Path(n)] = struct{}{}
		}
		return true
	})
	return paths
}

// findNewList returns the first visible, populated option list that was
// not in the baseline, anywhere in the document.
func findNewList(doc *dom.Document, baseline map[string]struct{}) *html.Node {
	var found *html.Node
	dom.Walk(doc.Root(), func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if !isListContainer(n) || !dom.Visible(n) || len(containerOptions(n)) == 0 {
			return true
		}
		if _, existed := baseline[dom.Path(n)]; existed {
			return true
		}
		found = n
		return false
	})
	return found
}

func matchOption(container *html.Node, value string) *html.Node {
	nodes := containerOptions(container)
	for _, on := range nodes {
		if on.opt.Value == value {
			return on.node
		}
	}
	for _, on := range nodes {
		if on.opt.Label == value {
			return on.node
		}
	}
	return nil
}
