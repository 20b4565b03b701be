// Package fake implements the Driver seam against an in-memory document,
// so the engine is testable without a browser. Behavior is scripted:
// tests register click and value handlers and time-delayed mutations, and
// the driver records every dispatched interaction for assertions.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"formscout/internal/application/port/output"
	"formscout/internal/dom"
)

var (
	_ output.Driver        = (*Driver)(nil)
	_ output.Navigator     = (*Driver)(nil)
	_ output.Screenshotter = (*Driver)(nil)
)

// SetCall records one SetValue dispatch.
type SetCall struct {
	Target string
	Value  string
}

type stage struct {
	due time.Time
	fn  func(Script)
}

// Driver is the scripted in-memory driver.
type Driver struct {
	mu       sync.Mutex
	markup   string
	location string
	stages   []stage
	onClick  map[string]func(Script)
	onSet    map[string]func(Script, string)
	clicks   []string
	sets     []SetCall
	closed   bool
}

// Option configures a new driver.
type Option func(*Driver)

// WithLocation sets the initial location.
func WithLocation(url string) Option {
	return func(d *Driver) { d.location = url }
}

// New builds a driver serving the given markup. The markup is normalized
// through one parse/render round so later mutations compare cleanly.
func New(markup string, opts ...Option) *Driver {
	d := &Driver{
		location: "about:blank",
		onClick:  map[string]func(Script){},
		onSet:    map[string]func(Script, string){},
	}
	doc, err := dom.Parse(markup)
	if err == nil {
		d.markup = dom.Render(doc.Root())
	} else {
		d.markup = markup
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReadStructure returns the current markup, applying any mutation whose
// time has come first.
func (d *Driver) ReadStructure(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", fmt.Errorf("read structure: %w", output.ErrDriverClosed)
	}
	d.applyDueStages()
	return d.markup, nil
}

// DispatchClick records the click, applies native toggle behavior for
// radio and checkbox targets, then runs the registered handler.
func (d *Driver) DispatchClick(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("dispatch click: %w", output.ErrDriverClosed)
	}
	d.applyDueStages()
	d.clicks = append(d.clicks, target)

	doc, err := dom.Parse(d.markup)
	if err != nil {
		return fmt.Errorf("dispatch click: %w", err)
	}
	n := doc.Find(target)
	if n == nil {
		return fmt.Errorf("dispatch click: target not found: %s", target)
	}
	if n.Data == "input" {
		switch strings.ToLower(dom.Attr(n, "type")) {
		case "radio":
			name := dom.Attr(n, "name")
			dom.Walk(doc.Root(), func(c *html.Node) bool {
				if c.Data == "input" && dom.Attr(c, "name") == name {
					removeAttr(c, "checked")
				}
				return true
			})
			setAttr(n, "checked", "")
		case "checkbox":
			if dom.HasAttr(n, "checked") {
				removeAttr(n, "checked")
			} else {
				setAttr(n, "checked", "")
			}
		}
		d.markup = dom.Render(doc.Root())
	}

	if handler := d.onClick[target]; handler != nil {
		handler(Script{d: d})
	}
	return nil
}

// SetValue records the dispatch and mutates the target's value the way a
// browser would reflect it structurally, then runs the registered handler.
func (d *Driver) SetValue(ctx context.Context, target, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("set value: %w", output.ErrDriverClosed)
	}
	d.applyDueStages()
	d.sets = append(d.sets, SetCall{Target: target, Value: value})

	doc, err := dom.Parse(d.markup)
	if err != nil {
		return fmt.Errorf("set value: %w", err)
	}
	n := doc.Find(target)
	if n == nil {
		return fmt.Errorf("set value: target not found: %s", target)
	}
	switch n.Data {
	case "select":
		matched := false
		dom.Walk(n, func(opt *html.Node) bool {
			if opt.Data != "option" {
				return true
			}
			optValue := dom.Attr(opt, "value")
			if optValue == "" {
				optValue = strings.TrimSpace(dom.Text(opt))
			}
			if optValue == value {
				setAttr(opt, "selected", "")
				matched = true
			} else {
				removeAttr(opt, "selected")
			}
			return true
		})
		if !matched {
			return fmt.Errorf("set value: select %s has no option %q", target, value)
		}
		setAttr(n, "value", value)
	default:
		setAttr(n, "value", value)
	}
	d.markup = dom.Render(doc.Root())

	if handler := d.onSet[target]; handler != nil {
		handler(Script{d: d}, value)
	}
	return nil
}

// CurrentLocation returns the scripted location.
func (d *Driver) CurrentLocation() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location
}

// Navigate swaps the location without changing the markup; tests that
// need a new page swap markup through a handler or SetPage.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("navigate: %w", output.ErrDriverClosed)
	}
	d.location = url
	return nil
}

// Screenshot returns a minimal valid PNG (1x1 transparent pixel).
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// Close marks the driver dead; every later call fails with
// output.ErrDriverClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// OnClick registers a handler run after a click on target.
func (d *Driver) OnClick(target string, fn func(Script)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClick[target] = fn
}

// OnSet registers a handler run after a SetValue on target.
func (d *Driver) OnSet(target string, fn func(Script, string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSet[target] = fn
}

// After schedules a mutation to apply on the first interaction at or
// beyond the delay. No goroutine runs; due stages apply lazily, which
// keeps tests deterministic.
func (d *Driver) After(delay time.Duration, fn func(Script)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stages = append(d.stages, stage{due: time.Now().Add(delay), fn: fn})
}

// SetPage swaps markup and location in one step, as a navigation would.
func (d *Driver) SetPage(url, markup string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	Script{d: d}.SetPage(url, markup)
}

// Clicks returns the recorded click targets in dispatch order.
func (d *Driver) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.clicks))
	copy(out, d.clicks)
	return out
}

// Sets returns the recorded SetValue dispatches in order.
func (d *Driver) Sets() []SetCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SetCall, len(d.sets))
	copy(out, d.sets)
	return out
}

// ClickCount reports how often a target was clicked.
func (d *Driver) ClickCount(target string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, c := range d.clicks {
		if c == target {
			count++
		}
	}
	return count
}

// applyDueStages runs every scheduled mutation whose time has passed.
// Callers hold the lock.
func (d *Driver) applyDueStages() {
	now := time.Now()
	remaining := d.stages[:0]
	for _, st := range d.stages {
		if now.Before(st.due) {
			remaining = append(remaining, st)
			continue
		}
		st.fn(Script{d: d})
	}
	d.stages = remaining
}

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Script is the mutable document view handlers receive. It operates with
// the driver lock already held, so handlers must not call the Driver's
// public methods.
type Script struct {
	d *Driver
}

// SetMarkup replaces the whole document.
func (s Script) SetMarkup(markup string) {
	doc, err := dom.Parse(markup)
	if err != nil {
		s.d.markup = markup
		return
	}
	s.d.markup = dom.Render(doc.Root())
}

// SetPage swaps markup and location together.
func (s Script) SetPage(url, markup string) {
	s.SetMarkup(markup)
	s.d.location = url
}

// SetLocation changes only the location.
func (s Script) SetLocation(url string) {
	s.d.location = url
}

// After schedules a further delayed mutation.
func (s Script) After(delay time.Duration, fn func(Script)) {
	s.d.stages = append(s.d.stages, stage{due: time.Now().Add(delay), fn: fn})
}

// Show removes the hidden attribute from the located element.
func (s Script) Show(locator string) {
	s.edit(locator, func(n *html.Node) { removeAttr(n, "hidden") })
}

// Hide sets the hidden attribute on the located element.
func (s Script) Hide(locator string) {
	s.edit(locator, func(n *html.Node) { setAttr(n, "hidden", "") })
}

// SetAttr sets an attribute on the located element.
func (s Script) SetAttr(locator, key, value string) {
	s.edit(locator, func(n *html.Node) { setAttr(n, key, value) })
}

// RemoveAttr drops an attribute from the located element.
func (s Script) RemoveAttr(locator, key string) {
	s.edit(locator, func(n *html.Node) { removeAttr(n, key) })
}

// Remove deletes the located element from the document.
func (s Script) Remove(locator string) {
	s.edit(locator, func(n *html.Node) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	})
}

// AppendToBody parses the fragment and appends it to body, the way a
// portal renders an overlay.
func (s Script) AppendToBody(fragment string) {
	doc, err := dom.Parse(s.d.markup)
	if err != nil {
		return
	}
	body := doc.Body()
	if body == nil {
		return
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	s.d.markup = dom.Render(doc.Root())
}

func (s Script) edit(locator string, fn func(*html.Node)) {
	doc, err := dom.Parse(s.d.markup)
	if err != nil {
		return
	}
	n := doc.Find(locator)
	if n == nil {
		return
	}
	fn(n)
	s.d.markup = dom.Render(doc.Root())
}
