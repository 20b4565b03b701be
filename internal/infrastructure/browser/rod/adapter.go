// Package rod drives a real Chromium through the go-rod CDP client. It
// implements the engine's Driver seam: structure reads serialize the live
// DOM with input state reflected into attributes, interactions dispatch
// through CDP, and settling is left to the engine's own polling.
package rod

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"formscout/internal/application/port/output"
)

var (
	_ output.Driver        = (*Driver)(nil)
	_ output.Navigator     = (*Driver)(nil)
	_ output.Screenshotter = (*Driver)(nil)
)

const (
	defaultTimeout    = 10 * time.Second
	loadIdleWait      = 5 * time.Second
	screenshotQuality = 80
)

// readStructureJS reflects live input state back into attributes before
// serializing, since the engine reads markup, not DOM properties. File
// inputs are left alone; their value is a fakepath the engine never uses.
const readStructureJS = `() => {
	for (const el of document.querySelectorAll("input, textarea, select")) {
		const tag = el.tagName.toLowerCase();
		if (tag === "select") {
			for (const opt of el.options) {
				if (opt.selected) opt.setAttribute("selected", "");
				else opt.removeAttribute("selected");
			}
			el.setAttribute("value", el.value);
		} else if (el.type === "checkbox" || el.type === "radio") {
			if (el.checked) el.setAttribute("checked", "");
			else el.removeAttribute("checked");
		} else if (el.type !== "file") {
			el.setAttribute("value", el.value);
		}
	}
	return document.documentElement.outerHTML;
}`

// setValueJS assigns the value and fires the events frameworks listen to.
// For selects the assignment only sticks when an option matches, which is
// how a missing option is detected.
const setValueJS = `(value) => {
	this.value = value;
	if (this.tagName.toLowerCase() === "select" && this.value !== value) {
		return false;
	}
	this.dispatchEvent(new Event("input", { bubbles: true }));
	this.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
}`

const elementTypeJS = `() => ((this.type || "") + "").toLowerCase()`

type Driver struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
}

type Config struct {
	Headless   bool
	SlowMotion time.Duration
	Timeout    time.Duration
	NoSandbox  bool
	DevTools   bool
	Trace      bool
	// Bin points at a specific browser binary; empty lets the launcher
	// find or download one.
	Bin string
}

func DefaultConfig() Config {
	return Config{
		Headless: true,
		Timeout:  defaultTimeout,
	}
}

// New launches a browser and opens the blank page every later call runs
// against. The launcher owns the process; Close kills it.
func New(cfg Config) (*Driver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Devtools(cfg.DevTools)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.NoSandbox {
		l = l.NoSandbox(true).Set("disable-setuid-sandbox")
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(url).
		Trace(cfg.Trace).
		SlowMotion(cfg.SlowMotion)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}

	return &Driver{
		browser:  browser,
		launcher: l,
		page:     page,
		timeout:  cfg.Timeout,
	}, nil
}

// IsReady reports whether the driver can still serve calls.
func (d *Driver) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed && d.page != nil
}

func (d *Driver) alive(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("%s: %w", op, output.ErrDriverClosed)
	}
	return nil
}

// ReadStructure serializes the document with input state synced into
// attributes, so the returned markup carries current values, checked
// toggles and selected options.
func (d *Driver) ReadStructure(ctx context.Context) (string, error) {
	if err := d.alive("read structure"); err != nil {
		return "", err
	}
	obj, err := d.page.Context(ctx).Eval(readStructureJS)
	if err != nil {
		return "", fmt.Errorf("read structure: %w", err)
	}
	return obj.Value.Str(), nil
}

// DispatchClick clicks the target. Any settling the click triggers is the
// engine's business, observed through ReadStructure polling.
func (d *Driver) DispatchClick(ctx context.Context, target string) error {
	if err := d.alive("dispatch click"); err != nil {
		return err
	}
	el, err := d.element(ctx, target)
	if err != nil {
		return fmt.Errorf("dispatch click: %s: %w", target, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("dispatch click: %s: %w", target, err)
	}
	return nil
}

// SetValue assigns a value to the target control. File inputs get the
// value attached as a file through CDP; selects reject values no option
// carries; everything else takes the value plus input/change events.
func (d *Driver) SetValue(ctx context.Context, target, value string) error {
	if err := d.alive("set value"); err != nil {
		return err
	}
	el, err := d.element(ctx, target)
	if err != nil {
		return fmt.Errorf("set value: %s: %w", target, err)
	}

	typ, err := el.Eval(elementTypeJS)
	if err != nil {
		return fmt.Errorf("set value: %s: %w", target, err)
	}
	if typ.Value.Str() == "file" {
		if err := el.SetFiles([]string{value}); err != nil {
			return fmt.Errorf("set value: attach file to %s: %w", target, err)
		}
		return nil
	}

	res, err := el.Eval(setValueJS, value)
	if err != nil {
		return fmt.Errorf("set value: %s: %w", target, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("set value: %s has no option %q", target, value)
	}
	return nil
}

// CurrentLocation returns the page URL, or "" when the page is gone.
func (d *Driver) CurrentLocation() string {
	if err := d.alive("current location"); err != nil {
		return ""
	}
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Navigate loads a URL and waits for the load event plus a bounded idle
// window, the one wait the engine delegates to the browser.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.alive("navigate"); err != nil {
		return err
	}
	page := d.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	page.WaitIdle(loadIdleWait)
	return nil
}

// Screenshot captures the full page as JPEG.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.alive("screenshot"); err != nil {
		return nil, err
	}
	raw, err := d.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(screenshotQuality),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return raw, nil
}

// Close shuts the browser down and kills the launched process. Idempotent;
// calls after Close fail with ErrDriverClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
	return err
}

// element resolves a locator: structural paths go through XPath, the rest
// through CSS.
func (d *Driver) element(ctx context.Context, target string) (*rod.Element, error) {
	page := d.page.Context(ctx).Timeout(d.timeout)
	if isStructuralPath(target) {
		return page.ElementX(target)
	}
	return page.Element(target)
}

func isStructuralPath(target string) bool {
	return strings.HasPrefix(target, "/")
}
