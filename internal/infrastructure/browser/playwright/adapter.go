// Package playwright drives a browser through the Playwright protocol. It
// mirrors the rod driver's semantics behind the same Driver seam, for
// environments that already carry Playwright browsers.
//
// The playwright client is not context-aware, so contexts are honored at
// call entry and timeouts ride on the page's default timeout.
package playwright

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"formscout/internal/application/port/output"
)

var (
	_ output.Driver        = (*Driver)(nil)
	_ output.Navigator     = (*Driver)(nil)
	_ output.Screenshotter = (*Driver)(nil)
)

const (
	defaultTimeout    = 10 * time.Second
	screenshotQuality = 80
)

// readStructureJS mirrors the rod driver's sync: live input state is
// reflected into attributes before the document is serialized.
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

// setValueJS runs against the located element. Values are assigned through
// the property so hidden carriers are writable too, with the events
// frameworks listen to fired afterwards.
const setValueJS = `(el, value) => {
	el.value = value;
	if (el.tagName.toLowerCase() === "select" && el.value !== value) {
		return false;
	}
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
}`

const elementTypeJS = `el => ((el.type || "") + "").toLowerCase()`

type Driver struct {
	runtime    *pw.Playwright
	browser    pw.Browser
	browserCtx pw.BrowserContext
	page       pw.Page

	mu     sync.Mutex
	closed bool
}

type Config struct {
	Headless   bool
	SlowMotion time.Duration
	Timeout    time.Duration
	// Install runs the Playwright browser installation before starting;
	// off by default since it downloads browsers.
	Install bool
	// Bin points at a specific browser binary; empty uses Playwright's
	// managed Chromium.
	Bin string
}

func DefaultConfig() Config {
	return Config{
		Headless: true,
		Timeout:  defaultTimeout,
	}
}

// New starts the Playwright driver process, launches Chromium and opens
// the page every later call runs against.
func New(cfg Config) (*Driver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	runOpts := &pw.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if cfg.Install {
		if err := pw.Install(runOpts); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	runtime, err := pw.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOpts := pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(cfg.Headless),
	}
	if cfg.SlowMotion > 0 {
		launchOpts.SlowMo = pw.Float(float64(cfg.SlowMotion.Milliseconds()))
	}
	if cfg.Bin != "" {
		launchOpts.ExecutablePath = pw.String(cfg.Bin)
	}

	browser, err := runtime.Chromium.Launch(launchOpts)
	if err != nil {
		_ = runtime.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browserCtx, err := browser.NewContext()
	if err != nil {
		_ = browser.Close()
		_ = runtime.Stop()
		return nil, fmt.Errorf("create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		_ = browserCtx.Close()
		_ = browser.Close()
		_ = runtime.Stop()
		return nil, fmt.Errorf("open page: %w", err)
	}
	page.SetDefaultTimeout(float64(cfg.Timeout.Milliseconds()))

	return &Driver{
		runtime:    runtime,
		browser:    browser,
		browserCtx: browserCtx,
		page:       page,
	}, nil
}

func (d *Driver) alive(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("%s: %w", op, output.ErrDriverClosed)
	}
	return nil
}

// ReadStructure serializes the document with input state synced into
// attributes.
func (d *Driver) ReadStructure(ctx context.Context) (string, error) {
	if err := d.alive(ctx, "read structure"); err != nil {
		return "", err
	}
	result, err := d.page.Evaluate(readStructureJS)
	if err != nil {
		return "", fmt.Errorf("read structure: %w", err)
	}
	markup, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("read structure: unexpected result %T", result)
	}
	return markup, nil
}

// DispatchClick clicks the target.
func (d *Driver) DispatchClick(ctx context.Context, target string) error {
	if err := d.alive(ctx, "dispatch click"); err != nil {
		return err
	}
	if err := d.page.Click(toSelector(target)); err != nil {
		return fmt.Errorf("dispatch click: %s: %w", target, err)
	}
	return nil
}

// SetValue assigns a value to the target control. File inputs get the file
// attached; everything else is assigned through the element property so
// hidden carriers work, then input/change events fire.
func (d *Driver) SetValue(ctx context.Context, target, value string) error {
	if err := d.alive(ctx, "set value"); err != nil {
		return err
	}
	locator := d.page.Locator(toSelector(target))

	typ, err := locator.Evaluate(elementTypeJS, nil)
	if err != nil {
		return fmt.Errorf("set value: %s: %w", target, err)
	}
	if typ == "file" {
		return d.attachFile(locator, target, value)
	}

	result, err := locator.Evaluate(setValueJS, value)
	if err != nil {
		return fmt.Errorf("set value: %s: %w", target, err)
	}
	if ok, _ := result.(bool); !ok {
		return fmt.Errorf("set value: %s has no option %q", target, value)
	}
	return nil
}

func (d *Driver) attachFile(locator pw.Locator, target, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("set value: read file for %s: %w", target, err)
	}
	file := pw.InputFile{
		Name:   filepath.Base(path),
		Buffer: data,
	}
	if err := locator.SetInputFiles([]pw.InputFile{file}); err != nil {
		return fmt.Errorf("set value: attach file to %s: %w", target, err)
	}
	return nil
}

// CurrentLocation returns the page URL, or "" once closed.
func (d *Driver) CurrentLocation() string {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ""
	}
	return d.page.URL()
}

// Navigate loads a URL and waits for the load event.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.alive(ctx, "navigate"); err != nil {
		return err
	}
	if _, err := d.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateLoad,
	}); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Screenshot captures the full page as JPEG.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.alive(ctx, "screenshot"); err != nil {
		return nil, err
	}
	raw, err := d.page.Screenshot(pw.PageScreenshotOptions{
		FullPage: pw.Bool(true),
		Type:     pw.ScreenshotTypeJpeg,
		Quality:  pw.Int(screenshotQuality),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return raw, nil
}

// Close tears the whole stack down: page, context, browser, driver
// process. Idempotent; calls after Close fail with ErrDriverClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.page != nil {
		_ = d.page.Close()
	}
	if d.browserCtx != nil {
		_ = d.browserCtx.Close()
	}
	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.runtime != nil {
		if stopErr := d.runtime.Stop(); err == nil {
			err = stopErr
		}
	}
	return err
}

// toSelector maps the engine's locator grammar onto Playwright selectors:
// structural paths need an explicit xpath engine prefix, CSS passes as is.
func toSelector(target string) string {
	if strings.HasPrefix(target, "/") {
		return "xpath=" + target
	}
	return target
}
