package options

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"formscout/internal/application/port/output"
	"formscout/internal/discovery"
	"formscout/internal/dom"
	"formscout/internal/domain/entity"
	"formscout/internal/infrastructure/browser/fake"
	"formscout/internal/infrastructure/logger"
	"formscout/internal/stability"
)

func newTestResolver(d *fake.Driver, cfg Config) *Resolver {
	var rev uint64
	probe := func(ctx context.Context) (*stability.Observation, error) {
		markup, err := d.ReadStructure(ctx)
		if err != nil {
			return nil, err
		}
		doc, err := dom.Parse(markup)
		if err != nil {
			return nil, err
		}
		rev++
		snap := discovery.Capture(doc, discovery.CaptureOptions{
			Revision: rev,
			Location: d.CurrentLocation(),
		})
		return &stability.Observation{Doc: doc, Snapshot: snap, Location: d.CurrentLocation()}, nil
	}
	watcher := stability.New(probe, logger.NewNop(), stability.Options{
		Timeout:  cfg.Timeout,
		Interval: cfg.Interval,
		Quiet:    cfg.Quiet,
	})
	return New(d, watcher, logger.NewNop(), cfg)
}

func fastConfig() Config {
	return Config{Timeout: 2 * time.Second, Interval: 5 * time.Millisecond, Quiet: 15 * time.Millisecond}
}

func choiceField(id, target string) *entity.FieldDescriptor {
	return &entity.FieldDescriptor{ID: id, Kind: entity.KindChoiceCustom, Target: target, Visible: true}
}

func TestDirectNativeSelect(t *testing.T) {
	d := fake.New(`<html><body><form>
<select name="country">
<option value="">Choose</option>
<option value="us">United States</option>
<option value="de">Germany</option>
<option value="us">United States again</option>
</select>
</form></body></html>`)
	r := newTestResolver(d, fastConfig())

	field := &entity.FieldDescriptor{ID: "country", Kind: entity.KindSelectSingle, Target: `[name="country"]`, Visible: true}
	set, err := r.Resolve(context.Background(), field)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.State != entity.OptionsResolved {
		t.Errorf("state = %s", set.State)
	}
	if set.Strategy != "direct" {
		t.Errorf("strategy = %q", set.Strategy)
	}
	want := []string{"", "us", "de"}
	got := set.Values()
	if len(got) != len(want) {
		t.Fatalf("values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("values[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if len(d.Clicks()) != 0 {
		t.Errorf("direct resolution dispatched clicks: %v", d.Clicks())
	}
}

func TestDirectExpandedListbox(t *testing.T) {
	d := fake.New(`<html><body>
<div id="color-list" role="listbox">
<div role="option" data-value="red">Red</div>
<div role="option" data-value="blue">Blue</div>
</div>
</body></html>`)
	r := newTestResolver(d, fastConfig())

	set, err := r.Resolve(context.Background(), choiceField("color", "#color-list"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Strategy != "direct" {
		t.Errorf("strategy = %q", set.Strategy)
	}
	if got := set.Values(); len(got) != 2 || got[0] != "red" || got[1] != "blue" {
		t.Errorf("values = %v", got)
	}
	if len(d.Clicks()) != 0 {
		t.Errorf("direct resolution dispatched clicks: %v", d.Clicks())
	}
}

const localWidgetClosed = `<html><body>
<div class="widget">
<button id="fruit-btn" class="select-trigger" aria-controls="fruit-list">Pick fruit</button>
<ul id="fruit-list" hidden></ul>
<input type="hidden" name="fruit" value="">
</div>
</body></html>`

const localWidgetOpen = `<html><body>
<div class="widget">
<button id="fruit-btn" class="select-trigger" aria-controls="fruit-list">Pick fruit</button>
<ul id="fruit-list">
<li data-value="apple">Apple</li>
<li data-value="kiwi">Kiwi</li>
</ul>
<input type="hidden" name="fruit" value="">
</div>
</body></html>`

func TestTriggeredLocalWaitsForOptions(t *testing.T) {
	const delay = 30 * time.Millisecond
	d := fake.New(localWidgetClosed)
	d.OnClick("#fruit-btn", func(s fake.Script) {
		s.After(delay, func(s2 fake.Script) { s2.SetMarkup(localWidgetOpen) })
	})
	d.OnClick("/html/body", func(s fake.Script) { s.SetMarkup(localWidgetClosed) })
	r := newTestResolver(d, fastConfig())

	start := time.Now()
	set, err := r.Resolve(context.Background(), choiceField("fruit", "#fruit-btn"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("resolved in %s, before the %s render delay", elapsed, delay)
	}
	if set.Strategy != "triggered-local" {
		t.Errorf("strategy = %q", set.Strategy)
	}
	if got := set.Values(); len(got) != 2 || got[0] != "apple" || got[1] != "kiwi" {
		t.Errorf("values = %v", got)
	}
	if n := d.ClickCount("#fruit-btn"); n != 1 {
		t.Errorf("trigger clicked %d times", n)
	}
	if n := d.ClickCount("/html/body"); n != 1 {
		t.Errorf("close dispatched %d times", n)
	}
}

const portalPage = `<html><body>
<form>
<button id="city-btn" class="custom-dropdown">City</button>
<input type="hidden" name="city" value="">
<button id="state-btn" class="custom-dropdown">State</button>
<input type="hidden" name="state" value="">
</form>
</body></html>`

func TestTriggeredPortalWithDelay(t *testing.T) {
	const delay = 60 * time.Millisecond
	d := fake.New(portalPage)
	d.OnClick("#city-btn", func(s fake.Script) {
		s.After(delay, func(s2 fake.Script) {
			s2.AppendToBody(`<div class="select-menu"><div class="menu-item" data-value="berlin">Berlin</div><div class="menu-item" data-value="tokyo">Tokyo</div></div>`)
		})
	})
	d.OnClick("#state-btn", func(s fake.Script) {
		s.After(20*time.Millisecond, func(s2 fake.Script) {
			s2.AppendToBody(`<div class="select-menu"><div class="menu-item" data-value="ca">California</div><div class="menu-item" data-value="ny">New York</div></div>`)
		})
	})
	d.OnClick("/html/body", func(s fake.Script) { s.SetMarkup(portalPage) })
	r := newTestResolver(d, fastConfig())

	start := time.Now()
	set, err := r.Resolve(context.Background(), choiceField("city", "#city-btn"))
	if err != nil {
		t.Fatalf("Resolve city: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("resolved in %s, before the %s portal delay", elapsed, delay)
	}
	if set.Strategy != "triggered-portal" {
		t.Errorf("strategy = %q", set.Strategy)
	}
	if got := set.Values(); len(got) != 2 || got[0] != "berlin" || got[1] != "tokyo" {
		t.Errorf("city values = %v", got)
	}

	// The second dropdown must not see the first one's options.
	set2, err := r.Resolve(context.Background(), choiceField("state", "#state-btn"))
	if err != nil {
		t.Fatalf("Resolve state: %v", err)
	}
	if got := set2.Values(); len(got) != 2 || got[0] != "ca" || got[1] != "ny" {
		t.Errorf("state values = %v, stale options leaked", got)
	}
}

func TestStuckOverlayBlocksNextOpen(t *testing.T) {
	d := fake.New(portalPage)
	d.OnClick("#city-btn", func(s fake.Script) {
		s.AppendToBody(`<div class="select-menu"><div class="menu-item" data-value="berlin">Berlin</div></div>`)
	})
	// No body handler: the overlay ignores the close interaction.
	cfg := Config{Timeout: 500 * time.Millisecond, Interval: 5 * time.Millisecond, Quiet: 5 * time.Millisecond}
	r := newTestResolver(d, cfg)

	set, err := r.Resolve(context.Background(), choiceField("city", "#city-btn"))
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if set.State != entity.OptionsResolved {
		t.Fatalf("first set state = %s", set.State)
	}

	_, err = r.Resolve(context.Background(), choiceField("state", "#state-btn"))
	if !entity.IsCode(err, entity.ErrOverlayAlreadyOpen) {
		t.Errorf("second Resolve = %v, want overlay_already_open", err)
	}
}

func TestResolutionFailsWithinBound(t *testing.T) {
	d := fake.New(portalPage)
	cfg := Config{Timeout: 60 * time.Millisecond, Interval: 5 * time.Millisecond, Quiet: 10 * time.Millisecond}
	r := newTestResolver(d, cfg)

	start := time.Now()
	set, err := r.Resolve(context.Background(), choiceField("city", "#city-btn"))
	if !entity.IsCode(err, entity.ErrOptionResolutionFailed) {
		t.Errorf("err = %v, want option_resolution_failed", err)
	}
	if set == nil || set.State != entity.OptionsFailed {
		t.Errorf("set = %+v, want failed state", set)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("failure took %s, bound not honored", elapsed)
	}
}

func TestSelectClicksMatchingOption(t *testing.T) {
	page := `<html><body><form><button id="lang-btn" class="custom-dropdown">Language</button><input type="hidden" name="lang" value=""></form></body></html>`
	d := fake.New(page)
	d.OnClick("#lang-btn", func(s fake.Script) {
		s.AppendToBody(`<div class="select-menu"><div class="menu-item" data-value="de">Deutsch</div><div class="menu-item" data-value="en">English</div></div>`)
	})
	// The appended menu is the body's first div; picking an option commits
	// the value to the carrier and unmounts the menu.
	d.OnClick("/html/body/div[1]/div[2]", func(s fake.Script) {
		s.SetAttr(`[name="lang"]`, "value", "en")
		s.Remove("/html/body/div[1]")
	})
	r := newTestResolver(d, fastConfig())

	field := choiceField("lang", "#lang-btn")
	field.CarrierTarget = `[name="lang"]`
	if err := r.Select(context.Background(), field, "en"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	markup, _ := d.ReadStructure(context.Background())
	if !strings.Contains(markup, `name="lang" value="en"`) {
		t.Errorf("carrier not committed: %s", markup)
	}
	if n := d.ClickCount("#lang-btn"); n != 1 {
		t.Errorf("trigger clicked %d times", n)
	}
	if n := d.ClickCount("/html/body/div[1]/div[2]"); n != 1 {
		t.Errorf("option clicked %d times", n)
	}
	if n := d.ClickCount("/html/body"); n != 0 {
		t.Errorf("close dispatched %d times for a self-closing widget", n)
	}
}

func TestSelectOnAlreadyExpandedList(t *testing.T) {
	d := fake.New(`<html><body>
<div class="widget">
<button id="size-btn" aria-expanded="true" aria-controls="size-list">Size</button>
<ul id="size-list">
<li data-value="s">Small</li>
<li data-value="m">Medium</li>
</ul>
<input type="hidden" name="size" value="">
</div>
</body></html>`)
	d.OnClick("/html/body/div[1]/ul[1]/li[2]", func(s fake.Script) {
		s.SetAttr(`[name="size"]`, "value", "m")
		s.Hide("#size-list")
	})
	r := newTestResolver(d, fastConfig())

	if err := r.Select(context.Background(), choiceField("size", "#size-btn"), "m"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if n := d.ClickCount("#size-btn"); n != 0 {
		t.Errorf("trigger clicked %d times for an already expanded list", n)
	}
	if n := d.ClickCount("/html/body/div[1]/ul[1]/li[2]"); n != 1 {
		t.Errorf("option clicked %d times", n)
	}
	markup, _ := d.ReadStructure(context.Background())
	if !strings.Contains(markup, `name="size" value="m"`) {
		t.Errorf("carrier not committed: %s", markup)
	}
}

func TestSelectByLabel(t *testing.T) {
	d := fake.New(`<html><body>
<div class="widget">
<button id="team-btn" aria-expanded="true" aria-controls="team-list">Team</button>
<ul id="team-list">
<li data-value="eng">Engineering</li>
<li data-value="ops">Operations</li>
</ul>
</div>
</body></html>`)
	d.OnClick("/html/body/div[1]/ul[1]/li[1]", func(s fake.Script) {
		s.Hide("#team-list")
	})
	r := newTestResolver(d, fastConfig())

	if err := r.Select(context.Background(), choiceField("team", "#team-btn"), "Engineering"); err != nil {
		t.Fatalf("Select by label: %v", err)
	}
	if n := d.ClickCount("/html/body/div[1]/ul[1]/li[1]"); n != 1 {
		t.Errorf("labeled option clicked %d times", n)
	}
}

func TestResolveAfterDriverClosed(t *testing.T) {
	d := fake.New(portalPage)
	r := newTestResolver(d, fastConfig())
	_ = d.Close()

	_, err := r.Resolve(context.Background(), choiceField("city", "#city-btn"))
	if !errors.Is(err, output.ErrDriverClosed) {
		t.Errorf("err = %v, want ErrDriverClosed", err)
	}
}

func TestResolveRejectsNonChoiceField(t *testing.T) {
	d := fake.New(portalPage)
	r := newTestResolver(d, fastConfig())

	field := &entity.FieldDescriptor{ID: "first", Kind: entity.KindText, Target: `[name="first"]`}
	if _, err := r.Resolve(context.Background(), field); err == nil {
		t.Error("expected error for non-choice field")
	}
}
