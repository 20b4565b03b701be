// Package di assembles the process's dependency graph: logger, browser
// driver, profiles and the form session, torn down in reverse order.
package di

import (
	"fmt"
	"time"

	"formscout/internal/application/port/output"
	"formscout/internal/infrastructure/applicant"
	"formscout/internal/infrastructure/browser/playwright"
	"formscout/internal/infrastructure/browser/rod"
	"formscout/internal/infrastructure/logger"
	"formscout/internal/session"
	"formscout/internal/siteprofile"
)

// Driver names accepted by Config.Driver.
const (
	DriverRod        = "rod"
	DriverPlaywright = "playwright"
)

type Container struct {
	Logger   output.LoggerPort
	Driver   output.Driver
	Provider output.ValueProvider
	Profile  *siteprofile.Profile
	Session  *session.Session
}

type Config struct {
	Driver          string
	Headless        bool
	SlowMotion      time.Duration
	Timeout         time.Duration
	BrowserBin      string
	NoSandbox       bool
	InstallBrowsers bool

	LogLevel    string
	Development bool

	ProfilePath   string
	ApplicantPath string

	Session session.Config
}

// NewContainer builds the graph. Profiles are loaded before the browser
// launches so a bad path fails fast without spawning a process. An empty
// ApplicantPath yields a provider with no answers: every lookup misses
// and the session records skips, which is all discovery needs.
func NewContainer(cfg Config) (*Container, error) {
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Development})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	profile := siteprofile.Default()
	if cfg.ProfilePath != "" {
		if profile, err = siteprofile.LoadFile(cfg.ProfilePath); err != nil {
			log.Close()
			return nil, fmt.Errorf("load site profile: %w", err)
		}
	}

	var answers applicant.Profile
	if cfg.ApplicantPath != "" {
		if answers, err = applicant.LoadFile(cfg.ApplicantPath); err != nil {
			log.Close()
			return nil, fmt.Errorf("load applicant profile: %w", err)
		}
	}
	provider := applicant.New(answers, log)

	driver, err := newDriver(cfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("create driver: %w", err)
	}

	sess := session.New(driver, provider, profile, log, cfg.Session)

	return &Container{
		Logger:   log,
		Driver:   driver,
		Provider: provider,
		Profile:  profile,
		Session:  sess,
	}, nil
}

func newDriver(cfg Config) (output.Driver, error) {
	switch cfg.Driver {
	case DriverPlaywright:
		pc := playwright.DefaultConfig()
		pc.Headless = cfg.Headless
		pc.SlowMotion = cfg.SlowMotion
		pc.Bin = cfg.BrowserBin
		pc.Install = cfg.InstallBrowsers
		if cfg.Timeout > 0 {
			pc.Timeout = cfg.Timeout
		}
		return playwright.New(pc)
	case DriverRod, "":
		rc := rod.DefaultConfig()
		rc.Headless = cfg.Headless
		rc.SlowMotion = cfg.SlowMotion
		rc.Bin = cfg.BrowserBin
		rc.NoSandbox = cfg.NoSandbox
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		return rod.New(rc)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// Close tears the graph down: the session releases the driver, the
// logger flushes last so teardown stays observable.
func (c *Container) Close() {
	if c.Session != nil {
		c.Session.Close()
	} else if c.Driver != nil {
		c.Driver.Close()
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
