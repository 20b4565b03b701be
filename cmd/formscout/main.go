// Command formscout discovers, fills and submits web application forms
// from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"formscout/internal/di"
	"formscout/internal/infrastructure/env"
	"formscout/internal/session"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "driver",
		Usage:   "Browser driver: rod or playwright",
		Value:   di.DriverRod,
		EnvVars: []string{"FORMSCOUT_DRIVER"},
	},
	&cli.BoolFlag{
		Name:    "headed",
		Usage:   "Show the browser window",
		EnvVars: []string{"FORMSCOUT_HEADED"},
	},
	&cli.StringFlag{
		Name:    "browser-bin",
		Usage:   "Browser binary to launch instead of the auto-detected one",
		EnvVars: []string{"FORMSCOUT_BROWSER_BIN"},
	},
	&cli.BoolFlag{
		Name:    "no-sandbox",
		Usage:   "Disable the browser sandbox (rod only, needed in most containers)",
		EnvVars: []string{"FORMSCOUT_NO_SANDBOX"},
	},
	&cli.BoolFlag{
		Name:    "install-browsers",
		Usage:   "Download Playwright browsers before launching (playwright only)",
		EnvVars: []string{"FORMSCOUT_INSTALL_BROWSERS"},
	},
	&cli.DurationFlag{
		Name:    "slow-motion",
		Usage:   "Delay between browser interactions, e.g. 500ms",
		EnvVars: []string{"FORMSCOUT_SLOW_MOTION"},
	},
	&cli.DurationFlag{
		Name:    "step-timeout",
		Usage:   "Per-interaction driver timeout",
		EnvVars: []string{"FORMSCOUT_STEP_TIMEOUT"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn or error",
		Value:   "info",
		EnvVars: []string{"FORMSCOUT_LOG_LEVEL"},
	},
	&cli.BoolFlag{
		Name:    "dev-log",
		Usage:   "Human-readable console logging instead of JSON",
		EnvVars: []string{"FORMSCOUT_DEV_LOG"},
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "formscout",
		Usage:   "Discover, fill and submit web application forms",
		Version: Version,
		Description: `formscout drives a real browser against an application form: it waits
for the document to settle, classifies every fillable control, resolves
dropdown options (native, ARIA and portal-style widgets), fills answers
from an applicant profile and submits.

Examples:
  # Inventory a form without touching it
  formscout discover https://jobs.example.com/apply/123

  # Fill and submit with an applicant profile, writing report artifacts
  formscout apply --applicant me.yaml --output ./run https://jobs.example.com/apply/123

  # Serve the built-in fixture corpus for local runs
  formscout fixtures --addr :8080`,
		Flags: globalFlags,
		Commands: []*cli.Command{
			discoverCommand,
			applyCommand,
			fixturesCommand,
		},
	}
}

// containerConfig maps the global flags onto the dependency graph config.
// Subcommand contexts resolve app-level flags through their lineage.
// Engine tuning has no flag equivalent and comes from the environment;
// zero values fall through to the engine defaults and any site-profile
// overrides.
func containerConfig(c *cli.Context) di.Config {
	return di.Config{
		Driver:          c.String("driver"),
		Headless:        !c.Bool("headed"),
		SlowMotion:      c.Duration("slow-motion"),
		Timeout:         c.Duration("step-timeout"),
		BrowserBin:      c.String("browser-bin"),
		NoSandbox:       c.Bool("no-sandbox"),
		InstallBrowsers: c.Bool("install-browsers"),
		LogLevel:        c.String("log-level"),
		Development:     c.Bool("dev-log"),
		ProfilePath:     c.String("site-profile"),
		ApplicantPath:   c.String("applicant"),
		Session: session.Config{
			MaxRediscoveries: envs.GetInt("FORMSCOUT_MAX_REDISCOVERIES", 0),
			RetryAttempts:    envs.GetInt("FORMSCOUT_RETRY_ATTEMPTS", 0),
			SettleTimeout:    envs.GetDuration("FORMSCOUT_SETTLE_TIMEOUT", 0),
			SettleInterval:   envs.GetDuration("FORMSCOUT_SETTLE_INTERVAL", 0),
			SettleQuiet:      envs.GetDuration("FORMSCOUT_SETTLE_QUIET", 0),
			ResolveTimeout:   envs.GetDuration("FORMSCOUT_RESOLVE_TIMEOUT", 0),
			ConfirmTimeout:   envs.GetDuration("FORMSCOUT_CONFIRM_TIMEOUT", 0),
		},
	}
}

var envs *env.Service

func main() {
	// Load .env overlays before flag parsing so EnvVars see them.
	envs = env.New()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
