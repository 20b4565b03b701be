package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"formscout/internal/di"
	"formscout/internal/report"
)

var applyCommand = &cli.Command{
	Name:      "apply",
	Usage:     "Discover, fill and submit a form end to end",
	ArgsUsage: "<url>",
	Description: `Run a complete application attempt: discover the fields, fill them from
the applicant profile, advance through multi-page flows and submit on
the last page. Report artifacts (report.json, report.html and a final
screenshot) land in the output directory whatever the outcome.

Examples:
  formscout apply --applicant me.yaml https://jobs.example.com/apply/123
  formscout apply --applicant me.yaml --site-profile greenhouse.yaml --output ./run <url>`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "applicant",
			Aliases: []string{"a"},
			Usage:   "Applicant profile YAML with the answers to fill",
			EnvVars: []string{"FORMSCOUT_APPLICANT"},
		},
		&cli.StringFlag{
			Name:    "site-profile",
			Usage:   "Site profile YAML with selectors, timeouts and dependency rules",
			EnvVars: []string{"FORMSCOUT_SITE_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Directory for report artifacts",
			Value:   "reports",
		},
		&cli.IntFlag{
			Name:  "max-pages",
			Usage: "Abort after this many pages (0 = engine default)",
		},
		&cli.BoolFlag{
			Name:  "screenshot",
			Usage: "Capture the final document state into the report",
			Value: true,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Overall deadline for the attempt",
			Value: 10 * time.Minute,
		},
	},
	Action: runApply,
}

func runApply(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("apply needs exactly one URL argument")
	}
	url := c.Args().First()

	cfg := containerConfig(c)
	cfg.Session.MaxPages = c.Int("max-pages")
	ctn, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer ctn.Close()

	ctx, cancel := runContext(c.Duration("timeout"))
	defer cancel()

	if err := navigate(ctx, ctn.Driver, url); err != nil {
		return err
	}

	applyErr := ctn.Session.Apply(ctx)

	dir := c.String("output")
	rep := report.Build(ctn.Session.State())
	if c.Bool("screenshot") {
		// The run context may already be dead; the capture gets its own.
		shotCtx, shotCancel := context.WithTimeout(context.Background(), 15*time.Second)
		if shot := ctn.Session.Diagnostics(shotCtx); len(shot) > 0 {
			if err := rep.SaveScreenshot(dir, shot); err != nil {
				ctn.Logger.Warn("save screenshot failed", "error", err.Error())
			}
		}
		shotCancel()
	}
	if err := rep.Write(dir); err != nil {
		if applyErr == nil {
			return err
		}
		ctn.Logger.Warn("write report failed", "error", err.Error())
	}

	fmt.Printf("outcome: %s  pages: %d  fills: %d\n", rep.Outcome, rep.Summary.Pages, rep.Summary.Fills)
	fmt.Printf("report:  %s\n", filepath.Join(dir, "report.html"))
	return applyErr
}
