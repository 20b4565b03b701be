package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"formscout/internal/fixtures"
)

var fixturesCommand = &cli.Command{
	Name:  "fixtures",
	Usage: "Serve the built-in form corpus over HTTP",
	Description: `Serve the embedded fixture pages used by the engine's own tests: native
forms, ARIA widgets, portal-style dropdowns, multi-page flows and a
confirmation page. Handy as a target for local discover/apply runs.

A "latency" query parameter (milliseconds) delays any response, which
exercises the settle logic against a slow server.

Examples:
  formscout fixtures
  formscout fixtures --addr 127.0.0.1:9000 --quiet`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Usage:   "Listen address",
			Value:   ":8080",
			EnvVars: []string{"FORMSCOUT_FIXTURES_ADDR"},
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Drop request logging",
		},
	},
	Action: runFixtures,
}

func runFixtures(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("serving fixture corpus on %s\n", c.String("addr"))
	return fixtures.Serve(ctx, c.String("addr"), fixtures.Config{Quiet: c.Bool("quiet")})
}
