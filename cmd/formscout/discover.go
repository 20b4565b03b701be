package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v2"

	"formscout/internal/application/port/output"
	"formscout/internal/di"
	"formscout/internal/domain/entity"
)

var discoverCommand = &cli.Command{
	Name:      "discover",
	Usage:     "Inventory the fillable fields of a form without filling it",
	ArgsUsage: "<url>",
	Description: `Open the page, wait for the document to settle, classify every fillable
control and resolve the options of each visible choice field. The
inventory is printed as JSON.

Examples:
  formscout discover https://jobs.example.com/apply/123
  formscout discover --min-fields 1 -o snapshot.json https://jobs.example.com/apply/123`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "site-profile",
			Usage:   "Site profile YAML with selectors, timeouts and dependency rules",
			EnvVars: []string{"FORMSCOUT_SITE_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write the snapshot JSON to a file instead of stdout",
		},
		&cli.IntFlag{
			Name:  "min-fields",
			Usage: "Keep polling until at least this many fields are visible",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Overall deadline for the run",
			Value: 2 * time.Minute,
		},
	},
	Action: runDiscover,
}

func runDiscover(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("discover needs exactly one URL argument")
	}
	url := c.Args().First()

	ctn, err := di.NewContainer(containerConfig(c))
	if err != nil {
		return err
	}
	defer ctn.Close()

	ctx, cancel := runContext(c.Duration("timeout"))
	defer cancel()

	if err := navigate(ctx, ctn.Driver, url); err != nil {
		return err
	}

	var snap *entity.FormSnapshot
	if min := c.Int("min-fields"); min > 0 {
		snap, err = ctn.Session.DiscoverWhen(ctx, func(s *entity.FormSnapshot) bool {
			return len(s.Fields) >= min
		})
	} else {
		snap, err = ctn.Session.Discover(ctx)
	}
	if err != nil {
		return err
	}

	data, err := sonic.ConfigDefault.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')
	if out := c.String("output"); out != "" {
		return os.WriteFile(out, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}

// runContext bounds a command run by a deadline and Ctrl-C.
func runContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func navigate(ctx context.Context, driver output.Driver, url string) error {
	nav, ok := driver.(output.Navigator)
	if !ok {
		return fmt.Errorf("driver %T cannot navigate to a URL", driver)
	}
	if err := nav.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}
