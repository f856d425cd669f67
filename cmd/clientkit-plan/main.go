// clientkit-plan prints the worker pool plan for a client configuration file.
//
// Usage:
//
//	clientkit-plan --config client.yaml [--module helix] [--pool-capacity 4]
//
// The command exits non-zero when the configuration is invalid or, with
// --strict, when the supplied pool capacity is below the requirement.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goliatone/go-clientkit/config"
	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/pool"
	"github.com/urfave/cli/v3"
)

var Version = "0.1.0-dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "clientkit-plan",
		Usage:   "print the provisioning plan for a client configuration",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML or JSON configuration file",
			},
			&cli.StringSliceFlag{
				Name:    "module",
				Aliases: []string{"m"},
				Usage:   "enable a module, overriding the file (repeatable)",
			},
			&cli.IntFlag{
				Name:  "pool-capacity",
				Usage: "capacity of a pool the application would supply",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "fail when the supplied pool is undersized",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd.String("config"), cmd.StringSlice("module"))
			if err != nil {
				return err
			}
			writer := cmd.Root().Writer
			if writer == nil {
				writer = os.Stdout
			}
			return printPlan(writer, cfg, cmd.Int("pool-capacity"), cmd.Bool("strict"))
		},
	}
}

func loadConfig(ctx context.Context, path string, modules []string) (core.Config, error) {
	defaults := core.DefaultConfig()
	loaded := defaults
	if path = strings.TrimSpace(path); path != "" {
		var err error
		loaded, err = config.NewProvider(path).Load(ctx, defaults)
		if err != nil {
			return core.Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	cfg, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, core.Config{})
	if err != nil {
		return core.Config{}, err
	}
	if len(modules) > 0 {
		cfg.EnabledModules = append([]string{}, modules...)
		if err := cfg.Validate(); err != nil {
			return core.Config{}, err
		}
	}
	return cfg, nil
}

func printPlan(out io.Writer, cfg core.Config, poolCapacity int, strict bool) error {
	modules := cfg.Modules()
	required := pool.RequiredThreads(modules)

	fmt.Fprintf(out, "client:           %s\n", cfg.ClientName)
	fmt.Fprintf(out, "required threads: %d\n", required)
	if poolCapacity > 0 {
		fmt.Fprintf(out, "supplied pool:    %d\n", poolCapacity)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSURFACE\tTHREADS\tQUEUE\tRATE LIMIT\tENDPOINT")
	for _, kind := range modules {
		surface, _ := core.ModuleSurface(kind)
		capacity, _ := cfg.QueueSettings(kind)
		limit := cfg.RateLimitFor(kind)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d/%s\t%s\n",
			kind,
			surface,
			core.ModuleRequirement(kind),
			queueLabel(capacity),
			limit.RefillQuantity,
			limit.RefillPeriod,
			cfg.Endpoint(kind),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if poolCapacity > 0 && poolCapacity < required {
		msg := fmt.Sprintf("supplied pool capacity %d is below the %d threads required", poolCapacity, required)
		if strict {
			return fmt.Errorf("%s", msg)
		}
		fmt.Fprintf(out, "\nwarning: %s\n", msg)
	}
	return nil
}

func queueLabel(capacity int) string {
	if capacity == core.UnboundedQueue {
		return "unbounded"
	}
	return fmt.Sprintf("%d", capacity)
}
