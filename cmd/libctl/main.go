/*
main.go - libctl, batch jobs for the lending engine

PURPOSE:
  Runs the engine's periodic jobs once from the command line, for cron
  or for an operator at a terminal. Uses the same configuration and
  wiring as the server.

COMMANDS:
  libctl mine-rules [--min-support 0.01] [--min-confidence 0.1] [--min-lift 1.0]
  libctl send-due-notices
  libctl reconcile
  libctl seed <scenario>
  libctl scenarios

GLOBAL FLAGS:
  --config  YAML config file
  --db      SQLite path, overrides database.path

EXIT STATUS:
  0 on success, 1 on any error.

SEE ALSO:
  - api/scheduler.go: The same jobs on a timer
  - bootstrap/bootstrap.go: Component wiring
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/warp/lending-engine/api"
	"github.com/warp/lending-engine/bootstrap"
	"github.com/warp/lending-engine/config"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/logging"
)

type globalFlags struct {
	config string
	db     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Batch jobs for the library lending engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.config, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.db, "db", "", "SQLite database path (overrides database.path)")

	root.AddCommand(
		newMineCmd(g),
		newDueNoticesCmd(g),
		newReconcileCmd(g),
		newSeedCmd(g),
		newScenariosCmd(),
	)
	return root
}

// withEngine loads config, builds the engine, runs fn and closes it.
func withEngine(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, cfg *config.Config, e *bootstrap.Engine) error) error {
	cfg, err := config.Load(g.config)
	if err != nil {
		return err
	}
	if g.db != "" {
		cfg.Database.Path = g.db
	}
	logging.Init(cfg.Log)

	ctx := cmd.Context()
	e, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer e.Close()

	// Deliver inline so the process does not exit with notices still queued.
	e.Loans.Notices = lending.NoticeFunc(func(ctx context.Context, n lending.Notice) error {
		_, err := e.Worker.Deliver(ctx, n)
		return err
	})
	return fn(ctx, cfg, e)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// COMMANDS
// =============================================================================

func newMineCmd(g *globalFlags) *cobra.Command {
	var support, confidence, lift float64
	cmd := &cobra.Command{
		Use:   "mine-rules",
		Short: "Rebuild the association rule table from loan history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, g, func(ctx context.Context, _ *config.Config, e *bootstrap.Engine) error {
				p := e.Recs.Params()
				if cmd.Flags().Changed("min-support") {
					p.MinSupport = support
				}
				if cmd.Flags().Changed("min-confidence") {
					p.MinConfidence = confidence
				}
				if cmd.Flags().Changed("min-lift") {
					p.MinLift = lift
				}
				if p.MinSupport <= 0 || p.MinSupport > 1 {
					return fmt.Errorf("--min-support must be in (0, 1], got %v", p.MinSupport)
				}
				res, err := e.Recs.RunWith(ctx, p)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().Float64Var(&support, "min-support", 0.01, "minimum pair support")
	cmd.Flags().Float64Var(&confidence, "min-confidence", 0.1, "minimum rule confidence")
	cmd.Flags().Float64Var(&lift, "min-lift", 1.0, "minimum rule lift")
	return cmd
}

func newDueNoticesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send-due-notices",
		Short: "Remind borrowers whose loans are due tomorrow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, g, func(ctx context.Context, _ *config.Config, e *bootstrap.Engine) error {
				res, err := e.Loans.SendDueReminders(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func newReconcileCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every book's available count from its loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, g, func(ctx context.Context, _ *config.Config, e *bootstrap.Engine) error {
				changed, err := e.Loans.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				if changed == nil {
					changed = []lending.ReconcileResult{}
				}
				return printJSON(cmd, changed)
			})
		},
	}
}

func newSeedCmd(g *globalFlags) *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "seed <scenario>",
		Short: "Reset the database and load a demo scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, g, func(ctx context.Context, _ *config.Config, e *bootstrap.Engine) error {
				if err := api.SeedScenario(ctx, e.Loans, e.Store, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded scenario %s\n", args[0])
				if !mine {
					return nil
				}
				res, err := e.Recs.Run(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", true, "mine association rules after seeding")
	return cmd
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List demo scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range api.Scenarios() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-15s %s\n", s.ID, s.Description)
			}
			return nil
		},
	}
}
