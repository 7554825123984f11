package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/dexscenario/pkg/api"
	"github.com/uhyunpark/dexscenario/pkg/harness"
	"github.com/uhyunpark/dexscenario/pkg/runner"
	"github.com/uhyunpark/dexscenario/pkg/scenario"
	"github.com/uhyunpark/dexscenario/pkg/storage"
)

type runFlags struct {
	file      string
	params    []string
	hold      bool
	serve     bool
	preserve  bool
	skipReset bool
	noStore   bool
	eventLog  string
}

func (cli *CLI) loadManifest(file string, pairs []string) (*scenario.Manifest, error) {
	overrides, err := scenario.ParseParams(pairs)
	if err != nil {
		return nil, err
	}
	return scenario.Load(file, cli.cfg.Params(), overrides)
}

func (cli *CLI) newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario against the local chain",
		Long: `Resets the chain, deploys the contracts, creates and funds the accounts,
places the scenario's orders and checks the resulting tables. Without -f the
built-in scenario runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.runScenario(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "scenario manifest (TOML)")
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "override a manifest param, name=value")
	cmd.Flags().BoolVar(&f.hold, "hold", false, "keep the chain up after the run until interrupted")
	cmd.Flags().BoolVar(&f.serve, "serve", false, "serve the run API and live events while running")
	cmd.Flags().BoolVar(&f.preserve, "preserve", false, "do not stop the chain afterwards")
	cmd.Flags().BoolVar(&f.skipReset, "skip-reset", false, "run against the chain as it is")
	cmd.Flags().BoolVar(&f.noStore, "no-store", false, "do not persist the run")
	cmd.Flags().StringVar(&f.eventLog, "event-log", "", "append events as JSON lines to this file")
	return cmd
}

func (cli *CLI) runScenario(ctx context.Context, f runFlags) error {
	m, err := cli.loadManifest(f.file, f.params)
	if err != nil {
		return err
	}

	var options []runner.Option
	var observers runner.Observers

	var store *storage.PebbleStore
	if !f.noStore {
		store, err = storage.NewPebbleStore(cli.cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		options = append(options, runner.WithRecorder(store))
	}
	if f.eventLog != "" {
		el, err := storage.NewEventLog(f.eventLog, cli.logger)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		defer el.Close()
		observers = append(observers, el)
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	serveErr := make(chan error, 1)
	if f.serve {
		if store == nil {
			return errors.New("--serve needs the run store, drop --no-store")
		}
		srv := api.NewServer(store, cli.cfg.API.AllowedOrigins, cli.logger)
		observers = append(observers, srv.Hub())
		go func() { serveErr <- srv.Start(serveCtx, cli.cfg.API.Addr) }()
	}
	if len(observers) > 0 {
		options = append(options, runner.WithObserver(observers))
	}

	opts := runner.Options{
		PollInterval:  cli.cfg.Runner.PollInterval,
		SettleTimeout: cli.cfg.Runner.SettleTimeout,
		ReadyTimeout:  cli.cfg.Runner.ReadyTimeout,
		MasterKey:     cli.cfg.Chain.MasterKey,
		KeyPrefix:     cli.cfg.Chain.KeyPrefix,
		SkipReset:     f.skipReset,
		Hold:          f.hold,
		Preserve:      f.preserve,
	}
	h := harness.NewNode(cli.cfg.Chain, cli.logger)
	r := runner.New(h, m, opts, cli.logger, options...)
	cli.logger.Infow("scenario_starting", "run", r.ID(), "scenario", m.Name, "chain", cli.cfg.Chain.URL)

	run, runErr := r.Run(ctx)
	cli.logger.Infow("scenario_finished", "run", run.ID, "status", run.Status, "duration", run.FinishedAt.Sub(run.StartedAt))

	stopServe()
	if f.serve {
		if err := <-serveErr; err != nil {
			cli.logger.Warnw("api_server_stopped", "error", err)
		}
	}
	return runErr
}

func (cli *CLI) newValidateCmd() *cobra.Command {
	var (
		file   string
		pairs  []string
		output bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a scenario without touching the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output && file == "" {
				_, err := cmd.OutOrStdout().Write(scenario.DefaultManifest())
				return err
			}
			m, err := cli.loadManifest(file, pairs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scenario %q is valid\n", m.Name)
			fmt.Fprintf(out, "  accounts:  %d\n", len(m.Accounts))
			fmt.Fprintf(out, "  tokens:    %d\n", len(m.Tokens))
			fmt.Fprintf(out, "  sympairs:  %d\n", len(m.SymPairs))
			fmt.Fprintf(out, "  orders:    %d\n", len(m.Orders))
			fmt.Fprintf(out, "  checks:    %d\n", len(m.Checks))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "scenario manifest (TOML)")
	cmd.Flags().StringArrayVarP(&pairs, "param", "p", nil, "override a manifest param, name=value")
	cmd.Flags().BoolVar(&output, "print-default", false, "print the built-in scenario")
	return cmd
}
