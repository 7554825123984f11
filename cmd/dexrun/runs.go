package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/dexscenario/pkg/api"
	"github.com/uhyunpark/dexscenario/pkg/runner"
	"github.com/uhyunpark/dexscenario/pkg/storage"
)

func (cli *CLI) openStore() (*storage.PebbleStore, error) {
	return storage.NewPebbleStore(cli.cfg.Storage.Path)
}

func (cli *CLI) newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs, 0 for all")

	var withRows bool
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's events and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return showRun(cmd.OutOrStdout(), store, args[0], withRows)
		},
	}
	show.Flags().BoolVar(&withRows, "rows", false, "print snapshot rows")

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run with its events and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.DeleteRun(args[0]); err != nil {
				return err
			}
			cli.logger.Infow("run_deleted", "run", args[0])
			return nil
		},
	}

	// "dexrun runs" alone lists.
	cmd.RunE = list.RunE
	cmd.Flags().AddFlagSet(list.Flags())
	cmd.AddCommand(list, show, del)
	return cmd
}

func printRuns(out io.Writer, runs []runner.Run) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCENARIO\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Scenario, r.Status, r.StartedAt.Local().Format(time.DateTime), dur)
	}
	tw.Flush()
}

func showRun(out io.Writer, store api.RunStore, id string, withRows bool) error {
	run, ok, err := store.GetRun(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	fmt.Fprintf(out, "run %s (%s) %s\n", run.ID, run.Scenario, run.Status)
	if run.ChainID != "" {
		fmt.Fprintf(out, "chain %s\n", run.ChainID)
	}
	if run.Error != "" {
		fmt.Fprintf(out, "error: %s\n", run.Error)
	}

	events, err := store.ListEvents(id, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSTAGE\tSTATUS\tSTEP\tDETAIL")
	for _, e := range events {
		detail := e.Detail
		if e.Error != "" {
			detail = e.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Seq, e.Stage, e.Status, e.Step, detail)
	}
	tw.Flush()

	snaps, err := store.ListSnapshots(id)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	for _, s := range snaps {
		fmt.Fprintf(out, "[%s] %s %s/%s: %d rows\n", s.Label, s.Code, s.Scope, s.Table, len(s.Rows))
		if withRows {
			for _, row := range s.Rows {
				fmt.Fprintf(out, "  %s\n", row)
			}
		}
	}
	return nil
}
