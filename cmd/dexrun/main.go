package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexscenario/params"
	"github.com/uhyunpark/dexscenario/pkg/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := NewCLI()
	if err := cli.root.ExecuteContext(ctx); err != nil {
		if cli.logger != nil {
			cli.logger.Errorw("command_failed", "error", err)
			_ = cli.logger.Sync()
		} else {
			log.Print(err)
		}
		stop()
		os.Exit(1)
	}
}

// CLI is the Cobra-based command-line interface.
type CLI struct {
	root    *cobra.Command
	envFile string
	verbose bool

	cfg    params.Config
	logger *zap.SugaredLogger
}

// NewCLI sets up the CLI.
func NewCLI() *CLI {
	cli := &CLI{}
	cli.root = &cobra.Command{
		Use:           "dexrun",
		Short:         "End-to-end scenario runner for the orderbookdex contract",
		SilenceUsage:  true,
		SilenceErrors: true, // main logs them
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.cfg = params.LoadFromEnv(cli.envFile)
			if cli.verbose {
				cli.cfg.Log.Verbose = true
			}
			var (
				logger *zap.Logger
				err    error
			)
			if cli.cfg.Log.File != "" {
				logger, err = util.NewLoggerWithFile(cli.cfg.Log.File, cli.cfg.Log.Verbose)
			} else {
				logger, err = util.NewLogger(cli.cfg.Log.Verbose)
			}
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			cli.logger = logger.Sugar()
			cli.logger.Debugw("logger_initialized", "log_file", cli.cfg.Log.File)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = cli.logger.Sync()
		},
	}
	cli.root.PersistentFlags().StringVar(&cli.envFile, "env", "", "env file to load (default .env)")
	cli.root.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "debug logging")

	cli.root.AddCommand(
		cli.newRunCmd(),
		cli.newValidateCmd(),
		cli.newRunsCmd(),
		cli.newServeCmd(),
		cli.newKeygenCmd(),
	)
	return cli
}
