package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/dexscenario/pkg/api"
	"github.com/uhyunpark/dexscenario/pkg/crypto"
)

func (cli *CLI) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve persisted runs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if addr == "" {
				addr = cli.cfg.API.Addr
			}
			return api.NewServer(store, cli.cfg.API.AllowedOrigins, cli.logger).Start(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default API_ADDR)")
	return cmd
}

func (cli *CLI) newKeygenCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an account key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix == "" {
				prefix = cli.cfg.Chain.KeyPrefix
			}
			kp, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Private key: %s\nPublic key: %s\n", kp.WIF(), kp.PublicKey(prefix))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "public key prefix (default KEY_PREFIX, AM)")
	return cmd
}
