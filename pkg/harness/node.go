package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/dexscenario/params"
	"github.com/uhyunpark/dexscenario/pkg/util"
)

// Node is a Harness backed by a local chain: writes go through the CLI and
// reads through the HTTP API.
type Node struct {
	*CLI
	*RPC
}

var _ Harness = (*Node)(nil)

func NewNode(cfg params.Chain, logger *zap.SugaredLogger) *Node {
	cli := NewCLI(cfg.CLI, cfg.URL, cfg.WalletURL, logger)
	if cfg.WalletName != "" {
		cli.WalletName = cfg.WalletName
	}
	cli.WalletPassword = cfg.WalletPassword
	cli.ResetCmd = cfg.ResetCmd
	cli.StopCmd = cfg.StopCmd
	return &Node{CLI: cli, RPC: NewRPC(cfg.URL)}
}

// WaitReady polls get_info until the node has produced a block past genesis.
func WaitReady(ctx context.Context, h Harness, clock util.Clock, interval, timeout time.Duration) (ChainInfo, error) {
	var info ChainInfo
	err := util.Poll(ctx, clock, interval, timeout, func(ctx context.Context) (bool, error) {
		var err error
		info, err = h.Info(ctx)
		if err != nil {
			return false, err
		}
		return info.HeadBlockNum > 1, nil
	})
	if err != nil {
		return info, fmt.Errorf("chain not ready: %w", err)
	}
	return info, nil
}
