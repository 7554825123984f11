package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexscenario/pkg/chain"
)

// CLI drives a cleos-compatible command line client for every write the
// scenario performs.
type CLI struct {
	Bin            string
	URL            string
	WalletURL      string
	WalletName     string
	WalletPassword string

	// ResetCmd and StopCmd are whole commands, not CLI subcommands.
	ResetCmd []string
	StopCmd  []string

	logger *zap.SugaredLogger
}

func NewCLI(bin, url, walletURL string, logger *zap.SugaredLogger) *CLI {
	return &CLI{
		Bin:        bin,
		URL:        url,
		WalletURL:  walletURL,
		WalletName: "default",
		logger:     logger,
	}
}

func (c *CLI) run(ctx context.Context, args ...string) ([]byte, error) {
	full := []string{c.Bin}
	if c.URL != "" {
		full = append(full, "-u", c.URL)
	}
	if c.WalletURL != "" {
		full = append(full, "--wallet-url", c.WalletURL)
	}
	full = append(full, args...)
	c.logger.Debugw("cli_exec", "args", redact(args))
	return execute(ctx, full...)
}

// Reset runs the configured reset command. An empty command means the node
// is managed elsewhere and is used as is.
func (c *CLI) Reset(ctx context.Context) error {
	if len(c.ResetCmd) == 0 {
		c.logger.Infow("chain_reset_skipped", "reason", "no reset command configured")
		return nil
	}
	c.logger.Infow("chain_reset", "cmd", strings.Join(c.ResetCmd, " "))
	if _, err := execute(ctx, c.ResetCmd...); err != nil {
		return fmt.Errorf("failed to reset chain: %w", err)
	}
	return nil
}

func (c *CLI) Stop(ctx context.Context) error {
	if len(c.StopCmd) == 0 {
		return nil
	}
	c.logger.Infow("chain_stop", "cmd", strings.Join(c.StopCmd, " "))
	if _, err := execute(ctx, c.StopCmd...); err != nil {
		return fmt.Errorf("failed to stop chain: %w", err)
	}
	return nil
}

// Unlock opens the wallet. An already unlocked wallet is not an error.
func (c *CLI) Unlock(ctx context.Context) error {
	if c.WalletPassword == "" {
		return nil
	}
	_, err := c.run(ctx, "wallet", "unlock", "-n", c.WalletName, "--password", c.WalletPassword)
	if err != nil && !outputContains(err, "Already unlocked") {
		return fmt.Errorf("failed to unlock wallet %s: %w", c.WalletName, err)
	}
	return nil
}

// ImportKey adds a private key to the wallet. Re-importing a known key is
// not an error.
func (c *CLI) ImportKey(ctx context.Context, wif string) error {
	if err := c.Unlock(ctx); err != nil {
		return err
	}
	_, err := c.run(ctx, "wallet", "import", "-n", c.WalletName, "--private-key", wif)
	if err != nil && !outputContains(err, "Key already in wallet") {
		return fmt.Errorf("failed to import key: %w", err)
	}
	return nil
}

func (c *CLI) CreateAccount(ctx context.Context, creator, name chain.Name, publicKey string) error {
	_, err := c.run(ctx, "create", "account", creator.String(), name.String(), publicKey, publicKey)
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", name, err)
	}
	c.logger.Infow("account_created", "creator", creator, "account", name)
	return nil
}

// SetContract deploys the contract found in dir. wasm and abi may be empty
// when dir holds a single build.
func (c *CLI) SetContract(ctx context.Context, account chain.Name, dir, wasm, abi string) error {
	args := []string{"set", "contract", account.String(), dir}
	if wasm != "" {
		args = append(args, wasm)
		if abi != "" {
			args = append(args, abi)
		}
	}
	_, err := c.run(ctx, args...)
	if err != nil && !outputContains(err, "contract is already running this version of code") {
		return fmt.Errorf("failed to set contract on %s: %w", account, err)
	}
	c.logger.Infow("contract_deployed", "account", account, "dir", dir)
	return nil
}

// AddCodePermission lets the contract send inline actions as itself.
func (c *CLI) AddCodePermission(ctx context.Context, account chain.Name) error {
	_, err := c.run(ctx, "set", "account", "permission", account.String(), "active", "--add-code")
	if err != nil {
		return fmt.Errorf("failed to add code permission to %s: %w", account, err)
	}
	return nil
}

func (c *CLI) PushAction(ctx context.Context, act Action) (TxResult, error) {
	data := []byte("[]")
	if act.Data != nil {
		var err error
		if data, err = json.Marshal(act.Data); err != nil {
			return TxResult{}, fmt.Errorf("failed to encode %s::%s data: %w", act.Account, act.Name, err)
		}
	}
	out, err := c.run(ctx, "push", "action", act.Account.String(), act.Name.String(), string(data),
		"-p", act.Actor.String()+"@active", "-j")
	if err != nil {
		var ce *ContractError
		if errors.As(err, &ce) {
			return TxResult{}, fmt.Errorf("%s::%s rejected: %w", act.Account, act.Name, ce)
		}
		return TxResult{}, fmt.Errorf("failed to push %s::%s: %w", act.Account, act.Name, err)
	}
	res := TxResult{
		ID:       gjson.GetBytes(out, "transaction_id").String(),
		BlockNum: gjson.GetBytes(out, "processed.block_num").Uint(),
		Raw:      json.RawMessage(out),
	}
	if res.ID == "" {
		return res, fmt.Errorf("push %s::%s: no transaction id in output", act.Account, act.Name)
	}
	c.logger.Debugw("action_pushed", "contract", act.Account, "action", act.Name, "actor", act.Actor, "tx", res.ID)
	return res, nil
}

func outputContains(err error, s string) bool {
	var ce *CommandError
	return errors.As(err, &ce) && strings.Contains(ce.Output, s)
}

// redact hides wallet secrets from debug logs.
func redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--password" || out[i] == "--private-key" {
			out[i+1] = "***"
		}
	}
	return out
}
