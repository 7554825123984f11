// Package token drives a standard token contract (amax.token, amax.mtoken).
package token

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/dexscenario/pkg/chain"
	"github.com/uhyunpark/dexscenario/pkg/harness"
)

type Client struct {
	h        harness.Harness
	Contract chain.Name
}

func NewClient(h harness.Harness, contract chain.Name) *Client {
	return &Client{h: h, Contract: contract}
}

func (c *Client) Create(ctx context.Context, issuer chain.Name, maxSupply chain.Asset) (harness.TxResult, error) {
	return c.h.PushAction(ctx, harness.Action{
		Account: c.Contract,
		Name:    "create",
		Actor:   c.Contract,
		Data:    []any{issuer, maxSupply.String()},
	})
}

// Issue mints quantity to the issuer, who must sign.
func (c *Client) Issue(ctx context.Context, issuer chain.Name, quantity chain.Asset, memo string) (harness.TxResult, error) {
	return c.h.PushAction(ctx, harness.Action{
		Account: c.Contract,
		Name:    "issue",
		Actor:   issuer,
		Data:    []any{issuer, quantity.String(), memo},
	})
}

func (c *Client) Transfer(ctx context.Context, from, to chain.Name, quantity chain.Asset, memo string) (harness.TxResult, error) {
	if quantity.Amount <= 0 {
		return harness.TxResult{}, fmt.Errorf("transfer quantity %s must be positive", quantity)
	}
	return c.h.PushAction(ctx, harness.Action{
		Account: c.Contract,
		Name:    "transfer",
		Actor:   from,
		Data:    []any{from, to, quantity.String(), memo},
	})
}

type accountRow struct {
	Balance chain.Asset `json:"balance"`
}

// Balance returns owner's balance of sym, zero if the owner never held it.
func (c *Client) Balance(ctx context.Context, owner chain.Name, sym chain.Symbol) (chain.Asset, error) {
	raw, err := c.h.TableRows(ctx, harness.TableQuery{Code: c.Contract, Scope: owner.String(), Table: "accounts"})
	if err != nil {
		return chain.Asset{}, err
	}
	for _, r := range raw {
		var row accountRow
		if err := json.Unmarshal(r, &row); err != nil {
			return chain.Asset{}, fmt.Errorf("failed to decode %s balance row: %w", owner, err)
		}
		if row.Balance.Symbol == sym {
			return row.Balance, nil
		}
	}
	return chain.Asset{Symbol: sym}, nil
}

// Stat is a row of the currency stats table, scoped by symbol code.
type Stat struct {
	Supply    chain.Asset `json:"supply"`
	MaxSupply chain.Asset `json:"max_supply"`
	Issuer    chain.Name  `json:"issuer"`
}

// Stat reads the stats of code; ok is false if the token was never created.
func (c *Client) Stat(ctx context.Context, code string) (Stat, bool, error) {
	var st Stat
	raw, err := c.h.TableRows(ctx, harness.TableQuery{Code: c.Contract, Scope: code, Table: "stat"})
	if err != nil || len(raw) == 0 {
		return st, false, err
	}
	if err := json.Unmarshal(raw[0], &st); err != nil {
		return st, false, fmt.Errorf("failed to decode %s stat: %w", code, err)
	}
	return st, true, nil
}
