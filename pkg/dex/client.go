// Package dex is a typed client for the orderbookdex contract: it encodes
// its actions and decodes its tables through a harness.Harness.
package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

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

func (c *Client) push(ctx context.Context, action, actor chain.Name, data any) (harness.TxResult, error) {
	return c.h.PushAction(ctx, harness.Action{
		Account: c.Contract,
		Name:    action,
		Actor:   actor,
		Data:    data,
	})
}

// Init installs the default config; the contract account signs.
func (c *Client) Init(ctx context.Context) (harness.TxResult, error) {
	return c.push(ctx, "init", c.Contract, []any{})
}

func (c *Client) SetConfig(ctx context.Context, conf Config) (harness.TxResult, error) {
	if err := ValidateFeeRatio(conf.MakerFeeRatio, "maker_fee_ratio"); err != nil {
		return harness.TxResult{}, err
	}
	if err := ValidateFeeRatio(conf.TakerFeeRatio, "taker_fee_ratio"); err != nil {
		return harness.TxResult{}, err
	}
	if conf.SupportQuoteSymbols == nil {
		conf.SupportQuoteSymbols = []chain.ExtendedSymbol{}
	}
	if conf.FarmScales == nil {
		conf.FarmScales = []FarmScale{}
	}
	return c.push(ctx, "setconfig", c.Contract, []any{conf})
}

// SymPairParams are the arguments of setsympair.
type SymPairParams struct {
	AssetSymbol       chain.ExtendedSymbol
	CoinSymbol        chain.ExtendedSymbol
	MinAssetQuant     chain.Asset
	MinCoinQuant      chain.Asset
	OnlyAcceptCoinFee bool
	Enabled           bool
}

// SetSymPair creates the pair or updates its limits. It must be signed by
// the dex admin.
func (c *Client) SetSymPair(ctx context.Context, admin chain.Name, p SymPairParams) (harness.TxResult, error) {
	return c.push(ctx, "setsympair", admin, []any{
		p.AssetSymbol, p.CoinSymbol,
		p.MinAssetQuant.String(), p.MinCoinQuant.String(),
		p.OnlyAcceptCoinFee, p.Enabled,
	})
}

func (c *Client) OnOffSymPair(ctx context.Context, admin chain.Name, pairID uint64, on bool) (harness.TxResult, error) {
	return c.push(ctx, "onoffsympair", admin, []any{pairID, on})
}

func (c *Client) DelSymPair(ctx context.Context, admin chain.Name, pairID uint64) (harness.TxResult, error) {
	return c.push(ctx, "delsympair", admin, []any{pairID})
}

// OrderConfigEx overrides the fee ratios of a single order. Orders carrying
// it need the dex admin's signature as well.
type OrderConfigEx struct {
	TakerFeeRatio uint64 `json:"taker_fee_ratio"`
	MakerFeeRatio uint64 `json:"maker_fee_ratio"`
}

type OrderRequest struct {
	User       chain.Name
	SymPairID  uint64
	Side       Side
	Quantity   chain.Asset
	Price      chain.Asset
	ExternalID uint64
	ConfigEx   *OrderConfigEx
}

// NewOrder puts an order in the queue. It only becomes matchable once the
// owner transfers the frozen quantity to the contract.
func (c *Client) NewOrder(ctx context.Context, req OrderRequest) (harness.TxResult, error) {
	if req.ConfigEx != nil {
		if err := ValidateFeeRatio(int64(req.ConfigEx.TakerFeeRatio), "ratio"); err != nil {
			return harness.TxResult{}, err
		}
		if err := ValidateFeeRatio(int64(req.ConfigEx.MakerFeeRatio), "ratio"); err != nil {
			return harness.TxResult{}, err
		}
	}
	return c.push(ctx, "neworder", req.User, []any{
		req.User, req.SymPairID, req.Side,
		req.Quantity.String(), req.Price.String(),
		req.ExternalID, req.ConfigEx,
	})
}

// Cancel is signed by the order owner.
func (c *Client) Cancel(ctx context.Context, owner chain.Name, pairID uint64, side Side, orderID uint64) (harness.TxResult, error) {
	return c.push(ctx, "cancel", owner, []any{pairID, side, orderID})
}

func (c *Client) Match(ctx context.Context, matcher chain.Name, pairID uint64, maxCount uint32, memo string) (harness.TxResult, error) {
	if maxCount == 0 {
		return harness.TxResult{}, fmt.Errorf("max_count must be > 0")
	}
	return c.push(ctx, "match", matcher, []any{matcher, pairID, maxCount, memo})
}

// Withdraw pays out a user's accumulated fee rewards held at bank.
func (c *Client) Withdraw(ctx context.Context, user, bank chain.Name, quant chain.Asset, memo string) (harness.TxResult, error) {
	return c.push(ctx, "withdraw", user, []any{user, bank, quant.String(), memo})
}

func (c *Client) rows(ctx context.Context, table chain.Name, scope string) ([]json.RawMessage, error) {
	if scope == "" {
		scope = c.Contract.String()
	}
	return c.h.TableRows(ctx, harness.TableQuery{Code: c.Contract, Scope: scope, Table: table})
}

// GetConfig reads the config singleton. A contract that was never
// initialised reports ok=false.
func (c *Client) GetConfig(ctx context.Context) (conf Config, ok bool, err error) {
	raw, err := c.rows(ctx, "config", "")
	if err != nil || len(raw) == 0 {
		return conf, false, err
	}
	if err := json.Unmarshal(raw[0], &conf); err != nil {
		return conf, false, fmt.Errorf("failed to decode config: %w", err)
	}
	return conf, true, nil
}

func (c *Client) GetGlobal(ctx context.Context) (Global, error) {
	var g Global
	raw, err := c.rows(ctx, "global", "")
	if err != nil || len(raw) == 0 {
		return g, err
	}
	if err := json.Unmarshal(raw[0], &g); err != nil {
		return g, fmt.Errorf("failed to decode global: %w", err)
	}
	return g, nil
}

func (c *Client) SymPairs(ctx context.Context) ([]SymbolPair, error) {
	raw, err := c.rows(ctx, "sympair", "")
	if err != nil {
		return nil, err
	}
	pairs, err := decodeRows[SymbolPair](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sympair rows: %w", err)
	}
	return pairs, nil
}

// GetSymPair looks a pair up by id; ok is false if it does not exist.
func (c *Client) GetSymPair(ctx context.Context, id uint64) (SymbolPair, bool, error) {
	pairs, err := c.SymPairs(ctx)
	if err != nil {
		return SymbolPair{}, false, err
	}
	for _, p := range pairs {
		if uint64(p.SymPairID) == id {
			return p, true, nil
		}
	}
	return SymbolPair{}, false, nil
}

// FindSymPair returns the pair trading asset against coin.
func (c *Client) FindSymPair(ctx context.Context, asset, coin chain.ExtendedSymbol) (SymbolPair, bool, error) {
	pairs, err := c.SymPairs(ctx)
	if err != nil {
		return SymbolPair{}, false, err
	}
	for _, p := range pairs {
		if p.AssetSymbol == asset && p.CoinSymbol == coin {
			return p, true, nil
		}
	}
	return SymbolPair{}, false, nil
}

func (c *Client) Queue(ctx context.Context) ([]Order, error) {
	raw, err := c.rows(ctx, "queue", "")
	if err != nil {
		return nil, err
	}
	orders, err := decodeRows[Order](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode queue rows: %w", err)
	}
	return orders, nil
}

// QueuedOrder returns the owner's order waiting for its deposit. The
// contract allows at most one per owner.
func (c *Client) QueuedOrder(ctx context.Context, owner chain.Name) (Order, bool, error) {
	orders, err := c.Queue(ctx)
	if err != nil {
		return Order{}, false, err
	}
	for _, o := range orders {
		if o.Owner == owner {
			return o, true, nil
		}
	}
	return Order{}, false, nil
}

// Orders reads the matchable orders of one side of a pair.
func (c *Client) Orders(ctx context.Context, pairID uint64, side Side) ([]Order, error) {
	scope := strconv.FormatUint(OrderScope(pairID, side), 10)
	raw, err := c.rows(ctx, "order", scope)
	if err != nil {
		return nil, err
	}
	orders, err := decodeRows[Order](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode order rows: %w", err)
	}
	return orders, nil
}

func (c *Client) Deals(ctx context.Context) ([]Deal, error) {
	raw, err := c.rows(ctx, "deal", "")
	if err != nil {
		return nil, err
	}
	deals, err := decodeRows[Deal](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode deal rows: %w", err)
	}
	return deals, nil
}

func (c *Client) Rewards(ctx context.Context) ([]Rewards, error) {
	raw, err := c.rows(ctx, "rewards", "")
	if err != nil {
		return nil, err
	}
	rewards, err := decodeRows[Rewards](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rewards rows: %w", err)
	}
	return rewards, nil
}
