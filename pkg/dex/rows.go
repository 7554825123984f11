package dex

import (
	"encoding/json"

	"github.com/uhyunpark/dexscenario/pkg/chain"
)

// Config is the contract's "config" singleton.
type Config struct {
	DexEnabled           bool                   `json:"dex_enabled"`
	DexAdmin             chain.Name             `json:"dex_admin"`
	DexFeeCollector      chain.Name             `json:"dex_fee_collector"`
	MakerFeeRatio        int64                  `json:"maker_fee_ratio"`
	TakerFeeRatio        int64                  `json:"taker_fee_ratio"`
	MaxMatchCount        uint32                 `json:"max_match_count"`
	AdminSignRequired    bool                   `json:"admin_sign_required"`
	DataRecycleSec       int64                  `json:"data_recycle_sec"`
	DeferredMatchingSecs int8                   `json:"deferred_matching_secs"`
	SupportQuoteSymbols  []chain.ExtendedSymbol `json:"support_quote_symbols"`
	ParentRewardRatio    chain.Uint64           `json:"parent_reward_ratio"`
	GrandRewardRatio     chain.Uint64           `json:"grand_reward_ratio"`
	AplFarmID            chain.Uint64           `json:"apl_farm_id"`
	FarmScales           []FarmScale            `json:"farm_scales"`
}

type FarmScale struct {
	Key   string `json:"key"`
	Value uint32 `json:"value"`
}

// Global holds the contract's id counters.
type Global struct {
	OrderID         chain.Uint64   `json:"order_id"`
	SymPairID       chain.Uint64   `json:"sympair_id"`
	DealItemID      chain.Uint64   `json:"deal_item_id"`
	MatchingSymPair []chain.Uint64 `json:"matching_sympair"`
	MatchingSent    bool           `json:"matching_sent"`
}

type SymbolPair struct {
	SymPairID         chain.Uint64         `json:"sympair_id"`
	AssetSymbol       chain.ExtendedSymbol `json:"asset_symbol"`
	CoinSymbol        chain.ExtendedSymbol `json:"coin_symbol"`
	MinAssetQuant     chain.Asset          `json:"min_asset_quant"`
	MinCoinQuant      chain.Asset          `json:"min_coin_quant"`
	LatestDealPrice   chain.Asset          `json:"latest_deal_price"`
	TakerFeeRatio     int64                `json:"taker_fee_ratio"`
	MakerFeeRatio     int64                `json:"maker_fee_ratio"`
	OnlyAcceptCoinFee bool                 `json:"only_accept_coin_fee"`
	Enabled           bool                 `json:"enabled"`
}

// Order is a row of the "queue" or "order" table.
type Order struct {
	OrderID       chain.Uint64 `json:"order_id"`
	ExternalID    chain.Uint64 `json:"external_id"`
	Owner         chain.Name   `json:"owner"`
	SymPairID     chain.Uint64 `json:"sympair_id"`
	OrderSide     Side         `json:"order_side"`
	Price         chain.Asset  `json:"price"`
	LimitQuant    chain.Asset  `json:"limit_quant"`
	FrozenQuant   chain.Asset  `json:"frozen_quant"`
	TakerFeeRatio int64        `json:"taker_fee_ratio"`
	MakerFeeRatio int64        `json:"maker_fee_ratio"`
	MatchedAssets chain.Asset  `json:"matched_assets"`
	MatchedCoins  chain.Asset  `json:"matched_coins"`
	MatchedFee    chain.Asset  `json:"matched_fee"`
	Status        string       `json:"status"`
	CreatedAt     string       `json:"created_at"`
	LastUpdatedAt string       `json:"last_updated_at"`
	LastDealID    chain.Uint64 `json:"last_deal_id"`
}

// Remaining is the unmatched part of the order's limit quantity.
func (o Order) Remaining() (chain.Asset, error) {
	if o.MatchedAssets.Symbol.IsZero() {
		return o.LimitQuant, nil
	}
	return o.LimitQuant.Sub(o.MatchedAssets)
}

type Deal struct {
	ID             chain.Uint64 `json:"id"`
	SymPairID      chain.Uint64 `json:"sympair_id"`
	BuyOrderID     chain.Uint64 `json:"buy_order_id"`
	SellOrderID    chain.Uint64 `json:"sell_order_id"`
	DealAssets     chain.Asset  `json:"deal_assets"`
	DealCoins      chain.Asset  `json:"deal_coins"`
	DealPrice      chain.Asset  `json:"deal_price"`
	TakerSide      Side         `json:"taker_side"`
	BuyFee         chain.Asset  `json:"buy_fee"`
	SellFee        chain.Asset  `json:"sell_fee"`
	BuyRefundCoins chain.Asset  `json:"buy_refund_coins"`
	Memo           string       `json:"memo"`
	DealTime       string       `json:"deal_time"`
}

// Rewards is a user's withdrawable fee rewards per token.
type Rewards struct {
	Owner   chain.Name    `json:"owner"`
	Rewards []RewardEntry `json:"rewards"`
}

type RewardEntry struct {
	Key   chain.ExtendedSymbol `json:"key"`
	Value chain.Uint64         `json:"value"`
}

// Balance returns the reward held in sym, as an asset.
func (r Rewards) Balance(sym chain.ExtendedSymbol) chain.Asset {
	for _, e := range r.Rewards {
		if e.Key == sym {
			return chain.Asset{Amount: int64(e.Value), Symbol: sym.Symbol}
		}
	}
	return chain.Asset{Symbol: sym.Symbol}
}

func decodeRows[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
