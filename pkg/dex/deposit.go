package dex

import (
	"fmt"
	"strings"

	"github.com/uhyunpark/dexscenario/pkg/chain"
)

const (
	RatioPrecision  = 10000
	FeeRatioMax     = 4999
	MatchCountMax   = 50
	DefaultFeeRatio = 30
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("invalid order side %q: want buy or sell", s)
}

// Index is the side's slot in an order table scope.
func (s Side) Index() uint64 {
	switch s {
	case Buy:
		return 1
	case Sell:
		return 2
	}
	return 0
}

// OrderScope is the scope of the "order" table holding one side of a pair.
func OrderScope(pairID uint64, side Side) uint64 {
	return pairID<<8 | side.Index()
}

func ValidateFeeRatio(ratio int64, title string) error {
	if ratio < 0 || ratio > FeeRatioMax {
		return fmt.Errorf("the %s out of range [0, %d]", title, FeeRatioMax)
	}
	return nil
}

// CoinQuant converts an asset quantity at price into coins.
func CoinQuant(quant, price chain.Asset, coin chain.Symbol) (chain.Asset, error) {
	if price.Symbol != coin {
		return chain.Asset{}, fmt.Errorf("price symbol %s mismatch with coin symbol %s", price.Symbol, coin)
	}
	prec, err := chain.Pow10(quant.Symbol.Precision)
	if err != nil {
		return chain.Asset{}, err
	}
	amount, err := chain.MulDiv(quant.Amount, price.Amount, prec)
	if err != nil {
		return chain.Asset{}, err
	}
	return chain.Asset{Amount: amount, Symbol: coin}, nil
}

// MatchFee is ratio/10000 of quant, truncated.
func MatchFee(ratio int64, quant chain.Asset) (chain.Asset, error) {
	if quant.Amount == 0 {
		return chain.Asset{Symbol: quant.Symbol}, nil
	}
	fee, err := chain.MulDiv(quant.Amount, ratio, RatioPrecision)
	if err != nil {
		return chain.Asset{}, err
	}
	if fee >= quant.Amount {
		return chain.Asset{}, fmt.Errorf("fee %d is not less than quantity %s at ratio %d", fee, quant, ratio)
	}
	return chain.Asset{Amount: fee, Symbol: quant.Symbol}, nil
}

// FrozenQuant is what the contract expects the owner to deposit for a new
// order: the quantity itself for a sell, its coin value for a buy, plus the
// taker fee when the pair charges fees in coins only.
func FrozenQuant(pair SymbolPair, side Side, quant, price chain.Asset, takerFeeRatio int64) (chain.Asset, error) {
	if quant.Symbol != pair.AssetSymbol.Symbol {
		return chain.Asset{}, fmt.Errorf("quantity symbol %s mismatch with asset symbol %s", quant.Symbol, pair.AssetSymbol.Symbol)
	}
	if quant.Amount <= 0 {
		return chain.Asset{}, fmt.Errorf("quantity %s must be positive", quant)
	}
	switch side {
	case Sell:
		return quant, nil
	case Buy:
		if price.Amount <= 0 {
			return chain.Asset{}, fmt.Errorf("price %s must be positive for a limit buy", price)
		}
		frozen, err := CoinQuant(quant, price, pair.CoinSymbol.Symbol)
		if err != nil {
			return chain.Asset{}, err
		}
		if pair.OnlyAcceptCoinFee {
			fee, err := MatchFee(takerFeeRatio, frozen)
			if err != nil {
				return chain.Asset{}, err
			}
			return frozen.Add(fee)
		}
		return frozen, nil
	}
	return chain.Asset{}, fmt.Errorf("invalid order side %q", side)
}

// DepositBank is the token contract the frozen quantity must come from.
func DepositBank(pair SymbolPair, side Side) chain.Name {
	if side == Buy {
		return pair.CoinSymbol.Contract
	}
	return pair.AssetSymbol.Contract
}
