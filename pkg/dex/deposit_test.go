package dex

import (
	"testing"

	"github.com/uhyunpark/dexscenario/pkg/chain"
)

func methPair(onlyCoinFee bool) SymbolPair {
	return SymbolPair{
		SymPairID:         1,
		AssetSymbol:       chain.ExtendedSymbol{Symbol: chain.Symbol{Precision: 8, Code: "METH"}, Contract: "amax.mtoken"},
		CoinSymbol:        chain.ExtendedSymbol{Symbol: chain.Symbol{Precision: 6, Code: "MUSDT"}, Contract: "amax.mtoken"},
		OnlyAcceptCoinFee: onlyCoinFee,
		Enabled:           true,
	}
}

func TestFrozenQuant(t *testing.T) {
	tests := []struct {
		name        string
		onlyCoinFee bool
		side        Side
		qty         string
		price       string
		want        string
		wantErr     bool
	}{
		{"sell freezes the quantity", true, Sell, "0.01000000 METH", "300.000000 MUSDT", "0.01000000 METH", false},
		{"buy without coin fee", false, Buy, "0.01000000 METH", "400.000000 MUSDT", "4.000000 MUSDT", false},
		{"buy with coin fee", true, Buy, "0.01000000 METH", "400.000000 MUSDT", "4.012000 MUSDT", false},
		{"buy truncates", false, Buy, "0.00000001 METH", "1.000000 MUSDT", "0.000000 MUSDT", false},
		{"wrong asset symbol", true, Sell, "1.000000 MUSDT", "1.000000 MUSDT", "", true},
		{"wrong price symbol", true, Buy, "0.01000000 METH", "1.00000000 METH", "", true},
		{"zero price", true, Buy, "0.01000000 METH", "0.000000 MUSDT", "", true},
		{"bad side", true, Side("hold"), "0.01000000 METH", "1.000000 MUSDT", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FrozenQuant(methPair(tt.onlyCoinFee), tt.side,
				chain.MustParseAsset(tt.qty), chain.MustParseAsset(tt.price), DefaultFeeRatio)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDepositBank(t *testing.T) {
	pair := methPair(true)
	pair.AssetSymbol.Contract = "amax.token"
	if DepositBank(pair, Buy) != "amax.mtoken" {
		t.Error("buy deposits come from the coin bank")
	}
	if DepositBank(pair, Sell) != "amax.token" {
		t.Error("sell deposits come from the asset bank")
	}
}

func TestOrderScope(t *testing.T) {
	if got := OrderScope(1, Buy); got != 257 {
		t.Errorf("buy scope = %d", got)
	}
	if got := OrderScope(1, Sell); got != 258 {
		t.Errorf("sell scope = %d", got)
	}
	if got := OrderScope(3, Sell); got != 770 {
		t.Errorf("scope = %d", got)
	}
}

func TestValidateFeeRatio(t *testing.T) {
	for _, r := range []int64{0, 30, FeeRatioMax} {
		if err := ValidateFeeRatio(r, "taker_fee_ratio"); err != nil {
			t.Errorf("%d: %v", r, err)
		}
	}
	for _, r := range []int64{-1, FeeRatioMax + 1} {
		if err := ValidateFeeRatio(r, "taker_fee_ratio"); err == nil {
			t.Errorf("%d: expected error", r)
		}
	}
}

func TestMatchFee(t *testing.T) {
	fee, err := MatchFee(30, chain.MustParseAsset("4.000000 MUSDT"))
	if err != nil || fee.String() != "0.012000 MUSDT" {
		t.Errorf("fee = %s, %v", fee, err)
	}
	if _, err := MatchFee(RatioPrecision, chain.MustParseAsset("1.000000 MUSDT")); err == nil {
		t.Error("a fee equal to the quantity must fail")
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide(" BUY "); err != nil || s != Buy {
		t.Errorf("got %q %v", s, err)
	}
	if _, err := ParseSide("long"); err == nil {
		t.Error("expected error")
	}
}
