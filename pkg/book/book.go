// Package book aggregates order table rows into price levels.
package book

import (
	"fmt"
	"sort"
	"strings"

	"github.com/uhyunpark/dexscenario/pkg/chain"
	"github.com/uhyunpark/dexscenario/pkg/dex"
)

type PriceLevel struct {
	Price  chain.Asset `json:"price"`
	Qty    chain.Asset `json:"qty"` // unmatched quantity at this price level
	Orders int         `json:"orders"`
}

type Book struct {
	Bids []PriceLevel `json:"bids"` // best (highest) first
	Asks []PriceLevel `json:"asks"` // best (lowest) first
}

// Build groups open orders of one pair by price. Orders with nothing left
// to match are ignored.
func Build(buys, sells []dex.Order) (Book, error) {
	bids, err := levels(buys, dex.Buy)
	if err != nil {
		return Book{}, err
	}
	asks, err := levels(sells, dex.Sell)
	if err != nil {
		return Book{}, err
	}
	sort.Slice(bids, func(i, j int) bool {
		return bids[i].Price.Amount > bids[j].Price.Amount
	})
	sort.Slice(asks, func(i, j int) bool {
		return asks[i].Price.Amount < asks[j].Price.Amount
	})
	return Book{Bids: bids, Asks: asks}, nil
}

func levels(orders []dex.Order, side dex.Side) ([]PriceLevel, error) {
	byPrice := make(map[int64]*PriceLevel)
	for _, o := range orders {
		if o.OrderSide != side {
			return nil, fmt.Errorf("order %d is a %s order, expected %s", o.OrderID, o.OrderSide, side)
		}
		left, err := o.Remaining()
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", o.OrderID, err)
		}
		if left.Amount <= 0 {
			continue
		}
		lv, ok := byPrice[o.Price.Amount]
		if !ok {
			byPrice[o.Price.Amount] = &PriceLevel{Price: o.Price, Qty: left, Orders: 1}
			continue
		}
		if lv.Price.Symbol != o.Price.Symbol {
			return nil, fmt.Errorf("order %d: price symbol %s, level has %s", o.OrderID, o.Price.Symbol, lv.Price.Symbol)
		}
		if lv.Qty, err = lv.Qty.Add(left); err != nil {
			return nil, fmt.Errorf("order %d: %w", o.OrderID, err)
		}
		lv.Orders++
	}
	out := make([]PriceLevel, 0, len(byPrice))
	for _, lv := range byPrice {
		out = append(out, *lv)
	}
	return out, nil
}

func (b Book) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

func (b Book) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Spread is best ask minus best bid. It is false when either side is empty.
func (b Book) Spread() (chain.Asset, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return chain.Asset{}, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return chain.Asset{}, false
	}
	s, err := ask.Price.Sub(bid.Price)
	if err != nil {
		return chain.Asset{}, false
	}
	return s, true
}

// String renders the book on one line, e.g.
// "bids [400.000000 MUSDT x 0.01000000 METH] asks []".
func (b Book) String() string {
	var sb strings.Builder
	sb.WriteString("bids [")
	writeLevels(&sb, b.Bids)
	sb.WriteString("] asks [")
	writeLevels(&sb, b.Asks)
	sb.WriteString("]")
	if s, ok := b.Spread(); ok {
		sb.WriteString(" spread ")
		sb.WriteString(s.String())
	}
	return sb.String()
}

func writeLevels(sb *strings.Builder, lvs []PriceLevel) {
	for i, lv := range lvs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%s x %s", lv.Price, lv.Qty)
	}
}
