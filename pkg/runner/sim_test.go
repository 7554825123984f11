package runner

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/uhyunpark/dexscenario/pkg/chain"
	"github.com/uhyunpark/dexscenario/pkg/dex"
	"github.com/uhyunpark/dexscenario/pkg/harness"
	"github.com/uhyunpark/dexscenario/pkg/harness/harnesstest"
	"github.com/uhyunpark/dexscenario/pkg/token"
)

// dexSim is a small stand-in for the orderbookdex contract and the token
// contracts it banks with. It keeps the config, global, sympair, queue,
// order, deal and rewards tables of a harnesstest.Fake, plus the stat and
// accounts tables of every token contract, and crosses an incoming order
// against the opposite side at the maker price.
type dexSim struct {
	contract chain.Name
	admin    chain.Name
	taker    int64
	maker    int64

	// deferred leaves deposited orders on the book until a match action.
	deferred bool

	nextPair  uint64
	nextOrder uint64
	nextDeal  uint64

	// reject returns a contract error for an action, if any.
	reject func(act harness.Action) error
}

func newDexSim() *dexSim {
	return &dexSim{contract: "orderbookdex", admin: "dexadmin", taker: 30, maker: 30}
}

func contractErr(code dex.ErrCode, format string, args ...any) error {
	// What the CLI prints for a failed assertion.
	return &harness.CommandError{
		Args:   []string{"push", "action"},
		Output: fmt.Sprintf("Error 3050003: eosio_assert_message assertion failure\n$$$%d$$$ %s", code, fmt.Sprintf(format, args...)),
		Err:    fmt.Errorf("exit status 1"),
	}
}

// assertErr is a plain eosio_assert without a dex error code, as the token
// contract raises them.
func assertErr(msg string) error {
	return &harness.CommandError{
		Args:   []string{"push", "action"},
		Output: "Error 3050003: eosio_assert_message assertion failure\nassertion failure with message: " + msg,
		Err:    fmt.Errorf("exit status 1"),
	}
}

func (s *dexSim) scope() string { return s.contract.String() }

func (s *dexSim) onPush(f *harnesstest.Fake, act harness.Action) error {
	if s.reject != nil {
		if err := s.reject(act); err != nil {
			return err
		}
	}
	var args []json.RawMessage
	if err := json.Unmarshal(act.Data.(json.RawMessage), &args); err != nil {
		return err
	}
	if act.Account != s.contract {
		return s.tokenAction(f, act, args)
	}
	switch act.Name {
	case "init":
		f.ReplaceRows(s.contract, s.scope(), "config", nil)
		f.AppendRow(s.contract, s.scope(), "config", dex.Config{
			DexEnabled:        true,
			DexAdmin:          s.admin,
			DexFeeCollector:   s.admin,
			MakerFeeRatio:     s.maker,
			TakerFeeRatio:     s.taker,
			MaxMatchCount:     dex.MatchCountMax,
			ParentRewardRatio: 10,
			GrandRewardRatio:  5,
		})
	case "setconfig":
		var conf dex.Config
		if err := json.Unmarshal(args[0], &conf); err != nil {
			return err
		}
		f.ReplaceRows(s.contract, s.scope(), "config", nil)
		f.AppendRow(s.contract, s.scope(), "config", conf)
		s.admin = conf.DexAdmin
	case "setsympair":
		return s.setSymPair(f, act, args)
	case "onoffsympair", "delsympair":
		if act.Actor != s.admin {
			return contractErr(dex.ErrNoAuth, "no auth for operate")
		}
		var id uint64
		var on bool
		if err := unmarshalArgs(args, &id); err != nil {
			return err
		}
		if act.Name == "onoffsympair" {
			if err := unmarshalArgs(args[1:], &on); err != nil {
				return err
			}
		}
		p, ok := s.pair(f, id)
		if !ok {
			return contractErr(dex.ErrRecordNotFound, "sympair not found: %d", id)
		}
		if act.Name == "delsympair" {
			s.putPair(f, id, nil)
			return nil
		}
		p.Enabled = on
		s.putPair(f, id, &p)
	case "neworder":
		return s.newOrder(f, args)
	case "cancel":
		var pairID, orderID uint64
		var side dex.Side
		if err := unmarshalArgs(args, &pairID, &side, &orderID); err != nil {
			return err
		}
		scope := strconv.FormatUint(dex.OrderScope(pairID, side), 10)
		orders := s.orders(f, scope)
		for i, o := range orders {
			if uint64(o.OrderID) == orderID {
				s.putOrders(f, scope, append(orders[:i], orders[i+1:]...))
				return nil
			}
		}
		return contractErr(dex.ErrRecordNotFound, "order not found")
	case "match":
		return s.matchAction(f, args)
	case "withdraw":
		return s.withdraw(f, args)
	}
	return nil
}

func unmarshalArgs(args []json.RawMessage, out ...any) error {
	if len(args) < len(out) {
		return fmt.Errorf("want %d args, got %d", len(out), len(args))
	}
	for i, o := range out {
		if err := json.Unmarshal(args[i], o); err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
	}
	return nil
}

func (s *dexSim) putGlobal(f *harnesstest.Fake) {
	f.ReplaceRows(s.contract, s.scope(), "global", nil)
	f.AppendRow(s.contract, s.scope(), "global", dex.Global{
		OrderID:    chain.Uint64(s.nextOrder),
		SymPairID:  chain.Uint64(s.nextPair),
		DealItemID: chain.Uint64(s.nextDeal),
	})
}

// setSymPair creates the pair, or updates the limits of the existing pair
// trading the same symbols.
func (s *dexSim) setSymPair(f *harnesstest.Fake, act harness.Action, args []json.RawMessage) error {
	if act.Actor != s.admin {
		return contractErr(dex.ErrNoAuth, "no auth for operate")
	}
	var p dex.SymbolPair
	var minAsset, minCoin string
	if err := unmarshalArgs(args, &p.AssetSymbol, &p.CoinSymbol, &minAsset, &minCoin, &p.OnlyAcceptCoinFee, &p.Enabled); err != nil {
		return err
	}
	p.MinAssetQuant = chain.MustParseAsset(minAsset)
	p.MinCoinQuant = chain.MustParseAsset(minCoin)
	for _, raw := range f.Rows(s.contract, s.scope(), "sympair") {
		var old dex.SymbolPair
		if err := json.Unmarshal(raw, &old); err != nil {
			return err
		}
		if old.AssetSymbol == p.CoinSymbol && old.CoinSymbol == p.AssetSymbol {
			return contractErr(dex.ErrRecordNotFound, "The reverted symbol pair exist")
		}
		if old.AssetSymbol == p.AssetSymbol && old.CoinSymbol == p.CoinSymbol {
			old.MinAssetQuant, old.MinCoinQuant = p.MinAssetQuant, p.MinCoinQuant
			old.OnlyAcceptCoinFee, old.Enabled = p.OnlyAcceptCoinFee, p.Enabled
			s.putPair(f, uint64(old.SymPairID), &old)
			return nil
		}
	}
	s.nextPair++
	p.SymPairID = chain.Uint64(s.nextPair)
	p.LatestDealPrice = chain.Asset{Symbol: p.CoinSymbol.Symbol}
	p.TakerFeeRatio = s.taker
	p.MakerFeeRatio = s.maker
	f.AppendRow(s.contract, s.scope(), "sympair", p)
	s.putGlobal(f)
	return nil
}

func (s *dexSim) pair(f *harnesstest.Fake, id uint64) (dex.SymbolPair, bool) {
	for _, raw := range f.Rows(s.contract, s.scope(), "sympair") {
		var p dex.SymbolPair
		if err := json.Unmarshal(raw, &p); err == nil && uint64(p.SymPairID) == id {
			return p, true
		}
	}
	return dex.SymbolPair{}, false
}

// putPair replaces the pair with id, or erases it when p is nil.
func (s *dexSim) putPair(f *harnesstest.Fake, id uint64, p *dex.SymbolPair) {
	rows := f.Rows(s.contract, s.scope(), "sympair")
	out := make([]json.RawMessage, 0, len(rows))
	for _, raw := range rows {
		var old dex.SymbolPair
		if err := json.Unmarshal(raw, &old); err == nil && uint64(old.SymPairID) == id {
			if p == nil {
				continue
			}
			raw, _ = json.Marshal(p)
		}
		out = append(out, raw)
	}
	f.ReplaceRows(s.contract, s.scope(), "sympair", out)
}

func (s *dexSim) orders(f *harnesstest.Fake, scope string) []dex.Order {
	var out []dex.Order
	for _, raw := range f.Rows(s.contract, scope, "order") {
		var o dex.Order
		if err := json.Unmarshal(raw, &o); err != nil {
			panic(err)
		}
		out = append(out, o)
	}
	return out
}

func (s *dexSim) putOrders(f *harnesstest.Fake, scope string, orders []dex.Order) {
	f.ReplaceRows(s.contract, scope, "order", nil)
	for _, o := range orders {
		f.AppendRow(s.contract, scope, "order", o)
	}
}

func (s *dexSim) newOrder(f *harnesstest.Fake, args []json.RawMessage) error {
	var user chain.Name
	var pairID, extID uint64
	var side dex.Side
	var qty, price string
	if err := unmarshalArgs(args, &user, &pairID, &side, &qty, &price, &extID); err != nil {
		return err
	}
	pair, ok := s.pair(f, pairID)
	if !ok {
		return contractErr(dex.ErrParamError, "The symbol pair id '%d' does not exist", pairID)
	}
	if !pair.Enabled {
		return contractErr(dex.ErrStatusError, "The symbol pair '%d' is disabled", pairID)
	}
	for _, raw := range f.Rows(s.contract, s.scope(), "queue") {
		var q dex.Order
		if err := json.Unmarshal(raw, &q); err == nil && q.Owner == user {
			return contractErr(dex.ErrRecordExisting, "user has a queued order")
		}
	}
	quant := chain.MustParseAsset(qty)
	p := chain.MustParseAsset(price)
	frozen, err := dex.FrozenQuant(pair, side, quant, p, s.taker)
	if err != nil {
		return contractErr(dex.ErrParamError, "%v", err)
	}
	s.nextOrder++
	coin := pair.CoinSymbol.Symbol
	f.AppendRow(s.contract, s.scope(), "queue", dex.Order{
		OrderID:       chain.Uint64(s.nextOrder),
		ExternalID:    chain.Uint64(extID),
		Owner:         user,
		SymPairID:     chain.Uint64(pairID),
		OrderSide:     side,
		Price:         p,
		LimitQuant:    quant,
		FrozenQuant:   frozen,
		TakerFeeRatio: s.taker,
		MakerFeeRatio: s.maker,
		MatchedAssets: chain.Asset{Symbol: quant.Symbol},
		MatchedCoins:  chain.Asset{Symbol: coin},
		MatchedFee:    chain.Asset{Symbol: frozen.Symbol},
		Status:        "queue",
	})
	s.putGlobal(f)
	return nil
}

// tokenAction plays a standard token contract: create, issue and transfer
// with balances kept in its accounts table. A transfer to the dex is
// checked by the dex before any balance moves.
func (s *dexSim) tokenAction(f *harnesstest.Fake, act harness.Action, args []json.RawMessage) error {
	bank := act.Account
	switch act.Name {
	case "create":
		var issuer chain.Name
		var maxSupply string
		if err := unmarshalArgs(args, &issuer, &maxSupply); err != nil {
			return err
		}
		limit := chain.MustParseAsset(maxSupply)
		if len(f.Rows(bank, limit.Symbol.Code, "stat")) > 0 {
			return assertErr("token with symbol already exists")
		}
		f.AppendRow(bank, limit.Symbol.Code, "stat", token.Stat{
			Supply:    chain.Asset{Symbol: limit.Symbol},
			MaxSupply: limit,
			Issuer:    issuer,
		})
	case "issue":
		var to chain.Name
		var qty string
		if err := unmarshalArgs(args, &to, &qty); err != nil {
			return err
		}
		quant := chain.MustParseAsset(qty)
		rows := f.Rows(bank, quant.Symbol.Code, "stat")
		if len(rows) == 0 {
			return assertErr("token with symbol does not exist, create token before issue")
		}
		var st token.Stat
		if err := json.Unmarshal(rows[0], &st); err != nil {
			return err
		}
		if to != st.Issuer {
			return assertErr("tokens can only be issued to issuer account")
		}
		if quant.Amount > st.MaxSupply.Amount-st.Supply.Amount {
			return assertErr("quantity exceeds available supply")
		}
		st.Supply.Amount += quant.Amount
		b, _ := json.Marshal(st)
		f.ReplaceRows(bank, quant.Symbol.Code, "stat", []json.RawMessage{b})
		s.credit(f, bank, to, quant)
	case "transfer":
		var from, to chain.Name
		var qty string
		if err := unmarshalArgs(args, &from, &to, &qty); err != nil {
			return err
		}
		quant := chain.MustParseAsset(qty)
		if s.balance(f, bank, from, quant.Symbol).Amount < quant.Amount {
			return assertErr("overdrawn balance")
		}
		if to == s.contract {
			if err := s.deposit(f, bank, from, quant); err != nil {
				return err
			}
		}
		s.move(f, bank, from, to, quant)
	}
	return nil
}

type balanceRow struct {
	Balance chain.Asset `json:"balance"`
}

func (s *dexSim) balance(f *harnesstest.Fake, bank, owner chain.Name, sym chain.Symbol) chain.Asset {
	for _, raw := range f.Rows(bank, owner.String(), "accounts") {
		var row balanceRow
		if err := json.Unmarshal(raw, &row); err == nil && row.Balance.Symbol == sym {
			return row.Balance
		}
	}
	return chain.Asset{Symbol: sym}
}

// credit adds quant, which may be negative, to owner's balance at bank.
func (s *dexSim) credit(f *harnesstest.Fake, bank, owner chain.Name, quant chain.Asset) {
	rows := f.Rows(bank, owner.String(), "accounts")
	out := make([]json.RawMessage, 0, len(rows)+1)
	found := false
	for _, raw := range rows {
		var row balanceRow
		if err := json.Unmarshal(raw, &row); err == nil && row.Balance.Symbol == quant.Symbol {
			row.Balance.Amount += quant.Amount
			raw, _ = json.Marshal(row)
			found = true
		}
		out = append(out, raw)
	}
	if !found {
		b, _ := json.Marshal(balanceRow{Balance: quant})
		out = append(out, b)
	}
	f.ReplaceRows(bank, owner.String(), "accounts", out)
}

func (s *dexSim) move(f *harnesstest.Fake, bank, from, to chain.Name, quant chain.Asset) {
	s.credit(f, bank, from, chain.Asset{Amount: -quant.Amount, Symbol: quant.Symbol})
	s.credit(f, bank, to, quant)
}

// deposit takes a queued order off the queue when its owner deposits
// exactly the frozen quantity, then matches it.
func (s *dexSim) deposit(f *harnesstest.Fake, bank, from chain.Name, quant chain.Asset) error {
	queue := f.Rows(s.contract, s.scope(), "queue")
	for i, raw := range queue {
		var q dex.Order
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
		if q.Owner != from {
			continue
		}
		if quant != q.FrozenQuant {
			return contractErr(dex.ErrParamError, "deposit %s mismatch with frozen %s", quant, q.FrozenQuant)
		}
		pair, _ := s.pair(f, uint64(q.SymPairID))
		if want := dex.DepositBank(pair, q.OrderSide); want != bank {
			return contractErr(dex.ErrSymbolMismatch, "bank mismatch")
		}
		rest := append([]json.RawMessage{}, queue[:i]...)
		f.ReplaceRows(s.contract, s.scope(), "queue", append(rest, queue[i+1:]...))
		q.Status = "matchable"
		if s.deferred {
			scope := strconv.FormatUint(dex.OrderScope(uint64(pair.SymPairID), q.OrderSide), 10)
			f.AppendRow(s.contract, scope, "order", q)
			return nil
		}
		s.match(f, pair, q)
		return nil
	}
	return contractErr(dex.ErrRecordNotFound, "no queued order for %s", from)
}

// matchAction crosses the resting buy orders of a pair against its sells.
func (s *dexSim) matchAction(f *harnesstest.Fake, args []json.RawMessage) error {
	var matcher chain.Name
	var pairID uint64
	var maxCount uint32
	if err := unmarshalArgs(args, &matcher, &pairID, &maxCount); err != nil {
		return err
	}
	if maxCount == 0 {
		return contractErr(dex.ErrParamError, "The max_count must > 0")
	}
	pair, ok := s.pair(f, pairID)
	if !ok {
		return contractErr(dex.ErrParamError, "The symbol pair=%d does not exist", pairID)
	}
	if !pair.Enabled {
		return contractErr(dex.ErrStatusError, "The indicated sym_pair=%d is disabled", pairID)
	}
	before := s.nextDeal
	buyScope := strconv.FormatUint(dex.OrderScope(pairID, dex.Buy), 10)
	buys := s.orders(f, buyScope)
	s.putOrders(f, buyScope, nil)
	for _, b := range buys {
		s.match(f, pair, b)
	}
	if s.nextDeal == before {
		return contractErr(dex.ErrParamError, "None matched")
	}
	return nil
}

func (s *dexSim) match(f *harnesstest.Fake, pair dex.SymbolPair, taker dex.Order) {
	opposite := dex.Sell
	if taker.OrderSide == dex.Sell {
		opposite = dex.Buy
	}
	pairID := uint64(pair.SymPairID)
	makerScope := strconv.FormatUint(dex.OrderScope(pairID, opposite), 10)
	makers := s.orders(f, makerScope)

	var kept []dex.Order
	for _, m := range makers {
		left, _ := taker.Remaining()
		crosses := (taker.OrderSide == dex.Buy && m.Price.Amount <= taker.Price.Amount) ||
			(taker.OrderSide == dex.Sell && m.Price.Amount >= taker.Price.Amount)
		if left.Amount == 0 || !crosses {
			kept = append(kept, m)
			continue
		}
		makerLeft, _ := m.Remaining()
		qty := left
		if makerLeft.Amount < qty.Amount {
			qty = makerLeft
		}
		coins, _ := dex.CoinQuant(qty, m.Price, pair.CoinSymbol.Symbol)
		taker.MatchedAssets, _ = taker.MatchedAssets.Add(qty)
		m.MatchedAssets, _ = m.MatchedAssets.Add(qty)

		s.nextDeal++
		deal := dex.Deal{
			ID:             chain.Uint64(s.nextDeal),
			SymPairID:      pair.SymPairID,
			DealAssets:     qty,
			DealCoins:      coins,
			DealPrice:      m.Price,
			TakerSide:      taker.OrderSide,
			BuyFee:         chain.Asset{Symbol: coins.Symbol},
			SellFee:        chain.Asset{Symbol: coins.Symbol},
			BuyRefundCoins: chain.Asset{Symbol: coins.Symbol},
		}
		if taker.OrderSide == dex.Buy {
			deal.BuyOrderID, deal.SellOrderID = taker.OrderID, m.OrderID
		} else {
			deal.BuyOrderID, deal.SellOrderID = m.OrderID, taker.OrderID
		}
		f.AppendRow(s.contract, s.scope(), "deal", deal)
		s.setLatestPrice(f, pairID, m.Price)

		if rem, _ := m.Remaining(); rem.Amount > 0 {
			kept = append(kept, m)
		}
	}
	s.putOrders(f, makerScope, kept)

	if left, _ := taker.Remaining(); left.Amount > 0 {
		scope := strconv.FormatUint(dex.OrderScope(pairID, taker.OrderSide), 10)
		f.AppendRow(s.contract, scope, "order", taker)
	}
	s.putGlobal(f)
}

func (s *dexSim) setLatestPrice(f *harnesstest.Fake, pairID uint64, price chain.Asset) {
	if p, ok := s.pair(f, pairID); ok {
		p.LatestDealPrice = price
		s.putPair(f, pairID, &p)
	}
}

// grantReward credits owner with a fee reward paid out of the dex's
// balance at bank.
func (s *dexSim) grantReward(f *harnesstest.Fake, owner, bank chain.Name, quant chain.Asset) {
	key := chain.ExtendedSymbol{Symbol: quant.Symbol, Contract: bank}
	rows := f.Rows(s.contract, s.scope(), "rewards")
	out := make([]json.RawMessage, 0, len(rows)+1)
	found := false
	for _, raw := range rows {
		var r dex.Rewards
		if err := json.Unmarshal(raw, &r); err == nil && r.Owner == owner {
			r.Rewards = append(r.Rewards, dex.RewardEntry{Key: key, Value: chain.Uint64(quant.Amount)})
			raw, _ = json.Marshal(r)
			found = true
		}
		out = append(out, raw)
	}
	if !found {
		b, _ := json.Marshal(dex.Rewards{Owner: owner, Rewards: []dex.RewardEntry{{Key: key, Value: chain.Uint64(quant.Amount)}}})
		out = append(out, b)
	}
	f.ReplaceRows(s.contract, s.scope(), "rewards", out)
	s.credit(f, bank, s.contract, quant)
}

// withdraw pays a reward out to its owner with the checks of the contract.
func (s *dexSim) withdraw(f *harnesstest.Fake, args []json.RawMessage) error {
	var user, bank chain.Name
	var qty string
	if err := unmarshalArgs(args, &user, &bank, &qty); err != nil {
		return err
	}
	quant := chain.MustParseAsset(qty)
	if quant.Amount <= 0 {
		return contractErr(dex.ErrParamError, "quantity must be positive")
	}
	key := chain.ExtendedSymbol{Symbol: quant.Symbol, Contract: bank}
	rows := f.Rows(s.contract, s.scope(), "rewards")
	for i, raw := range rows {
		var r dex.Rewards
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if r.Owner != user {
			continue
		}
		for j, e := range r.Rewards {
			if e.Key != key {
				continue
			}
			if int64(e.Value) < quant.Amount {
				return contractErr(dex.ErrParamError, "overdrawn user reward: %s", quant)
			}
			r.Rewards[j].Value -= chain.Uint64(quant.Amount)
			if r.Rewards[j].Value == 0 {
				r.Rewards = append(r.Rewards[:j], r.Rewards[j+1:]...)
			}
			out := append([]json.RawMessage{}, rows...)
			out[i], _ = json.Marshal(r)
			f.ReplaceRows(s.contract, s.scope(), "rewards", out)
			s.move(f, bank, s.contract, user, quant)
			return nil
		}
		return contractErr(dex.ErrStatusError, "the withdrawn symbol %s is not in the user rewards", key)
	}
	return contractErr(dex.ErrRecordNotFound, "user reward not found: %s", user)
}
