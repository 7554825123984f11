package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/uhyunpark/dexscenario/pkg/chain"
	"github.com/uhyunpark/dexscenario/pkg/dex"
)

// Validate reports every problem in the manifest at once.
func Validate(m *Manifest) error {
	v := &validator{known: map[string]bool{}}

	v.name("master.account", m.Master.Account)
	v.known[m.Master.Account] = true

	v.name("dex.account", m.Dex.Account)
	v.name("dex.admin", m.Dex.Admin)
	if !m.Dex.SkipDeploy && m.Dex.Dir == "" {
		v.errorf("dex.dir: required unless skip_deploy is set")
	}
	v.known[m.Dex.Account] = true
	if c := m.Dex.Config; c != nil {
		if c.Admin != "" {
			v.name("dex.config.admin", c.Admin)
		}
		if c.FeeCollector != "" {
			v.name("dex.config.fee_collector", c.FeeCollector)
		}
		for title, r := range map[string]*int64{"maker_fee_ratio": c.MakerFeeRatio, "taker_fee_ratio": c.TakerFeeRatio} {
			if r != nil {
				if err := dex.ValidateFeeRatio(*r, title); err != nil {
					v.errorf("dex.config: %v", err)
				}
			}
		}
	}

	for i, a := range m.Accounts {
		field := fmt.Sprintf("account[%d]", i)
		v.name(field+".name", a.Name)
		if v.known[a.Name] {
			v.errorf("%s: account %q declared twice", field, a.Name)
		}
		if !v.known[a.Creator] {
			v.errorf("%s: creator %q must be the master or declared before", field, a.Creator)
		}
		v.known[a.Name] = true
	}

	for i, t := range m.Tokens {
		field := fmt.Sprintf("token[%d]", i)
		v.name(field+".account", t.Account)
		if !t.SkipDeploy && t.Dir == "" {
			v.errorf("%s.dir: required unless skip_deploy is set", field)
		}
		v.known[t.Account] = true
		for j, c := range t.Currencies {
			cf := fmt.Sprintf("%s.currency[%d]", field, j)
			maxSupply := v.asset(cf+".max_supply", c.MaxSupply)
			if !v.known[c.Issuer] {
				v.errorf("%s: issuer %q is not a declared account", cf, c.Issuer)
			}
			if c.Issue != "" {
				issue := v.asset(cf+".issue", c.Issue)
				if issue.Symbol != maxSupply.Symbol {
					v.errorf("%s: issue %s does not match max supply %s", cf, c.Issue, c.MaxSupply)
				} else if issue.Amount > maxSupply.Amount {
					v.errorf("%s: issue %s exceeds max supply %s", cf, c.Issue, c.MaxSupply)
				}
			}
		}
	}

	for i, c := range m.Contracts {
		field := fmt.Sprintf("contract[%d]", i)
		v.name(field+".account", c.Account)
		if !c.SkipDeploy && c.Dir == "" {
			v.errorf("%s.dir: required unless skip_deploy is set", field)
		}
		v.known[c.Account] = true
	}

	for i, t := range m.Transfers {
		field := fmt.Sprintf("transfer[%d]", i)
		v.declared(field+".from", t.From)
		v.declared(field+".to", t.To)
		v.name(field+".contract", t.Contract)
		if q := v.asset(field+".quantity", t.Quantity); q.Amount <= 0 && !q.Symbol.IsZero() {
			v.errorf("%s.quantity: must be positive", field)
		}
	}

	pairs := make([]chain.ExtendedSymbol, 0, len(m.SymPairs))
	for i, p := range m.SymPairs {
		field := fmt.Sprintf("sympair[%d]", i)
		asset := v.extSymbol(field+".asset", p.Asset)
		coin := v.extSymbol(field+".coin", p.Coin)
		if asset.Symbol.Code != "" && asset.Symbol.Code == coin.Symbol.Code {
			v.errorf("%s: asset and coin have the same code %s", field, asset.Symbol.Code)
		}
		if q := v.asset(field+".min_asset_quant", p.MinAssetQuant); !q.Symbol.IsZero() && q.Symbol != asset.Symbol {
			v.errorf("%s.min_asset_quant: symbol %s mismatch with %s", field, q.Symbol, asset.Symbol)
		}
		if q := v.asset(field+".min_coin_quant", p.MinCoinQuant); !q.Symbol.IsZero() && q.Symbol != coin.Symbol {
			v.errorf("%s.min_coin_quant: symbol %s mismatch with %s", field, q.Symbol, coin.Symbol)
		}
		pairs = append(pairs, asset, coin)
	}

	for i, op := range m.PairOps {
		field := fmt.Sprintf("pairop[%d]", i)
		v.pair(field, op.Pair)
		switch op.Op {
		case PairEnable, PairDisable, PairDelete:
		default:
			v.errorf("%s.op: %q is not one of enable, disable, delete", field, op.Op)
		}
		if op.Stage != PhaseSetup && op.Stage != PhaseCleanup {
			v.errorf("%s.stage: %q is not one of setup, cleanup", field, op.Stage)
		}
		v.expectError(field, op.ExpectError)
	}

	type orderKey struct {
		user string
		ext  uint64
	}
	orders := map[orderKey]string{}
	for i, o := range m.Orders {
		field := fmt.Sprintf("order[%d]", i)
		v.declared(field+".user", o.User)
		side := v.side(field+".side", o.Side)
		qty := v.asset(field+".quantity", o.Quantity)
		price := v.asset(field+".price", o.Price)
		if qty.Amount <= 0 && !qty.Symbol.IsZero() {
			v.errorf("%s.quantity: must be positive", field)
		}
		if o.Pair == 0 {
			v.errorf("%s.pair: sympair ids start at 1", field)
		} else if int(o.Pair) <= len(m.SymPairs) {
			asset, coin := pairs[2*(o.Pair-1)], pairs[2*(o.Pair-1)+1]
			if !qty.Symbol.IsZero() && !asset.Symbol.IsZero() && qty.Symbol != asset.Symbol {
				v.errorf("%s.quantity: symbol %s mismatch with pair asset %s", field, qty.Symbol, asset.Symbol)
			}
			if !price.Symbol.IsZero() && !coin.Symbol.IsZero() && price.Symbol != coin.Symbol {
				v.errorf("%s.price: symbol %s mismatch with pair coin %s", field, price.Symbol, coin.Symbol)
			}
		}
		if o.Deposit != "" {
			v.asset(field+".deposit", o.Deposit)
		}
		if o.ConfigEx != nil {
			for title, r := range map[string]uint64{"taker_fee_ratio": o.ConfigEx.TakerFeeRatio, "maker_fee_ratio": o.ConfigEx.MakerFeeRatio} {
				if err := dex.ValidateFeeRatio(int64(r), title); err != nil {
					v.errorf("%s.config_ex: %v", field, err)
				}
			}
		}
		v.expectError(field, o.ExpectError)
		k := orderKey{o.User, o.ExternalID}
		if _, dup := orders[k]; dup {
			v.errorf("%s: external_id %d already used by %s", field, o.ExternalID, o.User)
		}
		orders[k] = string(side)
	}

	for i, mt := range m.Matches {
		field := fmt.Sprintf("match[%d]", i)
		v.declared(field+".matcher", mt.Matcher)
		v.pair(field, mt.Pair)
		if mt.MaxCount > dex.MatchCountMax {
			v.errorf("%s.max_count: %d exceeds %d", field, mt.MaxCount, dex.MatchCountMax)
		}
		v.expectError(field, mt.ExpectError)
	}

	for i, c := range m.Cancels {
		field := fmt.Sprintf("cancel[%d]", i)
		v.declared(field+".user", c.User)
		side := v.side(field+".side", c.Side)
		if s, ok := orders[orderKey{c.User, c.ExternalID}]; !ok {
			v.errorf("%s: no order of %s with external_id %d", field, c.User, c.ExternalID)
		} else if side != "" && s != string(side) {
			v.errorf("%s: order %d of %s is a %s order", field, c.ExternalID, c.User, s)
		}
		v.expectError(field, c.ExpectError)
	}

	for i, w := range m.Withdrawals {
		field := fmt.Sprintf("withdraw[%d]", i)
		v.declared(field+".user", w.User)
		v.name(field+".bank", w.Bank)
		v.asset(field+".quantity", w.Quantity)
		v.expectError(field, w.ExpectError)
	}

	for i, s := range m.Snapshots {
		field := fmt.Sprintf("snapshot[%d]", i)
		v.name(field+".table", s.Table)
		v.name(field+".code", s.Code)
		// ':' separates the parts of a stored snapshot key
		if strings.Contains(s.Label, ":") {
			v.errorf("%s.label: %q must not contain ':'", field, s.Label)
		}
		if strings.Contains(s.Scope, ":") {
			v.errorf("%s.scope: %q must not contain ':'", field, s.Scope)
		}
	}

	for i, c := range m.Checks {
		field := fmt.Sprintf("check[%d]", i)
		v.name(field+".table", c.Table)
		v.name(field+".code", c.Code)
		if c.Count == nil && c.Path == "" {
			v.errorf("%s: needs count or path", field)
		}
		if c.Equals != "" && c.Path == "" {
			v.errorf("%s: equals needs a path", field)
		}
	}

	for i, b := range m.Balances {
		field := fmt.Sprintf("balance[%d]", i)
		v.declared(field+".owner", b.Owner)
		v.name(field+".contract", b.Contract)
		v.asset(field+".equals", b.Equals)
	}

	return errors.Join(v.errs...)
}

type validator struct {
	known map[string]bool
	errs  []error
}

func (v *validator) errorf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) name(field, s string) {
	if err := chain.Name(s).Validate(); err != nil {
		v.errorf("%s: %v", field, err)
	}
}

func (v *validator) declared(field, s string) {
	v.name(field, s)
	if s != "" && !v.known[s] {
		v.errorf("%s: account %q is not declared", field, s)
	}
}

func (v *validator) pair(field string, id uint64) {
	if id == 0 {
		v.errorf("%s.pair: sympair ids start at 1", field)
	}
}

func (v *validator) asset(field, s string) chain.Asset {
	a, err := chain.ParseAsset(s)
	if err != nil {
		v.errorf("%s: %v", field, err)
	}
	return a
}

func (v *validator) extSymbol(field, s string) chain.ExtendedSymbol {
	e, err := chain.ParseExtendedSymbol(s)
	if err != nil {
		v.errorf("%s: %v", field, err)
	}
	return e
}

func (v *validator) side(field, s string) dex.Side {
	side, err := dex.ParseSide(s)
	if err != nil {
		v.errorf("%s: %v", field, err)
	}
	return side
}

func (v *validator) expectError(field, s string) {
	if s == "" {
		return
	}
	if _, err := dex.ParseErrCode(s); err != nil {
		v.errorf("%s.expect_error: %v", field, err)
	}
}
