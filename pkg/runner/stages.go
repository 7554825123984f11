package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/uhyunpark/dexscenario/pkg/book"
	"github.com/uhyunpark/dexscenario/pkg/chain"
	"github.com/uhyunpark/dexscenario/pkg/crypto"
	"github.com/uhyunpark/dexscenario/pkg/dex"
	"github.com/uhyunpark/dexscenario/pkg/harness"
	"github.com/uhyunpark/dexscenario/pkg/scenario"
	"github.com/uhyunpark/dexscenario/pkg/token"
)

func (r *Runner) reset(ctx context.Context) error {
	if r.opts.SkipReset {
		r.skip("reset", "reset", "using the running chain")
	} else if err := r.step(ctx, "reset", "reset", "", func(ctx context.Context) (string, error) {
		return "", r.h.Reset(ctx)
	}); err != nil {
		return err
	}
	return r.step(ctx, "reset", "wait_ready", "", func(ctx context.Context) (string, error) {
		info, err := harness.WaitReady(ctx, r.h, r.clock, r.opts.PollInterval, r.opts.ReadyTimeout)
		if err != nil {
			return "", err
		}
		r.run.ChainID = info.ChainID
		return fmt.Sprintf("chain %s at block %d", info.ChainID, info.HeadBlockNum), nil
	})
}

func (r *Runner) master(ctx context.Context) error {
	master := chain.Name(r.m.Master.Account)
	key := r.m.Master.Key
	if key == "" {
		key = r.opts.MasterKey
	}
	if key != "" {
		if err := r.step(ctx, "master", "import_key", "", func(ctx context.Context) (string, error) {
			if _, err := crypto.FromWIF(key); err != nil {
				return "", err
			}
			return "", r.h.ImportKey(ctx, key)
		}); err != nil {
			return err
		}
	}
	return r.step(ctx, "master", string(master), "", func(ctx context.Context) (string, error) {
		ok, err := r.h.AccountExists(ctx, master)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("master account %s does not exist", master)
		}
		return "", nil
	})
}

// ensureAccount creates name under creator with a fresh key unless it
// already exists.
func (r *Runner) ensureAccount(ctx context.Context, stageName string, creator, name chain.Name) error {
	exists, err := r.h.AccountExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		r.skip(stageName, "create "+string(name), "account exists")
		return nil
	}
	return r.step(ctx, stageName, "create "+string(name), "", func(ctx context.Context) (string, error) {
		kp, err := crypto.GenerateKey()
		if err != nil {
			return "", err
		}
		if err := r.h.ImportKey(ctx, kp.WIF()); err != nil {
			return "", err
		}
		pub := kp.PublicKey(r.keyPrefix())
		if err := r.h.CreateAccount(ctx, creator, name, pub); err != nil {
			return "", err
		}
		return fmt.Sprintf("creator %s key %s", creator, pub), nil
	})
}

func (r *Runner) keyPrefix() string {
	if r.opts.KeyPrefix != "" {
		return r.opts.KeyPrefix
	}
	return crypto.DefaultPrefix
}

func (r *Runner) deploy(ctx context.Context, stageName string, account chain.Name, dir, wasm, abi string) error {
	if err := r.step(ctx, stageName, "set_contract "+string(account), "", func(ctx context.Context) (string, error) {
		return dir, r.h.SetContract(ctx, account, dir, wasm, abi)
	}); err != nil {
		return err
	}
	return r.step(ctx, stageName, "add_code "+string(account), "", func(ctx context.Context) (string, error) {
		return "", r.h.AddCodePermission(ctx, account)
	})
}

func (r *Runner) deployDex(ctx context.Context) error {
	d := r.m.Dex
	account := chain.Name(d.Account)
	if d.SkipDeploy {
		r.skip("dex", "deploy", "skip_deploy")
	} else {
		if err := r.ensureAccount(ctx, "dex", chain.Name(r.m.Master.Account), account); err != nil {
			return err
		}
		if err := r.deploy(ctx, "dex", account, d.Dir, d.Wasm, d.ABI); err != nil {
			return err
		}
	}
	if d.SkipInit {
		r.skip("dex", "init", "skip_init")
	} else if err := r.step(ctx, "dex", "init", "", func(ctx context.Context) (string, error) {
		tx, err := r.dex.Init(ctx)
		return tx.ID, err
	}); err != nil {
		return err
	}
	return r.step(ctx, "dex", "get_config", "", func(ctx context.Context) (string, error) {
		conf, ok, err := r.dex.GetConfig(ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("contract %s has no config", account)
		}
		r.admin = conf.DexAdmin
		return jsonDetail(conf), nil
	})
}

func (r *Runner) createAccounts(ctx context.Context) error {
	for _, a := range r.m.Accounts {
		if err := r.ensureAccount(ctx, "accounts", chain.Name(a.Creator), chain.Name(a.Name)); err != nil {
			return err
		}
	}
	return nil
}

// configureDex applies config overrides once the accounts they name exist,
// and checks the admin the scenario signs pair actions with.
func (r *Runner) configureDex(ctx context.Context) error {
	if o := r.m.Dex.Config; o != nil {
		if err := r.step(ctx, "config", "setconfig", "", func(ctx context.Context) (string, error) {
			conf, ok, err := r.dex.GetConfig(ctx)
			if err != nil {
				return "", err
			}
			if !ok {
				return "", fmt.Errorf("contract has no config to override")
			}
			applyConfig(&conf, o)
			if _, err := r.dex.SetConfig(ctx, conf); err != nil {
				return "", err
			}
			r.admin = conf.DexAdmin
			return jsonDetail(conf), nil
		}); err != nil {
			return err
		}
	}
	return r.step(ctx, "config", "admin", "", func(ctx context.Context) (string, error) {
		if r.admin != chain.Name(r.m.Dex.Admin) {
			return "", fmt.Errorf("dex admin is %q, scenario signs as %q", r.admin, r.m.Dex.Admin)
		}
		return string(r.admin), nil
	})
}

func applyConfig(conf *dex.Config, o *scenario.DexConfig) {
	if o.Admin != "" {
		conf.DexAdmin = chain.Name(o.Admin)
	}
	if o.FeeCollector != "" {
		conf.DexFeeCollector = chain.Name(o.FeeCollector)
	}
	if o.MakerFeeRatio != nil {
		conf.MakerFeeRatio = *o.MakerFeeRatio
	}
	if o.TakerFeeRatio != nil {
		conf.TakerFeeRatio = *o.TakerFeeRatio
	}
	if o.MaxMatchCount != 0 {
		conf.MaxMatchCount = o.MaxMatchCount
	}
	if o.AdminSignRequired != nil {
		conf.AdminSignRequired = *o.AdminSignRequired
	}
	if o.ParentRewardRatio != nil {
		conf.ParentRewardRatio = chain.Uint64(*o.ParentRewardRatio)
	}
	if o.GrandRewardRatio != nil {
		conf.GrandRewardRatio = chain.Uint64(*o.GrandRewardRatio)
	}
}

func (r *Runner) deployTokens(ctx context.Context) error {
	master := chain.Name(r.m.Master.Account)
	for _, t := range r.m.Tokens {
		account := chain.Name(t.Account)
		if t.SkipDeploy {
			r.skip("tokens", "deploy "+t.Account, "skip_deploy")
		} else {
			if err := r.ensureAccount(ctx, "tokens", master, account); err != nil {
				return err
			}
			if err := r.deploy(ctx, "tokens", account, t.Dir, t.Wasm, t.ABI); err != nil {
				return err
			}
		}
		tc := token.NewClient(r.h, account)
		for _, c := range t.Currencies {
			supply := chain.MustParseAsset(c.MaxSupply)
			issuer := chain.Name(c.Issuer)
			create := fmt.Sprintf("create %s@%s", supply.Symbol.Code, account)
			// An existing token is left as it is, issued supply included.
			st, exists, err := tc.Stat(ctx, supply.Symbol.Code)
			if err != nil {
				return r.report("tokens", create, "", "", err)
			}
			if exists {
				if st.MaxSupply != supply {
					return r.report("tokens", create, "", "", fmt.Errorf("token exists with max supply %s, scenario wants %s", st.MaxSupply, supply))
				}
				r.skip("tokens", create, fmt.Sprintf("token exists, supply %s", st.Supply))
				continue
			}
			if err := r.step(ctx, "tokens", create, "", func(ctx context.Context) (string, error) {
				tx, err := tc.Create(ctx, issuer, supply)
				return tx.ID, err
			}); err != nil {
				return err
			}
			if c.Issue == "" {
				continue
			}
			quantity := chain.MustParseAsset(c.Issue)
			if err := r.step(ctx, "tokens", fmt.Sprintf("issue %s to %s", quantity, issuer), "", func(ctx context.Context) (string, error) {
				tx, err := tc.Issue(ctx, issuer, quantity, "")
				return tx.ID, err
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// deployContracts sets up the scenario's other contracts the way the dex
// is set up, without an init.
func (r *Runner) deployContracts(ctx context.Context) error {
	master := chain.Name(r.m.Master.Account)
	for _, c := range r.m.Contracts {
		account := chain.Name(c.Account)
		if c.SkipDeploy {
			r.skip("contracts", "deploy "+c.Account, "skip_deploy")
			continue
		}
		if err := r.ensureAccount(ctx, "contracts", master, account); err != nil {
			return err
		}
		if err := r.deploy(ctx, "contracts", account, c.Dir, c.Wasm, c.ABI); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) fund(ctx context.Context) error {
	for _, t := range r.m.Transfers {
		quantity := chain.MustParseAsset(t.Quantity)
		tc := token.NewClient(r.h, chain.Name(t.Contract))
		name := fmt.Sprintf("%s -> %s %s", t.From, t.To, quantity)
		if err := r.step(ctx, "funding", name, "", func(ctx context.Context) (string, error) {
			tx, err := tc.Transfer(ctx, chain.Name(t.From), chain.Name(t.To), quantity, t.Memo)
			return tx.ID, err
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) setSymPairs(ctx context.Context) error {
	for _, p := range r.m.SymPairs {
		params := dex.SymPairParams{
			AssetSymbol:       mustExtSymbol(p.Asset),
			CoinSymbol:        mustExtSymbol(p.Coin),
			MinAssetQuant:     chain.MustParseAsset(p.MinAssetQuant),
			MinCoinQuant:      chain.MustParseAsset(p.MinCoinQuant),
			OnlyAcceptCoinFee: p.OnlyAcceptCoinFee,
			Enabled:           p.IsEnabled(),
		}
		name := fmt.Sprintf("%s/%s", params.AssetSymbol.Symbol.Code, params.CoinSymbol.Symbol.Code)
		if err := r.step(ctx, "sympairs", "setsympair "+name, "", func(ctx context.Context) (string, error) {
			tx, err := r.dex.SetSymPair(ctx, r.admin, params)
			return tx.ID, err
		}); err != nil {
			return err
		}
		if err := r.step(ctx, "sympairs", "get_sympair "+name, "", func(ctx context.Context) (string, error) {
			pair, ok, err := r.dex.FindSymPair(ctx, params.AssetSymbol, params.CoinSymbol)
			if err != nil {
				return "", err
			}
			if !ok {
				return "", fmt.Errorf("pair %s not found after setsympair", name)
			}
			r.pairs[uint64(pair.SymPairID)] = pair
			return jsonDetail(pair), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// pairOps runs the pair operations of one phase, signed by the dex admin.
func (r *Runner) pairOps(phase string) func(context.Context) error {
	stageName := "pairops"
	if phase == scenario.PhaseCleanup {
		stageName = "cleanup"
	}
	return func(ctx context.Context) error {
		for _, op := range r.m.PairOps {
			if op.Stage != phase {
				continue
			}
			label := fmt.Sprintf("%s pair %d", op.Op, op.Pair)
			if err := r.step(ctx, stageName, label, op.ExpectError, func(ctx context.Context) (string, error) {
				var tx harness.TxResult
				var err error
				if op.Op == scenario.PairDelete {
					tx, err = r.dex.DelSymPair(ctx, r.admin, op.Pair)
				} else {
					tx, err = r.dex.OnOffSymPair(ctx, r.admin, op.Pair, op.Op == scenario.PairEnable)
				}
				return tx.ID, err
			}); err != nil {
				return err
			}
			delete(r.pairs, op.Pair)
		}
		return nil
	}
}

// symPair returns a pair the scenario created, or reads it from the chain.
func (r *Runner) symPair(ctx context.Context, id uint64) (dex.SymbolPair, error) {
	if p, ok := r.pairs[id]; ok {
		return p, nil
	}
	p, ok, err := r.dex.GetSymPair(ctx, id)
	if err != nil {
		return p, err
	}
	if !ok {
		return p, fmt.Errorf("sympair %d does not exist", id)
	}
	r.pairs[id] = p
	return p, nil
}

func (r *Runner) placeOrders(ctx context.Context) error {
	touched := map[uint64]bool{}
	for _, o := range r.m.Orders {
		if err := r.placeOrder(ctx, o); err != nil {
			return err
		}
		touched[o.Pair] = true
	}
	for id := range touched {
		r.reportBook(ctx, "orders", id)
	}
	return nil
}

// placeOrder submits the order, deposits the quantity the contract froze
// for it and waits until the contract has taken the order off its queue.
func (r *Runner) placeOrder(ctx context.Context, o scenario.Order) error {
	user := chain.Name(o.User)
	side, _ := dex.ParseSide(o.Side)
	req := dex.OrderRequest{
		User:       user,
		SymPairID:  o.Pair,
		Side:       side,
		Quantity:   chain.MustParseAsset(o.Quantity),
		Price:      chain.MustParseAsset(o.Price),
		ExternalID: o.ExternalID,
	}
	if o.ConfigEx != nil {
		req.ConfigEx = &dex.OrderConfigEx{TakerFeeRatio: o.ConfigEx.TakerFeeRatio, MakerFeeRatio: o.ConfigEx.MakerFeeRatio}
	}
	label := fmt.Sprintf("%s %s %s @ %s #%d", user, side, req.Quantity, req.Price, o.ExternalID)

	// The expected error, if any, belongs to whichever of neworder and the
	// deposit fails first.
	tx, err := r.dex.NewOrder(ctx, req)
	if err != nil {
		return r.report("orders", "neworder "+label, o.ExpectError, "", err)
	}
	r.emit(Event{Stage: "orders", Step: "neworder " + label, Status: StatusOK, Detail: tx.ID})

	var queued dex.Order
	if err := r.step(ctx, "orders", "queued "+label, "", func(ctx context.Context) (string, error) {
		return "", r.waitFor(ctx, func(ctx context.Context) (bool, error) {
			q, ok, err := r.dex.QueuedOrder(ctx, user)
			queued = q
			return ok, err
		})
	}); err != nil {
		return err
	}

	pair, err := r.symPair(ctx, o.Pair)
	if err != nil {
		return err
	}
	deposit := queued.FrozenQuant
	if o.Deposit != "" {
		deposit = chain.MustParseAsset(o.Deposit)
	} else if want, err := dex.FrozenQuant(pair, side, req.Quantity, req.Price, queued.TakerFeeRatio); err == nil && want != deposit {
		r.logger.Warnw("frozen_quant_mismatch", "order", label, "queue", deposit, "computed", want)
	}
	bank := dex.DepositBank(pair, side)
	dexAccount := chain.Name(r.m.Dex.Account)

	tx, err = token.NewClient(r.h, bank).Transfer(ctx, user, dexAccount, deposit, "")
	if err := r.report("orders", fmt.Sprintf("deposit %s %s@%s", user, deposit, bank), o.ExpectError, tx.ID, err); err != nil || o.ExpectError != "" {
		return err
	}

	return r.step(ctx, "orders", "matched "+label, "", func(ctx context.Context) (string, error) {
		err := r.waitFor(ctx, func(ctx context.Context) (bool, error) {
			_, ok, err := r.dex.QueuedOrder(ctx, user)
			return !ok, err
		})
		if err != nil {
			return "", err
		}
		open, ok, err := r.openOrder(ctx, user, o.Pair, side, o.ExternalID)
		if err != nil || !ok {
			return "filled", err
		}
		return fmt.Sprintf("open order %d matched %s", open.OrderID, open.MatchedAssets), nil
	})
}

// openOrder finds the owner's order by external id in the matchable table.
func (r *Runner) openOrder(ctx context.Context, owner chain.Name, pairID uint64, side dex.Side, externalID uint64) (dex.Order, bool, error) {
	orders, err := r.dex.Orders(ctx, pairID, side)
	if err != nil {
		return dex.Order{}, false, err
	}
	for _, o := range orders {
		if o.Owner == owner && uint64(o.ExternalID) == externalID {
			return o, true, nil
		}
	}
	return dex.Order{}, false, nil
}

func (r *Runner) reportBook(ctx context.Context, stageName string, pairID uint64) {
	buys, err := r.dex.Orders(ctx, pairID, dex.Buy)
	if err != nil {
		r.logger.Warnw("book_read_failed", "pair", pairID, "error", err)
		return
	}
	sells, err := r.dex.Orders(ctx, pairID, dex.Sell)
	if err != nil {
		r.logger.Warnw("book_read_failed", "pair", pairID, "error", err)
		return
	}
	b, err := book.Build(buys, sells)
	if err != nil {
		r.logger.Warnw("book_build_failed", "pair", pairID, "error", err)
		return
	}
	r.emit(Event{Stage: stageName, Step: "book " + strconv.FormatUint(pairID, 10), Status: StatusOK, Detail: b.String()})
}

// matchOrders sends the scenario's match actions and reports the books
// they touched.
func (r *Runner) matchOrders(ctx context.Context) error {
	touched := map[uint64]bool{}
	for _, mt := range r.m.Matches {
		label := fmt.Sprintf("match pair %d by %s", mt.Pair, mt.Matcher)
		if err := r.step(ctx, "matches", label, mt.ExpectError, func(ctx context.Context) (string, error) {
			tx, err := r.dex.Match(ctx, chain.Name(mt.Matcher), mt.Pair, mt.MaxCount, mt.Memo)
			return tx.ID, err
		}); err != nil {
			return err
		}
		touched[mt.Pair] = true
	}
	for id := range touched {
		r.reportBook(ctx, "matches", id)
	}
	return nil
}

func (r *Runner) cancelOrders(ctx context.Context) error {
	for _, c := range r.m.Cancels {
		user := chain.Name(c.User)
		side, _ := dex.ParseSide(c.Side)
		label := fmt.Sprintf("cancel %s %s #%d", user, side, c.ExternalID)
		if err := r.step(ctx, "cancels", label, c.ExpectError, func(ctx context.Context) (string, error) {
			o, ok, err := r.openOrder(ctx, user, c.Pair, side, c.ExternalID)
			if err != nil {
				return "", err
			}
			if !ok {
				return "", fmt.Errorf("%s has no open %s order with external_id %d", user, side, c.ExternalID)
			}
			tx, err := r.dex.Cancel(ctx, user, c.Pair, side, uint64(o.OrderID))
			return tx.ID, err
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) withdraw(ctx context.Context) error {
	for _, w := range r.m.Withdrawals {
		quantity := chain.MustParseAsset(w.Quantity)
		label := fmt.Sprintf("withdraw %s %s@%s", w.User, quantity, w.Bank)
		if err := r.step(ctx, "withdrawals", label, w.ExpectError, func(ctx context.Context) (string, error) {
			tx, err := r.dex.Withdraw(ctx, chain.Name(w.User), chain.Name(w.Bank), quantity, w.Memo)
			return tx.ID, err
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) snapshot(ctx context.Context) error {
	for _, s := range r.m.Snapshots {
		label := fmt.Sprintf("%s %s/%s/%s", s.Label, s.Code, s.Scope, s.Table)
		if err := r.step(ctx, "snapshots", label, "", func(ctx context.Context) (string, error) {
			rows, err := r.h.TableRows(ctx, harness.TableQuery{Code: chain.Name(s.Code), Scope: s.Scope, Table: chain.Name(s.Table)})
			if err != nil {
				return "", err
			}
			r.logger.Debugw("table_snapshot", "table", label, "rows", len(rows))
			if r.recorder != nil {
				snap := Snapshot{
					RunID: r.run.ID,
					Label: s.Label,
					Code:  s.Code,
					Table: s.Table,
					Scope: s.Scope,
					Rows:  rows,
					At:    r.clock.Now(),
				}
				if err := r.recorder.SaveSnapshot(snap); err != nil {
					return "", fmt.Errorf("failed to save snapshot: %w", err)
				}
			}
			return fmt.Sprintf("%d rows", len(rows)), nil
		}); err != nil {
			return err
		}
	}
	return r.step(ctx, "snapshots", "summary", "", func(ctx context.Context) (string, error) {
		g, err := r.dex.GetGlobal(ctx)
		if err != nil {
			return "", err
		}
		deals, err := r.dex.Deals(ctx)
		if err != nil {
			return "", err
		}
		rewards, err := r.dex.Rewards(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("order_id=%d deal_item_id=%d deals=%d reward_holders=%d", g.OrderID, g.DealItemID, len(deals), len(rewards)), nil
	})
}

func mustExtSymbol(s string) chain.ExtendedSymbol {
	e, err := chain.ParseExtendedSymbol(s)
	if err != nil {
		panic(err)
	}
	return e
}

func jsonDetail(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
