// Package harnesstest provides an in-memory harness.Harness for tests.
package harnesstest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/uhyunpark/dexscenario/pkg/chain"
	"github.com/uhyunpark/dexscenario/pkg/harness"
)

// Fake records every call and serves tables from memory. OnPush, when set,
// decides the outcome of each pushed action and may mutate the tables.
type Fake struct {
	mu       sync.Mutex
	Accounts map[chain.Name]string
	Keys     []string
	Deployed map[chain.Name]string
	Actions  []harness.Action
	Resets   int
	Stops    int

	tables map[string][]json.RawMessage
	txSeq  int

	OnPush func(f *Fake, act harness.Action) error
}

func New(master chain.Name) *Fake {
	return &Fake{
		Accounts: map[chain.Name]string{master: ""},
		Deployed: map[chain.Name]string{},
		tables:   map[string][]json.RawMessage{},
	}
}

func tableKey(code chain.Name, scope string, table chain.Name) string {
	return string(code) + "/" + scope + "/" + string(table)
}

// SetRows replaces a table's rows. Values are JSON encoded.
func (f *Fake) SetRows(code chain.Name, scope string, table chain.Name, rows ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setRowsLocked(code, scope, table, rows...)
}

func (f *Fake) setRowsLocked(code chain.Name, scope string, table chain.Name, rows ...any) {
	raw := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		if m, ok := r.(json.RawMessage); ok {
			raw = append(raw, m)
			continue
		}
		b, err := json.Marshal(r)
		if err != nil {
			panic(err)
		}
		raw = append(raw, b)
	}
	f.tables[tableKey(code, scope, table)] = raw
}

// AppendRow adds one row; it may be called from OnPush.
func (f *Fake) AppendRow(code chain.Name, scope string, table chain.Name, row any) {
	b, err := json.Marshal(row)
	if err != nil {
		panic(err)
	}
	k := tableKey(code, scope, table)
	f.tables[k] = append(f.tables[k], b)
}

// Rows returns a table's rows; it may be called from OnPush.
func (f *Fake) Rows(code chain.Name, scope string, table chain.Name) []json.RawMessage {
	return f.tables[tableKey(code, scope, table)]
}

// ReplaceRows swaps a table's rows; it may be called from OnPush.
func (f *Fake) ReplaceRows(code chain.Name, scope string, table chain.Name, rows []json.RawMessage) {
	f.tables[tableKey(code, scope, table)] = rows
}

func (f *Fake) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resets++
	return nil
}

func (f *Fake) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stops++
	return nil
}

func (f *Fake) Info(context.Context) (harness.ChainInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return harness.ChainInfo{ChainID: "fake", HeadBlockNum: uint64(10 + f.txSeq)}, nil
}

func (f *Fake) ImportKey(_ context.Context, wif string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = append(f.Keys, wif)
	return nil
}

func (f *Fake) AccountExists(_ context.Context, name chain.Name) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Accounts[name]
	return ok, nil
}

func (f *Fake) CreateAccount(_ context.Context, creator, name chain.Name, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Accounts[creator]; !ok {
		return fmt.Errorf("creator %s does not exist", creator)
	}
	if _, ok := f.Accounts[name]; ok {
		return fmt.Errorf("account %s already exists", name)
	}
	f.Accounts[name] = publicKey
	return nil
}

func (f *Fake) SetContract(_ context.Context, account chain.Name, dir, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Accounts[account]; !ok {
		return fmt.Errorf("account %s does not exist", account)
	}
	f.Deployed[account] = dir
	return nil
}

func (f *Fake) AddCodePermission(_ context.Context, account chain.Name) error {
	return nil
}

func (f *Fake) PushAction(_ context.Context, act harness.Action) (harness.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Round-trip the data so OnPush sees what a node would receive.
	b, err := json.Marshal(act.Data)
	if err != nil {
		return harness.TxResult{}, err
	}
	act.Data = json.RawMessage(b)
	if f.OnPush != nil {
		if err := f.OnPush(f, act); err != nil {
			return harness.TxResult{}, err
		}
	}
	f.Actions = append(f.Actions, act)
	f.txSeq++
	return harness.TxResult{ID: fmt.Sprintf("tx%04d", f.txSeq), BlockNum: uint64(10 + f.txSeq)}, nil
}

func (f *Fake) TableRows(_ context.Context, q harness.TableQuery) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.tables[tableKey(q.Code, q.Scope, q.Table)]
	out := make([]json.RawMessage, len(rows))
	copy(out, rows)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Pushed returns the recorded actions named name.
func (f *Fake) Pushed(name chain.Name) []harness.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []harness.Action
	for _, a := range f.Actions {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

var _ harness.Harness = (*Fake)(nil)
