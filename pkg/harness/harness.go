// Package harness is the boundary to the external chain: it creates accounts,
// deploys contracts, pushes actions and reads tables on a running node.
package harness

import (
	"context"
	"encoding/json"

	"github.com/uhyunpark/dexscenario/pkg/chain"
)

// Action is one contract action signed by Actor's active permission. Data is
// marshalled to JSON; positional arguments are passed as a slice.
type Action struct {
	Account chain.Name
	Name    chain.Name
	Actor   chain.Name
	Data    any
}

type TxResult struct {
	ID       string
	BlockNum uint64
	Raw      json.RawMessage
}

// TableQuery selects rows of a contract table. Scope is a name or a decimal
// number. Limit 0 means all rows.
type TableQuery struct {
	Code  chain.Name
	Scope string
	Table chain.Name
	Lower string
	Upper string
	Limit int
}

type ChainInfo struct {
	ChainID          string `json:"chain_id"`
	HeadBlockNum     uint64 `json:"head_block_num"`
	LastIrreversible uint64 `json:"last_irreversible_block_num"`
	ServerVersion    string `json:"server_version_string"`
}

// Harness is what a scenario needs from the chain.
type Harness interface {
	Reset(ctx context.Context) error
	Stop(ctx context.Context) error
	Info(ctx context.Context) (ChainInfo, error)
	ImportKey(ctx context.Context, wif string) error
	AccountExists(ctx context.Context, name chain.Name) (bool, error)
	CreateAccount(ctx context.Context, creator, name chain.Name, publicKey string) error
	SetContract(ctx context.Context, account chain.Name, dir, wasm, abi string) error
	AddCodePermission(ctx context.Context, account chain.Name) error
	PushAction(ctx context.Context, act Action) (TxResult, error)
	TableRows(ctx context.Context, q TableQuery) ([]json.RawMessage, error)
}
