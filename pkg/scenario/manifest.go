// Package scenario describes an orderbookdex scenario as a TOML manifest:
// the accounts, tokens, pairs and orders a run sets up, and the table
// state it expects afterwards.
package scenario

// Manifest is the parsed form of a scenario file.
type Manifest struct {
	Name        string            `toml:"name"`
	Description string            `toml:"description"`
	Params      map[string]string `toml:"params"`

	Master      Master     `toml:"master"`
	Dex         Dex        `toml:"dex"`
	Accounts    []Account  `toml:"account"`
	Tokens      []Token    `toml:"token"`
	Contracts   []Contract `toml:"contract"`
	Transfers   []Transfer `toml:"transfer"`
	SymPairs    []SymPair  `toml:"sympair"`
	PairOps     []PairOp   `toml:"pairop"`
	Orders      []Order    `toml:"order"`
	Matches     []Match    `toml:"match"`
	Cancels     []Cancel   `toml:"cancel"`
	Withdrawals []Withdraw `toml:"withdraw"`
	Snapshots   []Snapshot `toml:"snapshot"`
	Checks      []Check    `toml:"check"`
	Balances    []Balance  `toml:"balance"`
}

// Master is the pre-existing account every other account descends from.
// Key is its WIF; when empty the configured master key is imported.
type Master struct {
	Account string `toml:"account"`
	Key     string `toml:"key"`
}

type Dex struct {
	Account    string `toml:"account"`
	Dir        string `toml:"dir"`
	Wasm       string `toml:"wasm"`
	ABI        string `toml:"abi"`
	SkipDeploy bool   `toml:"skip_deploy"`
	SkipInit   bool   `toml:"skip_init"`

	// Admin signs pair management. It must match the admin the contract
	// reports after init.
	Admin  string     `toml:"admin"`
	Config *DexConfig `toml:"config"`
}

// DexConfig overrides fields of the contract config after init. Zero
// values leave the current value in place.
type DexConfig struct {
	Admin             string `toml:"admin"`
	FeeCollector      string `toml:"fee_collector"`
	MakerFeeRatio     *int64 `toml:"maker_fee_ratio"`
	TakerFeeRatio     *int64 `toml:"taker_fee_ratio"`
	MaxMatchCount     uint32 `toml:"max_match_count"`
	AdminSignRequired *bool  `toml:"admin_sign_required"`
	ParentRewardRatio *int64 `toml:"parent_reward_ratio"`
	GrandRewardRatio  *int64 `toml:"grand_reward_ratio"`
}

// Account is created by Creator, which must be the master or an account
// declared earlier.
type Account struct {
	Name    string `toml:"name"`
	Creator string `toml:"creator"`
}

type Token struct {
	Account    string     `toml:"account"`
	Dir        string     `toml:"dir"`
	Wasm       string     `toml:"wasm"`
	ABI        string     `toml:"abi"`
	SkipDeploy bool       `toml:"skip_deploy"`
	Currencies []Currency `toml:"currency"`
}

// Currency is created with MaxSupply and, if Issue is set, that amount is
// issued to Issuer.
type Currency struct {
	MaxSupply string `toml:"max_supply"`
	Issuer    string `toml:"issuer"`
	Issue     string `toml:"issue"`
}

// Contract is any other contract the scenario needs on chain, such as a
// farm the dex config points at. It is deployed after the tokens.
type Contract struct {
	Account    string `toml:"account"`
	Dir        string `toml:"dir"`
	Wasm       string `toml:"wasm"`
	ABI        string `toml:"abi"`
	SkipDeploy bool   `toml:"skip_deploy"`
}

type Transfer struct {
	From     string `toml:"from"`
	To       string `toml:"to"`
	Quantity string `toml:"quantity"`
	Contract string `toml:"contract"`
	Memo     string `toml:"memo"`
}

type SymPair struct {
	Asset             string `toml:"asset"`
	Coin              string `toml:"coin"`
	MinAssetQuant     string `toml:"min_asset_quant"`
	MinCoinQuant      string `toml:"min_coin_quant"`
	OnlyAcceptCoinFee bool   `toml:"only_accept_coin_fee"`
	Enabled           *bool  `toml:"enabled"`
}

func (p SymPair) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

// Pair operations.
const (
	PairEnable  = "enable"
	PairDisable = "disable"
	PairDelete  = "delete"
)

// Pair operation phases: setup runs right after the pairs are set, cleanup
// after the withdrawals.
const (
	PhaseSetup   = "setup"
	PhaseCleanup = "cleanup"
)

// PairOp enables, disables or deletes a pair as the dex admin.
type PairOp struct {
	Pair        uint64 `toml:"pair"`
	Op          string `toml:"op"`
	Stage       string `toml:"stage"`
	ExpectError string `toml:"expect_error"`
}

// Order is placed with neworder and activated by depositing its frozen
// quantity. Deposit overrides the amount read from the queue row.
type Order struct {
	User        string         `toml:"user"`
	Pair        uint64         `toml:"pair"`
	Side        string         `toml:"side"`
	Quantity    string         `toml:"quantity"`
	Price       string         `toml:"price"`
	ExternalID  uint64         `toml:"external_id"`
	Deposit     string         `toml:"deposit"`
	ConfigEx    *OrderConfigEx `toml:"config_ex"`
	ExpectError string         `toml:"expect_error"`
}

type OrderConfigEx struct {
	TakerFeeRatio uint64 `toml:"taker_fee_ratio"`
	MakerFeeRatio uint64 `toml:"maker_fee_ratio"`
}

// Match asks the contract to cross up to MaxCount orders of a pair.
type Match struct {
	Matcher     string `toml:"matcher"`
	Pair        uint64 `toml:"pair"`
	MaxCount    uint32 `toml:"max_count"`
	Memo        string `toml:"memo"`
	ExpectError string `toml:"expect_error"`
}

// Cancel refers to an order by owner and external id.
type Cancel struct {
	User        string `toml:"user"`
	Pair        uint64 `toml:"pair"`
	Side        string `toml:"side"`
	ExternalID  uint64 `toml:"external_id"`
	ExpectError string `toml:"expect_error"`
}

type Withdraw struct {
	User        string `toml:"user"`
	Bank        string `toml:"bank"`
	Quantity    string `toml:"quantity"`
	Memo        string `toml:"memo"`
	ExpectError string `toml:"expect_error"`
}

// Snapshot persists a table's rows at the end of the run. Code defaults to
// the dex contract and Scope to Code.
type Snapshot struct {
	Label string `toml:"label"`
	Code  string `toml:"code"`
	Table string `toml:"table"`
	Scope string `toml:"scope"`
}

// Check asserts on a table after all steps ran. Where is a gjson query
// condition applied to each row, such as `owner=="buyer"`. Count compares
// the number of matching rows; Path and Equals compare a field of the
// first one.
type Check struct {
	Name   string `toml:"name"`
	Code   string `toml:"code"`
	Table  string `toml:"table"`
	Scope  string `toml:"scope"`
	Where  string `toml:"where"`
	Count  *int   `toml:"count"`
	Path   string `toml:"path"`
	Equals string `toml:"equals"`
}

// Balance asserts an account's token balance after all steps ran.
type Balance struct {
	Name     string `toml:"name"`
	Owner    string `toml:"owner"`
	Contract string `toml:"contract"`
	Equals   string `toml:"equals"`
}
