package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Chain struct {
	URL            string // HTTP chain API used for reads
	WalletURL      string
	CLI            string // cleos-compatible binary, e.g. amcli
	WalletName     string
	WalletPassword string
	KeyPrefix      string // public key prefix, "AM" on AMAX
	MasterAccount  string
	MasterKey      string // WIF of the master account, imported on start

	// ResetCmd and StopCmd are run verbatim (split on whitespace). They are
	// expected to wipe and restart, or stop, the local node.
	ResetCmd []string
	StopCmd  []string
}

type Contracts struct {
	TemplateWasmPath string // token/farm templates
	CustomerWasmPath string // orderbookdex build output
}

type Runner struct {
	PollInterval  time.Duration
	SettleTimeout time.Duration
	// ReadyTimeout bounds the wait for the chain API after a reset.
	ReadyTimeout time.Duration
}

type Storage struct {
	Path string
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Log struct {
	File    string
	Verbose bool
}

type Config struct {
	Chain     Chain
	Contracts Contracts
	Runner    Runner
	Storage   Storage
	API       API
	Log       Log
}

func Default() Config {
	return Config{
		Chain: Chain{
			URL:           "http://127.0.0.1:8888",
			WalletURL:     "http://127.0.0.1:6666",
			CLI:           "amcli",
			WalletName:    "default",
			KeyPrefix:     "AM",
			MasterAccount: "amax",
		},
		Contracts: Contracts{
			TemplateWasmPath: "contracts/templates",
			CustomerWasmPath: "contracts/build",
		},
		Runner: Runner{
			PollInterval:  250 * time.Millisecond,
			SettleTimeout: 10 * time.Second, // a few blocks at 0.5s each
			ReadyTimeout:  30 * time.Second,
		},
		Storage: Storage{Path: "data/runs"},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Log: Log{File: "data/dexrun.log"},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Chain.URL = getEnv("CHAIN_URL", cfg.Chain.URL)
	cfg.Chain.WalletURL = getEnv("WALLET_URL", cfg.Chain.WalletURL)
	cfg.Chain.CLI = getEnv("CHAIN_CLI", cfg.Chain.CLI)
	cfg.Chain.WalletName = getEnv("WALLET_NAME", cfg.Chain.WalletName)
	cfg.Chain.WalletPassword = getEnv("WALLET_PASSWORD", cfg.Chain.WalletPassword)
	cfg.Chain.KeyPrefix = getEnv("KEY_PREFIX", cfg.Chain.KeyPrefix)
	cfg.Chain.MasterAccount = getEnv("MASTER_ACCOUNT", cfg.Chain.MasterAccount)
	cfg.Chain.MasterKey = getEnv("MASTER_KEY", cfg.Chain.MasterKey)
	if v := os.Getenv("RESET_CMD"); v != "" {
		cfg.Chain.ResetCmd = strings.Fields(v)
	}
	if v := os.Getenv("STOP_CMD"); v != "" {
		cfg.Chain.StopCmd = strings.Fields(v)
	}

	cfg.Contracts.TemplateWasmPath = getEnv("CONTRACT_WASM_PATH", cfg.Contracts.TemplateWasmPath)
	cfg.Contracts.CustomerWasmPath = getEnv("CUSTOMER_WASM_PATH", cfg.Contracts.CustomerWasmPath)

	cfg.Runner.PollInterval = getEnvMillis("POLL_INTERVAL_MS", cfg.Runner.PollInterval)
	cfg.Runner.SettleTimeout = getEnvMillis("SETTLE_TIMEOUT_MS", cfg.Runner.SettleTimeout)
	cfg.Runner.ReadyTimeout = getEnvMillis("READY_TIMEOUT_MS", cfg.Runner.ReadyTimeout)

	cfg.Storage.Path = getEnv("STORE_PATH", cfg.Storage.Path)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("API_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	if v := os.Getenv("VERBOSE"); v != "" {
		cfg.Log.Verbose = v == "true"
	}

	return cfg
}

// Params returns the values a scenario manifest may reference as ${name}.
func (c Config) Params() map[string]string {
	return map[string]string{
		"template_wasm_path": c.Contracts.TemplateWasmPath,
		"customer_wasm_path": c.Contracts.CustomerWasmPath,
		"master":             c.Chain.MasterAccount,
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
