package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// MaxAmount is the largest magnitude an asset amount may hold on chain.
const MaxAmount = int64(1)<<62 - 1

// Symbol is a token symbol with its decimal precision, written "8,METH".
type Symbol struct {
	Precision uint8
	Code      string
}

func ParseSymbol(s string) (Symbol, error) {
	prec, code, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Symbol{}, fmt.Errorf("symbol %q: expected <precision>,<CODE>", s)
	}
	p, err := strconv.ParseUint(prec, 10, 8)
	if err != nil || p > 18 {
		return Symbol{}, fmt.Errorf("symbol %q: precision must be 0..18", s)
	}
	sym := Symbol{Precision: uint8(p), Code: code}
	if err := validateCode(code); err != nil {
		return Symbol{}, fmt.Errorf("symbol %q: %w", s, err)
	}
	return sym, nil
}

func validateCode(code string) error {
	if len(code) == 0 || len(code) > 7 {
		return fmt.Errorf("code %q must be 1..7 characters", code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return fmt.Errorf("code %q must be upper-case letters", code)
		}
	}
	return nil
}

func (s Symbol) String() string { return fmt.Sprintf("%d,%s", s.Precision, s.Code) }

func (s Symbol) IsZero() bool { return s.Code == "" }

func (s Symbol) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Symbol) UnmarshalText(b []byte) error {
	sym, err := ParseSymbol(string(b))
	if err != nil {
		return err
	}
	*s = sym
	return nil
}

// Asset is an integer amount in the smallest unit of Symbol.
type Asset struct {
	Amount int64
	Symbol Symbol
}

// ParseAsset parses "0.01000000 METH". The number of decimals fixes the
// precision; any amount of whitespace may separate amount and code.
func ParseAsset(s string) (Asset, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Asset{}, fmt.Errorf("asset %q: expected \"<amount> <CODE>\"", s)
	}
	num, code := fields[0], fields[1]
	if err := validateCode(code); err != nil {
		return Asset{}, fmt.Errorf("asset %q: %w", s, err)
	}

	neg := strings.HasPrefix(num, "-")
	num = strings.TrimPrefix(num, "-")
	whole, frac, hasDot := strings.Cut(num, ".")
	if whole == "" || (hasDot && frac == "") {
		return Asset{}, fmt.Errorf("asset %q: malformed amount", s)
	}
	if len(frac) > 18 {
		return Asset{}, fmt.Errorf("asset %q: precision must be 0..18", s)
	}
	for _, part := range []string{whole, frac} {
		for i := 0; i < len(part); i++ {
			if part[i] < '0' || part[i] > '9' {
				return Asset{}, fmt.Errorf("asset %q: malformed amount", s)
			}
		}
	}
	amount, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil || amount > MaxAmount {
		return Asset{}, fmt.Errorf("asset %q: amount out of range", s)
	}
	if neg {
		amount = -amount
	}
	return Asset{Amount: amount, Symbol: Symbol{Precision: uint8(len(frac)), Code: code}}, nil
}

// MustParseAsset is for literals in tests and defaults.
func MustParseAsset(s string) Asset {
	a, err := ParseAsset(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Asset) String() string {
	abs := a.Amount
	sign := ""
	if abs < 0 {
		sign = "-"
		abs = -abs
	}
	digits := strconv.FormatInt(abs, 10)
	p := int(a.Symbol.Precision)
	if p == 0 {
		return sign + digits + " " + a.Symbol.Code
	}
	if len(digits) <= p {
		digits = strings.Repeat("0", p-len(digits)+1) + digits
	}
	cut := len(digits) - p
	return sign + digits[:cut] + "." + digits[cut:] + " " + a.Symbol.Code
}

func (a Asset) IsZero() bool { return a.Amount == 0 }

func (a Asset) Add(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("symbol mismatch: %s + %s", a.Symbol, b.Symbol)
	}
	sum := a.Amount + b.Amount
	if sum > MaxAmount || sum < -MaxAmount {
		return Asset{}, fmt.Errorf("overflow: %s + %s", a, b)
	}
	return Asset{Amount: sum, Symbol: a.Symbol}, nil
}

func (a Asset) Sub(b Asset) (Asset, error) {
	return a.Add(Asset{Amount: -b.Amount, Symbol: b.Symbol})
}

func (a Asset) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Asset) UnmarshalText(b []byte) error {
	v, err := ParseAsset(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ExtendedSymbol pins a symbol to the token contract ("bank") that issues it.
type ExtendedSymbol struct {
	Symbol   Symbol
	Contract Name
}

// ParseExtendedSymbol parses the manifest form "8,METH@amax.mtoken".
func ParseExtendedSymbol(s string) (ExtendedSymbol, error) {
	symPart, contract, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return ExtendedSymbol{}, fmt.Errorf("extended symbol %q: expected <precision>,<CODE>@<contract>", s)
	}
	sym, err := ParseSymbol(symPart)
	if err != nil {
		return ExtendedSymbol{}, err
	}
	if err := Name(contract).Validate(); err != nil {
		return ExtendedSymbol{}, fmt.Errorf("extended symbol %q: %w", s, err)
	}
	return ExtendedSymbol{Symbol: sym, Contract: Name(contract)}, nil
}

func (e ExtendedSymbol) String() string { return e.Symbol.String() + "@" + string(e.Contract) }

type extendedSymbolJSON struct {
	Sym      Symbol `json:"sym"`
	Contract Name   `json:"contract"`
}

func (e ExtendedSymbol) MarshalJSON() ([]byte, error) {
	return json.Marshal(extendedSymbolJSON{Sym: e.Symbol, Contract: e.Contract})
}

// UnmarshalJSON accepts the chain's object form and the manifest string form.
func (e *ExtendedSymbol) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseExtendedSymbol(s)
		if err != nil {
			return err
		}
		*e = v
		return nil
	}
	var raw extendedSymbolJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Symbol, e.Contract = raw.Sym, raw.Contract
	return nil
}

func (e *ExtendedSymbol) UnmarshalText(b []byte) error {
	v, err := ParseExtendedSymbol(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Pow10 returns 10^n for n in [0, 18].
func Pow10(n uint8) (int64, error) {
	if n > 18 {
		return 0, fmt.Errorf("precision digit %d should be in range [0,18]", n)
	}
	ret := int64(1)
	for i := uint8(0); i < n; i++ {
		ret *= 10
	}
	return ret, nil
}

// MulDiv computes a*b/c with a 128-bit intermediate, truncating toward zero,
// and fails if the result does not fit an int64.
func MulDiv(a, b, c int64) (int64, error) {
	if c == 0 {
		return 0, fmt.Errorf("division by zero")
	}
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	if !r.IsInt64() {
		return 0, fmt.Errorf("%d*%d/%d overflows int64", a, b, c)
	}
	return r.Int64(), nil
}
