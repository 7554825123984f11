package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/uhyunpark/dexscenario/pkg/dex"
)

//go:embed default.toml
var defaultManifest []byte

// DefaultManifest returns the built-in scenario: one seller and one buyer
// crossing on METH/MUSDT.
func DefaultManifest() []byte {
	out := make([]byte, len(defaultManifest))
	copy(out, defaultManifest)
	return out
}

// Load reads, expands and validates a manifest file. An empty path loads
// the built-in scenario.
func Load(path string, defaults, overrides map[string]string) (*Manifest, error) {
	data := defaultManifest
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read scenario: %w", err)
		}
	}
	m, err := Parse(data, defaults, overrides)
	if err != nil {
		if path == "" {
			path = "default scenario"
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest strictly, substitutes ${name} references and
// validates the result. Param precedence, lowest first: defaults, the
// manifest's [params], overrides.
func Parse(data []byte, defaults, overrides map[string]string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown scenario keys: %s", strings.Join(keys, ", "))
	}

	params := make(map[string]string, len(defaults)+len(m.Params)+len(overrides))
	for k, v := range defaults {
		params[k] = v
	}
	for k, v := range m.Params {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}
	m.Params = params

	if err := expand(reflect.ValueOf(&m).Elem(), params); err != nil {
		return nil, err
	}
	applyDefaults(&m)
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

var paramRe = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// expand replaces ${name} in every string field reachable from v, except
// the params map itself.
func expand(v reflect.Value, params map[string]string) error {
	var missing []string
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		switch v.Kind() {
		case reflect.Pointer:
			if !v.IsNil() {
				walk(v.Elem())
			}
		case reflect.Struct:
			for i := 0; i < v.NumField(); i++ {
				if v.Type().Field(i).Name == "Params" {
					continue
				}
				walk(v.Field(i))
			}
		case reflect.Slice:
			for i := 0; i < v.Len(); i++ {
				walk(v.Index(i))
			}
		case reflect.String:
			s := paramRe.ReplaceAllStringFunc(v.String(), func(ref string) string {
				name := paramRe.FindStringSubmatch(ref)[1]
				val, ok := params[name]
				if !ok {
					missing = append(missing, name)
					return ref
				}
				return val
			})
			v.SetString(s)
		}
	}
	walk(v)
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("undefined params: %s", strings.Join(dedup(missing), ", "))
	}
	return nil
}

func dedup(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func applyDefaults(m *Manifest) {
	if m.Master.Account == "" {
		m.Master.Account = "amax"
	}
	if m.Dex.Account == "" {
		m.Dex.Account = "orderbookdex"
	}
	if m.Dex.Admin == "" {
		m.Dex.Admin = "dexadmin"
	}
	for i := range m.Accounts {
		if m.Accounts[i].Creator == "" {
			m.Accounts[i].Creator = m.Master.Account
		}
	}
	for i := range m.PairOps {
		if m.PairOps[i].Stage == "" {
			m.PairOps[i].Stage = PhaseSetup
		}
	}
	for i := range m.Matches {
		mt := &m.Matches[i]
		if mt.Matcher == "" {
			mt.Matcher = m.Dex.Admin
		}
		if mt.MaxCount == 0 {
			mt.MaxCount = dex.MatchCountMax
		}
	}
	for i := range m.Snapshots {
		s := &m.Snapshots[i]
		if s.Label == "" {
			s.Label = "final"
		}
		if s.Code == "" {
			s.Code = m.Dex.Account
		}
		if s.Scope == "" {
			s.Scope = s.Code
		}
	}
	for i := range m.Checks {
		c := &m.Checks[i]
		if c.Code == "" {
			c.Code = m.Dex.Account
		}
		if c.Scope == "" {
			c.Scope = c.Code
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("check-%d", i+1)
		}
	}
	for i := range m.Balances {
		b := &m.Balances[i]
		if b.Name == "" {
			b.Name = fmt.Sprintf("%s holds %s", b.Owner, b.Equals)
		}
	}
}

// ParseParams turns k=v pairs into a map.
func ParseParams(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	var errs []error
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			errs = append(errs, fmt.Errorf("param %q: expected name=value", p))
			continue
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, errors.Join(errs...)
}
