package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/uhyunpark/dexscenario/pkg/chain"
	"github.com/uhyunpark/dexscenario/pkg/harness"
	"github.com/uhyunpark/dexscenario/pkg/scenario"
	"github.com/uhyunpark/dexscenario/pkg/token"
)

// check evaluates every table check and balance check and reports all
// mismatches together.
func (r *Runner) check(ctx context.Context) error {
	var errs []error
	for _, c := range r.m.Checks {
		err := r.step(ctx, "checks", c.Name, "", func(ctx context.Context) (string, error) {
			rows, err := r.h.TableRows(ctx, harness.TableQuery{Code: chain.Name(c.Code), Scope: c.Scope, Table: chain.Name(c.Table)})
			if err != nil {
				return "", err
			}
			return EvalCheck(c, rows)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, b := range r.m.Balances {
		want := chain.MustParseAsset(b.Equals)
		err := r.step(ctx, "checks", b.Name, "", func(ctx context.Context) (string, error) {
			got, err := token.NewClient(r.h, chain.Name(b.Contract)).Balance(ctx, chain.Name(b.Owner), want.Symbol)
			if err != nil {
				return "", err
			}
			if got != want {
				return got.String(), fmt.Errorf("%s holds %s at %s, want %s", b.Owner, got, b.Contract, want)
			}
			return got.String(), nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EvalCheck applies a check to table rows. The returned detail describes
// what matched.
func EvalCheck(c scenario.Check, rows []json.RawMessage) (string, error) {
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = string(row)
	}
	all := "[" + strings.Join(parts, ",") + "]"

	var matched []gjson.Result
	if c.Where != "" {
		res := gjson.Get(all, "#("+c.Where+")#")
		if !res.IsArray() {
			return "", fmt.Errorf("invalid where %q", c.Where)
		}
		matched = res.Array()
	} else {
		matched = gjson.Parse(all).Array()
	}

	var errs []error
	if c.Count != nil && len(matched) != *c.Count {
		errs = append(errs, fmt.Errorf("%s/%s: %d rows match, want %d", c.Scope, c.Table, len(matched), *c.Count))
	}
	detail := fmt.Sprintf("%d rows", len(matched))
	if c.Path != "" {
		if len(matched) == 0 {
			errs = append(errs, fmt.Errorf("%s/%s: no row to read %s from", c.Scope, c.Table, c.Path))
		} else {
			got := matched[0].Get(c.Path)
			switch {
			case !got.Exists():
				errs = append(errs, fmt.Errorf("%s/%s: row has no %s", c.Scope, c.Table, c.Path))
			case got.String() != c.Equals:
				errs = append(errs, fmt.Errorf("%s/%s: %s = %q, want %q", c.Scope, c.Table, c.Path, got.String(), c.Equals))
			default:
				detail += fmt.Sprintf(", %s = %s", c.Path, got.String())
			}
		}
	}
	return detail, errors.Join(errs...)
}
