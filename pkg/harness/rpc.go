package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/uhyunpark/dexscenario/pkg/chain"
)

const (
	defaultPageSize = 100
	maxPages        = 1000
)

// RPC reads chain state over the node's HTTP API.
type RPC struct {
	URL    string
	Client *http.Client
}

func NewRPC(url string) *RPC {
	return &RPC{
		URL:    strings.TrimRight(url, "/"),
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError is a non-200 chain API response.
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	msg := gjson.GetBytes(e.Body, "error.details.0.message").String()
	if msg == "" {
		msg = gjson.GetBytes(e.Body, "message").String()
	}
	return fmt.Sprintf("chain api status %d: %s", e.Status, msg)
}

func (r *RPC) post(ctx context.Context, path string, body any) ([]byte, error) {
	var payload io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{Status: resp.StatusCode, Body: data}
	}
	return data, nil
}

func (r *RPC) Info(ctx context.Context) (ChainInfo, error) {
	var info ChainInfo
	data, err := r.post(ctx, "/v1/chain/get_info", nil)
	if err != nil {
		return info, fmt.Errorf("failed to get chain info: %w", err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("failed to decode chain info: %w", err)
	}
	return info, nil
}

func (r *RPC) AccountExists(ctx context.Context, name chain.Name) (bool, error) {
	_, err := r.post(ctx, "/v1/chain/get_account", map[string]string{"account_name": name.String()})
	if err == nil {
		return true, nil
	}
	if ae, ok := err.(*apiError); ok && isUnknownAccount(ae) {
		return false, nil
	}
	return false, fmt.Errorf("failed to get account %s: %w", name, err)
}

func isUnknownAccount(e *apiError) bool {
	if e.Status == http.StatusNotFound {
		return true
	}
	for _, d := range gjson.GetBytes(e.Body, "error.details.#.message").Array() {
		if strings.Contains(d.String(), "unknown key") {
			return true
		}
	}
	return strings.Contains(gjson.GetBytes(e.Body, "error.what").String(), "unknown key")
}

// TableRows returns rows of a table in primary key order, following
// more/next_key until the table or q.Limit is exhausted.
func (r *RPC) TableRows(ctx context.Context, q TableQuery) ([]json.RawMessage, error) {
	req := map[string]any{
		"code":        q.Code.String(),
		"scope":       q.Scope,
		"table":       q.Table.String(),
		"json":        true,
		"lower_bound": q.Lower,
		"upper_bound": q.Upper,
	}
	var rows []json.RawMessage
	for page := 0; page < maxPages; page++ {
		limit := defaultPageSize
		if q.Limit > 0 && q.Limit-len(rows) < limit {
			limit = q.Limit - len(rows)
		}
		req["limit"] = limit

		data, err := r.post(ctx, "/v1/chain/get_table_rows", req)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %s/%s/%s: %w", q.Code, q.Scope, q.Table, err)
		}
		for _, row := range gjson.GetBytes(data, "rows").Array() {
			rows = append(rows, json.RawMessage(row.Raw))
		}

		more := gjson.GetBytes(data, "more")
		next := gjson.GetBytes(data, "next_key").String()
		// Old nodes report the next key through "more" itself.
		if next == "" && more.Type == gjson.String {
			next = more.String()
		}
		if next == "" || (more.Type != gjson.String && !more.Bool()) {
			return rows, nil
		}
		if q.Limit > 0 && len(rows) >= q.Limit {
			return rows, nil
		}
		req["lower_bound"] = next
	}
	return nil, fmt.Errorf("table %s/%s/%s: more than %d pages", q.Code, q.Scope, q.Table, maxPages)
}
