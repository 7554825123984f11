package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/dexscenario/pkg/runner"
	"github.com/uhyunpark/dexscenario/pkg/storage"
)

func orderRow(id int, side, price, limit string) json.RawMessage {
	return json.RawMessage(`{"order_id":` + strconv.Itoa(id) + `,"owner":"u","sympair_id":1,"order_side":"` + side +
		`","price":"` + price + `","limit_quant":"` + limit + `","matched_assets":"0.00000000 METH"}`)
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store, err := storage.NewPebbleStore(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRun(runner.Run{ID: "old", Scenario: "dex-basic", Status: runner.StatusFailed, StartedAt: start}))
	require.NoError(t, store.SaveRun(runner.Run{ID: "new", Scenario: "dex-basic", Status: runner.StatusPassed, StartedAt: start.Add(time.Hour)}))
	events := []runner.Event{
		{RunID: "new", Seq: 1, Stage: "reset", Status: runner.StatusRunning},
		{RunID: "new", Seq: 2, Stage: "reset", Step: "reset", Status: runner.StatusOK},
		{RunID: "new", Seq: 3, Stage: "checks", Step: "deal count", Status: runner.StatusFailed, Error: "want 1"},
	}
	for _, e := range events {
		require.NoError(t, store.SaveEvent(e))
	}
	require.NoError(t, store.SaveSnapshot(runner.Snapshot{
		RunID: "new",
		Label: "final",
		Code:  "orderbookdex",
		Table: "order",
		Scope: "257",
		Rows: []json.RawMessage{
			orderRow(2, "buy", "200.000000 MUSDT", "0.01000000 METH"),
			orderRow(3, "buy", "250.000000 MUSDT", "0.02000000 METH"),
		},
	}))
	require.NoError(t, store.SaveSnapshot(runner.Snapshot{
		RunID: "new",
		Label: "final",
		Code:  "orderbookdex",
		Table: "order",
		Scope: "258",
		Rows:  []json.RawMessage{orderRow(1, "sell", "300.000000 MUSDT", "0.01000000 METH")},
	}))

	s := NewServer(store, []string{"http://localhost:3000"}, zaptest.NewLogger(t).Sugar())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	var body map[string]string
	getJSON(t, ts.URL+"/health", http.StatusOK, &body)
	require.Equal(t, "ok", body["status"])
}

func TestRunEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	var list RunList
	getJSON(t, ts.URL+"/api/v1/runs", http.StatusOK, &list)
	require.Equal(t, 2, list.Count)
	require.Equal(t, "new", list.Runs[0].ID)

	getJSON(t, ts.URL+"/api/v1/runs?limit=1", http.StatusOK, &list)
	require.Equal(t, 1, list.Count)
	getJSON(t, ts.URL+"/api/v1/runs?limit=x", http.StatusBadRequest, nil)

	var detail RunDetail
	getJSON(t, ts.URL+"/api/v1/runs/new", http.StatusOK, &detail)
	require.Equal(t, runner.StatusPassed, detail.Status)
	require.Equal(t, 3, detail.Events)
	require.Equal(t, 1, detail.Failed)
	require.Equal(t, "checks", detail.LastStage)

	var errResp ErrorResponse
	getJSON(t, ts.URL+"/api/v1/runs/missing", http.StatusNotFound, &errResp)
	require.Equal(t, "run not found", errResp.Error)

	var events []runner.Event
	getJSON(t, ts.URL+"/api/v1/runs/new/events?after=1", http.StatusOK, &events)
	require.Len(t, events, 2)
	require.Equal(t, uint64(2), events[0].Seq)

	getJSON(t, ts.URL+"/api/v1/runs/old/events", http.StatusOK, &events)
	require.Empty(t, events)

	var snaps []SnapshotInfo
	getJSON(t, ts.URL+"/api/v1/runs/new/snapshots", http.StatusOK, &snaps)
	require.Len(t, snaps, 2)
	require.Equal(t, "257", snaps[0].Scope)
	require.Equal(t, 2, snaps[0].Rows)

	var snap runner.Snapshot
	getJSON(t, ts.URL+"/api/v1/runs/new/snapshots/final/order/258", http.StatusOK, &snap)
	require.Len(t, snap.Rows, 1)
	getJSON(t, ts.URL+"/api/v1/runs/new/snapshots/final/deal/orderbookdex", http.StatusNotFound, nil)
}

func TestBookEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	var b BookResponse
	getJSON(t, ts.URL+"/api/v1/runs/new/book/1", http.StatusOK, &b)
	require.Equal(t, uint64(1), b.Pair)
	require.Equal(t, "final", b.Label)
	require.Len(t, b.Bids, 2)
	require.Equal(t, "250.000000 MUSDT", b.Bids[0].Price.String())
	require.Len(t, b.Asks, 1)
	require.Equal(t, "50.000000 MUSDT", b.Spread)

	getJSON(t, ts.URL+"/api/v1/runs/new/book/2", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/v1/runs/new/book/x", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/api/v1/runs/new/book/1?label=initial", http.StatusNotFound, nil)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketRunEvents(t *testing.T) {
	s, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{RunChannel("r1")}}))
	var ack WSAck
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "subscribed", ack.Type)

	// events of other runs are not delivered on run:r1
	s.Hub().OnEvent(runner.Event{RunID: "r2", Seq: 1, Stage: "reset"})
	s.Hub().OnEvent(runner.Event{RunID: "r1", Seq: 7, Stage: "orders", Step: "neworder", Status: runner.StatusOK})

	var msg WSEvent
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "event", msg.Type)
	require.Equal(t, "run:r1", msg.Channel)
	require.Equal(t, uint64(7), msg.Event.Seq)
	require.Equal(t, 1, s.Hub().Clients())
}
