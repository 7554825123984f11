package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/dexscenario/pkg/runner"
)

func openStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunsNewestFirst(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"b-run", "a-run", "c-run"} {
		r := runner.Run{ID: id, Scenario: "dex-basic", Status: runner.StatusRunning, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.SaveRun(r))
		r.Status = runner.StatusPassed
		r.FinishedAt = r.StartedAt.Add(time.Second)
		require.NoError(t, s.SaveRun(r))
	}

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "c-run", runs[0].ID)
	require.Equal(t, "a-run", runs[1].ID)
	require.Equal(t, "b-run", runs[2].ID)
	require.Equal(t, runner.StatusPassed, runs[0].Status)

	runs, err = s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	got, ok, err := s.GetRun("a-run")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.StartedAt.Equal(base.Add(time.Minute)))

	_, ok, err = s.GetRun("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEventsInSeqOrder(t *testing.T) {
	s := openStore(t)
	// seq 10 must sort after seq 9
	for seq := uint64(1); seq <= 12; seq++ {
		require.NoError(t, s.SaveEvent(runner.Event{RunID: "r1", Seq: seq, Stage: "orders", Status: runner.StatusOK}))
	}
	require.NoError(t, s.SaveEvent(runner.Event{RunID: "r2", Seq: 1, Stage: "reset"}))

	events, err := s.ListEvents("r1", 0)
	require.NoError(t, err)
	require.Len(t, events, 12)
	for i, e := range events {
		require.Equal(t, uint64(i+1), e.Seq)
	}

	events, err = s.ListEvents("r1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, uint64(11), events[0].Seq)
}

func TestSnapshots(t *testing.T) {
	s := openStore(t)
	snap := runner.Snapshot{
		RunID: "r1",
		Label: "final",
		Code:  "orderbookdex",
		Table: "order",
		Scope: "258",
		Rows:  []json.RawMessage{json.RawMessage(`{"order_id":1}`)},
	}
	require.NoError(t, s.SaveSnapshot(snap))
	snap.Table, snap.Scope = "deal", "orderbookdex"
	require.NoError(t, s.SaveSnapshot(snap))

	snaps, err := s.ListSnapshots("r1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, "deal", snaps[0].Table)
	require.Equal(t, "order", snaps[1].Table)

	got, ok, err := s.GetSnapshot("r1", "final", "order", "258")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"order_id":1}`, string(got.Rows[0]))
}

func TestSnapshotKeyPartsCannotCollide(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.SaveSnapshot(runner.Snapshot{RunID: "r1", Label: "final", Table: "deal", Scope: "orderbookdex"}))

	// both would be stored under snap:r1:final:deal:order:1
	err := s.SaveSnapshot(runner.Snapshot{RunID: "r1", Label: "final:deal", Table: "order", Scope: "1"})
	require.ErrorContains(t, err, `"final:deal" contains ':'`)
	err = s.SaveSnapshot(runner.Snapshot{RunID: "r1", Label: "final", Table: "deal", Scope: "order:1"})
	require.ErrorContains(t, err, `"order:1" contains ':'`)

	snaps, err := s.ListSnapshots("r1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestDeleteRun(t *testing.T) {
	s := openStore(t)
	now := time.Now()
	require.NoError(t, s.SaveRun(runner.Run{ID: "r1", StartedAt: now}))
	require.NoError(t, s.SaveRun(runner.Run{ID: "r2", StartedAt: now.Add(time.Second)}))
	require.NoError(t, s.SaveEvent(runner.Event{RunID: "r1", Seq: 1}))
	require.NoError(t, s.SaveSnapshot(runner.Snapshot{RunID: "r1", Label: "final", Table: "deal", Scope: "x"}))

	require.NoError(t, s.DeleteRun("r1"))
	require.Error(t, s.DeleteRun("r1"))

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "r2", runs[0].ID)

	events, err := s.ListEvents("r1", 0)
	require.NoError(t, err)
	require.Empty(t, events)
	snaps, err := s.ListSnapshots("r1")
	require.NoError(t, err)
	require.Empty(t, snaps)
}

func TestEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := NewEventLog(path, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	l.OnEvent(runner.Event{RunID: "r1", Seq: 1, Stage: "reset", Status: runner.StatusOK})
	l.OnEvent(runner.Event{RunID: "r1", Seq: 2, Stage: "master", Status: runner.StatusFailed, Error: "boom"})
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []runner.Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e runner.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		lines = append(lines, e)
	}
	require.Len(t, lines, 2)
	require.Equal(t, "boom", lines[1].Error)
}

func TestEventLogReportsWriteFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l, err := NewEventLog(filepath.Join(t.TempDir(), "events.jsonl"), zap.New(core).Sugar())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l.OnEvent(runner.Event{RunID: "r1", Seq: 4, Stage: "orders"})

	failed := logs.FilterMessage("event_log_write_failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, "r1", failed[0].ContextMap()["run"])
}
