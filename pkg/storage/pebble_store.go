// Package storage keeps the history of scenario runs in Pebble.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/dexscenario/pkg/runner"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open run store %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveRun writes the run record. It is called when a run starts and again
// when it finishes.
func (s *PebbleStore) SaveRun(r runner.Run) error {
	data, err := encode("run", r)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(runKey(r.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(runIndexKey(r.StartedAt.UnixNano(), r.ID), []byte(r.ID), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun returns false if the run does not exist.
func (s *PebbleStore) GetRun(id string) (runner.Run, bool, error) {
	var r runner.Run
	ok, err := s.get(runKey(id), "run", &r)
	return r, ok, err
}

func (s *PebbleStore) get(key []byte, kind string, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	defer closer.Close()
	return true, decode(kind, data, v)
}

// ListRuns returns up to limit runs, newest first. A limit of 0 means all.
func (s *PebbleStore) ListRuns(limit int) ([]runner.Run, error) {
	prefix := []byte(prefixRunIndex)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var runs []runner.Run
	seen := map[string]bool{}
	for iter.Last(); iter.Valid(); iter.Prev() {
		if limit > 0 && len(runs) >= limit {
			break
		}
		id := string(iter.Value())
		if seen[id] {
			continue
		}
		seen[id] = true
		r, ok, err := s.GetRun(id)
		if err != nil {
			return nil, err
		}
		if ok {
			runs = append(runs, r)
		}
	}
	return runs, iter.Error()
}

// SaveEvent does not sync; a crash loses at most the tail of a run's
// events, never the run record itself.
func (s *PebbleStore) SaveEvent(e runner.Event) error {
	data, err := encode("event", e)
	if err != nil {
		return err
	}
	if err := s.db.Set(eventKey(e.RunID, e.Seq), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// ListEvents returns a run's events with Seq greater than after, in order.
func (s *PebbleStore) ListEvents(runID string, after uint64) ([]runner.Event, error) {
	prefix := eventPrefix(runID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(runID, after+1),
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var events []runner.Event
	for iter.First(); iter.Valid(); iter.Next() {
		var e runner.Event
		if err := decode("event", iter.Value(), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, iter.Error()
}

func (s *PebbleStore) SaveSnapshot(snap runner.Snapshot) error {
	for _, part := range []string{snap.RunID, snap.Label, snap.Scope} {
		if strings.Contains(part, ":") {
			return fmt.Errorf("snapshot key part %q contains ':'", part)
		}
	}
	data, err := encode("snapshot", snap)
	if err != nil {
		return err
	}
	key := snapshotKey(snap.RunID, snap.Label, snap.Table, snap.Scope)
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns a run's snapshots ordered by label, table and scope.
func (s *PebbleStore) ListSnapshots(runID string) ([]runner.Snapshot, error) {
	prefix := snapshotPrefix(runID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var snaps []runner.Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		var snap runner.Snapshot
		if err := decode("snapshot", iter.Value(), &snap); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, iter.Error()
}

// GetSnapshot returns false if the run has no such snapshot.
func (s *PebbleStore) GetSnapshot(runID, label, table, scope string) (runner.Snapshot, bool, error) {
	var snap runner.Snapshot
	ok, err := s.get(snapshotKey(runID, label, table, scope), "snapshot", &snap)
	return snap, ok, err
}

// DeleteRun removes a run with its events and snapshots.
func (s *PebbleStore) DeleteRun(id string) error {
	r, ok, err := s.GetRun(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(runKey(id), nil); err != nil {
		return err
	}
	if err := b.Delete(runIndexKey(r.StartedAt.UnixNano(), id), nil); err != nil {
		return err
	}
	for _, prefix := range [][]byte{eventPrefix(id), snapshotPrefix(id)} {
		if err := b.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

var _ runner.Recorder = (*PebbleStore)(nil)
