package storage

import (
	"fmt"
)

// Key schema:
//
//	run:<id>                            → Run
//	runidx:<started unix nano>:<id>     → id, for newest-first listing
//	evt:<id>:<seq>                      → Event
//	snap:<id>:<label>:<table>:<scope>   → Snapshot
//
// Numbers are zero-padded so keys sort in numeric order.
const (
	prefixRun      = "run:"
	prefixRunIndex = "runidx:"
	prefixEvent    = "evt:"
	prefixSnapshot = "snap:"
)

func runKey(id string) []byte {
	return []byte(prefixRun + id)
}

func runIndexKey(startedNano int64, id string) []byte {
	if startedNano < 0 {
		startedNano = 0
	}
	return []byte(fmt.Sprintf("%s%020d:%s", prefixRunIndex, startedNano, id))
}

func eventKey(runID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixEvent, runID, seq))
}

func eventPrefix(runID string) []byte {
	return []byte(prefixEvent + runID + ":")
}

func snapshotKey(runID, label, table, scope string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s:%s", prefixSnapshot, runID, label, table, scope))
}

func snapshotPrefix(runID string) []byte {
	return []byte(prefixSnapshot + runID + ":")
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
