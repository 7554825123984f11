package storage

import (
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/dexscenario/pkg/runner"
)

// EventLog appends every event as one JSON line, for tailing a run from
// a shell.
type EventLog struct {
	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	logger *zap.SugaredLogger
}

func NewEventLog(path string, logger *zap.SugaredLogger) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &EventLog{f: f, enc: json.NewEncoder(f), logger: logger}, nil
}

func (l *EventLog) OnEvent(e runner.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(e); err != nil {
		l.logger.Warnw("event_log_write_failed", "path", l.f.Name(), "run", e.RunID, "seq", e.Seq, "error", err)
	}
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

var _ runner.Observer = (*EventLog)(nil)
