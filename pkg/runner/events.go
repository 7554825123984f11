package runner

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

type Status string

const (
	StatusRunning  Status = "running"
	StatusOK       Status = "ok"
	StatusSkipped  Status = "skipped"
	StatusExpected Status = "expected_error"
	StatusFailed   Status = "failed"
	StatusPassed   Status = "passed"
	StatusHolding  Status = "holding"
)

// Run is the record of one scenario execution.
type Run struct {
	ID         string            `json:"id"`
	Scenario   string            `json:"scenario"`
	Status     Status            `json:"status"`
	Params     map[string]string `json:"params,omitempty"`
	ChainID    string            `json:"chain_id,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
	Error      string            `json:"error,omitempty"`
}

// Event is one step outcome. Seq increases by one per event within a run.
type Event struct {
	RunID  string    `json:"run_id"`
	Seq    uint64    `json:"seq"`
	Stage  string    `json:"stage"`
	Step   string    `json:"step,omitempty"`
	Status Status    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// Snapshot is the content of one table at the end of a run.
type Snapshot struct {
	RunID string            `json:"run_id"`
	Label string            `json:"label"`
	Code  string            `json:"code"`
	Table string            `json:"table"`
	Scope string            `json:"scope"`
	Rows  []json.RawMessage `json:"rows"`
	At    time.Time         `json:"at"`
}

type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Observers fans an event out in order.
type Observers []Observer

func (o Observers) OnEvent(e Event) {
	for _, obs := range o {
		obs.OnEvent(e)
	}
}

// Recorder persists runs. storage.Store implements it.
type Recorder interface {
	SaveRun(Run) error
	SaveEvent(Event) error
	SaveSnapshot(Snapshot) error
}

// LogObserver writes events to a zap logger.
func LogObserver(logger *zap.SugaredLogger) Observer {
	return ObserverFunc(func(e Event) {
		kv := []any{"run", e.RunID, "seq", e.Seq, "stage", e.Stage, "status", e.Status}
		if e.Step != "" {
			kv = append(kv, "step", e.Step)
		}
		if e.Detail != "" {
			kv = append(kv, "detail", e.Detail)
		}
		if e.Status == StatusFailed {
			logger.Errorw("scenario_step", append(kv, "error", e.Error)...)
			return
		}
		logger.Infow("scenario_step", kv...)
	})
}

// RecordObserver saves events through rec; failures are logged and do not
// stop the run.
func RecordObserver(rec Recorder, logger *zap.SugaredLogger) Observer {
	return ObserverFunc(func(e Event) {
		if err := rec.SaveEvent(e); err != nil {
			logger.Warnw("event_save_failed", "run", e.RunID, "seq", e.Seq, "error", err)
		}
	})
}
