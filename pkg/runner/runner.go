// Package runner executes a scenario manifest against a chain harness, one
// stage after another, and reports every step as an Event.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexscenario/pkg/chain"
	"github.com/uhyunpark/dexscenario/pkg/dex"
	"github.com/uhyunpark/dexscenario/pkg/harness"
	"github.com/uhyunpark/dexscenario/pkg/scenario"
	"github.com/uhyunpark/dexscenario/pkg/util"
)

type Options struct {
	PollInterval  time.Duration
	SettleTimeout time.Duration
	ReadyTimeout  time.Duration

	// MasterKey is imported when the manifest carries no master key.
	MasterKey string
	KeyPrefix string

	// SkipReset runs against the chain as it is.
	SkipReset bool
	// Hold keeps the chain up after the run until ctx is cancelled.
	Hold bool
	// Preserve skips stopping the chain at the end.
	Preserve bool
}

type Runner struct {
	h        harness.Harness
	m        *scenario.Manifest
	opts     Options
	clock    util.Clock
	logger   *zap.SugaredLogger
	observer Observer
	recorder Recorder

	dex   *dex.Client
	admin chain.Name
	pairs map[uint64]dex.SymbolPair

	run Run
	seq atomic.Uint64
}

type Option func(*Runner)

func WithClock(c util.Clock) Option { return func(r *Runner) { r.clock = c } }

func WithObserver(o Observer) Option { return func(r *Runner) { r.observer = o } }

func WithRecorder(rec Recorder) Option { return func(r *Runner) { r.recorder = rec } }

func New(h harness.Harness, m *scenario.Manifest, opts Options, logger *zap.SugaredLogger, options ...Option) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = 10 * time.Second
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 30 * time.Second
	}
	r := &Runner{
		h:      h,
		m:      m,
		opts:   opts,
		clock:  util.RealClock{},
		logger: logger,
		dex:    dex.NewClient(h, chain.Name(m.Dex.Account)),
		pairs:  map[uint64]dex.SymbolPair{},
	}
	for _, o := range options {
		o(r)
	}
	obs := Observers{LogObserver(logger)}
	if r.recorder != nil {
		obs = append(obs, RecordObserver(r.recorder, logger))
	}
	if r.observer != nil {
		obs = append(obs, r.observer)
	}
	r.observer = obs
	r.run = Run{
		ID:       uuid.NewString(),
		Scenario: m.Name,
		Status:   StatusRunning,
		Params:   m.Params,
	}
	return r
}

// ID is the run id events are tagged with.
func (r *Runner) ID() string { return r.run.ID }

type stage struct {
	name string
	fn   func(ctx context.Context) error
}

// Run executes every stage in order and stops at the first failure. The
// chain is stopped at the end unless Preserve is set.
func (r *Runner) Run(ctx context.Context) (Run, error) {
	r.run.StartedAt = r.clock.Now()
	r.saveRun()

	stages := []stage{
		{"reset", r.reset},
		{"master", r.master},
		{"dex", r.deployDex},
		{"accounts", r.createAccounts},
		{"config", r.configureDex},
		{"tokens", r.deployTokens},
		{"contracts", r.deployContracts},
		{"funding", r.fund},
		{"sympairs", r.setSymPairs},
		{"pairops", r.pairOps(scenario.PhaseSetup)},
		{"orders", r.placeOrders},
		{"matches", r.matchOrders},
		{"cancels", r.cancelOrders},
		{"withdrawals", r.withdraw},
		{"cleanup", r.pairOps(scenario.PhaseCleanup)},
		{"snapshots", r.snapshot},
		{"checks", r.check},
	}

	var runErr error
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		r.emit(Event{Stage: s.name, Status: StatusRunning})
		if err := s.fn(ctx); err != nil {
			r.emit(Event{Stage: s.name, Status: StatusFailed, Error: err.Error()})
			runErr = fmt.Errorf("stage %s: %w", s.name, err)
			break
		}
		r.emit(Event{Stage: s.name, Status: StatusOK})
	}

	r.run.FinishedAt = r.clock.Now()
	if runErr != nil {
		r.run.Status = StatusFailed
		r.run.Error = runErr.Error()
	} else {
		r.run.Status = StatusPassed
	}
	r.saveRun()

	r.teardown(ctx)
	return r.run, runErr
}

func (r *Runner) teardown(ctx context.Context) {
	if r.opts.Hold && ctx.Err() == nil {
		r.emit(Event{Stage: "teardown", Status: StatusHolding, Detail: "chain kept up until interrupted"})
		<-ctx.Done()
	}
	if r.opts.Preserve {
		r.emit(Event{Stage: "teardown", Status: StatusSkipped, Detail: "preserving chain"})
		return
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ReadyTimeout)
	defer cancel()
	if err := r.h.Stop(stopCtx); err != nil {
		r.emit(Event{Stage: "teardown", Status: StatusFailed, Error: err.Error()})
		return
	}
	r.emit(Event{Stage: "teardown", Status: StatusOK})
}

func (r *Runner) emit(e Event) {
	e.RunID = r.run.ID
	e.Seq = r.seq.Add(1)
	e.At = r.clock.Now()
	r.observer.OnEvent(e)
}

func (r *Runner) saveRun() {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.SaveRun(r.run); err != nil {
		r.logger.Warnw("run_save_failed", "run", r.run.ID, "error", err)
	}
}

// step runs one action and reports it. When expect names a contract error
// code, failing with exactly that code counts as success.
func (r *Runner) step(ctx context.Context, stageName, stepName, expect string, fn func(context.Context) (string, error)) error {
	detail, err := fn(ctx)
	return r.report(stageName, stepName, expect, detail, err)
}

func (r *Runner) report(stageName, stepName, expect, detail string, err error) error {
	if expect != "" {
		want, perr := dex.ParseErrCode(expect)
		if perr != nil {
			return perr
		}
		got, ok := dex.CodeOf(err)
		switch {
		case err == nil:
			err = fmt.Errorf("expected %s, but %s succeeded", want, stepName)
		case ok && got == want:
			r.emit(Event{Stage: stageName, Step: stepName, Status: StatusExpected, Detail: detail, Error: err.Error()})
			return nil
		default:
			err = fmt.Errorf("expected %s: %w", want, err)
		}
	}
	if err != nil {
		r.emit(Event{Stage: stageName, Step: stepName, Status: StatusFailed, Detail: detail, Error: err.Error()})
		return fmt.Errorf("%s: %w", stepName, err)
	}
	r.emit(Event{Stage: stageName, Step: stepName, Status: StatusOK, Detail: detail})
	return nil
}

func (r *Runner) skip(stageName, stepName, reason string) {
	r.emit(Event{Stage: stageName, Step: stepName, Status: StatusSkipped, Detail: reason})
}

// waitFor polls cond until it holds or the settle timeout passes.
func (r *Runner) waitFor(ctx context.Context, cond func(context.Context) (bool, error)) error {
	return util.Poll(ctx, r.clock, r.opts.PollInterval, r.opts.SettleTimeout, cond)
}
