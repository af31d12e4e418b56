// Package engine drives collection runs: one Orchestrator per run, a Manager
// owning the live run of each kind.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/project"
	"github.com/sells-group/collector-cli/internal/quota"
	"github.com/sells-group/collector-cli/internal/resilience"
	"github.com/sells-group/collector-cli/internal/scheduler"
	"github.com/sells-group/collector-cli/internal/source"
	"github.com/sells-group/collector-cli/internal/store"
)

// Option tunes an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithSideFetcher enables per-item cover and transcript fetches.
func WithSideFetcher(sf source.SideFetcher) Option {
	return func(o *Orchestrator) { o.side = sf }
}

// WithWalkerConfig overrides pagination bounds, mainly for tests.
func WithWalkerConfig(cfg source.WalkerConfig) Option {
	return func(o *Orchestrator) { o.walkCfg = cfg }
}

// WithRetryConfig overrides the side-fetch retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithProgress registers a callback invoked after each persisted page.
func WithProgress(fn func(model.Progress)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// Orchestrator executes exactly one collection run through its lifecycle:
//
//	Idle → Running → {Stopping} → {Completed, Stopped, Failed}
//
// All run inputs are captured at Start; a second Run call is an error.
type Orchestrator struct {
	cfg        model.RunConfig
	fetcher    source.PageFetcher
	side       source.SideFetcher
	store      store.TableStore
	gov        *quota.Governor
	walkCfg    source.WalkerConfig
	retry      resilience.RetryConfig
	onProgress func(model.Progress)
	log        *zap.Logger

	mu           sync.Mutex
	state        model.RunState
	cancel       context.CancelFunc
	userStopped  bool
	quotaTripped bool
}

func New(cfg model.RunConfig, fetcher source.PageFetcher, st store.TableStore, gov *quota.Governor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		gov:     gov,
		walkCfg: source.WalkerConfig{MaxPages: cfg.MaxPages},
		retry:   resilience.DefaultRetryConfig(),
		state:   model.RunStateIdle,
		log: zap.L().Named("engine").With(
			zap.String("run", cfg.ID),
			zap.String("kind", string(cfg.Query.Kind)),
		),
	}
	o.retry.OnRetry = resilience.RetryLogger("source", "side-fetch")
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() model.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stop requests a graceful stop of a running run. Work already persisted
// stays persisted; the run settles in the Stopped state. No-op unless the
// run is currently Running.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != model.RunStateRunning {
		return
	}
	o.state = model.RunStateStopping
	o.userStopped = true
	if o.cancel != nil {
		o.cancel()
	}
}

// Run executes the collection loop to a terminal state and returns the final
// report. The error return is non-nil only for failures to even start; every
// in-flight outcome, including Failed, is expressed through the report.
func (o *Orchestrator) Run(ctx context.Context) (model.RunReport, error) {
	o.mu.Lock()
	if o.state != model.RunStateIdle {
		st := o.state
		o.mu.Unlock()
		return model.RunReport{}, eris.Errorf("run %s already started (state %s)", o.cfg.ID, st)
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.state = model.RunStateRunning
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	report := model.RunReport{
		RunID:     o.cfg.ID,
		Kind:      o.cfg.Query.Kind,
		StartedAt: time.Now().UTC(),
	}

	// Any run observes the shared stop signal, not only its own context.
	go func() {
		select {
		case <-o.gov.Broadcaster().Subscribe():
			o.mu.Lock()
			if o.state == model.RunStateRunning {
				o.state = model.RunStateStopping
				o.quotaTripped = true
			}
			o.mu.Unlock()
			cancel()
		case <-runCtx.Done():
		}
	}()

	rc, slots, err := o.prepare(runCtx)
	if err != nil {
		return o.finish(runCtx, report, model.RunStateFailed, model.EndCauseError, err), nil
	}

	sched := scheduler.New(o.store, o.cfg.ChunkSize)
	walker := source.NewWalker(o.fetcher, o.walkCfg)

	walkRes, walkErr := walker.Walk(runCtx, o.cfg.Query, func(pageNo int, items []model.RawItem) error {
		records := make([]*model.ProjectedRecord, 0, len(items))
		skipped := 0
		for i := range items {
			o.sideFetch(runCtx, rc, &items[i])
			rec := project.Project(&items[i], rc)
			if rec == nil {
				skipped++
				continue
			}
			records = append(records, rec)
		}

		res, perr := sched.Persist(runCtx, records, slots)
		if perr != nil {
			return perr
		}
		report.TotalWritten += res.Written()
		report.TotalSkipped += skipped
		report.Dropped += res.Dropped
		o.gov.CommitWrites(res.Written())

		if o.onProgress != nil {
			o.onProgress(model.Progress{
				RunID:   o.cfg.ID,
				Page:    pageNo,
				Written: report.TotalWritten,
				Skipped: report.TotalSkipped,
			})
		}
		return nil
	})
	report.Pages = walkRes.Pages

	if walkErr != nil {
		if qe := resilience.AsQuotaExhausted(walkErr); qe != nil {
			msg := o.gov.MarkExhausted(qe.Remaining, qe.ResetAt)
			return o.finish(runCtx, report, model.RunStateStopped, model.EndCauseQuota, eris.New(msg)), nil
		}
		return o.finish(runCtx, report, model.RunStateFailed, model.EndCauseError, walkErr), nil
	}

	switch walkRes.End {
	case source.EndCancelled:
		state, cause := o.cancelOutcome()
		return o.finish(runCtx, report, state, cause, nil), nil
	case source.EndStalledCursor:
		return o.finish(runCtx, report, model.RunStateCompleted, model.EndCauseStalledCursor, nil), nil
	default:
		return o.finish(runCtx, report, model.RunStateCompleted, model.EndCauseCompleted, nil), nil
	}
}

// prepare ensures target columns exist and runs the bounded pre-scans.
func (o *Orchestrator) prepare(ctx context.Context) (*project.RunContext, *scheduler.SlotPool, error) {
	selected := make(map[string]struct{}, len(o.cfg.Fields))
	for _, f := range o.cfg.Fields {
		selected[f] = struct{}{}
	}
	for _, fs := range project.Fields(o.cfg.Query.Kind) {
		if len(selected) > 0 && fs.Name != project.FieldKey {
			if _, ok := selected[fs.Name]; !ok {
				continue
			}
		}
		if err := o.store.EnsureField(ctx, fs.Name, fs.Kind); err != nil {
			return nil, nil, eris.Wrapf(err, "ensuring field %q", fs.Name)
		}
	}

	slots, err := scheduler.ScanEmptySlots(ctx, o.store, o.cfg.SlotScan)
	if err != nil {
		return nil, nil, eris.Wrap(err, "empty-slot pre-scan")
	}
	seen, err := scheduler.ScanSeenKeys(ctx, o.store, project.FieldKey, o.cfg.KeyScan)
	if err != nil {
		return nil, nil, eris.Wrap(err, "seen-key pre-scan")
	}
	o.log.Info("run prepared",
		zap.Int("empty_slots", slots.Len()),
		zap.Int("seen_keys", seen.Len()),
	)
	return project.NewRunContext(o.cfg, seen), slots, nil
}

// sideFetch fills cover and transcript through the retry policy. Failure
// leaves the field empty and the run moving.
func (o *Orchestrator) sideFetch(ctx context.Context, rc *project.RunContext, it *model.RawItem) {
	if o.side == nil {
		return
	}
	if it.CoverURL != "" && rc.Selected("cover") {
		val, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (string, error) {
			return o.side.FetchCover(ctx, it.CoverURL)
		})
		if err != nil {
			o.log.Debug("cover fetch failed, leaving empty", zap.Error(err))
		} else {
			it.Cover = val
		}
	}
	if it.TranscriptURL != "" && rc.Selected("transcript") {
		val, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (string, error) {
			return o.side.FetchTranscript(ctx, it.TranscriptURL)
		})
		if err != nil {
			o.log.Debug("transcript fetch failed, leaving empty", zap.Error(err))
		} else {
			it.Transcript = val
		}
	}
}

// cancelOutcome decides how an observed cancellation is reported: a user
// stop, the shared quota trip, or an external context cancellation (treated
// as a user stop).
func (o *Orchestrator) cancelOutcome() (model.RunState, model.EndCause) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.quotaTripped {
		return model.RunStateStopped, model.EndCauseQuota
	}
	return model.RunStateStopped, model.EndCauseUserStop
}

// finish settles the terminal state, persists the report when the store
// keeps a run log, and emits the closing log line.
func (o *Orchestrator) finish(ctx context.Context, report model.RunReport, state model.RunState, cause model.EndCause, err error) model.RunReport {
	report.State = state
	report.EndCause = cause
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Error = eris.ToString(err, false)
	}

	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	if rl, ok := o.store.(store.RunLog); ok {
		// The run context may already be cancelled; the report still matters.
		if serr := rl.SaveReport(context.WithoutCancel(ctx), report); serr != nil {
			o.log.Warn("saving run report failed", zap.Error(serr))
		}
	}

	o.log.Info("run finished",
		zap.String("state", string(state)),
		zap.String("cause", string(cause)),
		zap.Int("written", report.TotalWritten),
		zap.Int("skipped", report.TotalSkipped),
		zap.Int("pages", report.Pages),
	)
	return report
}
