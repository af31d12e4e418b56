package engine

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/quota"
	"github.com/sells-group/collector-cli/internal/source"
	"github.com/sells-group/collector-cli/internal/store"
)

type managedRun struct {
	orch   *Orchestrator
	done   chan struct{}
	report model.RunReport
}

// Manager owns at most one live run per run kind. Runs of different kinds
// execute concurrently; starting a run of a kind that is already running
// supersedes the old run, stopping it before the new one begins. All runs
// share one quota governor and its stop broadcaster.
type Manager struct {
	fetcher source.PageFetcher
	store   store.TableStore
	gov     *quota.Governor
	opts    []Option

	mu   sync.Mutex
	runs map[model.RunKind]*managedRun
	grp  errgroup.Group
}

func NewManager(fetcher source.PageFetcher, st store.TableStore, gov *quota.Governor, opts ...Option) *Manager {
	return &Manager{
		fetcher: fetcher,
		store:   st,
		gov:     gov,
		opts:    opts,
		runs:    make(map[model.RunKind]*managedRun),
	}
}

// Start launches a run for the config's kind. It refuses outright when the
// allowance is known-exhausted; a Degraded allowance still starts (the
// source will cut the run off if it must). A running run of the same kind is
// stopped and discarded first.
func (m *Manager) Start(ctx context.Context, cfg model.RunConfig) (*Orchestrator, error) {
	if st := m.gov.State(); st.Availability == quota.Unavailable {
		return nil, eris.Errorf("refusing to start %s run: write allowance exhausted", cfg.Query.Kind)
	}

	kind := cfg.Query.Kind
	m.mu.Lock()
	prev := m.runs[kind]
	m.mu.Unlock()
	if prev != nil && !prev.orch.State().Terminal() {
		prev.orch.Stop()
		<-prev.done
	}

	orch := New(cfg, m.fetcher, m.store, m.gov, m.opts...)
	mr := &managedRun{orch: orch, done: make(chan struct{})}
	m.mu.Lock()
	m.runs[kind] = mr
	m.mu.Unlock()

	m.grp.Go(func() error {
		defer close(mr.done)
		rep, err := orch.Run(ctx)
		mr.report = rep
		return err
	})
	return orch, nil
}

// Stop requests a stop of the live run of the given kind, if any.
func (m *Manager) Stop(kind model.RunKind) {
	m.mu.Lock()
	mr := m.runs[kind]
	m.mu.Unlock()
	if mr != nil {
		mr.orch.Stop()
	}
}

// StopAll requests a stop of every live run.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runs := make([]*managedRun, 0, len(m.runs))
	for _, mr := range m.runs {
		runs = append(runs, mr)
	}
	m.mu.Unlock()
	for _, mr := range runs {
		mr.orch.Stop()
	}
}

// Report returns the final report of the kind's most recent run, blocking
// until that run finishes. ok is false when no run of the kind was started.
func (m *Manager) Report(kind model.RunKind) (model.RunReport, bool) {
	m.mu.Lock()
	mr := m.runs[kind]
	m.mu.Unlock()
	if mr == nil {
		return model.RunReport{}, false
	}
	<-mr.done
	return mr.report, true
}

// Wait blocks until every started run has finished.
func (m *Manager) Wait() error {
	return m.grp.Wait()
}
