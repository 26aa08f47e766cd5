package control

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// DefaultRefreshInterval bounds how stale the in-memory rules/schedules
// cache may be (spec §6: "source of truth is the DB once loaded" — the
// control worker never queries the DB synchronously on its own tick path,
// per §5's "never blocked by DB").
const DefaultRefreshInterval = 10 * time.Second

// RuleSource and ScheduleSource are the persisted-store dependencies
// (implemented by internal/tsdb).
type RuleSource interface {
	LoadRules(ctx context.Context) ([]model.Rule, error)
}

type ScheduleSource interface {
	LoadSchedules(ctx context.Context) ([]model.Schedule, error)
}

type ruleScheduleSnapshot struct {
	rules     []model.Rule
	schedules []model.Schedule
}

// RuleScheduleStore holds the latest rules/schedules loaded from the
// persistent store, refreshed on a background timer and swapped
// atomically so the control worker's tick path never blocks on DB I/O
// (spec §9: "mutable global config reloaded in place" redesigned as an
// immutable snapshot swapped between reads, applied here to rules and
// schedules as well as to pkg/config.Snapshot).
type RuleScheduleStore struct {
	rules RuleSource
	sched ScheduleSource
	log   zerolog.Logger

	ptr atomic.Pointer[ruleScheduleSnapshot]
}

// NewRuleScheduleStore constructs a store with an empty initial snapshot;
// call Load once synchronously at startup before the control worker's
// first tick.
func NewRuleScheduleStore(rules RuleSource, sched ScheduleSource, log zerolog.Logger) *RuleScheduleStore {
	s := &RuleScheduleStore{rules: rules, sched: sched, log: log.With().Str("component", "rule_schedule_store").Logger()}
	s.ptr.Store(&ruleScheduleSnapshot{})
	return s
}

// Load synchronously fetches rules and schedules and swaps them in.
func (s *RuleScheduleStore) Load(ctx context.Context) error {
	rules, err := s.rules.LoadRules(ctx)
	if err != nil {
		return err
	}
	schedules, err := s.sched.LoadSchedules(ctx)
	if err != nil {
		return err
	}
	s.ptr.Store(&ruleScheduleSnapshot{rules: rules, schedules: schedules})
	return nil
}

// Run refreshes the snapshot every interval until ctx is canceled. Refresh
// failures are logged and the previous snapshot is kept (spec §7
// db_unreachable: "recovered locally, logged only").
func (s *RuleScheduleStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Load(ctx); err != nil {
				s.log.Warn().Err(err).Msg("rule/schedule refresh failed, keeping previous snapshot")
			}
		}
	}
}

// Rules returns the currently cached rule set.
func (s *RuleScheduleStore) Rules() []model.Rule { return s.ptr.Load().rules }

// Schedules returns the currently cached schedule set.
func (s *RuleScheduleStore) Schedules() []model.Schedule { return s.ptr.Load().schedules }
