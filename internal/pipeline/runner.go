package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"mediameter/internal/collector"
	"mediameter/internal/matcher"
	"mediameter/internal/metrics"
	"mediameter/internal/models"
	"mediameter/internal/registry"
	"mediameter/internal/repository"
)

// ErrCycleInFlight is returned when a cycle is requested while the previous
// one has not finished.
var ErrCycleInFlight = errors.New("collection cycle already in flight")

type snapshotProvider interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

// Runner drives one collector: snapshot, fetch, match, persist, bookkeep.
// Each runner owns its interval and backoff; adapters never block each
// other.
type Runner struct {
	Collector collector.Collector
	Repo      repository.Repository
	Registry  snapshotProvider
	Matcher   *matcher.Matcher
	Logger    *zap.Logger

	Interval    time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration

	now      func() time.Time
	inFlight atomic.Bool

	// mu guards failures and notBefore: the ticker loop reads the gate
	// while a manually triggered cycle may be writing it.
	mu        sync.Mutex
	failures  int
	notBefore time.Time
}

// Run ticks at Interval until the context ends. A tick that lands inside
// the backoff window, or while a manually triggered cycle is still running,
// is skipped.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.Collector == nil || r.Repo == nil {
		return nil
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if r.clock()().After(r.retryAt()) {
			if err := r.RunOnce(ctx); err != nil && r.Logger != nil {
				r.Logger.Warn("collection cycle failed",
					zap.String("adapter", r.Collector.Name()),
					zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce executes a single collection cycle. Concurrent calls are
// collapsed: the second caller gets ErrCycleInFlight and nothing runs
// twice.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r == nil || r.Collector == nil || r.Repo == nil {
		return nil
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		metrics.TicksSkipped.WithLabelValues(r.Collector.Name()).Inc()
		if r.Logger != nil {
			r.Logger.Info("cycle still in flight, tick skipped",
				zap.String("adapter", r.Collector.Name()))
		}
		return ErrCycleInFlight
	}
	defer r.inFlight.Store(false)

	name := r.Collector.Name()
	sourceType := r.Collector.SourceType()
	started := r.clock()().UTC()

	state, err := r.Repo.GetCollectorState(ctx, name)
	if err != nil {
		return r.fail(ctx, started, nil, fmt.Errorf("load collector state: %w", err))
	}
	cursor := ""
	if state != nil && state.Cursor != nil {
		cursor = *state.Cursor
	}

	snap, err := r.snapshot(ctx)
	if err != nil {
		return r.fail(ctx, started, state, err)
	}

	res, err := r.Collector.Fetch(ctx, cursor)
	if err != nil {
		return r.fail(ctx, started, state, fmt.Errorf("fetch: %w", err))
	}

	counts, err := r.persist(ctx, snap, res.Items)
	if err != nil {
		// Cursor stays where it was; the whole batch replays next cycle and
		// dedup absorbs whatever did land.
		return r.fail(ctx, started, state, fmt.Errorf("persist: %w", err))
	}

	finished := r.clock()().UTC()
	run := &models.CollectionRun{
		Adapter:           name,
		SourceType:        sourceType,
		StartedAt:         started,
		FinishedAt:        &finished,
		ItemsFetched:      len(res.Items),
		ItemsMatched:      counts.matched,
		NewMentions:       counts.inserted,
		DuplicateMentions: counts.duplicates,
		UnitErrors:        res.UnitErrors,
		Status:            models.RunOK,
		Cursor:            res.NextCursor,
	}
	wctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := r.Repo.InsertCollectionRun(wctx, run); err != nil && r.Logger != nil {
		r.Logger.Warn("record collection run failed", zap.String("adapter", name), zap.Error(err))
	}
	r.saveState(wctx, state, run, counts.maxPublished)

	r.mu.Lock()
	r.failures = 0
	r.notBefore = time.Time{}
	r.mu.Unlock()

	metrics.RunsTotal.WithLabelValues(name, models.RunOK).Inc()
	metrics.ItemsFetched.WithLabelValues(name).Add(float64(len(res.Items)))
	metrics.MentionsTotal.WithLabelValues(name, "new").Add(float64(counts.inserted))
	metrics.MentionsTotal.WithLabelValues(name, "duplicate").Add(float64(counts.duplicates))
	metrics.UnitErrorsTotal.WithLabelValues(name).Add(float64(res.UnitErrors))
	metrics.CycleDuration.WithLabelValues(name).Observe(finished.Sub(started).Seconds())

	if r.Logger != nil {
		r.Logger.Info("collection cycle done",
			zap.String("adapter", name),
			zap.Int("fetched", len(res.Items)),
			zap.Int("matched", counts.matched),
			zap.Int("new", counts.inserted),
			zap.Int("duplicates", counts.duplicates),
			zap.Int("unit_errors", res.UnitErrors),
			zap.Duration("took", finished.Sub(started)))
	}
	return nil
}

type cycleCounts struct {
	matched      int
	inserted     int
	duplicates   int
	maxPublished time.Time
}

// persist matches and writes mentions in fetch order. The first storage
// error aborts the batch so the cursor never advances past unwritten items.
func (r *Runner) persist(ctx context.Context, snap *registry.Snapshot, items []collector.RawItem) (cycleCounts, error) {
	var counts cycleCounts
	for i := range items {
		item := &items[i]
		hits := r.Matcher.Match(item.Title, item.Body, snap)
		if len(hits) == 0 {
			continue
		}
		counts.matched++
		if item.PublishedAt.After(counts.maxPublished) {
			counts.maxPublished = item.PublishedAt
		}
		lang := collector.DetectLanguage(item.Title + " " + item.Body)
		now := r.clock()().UTC()
		for _, hit := range hits {
			mention := &models.Mention{
				SourceType:   item.SourceType,
				SourceItemID: item.SourceItemID,
				EntitySlug:   hit.Slug,
				SourceName:   item.SourceName,
				Title:        item.Title,
				Snippet:      hit.Snippet,
				URL:          item.URL,
				Language:     lang,
				PublishedAt:  item.PublishedAt.UTC(),
				MatchMethod:  hit.Method,
				Ambiguous:    hit.Ambiguous,
				Attrs:        encodeAttrs(item.Attrs),
				CollectedAt:  now,
				LastSeenAt:   now,
			}
			inserted, err := r.Repo.InsertMentionIfAbsent(ctx, mention)
			if err != nil {
				return counts, err
			}
			if inserted {
				counts.inserted++
				continue
			}
			counts.duplicates++
			if err := r.Repo.TouchMentionLastSeen(ctx, item.SourceType, item.SourceItemID, hit.Slug, now); err != nil {
				return counts, err
			}
		}
	}
	return counts, nil
}

func (r *Runner) snapshot(ctx context.Context) (*registry.Snapshot, error) {
	if r.Registry == nil {
		return nil, fmt.Errorf("registry snapshot unavailable: no provider")
	}
	snap, err := r.Registry.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry snapshot unavailable: %w", err)
	}
	return snap, nil
}

// fail records the failed run and state, arms the backoff window, and
// returns the original error. The cursor and watermark it writes are the
// ones the cycle started with.
func (r *Runner) fail(ctx context.Context, started time.Time, prev *models.CollectorState, cause error) error {
	name := r.Collector.Name()
	finished := r.clock()().UTC()
	msg := cause.Error()
	cursor := ""
	if prev != nil && prev.Cursor != nil {
		cursor = *prev.Cursor
	}
	run := &models.CollectionRun{
		Adapter:    name,
		SourceType: r.Collector.SourceType(),
		StartedAt:  started,
		FinishedAt: &finished,
		Status:     models.RunFailed,
		Error:      &msg,
		Cursor:     cursor,
	}
	wctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := r.Repo.InsertCollectionRun(wctx, run); err != nil && r.Logger != nil {
		r.Logger.Warn("record failed run", zap.String("adapter", name), zap.Error(err))
	}

	state := &models.CollectorState{
		Adapter:       name,
		SourceType:    r.Collector.SourceType(),
		LastAttemptAt: &finished,
		LastStatus:    models.RunFailed,
		LastError:     &msg,
	}
	if prev != nil {
		state.Cursor = prev.Cursor
		state.WatermarkTS = prev.WatermarkTS
		state.LastSuccessAt = prev.LastSuccessAt
		state.StatsJSON = prev.StatsJSON
	}
	if err := r.Repo.SaveCollectorState(wctx, state); err != nil && r.Logger != nil {
		r.Logger.Warn("save collector state", zap.String("adapter", name), zap.Error(err))
	}

	hint, _ := collector.RetryAfterHint(cause)
	r.mu.Lock()
	r.failures++
	failures := r.failures
	delay := nextDelay(r.BackoffBase, r.BackoffMax, failures, hint)
	r.notBefore = finished.Add(delay)
	r.mu.Unlock()

	metrics.RunsTotal.WithLabelValues(name, models.RunFailed).Inc()
	if r.Logger != nil {
		r.Logger.Warn("cycle failed, backing off",
			zap.String("adapter", name),
			zap.Int("consecutive_failures", failures),
			zap.Duration("retry_in", delay),
			zap.Error(cause))
	}
	return cause
}

func (r *Runner) saveState(ctx context.Context, prev *models.CollectorState, run *models.CollectionRun, maxPublished time.Time) {
	finished := *run.FinishedAt
	state := &models.CollectorState{
		Adapter:       run.Adapter,
		SourceType:    run.SourceType,
		LastSuccessAt: &finished,
		LastAttemptAt: &finished,
		LastStatus:    models.RunOK,
	}
	if run.Cursor != "" {
		state.Cursor = &run.Cursor
	}
	if !maxPublished.IsZero() {
		ts := maxPublished.UTC()
		state.WatermarkTS = &ts
	} else if prev != nil {
		state.WatermarkTS = prev.WatermarkTS
	}
	stats, err := json.Marshal(map[string]int{
		"fetched":     run.ItemsFetched,
		"matched":     run.ItemsMatched,
		"new":         run.NewMentions,
		"duplicates":  run.DuplicateMentions,
		"unit_errors": run.UnitErrors,
	})
	if err == nil {
		state.StatsJSON = datatypes.JSON(stats)
	}
	if err := r.Repo.SaveCollectorState(ctx, state); err != nil && r.Logger != nil {
		r.Logger.Warn("save collector state", zap.String("adapter", run.Adapter), zap.Error(err))
	}
}

func (r *Runner) retryAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notBefore
}

// bookkeepingContext detaches run-row and state writes from the cycle's
// context. When shutdown cancels the cycle mid-fetch, the failed run still
// gets recorded before the runner exits.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func (r *Runner) clock() func() time.Time {
	if r.now != nil {
		return r.now
	}
	return time.Now
}

func encodeAttrs(attrs map[string]any) datatypes.JSON {
	if len(attrs) == 0 {
		return nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
