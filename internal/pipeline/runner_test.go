package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediameter/internal/collector"
	"mediameter/internal/matcher"
	"mediameter/internal/models"
	"mediameter/internal/registry"
	"mediameter/internal/repository"
)

// fakeRepo keeps everything in maps and mimics the conditional-insert
// contract of the real store.
type fakeRepo struct {
	mu       sync.Mutex
	mentions map[string]*models.Mention
	runs     []models.CollectionRun
	states   map[string]models.CollectorState
	entities []models.Entity

	insertErr error
	// insertErrAfter delays insertErr until this many inserts have landed.
	insertErrAfter int
	inserts        int
	stateErr       error
	touched        int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		mentions: map[string]*models.Mention{},
		states:   map[string]models.CollectorState{},
	}
}

func mentionKey(st models.SourceType, itemID, slug string) string {
	return string(st) + "|" + itemID + "|" + slug
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (f *fakeRepo) CreateEntity(ctx context.Context, item *models.Entity) error { return nil }
func (f *fakeRepo) UpdateEntity(ctx context.Context, item *models.Entity) error { return nil }
func (f *fakeRepo) GetEntityBySlug(ctx context.Context, slug string) (*models.Entity, error) {
	return nil, nil
}
func (f *fakeRepo) ListEntities(ctx context.Context, params repository.ListEntitiesParams) ([]models.Entity, error) {
	return f.entities, nil
}

func (f *fakeRepo) InsertMentionIfAbsent(ctx context.Context, item *models.Mention) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil && f.inserts >= f.insertErrAfter {
		return false, f.insertErr
	}
	key := mentionKey(item.SourceType, item.SourceItemID, item.EntitySlug)
	if _, ok := f.mentions[key]; ok {
		return false, nil
	}
	cp := *item
	f.mentions[key] = &cp
	f.inserts++
	return true, nil
}

func (f *fakeRepo) TouchMentionLastSeen(ctx context.Context, st models.SourceType, itemID, slug string, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	if m, ok := f.mentions[mentionKey(st, itemID, slug)]; ok {
		m.LastSeenAt = seenAt
	}
	return nil
}

func (f *fakeRepo) GetMentionByID(ctx context.Context, id uint64) (*models.Mention, error) {
	return nil, nil
}
func (f *fakeRepo) ListMentions(ctx context.Context, params repository.ListMentionsParams) ([]models.Mention, error) {
	return nil, nil
}
func (f *fakeRepo) CountMentions(ctx context.Context, params repository.ListMentionsParams) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) InsertCollectionRun(ctx context.Context, item *models.CollectionRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *item)
	return nil
}
func (f *fakeRepo) ListCollectionRuns(ctx context.Context, params repository.ListRunsParams) ([]models.CollectionRun, error) {
	return f.runs, nil
}
func (f *fakeRepo) DeleteCollectionRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) GetCollectorState(ctx context.Context, adapter string) (*models.CollectorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	if st, ok := f.states[adapter]; ok {
		cp := st
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRepo) SaveCollectorState(ctx context.Context, state *models.CollectorState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.Adapter] = *state
	return nil
}

func (f *fakeRepo) ListCollectorStates(ctx context.Context) ([]models.CollectorState, error) {
	return nil, nil
}

func (f *fakeRepo) RebuildDailyAggregates(ctx context.Context, since, until time.Time) error {
	return nil
}
func (f *fakeRepo) ListDailyAggregates(ctx context.Context, params repository.ListAggregatesParams) ([]models.DailyAggregate, error) {
	return nil, nil
}

type fakeCollector struct {
	name    string
	result  collector.FetchResult
	err     error
	cursors []string
	block   chan struct{}
}

func (f *fakeCollector) Name() string                  { return f.name }
func (f *fakeCollector) SourceType() models.SourceType { return models.SourceFeed }
func (f *fakeCollector) Fetch(ctx context.Context, cursor string) (collector.FetchResult, error) {
	f.cursors = append(f.cursors, cursor)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return collector.FetchResult{}, f.err
	}
	return f.result, nil
}

type staticRegistry struct {
	entities []registry.Entity
	err      error
}

func (s *staticRegistry) Snapshot(ctx context.Context) (*registry.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &registry.Snapshot{Version: time.Now(), Entities: s.entities}, nil
}

func rawItem(id, title, body string, at time.Time) collector.RawItem {
	return collector.RawItem{
		SourceType:   models.SourceFeed,
		SourceItemID: id,
		SourceName:   "test",
		Title:        title,
		Body:         body,
		PublishedAt:  at,
	}
}

func newRunner(repo repository.Repository, col collector.Collector, reg snapshotProvider) *Runner {
	return &Runner{
		Collector:   col,
		Repo:        repo,
		Registry:    reg,
		Matcher:     &matcher.Matcher{},
		Logger:      zap.NewNop(),
		BackoffBase: 30 * time.Second,
		BackoffMax:  30 * time.Minute,
	}
}

func zelenskyy() []registry.Entity {
	return []registry.Entity{{
		Slug:        "zelenskyy",
		DisplayName: "Volodymyr Zelenskyy",
		Variants:    []string{"Zelensky"},
	}}
}

func TestRunOnceHappyPath(t *testing.T) {
	published := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	col := &fakeCollector{name: "feeds", result: collector.FetchResult{
		Items: []collector.RawItem{
			rawItem("a-1", "Zelensky visits front line", "details", published),
			rawItem("a-2", "weather report", "sunny", published.Add(time.Minute)),
		},
		NextCursor: `{"test":"2026-05-01T10:00:00Z"}`,
	}}
	r := newRunner(repo, col, &staticRegistry{entities: zelenskyy()})

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(repo.mentions) != 1 {
		t.Fatalf("mentions = %d, want 1", len(repo.mentions))
	}
	m := repo.mentions[mentionKey(models.SourceFeed, "a-1", "zelenskyy")]
	if m == nil {
		t.Fatalf("mention not stored under identity key")
	}
	if m.MatchMethod != models.MatchVariant {
		t.Fatalf("method = %q", m.MatchMethod)
	}
	if m.Language != "en" {
		t.Fatalf("language = %q", m.Language)
	}

	if len(repo.runs) != 1 {
		t.Fatalf("runs = %d", len(repo.runs))
	}
	run := repo.runs[0]
	if run.Status != models.RunOK || run.ItemsFetched != 2 || run.ItemsMatched != 1 || run.NewMentions != 1 {
		t.Fatalf("run = %+v", run)
	}

	state := repo.states["feeds"]
	if state.Cursor == nil || *state.Cursor != col.result.NextCursor {
		t.Fatalf("state cursor = %v", state.Cursor)
	}
	if state.LastStatus != models.RunOK || state.LastSuccessAt == nil {
		t.Fatalf("state = %+v", state)
	}
	if state.WatermarkTS == nil || !state.WatermarkTS.Equal(published) {
		t.Fatalf("watermark = %v, want %s", state.WatermarkTS, published)
	}
}

func TestRunOnceIdempotentAcrossCycles(t *testing.T) {
	published := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	col := &fakeCollector{name: "feeds", result: collector.FetchResult{
		Items:      []collector.RawItem{rawItem("a-1", "Zelensky again", "", published)},
		NextCursor: "c1",
	}}
	r := newRunner(repo, col, &staticRegistry{entities: zelenskyy()})

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(repo.mentions) != 1 {
		t.Fatalf("mentions = %d after refetch, want 1", len(repo.mentions))
	}
	if repo.touched != 1 {
		t.Fatalf("touched = %d, want 1", repo.touched)
	}
	second := repo.runs[1]
	if second.NewMentions != 0 || second.DuplicateMentions != 1 {
		t.Fatalf("second run = %+v", second)
	}
	// The second cycle resumed from the cursor the first one saved.
	if col.cursors[1] != "c1" {
		t.Fatalf("second cycle cursor = %q", col.cursors[1])
	}
}

func TestRunOnceFetchFailureKeepsCursor(t *testing.T) {
	repo := newFakeRepo()
	prev := "prev-cursor"
	repo.states["feeds"] = models.CollectorState{Adapter: "feeds", Cursor: &prev, LastStatus: models.RunOK}
	col := &fakeCollector{name: "feeds", err: fmt.Errorf("upstream: %w", collector.ErrSourceUnavailable)}
	r := newRunner(repo, col, &staticRegistry{entities: zelenskyy()})

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	state := repo.states["feeds"]
	if state.Cursor == nil || *state.Cursor != "prev-cursor" {
		t.Fatalf("cursor after failure = %v", state.Cursor)
	}
	if state.LastStatus != models.RunFailed || state.LastError == nil {
		t.Fatalf("state = %+v", state)
	}
	if len(repo.runs) != 1 || repo.runs[0].Status != models.RunFailed {
		t.Fatalf("runs = %+v", repo.runs)
	}
	if r.retryAt().IsZero() {
		t.Fatalf("backoff window not armed")
	}
	if r.failures != 1 {
		t.Fatalf("failures = %d", r.failures)
	}
}

func TestRunOnceRegistryFailureSkipsCycle(t *testing.T) {
	repo := newFakeRepo()
	col := &fakeCollector{name: "feeds"}
	r := newRunner(repo, col, &staticRegistry{err: errors.New("db down")})

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected registry error")
	}
	if len(col.cursors) != 0 {
		t.Fatalf("fetch ran despite missing snapshot")
	}
	if len(repo.runs) != 1 || repo.runs[0].Status != models.RunFailed {
		t.Fatalf("runs = %+v", repo.runs)
	}
}

func TestRunOncePersistFailureKeepsCursor(t *testing.T) {
	published := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.insertErr = errors.New("connection reset")
	col := &fakeCollector{name: "feeds", result: collector.FetchResult{
		Items:      []collector.RawItem{rawItem("a-1", "Zelensky", "", published)},
		NextCursor: "would-advance",
	}}
	r := newRunner(repo, col, &staticRegistry{entities: zelenskyy()})

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected persist error")
	}
	state := repo.states["feeds"]
	if state.Cursor != nil {
		t.Fatalf("cursor advanced past unwritten batch: %q", *state.Cursor)
	}
}

func TestRunOnceRateLimitHintArmsBackoff(t *testing.T) {
	repo := newFakeRepo()
	col := &fakeCollector{name: "social", err: &collector.RateLimitError{RetryAfter: 10 * time.Minute}}
	r := newRunner(repo, col, &staticRegistry{entities: zelenskyy()})
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return start }

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected rate limit error")
	}
	if got := r.retryAt().Sub(start); got != 10*time.Minute {
		t.Fatalf("backoff window = %s, want 10m", got)
	}
}

func TestRunOnceInFlightGuard(t *testing.T) {
	repo := newFakeRepo()
	col := &fakeCollector{name: "feeds", block: make(chan struct{})}
	r := newRunner(repo, col, &staticRegistry{entities: zelenskyy()})

	done := make(chan error, 1)
	go func() { done <- r.RunOnce(context.Background()) }()

	// Wait for the first cycle to reach Fetch.
	deadline := time.After(2 * time.Second)
	for {
		if r.inFlight.Load() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first cycle never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := r.RunOnce(context.Background()); !errors.Is(err, ErrCycleInFlight) {
		t.Fatalf("overlapping cycle: %v, want ErrCycleInFlight", err)
	}

	close(col.block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}

func TestRunOnceRetryAfterPartialPersist(t *testing.T) {
	published := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	repo.insertErr = errors.New("connection reset")
	repo.insertErrAfter = 4
	items := make([]collector.RawItem, 0, 10)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("a-%d", i)
		items = append(items, rawItem(id, fmt.Sprintf("Zelensky update %d", i), "", published.Add(time.Duration(i)*time.Minute)))
	}
	col := &fakeCollector{name: "feeds", result: collector.FetchResult{
		Items:      items,
		NextCursor: "c1",
	}}
	r := newRunner(repo, col, &staticRegistry{entities: zelenskyy()})

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected persist error")
	}
	if state := repo.states["feeds"]; state.Cursor != nil {
		t.Fatalf("cursor advanced past partial batch: %q", *state.Cursor)
	}
	if len(repo.mentions) != 4 {
		t.Fatalf("persisted = %d before the failure, want 4", len(repo.mentions))
	}

	// Storage recovers; the whole batch replays and dedup absorbs the
	// items that already landed.
	repo.insertErr = nil
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if len(repo.mentions) != 10 {
		t.Fatalf("mentions = %d after retry, want 10", len(repo.mentions))
	}
	retry := repo.runs[len(repo.runs)-1]
	if retry.NewMentions != 6 || retry.DuplicateMentions != 4 {
		t.Fatalf("retry run = %+v", retry)
	}
	if repo.touched != 4 {
		t.Fatalf("touched = %d, want 4", repo.touched)
	}
	state := repo.states["feeds"]
	if state.Cursor == nil || *state.Cursor != "c1" {
		t.Fatalf("cursor after retry = %v", state.Cursor)
	}
}

// cancellingCollector models shutdown landing mid-fetch: the cycle's
// context dies before any bookkeeping write happens.
type cancellingCollector struct {
	cancel context.CancelFunc
}

func (c *cancellingCollector) Name() string                  { return "feeds" }
func (c *cancellingCollector) SourceType() models.SourceType { return models.SourceFeed }
func (c *cancellingCollector) Fetch(ctx context.Context, cursor string) (collector.FetchResult, error) {
	c.cancel()
	return collector.FetchResult{}, ctx.Err()
}

func TestRunOnceShutdownStillRecordsRun(t *testing.T) {
	repo := newFakeRepo()
	prev := "prev-cursor"
	repo.states["feeds"] = models.CollectorState{Adapter: "feeds", Cursor: &prev, LastStatus: models.RunOK}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newRunner(repo, &cancellingCollector{cancel: cancel}, &staticRegistry{entities: zelenskyy()})

	if err := r.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunOnce = %v, want context.Canceled", err)
	}
	if len(repo.runs) != 1 || repo.runs[0].Status != models.RunFailed {
		t.Fatalf("run row not recorded on shutdown: %+v", repo.runs)
	}
	state := repo.states["feeds"]
	if state.LastStatus != models.RunFailed {
		t.Fatalf("state not recorded on shutdown: %+v", state)
	}
	if state.Cursor == nil || *state.Cursor != "prev-cursor" {
		t.Fatalf("cursor after shutdown = %v", state.Cursor)
	}
}

func TestManualTriggerDoesNotRaceTickerGate(t *testing.T) {
	repo := newFakeRepo()
	col := &fakeCollector{name: "feeds", err: errors.New("flaky upstream")}
	r := newRunner(repo, col, &staticRegistry{entities: zelenskyy()})

	// One goroutine plays the ticker loop reading the gate; the test
	// goroutine plays the trigger endpoint re-arming it.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if time.Now().After(r.retryAt()) {
				_ = r.RunOnce(context.Background())
			}
		}
	}()
	for i := 0; i < 50; i++ {
		_ = r.RunOnce(context.Background())
	}
	close(stop)
	wg.Wait()

	if r.retryAt().IsZero() {
		t.Fatalf("backoff window not armed after failures")
	}
}
