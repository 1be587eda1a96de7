package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediameter/internal/repository"
)

type stubRepo struct {
	repository.Repository

	rebuiltSince time.Time
	rebuiltUntil time.Time
	rebuildErr   error

	deleteBefore time.Time
	deleted      int64
	deleteErr    error
}

func (s *stubRepo) RebuildDailyAggregates(ctx context.Context, since, until time.Time) error {
	s.rebuiltSince = since
	s.rebuiltUntil = until
	return s.rebuildErr
}

func (s *stubRepo) DeleteCollectionRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.deleteBefore = before
	return s.deleted, s.deleteErr
}

func TestAggregateRunOnceWindow(t *testing.T) {
	repo := &stubRepo{}
	svc := &AggregateService{Repo: repo, LookbackDays: 7}

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := repo.rebuiltUntil.Sub(repo.rebuiltSince); got < 6*24*time.Hour || got > 8*24*time.Hour {
		t.Fatalf("window = %s, want ~7d", got)
	}
}

func TestAggregateRunOnceDefaultLookback(t *testing.T) {
	repo := &stubRepo{}
	svc := &AggregateService{Repo: repo}

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := repo.rebuiltUntil.Sub(repo.rebuiltSince); got < 29*24*time.Hour {
		t.Fatalf("window = %s, want 30d default", got)
	}
}

func TestAggregateRunOncePropagatesError(t *testing.T) {
	repo := &stubRepo{rebuildErr: errors.New("db down")}
	svc := &AggregateService{Repo: repo}

	if err := svc.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected rebuild error")
	}
}

func TestRetentionRunOnceCutoff(t *testing.T) {
	repo := &stubRepo{deleted: 12}
	svc := &RetentionService{Repo: repo, RunKeepDays: 3}

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := time.Now().UTC().AddDate(0, 0, -3)
	if diff := want.Sub(repo.deleteBefore); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff = %s, want ~%s", repo.deleteBefore, want)
	}
}

func TestRetentionRunOncePropagatesError(t *testing.T) {
	repo := &stubRepo{deleteErr: errors.New("db down")}
	svc := &RetentionService{Repo: repo}

	if err := svc.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected delete error")
	}
}
