package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mediameter/internal/repository"
)

// AggregateService rebuilds the daily mention rollups. Rebuilds are
// idempotent: the window is recomputed from the mentions table every time,
// so late-arriving items and touched duplicates settle on their own.
type AggregateService struct {
	Repo         repository.Repository
	Logger       *zap.Logger
	LookbackDays int
}

func (s *AggregateService) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	days := s.LookbackDays
	if days <= 0 {
		days = 30
	}
	until := time.Now().UTC()
	since := until.AddDate(0, 0, -days)
	if err := s.Repo.RebuildDailyAggregates(ctx, since, until); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Debug("daily aggregates rebuilt",
			zap.Time("since", since),
			zap.Time("until", until))
	}
	return nil
}
