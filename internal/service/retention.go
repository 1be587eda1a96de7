package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mediameter/internal/repository"
)

// RetentionService trims old collection_runs rows. Mentions are never
// deleted here; only the per-cycle bookkeeping expires.
type RetentionService struct {
	Repo        repository.Repository
	Logger      *zap.Logger
	RunKeepDays int
}

func (s *RetentionService) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	days := s.RunKeepDays
	if days <= 0 {
		days = 14
	}
	before := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := s.Repo.DeleteCollectionRunsBefore(ctx, before)
	if err != nil {
		return err
	}
	if deleted > 0 && s.Logger != nil {
		s.Logger.Info("collection runs pruned",
			zap.Int64("deleted", deleted),
			zap.Time("before", before))
	}
	return nil
}
