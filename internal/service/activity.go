package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/repository"
)

// ActivityService writes and reads the tenant activity log.
type ActivityService interface {
	// Record is best-effort: failures are logged and never returned.
	Record(ctx context.Context, projectID string, e model.LogEntry)
	List(ctx context.Context, projectID string, limit, offset int) ([]model.LogEntry, error)
}

type ActivityServiceImpl struct {
	repo repository.LogRepository
	log  *zap.Logger
}

// NewActivityService constructs ActivityService.
func NewActivityService(repo repository.LogRepository, log *zap.Logger) *ActivityServiceImpl {
	return &ActivityServiceImpl{repo: repo, log: log}
}

func (s *ActivityServiceImpl) Record(ctx context.Context, projectID string, e model.LogEntry) {
	if projectID == "" {
		return
	}
	if err := s.repo.Insert(ctx, projectID, e); err != nil {
		s.log.Warn("activity log write failed",
			zap.String("project_id", projectID),
			zap.String("endpoint", e.Endpoint),
			zap.Error(err))
	}
}

func (s *ActivityServiceImpl) List(ctx context.Context, projectID string, limit, offset int) ([]model.LogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 1000 {
		return nil, fmt.Errorf("%w: limit must not exceed 1000", errs.ErrValidation)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", errs.ErrValidation)
	}
	return s.repo.List(ctx, projectID, limit, offset)
}
