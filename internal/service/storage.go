package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/metrics"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/repository"
	"github.com/and161185/zerobase/internal/storage"
)

// StorageService exposes per-project file storage with quota enforcement.
type StorageService interface {
	Info(ctx context.Context, projectID string) (model.StorageInfo, error)
	// SetQuota rejects quotas below current usage or above usage plus free disk.
	SetQuota(ctx context.Context, projectID string, quotaMB int64) (model.StorageInfo, error)
	Upload(ctx context.Context, projectID, name string, r io.Reader) (model.FileInfo, error)
	Files(ctx context.Context, projectID string) ([]model.FileInfo, error)
	Open(ctx context.Context, projectID, name string) (*os.File, model.FileInfo, error)
	Delete(ctx context.Context, projectID, name string) error
}

// FileStore is the filesystem layer used by StorageServiceImpl.
type FileStore interface {
	Usage(projectID string) (int64, error)
	Available() (int64, error)
	Save(projectID, name string, r io.Reader, quotaBytes int64) (model.FileInfo, error)
	List(projectID string) ([]model.FileInfo, error)
	Open(projectID, name string) (*os.File, model.FileInfo, error)
	Delete(projectID, name string) error
}

var _ FileStore = (*storage.Manager)(nil)

type StorageServiceImpl struct {
	projects repository.ProjectRepository
	files    FileStore
	log      *zap.Logger
}

// NewStorageService constructs StorageService.
func NewStorageService(projects repository.ProjectRepository, files FileStore, log *zap.Logger) *StorageServiceImpl {
	return &StorageServiceImpl{projects: projects, files: files, log: log}
}

func (s *StorageServiceImpl) Info(ctx context.Context, projectID string) (model.StorageInfo, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return model.StorageInfo{}, err
	}
	used, avail, err := s.measure(projectID)
	if err != nil {
		return model.StorageInfo{}, err
	}
	return model.StorageInfo{
		ProjectID:       projectID,
		QuotaMB:         p.StorageQuotaMB,
		UsedMB:          used / storage.MiB,
		AvailableDiskMB: avail / storage.MiB,
	}, nil
}

func (s *StorageServiceImpl) SetQuota(ctx context.Context, projectID string, quotaMB int64) (model.StorageInfo, error) {
	if quotaMB < 1 {
		return model.StorageInfo{}, fmt.Errorf("%w: invalid quota value", errs.ErrValidation)
	}
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return model.StorageInfo{}, err
	}
	used, avail, err := s.measure(projectID)
	if err != nil {
		return model.StorageInfo{}, err
	}
	quota := quotaMB * storage.MiB
	if quota < used {
		return model.StorageInfo{}, fmt.Errorf("%w: cannot set quota below current usage (%d MB used)", errs.ErrValidation, used/storage.MiB)
	}
	if quota > used+avail {
		return model.StorageInfo{}, fmt.Errorf("%w: not enough disk space, only %d MB available on server", errs.ErrValidation, avail/storage.MiB)
	}
	if err := s.projects.SetQuota(ctx, projectID, quotaMB); err != nil {
		return model.StorageInfo{}, err
	}
	return model.StorageInfo{
		ProjectID:       projectID,
		QuotaMB:         quotaMB,
		UsedMB:          used / storage.MiB,
		AvailableDiskMB: avail / storage.MiB,
	}, nil
}

func (s *StorageServiceImpl) Upload(ctx context.Context, projectID, name string, r io.Reader) (model.FileInfo, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return model.FileInfo{}, err
	}
	info, err := s.files.Save(projectID, name, r, p.StorageQuotaMB*storage.MiB)
	if err != nil {
		metrics.StorageUploadsTotal.WithLabelValues(uploadResult(err)).Inc()
		return model.FileInfo{}, err
	}
	metrics.StorageUploadsTotal.WithLabelValues("ok").Inc()
	s.log.Info("file stored", zap.String("project_id", projectID), zap.String("file", info.Name), zap.Int64("bytes", info.SizeBytes))
	return info, nil
}

func (s *StorageServiceImpl) Files(_ context.Context, projectID string) ([]model.FileInfo, error) {
	return s.files.List(projectID)
}

func (s *StorageServiceImpl) Open(_ context.Context, projectID, name string) (*os.File, model.FileInfo, error) {
	return s.files.Open(projectID, name)
}

func (s *StorageServiceImpl) Delete(_ context.Context, projectID, name string) error {
	return s.files.Delete(projectID, name)
}

// measure reads usage and free disk. An unreadable disk statistic counts as 0.
func (s *StorageServiceImpl) measure(projectID string) (used, avail int64, err error) {
	used, err = s.files.Usage(projectID)
	if err != nil {
		return 0, 0, err
	}
	avail, aerr := s.files.Available()
	if aerr != nil {
		s.log.Warn("disk statistics unavailable", zap.Error(aerr))
		avail = 0
	}
	return used, avail, nil
}

func uploadResult(err error) string {
	switch {
	case errors.Is(err, errs.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, errs.ErrValidation):
		return "rejected"
	default:
		return "error"
	}
}
