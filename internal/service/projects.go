// Package service contains application services for projects, schema, documents,
// tenant authentication, storage and the activity log.
package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/zerobase/internal/crypto"
	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/repository"
)

// ProjectService provisions tenants and manages their control-plane settings.
type ProjectService interface {
	// Create allocates a tenant database and returns the API key once.
	Create(ctx context.Context, name string, quotaMB int64) (model.ProvisionedProject, error)
	List(ctx context.Context) ([]model.Project, error)
	Get(ctx context.Context, id string) (model.Project, error)
	// VerifyKey reports whether apiKey matches the project's stored hash.
	VerifyKey(ctx context.Context, id, apiKey string) (bool, error)
	URLs(ctx context.Context, id string) ([]string, error)
	AddURL(ctx context.Context, id, raw string) ([]string, error)
	RemoveURL(ctx context.Context, id, raw string) ([]string, error)
	// RegenerateKey replaces the API key and returns the new one once.
	RegenerateKey(ctx context.Context, id string) (string, error)
	// InitSystemTables creates or additively migrates auth_users and logs.
	InitSystemTables(ctx context.Context, id string) (model.MigrationReport, error)
}

// ProjectDirs prepares per-project storage.
type ProjectDirs interface {
	Ensure(projectID string) error
}

type ProjectServiceImpl struct {
	projects     repository.ProjectRepository
	schema       repository.SchemaRepository
	dirs         ProjectDirs
	defaultQuota int64
	log          *zap.Logger

	newID  func() (string, error)
	newKey func() (raw, hash string, err error)
	now    func() time.Time
}

// NewProjectService constructs ProjectService.
func NewProjectService(projects repository.ProjectRepository, schema repository.SchemaRepository, dirs ProjectDirs, defaultQuotaMB int64, log *zap.Logger) *ProjectServiceImpl {
	if defaultQuotaMB <= 0 {
		defaultQuotaMB = 1024
	}
	return &ProjectServiceImpl{
		projects:     projects,
		schema:       schema,
		dirs:         dirs,
		defaultQuota: defaultQuotaMB,
		log:          log,
		newID:        NewProjectID,
		newKey:       pkgcrypto.GenerateAPIKey,
		now:          time.Now,
	}
}

// NewProjectID returns project_<32 hex digits of a UUIDv7>. The value is a
// valid identifier and so doubles as the tenant database name.
func NewProjectID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return "project_" + hex.EncodeToString(u.Bytes()), nil
}

// Create provisions the database, the control-plane row, the system tables and
// the storage directory, in that order.
func (s *ProjectServiceImpl) Create(ctx context.Context, name string, quotaMB int64) (model.ProvisionedProject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.ProvisionedProject{}, fmt.Errorf("%w: project name is required", errs.ErrValidation)
	}
	if quotaMB < 0 {
		return model.ProvisionedProject{}, fmt.Errorf("%w: storage quota must be positive", errs.ErrValidation)
	}
	if quotaMB == 0 {
		quotaMB = s.defaultQuota
	}

	rawID, err := s.newID()
	if err != nil {
		return model.ProvisionedProject{}, err
	}
	id, err := ident.Parse(rawID)
	if err != nil {
		return model.ProvisionedProject{}, err
	}
	key, hash, err := s.newKey()
	if err != nil {
		return model.ProvisionedProject{}, err
	}

	if err := s.projects.CreateDatabase(ctx, id); err != nil {
		return model.ProvisionedProject{}, err
	}
	p := model.Project{
		ID:             id.String(),
		Name:           name,
		AuthorizedURLs: []string{},
		StorageQuotaMB: quotaMB,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.projects.Insert(ctx, p, hash); err != nil {
		s.dropOrphan(ctx, id, err)
		return model.ProvisionedProject{}, err
	}
	if _, err := s.schema.MigrateSystemTables(ctx, p.ID); err != nil {
		// the project exists; /auth/init can finish the migration later
		s.log.Warn("system table migration incomplete", zap.String("project_id", p.ID), zap.Error(err))
	}
	if s.dirs != nil {
		if err := s.dirs.Ensure(p.ID); err != nil {
			s.log.Warn("storage directory not created", zap.String("project_id", p.ID), zap.Error(err))
		}
	}

	s.log.Info("project provisioned", zap.String("project_id", p.ID), zap.String("name", name))
	return model.ProvisionedProject{
		ProjectID: p.ID,
		Name:      name,
		APIKey:    key,
		Message:   "Project created. Store the API key now: it will not be shown again.",
	}, nil
}

// dropOrphan removes a database whose project row could not be stored.
func (s *ProjectServiceImpl) dropOrphan(ctx context.Context, id ident.Name, cause error) {
	s.log.Error("project registration failed", zap.String("project_id", id.String()), zap.Error(cause))
	if err := s.projects.DropDatabase(context.WithoutCancel(ctx), id); err != nil {
		s.log.Error("orphan tenant database left behind", zap.String("project_id", id.String()), zap.Error(err))
		return
	}
	s.log.Info("orphan tenant database dropped", zap.String("project_id", id.String()))
}

func (s *ProjectServiceImpl) List(ctx context.Context) ([]model.Project, error) {
	return s.projects.List(ctx)
}

func (s *ProjectServiceImpl) Get(ctx context.Context, id string) (model.Project, error) {
	return s.projects.Get(ctx, id)
}

func (s *ProjectServiceImpl) VerifyKey(ctx context.Context, id, apiKey string) (bool, error) {
	if id == "" || apiKey == "" {
		return false, fmt.Errorf("%w: projectId and apiKey are required", errs.ErrValidation)
	}
	a, err := s.projects.Access(ctx, id)
	if err != nil {
		return false, err
	}
	return pkgcrypto.VerifyAPIKey(apiKey, a.APIKeyHash), nil
}

func (s *ProjectServiceImpl) URLs(ctx context.Context, id string) ([]string, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.AuthorizedURLs, nil
}

// AddURL accepts an http or https origin without a path. Adding a URL that is
// already listed is a no-op.
func (s *ProjectServiceImpl) AddURL(ctx context.Context, id, raw string) ([]string, error) {
	origin, err := ParseOrigin(raw)
	if err != nil {
		return nil, err
	}
	return s.projects.AddURL(ctx, id, origin)
}

func (s *ProjectServiceImpl) RemoveURL(ctx context.Context, id, raw string) ([]string, error) {
	origin := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if origin == "" {
		return nil, fmt.Errorf("%w: url is required", errs.ErrValidation)
	}
	return s.projects.RemoveURL(ctx, id, origin)
}

func (s *ProjectServiceImpl) RegenerateKey(ctx context.Context, id string) (string, error) {
	key, hash, err := s.newKey()
	if err != nil {
		return "", err
	}
	if err := s.projects.SetAPIKeyHash(ctx, id, hash); err != nil {
		return "", err
	}
	s.log.Info("api key regenerated", zap.String("project_id", id))
	return key, nil
}

func (s *ProjectServiceImpl) InitSystemTables(ctx context.Context, id string) (model.MigrationReport, error) {
	if _, err := s.projects.Get(ctx, id); err != nil {
		return model.MigrationReport{}, err
	}
	return s.schema.MigrateSystemTables(ctx, id)
}

// ParseOrigin validates an authorized URL: scheme http or https, a host, and
// no path, query or fragment. The trailing slash is stripped.
func ParseOrigin(raw string) (string, error) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid URL %q", errs.ErrValidation, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: URL must use http or https", errs.ErrValidation)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", fmt.Errorf("%w: URL must be an origin without a path, e.g. https://app.example.com", errs.ErrValidation)
	}
	return u.Scheme + "://" + u.Host, nil
}
