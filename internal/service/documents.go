package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/repository"
)

// ListLimit caps listDocuments; there is no pagination beyond it.
const ListLimit = 500

// AuthUsersTable is the system table holding tenant users.
const AuthUsersTable = "auth_users"

// protectedUserFields never change through the document update path.
var protectedUserFields = []string{"id", "password_hash", "created_at"}

// secretUserFields are removed from every user row returned to callers.
var secretUserFields = []string{"password_hash", "otp_secret"}

// Notifier receives change events after successful mutations.
type Notifier interface {
	Broadcast(projectID, table, event string, data any)
}

// DocumentService runs row-level operations on tenant tables.
type DocumentService interface {
	List(ctx context.Context, projectID, table string) ([]model.Document, error)
	Insert(ctx context.Context, projectID, table string, doc map[string]any) (model.Document, error)
	// UpdateAuthUser ignores id, password_hash and created_at in doc.
	UpdateAuthUser(ctx context.Context, projectID string, userID int64, doc map[string]any) (model.Document, error)
}

type DocumentServiceImpl struct {
	repo   repository.DocumentRepository
	notify Notifier
}

// NewDocumentService constructs DocumentService. notify may be nil.
func NewDocumentService(repo repository.DocumentRepository, notify Notifier) *DocumentServiceImpl {
	return &DocumentServiceImpl{repo: repo, notify: notify}
}

func (s *DocumentServiceImpl) List(ctx context.Context, projectID, table string) ([]model.Document, error) {
	t, err := ident.Parse(table)
	if err != nil {
		return nil, err
	}
	docs, err := s.repo.List(ctx, projectID, t, ListLimit)
	if err != nil {
		return nil, err
	}
	if t.String() == AuthUsersTable {
		for _, d := range docs {
			StripSecrets(d)
		}
	}
	return docs, nil
}

func (s *DocumentServiceImpl) Insert(ctx context.Context, projectID, table string, doc map[string]any) (model.Document, error) {
	t, err := ident.Parse(table)
	if err != nil {
		return nil, err
	}
	fields, err := toFields(doc)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.Insert(ctx, projectID, t, fields)
	if err != nil {
		return nil, err
	}
	if t.String() == AuthUsersTable {
		StripSecrets(row)
	}
	s.broadcast(projectID, t.String(), model.EventInsert, row)
	return row, nil
}

func (s *DocumentServiceImpl) UpdateAuthUser(ctx context.Context, projectID string, userID int64, doc map[string]any) (model.Document, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id", errs.ErrValidation)
	}
	clean := make(map[string]any, len(doc))
	for k, v := range doc {
		clean[k] = v
	}
	for _, k := range protectedUserFields {
		delete(clean, k)
	}
	fields, err := toFields(clean)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no updatable fields", errs.ErrValidation)
	}
	row, err := s.repo.UpdateAuthUser(ctx, projectID, userID, fields)
	if err != nil {
		return nil, err
	}
	StripSecrets(row)
	s.broadcast(projectID, AuthUsersTable, model.EventUpdate, row)
	return row, nil
}

func (s *DocumentServiceImpl) broadcast(projectID, table, event string, row model.Document) {
	if s.notify != nil {
		s.notify.Broadcast(projectID, table, event, row)
	}
}

// toFields validates every key as a column name. Fields are sorted by column
// so equal documents produce equal statements.
func toFields(doc map[string]any) ([]repository.Field, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]repository.Field, 0, len(keys))
	for _, k := range keys {
		col, err := ident.Parse(k)
		if err != nil {
			return nil, err
		}
		fields = append(fields, repository.Field{Column: col, Value: doc[k]})
	}
	return fields, nil
}

// StripSecrets removes credential columns from a user row in place.
func StripSecrets(d model.Document) {
	for _, k := range secretUserFields {
		delete(d, k)
	}
}
