package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/zerobase/internal/access"
	pkgcrypto "github.com/and161185/zerobase/internal/crypto"
	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/realtime"
	"github.com/and161185/zerobase/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

const pid = "project_0190a0b1c2d37e4f8a9b0c1d2e3f4a5b"

type lookup struct {
	hash string
	urls []string
}

func (l lookup) Access(_ context.Context, id string) (model.ProjectAccess, error) {
	if id != pid {
		return model.ProjectAccess{}, errs.ErrNotFound
	}
	return model.ProjectAccess{ID: id, APIKeyHash: l.hash, AuthorizedURLs: l.urls}, nil
}

// The stubs embed the service interface; calling a method a test did not
// override panics and surfaces as a 500 through Recovery.

type stubSchema struct {
	service.SchemaService
	mu      sync.Mutex
	created []string
	err     error
	tables  []model.Table
}

func (s *stubSchema) CreateTable(_ context.Context, projectID, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, projectID+"/"+table)
	return nil
}

func (s *stubSchema) Tables(context.Context, string) ([]model.Table, error) {
	return s.tables, s.err
}

func (s *stubSchema) CreateIndex(_ context.Context, _, table string, columns []string, _ string, _ bool) (string, error) {
	name := "idx_" + table
	for _, c := range columns {
		name += "_" + c
	}
	return name, s.err
}

type stubDocs struct {
	service.DocumentService
	lastDoc  map[string]any
	lastUser int64
}

func (s *stubDocs) Insert(_ context.Context, _, _ string, doc map[string]any) (model.Document, error) {
	s.lastDoc = doc
	row := model.Document{"id": int64(1)}
	for k, v := range doc {
		row[k] = v
	}
	return row, nil
}

func (s *stubDocs) UpdateAuthUser(_ context.Context, _ string, userID int64, doc map[string]any) (model.Document, error) {
	s.lastUser, s.lastDoc = userID, doc
	return model.Document{"id": userID}, nil
}

type stubAuth struct {
	service.AuthService
	users map[int64]model.Document
}

func (s *stubAuth) Authenticate(token string) (pkgcrypto.SessionClaims, error) {
	switch token {
	case "good":
		return pkgcrypto.SessionClaims{ProjectID: pid, UserID: 7}, nil
	case "old":
		return pkgcrypto.SessionClaims{}, errs.ErrTokenExpired
	default:
		return pkgcrypto.SessionClaims{}, errs.ErrTokenInvalid
	}
}

func (s *stubAuth) Me(_ context.Context, projectID string, userID int64) (model.Document, error) {
	u, ok := s.users[userID]
	if !ok || projectID != pid {
		return nil, errs.ErrNotFound
	}
	return u, nil
}

func (s *stubAuth) Login(_ context.Context, _, email, password, _ string) (model.AuthResult, error) {
	if password != "pwd" {
		return model.AuthResult{}, fmt.Errorf("%w: invalid email or password", errs.ErrUnauthorized)
	}
	return model.AuthResult{User: model.Document{"email": email}, Token: "good"}, nil
}

type stubStorage struct {
	service.StorageService
	name string
	body []byte
	dir  string
}

func (s *stubStorage) Upload(_ context.Context, _, name string, r io.Reader) (model.FileInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return model.FileInfo{}, err
	}
	s.name, s.body = name, b
	return model.FileInfo{Name: name, SizeBytes: int64(len(b)), MimeType: "image/png"}, nil
}

func (s *stubStorage) Open(_ context.Context, _, name string) (*os.File, model.FileInfo, error) {
	if name != "logo.png" {
		return nil, model.FileInfo{}, errs.ErrNotFound
	}
	f, err := os.Open(s.dir + "/logo.png")
	if err != nil {
		return nil, model.FileInfo{}, err
	}
	return f, model.FileInfo{Name: name, MimeType: "image/png"}, nil
}

type stubActivity struct {
	service.ActivityService
	mu      sync.Mutex
	entries []model.LogEntry
}

func (s *stubActivity) Record(_ context.Context, _ string, e model.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *stubActivity) List(_ context.Context, _ string, limit, offset int) ([]model.LogEntry, error) {
	return []model.LogEntry{{ID: int64(limit*1000 + offset)}}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubStats struct{}

func (stubStats) Stats(string) realtime.Stats {
	return realtime.Stats{Connections: 2, Tables: map[string]int{"products": 1}}
}

type env struct {
	router   *gin.Engine
	key      string
	schema   *stubSchema
	docs     *stubDocs
	auth     *stubAuth
	storage  *stubStorage
	activity *stubActivity
}

func newEnv(t *testing.T) *env {
	t.Helper()
	key, hash, err := pkgcrypto.GenerateAPIKey()
	require.NoError(t, err)
	e := &env{
		key:      key,
		schema:   &stubSchema{},
		docs:     &stubDocs{},
		auth:     &stubAuth{users: map[int64]model.Document{7: {"id": int64(7), "email": "a@acme.io"}}},
		storage:  &stubStorage{dir: t.TempDir()},
		activity: &stubActivity{},
	}
	e.router = NewRouter(Deps{
		Schema:    e.schema,
		Documents: e.docs,
		Auth:      e.auth,
		Storage:   e.storage,
		Activity:  e.activity,
		Gate:      access.New(lookup{hash: hash, urls: []string{"https://app.example.com"}}, access.Options{}),
		Realtime:  stubStats{},
		Health:    stubPinger{},
		Log:       zaptest.NewLogger(t),
	}, Options{DashboardOrigins: []string{"https://dashboard.zerobase.dev"}, MaxUploadMB: 1})
	return e
}

func (e *env) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}
