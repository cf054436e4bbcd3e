package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/limiter"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/repository"
)

// memTenants is an in-memory control plane plus tenant engine. It implements
// the project, schema and document repositories well enough to run the
// provisioning and document flows end to end.
type memTenants struct {
	mu       sync.Mutex
	projects map[string]model.Project
	hashes   map[string]string
	dbs      map[string]map[string]*memTable
	calls    []string

	createDBErr error
	insertErr   error
	dropErr     error
	migrateErr  error
}

type memTable struct {
	cols []string
	rows []model.Document
	seq  int32
}

var (
	_ repository.ProjectRepository = (*memTenants)(nil)
	_ repository.SchemaRepository  = (*memTenants)(nil)
)

func newMem() *memTenants {
	return &memTenants{
		projects: map[string]model.Project{},
		hashes:   map[string]string{},
		dbs:      map[string]map[string]*memTable{},
	}
}

func (m *memTenants) record(s string) { m.calls = append(m.calls, s) }

func (m *memTenants) db(projectID string) (map[string]*memTable, error) {
	db, ok := m.dbs[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: database %q does not exist", errs.ErrNotFound, projectID)
	}
	return db, nil
}

func (m *memTenants) CreateDatabase(_ context.Context, id ident.Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateDatabase")
	if m.createDBErr != nil {
		return m.createDBErr
	}
	if _, ok := m.dbs[id.String()]; ok {
		return fmt.Errorf("%w: database exists", errs.ErrConflict)
	}
	m.dbs[id.String()] = map[string]*memTable{}
	return nil
}

func (m *memTenants) DropDatabase(_ context.Context, id ident.Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DropDatabase")
	if m.dropErr != nil {
		return m.dropErr
	}
	delete(m.dbs, id.String())
	return nil
}

func (m *memTenants) Insert(_ context.Context, p model.Project, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Insert")
	if m.insertErr != nil {
		return m.insertErr
	}
	m.projects[p.ID] = p
	m.hashes[p.ID] = hash
	return nil
}

func (m *memTenants) Get(_ context.Context, id string) (model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return model.Project{}, errs.ErrNotFound
	}
	return p, nil
}

func (m *memTenants) List(context.Context) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

func (m *memTenants) Access(_ context.Context, id string) (model.ProjectAccess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return model.ProjectAccess{}, errs.ErrNotFound
	}
	return model.ProjectAccess{ID: id, APIKeyHash: m.hashes[id], AuthorizedURLs: p.AuthorizedURLs}, nil
}

func (m *memTenants) AddURL(_ context.Context, id, u string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	for _, have := range p.AuthorizedURLs {
		if have == u {
			return p.AuthorizedURLs, nil
		}
	}
	p.AuthorizedURLs = append(p.AuthorizedURLs, u)
	m.projects[id] = p
	return p.AuthorizedURLs, nil
}

func (m *memTenants) RemoveURL(_ context.Context, id, u string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := []string{}
	for _, have := range p.AuthorizedURLs {
		if have != u {
			out = append(out, have)
		}
	}
	p.AuthorizedURLs = out
	m.projects[id] = p
	return out, nil
}

func (m *memTenants) SetAPIKeyHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return errs.ErrNotFound
	}
	m.hashes[id] = hash
	return nil
}

func (m *memTenants) SetQuota(_ context.Context, id string, mb int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.StorageQuotaMB = mb
	m.projects[id] = p
	return nil
}

func (m *memTenants) Ping(context.Context) error { return nil }

func (m *memTenants) Tables(_ context.Context, projectID string) ([]model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, err := m.db(projectID)
	if err != nil {
		return nil, err
	}
	out := []model.Table{}
	for name, t := range db {
		tb := model.Table{Name: name}
		for _, c := range t.cols {
			tb.Columns = append(tb.Columns, model.Column{Name: c})
		}
		out = append(out, tb)
	}
	return out, nil
}

func (m *memTenants) CreateTable(_ context.Context, projectID string, table ident.Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateTable " + table.String())
	db, err := m.db(projectID)
	if err != nil {
		return err
	}
	if _, ok := db[table.String()]; ok {
		return fmt.Errorf("%w: relation %q already exists", errs.ErrConflict, table.String())
	}
	db[table.String()] = &memTable{cols: []string{"id"}}
	return nil
}

func (m *memTenants) DropTable(_ context.Context, projectID string, table ident.Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DropTable " + table.String())
	db, err := m.db(projectID)
	if err != nil {
		return err
	}
	delete(db, table.String())
	return nil
}

func (m *memTenants) AddColumn(_ context.Context, projectID string, table, column ident.Name, typ ident.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AddColumn " + table.String() + " " + column.String() + " " + typ.String())
	db, err := m.db(projectID)
	if err != nil {
		return err
	}
	t, ok := db[table.String()]
	if !ok {
		return fmt.Errorf("%w: relation %q does not exist", errs.ErrNotFound, table.String())
	}
	t.cols = append(t.cols, column.String())
	return nil
}

func (m *memTenants) Indexes(context.Context, string, ident.Name) ([]model.Index, error) {
	return []model.Index{}, nil
}

func (m *memTenants) CreateIndex(_ context.Context, _ string, table ident.Name, columns []ident.Name, method ident.IndexMethod, unique bool) (ident.Name, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := ident.IndexName(table, columns)
	m.record(fmt.Sprintf("CreateIndex %s %s %v", name, method, unique))
	return name, nil
}

func (m *memTenants) DropIndex(_ context.Context, _ string, index ident.Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DropIndex " + index.String())
	return nil
}

func (m *memTenants) Extensions(context.Context, string) ([]model.Extension, error) {
	return []model.Extension{}, nil
}

func (m *memTenants) EnableExtension(_ context.Context, _ string, e ident.Extension) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("EnableExtension " + e.String())
	return nil
}

func (m *memTenants) DisableExtension(_ context.Context, _ string, e ident.Extension) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DisableExtension " + e.String())
	return nil
}

func (m *memTenants) MigrateSystemTables(_ context.Context, projectID string) (model.MigrationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("MigrateSystemTables")
	if m.migrateErr != nil {
		return model.MigrationReport{}, m.migrateErr
	}
	db, err := m.db(projectID)
	if err != nil {
		return model.MigrationReport{}, err
	}
	rep := model.MigrationReport{Added: map[string][]string{}}
	for _, t := range []string{"auth_users", "logs"} {
		if _, ok := db[t]; !ok {
			db[t] = &memTable{cols: []string{"id"}}
			rep.Added[t] = []string{"id"}
		}
	}
	return rep, nil
}

func (m *memTenants) ListRows(_ context.Context, projectID string, table ident.Name, limit int) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, err := m.db(projectID)
	if err != nil {
		return nil, err
	}
	t, ok := db[table.String()]
	if !ok {
		return nil, fmt.Errorf("%w: relation %q does not exist", errs.ErrNotFound, table.String())
	}
	out := make([]model.Document, 0, len(t.rows))
	for i, r := range t.rows {
		if i == limit {
			break
		}
		out = append(out, copyDoc(r))
	}
	return out, nil
}

func (m *memTenants) InsertRow(_ context.Context, projectID string, table ident.Name, fields []repository.Field) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, err := m.db(projectID)
	if err != nil {
		return nil, err
	}
	t, ok := db[table.String()]
	if !ok {
		return nil, fmt.Errorf("%w: relation %q does not exist", errs.ErrNotFound, table.String())
	}
	t.seq++
	row := model.Document{}
	for _, c := range t.cols {
		row[c] = nil
	}
	row["id"] = t.seq
	for _, f := range fields {
		if _, ok := row[f.Column.String()]; !ok {
			return nil, fmt.Errorf("%w: column %q does not exist", errs.ErrValidation, f.Column.String())
		}
		row[f.Column.String()] = f.Value
	}
	t.rows = append(t.rows, row)
	return copyDoc(row), nil
}

func (m *memTenants) UpdateAuthUser(_ context.Context, projectID string, userID int64, fields []repository.Field) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, err := m.db(projectID)
	if err != nil {
		return nil, err
	}
	t := db["auth_users"]
	if t == nil {
		return nil, errs.ErrNotFound
	}
	for _, r := range t.rows {
		if id, _ := userID64(r["id"]); id == userID {
			for _, f := range fields {
				r[f.Column.String()] = f.Value
			}
			return copyDoc(r), nil
		}
	}
	return nil, errs.ErrNotFound
}

func userID64(v any) (int64, bool) { return userID(model.Document{"id": v}) }

func copyDoc(d model.Document) model.Document {
	out := make(model.Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// docRepo adapts memTenants to DocumentRepository, whose List and Insert
// names clash with the project repository methods.
type docRepo struct{ *memTenants }

func (d docRepo) List(ctx context.Context, projectID string, table ident.Name, limit int) ([]model.Document, error) {
	return d.ListRows(ctx, projectID, table, limit)
}

func (d docRepo) Insert(ctx context.Context, projectID string, table ident.Name, fields []repository.Field) (model.Document, error) {
	return d.InsertRow(ctx, projectID, table, fields)
}

var _ repository.DocumentRepository = docRepo{}

type change struct {
	projectID, table, event string
	data                    any
}

type fakeNotifier struct {
	mu      sync.Mutex
	changes []change
}

func (n *fakeNotifier) Broadcast(projectID, table, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change{projectID, table, event, data})
}

type fakeDirs struct {
	ensured []string
	err     error
}

func (f *fakeDirs) Ensure(projectID string) error {
	f.ensured = append(f.ensured, projectID)
	return f.err
}

type fakeUsers struct {
	byEmail map[string]model.Document
	hashes  map[string]string
	nextID  int32

	createErr error
	credErr   error

	failures  int
	logins    int
	otp       map[int64]string
	expiry    map[int64]string
	deleteErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail: map[string]model.Document{},
		hashes:  map[string]string{},
		otp:     map[int64]string{},
		expiry:  map[int64]string{},
	}
}

func (f *fakeUsers) byID(id int64) (model.Document, bool) {
	for _, u := range f.byEmail {
		if uid, _ := userID64(u["id"]); uid == id {
			return u, true
		}
	}
	return nil, false
}

func (f *fakeUsers) Create(_ context.Context, _, email, name, hash string) (model.Document, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[email]; ok {
		return nil, fmt.Errorf("%w: user already exists", errs.ErrConflict)
	}
	f.nextID++
	u := model.Document{"id": f.nextID, "email": email, "name": name, "password_hash": hash, "otp_secret": nil}
	f.byEmail[email] = u
	f.hashes[email] = hash
	return copyDoc(u), nil
}

func (f *fakeUsers) Credentials(_ context.Context, _, email string) (model.Credentials, error) {
	if f.credErr != nil {
		return model.Credentials{}, f.credErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return model.Credentials{}, errs.ErrNotFound
	}
	id, _ := userID64(u["id"])
	status, _ := u["status"].(string)
	return model.Credentials{UserID: id, PasswordHash: f.hashes[email], Expiry: f.expiry[id], Status: status}, nil
}

func (f *fakeUsers) RecordLogin(_ context.Context, _ string, id int64, ip string) (model.Document, error) {
	f.logins++
	u, ok := f.byID(id)
	if !ok {
		return nil, errs.ErrNotFound
	}
	u["last_ip"] = ip
	return copyDoc(u), nil
}

func (f *fakeUsers) RecordFailure(context.Context, string, int64) error {
	f.failures++
	return nil
}

func (f *fakeUsers) UpsertGoogle(_ context.Context, _, googleID, email, name string) (model.Document, error) {
	for _, u := range f.byEmail {
		if u["google_id"] == googleID {
			return copyDoc(u), nil
		}
	}
	if u, ok := f.byEmail[email]; ok {
		u["google_id"] = googleID
		return copyDoc(u), nil
	}
	f.nextID++
	u := model.Document{"id": f.nextID, "email": email, "name": name, "google_id": googleID}
	f.byEmail[email] = u
	return copyDoc(u), nil
}

func (f *fakeUsers) Get(_ context.Context, _ string, id int64) (model.Document, error) {
	u, ok := f.byID(id)
	if !ok {
		return nil, errs.ErrNotFound
	}
	d := copyDoc(u)
	if s, ok := f.otp[id]; ok {
		d["otp_secret"] = s
	}
	return d, nil
}

func (f *fakeUsers) List(context.Context, string) ([]model.Document, error) {
	out := []model.Document{}
	for _, u := range f.byEmail {
		out = append(out, copyDoc(u))
	}
	return out, nil
}

func (f *fakeUsers) Delete(_ context.Context, _ string, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	u, ok := f.byID(id)
	if !ok {
		return errs.ErrNotFound
	}
	delete(f.byEmail, u["email"].(string))
	return nil
}

func (f *fakeUsers) SetOTPSecret(_ context.Context, _ string, id int64, secret string) error {
	f.otp[id] = secret
	return nil
}

func (f *fakeUsers) SetExpiry(_ context.Context, _ string, id int64, expiry string) error {
	if _, ok := f.byID(id); !ok {
		return errs.ErrNotFound
	}
	f.expiry[id] = expiry
	return nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
	lastKey      limiter.Key
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, k limiter.Key) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastKey = k
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, limiter.Key) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, limiter.Key) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type fakeGoogle struct {
	id  GoogleIdentity
	err error
}

func (g fakeGoogle) Verify(context.Context, string) (GoogleIdentity, error) { return g.id, g.err }

type fakeLogs struct {
	entries []model.LogEntry
	err     error
}

func (f *fakeLogs) Insert(_ context.Context, _ string, e model.LogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLogs) List(_ context.Context, _ string, limit, offset int) ([]model.LogEntry, error) {
	if offset >= len(f.entries) {
		return []model.LogEntry{}, nil
	}
	end := offset + limit
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return f.entries[offset:end], nil
}

type fakeFiles struct {
	used, avail int64
	saved       []string
	quota       int64
	saveErr     error
}

func (f *fakeFiles) Usage(string) (int64, error) { return f.used, nil }
func (f *fakeFiles) Available() (int64, error)   { return f.avail, nil }
func (f *fakeFiles) Save(_ string, name string, r io.Reader, quota int64) (model.FileInfo, error) {
	f.quota = quota
	if f.saveErr != nil {
		return model.FileInfo{}, f.saveErr
	}
	b, _ := io.ReadAll(r)
	f.saved = append(f.saved, name)
	return model.FileInfo{Name: name, SizeBytes: int64(len(b))}, nil
}
func (f *fakeFiles) List(string) ([]model.FileInfo, error) { return []model.FileInfo{}, nil }
func (f *fakeFiles) Open(string, string) (*os.File, model.FileInfo, error) {
	return nil, model.FileInfo{}, errs.ErrNotFound
}
func (f *fakeFiles) Delete(string, string) error { return nil }
