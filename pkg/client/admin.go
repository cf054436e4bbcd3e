package client

import (
	"context"
	"net/http"
	"net/url"
)

// Admin calls the dashboard-facing endpoints that are not bound to one project.
type Admin struct{ transport }

// NewAdmin returns an Admin for the server at baseURL.
func NewAdmin(baseURL string, opts ...Option) *Admin {
	return &Admin{transport: newTransport(baseURL, opts)}
}

func projectPath(id, rest string) string {
	return "/projects/" + url.PathEscape(id) + rest
}

// CreateProject provisions a project. The returned API key is shown only once.
func (a *Admin) CreateProject(ctx context.Context, name string, storageMB int64) (ProvisionedProject, error) {
	var out ProvisionedProject
	in := map[string]any{"name": name}
	if storageMB > 0 {
		in["storageMb"] = storageMB
	}
	err := a.doJSON(ctx, http.MethodPost, "/projects", nil, in, &out)
	return out, err
}

// Projects lists every project.
func (a *Admin) Projects(ctx context.Context) ([]Project, error) {
	var out []Project
	err := a.doJSON(ctx, http.MethodGet, "/projects", nil, nil, &out)
	return out, err
}

// Project fetches one project.
func (a *Admin) Project(ctx context.Context, id string) (Project, error) {
	var out Project
	err := a.doJSON(ctx, http.MethodGet, projectPath(id, ""), nil, nil, &out)
	return out, err
}

// VerifyKey reports whether apiKey belongs to the project.
func (a *Admin) VerifyKey(ctx context.Context, projectID, apiKey string) (bool, error) {
	var out struct {
		IsValid bool `json:"isValid"`
	}
	err := a.doJSON(ctx, http.MethodPost, "/projects/verify-key", nil,
		map[string]string{"projectId": projectID, "apiKey": apiKey}, &out)
	return out.IsValid, err
}

type urlList struct {
	URLs []string `json:"urls"`
}

// URLs lists the project's authorized origins.
func (a *Admin) URLs(ctx context.Context, id string) ([]string, error) {
	var out urlList
	err := a.doJSON(ctx, http.MethodGet, projectPath(id, "/urls"), nil, nil, &out)
	return out.URLs, err
}

// AddURL authorizes an origin and returns the updated list.
func (a *Admin) AddURL(ctx context.Context, id, origin string) ([]string, error) {
	var out urlList
	err := a.doJSON(ctx, http.MethodPost, projectPath(id, "/urls"), nil, map[string]string{"url": origin}, &out)
	return out.URLs, err
}

// RemoveURL revokes an origin and returns the updated list.
func (a *Admin) RemoveURL(ctx context.Context, id, origin string) ([]string, error) {
	var out urlList
	err := a.doJSON(ctx, http.MethodDelete, projectPath(id, "/urls"), nil, map[string]string{"url": origin}, &out)
	return out.URLs, err
}

// RegenerateKey rotates the project's API key and returns the new one.
func (a *Admin) RegenerateKey(ctx context.Context, id string) (string, error) {
	var out struct {
		APIKey string `json:"apiKey"`
	}
	err := a.doJSON(ctx, http.MethodPost, projectPath(id, "/regenerate-key"), nil, nil, &out)
	return out.APIKey, err
}

// InitAuth ensures the project's system tables are current and returns the
// columns added per table.
func (a *Admin) InitAuth(ctx context.Context, id string) (map[string][]string, error) {
	var out struct {
		Added map[string][]string `json:"added"`
	}
	err := a.doJSON(ctx, http.MethodPost, "/auth/init", nil, map[string]string{"projectId": id}, &out)
	return out.Added, err
}

// Health is the server health report.
type Health struct {
	Status    string `json:"status"`
	DB        string `json:"db"`
	Uptime    int64  `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// Health returns the server health. A degraded server answers 503, which is
// reported as an *APIError alongside the decoded body.
func (a *Admin) Health(ctx context.Context) (Health, error) {
	req, err := a.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := a.hc.Do(req)
	if err != nil {
		return Health{}, err
	}
	defer resp.Body.Close()
	var out Health
	if err := decodeJSON(resp.Body, &out); err != nil {
		return Health{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return out, &APIError{Status: resp.StatusCode, Message: out.Status}
	}
	return out, nil
}
