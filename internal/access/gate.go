// Package access decides, per request, whether a caller may reach a tenant.
package access

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/and161185/zerobase/internal/crypto"
	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/metrics"
	"github.com/and161185/zerobase/internal/model"
)

// ProjectLookup loads the access-relevant fields of a project.
type ProjectLookup interface {
	// Access returns errs.ErrNotFound for unknown projects.
	Access(ctx context.Context, projectID string) (model.ProjectAccess, error)
}

// Rule names the rule that admitted a request.
type Rule string

const (
	RuleNoOrigin         Rule = "no_origin"
	RuleLocalhost        Rule = "localhost"
	RuleAuthorizedOrigin Rule = "authorized_origin"
	RuleAPIKey           Rule = "api_key"
)

// Request carries the inputs of one decision.
type Request struct {
	ProjectID string
	Origin    string
	APIKey    string
}

// Decision is a successful outcome. EchoOrigin, when set, must be returned as
// Access-Control-Allow-Origin with credentials enabled.
type Decision struct {
	ProjectID  string
	Rule       Rule
	EchoOrigin string
}

// Options tune the gate.
type Options struct {
	// RequireKeyWithoutOrigin makes requests without an Origin header go
	// through API key verification instead of being admitted.
	RequireKeyWithoutOrigin bool
}

// Gate evaluates the access rules in order; the first match wins.
type Gate struct {
	projects ProjectLookup
	opts     Options
	verify   func(raw, hash string) bool
}

// New constructs a Gate.
func New(projects ProjectLookup, opts Options) *Gate {
	return &Gate{projects: projects, opts: opts, verify: crypto.VerifyAPIKey}
}

// Decide admits or rejects r.
//
// The project is resolved before any rule runs, so an unknown id is always
// reported as errs.ErrNotFound and never reaches a tenant database.
func (g *Gate) Decide(ctx context.Context, r Request) (Decision, error) {
	if r.ProjectID == "" {
		return Decision{}, fmt.Errorf("%w: projectId is required", errs.ErrValidation)
	}
	p, err := g.projects.Access(ctx, r.ProjectID)
	if err != nil {
		metrics.AccessDecisionsTotal.WithLabelValues("not_found").Inc()
		return Decision{}, err
	}
	d := Decision{ProjectID: p.ID}

	switch {
	case r.Origin == "" && !g.opts.RequireKeyWithoutOrigin:
		d.Rule = RuleNoOrigin
	case r.Origin != "" && IsLocalOrigin(r.Origin):
		d.Rule, d.EchoOrigin = RuleLocalhost, r.Origin
	case r.Origin != "" && originListed(r.Origin, p.AuthorizedURLs):
		d.Rule, d.EchoOrigin = RuleAuthorizedOrigin, r.Origin
	case g.verify(r.APIKey, p.APIKeyHash):
		d.Rule = RuleAPIKey
	default:
		metrics.AccessDecisionsTotal.WithLabelValues("denied").Inc()
		if r.Origin == "" {
			return Decision{}, fmt.Errorf("%w: a valid API key is required for this project", errs.ErrForbidden)
		}
		return Decision{}, fmt.Errorf("%w: Origin %q is not authorized for this project. Add it in the project Settings > Authorized URLs",
			errs.ErrForbidden, r.Origin)
	}
	metrics.AccessDecisionsTotal.WithLabelValues(string(d.Rule)).Inc()
	return d, nil
}

// IsLocalOrigin reports whether origin is plain-http localhost, 127.0.0.1 or [::1]
// on any port.
func IsLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// NormalizeOrigin strips one trailing slash and lowercases.
func NormalizeOrigin(s string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "/"))
}

func originListed(origin string, allowed []string) bool {
	o := NormalizeOrigin(origin)
	for _, a := range allowed {
		if NormalizeOrigin(a) == o {
			return true
		}
	}
	return false
}
