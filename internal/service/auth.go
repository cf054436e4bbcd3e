package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"

	pkgcrypto "github.com/and161185/zerobase/internal/crypto"
	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/limiter"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/repository"
)

// AuthService defines tenant user authentication.
type AuthService interface {
	Signup(ctx context.Context, projectID, email, password, name string) (model.AuthResult, error)
	// Login applies rate limiting by (project, email, ip) and authenticates.
	Login(ctx context.Context, projectID, email, password, ip string) (model.AuthResult, error)
	// Google signs in with a Google ID token, linking or creating the user.
	Google(ctx context.Context, projectID, idToken string) (model.AuthResult, error)
	Users(ctx context.Context, projectID string) ([]model.Document, error)
	DeleteUser(ctx context.Context, projectID string, userID int64) error

	// Authenticate verifies a session token.
	Authenticate(token string) (pkgcrypto.SessionClaims, error)
	Me(ctx context.Context, projectID string, userID int64) (model.Document, error)
	SetupOTP(ctx context.Context, projectID string, userID int64) (OTPSetup, error)
	VerifyOTP(ctx context.Context, projectID string, userID int64, code string) (bool, error)
	SetExpiry(ctx context.Context, projectID string, userID int64, expiry string) error
}

// OTPSetup is returned once when a TOTP secret is generated.
type OTPSetup struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qrCodeUrl"`
}

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
}

// GoogleVerifier validates Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (GoogleIdentity, error)
}

// IDTokenVerifier validates tokens against Google's public keys for one client id.
type IDTokenVerifier struct{ ClientID string }

func (v IDTokenVerifier) Verify(ctx context.Context, token string) (GoogleIdentity, error) {
	if v.ClientID == "" {
		return GoogleIdentity{}, fmt.Errorf("%w: Google sign-in is not configured", errs.ErrValidation)
	}
	p, err := idtoken.Validate(ctx, token, v.ClientID)
	if err != nil {
		return GoogleIdentity{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	id := GoogleIdentity{Subject: p.Subject}
	id.Email, _ = p.Claims["email"].(string)
	id.Name, _ = p.Claims["name"].(string)
	return id, nil
}

type AuthServiceImpl struct {
	users         repository.UserRepository
	sessions      *pkgcrypto.Sessions
	defaultExpiry time.Duration
	lim           limiter.Limiter
	google        GoogleVerifier
	issuer        string
	log           *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, sessions *pkgcrypto.Sessions, defaultExpiry time.Duration,
	lim limiter.Limiter, google GoogleVerifier, log *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:         users,
		sessions:      sessions,
		defaultExpiry: defaultExpiry,
		lim:           lim,
		google:        google,
		issuer:        "zerobase",
		log:           log,
	}
}

func (s *AuthServiceImpl) Signup(ctx context.Context, projectID, email, password, name string) (model.AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.AuthResult{}, err
	}
	if password == "" {
		return model.AuthResult{}, fmt.Errorf("%w: password is required", errs.ErrValidation)
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return model.AuthResult{}, err
	}
	u, err := s.users.Create(ctx, projectID, email, strings.TrimSpace(name), hash)
	if err != nil {
		return model.AuthResult{}, err
	}
	return s.result(projectID, u, s.defaultExpiry)
}

func (s *AuthServiceImpl) Login(ctx context.Context, projectID, email, password, ip string) (model.AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.AuthResult{}, err
	}
	key := limiter.NewKey(projectID, email, ip)

	allowed, _, err := s.lim.Allow(ctx, key)
	if err != nil {
		return model.AuthResult{}, err
	}
	if !allowed {
		return model.AuthResult{}, errs.ErrRateLimited
	}

	c, err := s.users.Credentials(ctx, projectID, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.AuthResult{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword(password, c.PasswordHash) {
		if err == nil {
			if rerr := s.users.RecordFailure(ctx, projectID, c.UserID); rerr != nil {
				s.log.Warn("record failed login", zap.String("project_id", projectID), zap.Error(rerr))
			}
		}
		if blocked, _, ferr := s.lim.Failure(ctx, key); ferr == nil && blocked {
			return model.AuthResult{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.AuthResult{}, fmt.Errorf("%w: invalid email or password", errs.ErrUnauthorized)
	}
	if c.Status != "" && c.Status != "active" {
		return model.AuthResult{}, fmt.Errorf("%w: account is %s", errs.ErrForbidden, c.Status)
	}

	_ = s.lim.Success(ctx, key)

	u, err := s.users.RecordLogin(ctx, projectID, c.UserID, ip)
	if err != nil {
		return model.AuthResult{}, err
	}
	return s.result(projectID, u, s.expiryOf(c.Expiry))
}

func (s *AuthServiceImpl) Google(ctx context.Context, projectID, idToken string) (model.AuthResult, error) {
	if idToken == "" {
		return model.AuthResult{}, fmt.Errorf("%w: token is required", errs.ErrValidation)
	}
	if s.google == nil {
		return model.AuthResult{}, fmt.Errorf("%w: Google sign-in is not configured", errs.ErrValidation)
	}
	id, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return model.AuthResult{}, err
	}
	email, err := normalizeEmail(id.Email)
	if err != nil || id.Subject == "" {
		return model.AuthResult{}, fmt.Errorf("%w: Google token carries no verified email", errs.ErrUnauthorized)
	}
	u, err := s.users.UpsertGoogle(ctx, projectID, id.Subject, email, id.Name)
	if err != nil {
		return model.AuthResult{}, err
	}
	expiry, _ := u["jwt_expiry"].(string)
	return s.result(projectID, u, s.expiryOf(expiry))
}

func (s *AuthServiceImpl) Users(ctx context.Context, projectID string) ([]model.Document, error) {
	users, err := s.users.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		StripSecrets(u)
	}
	return users, nil
}

func (s *AuthServiceImpl) DeleteUser(ctx context.Context, projectID string, userID int64) error {
	err := s.users.Delete(ctx, projectID, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("%w: user not found", errs.ErrNotFound)
	}
	return err
}

func (s *AuthServiceImpl) Authenticate(token string) (pkgcrypto.SessionClaims, error) {
	return s.sessions.Verify(token)
}

func (s *AuthServiceImpl) Me(ctx context.Context, projectID string, userID int64) (model.Document, error) {
	u, err := s.users.Get(ctx, projectID, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("%w: user not found", errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	StripSecrets(u)
	return u, nil
}

func (s *AuthServiceImpl) SetupOTP(ctx context.Context, projectID string, userID int64) (OTPSetup, error) {
	u, err := s.Me(ctx, projectID, userID)
	if err != nil {
		return OTPSetup{}, err
	}
	account, _ := u["email"].(string)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.issuer, AccountName: account})
	if err != nil {
		return OTPSetup{}, err
	}
	if err := s.users.SetOTPSecret(ctx, projectID, userID, key.Secret()); err != nil {
		return OTPSetup{}, err
	}
	return OTPSetup{Secret: key.Secret(), QRCodeURL: key.URL()}, nil
}

func (s *AuthServiceImpl) VerifyOTP(ctx context.Context, projectID string, userID int64, code string) (bool, error) {
	u, err := s.users.Get(ctx, projectID, userID)
	if err != nil {
		return false, err
	}
	secret, _ := u["otp_secret"].(string)
	if secret == "" {
		return false, fmt.Errorf("%w: OTP is not set up for this user", errs.ErrValidation)
	}
	return totp.Validate(strings.TrimSpace(code), secret), nil
}

func (s *AuthServiceImpl) SetExpiry(ctx context.Context, projectID string, userID int64, expiry string) error {
	if _, err := pkgcrypto.ParseExpiry(expiry); err != nil {
		return err
	}
	return s.users.SetExpiry(ctx, projectID, userID, strings.TrimSpace(expiry))
}

func (s *AuthServiceImpl) result(projectID string, u model.Document, ttl time.Duration) (model.AuthResult, error) {
	id, ok := userID(u)
	if !ok {
		return model.AuthResult{}, errors.New("user row without id")
	}
	sess, err := s.sessions.Issue(projectID, id, ttl)
	if err != nil {
		return model.AuthResult{}, err
	}
	StripSecrets(u)
	return model.AuthResult{User: u, Token: sess.Token}, nil
}

// expiryOf falls back to the default lifetime for empty or unparsable values.
func (s *AuthServiceImpl) expiryOf(v string) time.Duration {
	if d, err := pkgcrypto.ParseExpiry(v); err == nil {
		return d
	}
	return s.defaultExpiry
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", fmt.Errorf("%w: email is required", errs.ErrValidation)
	}
	a, err := mail.ParseAddress(raw)
	if err != nil || a.Address != raw {
		return "", fmt.Errorf("%w: invalid email %q", errs.ErrValidation, raw)
	}
	return raw, nil
}

// userID reads the SERIAL id of a row returned by RETURNING *.
func userID(u model.Document) (int64, bool) {
	switch v := u["id"].(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
