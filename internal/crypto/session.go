package crypto

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/model"
)

// SessionClaims binds a token to one user inside one tenant database.
type SessionClaims struct {
	ProjectID string `json:"pid"`
	UserID    int64  `json:"uid"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 tenant session tokens.
type Sessions struct {
	key    []byte
	leeway time.Duration
	now    func() time.Time
}

// NewSessions constructs a token issuer with a 30s clock-skew leeway.
func NewSessions(key []byte) *Sessions {
	return &Sessions{key: key, leeway: 30 * time.Second, now: time.Now}
}

// Issue signs a token for (projectID, userID) valid for ttl.
func (s *Sessions) Issue(projectID string, userID int64, ttl time.Duration) (model.Session, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := SessionClaims{
		ProjectID: projectID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{Token: signed, ExpiresAt: exp}, nil
}

// Verify checks signature and expiry. It returns errs.ErrTokenExpired for a
// well-signed token past its expiry and errs.ErrTokenInvalid otherwise.
func (s *Sessions) Verify(token string) (SessionClaims, error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return SessionClaims{}, errs.ErrTokenInvalid
	}

	v := jwt.NewValidator(jwt.WithLeeway(s.leeway), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err := v.Validate(&claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, errs.ErrTokenExpired
		}
		return SessionClaims{}, errs.ErrTokenInvalid
	}
	if claims.UserID <= 0 || claims.ProjectID == "" {
		return SessionClaims{}, errs.ErrTokenInvalid
	}
	return claims, nil
}

var expiryUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
	'y': 365 * 24 * time.Hour,
}

// ParseExpiry parses a per-user token lifetime such as "365d", "12h" or "30m".
// A bare number is seconds; Go duration strings ("1h30m") are accepted too.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty expiry", errs.ErrValidation)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return scaleExpiry(s, n, time.Second)
	}
	if unit, ok := expiryUnits[s[len(s)-1]]; ok {
		if n, err := strconv.ParseInt(s[:len(s)-1], 10, 64); err == nil {
			return scaleExpiry(s, n, unit)
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, nil
	}
	return 0, fmt.Errorf("%w: invalid expiry %q: use values like 30d, 12h or 45m", errs.ErrValidation, s)
}

func scaleExpiry(s string, n int64, unit time.Duration) (time.Duration, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: invalid expiry %q: must be positive", errs.ErrValidation, s)
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: invalid expiry %q: too long", errs.ErrValidation, s)
	}
	return time.Duration(n) * unit, nil
}
