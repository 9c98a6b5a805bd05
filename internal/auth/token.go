package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"checkout-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller of a request
type Identity struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the caller may use operator endpoints
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// Claims carried by a bearer token
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// CredentialStore reports when a user's credentials last changed
type CredentialStore interface {
	PasswordChangedAt(ctx context.Context, userID int64) (time.Time, error)
}

// Issuer signs HS256 bearer tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the given user
func (i *Issuer) Issue(userID int64, role string) (string, error) {
	now := i.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verifier checks bearer tokens and rejects any issued before the
// owner's last credential change
type Verifier struct {
	secret      []byte
	credentials CredentialStore
	skew        time.Duration
	now         func() time.Time
}

func NewVerifier(secret string, credentials CredentialStore, skew time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), credentials: credentials, skew: skew, now: time.Now}
}

// Verify parses token and returns the identity it carries
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("%w: bad subject", models.ErrUnauthorized)
	}
	if claims.IssuedAt == nil {
		return Identity{}, fmt.Errorf("%w: missing iat", models.ErrUnauthorized)
	}

	changedAt, err := v.credentials.PasswordChangedAt(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return Identity{}, fmt.Errorf("%w: unknown user", models.ErrUnauthorized)
	}
	if err != nil {
		return Identity{}, err
	}
	if claims.IssuedAt.Time.Before(changedAt.Add(-v.skew)) {
		return Identity{}, fmt.Errorf("%w: credentials changed after token was issued", models.ErrUnauthorized)
	}

	return Identity{UserID: userID, Role: claims.Role}, nil
}
