package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/falcata-iot/edge/apperr"
	"github.com/falcata-iot/edge/domain"
)

// claims is the JWT payload shape, matching spec.md §3's claim set plus
// the standard registered claims golang-jwt/jwt/v5 manages for us (iat,
// nbf, exp, iss, aud).
type claims struct {
	Sub        string   `json:"sub"`
	Role       string   `json:"role"`
	TenantSlug string   `json:"tenant_slug"`
	TenantID   string   `json:"tenant_id"`
	SiteIDs    []string `json:"site_ids,omitempty"`
	jwt.RegisteredClaims
}

// Issuer issues and verifies HS256 JWTs against a single shared secret.
// Grounded on original_source/Auth/src/Jwt.cpp's MakeHs256/VerifyHs256,
// implemented via golang-jwt/jwt/v5 rather than hand-rolled base64url
// splitting, per the Open Question decision recorded in SPEC_FULL.md.
type Issuer struct {
	secret []byte
	iss    string
	aud    string
}

// NewIssuer creates an Issuer. iss and aud are optional; when non-empty
// they are stamped on issued tokens and enforced on verification.
func NewIssuer(secret, iss, aud string) *Issuer {
	return &Issuer{secret: []byte(secret), iss: iss, aud: aud}
}

// IssueToken issues an HS256 JWT for identity, valid for ttlSeconds from
// now. iat = nbf = now, exp = now + ttl, per spec.md §4.A.
func (i *Issuer) IssueToken(identity Identity, ttlSeconds int) (string, error) {
	now := time.Now().UTC()
	c := claims{
		Sub:        identity.Sub,
		Role:       identity.Role.String(),
		TenantSlug: identity.TenantSlug,
		TenantID:   identity.TenantID,
		SiteIDs:    identity.SiteIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
		},
	}
	if i.iss != "" {
		c.RegisteredClaims.Issuer = i.iss
	}
	if i.aud != "" {
		c.RegisteredClaims.Audience = jwt.ClaimStrings{i.aud}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(i.secret)
}

// VerifyToken verifies tokenString's signature and standard claims
// (exp > now, nbf <= now, and iss/aud when configured), returning the
// recovered Identity. Any deviation fails with a distinct apperr.Kind,
// per spec.md §4.A.
func (i *Issuer) VerifyToken(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{}
	if i.iss != "" {
		opts = append(opts, jwt.WithIssuer(i.iss))
	}
	if i.aud != "" {
		opts = append(opts, jwt.WithAudience(i.aud))
	}

	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, classifyJWTError(err)
	}
	if !token.Valid {
		return Identity{}, apperr.New(apperr.TokenBadClaims, "invalid token")
	}

	return Identity{
		Sub:        c.Sub,
		Role:       domain.ParseRole(c.Role),
		TenantID:   c.TenantID,
		TenantSlug: c.TenantSlug,
		SiteIDs:    c.SiteIDs,
	}, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Wrap(apperr.TokenExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return apperr.Wrap(apperr.TokenBadClaims, "token not yet valid", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperr.Wrap(apperr.TokenInvalidSignature, "invalid token signature", err)
	default:
		return apperr.Wrap(apperr.TokenBadClaims, "invalid token", err)
	}
}
