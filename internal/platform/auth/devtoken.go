package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DevTokenVerifier accepts HS256 tokens signed with a shared secret. It stands in for
// Firebase in local runs and integration environments.
type DevTokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ TokenVerifier = (*DevTokenVerifier)(nil)

// NewDevTokenVerifier constructs a verifier for tokens issued by issuer.
func NewDevTokenVerifier(secret, issuer string) (*DevTokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("dev token secret is required")
	}
	return &DevTokenVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}, nil
}

// Verify validates signature, expiry and issuer.
func (v *DevTokenVerifier) Verify(_ context.Context, raw string) (VerifiedToken, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifiedToken{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return VerifiedToken{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return VerifiedToken{}, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return VerifiedToken{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return VerifiedToken{Subject: subject, Claims: claims}, nil
}

// Issue signs a token for subject carrying roles, valid for ttl.
func (v *DevTokenVerifier) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.MapClaims{
		"sub":            subject,
		"iat":            now.Unix(),
		"exp":            now.Add(ttl).Unix(),
		defaultRoleClaim: roles,
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
