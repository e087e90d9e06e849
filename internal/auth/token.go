package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingRole  = errors.New("token carries no role")
)

// Claims is the payload of a caller token.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	PartyKind string `json:"party_kind,omitempty"`
	PartyID   int64  `json:"party_id,omitempty"`
}

// Tokens signs and verifies HS256 caller tokens.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens builds a Tokens for secret. issuer is checked when non-empty.
func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for c valid for ttl.
func (t *Tokens) Issue(c Caller, ttl time.Duration) (string, error) {
	if c.Role == "" {
		return "", ErrMissingRole
	}
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: c.Role,
	}
	if c.Party != nil {
		claims.PartyKind = string(c.Party.Kind)
		claims.PartyID = c.Party.ID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies raw and returns the caller it names.
func (t *Tokens) Parse(raw string) (Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Caller{}, ErrExpiredToken
		}
		return Caller{}, ErrInvalidToken
	}
	if claims.Role == "" {
		return Caller{}, ErrMissingRole
	}
	c := Caller{Subject: claims.Subject, Role: claims.Role}
	if claims.PartyKind != "" {
		party, err := shared.NewParty(claims.PartyKind, claims.PartyID)
		if err != nil {
			return Caller{}, ErrInvalidToken
		}
		c.Party = &party
	}
	if c.Subject == "" {
		c.Subject = c.Role
		if c.Party != nil {
			c.Subject = c.Party.String()
		}
	}
	return c, nil
}
