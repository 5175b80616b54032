package social

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateAudience is the audience of every state token.
const StateAudience = "social-state"

// StateClaims travel through the provider inside the OAuth state parameter.
type StateClaims struct {
	Provider    string `json:"provider"`
	RedirectURI string `json:"redir,omitempty"`
	Nonce       string `json:"nonce"`
	jwt.RegisteredClaims
}

// StateSigner signs and verifies state tokens.
type StateSigner interface {
	SignState(claims StateClaims) (string, error)
	ParseState(token string) (*StateClaims, error)
}

var (
	ErrStateInvalid  = errors.New("invalid state token")
	ErrStateExpired  = errors.New("state token expired")
	ErrStateIssuer   = errors.New("state issuer mismatch")
	ErrStateAudience = errors.New("state audience mismatch")
)

// HMACSigner signs state tokens with HS256.
type HMACSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewHMACSigner requires a secret of at least 32 bytes. ttl defaults to 10m.
func NewHMACSigner(secret []byte, issuer string, ttl time.Duration) (*HMACSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("state secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &HMACSigner{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// TTL is how long a signed state stays valid.
func (s *HMACSigner) TTL() time.Duration { return s.ttl }

// SignState fills the registered claims and a nonce when missing.
func (s *HMACSigner) SignState(c StateClaims) (string, error) {
	now := s.now().UTC()
	if c.Nonce == "" {
		c.Nonce = uuid.NewString()
	}
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{StateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// ParseState verifies signature, issuer, audience and expiry (30s leeway).
func (s *HMACSigner) ParseState(token string) (*StateClaims, error) {
	claims := &StateClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(StateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrStateExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return nil, ErrStateIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return nil, ErrStateAudience
	default:
		return nil, ErrStateInvalid
	}
}
