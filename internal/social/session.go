package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/exactauth/internal/audit"
	"github.com/dropDatabas3/exactauth/internal/cache"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/providers"
	"github.com/dropDatabas3/exactauth/internal/security/secretbox"
)

// Session is the server side record behind the session cookie. Provider
// tokens are sealed with secretbox when a Box is configured.
type Session struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	Provider       string                 `json:"provider"`
	ProviderUserID string                 `json:"provider_user_id"`
	Profile        *providers.UserProfile `json:"profile"`
	CSRFToken      string                 `json:"csrf"`

	AccessToken  string    `json:"at,omitempty"`
	RefreshToken string    `json:"rt,omitempty"`
	TokenExpiry  time.Time `json:"tok_exp,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionService stores sessions in the cache.
type SessionService interface {
	Create(ctx context.Context, s *Session, tok *providers.TokenSet) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// Refresh rotates the provider tokens of a session.
	Refresh(ctx context.Context, id string) (*Session, error)
}

var (
	ErrSessionNotFound      = errors.New("session not found or expired")
	ErrSessionNoRefresh     = errors.New("session has no refresh token")
	ErrSessionRefreshFailed = errors.New("provider token refresh failed")
)

const sessionKeyPrefix = "session:"

type SessionDeps struct {
	Cache     cache.Client
	Providers *providers.Registry
	Box       *secretbox.Box
	TTL       time.Duration
}

type sessionService struct {
	cache     cache.Client
	providers *providers.Registry
	box       *secretbox.Box
	ttl       time.Duration
	now       func() time.Time
}

func NewSessionService(d SessionDeps) SessionService {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &sessionService{cache: d.Cache, providers: d.Providers, box: d.Box, ttl: ttl, now: time.Now}
}

func (s *sessionService) Create(ctx context.Context, sess *Session, tok *providers.TokenSet) (*Session, error) {
	now := s.now().UTC()
	sess.ID = uuid.NewString()
	sess.CSRFToken = uuid.NewString()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	if err := s.setTokens(sess, tok); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *sessionService) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := s.cache.Get(ctx, sessionKeyPrefix+id)
	if cache.IsNotFound(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	if !sess.ExpiresAt.IsZero() && s.now().After(sess.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *sessionService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.cache.Delete(ctx, sessionKeyPrefix+id); err != nil {
		return err
	}
	audit.Log(ctx, audit.SessionLogout, logger.SessionID(id))
	return nil
}

func (s *sessionService) Refresh(ctx context.Context, id string) (*Session, error) {
	log := logger.From(ctx).With(logger.Component("social.session"), logger.SessionID(id))

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.RefreshToken == "" {
		return nil, ErrSessionNoRefresh
	}
	rt, err := secretbox.Resolve(s.box, sess.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("session open refresh token: %w", err)
	}

	p, err := s.providers.Get(ctx, sess.Provider)
	if err != nil {
		return nil, err
	}
	tok, err := p.Refresh(ctx, rt)
	if err != nil {
		log.Warn("provider refresh failed", logger.Provider(sess.Provider), logger.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrSessionRefreshFailed, err)
	}
	if err := s.setTokens(sess, tok); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	log.Debug("provider tokens refreshed", logger.Provider(sess.Provider))
	audit.Log(ctx, audit.SessionRefresh, logger.SessionID(id), logger.UserID(sess.UserID))
	return sess, nil
}

func (s *sessionService) setTokens(sess *Session, tok *providers.TokenSet) error {
	if tok == nil {
		return nil
	}
	at, err := s.seal(tok.AccessToken)
	if err != nil {
		return err
	}
	rt := sess.RefreshToken
	if tok.RefreshToken != "" {
		if rt, err = s.seal(tok.RefreshToken); err != nil {
			return err
		}
	}
	sess.AccessToken, sess.RefreshToken, sess.TokenExpiry = at, rt, tok.Expiry
	return nil
}

func (s *sessionService) seal(v string) (string, error) {
	if v == "" || s.box == nil {
		return v, nil
	}
	ct, err := s.box.Seal(v)
	if err != nil {
		return "", fmt.Errorf("session seal token: %w", err)
	}
	return secretbox.SealedPrefix + ct, nil
}

func (s *sessionService) save(ctx context.Context, sess *Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionNotFound
	}
	if err := s.cache.Set(ctx, sessionKeyPrefix+sess.ID, string(b), ttl); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}
