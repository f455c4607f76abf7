package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"trustgate.io/internal/ids"
	"trustgate.io/internal/trust"
)

const (
	defaultIssuer   = "trustgate"
	defaultTokenTTL = time.Hour
)

// Client is a registered machine client for the client-credentials grant.
type Client struct {
	ID         string
	OrgID      string
	SecretHash string
	Scopes     []string
	Tier       trust.Tier
	Active     bool
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Token is the persisted record of an issued access token, looked up by
// jti for revocation checks.
type Token struct {
	JTI       string
	ClientID  string
	OrgID     string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Store describes persistence required by the OAuth service.
type Store interface {
	CreateClient(ctx context.Context, c *Client) error
	FindClient(ctx context.Context, id string) (*Client, error)
	ListClientsByOrg(ctx context.Context, orgID string) ([]*Client, error)
	MarkClientRevoked(ctx context.Context, id string, at time.Time) error

	CreateToken(ctx context.Context, t *Token) error
	FindToken(ctx context.Context, jti string) (*Token, error)
	MarkTokenRevoked(ctx context.Context, jti string) error
	MarkTokensRevokedByClient(ctx context.Context, clientID string) error
}

// Claims is the JWT payload embedded in issued access tokens.
type Claims struct {
	OrgID  string   `json:"org"`
	Scopes []string `json:"scopes"`
	Tier   string   `json:"tier"`
	jwt.RegisteredClaims
}

// Service issues and verifies client-credentials access tokens.
type Service struct {
	store  Store
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) error {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithTokenTTL configures access token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.ttl = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the OAuth service. The signing secret is required.
func NewService(store Store, signingSecret string, opts ...Option) (*Service, error) {
	if strings.TrimSpace(signingSecret) == "" {
		return nil, errors.New("oauth: signing secret is required")
	}
	s := &Service{
		store:  store,
		secret: []byte(signingSecret),
		issuer: defaultIssuer,
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RegisterClient creates a client and returns it with the raw secret,
// which is shown exactly once.
func (s *Service) RegisterClient(ctx context.Context, orgID string, scopes []string, tier trust.Tier) (*Client, string, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, "", fmt.Errorf("%w: organization id is required", trust.ErrInvalidInput)
	}
	scopes = trust.NormalizeScopes(scopes)
	if len(scopes) == 0 {
		return nil, "", fmt.Errorf("%w: at least one scope is required", trust.ErrInvalidInput)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", err
	}
	rawSecret := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(rawSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	client := &Client{
		ID:         ids.New(),
		OrgID:      orgID,
		SecretHash: string(hash),
		Scopes:     scopes,
		Tier:       tier,
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, "", err
	}
	return client, rawSecret, nil
}

// IssueToken authenticates the client and signs an access token whose
// scopes are a subset of the client's allowed scopes. An empty request
// grants the full allowed set.
func (s *Service) IssueToken(ctx context.Context, clientID, clientSecret string, requestedScopes []string) (string, *Token, error) {
	client, err := s.store.FindClient(ctx, strings.TrimSpace(clientID))
	if err != nil {
		if errors.Is(err, trust.ErrNotFound) {
			return "", nil, trust.ErrInvalidCredential
		}
		return "", nil, fmt.Errorf("%w: %v", trust.ErrStoreUnavailable, err)
	}
	if !client.Active {
		return "", nil, trust.ErrRevokedCredential
	}
	if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)) != nil {
		return "", nil, trust.ErrInvalidCredential
	}

	granted := trust.NormalizeScopes(requestedScopes)
	if len(granted) == 0 {
		granted = client.Scopes
	} else if !trust.ScopeSubset(granted, client.Scopes) {
		return "", nil, trust.ErrScopeNotGranted
	}

	now := s.now().UTC()
	token := &Token{
		JTI:       uuid.NewString(),
		ClientID:  client.ID,
		OrgID:     client.OrgID,
		Scopes:    granted,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	claims := Claims{
		OrgID:  client.OrgID,
		Scopes: granted,
		Tier:   string(client.Tier),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   client.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(token.ExpiresAt),
			ID:        token.JTI,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return "", nil, fmt.Errorf("%w: %v", trust.ErrStoreUnavailable, err)
	}
	return signed, token, nil
}

// VerifyToken checks signature, expiry and the revocation list, in that
// order, with distinct failures for each step.
func (s *Service) VerifyToken(ctx context.Context, raw string) (trust.ActorContext, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return trust.ActorContext{}, trust.ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, trust.ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return trust.ActorContext{}, trust.ErrTokenExpired
		}
		return trust.ActorContext{}, trust.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return trust.ActorContext{}, trust.ErrInvalidToken
	}

	// Revocation is an id lookup, never a re-check of signature validity.
	record, err := s.store.FindToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, trust.ErrNotFound) {
			return trust.ActorContext{}, trust.ErrInvalidToken
		}
		return trust.ActorContext{}, fmt.Errorf("%w: %v", trust.ErrStoreUnavailable, err)
	}
	if record.Revoked {
		return trust.ActorContext{}, trust.ErrTokenRevoked
	}

	return trust.ActorContext{
		OrgID:   claims.OrgID,
		ActorID: claims.Subject,
		Method:  trust.MethodOAuth,
		Scopes:  trust.NormalizeScopes(claims.Scopes),
		Tier:    trust.ParseTier(claims.Tier),
	}, nil
}

// RevokeToken marks one token unusable regardless of its remaining
// signature validity window.
func (s *Service) RevokeToken(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return fmt.Errorf("%w: jti is required", trust.ErrInvalidInput)
	}
	return s.store.MarkTokenRevoked(ctx, jti)
}

// RevokeClient deactivates a client and cascades to its issued tokens.
func (s *Service) RevokeClient(ctx context.Context, clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", trust.ErrInvalidInput)
	}
	if err := s.store.MarkClientRevoked(ctx, clientID, s.now().UTC()); err != nil {
		return err
	}
	return s.store.MarkTokensRevokedByClient(ctx, clientID)
}

// GetClient looks up a client by id.
func (s *Service) GetClient(ctx context.Context, clientID string) (*Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", trust.ErrInvalidInput)
	}
	return s.store.FindClient(ctx, clientID)
}

// GetToken looks up an issued token by its jti.
func (s *Service) GetToken(ctx context.Context, jti string) (*Token, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil, fmt.Errorf("%w: jti is required", trust.ErrInvalidInput)
	}
	return s.store.FindToken(ctx, jti)
}

// ListClients returns the organization's clients, revoked ones included.
func (s *Service) ListClients(ctx context.Context, orgID string) ([]*Client, error) {
	return s.store.ListClientsByOrg(ctx, strings.TrimSpace(orgID))
}

// TTL reports the configured access token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
