package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"trustgate.io/internal/ids"
	"trustgate.io/internal/trust"
)

const (
	keyNamespace = "tg"
	// 32 random bytes gives 256 bits of entropy in the suffix.
	secretBytes  = 32
	prefixLength = 12
)

// Key is a persisted scoped API key. The raw key material is never stored;
// only its SHA-256 hash and a short display prefix survive creation.
type Key struct {
	ID        string
	OrgID     string
	Prefix    string
	Hash      string
	Scopes    []string
	Tier      trust.Tier
	Active    bool
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Store describes persistence operations required by the key service.
type Store interface {
	Create(ctx context.Context, key *Key) error
	Find(ctx context.Context, id string) (*Key, error)
	FindByHash(ctx context.Context, hash string) (*Key, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Key, error)
	MarkRevoked(ctx context.Context, id string, at time.Time) error
}

// Service generates, verifies and revokes scoped API keys.
type Service struct {
	store Store
	env   string
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithEnvironment sets the environment segment embedded in generated keys.
func WithEnvironment(env string) Option {
	return func(s *Service) {
		env = strings.TrimSpace(strings.ToLower(env))
		if env != "" {
			s.env = env
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the key service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		env:   "live",
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create mints a new key for the organization and returns the record
// together with the raw key. The raw key is shown exactly once.
func (s *Service) Create(ctx context.Context, orgID string, scopes []string, tier trust.Tier) (*Key, string, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, "", fmt.Errorf("%w: organization id is required", trust.ErrInvalidInput)
	}
	scopes = trust.NormalizeScopes(scopes)
	if len(scopes) == 0 {
		return nil, "", fmt.Errorf("%w: at least one scope is required", trust.ErrInvalidInput)
	}

	raw, err := s.generateRaw()
	if err != nil {
		return nil, "", err
	}
	key := &Key{
		ID:        ids.New(),
		OrgID:     orgID,
		Prefix:    raw[:prefixLength],
		Hash:      hashKey(raw),
		Scopes:    scopes,
		Tier:      tier,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, key); err != nil {
		return nil, "", err
	}
	return key, raw, nil
}

// Verify hashes the presented key, looks the hash up and compares in
// constant time. Revoked keys fail even when the hash matches.
func (s *Service) Verify(ctx context.Context, rawKey string) (trust.ActorContext, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" || !strings.HasPrefix(rawKey, keyNamespace+"_") {
		return trust.ActorContext{}, trust.ErrInvalidCredential
	}
	sum := hashKey(rawKey)
	key, err := s.store.FindByHash(ctx, sum)
	if err != nil {
		if errors.Is(err, trust.ErrNotFound) {
			return trust.ActorContext{}, trust.ErrInvalidCredential
		}
		return trust.ActorContext{}, fmt.Errorf("%w: %v", trust.ErrStoreUnavailable, err)
	}
	if subtle.ConstantTimeCompare([]byte(key.Hash), []byte(sum)) != 1 {
		return trust.ActorContext{}, trust.ErrInvalidCredential
	}
	if !key.Active {
		return trust.ActorContext{}, trust.ErrRevokedCredential
	}
	return trust.ActorContext{
		OrgID:   key.OrgID,
		ActorID: key.ID,
		Method:  trust.MethodAPIKey,
		Scopes:  key.Scopes,
		Tier:    key.Tier,
	}, nil
}

// Get looks up a key by id.
func (s *Service) Get(ctx context.Context, keyID string) (*Key, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return nil, fmt.Errorf("%w: key id is required", trust.ErrInvalidInput)
	}
	return s.store.Find(ctx, keyID)
}

// Revoke flips the active flag. The row is kept for the audit trail.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return fmt.Errorf("%w: key id is required", trust.ErrInvalidInput)
	}
	return s.store.MarkRevoked(ctx, keyID, s.now().UTC())
}

// List returns all keys owned by the organization, revoked ones included.
func (s *Service) List(ctx context.Context, orgID string) ([]*Key, error) {
	return s.store.ListByOrg(ctx, strings.TrimSpace(orgID))
}

func (s *Service) generateRaw() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := base64.RawURLEncoding.EncodeToString(buf)
	return keyNamespace + "_" + s.env + "_" + suffix, nil
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
