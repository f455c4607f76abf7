package oauth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"trustgate.io/internal/obs"
)

// cacheTTL bounds how long a revocation can remain invisible. Kept short
// so revoked tokens die within seconds, not the token lifetime.
const cacheTTL = 30 * time.Second

const cacheOpTimeout = 2 * time.Second

// CachedStore front-loads token lookups with a short-TTL Redis cache.
// Only live, unrevoked tokens are cached; every revocation path evicts
// the entry immediately so local lookups converge fast and remote ones
// within the TTL. Cache failures fall through to the backing store.
type CachedStore struct {
	Store
	client *redis.Client
}

// NewCachedStore wraps a store with the Redis lookup cache. A nil client
// disables caching.
func NewCachedStore(store Store, client *redis.Client) *CachedStore {
	return &CachedStore{Store: store, client: client}
}

type cachedToken struct {
	JTI       string    `json:"jti"`
	ClientID  string    `json:"client_id"`
	OrgID     string    `json:"org_id"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

func cacheKey(jti string) string { return "tokcache:" + jti }

func (c *CachedStore) FindToken(ctx context.Context, jti string) (*Token, error) {
	if c.client != nil {
		opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
		raw, err := c.client.Get(opCtx, cacheKey(jti)).Bytes()
		cancel()
		if err == nil {
			var ct cachedToken
			if jsonErr := json.Unmarshal(raw, &ct); jsonErr == nil {
				return &Token{
					JTI:       ct.JTI,
					ClientID:  ct.ClientID,
					OrgID:     ct.OrgID,
					Scopes:    ct.Scopes,
					IssuedAt:  ct.IssuedAt,
					ExpiresAt: ct.ExpiresAt,
				}, nil
			}
		} else if err != redis.Nil {
			obs.LogDegradation("oauth_cache", err.Error())
		}
	}

	tok, err := c.Store.FindToken(ctx, jti)
	if err != nil {
		return nil, err
	}
	if c.client != nil && !tok.Revoked {
		c.put(ctx, tok)
	}
	return tok, nil
}

func (c *CachedStore) put(ctx context.Context, tok *Token) {
	raw, err := json.Marshal(cachedToken{
		JTI:       tok.JTI,
		ClientID:  tok.ClientID,
		OrgID:     tok.OrgID,
		Scopes:    tok.Scopes,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.client.SetEx(opCtx, cacheKey(tok.JTI), raw, cacheTTL).Err(); err != nil {
		obs.LogDegradation("oauth_cache", err.Error())
	}
}

func (c *CachedStore) evict(ctx context.Context, keys ...string) {
	if c.client == nil || len(keys) == 0 {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.client.Del(opCtx, keys...).Err(); err != nil {
		obs.LogDegradation("oauth_cache", err.Error())
	}
}

func (c *CachedStore) MarkTokenRevoked(ctx context.Context, jti string) error {
	if err := c.Store.MarkTokenRevoked(ctx, jti); err != nil {
		return err
	}
	c.evict(ctx, cacheKey(jti))
	return nil
}

// MarkTokensRevokedByClient cannot enumerate the client's cached jtis
// cheaply, so revoked tokens may be served for up to cacheTTL. That
// window is the documented staleness bound of the cache.
func (c *CachedStore) MarkTokensRevokedByClient(ctx context.Context, clientID string) error {
	return c.Store.MarkTokensRevokedByClient(ctx, clientID)
}
