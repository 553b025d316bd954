package apikeys

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/observability"
)

const (
	validatorCacheSize = 1024
	validatorCacheTTL  = 30 * time.Second
	lastUsedTimeout    = 5 * time.Second
)

// Validator authenticates bearer credentials against stored key records. A
// short-TTL in-process cache keeps hot keys off the database; the TTL bounds
// how long a deleted key keeps authenticating.
type Validator struct {
	store   *Store
	cache   *lru.LRU[string, *Key]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewValidator creates an API key validator
func NewValidator(store *Store, logger *observability.Logger, metrics *observability.Metrics) *Validator {
	return &Validator{
		store:   store,
		cache:   lru.NewLRU[string, *Key](validatorCacheSize, nil, validatorCacheTTL),
		logger:  logger,
		metrics: metrics,
	}
}

// Authenticate validates a presented plaintext key and returns its record.
// On success the key's last-used timestamp is updated asynchronously; that
// update's failure is logged and never surfaces to the caller.
func (v *Validator) Authenticate(ctx context.Context, plaintext string) (*Key, error) {
	if err := ValidateKeyFormat(plaintext); err != nil {
		v.count("malformed")
		return nil, apperr.Unauthorized("invalid API key")
	}

	keyHash := HashKey(plaintext)

	key, ok := v.cache.Get(keyHash)
	if !ok {
		var err error
		key, err = v.store.GetByHash(ctx, keyHash)
		if err != nil {
			v.count("error")
			return nil, apperr.Wrap(apperr.KindInternal, "api key lookup failed", err)
		}
		if key == nil {
			v.count("unknown")
			return nil, apperr.Unauthorized("invalid API key")
		}
		v.cache.Add(keyHash, key)
	}

	if key.Expired(time.Now()) {
		v.cache.Remove(keyHash)
		v.count("expired")
		return nil, apperr.Unauthorized("API key expired")
	}

	v.count("success")
	v.touchLastUsed(key.ID)
	return key, nil
}

// Invalidate drops a key from the validator cache, called after deletion so
// revocation takes effect immediately in this process.
func (v *Validator) Invalidate(keyHash string) {
	v.cache.Remove(keyHash)
}

// RequireScopes checks that the key grants every required scope. The error
// names all missing scopes, not just the first.
func RequireScopes(key *Key, required ...Scope) error {
	missing := key.MissingScopes(required)
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, len(missing))
	for i, scope := range missing {
		names[i] = string(scope)
	}
	return apperr.Newf(apperr.KindForbidden, "missing required scopes: %s", joinScopes(names))
}

func joinScopes(names []string) string {
	out := names[0]
	for _, name := range names[1:] {
		out += ", " + name
	}
	return out
}

// touchLastUsed is fire-and-forget: the request does not wait on it and its
// failure only increments a counter and logs.
func (v *Validator) touchLastUsed(keyID string) {
	go func() {
		defer observability.RecoverPanic(v.logger, "api key last-used update")

		ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
		defer cancel()

		if err := v.store.TouchLastUsed(ctx, keyID, time.Now().UTC()); err != nil {
			if v.metrics != nil {
				v.metrics.APIKeyLastUsedDrops.Inc()
			}
			v.logger.WithError(err).WithField("key_id", keyID).Warn("failed to record api key usage")
		}
	}()
}

func (v *Validator) count(outcome string) {
	if v.metrics != nil {
		v.metrics.APIKeyAuthTotal.WithLabelValues(outcome).Inc()
	}
}
