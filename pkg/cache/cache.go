// Package cache provides a Redis-backed cache for identity-provider records
// and session storage. The cache is a performance optimization: readers treat
// backend failures as misses and fall through to the origin.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hallwayhq/console/pkg/config"
	"github.com/hallwayhq/console/pkg/idp"
	"github.com/hallwayhq/console/pkg/observability"
)

// Logical key families, used as metric labels.
const (
	familyUser         = "user"
	familyMembership   = "membership"
	familyOrganization = "organization"
	familySession      = "session"
)

// Client handles caching operations
type Client struct {
	client  *redis.Client
	config  config.CacheConfig
	metrics *observability.Metrics
}

// NewClient creates a new Redis cache client
func NewClient(cfg config.CacheConfig, metrics *observability.Metrics) (*Client, error) {
	// Parse Redis URL or use default options
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	// Set connection timeouts
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{
		client:  client,
		config:  cfg,
		metrics: metrics,
	}, nil
}

func userKey(userID string) string        { return "user:" + userID }
func membershipKey(userID string) string  { return "user_orgs:" + userID }
func organizationKey(orgID string) string { return "org:" + orgID }
func sessionKey(sessionID string) string  { return "session:" + sessionID }

// GetUser retrieves a cached user profile. A miss returns (nil, nil).
func (c *Client) GetUser(ctx context.Context, userID string) (*idp.User, error) {
	var user idp.User
	found, err := c.get(ctx, familyUser, userKey(userID), &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// SetUser stores a user profile with the configured TTL
func (c *Client) SetUser(ctx context.Context, user *idp.User) error {
	return c.set(ctx, familyUser, userKey(user.ID), user, c.config.UserTTL)
}

// InvalidateUser removes a user profile from cache
func (c *Client) InvalidateUser(ctx context.Context, userID string) error {
	return c.delete(ctx, familyUser, userKey(userID))
}

// GetUserOrganizations retrieves a cached membership list. A miss returns
// (nil, nil); an empty membership list round-trips as an empty slice.
func (c *Client) GetUserOrganizations(ctx context.Context, userID string) ([]idp.UserOrganization, error) {
	memberships := []idp.UserOrganization{}
	found, err := c.get(ctx, familyMembership, membershipKey(userID), &memberships)
	if err != nil || !found {
		return nil, err
	}
	return memberships, nil
}

// SetUserOrganizations stores a user's full membership list. Memberships are
// rebuilt wholesale; there is no partial update.
func (c *Client) SetUserOrganizations(ctx context.Context, userID string, memberships []idp.UserOrganization) error {
	if memberships == nil {
		memberships = []idp.UserOrganization{}
	}
	return c.set(ctx, familyMembership, membershipKey(userID), memberships, c.config.MembershipTTL)
}

// InvalidateUserOrganizations removes a user's membership list from cache
func (c *Client) InvalidateUserOrganizations(ctx context.Context, userID string) error {
	return c.delete(ctx, familyMembership, membershipKey(userID))
}

// GetOrganization retrieves a cached organization. A miss returns (nil, nil).
func (c *Client) GetOrganization(ctx context.Context, orgID string) (*idp.Organization, error) {
	var org idp.Organization
	found, err := c.get(ctx, familyOrganization, organizationKey(orgID), &org)
	if err != nil || !found {
		return nil, err
	}
	return &org, nil
}

// SetOrganization stores an organization with the configured TTL. Organizations
// are keyed independently of memberships so many users share one entry.
func (c *Client) SetOrganization(ctx context.Context, org *idp.Organization) error {
	return c.set(ctx, familyOrganization, organizationKey(org.ID), org, c.config.OrganizationTTL)
}

// InvalidateOrganization removes an organization from cache
func (c *Client) InvalidateOrganization(ctx context.Context, orgID string) error {
	return c.delete(ctx, familyOrganization, organizationKey(orgID))
}

// GetSessionRecord retrieves a raw session payload. A miss returns (nil, nil).
func (c *Client) GetSessionRecord(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := c.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		c.countMiss(familySession)
		return nil, nil
	} else if err != nil {
		c.countError(familySession, "get")
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	c.countHit(familySession)
	return []byte(data), nil
}

// SetSessionRecord stores a raw session payload with the given TTL
func (c *Client) SetSessionRecord(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, sessionKey(sessionID), data, ttl).Err(); err != nil {
		c.countError(familySession, "set")
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// DeleteSessionRecord removes a session payload. Deleting an absent session
// is not an error.
func (c *Client) DeleteSessionRecord(ctx context.Context, sessionID string) error {
	return c.delete(ctx, familySession, sessionKey(sessionID))
}

// RefreshSessionExpiry resets a session's TTL, implementing sliding-window
// expiry. Returns false if the session no longer exists.
func (c *Client) RefreshSessionExpiry(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := c.client.Expire(ctx, sessionKey(sessionID), ttl).Result()
	if err != nil {
		c.countError(familySession, "expire")
		return false, fmt.Errorf("redis expire failed: %w", err)
	}
	return ok, nil
}

func (c *Client) get(ctx context.Context, family, key string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.countMiss(family)
		return false, nil // Cache miss
	} else if err != nil {
		c.countError(family, "get")
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal([]byte(data), out); err != nil {
		// Delete corrupt data and treat as a miss
		c.client.Del(ctx, key)
		c.countError(family, "unmarshal")
		return false, nil
	}

	c.countHit(family)
	return true, nil
}

func (c *Client) set(ctx context.Context, family, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", family, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.countError(family, "set")
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, family, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.countError(family, "delete")
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *Client) countHit(family string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(family).Inc()
	}
}

func (c *Client) countMiss(family string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(family).Inc()
	}
}

func (c *Client) countError(family, operation string) {
	if c.metrics != nil {
		c.metrics.CacheErrorsTotal.WithLabelValues(family, operation).Inc()
	}
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for health checks
func (c *Client) GetClient() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
