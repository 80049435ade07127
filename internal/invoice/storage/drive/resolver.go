package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// FolderCache remembers folder ids by parent and name.
type FolderCache interface {
	Get(ctx context.Context, parentID, name string) (string, bool, error)
	Set(ctx context.Context, parentID, name, id string) error
}

// FolderResolver walks a folder path below a root, reusing folders that
// already exist and creating the missing ones. Lookup and creation are not
// atomic: two concurrent resolutions of a new path may both create a folder.
type FolderResolver struct {
	client   Client
	rootID   string
	cache    FolderCache
	logger   *slog.Logger
	attempts int
	initial  time.Duration
}

type ResolverOption func(*FolderResolver)

// WithRetry repeats a failed folder step, lookup included, so a create that
// committed before its response was lost is found rather than duplicated.
func WithRetry(attempts int, initial time.Duration) ResolverOption {
	return func(r *FolderResolver) {
		if attempts > 0 {
			r.attempts = attempts
		}
		r.initial = initial
	}
}

func NewFolderResolver(client Client, rootID string, cache FolderCache, logger *slog.Logger, opts ...ResolverOption) *FolderResolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &FolderResolver{client: client, rootID: rootID, cache: cache, logger: logger, attempts: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the id of the innermost folder of segments.
func (r *FolderResolver) Resolve(ctx context.Context, segments []string) (string, error) {
	parent := r.rootID
	for _, name := range segments {
		id, err := retryWith(newPolicy(ctx, r.attempts, r.initial), classify, func() (string, error) {
			return r.resolveOne(ctx, parent, name)
		})
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}

func (r *FolderResolver) resolveOne(ctx context.Context, parentID, name string) (string, error) {
	if r.cache != nil {
		id, ok, err := r.cache.Get(ctx, parentID, name)
		if err != nil {
			r.logger.WarnContext(ctx, "folder cache read failed", "folder", name, "error", err)
		} else if ok {
			return id, nil
		}
	}

	id, found, err := r.client.FindFolder(ctx, parentID, name)
	if err != nil {
		return "", err
	}
	if !found {
		id, err = r.client.CreateFolder(ctx, parentID, name)
		if err != nil {
			return "", err
		}
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, parentID, name, id); err != nil {
			r.logger.WarnContext(ctx, "folder cache write failed", "folder", name, "error", err)
		}
	}
	return id, nil
}

// RedisFolderCache stores folder ids in Redis with a TTL so folders deleted by
// hand are eventually rediscovered.
type RedisFolderCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFolderCache(client *redis.Client, ttl time.Duration) *RedisFolderCache {
	return &RedisFolderCache{client: client, ttl: ttl}
}

func folderKey(parentID, name string) string {
	return fmt.Sprintf("invoicevault:folder:%s:%s", parentID, name)
}

func (c *RedisFolderCache) Get(ctx context.Context, parentID, name string) (string, bool, error) {
	id, err := c.client.Get(ctx, folderKey(parentID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *RedisFolderCache) Set(ctx context.Context, parentID, name, id string) error {
	return c.client.Set(ctx, folderKey(parentID, name), id, c.ttl).Err()
}
