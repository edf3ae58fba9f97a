package main

import (
	"context"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// RedisClient abstracts the Redis operations used by auth, rate limiting
// and task state tracking.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Close() error
}

// AsynqClient abstracts task enqueue operations.
type AsynqClient interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// QueueInspector abstracts queue info inspection.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// MediaLibrary abstracts the hosted media catalog. Searches are sorted and
// cursor-paginated; listings are bounded snapshots used for the random
// candidate pool and tag enumeration.
type MediaLibrary interface {
	SearchSorted(ctx context.Context, expression, direction string, max int, cursor string) (searchPage, error)
	ListByPrefix(ctx context.Context, max int) ([]imageRecord, error)
	Resource(ctx context.Context, id string) (imageRecord, error)
	FetchPreview(ctx context.Context, id, format string) ([]byte, error)
	Upload(ctx context.Context, file io.Reader, filename string, tags []string) (imageRecord, error)
	Destroy(ctx context.Context, id string) error
	AddTag(ctx context.Context, id, tag string) ([]string, error)
	RemoveTag(ctx context.Context, id, tag string) ([]string, error)
}

// PlaceholderCache abstracts persistent storage of derived blur previews.
type PlaceholderCache interface {
	Close() error
	GetPlaceholder(id string) (string, bool, error)
	GetPlaceholders(ids []string) (map[string]string, error)
	SetPlaceholder(id, dataURL string) error
	DeletePlaceholder(id string) error
	CountPlaceholders() (int, error)
}

var _ RedisClient = (*redis.Client)(nil)
var _ AsynqClient = (*asynq.Client)(nil)
var _ QueueInspector = (*asynq.Inspector)(nil)
var _ MediaLibrary = (*cloudinaryClient)(nil)
var _ PlaceholderCache = (*cacheStore)(nil)
