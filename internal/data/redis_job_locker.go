package data

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dtapi/booking-engine/internal/core"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
)

var _ core.JobLocker = (*RedisJobLocker)(nil)

// releaseScript deletes the lock only if it still holds our token, so a holder whose TTL
// expired never frees a lock someone else acquired since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisJobLockerOptions configures a RedisJobLocker.
type RedisJobLockerOptions struct {
	Client redis.UniversalClient
	// TTL bounds how long a crashed holder can block a job.
	TTL time.Duration
	// RetryInterval is the pause between acquire attempts.
	RetryInterval time.Duration
	Prefix        string
	Logger        *slog.Logger
}

// RedisJobLocker serializes mutations of one job across processes.
type RedisJobLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisJobLocker creates a locker with defaults of 30s TTL and 25ms retry.
func NewRedisJobLocker(opts RedisJobLockerOptions) *RedisJobLocker {
	l := &RedisJobLocker{
		client: opts.Client,
		ttl:    opts.TTL,
		retry:  opts.RetryInterval,
		prefix: opts.Prefix,
		logger: opts.Logger,
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	if l.retry <= 0 {
		l.retry = 25 * time.Millisecond
	}
	if l.prefix == "" {
		l.prefix = "booking:job_lock:"
	}
	if l.logger != nil {
		l.logger = l.logger.With("component", "redis_job_locker")
	}
	return l
}

// Lock blocks until the job lock is held or ctx is done. The returned func releases it.
func (l *RedisJobLocker) Lock(ctx context.Context, jobID string) (func(), error) {
	key := l.prefix + jobID
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperrors.Transientf("lock job %s: %v", jobID, ctx.Err())
			}
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeTransient, "lock job %s", jobID)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.Transientf("lock job %s: %v", jobID, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *RedisJobLocker) release(key, token string) {
	// The caller's context may already be cancelled; release on a short detached one.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && l.logger != nil {
		l.logger.Warn("failed to release job lock", "key", key, "error", err)
	}
}
