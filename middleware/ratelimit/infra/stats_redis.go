package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"request-guard/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisActivitySink espelha as tentativas no Redis para dashboards de fora do
// processo. Não participa da decisão: o enforcement continua local.
type RedisActivitySink struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por endereço.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackAddresses bool
	violationCap   int64
}

var _ domain.ActivitySink = (*RedisActivitySink)(nil)

type RedisSinkOption func(*RedisActivitySink)

func WithSinkPrefix(prefix string) RedisSinkOption {
	return func(s *RedisActivitySink) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithSinkTTL(d time.Duration) RedisSinkOption {
	return func(s *RedisActivitySink) { s.ttl = d }
}

func WithSinkBucket(bucket string) RedisSinkOption {
	return func(s *RedisActivitySink) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithSinkTrackAddresses(track bool) RedisSinkOption {
	return func(s *RedisActivitySink) { s.trackAddresses = track }
}

func WithSinkViolationCap(n int64) RedisSinkOption {
	return func(s *RedisActivitySink) { s.violationCap = n }
}

func NewRedisActivitySink(rdb *redis.Client, opts ...RedisSinkOption) *RedisActivitySink {
	s := &RedisActivitySink{
		rdb:          rdb,
		prefix:       "ratelimit:stats",
		ttl:          24 * time.Hour,
		bucket:       "minute",
		violationCap: DefaultViolationCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisActivitySink) Record(ctx context.Context, a domain.Attempt) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := a.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "allowed"
	if a.IsViolation {
		field = "violations"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if a.Policy != "" {
		pipe.HIncrBy(ctx, s.prefix+":policy", string(a.Policy)+":"+field, 1)
	}

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ep := routeField(a.Method, a.Endpoint); ep != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", ep+":"+field, 1)
	}

	if s.trackAddresses {
		if addr := strings.TrimSpace(a.Address); addr != "" {
			addrKey := s.prefix + ":ip:" + addr
			pipe.HIncrBy(ctx, addrKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, addrKey, s.ttl)
			}
		}
	}

	if a.IsViolation && s.violationCap > 0 {
		payload, err := json.Marshal(domain.ViolationRecord{
			Address:        a.Address,
			Timestamp:      at,
			Endpoint:       a.Endpoint,
			ClientIdentity: a.ClientIdentity,
			Limit:          a.Limit,
			AttemptCount:   a.AttemptCount,
		})
		if err != nil {
			return fmt.Errorf("encode violation: %w", err)
		}
		listKey := s.prefix + ":violations"
		pipe.LPush(ctx, listKey, payload)
		pipe.LTrim(ctx, listKey, 0, s.violationCap-1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func routeField(method, endpoint string) string {
	return strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(endpoint))
}
