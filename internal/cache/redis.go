package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voyatech/ticketcheck/models"
)

const redisKeyPrefix = "ticketcheck:extract:"

// Redis is a Cache backed by a shared redis instance, for deployments where
// several replicas should see each other's extraction results.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. Expiry is delegated to redis-native TTLs.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Conn dials redis and verifies the connection with a ping.
func Conn(ctx context.Context, host, port, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", host, port, err)
	}
	return client, nil
}

func (r *Redis) Get(ctx context.Context, fingerprint string) (models.ExtractedTicket, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+fingerprint).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ExtractedTicket{}, models.ErrCacheMiss
		}
		return models.ExtractedTicket{}, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		// A corrupt entry behaves as a miss so extraction can repair it.
		return models.ExtractedTicket{}, models.ErrCacheMiss
	}
	return entry.Ticket, nil
}

func (r *Redis) Put(ctx context.Context, fingerprint string, ticket models.ExtractedTicket) error {
	data, err := json.Marshal(models.CacheEntry{
		Fingerprint: fingerprint,
		Ticket:      ticket,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+fingerprint, data, r.ttl).Err()
}

// Clear removes every entry under the key prefix. Unlike the in-memory
// backend there is no mutual exclusion against concurrent writers: a Put that
// started before the clear can land after it and survive until its TTL. The
// shared backend trades the stop-the-world guarantee for not blocking every
// replica; a surviving entry is at worst one stale-but-valid extraction.
func (r *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", 256).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
