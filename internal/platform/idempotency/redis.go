package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront:idem:"

// The value is only replaced or deleted when the stored fingerprint matches ARGV[1].
var saveResponseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local decoded = cjson.decode(current)
	if decoded['fingerprint'] ~= ARGV[1] then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

var releaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return 1
end
local decoded = cjson.decode(current)
if decoded['fingerprint'] == ARGV[1] then
	redis.call('DEL', KEYS[1])
end
return 1
`)

// RedisStore shares reservations across instances. A pending reservation is claimed with SET NX
// and expires with the key TTL.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Reserve implements Store.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	record := Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode reservation: %w", err)
	}

	redisKey := redisKeyPrefix + hashKey(key)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if ok {
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}

		raw, err := s.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: load reservation: %w", err)
		}
		var existing Record
		if err := json.Unmarshal(raw, &existing); err != nil {
			return Reservation{}, fmt.Errorf("idempotency: decode reservation: %w", err)
		}
		return reservationFor(existing, fingerprint)
	}
	return Reservation{}, errors.New("idempotency: reservation raced with expiry")
}

// SaveResponse implements Store.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(completedRecord(key, fingerprint, resp, now.UTC(), ttl))
	if err != nil {
		return fmt.Errorf("idempotency: encode response: %w", err)
	}
	saved, err := saveResponseScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + hashKey(key)},
		fingerprint, payload, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	if saved == 0 {
		return ErrFingerprintMismatch
	}
	return nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	err := releaseScript.Run(ctx, s.client, []string{redisKeyPrefix + hashKey(key)}, fingerprint).Err()
	if err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}
