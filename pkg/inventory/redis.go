package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gateline/gateline/pkg/order"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveScript checks every counter before decrementing any of them, so a
// multi-type reservation is all-or-nothing. KEYS are the per-type counters,
// ARGV[1..#KEYS] the quantities, ARGV[#KEYS+1] the reservation marker key,
// ARGV[#KEYS+2] the marker TTL in seconds.
var reserveScript = redis.NewScript(`
for i = 1, #KEYS do
	local remaining = tonumber(redis.call("GET", KEYS[i]) or "0")
	if remaining < tonumber(ARGV[i]) then
		return {0, KEYS[i], remaining}
	end
end
for i = 1, #KEYS do
	redis.call("DECRBY", KEYS[i], ARGV[i])
end
redis.call("SET", ARGV[#KEYS + 1], "1", "EX", ARGV[#KEYS + 2])
return {1}
`)

// releaseScript increments the counters only when the reservation marker is
// still present, then deletes the marker. Repeat releases are no-ops.
var releaseScript = redis.NewScript(`
if redis.call("DEL", ARGV[#KEYS + 1]) == 0 then
	return 0
end
for i = 1, #KEYS do
	redis.call("INCRBY", KEYS[i], ARGV[i])
end
return 1
`)

// RedisConfig tunes the Redis inventory backend.
type RedisConfig struct {
	// KeyPrefix namespaces all inventory keys.
	KeyPrefix string

	// ReservationTTL bounds how long a release stays possible. After the
	// marker expires the reservation is considered settled.
	ReservationTTL time.Duration
}

// DefaultRedisConfig returns the default Redis inventory configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix:      "gateline:inventory:",
		ReservationTTL: 24 * time.Hour,
	}
}

// Redis is an inventory backed by per-ticket-type Redis counters. Reserve and
// release run as Lua scripts, so they stay atomic across ticket types and
// across processes.
type Redis struct {
	client redis.Cmdable
	cfg    RedisConfig
}

// NewRedis creates a Redis-backed inventory.
func NewRedis(client redis.Cmdable, cfg RedisConfig) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = DefaultRedisConfig().ReservationTTL
	}
	return &Redis{client: client, cfg: cfg}, nil
}

func (r *Redis) counterKey(eventID, ticketTypeID string) string {
	return r.cfg.KeyPrefix + eventID + ":" + ticketTypeID
}

func (r *Redis) reservationKey(reservationID string) string {
	return r.cfg.KeyPrefix + "reservation:" + reservationID
}

// SetCapacity sets the remaining units for one ticket type of an event.
func (r *Redis) SetCapacity(ctx context.Context, eventID, ticketTypeID string, units int) error {
	return r.client.Set(ctx, r.counterKey(eventID, ticketTypeID), units, 0).Err()
}

// SeedEvent loads capacities for every ticket type of an event.
func (r *Redis) SeedEvent(ctx context.Context, event *order.Event) error {
	for _, tt := range event.TicketTypes {
		if err := r.SetCapacity(ctx, event.ID, tt.ID, tt.Capacity); err != nil {
			return fmt.Errorf("seed %s/%s: %w", event.ID, tt.ID, err)
		}
	}
	return nil
}

// Remaining returns the units left for one ticket type.
func (r *Redis) Remaining(ctx context.Context, eventID, ticketTypeID string) (int, error) {
	val, err := r.client.Get(ctx, r.counterKey(eventID, ticketTypeID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// Reserve atomically decrements every requested ticket type or none of them.
func (r *Redis) Reserve(ctx context.Context, eventID string, items []order.ReservationItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("no items to reserve")
	}

	reservationID := uuid.NewString()
	keys := make([]string, 0, len(items))
	argv := make([]interface{}, 0, len(items)+2)
	for _, item := range items {
		keys = append(keys, r.counterKey(eventID, item.TicketTypeID))
		argv = append(argv, item.Quantity)
	}
	argv = append(argv, r.reservationKey(reservationID), int(r.cfg.ReservationTTL.Seconds()))

	raw, err := reserveScript.Run(ctx, r.client, keys, argv...).Result()
	if err != nil {
		return "", fmt.Errorf("reserve inventory: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) == 0 {
		return "", fmt.Errorf("reserve inventory: unexpected reply %v", raw)
	}
	if code, _ := reply[0].(int64); code != 1 {
		if len(reply) == 3 {
			return "", fmt.Errorf("%w: %v has %v left", order.ErrInsufficientInventory, reply[1], reply[2])
		}
		return "", order.ErrInsufficientInventory
	}
	return reservationID, nil
}

// Release returns the reserved units. Idempotent via the reservation marker.
func (r *Redis) Release(ctx context.Context, eventID, reservationID string, items []order.ReservationItem) error {
	keys := make([]string, 0, len(items))
	argv := make([]interface{}, 0, len(items)+1)
	for _, item := range items {
		keys = append(keys, r.counterKey(eventID, item.TicketTypeID))
		argv = append(argv, item.Quantity)
	}
	argv = append(argv, r.reservationKey(reservationID))

	if err := releaseScript.Run(ctx, r.client, keys, argv...).Err(); err != nil {
		return fmt.Errorf("release inventory: %w", err)
	}
	return nil
}
