package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-booking/internal/scheduling"
)

// SlotCache keeps computed availability in one hash per doctor and day,
// with one field per slot duration, so a booking drops every variant at once.
type SlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSlotCache(client *redis.Client, ttl time.Duration) *SlotCache {
	return &SlotCache{client: client, ttl: ttl}
}

func dayKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("availability:%s:%s", doctorID, date.Format(scheduling.DateLayout))
}

func (c *SlotCache) Get(ctx context.Context, doctorID uuid.UUID, date time.Time, duration int) ([]scheduling.Slot, bool, error) {
	raw, err := c.client.HGet(ctx, dayKey(doctorID, date), strconv.Itoa(duration)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached availability: %w", err)
	}

	var slots []scheduling.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, fmt.Errorf("decode cached availability: %w", err)
	}
	return slots, true, nil
}

func (c *SlotCache) Set(ctx context.Context, doctorID uuid.UUID, date time.Time, duration int, slots []scheduling.Slot) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}

	key := dayKey(doctorID, date)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(duration), data)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache availability: %w", err)
	}
	return nil
}

func (c *SlotCache) InvalidateDay(ctx context.Context, doctorID uuid.UUID, date time.Time) error {
	if err := c.client.Del(ctx, dayKey(doctorID, date)).Err(); err != nil {
		return fmt.Errorf("invalidate availability: %w", err)
	}
	return nil
}

// InvalidateDoctor drops every cached day of the doctor, used after the weekly schedule changes.
func (c *SlotCache) InvalidateDoctor(ctx context.Context, doctorID uuid.UUID) error {
	pattern := fmt.Sprintf("availability:%s:*", doctorID)

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan availability keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate doctor availability: %w", err)
	}
	return nil
}
