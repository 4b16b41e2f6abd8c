package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/peer-lending/internal/domain"
)

const scheduleKeyPrefix = "loan:schedule:"

// ScheduleCache stores serialized repayment schedules in Redis, keyed by
// loan id and loan version. Every write to a loan bumps its version, so an
// entry filled from a snapshot older than the current version is never read.
type ScheduleCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewScheduleCache(rdb redis.Cmdable, ttl time.Duration) *ScheduleCache {
	return &ScheduleCache{rdb: rdb, ttl: ttl}
}

func scheduleKey(loanID uuid.UUID, version int) string {
	return scheduleKeyPrefix + loanID.String() + ":" + strconv.Itoa(version)
}

// Get returns the schedule cached for the given loan version. ok is false on a miss.
func (c *ScheduleCache) Get(ctx context.Context, loanID uuid.UUID, version int) (domain.Schedule, bool, error) {
	raw, err := c.rdb.Get(ctx, scheduleKey(loanID, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var schedule domain.Schedule
	if err := json.Unmarshal(raw, &schedule); err != nil {
		return nil, false, fmt.Errorf("decode cached schedule: %w", err)
	}

	return schedule, true, nil
}

func (c *ScheduleCache) Set(ctx context.Context, loanID uuid.UUID, version int, schedule domain.Schedule) error {
	raw, err := json.Marshal(schedule)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, scheduleKey(loanID, version), raw, c.ttl).Err()
}

func (c *ScheduleCache) Delete(ctx context.Context, loanID uuid.UUID, version int) error {
	return c.rdb.Del(ctx, scheduleKey(loanID, version)).Err()
}
