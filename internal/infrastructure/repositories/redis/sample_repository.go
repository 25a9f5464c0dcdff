package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
)

// RedisSampleRepository keeps each session's samples in a sorted set scored
// by timestamp. The member key is device plus timestamp, so a retried batch
// overwrites instead of duplicating.
type RedisSampleRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSampleRepository(client *redis.Client) ports.SampleRepository {
	return &RedisSampleRepository{
		client: client,
		prefix: "soctel:samples:",
	}
}

func (r *RedisSampleRepository) samplesKey(sessionID domain.SessionID) string {
	return r.prefix + string(sessionID)
}

func sampleMember(sample domain.Sample) string {
	return fmt.Sprintf("%s:%d", sample.DeviceID, sample.Timestamp.UnixNano())
}

func (r *RedisSampleRepository) Append(ctx context.Context, sessionID domain.SessionID, samples []domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	key := r.samplesKey(sessionID)
	pipe := r.client.TxPipeline()
	for _, sample := range samples {
		data, err := json.Marshal(sample)
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}
		member := sampleMember(sample)
		pipe.HSet(ctx, key+":data", member, data)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(sample.Timestamp.UnixNano()),
			Member: member,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append samples to Redis: %w", err)
	}
	return nil
}

func (r *RedisSampleRepository) Get(ctx context.Context, sessionID domain.SessionID, tr domain.TimeRange) ([]domain.Sample, error) {
	key := r.samplesKey(sessionID)

	min, max := "-inf", "+inf"
	if !tr.From.IsZero() {
		min = strconv.FormatInt(tr.From.UnixNano(), 10)
	}
	if !tr.To.IsZero() {
		max = strconv.FormatInt(tr.To.UnixNano(), 10)
	}

	members, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sample index: %w", err)
	}
	if len(members) == 0 {
		return []domain.Sample{}, nil
	}

	values, err := r.client.HMGet(ctx, key+":data", members...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sample data: %w", err)
	}

	samples := make([]domain.Sample, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sample domain.Sample
		if err := json.Unmarshal([]byte(raw), &sample); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (r *RedisSampleRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	var cursor uint64
	max := strconv.FormatInt(cutoff.UnixNano()-1, 10)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan sample keys: %w", err)
		}
		for _, key := range keys {
			if len(key) > 5 && key[len(key)-5:] == ":data" {
				continue
			}
			members, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
			if err != nil {
				return fmt.Errorf("failed to read expired samples: %w", err)
			}
			if len(members) == 0 {
				continue
			}
			pipe := r.client.TxPipeline()
			pipe.ZRemRangeByScore(ctx, key, "-inf", max)
			pipe.HDel(ctx, key+":data", members...)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to purge samples: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
