package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// summaryTTL bounds how long a cached run summary lives; archived runs are
// the durable record, the cache only serves recent lookups.
const summaryTTL = 7 * 24 * time.Hour

// RunCache implements domain.RunCache using Redis string keys holding JSON
// run summaries.
type RunCache struct {
	rdb *redis.Client
}

// NewRunCache creates a RunCache backed by the given Client.
func NewRunCache(c *Client) *RunCache {
	return &RunCache{rdb: c.Underlying()}
}

func summaryKey(runID string) string {
	return "run:" + runID + ":summary"
}

// PutSummary stores the run summary.
func (rc *RunCache) PutSummary(ctx context.Context, s domain.RunSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal summary %s: %w", s.RunID, err)
	}
	if err := rc.rdb.Set(ctx, summaryKey(s.RunID), data, summaryTTL).Err(); err != nil {
		return fmt.Errorf("redis: put summary %s: %w", s.RunID, err)
	}
	return nil
}

// GetSummary retrieves a run summary. It returns domain.ErrNotFound when the
// run is not cached.
func (rc *RunCache) GetSummary(ctx context.Context, runID string) (domain.RunSummary, error) {
	data, err := rc.rdb.Get(ctx, summaryKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RunSummary{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("redis: get summary %s: %w", runID, err)
	}

	var s domain.RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.RunSummary{}, fmt.Errorf("redis: unmarshal summary %s: %w", runID, err)
	}
	return s, nil
}

// Compile-time interface check.
var _ domain.RunCache = (*RunCache)(nil)
