package review

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

// PageCache stores resolved pages per cohort. Misses and cache errors are
// both reported as a miss by Get.
type PageCache interface {
	Get(ctx context.Context, cohortID, key string) (models.ReviewPage, bool)
	Set(ctx context.Context, cohortID, key string, page models.ReviewPage) error
	Invalidate(ctx context.Context, cohortID string) error
}

// PageKey identifies one resolved query of one cohort snapshot.
func PageKey(cdrVersionID int64, q models.ReviewQuery) string {
	payload, _ := json.Marshal(struct {
		CDRVersionID int64              `json:"cdr"`
		Query        models.ReviewQuery `json:"q"`
	}{cdrVersionID, q})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:16])
}

type RedisPageCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPageCache(client *redis.Client, ttl time.Duration) *RedisPageCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPageCache{client: client, ttl: ttl}
}

func pageKey(cohortID, key string) string {
	return fmt.Sprintf("review:%s:page:%s", cohortID, key)
}

func indexKey(cohortID string) string {
	return fmt.Sprintf("review:%s:pages", cohortID)
}

func (c *RedisPageCache) Get(ctx context.Context, cohortID, key string) (models.ReviewPage, bool) {
	data, err := c.client.Get(ctx, pageKey(cohortID, key)).Bytes()
	if err != nil {
		return models.ReviewPage{}, false
	}
	var page models.ReviewPage
	if err := json.Unmarshal(data, &page); err != nil {
		return models.ReviewPage{}, false
	}
	return page, true
}

func (c *RedisPageCache) Set(ctx context.Context, cohortID, key string, page models.ReviewPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, pageKey(cohortID, key), data, c.ttl)
	pipe.SAdd(ctx, indexKey(cohortID), key)
	pipe.Expire(ctx, indexKey(cohortID), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate drops every cached page of a cohort, e.g. after a reviewer
// changes a participant's status.
func (c *RedisPageCache) Invalidate(ctx context.Context, cohortID string) error {
	keys, err := c.client.SMembers(ctx, indexKey(cohortID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, pageKey(cohortID, k))
	}
	del = append(del, indexKey(cohortID))
	return c.client.Del(ctx, del...).Err()
}
