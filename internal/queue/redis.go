package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zapflow/dispatch/internal/model"
)

// unlockScript deletes the consumer lock only when this instance still holds
// it, so a lock that expired and was re-acquired elsewhere is never released
// by the previous holder.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	client *redis.Client
	// instanceID is this process's consumer lock token.
	instanceID string
}

// NewRedisStore creates a RedisStore with a fresh per-instance lock token.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:     client,
		instanceID: uuid.New().String(),
	}
}

// AddPending adds items to the pending sorted set scored by their timestamps.
func (s *RedisStore) AddPending(ctx context.Context, items []ScoredItem) error {
	if len(items) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(items))
	for _, si := range items {
		data, err := si.Item.Encode()
		if err != nil {
			return err
		}
		members = append(members, redis.Z{
			Score:  float64(si.Score.UnixMilli()),
			Member: data,
		})
	}

	if err := s.client.ZAdd(ctx, pendingKey, members...).Err(); err != nil {
		return fmt.Errorf("zadd %d items to pending: %w", len(items), err)
	}
	return nil
}

// DuePending returns pending items scored at or before now in ascending order.
func (s *RedisStore) DuePending(ctx context.Context, now time.Time, limit int) ([]*Item, error) {
	rangeBy := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		rangeBy.Count = int64(limit)
	}

	raw, err := s.client.ZRangeByScore(ctx, pendingKey, rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore pending: %w", err)
	}

	items := make([]*Item, 0, len(raw))
	for _, data := range raw {
		item, err := DecodeItem(data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// RemovePending removes an item from the pending sorted set.
func (s *RedisStore) RemovePending(ctx context.Context, item *Item) error {
	data, err := item.Encode()
	if err != nil {
		return err
	}
	if err := s.client.ZRem(ctx, pendingKey, data).Err(); err != nil {
		return fmt.Errorf("zrem pending item %s: %w", item.Key(), err)
	}
	return nil
}

// MoveToProcessing removes the item from pending and pushes its stamped copy
// onto the in-flight list in one transaction.
func (s *RedisStore) MoveToProcessing(ctx context.Context, item *Item, startedAt time.Time) (*Item, error) {
	pendingData, err := item.Encode()
	if err != nil {
		return nil, err
	}

	stamped := *item
	stamped.ProcessingStartedAt = startedAt
	processingData, err := stamped.Encode()
	if err != nil {
		return nil, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, pendingKey, pendingData)
		pipe.LPush(ctx, processingKey, processingData)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("move item %s to processing: %w", item.Key(), err)
	}
	return &stamped, nil
}

// RemoveProcessing removes an item from the in-flight list.
func (s *RedisStore) RemoveProcessing(ctx context.Context, item *Item) error {
	data, err := item.Encode()
	if err != nil {
		return err
	}
	if err := s.client.LRem(ctx, processingKey, 1, data).Err(); err != nil {
		return fmt.Errorf("lrem processing item %s: %w", item.Key(), err)
	}
	return nil
}

// ProcessingItems returns every item on the in-flight list.
func (s *RedisStore) ProcessingItems(ctx context.Context) ([]*Item, error) {
	raw, err := s.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange processing: %w", err)
	}

	items := make([]*Item, 0, len(raw))
	for _, data := range raw {
		item, err := DecodeItem(data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// PushError appends an entry to the error list.
func (s *RedisStore) PushError(ctx context.Context, entry *ErrorEntry) error {
	data, err := encodeErrorEntry(entry)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, errorsKey, data).Err(); err != nil {
		return fmt.Errorf("rpush error item %s: %w", entry.Item.Key(), err)
	}
	return nil
}

// ErrorItems returns every entry on the error list.
func (s *RedisStore) ErrorItems(ctx context.Context) ([]*ErrorEntry, error) {
	raw, err := s.client.LRange(ctx, errorsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange errors: %w", err)
	}

	entries := make([]*ErrorEntry, 0, len(raw))
	for _, data := range raw {
		entry, err := decodeErrorEntry(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RemoveError removes an entry from the error list.
func (s *RedisStore) RemoveError(ctx context.Context, entry *ErrorEntry) error {
	data, err := encodeErrorEntry(entry)
	if err != nil {
		return err
	}
	if err := s.client.LRem(ctx, errorsKey, 1, data).Err(); err != nil {
		return fmt.Errorf("lrem error item %s: %w", entry.Item.Key(), err)
	}
	return nil
}

// HasEnqueueMarker reports whether a campaign's idempotency marker exists.
func (s *RedisStore) HasEnqueueMarker(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, enqueueMarkerKey(campaignID)).Result()
	if err != nil {
		return false, fmt.Errorf("check enqueue marker for campaign %s: %w", campaignID, err)
	}
	return n > 0, nil
}

// SetEnqueueMarker sets a campaign's idempotency marker with the given expiry.
func (s *RedisStore) SetEnqueueMarker(ctx context.Context, campaignID uuid.UUID, ttl time.Duration) error {
	if err := s.client.Set(ctx, enqueueMarkerKey(campaignID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("set enqueue marker for campaign %s: %w", campaignID, err)
	}
	return nil
}

// CreateCampaignState persists a campaign state record as a hash so the
// processed counter can advance atomically.
func (s *RedisStore) CreateCampaignState(ctx context.Context, state *CampaignState) error {
	err := s.client.HSet(ctx, campaignStateKey(state.CampaignID), map[string]interface{}{
		"tenant_id":          state.TenantID.String(),
		"created_by":         state.CreatedBy.String(),
		"status":             string(state.Status),
		"total_contacts":     state.TotalContacts,
		"processed_contacts": state.ProcessedContacts,
	}).Err()
	if err != nil {
		return fmt.Errorf("hset campaign state %s: %w", state.CampaignID, err)
	}
	return nil
}

// CampaignState loads a campaign's state record. Returns nil when absent.
func (s *RedisStore) CampaignState(ctx context.Context, campaignID uuid.UUID) (*CampaignState, error) {
	fields, err := s.client.HGetAll(ctx, campaignStateKey(campaignID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall campaign state %s: %w", campaignID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &CampaignState{
		CampaignID: campaignID,
		Status:     model.CampaignStatus(fields["status"]),
	}
	if state.TenantID, err = uuid.Parse(fields["tenant_id"]); err != nil {
		return nil, fmt.Errorf("parse campaign state %s tenant: %w", campaignID, err)
	}
	if state.CreatedBy, err = uuid.Parse(fields["created_by"]); err != nil {
		return nil, fmt.Errorf("parse campaign state %s creator: %w", campaignID, err)
	}
	if state.TotalContacts, err = strconv.ParseInt(fields["total_contacts"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse campaign state %s total: %w", campaignID, err)
	}
	if state.ProcessedContacts, err = strconv.ParseInt(fields["processed_contacts"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse campaign state %s processed: %w", campaignID, err)
	}
	return state, nil
}

// IncrementProcessed atomically advances a campaign's processed counter.
func (s *RedisStore) IncrementProcessed(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	n, err := s.client.HIncrBy(ctx, campaignStateKey(campaignID), "processed_contacts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("hincrby campaign state %s: %w", campaignID, err)
	}
	return n, nil
}

// SetCampaignStatus updates the status field of a campaign's state hash.
func (s *RedisStore) SetCampaignStatus(ctx context.Context, campaignID uuid.UUID, status model.CampaignStatus) error {
	if err := s.client.HSet(ctx, campaignStateKey(campaignID), "status", string(status)).Err(); err != nil {
		return fmt.Errorf("hset campaign state %s status: %w", campaignID, err)
	}
	return nil
}

// TryLock attempts the cross-process consumer lock with SET NX.
func (s *RedisStore) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, consumerLockKey, s.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire consumer lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the consumer lock if this instance still holds it.
func (s *RedisStore) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, s.client, []string{consumerLockKey}, s.instanceID).Err(); err != nil {
		return fmt.Errorf("release consumer lock: %w", err)
	}
	return nil
}

// Sizes returns the pending, in-flight, and error list lengths in one round trip.
func (s *RedisStore) Sizes(ctx context.Context) (int64, int64, int64, error) {
	var pending *redis.IntCmd
	var processing, errList *redis.IntCmd

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.ZCard(ctx, pendingKey)
		processing = pipe.LLen(ctx, processingKey)
		errList = pipe.LLen(ctx, errorsKey)
		return nil
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read queue sizes: %w", err)
	}
	return pending.Val(), processing.Val(), errList.Val(), nil
}

func encodeErrorEntry(entry *ErrorEntry) (string, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal error entry %s: %w", entry.Item.Key(), err)
	}
	return string(data), nil
}

func decodeErrorEntry(data string) (*ErrorEntry, error) {
	var entry ErrorEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal error entry: %w", err)
	}
	return &entry, nil
}
