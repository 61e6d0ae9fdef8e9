// internal/store/redis_store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zapblast/zapblast-backend/internal/model"
)

// Redis key layout:
//   campaigns                      hash, field = campaign id, value = JSON
//   campaign:<id>:messages         hash, field = phone, value = JSON
//   campaign:<id>:contacts         string, JSON array
//   message_history                list, newest first, trimmed to HistoryCap
const (
	campaignsKey   = "campaigns"
	historyKey     = "message_history"
	messagesKeyFmt = "campaign:%s:messages"
	contactsKeyFmt = "campaign:%s:contacts"
)

type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redis at url (redis:// or rediss://) and fails
// fast when the server is unreachable.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = time.Second

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreFromClient wraps an existing client; used by tests.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func messagesKey(campaignID string) string {
	return fmt.Sprintf(messagesKeyFmt, campaignID)
}

func (s *RedisStore) PutCampaign(ctx context.Context, c *model.Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal campaign: %w", err)
	}
	return s.rdb.HSet(ctx, campaignsKey, c.ID, data).Err()
}

func (s *RedisStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	data, err := s.rdb.HGet(ctx, campaignsKey, id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c model.Campaign
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("unmarshal campaign %s: %w", id, err)
	}
	return &c, nil
}

func (s *RedisStore) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	fields, err := s.rdb.HGetAll(ctx, campaignsKey).Result()
	if err != nil {
		return nil, err
	}

	campaigns := make([]model.Campaign, 0, len(fields))
	for id, data := range fields {
		var c model.Campaign
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("unmarshal campaign %s: %w", id, err)
		}
		campaigns = append(campaigns, c)
	}

	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CreatedAt.After(campaigns[j].CreatedAt)
	})
	return campaigns, nil
}

func (s *RedisStore) PutContacts(ctx context.Context, campaignID string, contacts []model.Contact) error {
	data, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("marshal contacts: %w", err)
	}
	return s.rdb.Set(ctx, fmt.Sprintf(contactsKeyFmt, campaignID), data, 0).Err()
}

func (s *RedisStore) GetContacts(ctx context.Context, campaignID string) ([]model.Contact, error) {
	data, err := s.rdb.Get(ctx, fmt.Sprintf(contactsKeyFmt, campaignID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var contacts []model.Contact
	if err := json.Unmarshal([]byte(data), &contacts); err != nil {
		return nil, fmt.Errorf("unmarshal contacts: %w", err)
	}
	return contacts, nil
}

func (s *RedisStore) PutMessageStatus(ctx context.Context, rec model.MessageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal message record: %w", err)
	}
	return s.rdb.HSet(ctx, messagesKey(rec.CampaignID), rec.Phone, data).Err()
}

func (s *RedisStore) GetMessageStatuses(ctx context.Context, campaignID string) ([]model.MessageRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, messagesKey(campaignID)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]model.MessageRecord, 0, len(fields))
	for phone, data := range fields {
		var rec model.MessageRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record for %s: %w", phone, err)
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Phone < records[j].Phone
	})
	return records, nil
}

func (s *RedisStore) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, HistoryCap-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 || limit > HistoryCap {
		limit = HistoryCap
	}
	items, err := s.rdb.LRange(ctx, historyKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.HistoryEntry, 0, len(items))
	for _, data := range items {
		var e model.HistoryEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("unmarshal history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
