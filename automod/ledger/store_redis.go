package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/modwarden/warden/automod/event"

	"github.com/redis/go-redis/v9"
)

var redisLedgerPrefix string = "warden/ledger/"
var redisLedgerIndex string = "warden/ledger-index/"

// Ledger persistence in redis: one JSON value per scope, plus a per-guild set of user IDs for listing.
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisStore{Client: rdb}, nil
}

func redisEntryKey(scope event.Scope) string {
	return redisLedgerPrefix + scope.GuildID + "/" + scope.UserID
}

func (s *RedisStore) Load(ctx context.Context, scope event.Scope) (*Entry, error) {
	raw, err := s.Client.Get(ctx, redisEntryKey(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *RedisStore) Save(ctx context.Context, entry *Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	multi := s.Client.TxPipeline()
	multi.Set(ctx, redisEntryKey(entry.Scope), b, 0)
	multi.SAdd(ctx, redisLedgerIndex+entry.Scope.GuildID, entry.Scope.UserID)
	multi.SAdd(ctx, redisLedgerIndex, entry.Scope.GuildID)
	_, err = multi.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, scope event.Scope) error {
	multi := s.Client.TxPipeline()
	multi.Del(ctx, redisEntryKey(scope))
	multi.SRem(ctx, redisLedgerIndex+scope.GuildID, scope.UserID)
	_, err := multi.Exec(ctx)
	return err
}

func (s *RedisStore) Scopes(ctx context.Context, guildID string) ([]event.Scope, error) {
	guilds := []string{guildID}
	if guildID == "" {
		var err error
		guilds, err = s.Client.SMembers(ctx, redisLedgerIndex).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
	}
	out := []event.Scope{}
	for _, g := range guilds {
		users, err := s.Client.SMembers(ctx, redisLedgerIndex+g).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		for _, u := range users {
			out = append(out, event.Scope{GuildID: g, UserID: u})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].String(), out[j].String()) < 0
	})
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
