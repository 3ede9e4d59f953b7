// Package redisstore keeps room storage in Redis so that several
// coordinator processes can share one durable backend.
//
// Layout, with the configured prefix:
//
//	<prefix>room:<id>:kv     hash of keyed records
//	<prefix>room:<id>:alarm  wakeup instant in unix milliseconds
//	<prefix>alarms           sorted set of armed rooms scored by wakeup
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const defaultPrefix = "pairwise:"

type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ storage.Store = (*Store)(nil)

func New(client *redis.Client, keyPrefix string) *Store {
	if client == nil {
		panic("redisstore: nil client")
	}
	if keyPrefix == "" {
		keyPrefix = defaultPrefix
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Dial connects and pings before returning.
func Dial(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", opts.Addr, err)
	}
	log.Info().Str("module", "storage.redis").Str("addr", opts.Addr).Int("db", opts.DB).Msg("redis store connected")
	return New(client, opts.Prefix), nil
}

func (s *Store) kvKey(room domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:kv", s.keyPrefix, room)
}

func (s *Store) alarmKey(room domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:alarm", s.keyPrefix, room)
}

func (s *Store) alarmsKey() string {
	return s.keyPrefix + "alarms"
}

func (s *Store) Get(ctx context.Context, room domain.RoomID, key string) ([]byte, error) {
	v, err := s.client.HGet(ctx, s.kvKey(room), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get %s/%s: %w", room, key, err)
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, room domain.RoomID, key string, value []byte) error {
	if err := s.client.HSet(ctx, s.kvKey(room), key, value).Err(); err != nil {
		return fmt.Errorf("redisstore: put %s/%s: %w", room, key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, room domain.RoomID, prefix string) (map[string][]byte, error) {
	all, err := s.client.HGetAll(ctx, s.kvKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list %s/%s: %w", room, prefix, err)
	}
	out := make(map[string][]byte, len(all))
	for k, v := range all {
		if strings.HasPrefix(k, prefix) {
			out[k] = []byte(v)
		}
	}
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context, room domain.RoomID) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.kvKey(room), s.alarmKey(room))
		pipe.ZRem(ctx, s.alarmsKey(), string(room))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: delete all %s: %w", room, err)
	}
	return nil
}

func (s *Store) GetAlarm(ctx context.Context, room domain.RoomID) (time.Time, error) {
	ms, err := s.client.Get(ctx, s.alarmKey(room)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("redisstore: get alarm %s: %w", room, err)
	}
	return time.UnixMilli(ms), nil
}

func (s *Store) SetAlarm(ctx context.Context, room domain.RoomID, at time.Time) error {
	ms := at.UnixMilli()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.alarmKey(room), strconv.FormatInt(ms, 10), 0)
		pipe.ZAdd(ctx, s.alarmsKey(), &redis.Z{Score: float64(ms), Member: string(room)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: set alarm %s: %w", room, err)
	}
	return nil
}

// Rooms returns armed rooms ordered by wakeup instant.
func (s *Store) Rooms(ctx context.Context) ([]storage.RoomAlarm, error) {
	zs, err := s.client.ZRangeWithScores(ctx, s.alarmsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list alarms: %w", err)
	}
	out := make([]storage.RoomAlarm, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, storage.RoomAlarm{
			Room:   domain.RoomID(member),
			FireAt: time.UnixMilli(int64(z.Score)),
		})
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
