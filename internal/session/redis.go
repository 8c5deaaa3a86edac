package session

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"denoise-bench/internal/config"
	"denoise-bench/internal/models"
)

const maxUpdateAttempts = 3

// RedisStore keeps one gob-encoded snapshot per session under a key whose
// TTL is the retention window. Expiry is left to Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	now    Clock

	// beforeCommit runs between the watched read and the write when set
	beforeCommit func(key string)
}

// NewRedisStore connects to the server described by cfg
func NewRedisStore(cfg *config.RedisConfig, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return NewRedisStoreWithClient(client, ttl, cfg.KeyPrefix)
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Create(ctx context.Context, original *models.Image, filename string) (string, error) {
	if err := original.Validate(); err != nil {
		return "", fmt.Errorf("original image: %w", err)
	}

	now := s.now()
	id := NewID()
	data, err := encodeSession(&models.Session{
		ID:        id,
		Filename:  filename,
		Original:  original,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", err
	}

	ok, err := s.client.SetNX(ctx, s.key(id), data, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("session id collision: %s", id)
	}

	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return decodeSession(data)
}

func (s *RedisStore) GetOriginal(ctx context.Context, id string) (*models.Image, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Original, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, spec models.NoiseSpec, noisy *models.Image, results *models.ResultSet) error {
	if err := validateUpdate(noisy, results); err != nil {
		return err
	}

	key := s.key(id)
	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return notFound(id)
			}
			return fmt.Errorf("failed to load session: %w", err)
		}

		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		sess.Noise = &spec
		sess.Noisy = noisy
		sess.Results = results
		sess.UpdatedAt = s.now()

		encoded, err := encodeSession(sess)
		if err != nil {
			return err
		}

		if s.beforeCommit != nil {
			s.beforeCommit(key)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("session %s: concurrent modification", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Shutdown closes the underlying client
func (s *RedisStore) Shutdown() {
	_ = s.client.Close()
}

func encodeSession(sess *models.Session) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sess); err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*models.Session, error) {
	var sess models.Session
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}
