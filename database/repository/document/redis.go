package documentRepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"unmute/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const maxWatchRetries = 5

// RedisStore keeps each session document as JSON under <prefix>:<userID> and
// publishes every committed state on <prefix>:<userID>:changes.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a RedisStore with the given key prefix.
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisStore) channel(userID string) string {
	return s.key(userID) + ":changes"
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*models.SessionDocument, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document for user %s: %w", userID, err)
	}
	return decodeJSON(raw)
}

func (s *RedisStore) Set(ctx context.Context, userID string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	return s.update(ctx, userID, -1, func(doc *models.SessionDocument) error {
		return ApplyPatch(doc, patch)
	})
}

func (s *RedisStore) SetIfVersion(ctx context.Context, userID string, patch Patch, version int64) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	return s.update(ctx, userID, version, func(doc *models.SessionDocument) error {
		return ApplyPatch(doc, patch)
	})
}

func (s *RedisStore) AppendBookings(ctx context.Context, userID string, bookings ...models.Booking) error {
	return s.update(ctx, userID, -1, func(doc *models.SessionDocument) error {
		for _, b := range bookings {
			if !containsBooking(doc.Bookings, b.ID) {
				doc.Bookings = append(doc.Bookings, b)
			}
		}
		return nil
	})
}

// update runs mutate inside a WATCH transaction. A negative version means the
// write is unconditional and optimistic-lock failures are retried.
func (s *RedisStore) update(ctx context.Context, userID string, version int64, mutate func(*models.SessionDocument) error) error {
	key := s.key(userID)

	txf := func(tx *redis.Tx) error {
		doc := &models.SessionDocument{Messages: []models.Message{}, Bookings: []models.Booking{}}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			if doc, err = decodeJSON(raw); err != nil {
				return err
			}
		}

		if version >= 0 && doc.Version != version {
			return ErrVersionConflict
		}
		if err := mutate(doc); err != nil {
			return err
		}
		doc.Version++

		b, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode session document: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.Publish(ctx, s.channel(userID), b)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			if version >= 0 {
				return ErrVersionConflict
			}
			continue
		}
		if err != nil && !errors.Is(err, ErrVersionConflict) {
			return fmt.Errorf("failed to write document for user %s: %w", userID, err)
		}
		return err
	}
	return fmt.Errorf("failed to write document for user %s: %w", userID, redis.TxFailedErr)
}

// Subscribe delivers the current document, then each published state.
func (s *RedisStore) Subscribe(ctx context.Context, userID string, onChange func(*models.SessionDocument)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to document for user %s: %w", userID, err)
	}

	go func() {
		if doc, err := s.Get(ctx, userID); err == nil {
			onChange(doc)
		}
		for msg := range pubsub.Channel() {
			doc, err := decodeJSON([]byte(msg.Payload))
			if err != nil {
				s.logger.Warn("skipping malformed published document", zap.String("userID", userID), zap.Error(err))
				continue
			}
			onChange(doc)
		}
	}()

	return func() { _ = pubsub.Close() }, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeJSON(raw []byte) (*models.SessionDocument, error) {
	var doc models.SessionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed session document: %w", err)
	}
	normalize(&doc)
	return &doc, nil
}

var _ VersionedStore = (*RedisStore)(nil)
var _ ArrayAppender = (*RedisStore)(nil)
