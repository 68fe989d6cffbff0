// Package broker provides the Redis Streams implementation of Stream.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinel-agent/src/contracts"
)

// Dial connects to Redis and verifies the connection. The returned client
// is shared between the stream broker and the cache adapter.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", contracts.ErrBrokerUnavailable, addr, err)
	}

	return client, nil
}

// RedisStream implements Stream on Redis Streams (XADD / XREADGROUP /
// XACK / XAUTOCLAIM).
type RedisStream struct {
	client *redis.Client
	// minIdle is how long a pending entry must sit idle before ReadBatch
	// reclaims it from its original consumer.
	minIdle time.Duration
}

// NewRedisStream wraps an established Redis client.
func NewRedisStream(client *redis.Client, minIdle time.Duration) *RedisStream {
	return &RedisStream{client: client, minIdle: minIdle}
}

// Append implements Stream.
func (r *RedisStream) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: no fields to append", contracts.ErrInvalidRecord)
	}

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: xadd %s: %v", contracts.ErrBrokerUnavailable, stream, err)
	}

	return id, nil
}

// EnsureGroup implements Stream. BUSYGROUP from Redis means the group
// already exists and is treated as success.
func (r *RedisStream) EnsureGroup(ctx context.Context, stream, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("%w: creating group %s on %s: %v",
			contracts.ErrBrokerUnavailable, group, stream, err)
	}
	return nil
}

// ReadBatch implements Stream. Stale pending entries are reclaimed before
// new ones are read, so a message whose delivery failed elsewhere in the
// group is redelivered here once its idle time passes minIdle.
func (r *RedisStream) ReadBatch(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Message, error) {
	messages, err := r.claimStale(ctx, stream, group, consumer, count)
	if err != nil {
		return nil, err
	}
	if len(messages) >= count {
		return messages, nil
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count - len(messages)),
		Block:    blockArg(block),
	}).Result()
	if err == redis.Nil {
		// Block timeout with no new entries.
		return messages, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: xreadgroup %s: %v", contracts.ErrBrokerUnavailable, stream, err)
	}

	for _, s := range streams {
		for _, m := range s.Messages {
			messages = append(messages, toMessage(s.Stream, m))
		}
	}

	return messages, nil
}

// blockArg maps the contract's block duration to go-redis semantics.
// The contract says a read blocks up to block, so a non-positive value
// means a non-blocking read; passing 0 through would send BLOCK 0, which
// Redis treats as block-forever.
func blockArg(block time.Duration) time.Duration {
	if block <= 0 {
		// Negative Block makes go-redis omit the BLOCK argument.
		return -1
	}
	return block
}

func (r *RedisStream) claimStale(ctx context.Context, stream, group, consumer string, count int) ([]Message, error) {
	claimed, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  r.minIdle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		// NOGROUP means the caller skipped EnsureGroup; surface that.
		return nil, fmt.Errorf("%w: xautoclaim %s: %v", contracts.ErrBrokerUnavailable, stream, err)
	}

	messages := make([]Message, 0, len(claimed))
	for _, m := range claimed {
		messages = append(messages, toMessage(stream, m))
	}
	return messages, nil
}

// Ack implements Stream. XACK on an already-acknowledged id is a no-op on
// the server, which gives the idempotence the contract requires.
func (r *RedisStream) Ack(ctx context.Context, stream, group, id string) error {
	if err := r.client.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("%w: xack %s %s: %v", contracts.ErrBrokerUnavailable, stream, id, err)
	}
	return nil
}

// StreamInfo implements Stream.
func (r *RedisStream) StreamInfo(ctx context.Context, stream string) contracts.StreamInfo {
	info, err := r.client.XInfoStream(ctx, stream).Result()
	if err != nil {
		return contracts.StreamInfo{}
	}
	return contracts.StreamInfo{
		Length:  info.Length,
		FirstID: info.FirstEntry.ID,
		LastID:  info.LastEntry.ID,
		Groups:  info.Groups,
	}
}

// Close implements Stream.
func (r *RedisStream) Close() error {
	return r.client.Close()
}

func toMessage(stream string, m redis.XMessage) Message {
	fields := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprintf("%v", v)
		}
	}
	return Message{ID: m.ID, Stream: stream, Fields: fields}
}
