// Package redisqueue provides the Redis Streams backed task queue for search jobs.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gistseek/gistseek/internal/core"
	"github.com/gistseek/gistseek/internal/domain/model"
	apperrors "github.com/gistseek/gistseek/internal/errors"
)

const (
	defaultStream = "gistseek:search:stream"
	defaultGroup  = "gistseek-workers"
	payloadField  = "payload"

	defaultBlock          = 5 * time.Second
	defaultRedeliveryIdle = time.Minute
)

// Options configures the queue adapter.
type Options struct {
	Client redis.UniversalClient

	// Stream and Group identify the stream and consumer group; defaults
	// are shared by all producers and workers of this deployment.
	Stream string
	Group  string
	// Consumer names this worker within the group. Defaults to
	// hostname+random suffix so concurrent workers never collide.
	Consumer string

	// Block is how long Dequeue waits for a new entry before returning
	// model.ErrNoWorkAvailable.
	Block time.Duration
	// RedeliveryIdle is the minimum idle time before an unacked entry
	// owned by another consumer is reclaimed for re-execution.
	RedeliveryIdle time.Duration

	Logger *slog.Logger
}

// Queue is a durable, at-least-once work item channel on a Redis Stream.
//
// Enqueue returns once XADD has appended the entry. Dequeue hands each
// entry to exactly one consumer in the group; entries that are never
// acked (worker crash) are reclaimed by XAUTOCLAIM after RedeliveryIdle
// and re-executed from scratch. A live consumer calls Extend on its
// delivery to keep the entry from being mistaken for stale.
type Queue struct {
	client   redis.UniversalClient
	stream   string
	group    string
	consumer string

	block          time.Duration
	redeliveryIdle time.Duration

	logger    *slog.Logger
	groupOnce sync.Once
	groupErr  error
}

// New constructs a Queue. It performs no I/O; the consumer group is
// created lazily on first Dequeue (or explicitly via EnsureGroup).
func New(opts Options) (*Queue, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stream := opts.Stream
	if stream == "" {
		stream = defaultStream
	}
	group := opts.Group
	if group == "" {
		group = defaultGroup
	}
	consumer := opts.Consumer
	if consumer == "" {
		consumer = defaultConsumerName()
	}

	block := opts.Block
	if block <= 0 {
		block = defaultBlock
	}
	redeliveryIdle := opts.RedeliveryIdle
	if redeliveryIdle <= 0 {
		redeliveryIdle = defaultRedeliveryIdle
	}

	return &Queue{
		client:         opts.Client,
		stream:         stream,
		group:          group,
		consumer:       consumer,
		block:          block,
		redeliveryIdle: redeliveryIdle,
		logger:         logger.With("component", "redisqueue"),
	}, nil
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// EnsureGroup creates the consumer group (and the stream, if absent).
// Safe to call repeatedly; an existing group is not an error.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (q *Queue) ensureGroupOnce(ctx context.Context) error {
	q.groupOnce.Do(func() {
		q.groupErr = q.EnsureGroup(ctx)
	})
	return q.groupErr
}

// Enqueue appends a work item to the stream. It returns once the entry is
// durably queued, or a QueueUnavailable error.
func (q *Queue) Enqueue(ctx context.Context, item *model.WorkItem) error {
	if item == nil {
		return errors.New("work item is required")
	}
	if err := item.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}

	if addErr := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{payloadField: payload},
	}).Err(); addErr != nil {
		return apperrors.Wrap(addErr, apperrors.ErrCodeQueueUnavailable, "enqueue work item")
	}
	return nil
}

// Dequeue returns the next work item for this consumer, preferring stale
// unacked entries from dead consumers over new work. It blocks up to the
// configured window and returns model.ErrNoWorkAvailable when nothing
// arrived in time.
func (q *Queue) Dequeue(ctx context.Context) (*core.Delivery, error) {
	if err := q.ensureGroupOnce(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeQueueUnavailable, "dequeue work item")
	}

	if delivery, err := q.claimStale(ctx); err != nil {
		return nil, err
	} else if delivery != nil {
		return delivery, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNoWorkAvailable
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeQueueUnavailable, "dequeue work item")
	}

	msg, ok := firstMessage(streams)
	if !ok {
		return nil, model.ErrNoWorkAvailable
	}
	return q.toDelivery(ctx, msg, false)
}

// claimStale reclaims one entry whose consumer went quiet for longer than
// the redelivery threshold. Returns nil when there is nothing to claim.
func (q *Queue) claimStale(ctx context.Context) (*core.Delivery, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.redeliveryIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeQueueUnavailable, "claim stale work item")
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return q.toDelivery(ctx, msgs[0], true)
}

func (q *Queue) toDelivery(ctx context.Context, msg redis.XMessage, redelivered bool) (*core.Delivery, error) {
	item, err := decodeWorkItem(msg)
	if err != nil {
		// Poison entry: it can never execute, so ack it out of the
		// pending list instead of redelivering it forever.
		if ackErr := q.ack(ctx, msg.ID); ackErr != nil {
			q.logger.ErrorContext(ctx, "ack malformed work item failed", "entry_id", msg.ID, "error", ackErr)
		}
		return nil, fmt.Errorf("decode work item %s: %w", msg.ID, err)
	}

	entryID := msg.ID
	return &core.Delivery{
		Item:        item,
		DeliveryID:  entryID,
		Redelivered: redelivered,
		Ack: func(ackCtx context.Context) error {
			return q.ack(ackCtx, entryID)
		},
		Extend: func(extendCtx context.Context) error {
			return q.extend(extendCtx, entryID)
		},
	}, nil
}

// extend re-claims the entry for this consumer with MinIdle 0, which
// resets its idle time in the pending entries list. While the consumer
// keeps extending, XAUTOCLAIM in other workers never sees the entry as
// stale, so a long-running job is not re-executed concurrently.
func (q *Queue) extend(ctx context.Context, entryID string) error {
	claimed, err := q.client.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  0,
		Messages: []string{entryID},
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return apperrors.Wrap(err, apperrors.ErrCodeQueueUnavailable, "extend work item")
	}
	if len(claimed) == 0 {
		// Acked or claimed by another consumer; ownership is gone.
		return fmt.Errorf("entry %s is no longer pending", entryID)
	}
	return nil
}

func (q *Queue) ack(ctx context.Context, entryID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, entryID).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeQueueUnavailable, "ack work item")
	}
	return nil
}

func decodeWorkItem(msg redis.XMessage) (*model.WorkItem, error) {
	raw, ok := msg.Values[payloadField]
	if !ok {
		return nil, errors.New("missing payload field")
	}
	text, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", raw)
	}

	var item model.WorkItem
	if err := json.Unmarshal([]byte(text), &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return &item, nil
}

func firstMessage(streams []redis.XStream) (redis.XMessage, bool) {
	for _, s := range streams {
		if len(s.Messages) > 0 {
			return s.Messages[0], true
		}
	}
	return redis.XMessage{}, false
}

// Health checks the Redis connection behind the queue.
func (q *Queue) Health(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
