package redisQueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"newsqueue/internal/pkg/logger"
	"newsqueue/internal/pkg/queue"
)

// Hash fields of a stored message.
const (
	fieldBody     = "body"
	fieldInserted = "inserted"
	fieldExpires  = "expires"
	fieldReceipt  = "receipt"
	fieldDequeue  = "dequeue"
)

// RedisActions implements queue.QueueClient on plain Redis data structures:
//
//	<prefix><name>             list of visible message ids, head first
//	<prefix><name>:meta        hash, present once the queue is created
//	<prefix><name>:inflight    sorted set of received ids scored by visible-again time (unix ms)
//	<prefix><name>:msg:<id>    hash holding the message, expiring after the message TTL
type RedisActions struct {
	Client    *redis.Client  // Redis client
	KeyPrefix string         // Prefix for every key owned by the queue
	Config    *queue.Options // Queue name and timeouts
	Now       func() time.Time
}

var _ queue.QueueClient = (*RedisActions)(nil)

// NewClient creates a redis client from a redis:// or rediss:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.MaxRetries = 3
	return redis.NewClient(opts), nil
}

// New creates a new RedisActions instance.
func New(client *redis.Client, keyPrefix string, opts queue.Options) *RedisActions {
	opts = opts.WithDefaults()
	return &RedisActions{Client: client, KeyPrefix: keyPrefix, Config: &opts, Now: time.Now}
}

func (q *RedisActions) listKey() string     { return q.KeyPrefix + q.Config.QueueName }
func (q *RedisActions) metaKey() string     { return q.listKey() + ":meta" }
func (q *RedisActions) inflightKey() string { return q.listKey() + ":inflight" }
func (q *RedisActions) msgKey(id string) string {
	return q.listKey() + ":msg:" + id
}

// CreateIfNotExists writes the meta hash once; later calls leave it untouched.
func (q *RedisActions) CreateIfNotExists(ctx context.Context) error {
	created, err := q.Client.HSetNX(ctx, q.metaKey(), "created", q.Now().UnixMilli()).Result()
	if err != nil {
		return &queue.ConnectivityError{Op: "create", Err: err}
	}
	if created {
		logger.Info("created redis queue %s", q.listKey())
	}
	return nil
}

// Send stores the message hash and appends its id to the list.
func (q *RedisActions) Send(ctx context.Context, body string) (queue.SendReceipt, error) {
	if err := q.checkExists(ctx, "send"); err != nil {
		return queue.SendReceipt{}, err
	}

	id := uuid.NewString()
	now := q.Now()
	expires := now.Add(q.Config.MessageTTL)
	key := q.msgKey(id)

	_, err := q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldBody, body,
			fieldInserted, now.UnixMilli(),
			fieldExpires, expires.UnixMilli(),
			fieldDequeue, 0,
		)
		pipe.PExpire(ctx, key, q.Config.MessageTTL)
		pipe.RPush(ctx, q.listKey(), id)
		return nil
	})
	if err != nil {
		return queue.SendReceipt{}, &queue.ConnectivityError{Op: "send", Err: err}
	}

	return queue.SendReceipt{
		MessageID:  id,
		InsertedOn: time.UnixMilli(now.UnixMilli()),
		ExpiresOn:  time.UnixMilli(expires.UnixMilli()),
	}, nil
}

// Peek reads the head of the list without moving it.
func (q *RedisActions) Peek(ctx context.Context) (*queue.PeekedMessage, error) {
	if err := q.checkExists(ctx, "peek"); err != nil {
		return nil, err
	}
	if err := q.restoreExpired(ctx); err != nil {
		return nil, &queue.ConnectivityError{Op: "peek", Err: err}
	}

	for {
		id, err := q.Client.LIndex(ctx, q.listKey(), 0).Result()
		if errors.Is(err, redis.Nil) {
			return nil, queue.ErrEmptyQueue
		}
		if err != nil {
			return nil, &queue.ConnectivityError{Op: "peek", Err: err}
		}

		fields, err := q.Client.HGetAll(ctx, q.msgKey(id)).Result()
		if err != nil {
			return nil, &queue.ConnectivityError{Op: "peek", Err: err}
		}
		if len(fields) == 0 {
			// message hash expired, drop the dangling id
			if err := q.Client.LRem(ctx, q.listKey(), 1, id).Err(); err != nil {
				return nil, &queue.ConnectivityError{Op: "peek", Err: err}
			}
			continue
		}

		return &queue.PeekedMessage{
			MessageID:  id,
			InsertedOn: millis(fields[fieldInserted]),
			ExpiresOn:  millis(fields[fieldExpires]),
			Body:       fields[fieldBody],
		}, nil
	}
}

// receiveScript moves the head id into the in-flight set and stamps the new receipt in one step,
// so an id is always in the list or in the in-flight set. Ids whose hash expired are dropped.
//
//	KEYS[1] list, KEYS[2] in-flight set
//	ARGV[1] message key prefix, ARGV[2] pop receipt, ARGV[3] visible-again unix ms
var receiveScript = redis.NewScript(`
while true do
	local id = redis.call('LPOP', KEYS[1])
	if not id then
		return false
	end
	local key = ARGV[1] .. id
	if redis.call('EXISTS', key) == 1 then
		redis.call('HSET', key, '` + fieldReceipt + `', ARGV[2])
		local n = redis.call('HINCRBY', key, '` + fieldDequeue + `', 1)
		redis.call('ZADD', KEYS[2], ARGV[3], id)
		local f = redis.call('HMGET', key, '` + fieldBody + `', '` + fieldInserted + `', '` + fieldExpires + `')
		return {id, f[1] or '', f[2] or '', f[3] or '', n}
	end
end
`)

// Receive pops the head id into the in-flight set and issues a new pop receipt.
func (q *RedisActions) Receive(ctx context.Context) (*queue.ReceivedMessage, error) {
	if err := q.checkExists(ctx, "receive"); err != nil {
		return nil, err
	}
	if err := q.restoreExpired(ctx); err != nil {
		return nil, &queue.ConnectivityError{Op: "receive", Err: err}
	}

	receipt := uuid.NewString()
	visible := q.Now().Add(q.Config.VisibilityTimeout)
	res, err := receiveScript.Run(ctx, q.Client,
		[]string{q.listKey(), q.inflightKey()},
		q.msgKey(""), receipt, visible.UnixMilli(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, queue.ErrEmptyQueue
	}
	if err != nil {
		return nil, &queue.ConnectivityError{Op: "receive", Err: err}
	}
	if len(res) != 5 {
		return nil, &queue.ConnectivityError{Op: "receive", Err: fmt.Errorf("unexpected script reply of %d values", len(res))}
	}

	dequeue, _ := res[4].(int64)
	return &queue.ReceivedMessage{
		MessageID:     str(res[0]),
		PopReceipt:    receipt,
		InsertedOn:    millis(str(res[2])),
		ExpiresOn:     millis(str(res[3])),
		NextVisibleOn: time.UnixMilli(visible.UnixMilli()),
		DequeueCount:  dequeue,
		Body:          str(res[1]),
	}, nil
}

// Delete removes an in-flight message when the pop receipt matches.
func (q *RedisActions) Delete(ctx context.Context, messageID, popReceipt string) error {
	key := q.msgKey(messageID)
	stored, err := q.Client.HGet(ctx, key, fieldReceipt).Result()
	if errors.Is(err, redis.Nil) {
		return queue.ErrMessageNotFound
	}
	if err != nil {
		return &queue.ConnectivityError{Op: "delete", Err: err}
	}
	if stored == "" || stored != popReceipt {
		return queue.ErrMessageNotFound
	}

	_, err = q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, q.inflightKey(), messageID)
		return nil
	})
	if err != nil {
		return &queue.ConnectivityError{Op: "delete", Err: err}
	}
	return nil
}

// Close closes the redis client.
func (q *RedisActions) Close() error {
	return q.Client.Close()
}

func (q *RedisActions) checkExists(ctx context.Context, op string) error {
	n, err := q.Client.Exists(ctx, q.metaKey()).Result()
	if err != nil {
		return &queue.ConnectivityError{Op: op, Err: err}
	}
	if n == 0 {
		return queue.ErrQueueNotFound
	}
	return nil
}

// restoreExpired moves in-flight ids whose visibility timeout elapsed back to the head of the list.
func (q *RedisActions) restoreExpired(ctx context.Context) error {
	ids, err := q.Client.ZRangeByScore(ctx, q.inflightKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.Now().UnixMilli(), 10),
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	_, err = q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// newest first so the oldest delivery ends up at the head
		for i := len(ids) - 1; i >= 0; i-- {
			pipe.LPush(ctx, q.listKey(), ids[i])
			pipe.HDel(ctx, q.msgKey(ids[i]), fieldReceipt)
		}
		pipe.ZRem(ctx, q.inflightKey(), members...)
		return nil
	})
	if err == nil {
		logger.Info("%d message(s) visible again in %s", len(ids), q.listKey())
	}
	return err
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func millis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
