package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueUnavailable wraps every store-level failure. The gateway never
// retries on its own; the consumer pool owns the backoff for store faults.
var ErrQueueUnavailable = errors.New("queue store unavailable")

// Priority scoring: lower score pops first. High-priority envelopes are
// shifted a fixed offset earlier, and each past retry shifts a smaller
// offset, so already-retried urgent jobs are served soonest. The formula is
// a bias, not a total order; see Stats for observability instead.
const (
	priorityOffsetMillis = 1_000_000
	retryOffsetMillis    = 10_000
)

// Stats is a point-in-time count of every queue and bookkeeping set.
type Stats struct {
	Pending    int64 `json:"pending"`
	Priority   int64 `json:"priority"`
	Retry      int64 `json:"retry"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	DeadLetter int64 `json:"dead_letter"`
}

// Queue is the gateway contract over the shared queue store. All operations
// are side-effecting and safe to retry from the caller's perspective.
// Implementations must be safe for concurrent use.
type Queue interface {
	Enqueue(ctx context.Context, queueName string, env *Envelope) error
	EnqueueDelayed(ctx context.Context, queueName string, env *Envelope, delay time.Duration) error
	EnqueuePriority(ctx context.Context, env *Envelope) error
	EnqueueDeadLetter(ctx context.Context, env *Envelope, reason string) error

	Receive(ctx context.Context, queueName string) (*Envelope, error)
	ReceiveBlocking(ctx context.Context, queueName string, timeout time.Duration) (*Envelope, error)
	ReceiveBatch(ctx context.Context, queueName string, count int) ([]*Envelope, error)
	ReceivePriorityBatch(ctx context.Context, count int) ([]*Envelope, error)

	Ack(ctx context.Context, env *Envelope) error
	Nack(ctx context.Context, env *Envelope) error

	MarkProcessing(ctx context.Context, env *Envelope) error
	MarkCompleted(ctx context.Context, env *Envelope) error
	MarkFailed(ctx context.Context, env *Envelope, reason string) error

	CleanupProcessing(ctx context.Context, staleAfter time.Duration) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
}

// RedisQueue implements Queue on go-redis/v9.
type RedisQueue struct {
	client     *redis.Client
	maxRetries int
}

// NewRedisQueue creates a RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string, maxRetries int) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts), maxRetries: maxRetries}, nil
}

// NewRedisQueueWithClient wraps an existing client; used by tests.
func NewRedisQueueWithClient(client *redis.Client, maxRetries int) *RedisQueue {
	return &RedisQueue{client: client, maxRetries: maxRetries}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Enqueue pushes the envelope onto the tail of a FIFO queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, env *Envelope) error {
	raw, err := env.marshal()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, queueName, raw).Err(); err != nil {
		return storeErr("enqueue", err)
	}
	return nil
}

// EnqueueDelayed stages the envelope in the queue's delayed zset, scored by
// its ready time. Receives on the queue promote due envelopes atomically, so
// the envelope always exists in exactly one place.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, queueName string, env *Envelope, delay time.Duration) error {
	raw, err := env.marshal()
	if err != nil {
		return err
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, DelayedKey(queueName), redis.Z{Score: readyAt, Member: raw}).Err(); err != nil {
		return storeErr("enqueue delayed", err)
	}
	return nil
}

// EnqueuePriority inserts the envelope into the priority zset.
func (q *RedisQueue) EnqueuePriority(ctx context.Context, env *Envelope) error {
	raw, err := env.marshal()
	if err != nil {
		return err
	}
	if err := q.client.ZAdd(ctx, PriorityQueue, redis.Z{Score: q.priorityScore(env), Member: raw}).Err(); err != nil {
		return storeErr("enqueue priority", err)
	}
	return nil
}

func (q *RedisQueue) priorityScore(env *Envelope) float64 {
	score := float64(time.Now().UnixMilli())
	if env.IsHighPriority() {
		score -= priorityOffsetMillis
	}
	score -= float64(env.RetryCount * retryOffsetMillis)
	return score
}

// EnqueueDeadLetter appends the envelope to the DLQ and records an audit
// entry with the failure reason.
func (q *RedisQueue) EnqueueDeadLetter(ctx context.Context, env *Envelope, reason string) error {
	raw, err := env.marshal()
	if err != nil {
		return err
	}
	entry := fmt.Sprintf("%s:%s:%s", env.TriageID, time.Now().UTC().Format(time.RFC3339), reason)

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, DLQ, raw)
	pipe.SAdd(ctx, DLQReasonsKey(), entry)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("enqueue dead letter", err)
	}
	return nil
}

// Receive pops one envelope from the head of a FIFO queue, promoting due
// delayed envelopes first. Returns (nil, nil) when the queue is empty.
func (q *RedisQueue) Receive(ctx context.Context, queueName string) (*Envelope, error) {
	if err := q.promoteDelayed(ctx, queueName); err != nil {
		return nil, err
	}
	raw, err := q.client.RPop(ctx, queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("receive", err)
	}
	return unmarshalEnvelope(raw)
}

// ReceiveBlocking waits up to timeout for an envelope. Delayed envelopes that
// become due during the wait are only promoted on the next call.
func (q *RedisQueue) ReceiveBlocking(ctx context.Context, queueName string, timeout time.Duration) (*Envelope, error) {
	if err := q.promoteDelayed(ctx, queueName); err != nil {
		return nil, err
	}
	res, err := q.client.BRPop(ctx, timeout, queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("receive blocking", err)
	}
	// BRPOP returns [key, value].
	return unmarshalEnvelope(res[1])
}

// ReceiveBatch pops up to count envelopes from a FIFO queue. It never blocks
// and returns however many envelopes exist, possibly none.
func (q *RedisQueue) ReceiveBatch(ctx context.Context, queueName string, count int) ([]*Envelope, error) {
	if count <= 0 {
		return nil, nil
	}
	if err := q.promoteDelayed(ctx, queueName); err != nil {
		return nil, err
	}
	raws, err := q.client.RPopCount(ctx, queueName, count).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("receive batch", err)
	}
	return unmarshalAll(raws)
}

// ReceivePriorityBatch pops up to count envelopes from the priority zset,
// lowest score first.
func (q *RedisQueue) ReceivePriorityBatch(ctx context.Context, count int) ([]*Envelope, error) {
	if count <= 0 {
		return nil, nil
	}
	members, err := q.client.ZPopMin(ctx, PriorityQueue, int64(count)).Result()
	if err != nil {
		return nil, storeErr("receive priority batch", err)
	}
	raws := make([]string, 0, len(members))
	for _, m := range members {
		raws = append(raws, m.Member.(string))
	}
	return unmarshalAll(raws)
}

// Ack removes the envelope's in-flight marker; terminal success.
func (q *RedisQueue) Ack(ctx context.Context, env *Envelope) error {
	return q.removeProcessing(ctx, env)
}

// Nack removes the in-flight marker and either re-enqueues the envelope on
// the retry queue with exponential backoff or dead-letters it once the retry
// budget is spent.
func (q *RedisQueue) Nack(ctx context.Context, env *Envelope) error {
	if err := q.removeProcessing(ctx, env); err != nil {
		return err
	}
	if env.CanRetry(q.maxRetries) {
		return q.EnqueueDelayed(ctx, RetryQueue, env.WithIncrementedRetry(), env.RetryDelay())
	}
	return q.EnqueueDeadLetter(ctx, env, "max retries exceeded")
}

// MarkProcessing records an in-flight marker "triageId:timestampMillis" for
// stuck-job detection. Bookkeeping only; the persisted triage stays the
// source of truth.
func (q *RedisQueue) MarkProcessing(ctx context.Context, env *Envelope) error {
	entry := fmt.Sprintf("%s:%d", env.TriageID, time.Now().UnixMilli())
	if err := q.client.SAdd(ctx, processingSet, entry).Err(); err != nil {
		return storeErr("mark processing", err)
	}
	return nil
}

// MarkCompleted clears the in-flight marker and records the triage id in the
// completed audit set.
func (q *RedisQueue) MarkCompleted(ctx context.Context, env *Envelope) error {
	if err := q.removeProcessing(ctx, env); err != nil {
		return err
	}
	if err := q.client.SAdd(ctx, completedSet, env.TriageID).Err(); err != nil {
		return storeErr("mark completed", err)
	}
	return nil
}

// MarkFailed clears the in-flight marker and records an audit entry with the
// failure reason.
func (q *RedisQueue) MarkFailed(ctx context.Context, env *Envelope, reason string) error {
	if err := q.removeProcessing(ctx, env); err != nil {
		return err
	}
	entry := fmt.Sprintf("%s:%s:%s", env.TriageID, time.Now().UTC().Format(time.RFC3339), reason)
	if err := q.client.SAdd(ctx, failedSet, entry).Err(); err != nil {
		return storeErr("mark failed", err)
	}
	return nil
}

// CleanupProcessing removes in-flight markers older than staleAfter and
// returns how many were removed. It only clears bookkeeping; reconciling the
// orphaned triages is a separate concern driven by their own PROCESSING
// timestamps.
func (q *RedisQueue) CleanupProcessing(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleAfter).UnixMilli()
	removed, err := cleanupProcessingScript.Run(ctx, q.client,
		[]string{processingSet}, strconv.FormatInt(cutoff, 10)).Int64()
	if err != nil {
		return 0, storeErr("cleanup processing", err)
	}
	return removed, nil
}

// Stats returns per-queue and per-set counts for observability.
func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, MainQueue)
	priority := pipe.ZCard(ctx, PriorityQueue)
	retry := pipe.LLen(ctx, RetryQueue)
	retryDelayed := pipe.ZCard(ctx, DelayedKey(RetryQueue))
	processing := pipe.SCard(ctx, processingSet)
	completed := pipe.SCard(ctx, completedSet)
	failed := pipe.SCard(ctx, failedSet)
	deadLetter := pipe.LLen(ctx, DLQ)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storeErr("stats", err)
	}
	return &Stats{
		Pending:    pending.Val(),
		Priority:   priority.Val(),
		Retry:      retry.Val() + retryDelayed.Val(),
		Processing: processing.Val(),
		Completed:  completed.Val(),
		Failed:     failed.Val(),
		DeadLetter: deadLetter.Val(),
	}, nil
}

// IncrWithExpiry atomically increments a counter and refreshes its TTL; used
// by the API rate limiter.
func (q *RedisQueue) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := q.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storeErr("incr with expiry", err)
	}
	return incr.Val(), nil
}

func (q *RedisQueue) promoteDelayed(ctx context.Context, queueName string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	err := promoteDelayedScript.Run(ctx, q.client,
		[]string{DelayedKey(queueName), queueName}, now).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("promote delayed", err)
	}
	return nil
}

func (q *RedisQueue) removeProcessing(ctx context.Context, env *Envelope) error {
	err := removeProcessingScript.Run(ctx, q.client,
		[]string{processingSet}, env.TriageID+":").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("remove processing marker", err)
	}
	return nil
}

func unmarshalAll(raws []string) ([]*Envelope, error) {
	envs := make([]*Envelope, 0, len(raws))
	for _, raw := range raws {
		env, err := unmarshalEnvelope(raw)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrQueueUnavailable, op, err)
}

var _ Queue = (*RedisQueue)(nil)
