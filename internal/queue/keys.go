package queue

// Redis key names for the triage queues and bookkeeping sets.
const (
	MainQueue     = "triage:queue"
	PriorityQueue = "triage:priority:queue"
	RetryQueue    = "triage:retry:queue"
	DLQ           = "triage:dlq"

	processingSet = "triage:processing"
	completedSet  = "triage:completed"
	failedSet     = "triage:failed"
)

// DelayedKey is the staging zset for envelopes scheduled into queue after a
// delay, scored by their ready timestamp.
func DelayedKey(queue string) string {
	return queue + ":delayed"
}

// DLQReasonsKey holds the audit entries recorded alongside dead-lettered
// envelopes.
func DLQReasonsKey() string {
	return DLQ + ":reasons"
}

// RateLimitKey is the per-client request counter used by the API rate
// limiter.
func RateLimitKey(client string) string {
	return "ratelimit:" + client
}
