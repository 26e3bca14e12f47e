package queue

import "github.com/redis/go-redis/v9"

// All multi-step queue mutations run as server-side scripts so that
// concurrent consumer processes never observe a half-applied move.

// promoteDelayedScript moves every due envelope from the delayed staging zset
// (KEYS[1]) into the target queue list (KEYS[2]). ARGV[1] is the current time
// in milliseconds. Returns the number of promoted envelopes.
var promoteDelayedScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for i = 1, #due do
    redis.call('LPUSH', KEYS[2], due[i])
    redis.call('ZREM', KEYS[1], due[i])
end
return #due
`)

// removeProcessingScript removes every in-flight marker for one triage from
// the processing set (KEYS[1]). Markers are "triageId:timestampMillis";
// ARGV[1] is "triageId:". Returns the number of removed markers.
var removeProcessingScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local prefix = ARGV[1]
local removed = 0
for i = 1, #members do
    if string.sub(members[i], 1, #prefix) == prefix then
        redis.call('SREM', KEYS[1], members[i])
        removed = removed + 1
    end
end
return removed
`)

// cleanupProcessingScript removes in-flight markers whose timestamp is older
// than the cutoff (ARGV[1], milliseconds). Markers younger than the cutoff
// are untouched. Returns the number of removed markers.
var cleanupProcessingScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local cutoff = tonumber(ARGV[1])
local removed = 0
for i = 1, #members do
    local ts = tonumber(string.match(members[i], '([^:]+)$'))
    if ts and ts < cutoff then
        redis.call('SREM', KEYS[1], members[i])
        removed = removed + 1
    end
end
return removed
`)
