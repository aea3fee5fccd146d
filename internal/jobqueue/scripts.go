package jobqueue

import "github.com/redis/go-redis/v9"

// KEYS: delayed, wait. ARGV: now (ms), limit.
var promoteScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call("ZREM", KEYS[1], id)
	redis.call("LPUSH", KEYS[2], id)
end
return #ids
`)

// KEYS: job, active, target set. ARGV: id, finished (ms), failed reason.
var finishScript = redis.NewScript(`
redis.call("LREM", KEYS[2], 0, ARGV[1])
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
redis.call("HSET", KEYS[1], "finishedOn", ARGV[2])
if ARGV[3] ~= "" then
	redis.call("HSET", KEYS[1], "failedReason", ARGV[3])
	redis.call("HINCRBY", KEYS[1], "attemptsMade", 1)
end
return 1
`)

// KEYS: job, wait, active, delayed, completed, failed. ARGV: id.
var removeScript = redis.NewScript(`
redis.call("LREM", KEYS[2], 0, ARGV[1])
redis.call("LREM", KEYS[3], 0, ARGV[1])
redis.call("ZREM", KEYS[4], ARGV[1])
redis.call("ZREM", KEYS[5], ARGV[1])
redis.call("ZREM", KEYS[6], ARGV[1])
return redis.call("DEL", KEYS[1])
`)

// KEYS: finished set. ARGV: cutoff (ms), job key prefix.
var cleanScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, id in ipairs(ids) do
	redis.call("DEL", ARGV[2] .. id)
	redis.call("ZREM", KEYS[1], id)
end
return #ids
`)

// KEYS: active, wait.
var recoverScript = redis.NewScript(`
local n = 0
while redis.call("LMOVE", KEYS[1], KEYS[2], "RIGHT", "RIGHT") do
	n = n + 1
end
return n
`)

// KEYS: active, wait. ARGV: id.
var requeueScript = redis.NewScript(`
if redis.call("LREM", KEYS[1], 0, ARGV[1]) > 0 then
	redis.call("RPUSH", KEYS[2], ARGV[1])
	return 1
end
return 0
`)
