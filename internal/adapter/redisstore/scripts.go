package redisstore

import (
	goredis "github.com/redis/go-redis/v9"
)

// Lua scripts for atomic document writes. Each session lives in a hash with
// a "data" field (JSON) and a "version" field that only these scripts bump,
// which is what makes the compare-and-swap protocol linearizable per key.

// createIfAbsentScript creates the document at version 1 unless the key
// already exists. Returns 1 on success, 0 if the key was taken.
// ARGV: [1]=data
var createIfAbsentScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', '1')
return 1
`)

// compareAndSwapScript replaces the document only if the stored version
// still equals the expected token, bumping the version on success.
// Returns the new version, 0 on a version mismatch, -1 if the key is gone.
// ARGV: [1]=expected_version, [2]=data
var compareAndSwapScript = goredis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if not v then
  return -1
end
if v ~= ARGV[1] then
  return 0
end
local next = tonumber(v) + 1
redis.call('HSET', KEYS[1], 'data', ARGV[2], 'version', tostring(next))
return next
`)
