// Package jobqueue implements a durable delayed job queue on Redis.
//
// # Keyspace
//
// All keys of a queue share the prefix {prefix}:{name}:
//
//	{prefix}:{name}:id         - INCR counter assigning numeric job ids
//	{prefix}:{name}:{id}       - job hash (data, opts, timestamp, delay, ...)
//	{prefix}:{name}:delayed    - ZSET of delayed job ids scored by due time (ms)
//	{prefix}:{name}:wait       - LIST of job ids ready to run
//	{prefix}:{name}:active     - LIST of job ids being processed
//	{prefix}:{name}:completed  - ZSET of finished job ids scored by finish time
//	{prefix}:{name}:failed     - ZSET of failed job ids scored by finish time
//
// Only job hashes have a numeric last segment, which is how callers tell them
// apart from the bookkeeping keys (see JobIDFromKey).
//
// # Job Lifecycle
//
//  1. Add: id assigned, hash written, id pushed to wait or delayed
//  2. Promote: due delayed ids move to wait
//  3. Process: id moved from wait to active, handler runs
//  4. Finish: id moved to completed or failed, hash kept until Clean
//
// Remove deletes a job from every structure and is a no-op for a job that is
// already gone. A job that is removed while active is not resurrected when its
// handler finishes.
package jobqueue
