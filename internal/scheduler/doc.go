// Package scheduler is the client role: it admits tasks into a Redis job
// queue with a delay derived from their rule, runs them through registered
// handlers and re-arms recurring ones.
//
// A task published with a uniqueID replaces every pending task that shares
// it. The scan-cancel-insert sequence runs under a per-uniqueID advisory lock
// held in Redis, so concurrent publishers serialize and the last publish wins.
//
// Re-arming a recurring task happens inside the firing job, before the job is
// marked complete. There is no durable checkpoint between the handler and the
// successor being enqueued: a crash in between ends the recurrence.
package scheduler
