// Package schedule turns task rules into delays.
//
// A rule is either a cron expression or an absolute timestamp. ComputeDelay
// evaluates a rule against a reference instant and is a pure function of its
// inputs, so recurring tasks can re-derive their delay on every re-arm.
// NextRunTimesAfter previews the instants a rule will fire at.
package schedule
