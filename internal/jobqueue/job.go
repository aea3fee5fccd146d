package jobqueue

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Job is a snapshot of a job hash.
type Job struct {
	ID           string
	Data         []byte
	Delay        time.Duration
	Timestamp    time.Time
	ProcessedOn  time.Time
	FinishedOn   time.Time
	AttemptsMade int
	FailedReason string

	queue *Queue
}

// Key returns the Redis key of the job hash.
func (j *Job) Key() string {
	return j.queue.keys.job(j.ID)
}

// Remove deletes the job from the queue. Removing a job that no longer exists
// is not an error.
func (j *Job) Remove(ctx context.Context) error {
	return j.queue.remove(ctx, j.ID)
}

func jobFromHash(q *Queue, id string, fields map[string]string) *Job {
	job := &Job{
		ID:           id,
		Data:         []byte(fields["data"]),
		FailedReason: fields["failedReason"],
		queue:        q,
	}
	job.Delay = time.Duration(parseInt(fields["delay"])) * time.Millisecond
	job.Timestamp = parseMillis(fields["timestamp"])
	job.ProcessedOn = parseMillis(fields["processedOn"])
	job.FinishedOn = parseMillis(fields["finishedOn"])
	job.AttemptsMade = int(parseInt(fields["attemptsMade"]))
	return job
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseMillis(s string) time.Time {
	ms := parseInt(s)
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (j *Job) String() string {
	return fmt.Sprintf("job %s (delay %s)", j.ID, j.Delay)
}
