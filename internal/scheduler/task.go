package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Task is the unit of schedulable work. Its JSON form is the payload stored
// in the job queue.
type Task struct {
	Method   string            `json:"method"`
	Params   []json.RawMessage `json:"params"`
	Rule     string            `json:"rule,omitempty"`
	UniqueID string            `json:"uniqueID,omitempty"`
}

// Params encodes values as handler parameters.
func Params(values ...any) ([]json.RawMessage, error) {
	params := make([]json.RawMessage, 0, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode param %d: %w", i, err)
		}
		params = append(params, raw)
	}
	return params, nil
}

// PendingEntry is the store-visible projection of a queued task: the job
// hash fields annotated with the key they were read from.
type PendingEntry struct {
	Key    string
	JobID  string
	Fields map[string]string
}

var errNoPayload = errors.New("entry has no payload")

// Task decodes the task stored in the entry.
func (e PendingEntry) Task() (Task, error) {
	data, ok := e.Fields["data"]
	if !ok || data == "" {
		return Task{}, errNoPayload
	}
	var task Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return Task{}, fmt.Errorf("failed to decode entry %s: %w", e.Key, err)
	}
	return task, nil
}

// Receipt describes an admitted task.
type Receipt struct {
	JobID string
	Key   string
	Delay time.Duration
}
