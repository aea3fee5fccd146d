package jobqueue

import (
	"strconv"
	"strings"
)

type keys struct {
	base string
}

func newKeys(prefix, name string) keys {
	return keys{base: prefix + ":" + name + ":"}
}

func (k keys) job(id string) string { return k.base + id }
func (k keys) id() string           { return k.base + "id" }
func (k keys) wait() string         { return k.base + "wait" }
func (k keys) active() string       { return k.base + "active" }
func (k keys) delayed() string      { return k.base + "delayed" }
func (k keys) completed() string    { return k.base + "completed" }
func (k keys) failed() string       { return k.base + "failed" }
func (k keys) pattern() string      { return k.base + "*" }

// JobIDFromKey extracts the job id from a job hash key of the form
// {prefix}:{name}:{id}. It reports false for keys with a different number of
// segments or a last segment that is not a positive integer.
func JobIDFromKey(key string) (string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return "", false
	}
	n, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || n <= 0 {
		return "", false
	}
	return parts[2], true
}
