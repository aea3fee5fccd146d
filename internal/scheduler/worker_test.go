package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/cronrelay/internal/jobqueue"
	"github.com/glizzus/cronrelay/internal/repository"
)

type memoryHistory struct {
	mu      sync.Mutex
	firings []repository.Firing
}

func (m *memoryHistory) Save(_ context.Context, f repository.Firing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firings = append(m.firings, f)
	return nil
}

var _ repository.FiringPersister = (*memoryHistory)(nil)

func newOfflineScheduler(t *testing.T, history repository.FiringPersister) *Scheduler {
	t.Helper()
	firedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return New(nil, Options{
		App:     "test",
		History: history,
		Now:     func() time.Time { return firedAt },
	})
}

func TestHandleUnknownMethodFailsJob(t *testing.T) {
	s := newOfflineScheduler(t, nil)
	err := s.handle(t.Context(), &jobqueue.Job{ID: "1", Data: []byte(`{"method":"missing","params":[]}`)})
	if !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("handle error = %v, want %v", err, ErrUnknownMethod)
	}
}

func TestHandleCorruptPayloadFailsJob(t *testing.T) {
	s := newOfflineScheduler(t, nil)
	if err := s.handle(t.Context(), &jobqueue.Job{ID: "1", Data: []byte(`not json`)}); err == nil {
		t.Errorf("expected error for corrupt payload")
	}
}

func TestHandleCompletesDespiteHandlerFailure(t *testing.T) {
	history := &memoryHistory{}
	s := newOfflineScheduler(t, history)

	var got []json.RawMessage
	if err := s.Register("fail", func(_ context.Context, params []json.RawMessage) error {
		got = params
		return errors.New("handler exploded")
	}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if err := s.Register("panic", func(context.Context, []json.RawMessage) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	err := s.handle(t.Context(), &jobqueue.Job{ID: "7", Data: []byte(`{"method":"fail","params":["a",2],"uniqueID":"u9"}`)})
	if err != nil {
		t.Fatalf("handle returned error: %v", err)
	}
	if len(got) != 2 || string(got[0]) != `"a"` || string(got[1]) != `2` {
		t.Errorf("handler received params %s", got)
	}

	if err := s.handle(t.Context(), &jobqueue.Job{ID: "8", Data: []byte(`{"method":"panic","params":[]}`)}); err != nil {
		t.Fatalf("handle returned error after panic: %v", err)
	}

	history.mu.Lock()
	defer history.mu.Unlock()
	if len(history.firings) != 2 {
		t.Fatalf("recorded %d firings, want 2", len(history.firings))
	}
	first := history.firings[0]
	if first.JobID != "7" || first.Method != "fail" || first.UniqueID != "u9" || first.Error != "handler exploded" || first.App != "test" {
		t.Errorf("unexpected firing record: %+v", first)
	}
	if history.firings[1].Error == "" {
		t.Errorf("panic was not recorded as an error")
	}
}
