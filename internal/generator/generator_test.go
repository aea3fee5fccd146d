package generator_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/glizzus/cronrelay/internal/generator"
)

func TestUUIDV4Generator_Next_Concurrent(t *testing.T) {
	regex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	gen := generator.UUIDV4Generator{}
	assertUniqueConcurrent(t, &gen, func(id string) bool { return regex.MatchString(id) })
}

func TestSequenceGenerator_Next_Concurrent(t *testing.T) {
	regex := regexp.MustCompile(`^token-[1-9][0-9]*$`)
	gen := &generator.SequenceGenerator{Prefix: "token"}
	assertUniqueConcurrent(t, gen, func(id string) bool { return regex.MatchString(id) })
}

func TestSequenceGenerator_Next_Order(t *testing.T) {
	gen := &generator.SequenceGenerator{Prefix: "lock"}
	for _, want := range []string{"lock-1", "lock-2", "lock-3"} {
		got, _ := gen.Next()
		if got != want {
			t.Errorf("Next() = %q, want %q", got, want)
		}
	}
}

func assertUniqueConcurrent(t *testing.T, gen generator.Generator[string], valid func(string) bool) {
	t.Helper()

	var mu sync.Mutex
	seen := make(map[string]struct{})

	total := 20000
	concurrency := 10
	batchSize := total / concurrency

	var wg sync.WaitGroup
	wg.Add(concurrency)

	for range concurrency {
		go func() {
			defer wg.Done()
			for range batchSize {
				id, err := gen.Next()
				if err != nil {
					t.Error("expected no error, got:", err)
					return
				}
				mu.Lock()
				if _, ok := seen[id]; ok {
					mu.Unlock()
					t.Errorf("expected a unique ID, got duplicate: %s", id)
					return
				}
				seen[id] = struct{}{}
				mu.Unlock()

				if !valid(id) {
					t.Errorf("unexpected ID format: %s", id)
					return
				}
			}
		}()
	}

	wg.Wait()
}
