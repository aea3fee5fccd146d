package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func noop(context.Context, []json.RawMessage) error { return nil }

func TestRegistryRegister(t *testing.T) {
	tc := []struct {
		name    string
		method  string
		fn      HandlerFunc
		wantErr bool
	}{
		{name: "valid handler", method: "ping", fn: noop},
		{name: "empty name", method: "", fn: noop, wantErr: true},
		{name: "nil handler", method: "pong", fn: nil, wantErr: true},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(test.method, test.fn)
			if test.wantErr {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := r.Lookup(test.method); !ok {
				t.Errorf("handler %q not found after register", test.method)
			}
		})
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("ping", noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Register("ping", noop)
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Errorf("second register error = %v, want %v", err, ErrDuplicateHandler)
	}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"pong", "ping", "notify"} {
		if err := r.Register(name, noop); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if diff := cmp.Diff([]string{"notify", "ping", "pong"}, r.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Errorf("unexpected handler for missing method")
	}
}
