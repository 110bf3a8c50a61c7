package memstore

import (
	"context"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Save(ctx, "tasks/1", record{Name: "alpha", Count: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var got record
	ok, err := s.Load(ctx, "tasks/1", &got)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}
	if got.Name != "alpha" || got.Count != 3 {
		t.Errorf("got %+v, want {alpha 3}", got)
	}
}

func TestLoadMissingKey(t *testing.T) {
	s := New()

	var got record
	ok, err := s.Load(context.Background(), "absent", &got)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing key")
	}
	if got.Name != "" {
		t.Errorf("destination mutated on miss: %+v", got)
	}
}

func TestKeysPrefix(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, k := range []string{"tasks/1", "tasks/2", "metrics"} {
		if err := s.Save(ctx, k, record{}); err != nil {
			t.Fatalf("Save %s: %v", k, err)
		}
	}

	keys, err := s.Keys(ctx, "tasks/")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("got %d keys, want 2: %v", len(keys), keys)
	}
}
