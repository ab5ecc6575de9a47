package file

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trading-forecaster/internal/model"
)

func TestStore_SaveLoad(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "models"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := s.Load(ctx, "envelope_BTC_USD_bs4_hl2"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Save(ctx, "envelope_BTC_USD_bs4_hl2", []byte("v1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "envelope_BTC_USD_bs4_hl2", []byte("v2")); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, err := s.Load(ctx, "envelope_BTC_USD_bs4_hl2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, []byte("v2")) {
		t.Errorf("loaded %q, want v2", got)
	}

	// no temp files left behind
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "envelope_BTC_USD_bs4_hl2.model" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected directory contents: %v", names)
	}
}

func TestStore_KeysAreIsolated(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s.Save(ctx, "a", []byte("A"))
	s.Save(ctx, "b", []byte("B"))

	a, _ := s.Load(ctx, "a")
	b, _ := s.Load(ctx, "b")
	if string(a) != "A" || string(b) != "B" {
		t.Errorf("got a=%q b=%q", a, b)
	}
}

func TestStore_InvalidKey(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "..", "../escape", `dir\file`} {
		if err := s.Save(context.Background(), key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Save(%q): expected ErrInvalidKey, got %v", key, err)
		}
		if _, err := s.Load(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Load(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, "k", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
