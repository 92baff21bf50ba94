package config

import (
	"os"
	"testing"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestSaveLoadRoundtrip(t *testing.T) {
	chdirTemp(t)
	want := &Config{
		ClusterBusAddr:  "node-1:7777",
		StateDir:        "./schemat/state",
		Rings:           []string{"bootstrap", "local"},
		RefreshInterval: 30,
	}
	if err := Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ClusterBusAddr != want.ClusterBusAddr || len(got.Rings) != len(want.Rings) {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsMissingRings(t *testing.T) {
	c := &Config{RefreshInterval: 10}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for empty rings")
	}
}

func TestValidateRejectsNonPositiveInterval(t *testing.T) {
	c := &Config{Rings: []string{"bootstrap"}, RefreshInterval: 0}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for non-positive refresh interval")
	}
}

func TestWorkerIDDefaultsToZero(t *testing.T) {
	os.Unsetenv("WORKER_ID")
	id, err := WorkerID()
	if err != nil || id != 0 {
		t.Fatalf("expected (0, nil), got (%d, %v)", id, err)
	}
}

func TestWorkerIDParsesEnv(t *testing.T) {
	t.Setenv("WORKER_ID", "3")
	id, err := WorkerID()
	if err != nil || id != 3 {
		t.Fatalf("expected (3, nil), got (%d, %v)", id, err)
	}
}

func TestWorkerIDRejectsNonInteger(t *testing.T) {
	t.Setenv("WORKER_ID", "abc")
	if _, err := WorkerID(); err == nil {
		t.Fatal("expected error for non-integer WORKER_ID")
	}
}

func TestLoadOrInitNodeIDPersists(t *testing.T) {
	chdirTemp(t)
	calls := 0
	gen := func() string { calls++; return "node-abc" }

	first, err := LoadOrInitNodeID(gen)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first != "node-abc" || calls != 1 {
		t.Fatalf("expected generated id on first call, got %q calls=%d", first, calls)
	}

	second, err := LoadOrInitNodeID(gen)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second != "node-abc" || calls != 1 {
		t.Fatalf("expected cached id without regenerating, got %q calls=%d", second, calls)
	}
}
