package main

import (
	"path/filepath"
	"testing"
)

func TestResolveRuntimeDBFlagWins(t *testing.T) {
	t.Setenv("STRAND_CONFIG", "")
	t.Setenv("STRAND_DB_PATH", "/env/strand.db")

	dbPath := filepath.Join(t.TempDir(), "flag.db")
	rt, err := resolveRuntime("", dbPath, "strand", true)
	if err != nil {
		t.Fatalf("resolveRuntime() error = %v", err)
	}
	if rt.cfg.Database.Path != dbPath {
		t.Fatalf("expected flag db path to win, got %q", rt.cfg.Database.Path)
	}
}

func TestResolveRuntimeEnvDBFallback(t *testing.T) {
	t.Setenv("STRAND_CONFIG", "")
	t.Setenv("STRAND_DB_PATH", "/env/strand.db")

	rt, err := resolveRuntime("", "", "strand", true)
	if err != nil {
		t.Fatalf("resolveRuntime() error = %v", err)
	}
	if rt.cfg.Database.Path != "/env/strand.db" {
		t.Fatalf("expected env db path, got %q", rt.cfg.Database.Path)
	}
}

func TestResolveRuntimeDefaultsAppName(t *testing.T) {
	t.Setenv("STRAND_CONFIG", "")
	t.Setenv("STRAND_DB_PATH", "")

	rt, err := resolveRuntime("", "", "  ", false)
	if err != nil {
		t.Fatalf("resolveRuntime() error = %v", err)
	}
	if rt.appName != "strand" {
		t.Fatalf("expected default app name, got %q", rt.appName)
	}
	if rt.cfg.Database.Path != rt.paths.DBPath {
		t.Fatalf("expected platform db path, got %q", rt.cfg.Database.Path)
	}
}

func TestRootCmdWiring(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "paths": false}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing %s subcommand", name)
		}
	}
}
