package appserver

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// buildTestBinary builds the fake application server used for subprocess
// tests and returns its path.
func buildTestBinary(t *testing.T) string {
	t.Helper()
	tdir := t.TempDir()
	bin := filepath.Join(tdir, "fake_appserver")
	cmd := exec.Command("go", "build", "-o", bin, "./testdata/fake_appserver.go")
	cmd.Dir = "." // package dir internal/appserver
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build fake appserver: %v: %s", err, string(out))
	}
	return bin
}

// createAppRoot lays out a minimal valid application root (bootstrap file plus
// public/ with its entrypoint) and returns its path.
func createAppRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "artisan"), []byte("#!/usr/bin/env php\n"), 0o755); err != nil {
		t.Fatalf("write artisan: %v", err)
	}
	pub := filepath.Join(root, "public")
	if err := os.Mkdir(pub, 0o755); err != nil {
		t.Fatalf("mkdir public: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pub, "index.php"), []byte("<?php echo 'ok';\n"), 0o644); err != nil {
		t.Fatalf("write index.php: %v", err)
	}
	return root
}

// testManager constructs a manager against a fresh app root, spawning the
// fake server binary instead of php.
func testManager(t *testing.T, cfg ManagerConfig) *ServerManager {
	t.Helper()
	if cfg.AppRoot == "" {
		cfg.AppRoot = createAppRoot(t)
	}
	if cfg.ServerBin == "" {
		cfg.ServerBin = buildTestBinary(t)
	}
	if cfg.Port == 0 {
		cfg.Port = workerPortOffset(33000)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}
