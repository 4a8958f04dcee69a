package appserver

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewRejectsMissingBootstrap(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "public"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, err := New(ManagerConfig{AppRoot: root})
	if err == nil || !IsInvalidAppStructure(err) {
		t.Fatalf("expected InvalidAppStructure, got %v", err)
	}
	if want := filepath.Join(root, "artisan"); !strings.Contains(err.Error(), want) {
		t.Fatalf("error should name %q, got %q", want, err.Error())
	}
}

func TestNewRejectsMissingPublicDir(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "artisan"), []byte("#!"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := New(ManagerConfig{AppRoot: root})
	if err == nil || !IsInvalidAppStructure(err) {
		t.Fatalf("expected InvalidAppStructure, got %v", err)
	}
	if want := filepath.Join(root, "public"); !strings.Contains(err.Error(), want) {
		t.Fatalf("error should name %q, got %q", want, err.Error())
	}
}

func TestNewRejectsMissingEntrypoint(t *testing.T) {
	root := createAppRoot(t)
	if err := os.Remove(filepath.Join(root, "public", "index.php")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err := New(ManagerConfig{AppRoot: root})
	if err == nil || !IsInvalidAppStructure(err) {
		t.Fatalf("expected InvalidAppStructure, got %v", err)
	}
}

func TestNewTrimsTrailingSeparator(t *testing.T) {
	root := createAppRoot(t)
	m, err := New(ManagerConfig{AppRoot: root + string(os.PathSeparator)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.AppRoot() != root {
		t.Fatalf("expected app root %q, got %q", root, m.AppRoot())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	pub := NewMemoryPublisher()
	m := testManager(t, ManagerConfig{StartTimeout: 15 * time.Second, Publisher: pub})
	if m.IsRunning() {
		t.Fatalf("running before start")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.IsRunning() {
		t.Fatalf("not running after start")
	}
	st := m.Status()
	if !st.Running || st.PID == nil || *st.PID <= 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.URL != m.URL() || st.Port != m.Port() {
		t.Fatalf("status disagrees with accessors: %+v", st)
	}
	// the fake server 404s unknown paths; that still proves liveness
	resp, err := http.Get(m.URL() + "/anything")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	// idempotent start: same process
	pid := *st.PID
	if err := m.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	st2 := m.Status()
	if st2.PID == nil || *st2.PID != pid {
		t.Fatalf("second start spawned a new process: %v vs %d", st2.PID, pid)
	}

	if err := m.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.IsRunning() {
		t.Fatalf("running after stop")
	}
	if m.Uptime() != 0 {
		t.Fatalf("expected zero uptime after stop")
	}
	// idempotent stop
	if err := m.Stop(0); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	var names []string
	for _, e := range pub.Events() {
		names = append(names, e.Name)
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"server_start", "server_ready", "server_stop"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing event %q in %v", want, names)
		}
	}
}

func TestStartReassignsOccupiedPort(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	_, port := occupyPort(t)
	m := testManager(t, ManagerConfig{Port: port, StartTimeout: 15 * time.Second})
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.Port() == port {
		t.Fatalf("expected port reassignment away from %d", port)
	}
	if !strings.HasSuffix(m.URL(), strconv.Itoa(m.Port())) {
		t.Fatalf("URL %q does not reflect reassigned port %d", m.URL(), m.Port())
	}
}

func TestStartPrefersRouterScript(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	root := createAppRoot(t)
	router := filepath.Join(root, "server.php")
	if err := os.WriteFile(router, []byte("<?php // router\n"), 0o644); err != nil {
		t.Fatalf("write router: %v", err)
	}
	m := testManager(t, ManagerConfig{AppRoot: root, StartTimeout: 15 * time.Second})
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// the fake server echoes its argv; the router must be the trailing arg
	if !strings.Contains(m.Output(), router) {
		t.Fatalf("expected spawn args to include router %q, output: %q", router, m.Output())
	}
}

func TestStartFailsWhenPublicDirVanishes(t *testing.T) {
	root := createAppRoot(t)
	m := testManager(t, ManagerConfig{AppRoot: root})
	if err := os.RemoveAll(filepath.Join(root, "public")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	err := m.Start()
	if err == nil || !IsPublicDirMissing(err) {
		t.Fatalf("expected PublicDirectoryMissing, got %v", err)
	}
}

func TestStartSpawnFailure(t *testing.T) {
	m := testManager(t, ManagerConfig{ServerBin: "/nonexistent/binary/zzz"})
	err := m.Start()
	if err == nil || !IsServerStartFailed(err) {
		t.Fatalf("expected ServerStartFailed, got %v", err)
	}
	if ProcErrKind(errUnwrap(err)) != ProcSpawnFailed {
		t.Fatalf("expected wrapped spawn failure, got %v", err)
	}
}

func errUnwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return err
}

func TestProcessDiedDuringStartup(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	t.Setenv("FAKE_APPSERVER_MODE", "exit")
	m := testManager(t, ManagerConfig{StartTimeout: 10 * time.Second})
	begin := time.Now()
	err := m.Start()
	if err == nil || !IsProcessDiedDuringStartup(err) {
		t.Fatalf("expected ProcessDiedDuringStartup, got %v", err)
	}
	// early-exit detection must not wait out the full timeout
	if elapsed := time.Since(begin); elapsed > 5*time.Second {
		t.Fatalf("death detection took %s", elapsed)
	}
	if !strings.Contains(err.Error(), "exiting early") {
		t.Fatalf("expected captured output in error, got %q", err.Error())
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	t.Setenv("FAKE_APPSERVER_MODE", "hang")
	m := testManager(t, ManagerConfig{StartTimeout: 700 * time.Millisecond})
	err := m.Start()
	if err == nil || !IsHealthCheckTimeout(err) {
		t.Fatalf("expected HealthCheckTimeout, got %v", err)
	}
	hc := err.(healthCheckTimeoutError)
	if hc.Attempts() < 1 {
		t.Fatalf("expected at least one attempt, got %d", hc.Attempts())
	}
	// the hung process is left for inspection, then cleaned by Stop
	if !m.IsRunning() {
		t.Fatalf("expected process to be left alive for inspection")
	}
	if err := m.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.IsRunning() {
		t.Fatalf("still running after stop")
	}
}

func TestStopEscalatesToSigkill(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	t.Setenv("FAKE_APPSERVER_MODE", "stubborn")
	m := testManager(t, ManagerConfig{StartTimeout: 10 * time.Second})
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := m.Stop(300 * time.Millisecond)
	if err == nil || ProcErrKind(err) != ProcTimeout {
		t.Fatalf("expected timeout-kind error after forced kill, got %v", err)
	}
	if m.IsRunning() {
		t.Fatalf("handle still reports running after stop")
	}
	// the handle is cleared, so a second stop is a clean no-op
	if err := m.Stop(time.Second); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestReadyStatus(t *testing.T) {
	ready := []int{200, 204, 301, 302, 404, 405}
	for _, code := range ready {
		if !readyStatus(code) {
			t.Fatalf("expected %d to count as ready", code)
		}
	}
	notReady := []int{500, 502, 503, 408, 401, 403}
	for _, code := range notReady {
		if readyStatus(code) {
			t.Fatalf("expected %d to not count as ready", code)
		}
	}
}
