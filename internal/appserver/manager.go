package appserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"volttest/internal/common/fsutil"
	"volttest/pkg/types"
)

// readinessEndpoints are probed in order during startup. Any of them answering
// with an informative status proves the listener and app bootstrap are alive;
// the probe paths themselves need not exist in the app under test.
var readinessEndpoints = []string{"/", "/api/health", "/__volttest_health"}

const (
	probeTimeout       = 1 * time.Second
	startupBackoffBase = 100 * time.Millisecond
	startupBackoffCap  = 500 * time.Millisecond
	stopPollInterval   = 100 * time.Millisecond

	// outputTailBytes bounds the captured-output tail attached to errors.
	outputTailBytes = 4096
)

// ServerManager runs and verifies one ephemeral HTTP server for one
// (application root, host, port) triple. At most one live process at a time.
type ServerManager struct {
	mu      sync.Mutex
	appRoot string
	host    string
	port    int
	debug   bool

	serverBin    string
	extraArgs    []string
	startTimeout time.Duration
	stopTimeout  time.Duration
	scanWindow   int

	proc      *ProcessHandle
	startedAt time.Time

	httpClient *http.Client
	publisher  EventPublisher
	log        zerolog.Logger

	// label tags published events; the registry replaces it with the
	// registry key on registration.
	label string
}

// New validates the application root and constructs a ServerManager. The
// bootstrap entry file and the public directory with its HTTP entrypoint must
// exist; a missing piece fails here, before any process is spawned.
func New(cfg ManagerConfig) (*ServerManager, error) {
	cfg.applyDefaults()
	root := strings.TrimRight(cfg.AppRoot, string(os.PathSeparator))
	if root == "" {
		return nil, ErrInvalidAppStructure(cfg.AppRoot)
	}
	if p := filepath.Join(root, bootstrapFile); !fsutil.FileExists(p) {
		return nil, ErrInvalidAppStructure(p)
	}
	pub := filepath.Join(root, publicDirName)
	if !fsutil.DirExists(pub) {
		return nil, ErrInvalidAppStructure(pub)
	}
	if p := filepath.Join(pub, publicEntrypoint); !fsutil.FileExists(p) {
		return nil, ErrInvalidAppStructure(p)
	}

	var logger zerolog.Logger
	switch {
	case cfg.Logger != nil:
		logger = *cfg.Logger
	case cfg.Debug:
		logger = zerolog.New(os.Stderr).With().Timestamp().Str("component", "appserver").Logger()
	default:
		logger = zerolog.Nop()
	}

	return &ServerManager{
		appRoot:      root,
		host:         cfg.Host,
		port:         cfg.Port,
		debug:        cfg.Debug,
		serverBin:    cfg.ServerBin,
		extraArgs:    append([]string(nil), cfg.ExtraArgs...),
		startTimeout: cfg.StartTimeout,
		stopTimeout:  cfg.StopTimeout,
		scanWindow:   cfg.ScanWindow,
		// Intentionally Timeout=0: probes carry per-request contexts with
		// deadlines. Redirects are not followed; a 3xx is already proof of
		// life and following it could leave the app before it is ready.
		httpClient: &http.Client{
			Timeout: 0,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		publisher: cfg.Publisher,
		log:       logger,
		label:     root,
	}, nil
}

// Start spawns the server process and blocks until it answers a readiness
// probe. Idempotent: a second Start while running is a no-op. On a readiness
// failure the partially-alive process is kept for inspection; the caller
// cleans up via Stop.
func (m *ServerManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proc != nil && m.proc.IsRunning() {
		return nil
	}

	// The public directory may have been removed since construction.
	publicDir := filepath.Join(m.appRoot, publicDirName)
	if !fsutil.DirExists(publicDir) {
		return publicDirMissingError{dir: publicDir}
	}

	port, err := findAvailablePort(m.host, m.port, m.scanWindow)
	if err != nil {
		// Worker window exhausted: wide scan from the same base.
		port, err = findAvailablePort(m.host, m.port, fallbackScanWindow)
		if err != nil {
			serverStartFailuresTotal.WithLabelValues("port_exhausted").Inc()
			return err
		}
	}
	if port != m.port {
		m.log.Debug().Int("requested", m.port).Int("assigned", port).Msg("port reassigned")
		m.publish("port_reassigned", map[string]any{"requested": m.port, "assigned": port})
		m.port = port
	}

	args := []string{"-S", net.JoinHostPort(m.host, strconv.Itoa(m.port)), "-t", publicDir}
	if router := filepath.Join(m.appRoot, routerScript); fsutil.FileExists(router) {
		args = append(args, router)
	}
	args = append(args, m.extraArgs...)

	h, err := startProcess(m.serverBin, args, m.appRoot)
	if err != nil {
		serverStartFailuresTotal.WithLabelValues("spawn").Inc()
		return serverStartFailedError{cause: err}
	}
	m.proc = h
	m.startedAt = time.Now()
	m.log.Debug().Int("pid", h.PID()).Str("addr", m.urlLocked()).Msg("server started")
	m.publish("server_start", map[string]any{"pid": h.PID(), "host": m.host, "port": m.port})

	if err := m.waitForServer(h, m.startTimeout); err != nil {
		switch {
		case IsProcessDiedDuringStartup(err):
			serverStartFailuresTotal.WithLabelValues("died").Inc()
			m.publish("server_exit", map[string]any{"pid": h.PID(), "error": err.Error()})
		default:
			serverStartFailuresTotal.WithLabelValues("timeout").Inc()
			m.publish("server_timeout", map[string]any{"pid": h.PID()})
		}
		return err
	}

	serverStartsTotal.Inc()
	m.publish("server_ready", map[string]any{"pid": h.PID(), "url": m.urlLocked()})
	return nil
}

// waitForServer polls the readiness endpoints until one answers, the process
// dies, or the timeout elapses. Sleeps back off exponentially from 100ms,
// capped at 500ms.
func (m *ServerManager) waitForServer(h *ProcessHandle, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	attempts := 0
	var lastErr error
	for time.Now().Before(deadline) {
		// A dead process will never become ready; fail now, not at the
		// timeout.
		if !h.IsRunning() {
			return processDiedError{cause: h.ExitErr(), output: tail(h.Output())}
		}
		for _, ep := range readinessEndpoints {
			code, err := m.probe(ep)
			if err != nil {
				// Connection failures are expected while the
				// listener is coming up.
				lastErr = err
				continue
			}
			if readyStatus(code) {
				m.log.Debug().Int("attempts", attempts).Str("endpoint", ep).Int("status", code).Msg("server ready")
				return nil
			}
			lastErr = fmt.Errorf("GET %s: unexpected status %d", ep, code)
		}
		attempts++
		time.Sleep(backoffDelay(attempts))
	}
	return healthCheckTimeoutError{
		timeout:  timeout,
		attempts: attempts,
		lastErr:  lastErr,
		output:   tail(h.Output()),
	}
}

// readyStatus reports whether an HTTP status proves the server is dispatching
// requests. 404/405 still mean the listener and framework are alive; the
// probe path just doesn't exist.
func readyStatus(code int) bool {
	if code >= 200 && code < 400 {
		return true
	}
	return code == http.StatusNotFound || code == http.StatusMethodNotAllowed
}

func backoffDelay(attempt int) time.Duration {
	d := startupBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= startupBackoffCap {
			return startupBackoffCap
		}
	}
	return d
}

func (m *ServerManager) probe(path string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.urlLocked()+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Stop terminates the server process: SIGTERM, a bounded wait, then SIGKILL.
// Safe no-op when nothing is running. When the grace period elapses and
// SIGKILL is sent, a timeout-kind ProcError is returned; the handle is
// cleared regardless of outcome.
func (m *ServerManager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(timeout)
}

func (m *ServerManager) stopLocked(timeout time.Duration) error {
	if m.proc == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = m.stopTimeout
	}
	var err error
	if m.proc.IsRunning() {
		pid := m.proc.PID()
		_ = m.proc.Terminate(true)
		waitUntil := time.Now().Add(timeout)
		for m.proc.IsRunning() && time.Now().Before(waitUntil) {
			time.Sleep(stopPollInterval)
		}
		if m.proc.IsRunning() {
			// Best-effort escalation; not guaranteed instant.
			m.log.Debug().Int("pid", pid).Msg("graceful stop timed out, sending SIGKILL")
			serverForcedKillsTotal.Inc()
			_ = m.proc.Terminate(false)
			err = &ProcError{
				Kind: ProcTimeout,
				Op:   "graceful stop",
				Err:  fmt.Errorf("pid %d did not exit within %s, sent SIGKILL", pid, timeout),
			}
		}
		serverStopsTotal.Inc()
		m.publish("server_stop", map[string]any{"pid": pid})
	}
	m.proc = nil
	m.startedAt = time.Time{}
	return err
}

// Close implements io.Closer so a deferred cleanup always tears the process
// down. A manager going out of scope without stopping its process leaks an
// orphaned listener.
func (m *ServerManager) Close() error { return m.Stop(0) }

// IsRunning reports whether the server process is alive.
func (m *ServerManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proc.IsRunning()
}

// Port returns the bound port. It may differ from the configured port after
// Start resolved a collision.
func (m *ServerManager) Port() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

func (m *ServerManager) Host() string { return m.host }

// AppRoot returns the validated application root (trailing separators trimmed).
func (m *ServerManager) AppRoot() string { return m.appRoot }

// URL returns the server base URL, e.g. http://127.0.0.1:8000.
func (m *ServerManager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.urlLocked()
}

func (m *ServerManager) urlLocked() string {
	return "http://" + net.JoinHostPort(m.host, strconv.Itoa(m.port))
}

// Output returns the combined stdout+stderr captured from the server process.
func (m *ServerManager) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proc.Output()
}

// Uptime reports how long the current process has been up, zero when stopped.
func (m *ServerManager) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proc.IsRunning() {
		return time.Since(m.startedAt)
	}
	return 0
}

// Status aggregates the accessors into one snapshot.
func (m *ServerManager) Status() types.ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := types.ServerStatus{
		Running: m.proc.IsRunning(),
		URL:     m.urlLocked(),
		Port:    m.port,
	}
	if st.Running {
		pid := m.proc.PID()
		st.PID = &pid
	}
	return st
}

func (m *ServerManager) setLabel(label string) {
	m.mu.Lock()
	m.label = label
	m.mu.Unlock()
}

func (m *ServerManager) publish(name string, fields map[string]any) {
	m.publisher.Publish(Event{Name: name, Key: m.label, Fields: fields})
}

// tail returns the last outputTailBytes of s.
func tail(s string) string {
	if len(s) > outputTailBytes {
		return s[len(s)-outputTailBytes:]
	}
	return s
}
