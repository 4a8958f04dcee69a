package appserver

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"volttest/pkg/types"
)

// registryEntry is one registered manager plus its ownership record. An entry
// whose ownerPid differs from the current pid is foreign: its manager pointer
// only means something inside the process that created it, so it is discarded
// wherever it is observed, never adopted.
type registryEntry struct {
	manager      *ServerManager
	ownerPid     int
	registeredAt time.Time
}

// Registry is a process-scoped keyed store of ServerManagers. It deduplicates
// managers by (owner, host), discards entries orphaned by process death or
// process-identity mismatch, and can install a one-shot shutdown hook.
//
// The map is process-local memory; a native mutex serializes all
// read-modify-write sections. Cross-process port contention is handled by the
// allocator's liveness scan, not here.
type Registry struct {
	mu                sync.Mutex
	entries           map[string]*registryEntry
	identity          string
	shutdownInstalled bool
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the lazily-initialized process-wide registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// ProcessIdentity returns the cached identity of the current process: pid plus
// a random token, computed once per registry lifetime. Two processes are
// virtually certain to differ.
func (r *Registry) ProcessIdentity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identityLocked()
}

func (r *Registry) identityLocked() string {
	if r.identity == "" {
		token := make([]byte, 8)
		_, _ = rand.Read(token)
		r.identity = fmt.Sprintf("%d-%s", os.Getpid(), hex.EncodeToString(token))
	}
	return r.identity
}

// GenerateKey derives the opaque registry key for (owner, host). Same inputs
// within the same process always map to the same key; a different host or a
// different process identity changes it.
func (r *Registry) GenerateKey(owner, host string) string {
	r.mu.Lock()
	identity := r.identityLocked()
	r.mu.Unlock()
	sum := sha256.Sum256([]byte(identity + "|" + owner + "|" + host))
	return hex.EncodeToString(sum[:])
}

// Register stores manager at key, owned by the current process. The whole
// read-modify-write runs under the registry lock so concurrent registrations
// cannot interleave.
func (r *Registry) Register(key string, m *ServerManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.setLabel(key)
	r.entries[key] = &registryEntry{
		manager:      m,
		ownerPid:     os.Getpid(),
		registeredAt: time.Now(),
	}
}

// Get returns the manager at key only if the entry is owned by the current
// process. A foreign entry is removed as a side effect and reported absent:
// a server handle is never handed to a process that did not create it.
func (r *Registry) Get(key string) (*ServerManager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	if e.ownerPid != os.Getpid() {
		delete(r.entries, key)
		return nil, false
	}
	return e.manager, true
}

// Has is the boolean form of Get, with the same foreign-entry side effect.
func (r *Registry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// GetOrCreate returns the registered manager for (owner, cfg.Host) or
// constructs, validates, and registers a new one. An existing manager is
// returned unchanged: no re-validation, no restart. The registry lock is
// held across the miss-construct-register span so two racing callers on a
// fresh key always end up with the same manager instance.
func (r *Registry) GetOrCreate(owner string, cfg ManagerConfig) (*ServerManager, error) {
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sum := sha256.Sum256([]byte(r.identityLocked() + "|" + owner + "|" + host))
	key := hex.EncodeToString(sum[:])
	if e, ok := r.entries[key]; ok {
		if e.ownerPid == os.Getpid() {
			return e.manager, nil
		}
		delete(r.entries, key)
	}
	if cfg.Port <= 0 {
		// No preferred port: bias this worker into its own window.
		cfg.Port = workerPortOffset(defaultPort)
	}
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	m.setLabel(key)
	r.entries[key] = &registryEntry{
		manager:      m,
		ownerPid:     os.Getpid(),
		registeredAt: time.Now(),
	}
	return m, nil
}

// Stop stops and removes the manager at key. Absent or foreign keys are a
// safe no-op.
func (r *Registry) Stop(key string) error {
	m, ok := r.Get(key)
	if !ok {
		return nil
	}
	err := m.Stop(0)
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return err
}

// StopAll stops and removes every entry owned by the current process.
// Foreign entries are left untouched.
func (r *Registry) StopAll() {
	pid := os.Getpid()
	r.mu.Lock()
	managers := make(map[string]*ServerManager)
	for k, e := range r.entries {
		if e.ownerPid == pid {
			managers[k] = e.manager
		}
	}
	r.mu.Unlock()
	for k, m := range managers {
		_ = m.Stop(0)
		r.mu.Lock()
		delete(r.entries, k)
		r.mu.Unlock()
	}
}

// CleanupOrphaned removes every foreign entry and every entry whose process
// is no longer running; a dead handle is useless regardless of ownership.
// Returns the number of entries removed.
func (r *Registry) CleanupOrphaned() int {
	pid := os.Getpid()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for k, e := range r.entries {
		if e.ownerPid != pid || !e.manager.IsRunning() {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Stats reports the registry view for the current process; foreign entries
// are not counted.
func (r *Registry) Stats() types.RegistryStats {
	pid := os.Getpid()
	r.mu.Lock()
	identity := r.identityLocked()
	entries := make(map[string]*ServerManager)
	for k, e := range r.entries {
		if e.ownerPid == pid {
			entries[k] = e.manager
		}
	}
	r.mu.Unlock()

	stats := types.RegistryStats{
		ProcessID: identity,
		PID:       pid,
		Servers:   make(map[string]types.ServerStats, len(entries)),
	}
	for k, m := range entries {
		running := m.IsRunning()
		stats.TotalServers++
		if running {
			stats.ActiveServers++
		}
		stats.Servers[k] = types.ServerStats{
			Running:       running,
			URL:           m.URL(),
			Port:          m.Port(),
			UptimeSeconds: m.Uptime().Seconds(),
		}
	}
	return stats
}

// ServerStatus returns the status snapshot for the manager at key.
func (r *Registry) ServerStatus(key string) (types.ServerStatus, bool) {
	m, ok := r.Get(key)
	if !ok {
		return types.ServerStatus{}, false
	}
	return m.Status(), true
}

// RegisterShutdownHandler installs a signal hook that stops every owned
// server on SIGINT/SIGTERM. Repeated calls are no-ops.
func (r *Registry) RegisterShutdownHandler() {
	r.mu.Lock()
	if r.shutdownInstalled {
		r.mu.Unlock()
		return
	}
	r.shutdownInstalled = true
	r.mu.Unlock()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		r.StopAll()
		signal.Stop(ch)
		// Re-raise so the process still dies from the signal.
		p, err := os.FindProcess(os.Getpid())
		if err == nil {
			_ = p.Signal(syscall.SIGTERM)
		}
	}()
}
