package appserver

import (
	"time"

	"github.com/rs/zerolog"
)

// Application layout constants. The app under test must carry the bootstrap
// entry file and a public directory with the HTTP entrypoint; an optional
// router script at the root is preferred when present.
const (
	bootstrapFile    = "artisan"
	publicDirName    = "public"
	publicEntrypoint = "index.php"
	routerScript     = "server.php"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultHost         = "127.0.0.1"
	defaultPort         = 8000
	defaultServerBin    = "php"
	defaultStartTimeout = 30 * time.Second
	defaultStopTimeout  = 5 * time.Second
	defaultScanWindow   = 10
)

// ManagerConfig encapsulates all tunables for ServerManager construction.
type ManagerConfig struct {
	// AppRoot is the application root directory; validated at construction.
	AppRoot string
	Host    string
	Port    int
	Debug   bool
	// ServerBin is the runtime used to spawn the built-in HTTP server
	// (defaults to "php"); ExtraArgs are appended to the spawn command.
	ServerBin string
	ExtraArgs []string

	StartTimeout time.Duration
	StopTimeout  time.Duration
	// ScanWindow bounds the initial port scan from Port before the
	// wide fallback scan kicks in.
	ScanWindow int

	// Publisher receives lifecycle events; nil means drop them.
	Publisher EventPublisher
	// Logger receives debug diagnostics; nil means derive from Debug.
	Logger *zerolog.Logger
}

func (cfg *ManagerConfig) applyDefaults() {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.ServerBin == "" {
		cfg.ServerBin = defaultServerBin
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.ScanWindow <= 0 {
		cfg.ScanWindow = defaultScanWindow
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
}
