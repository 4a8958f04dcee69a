package appserver

import (
	"fmt"
	"net"
	"os"
	"time"
)

const (
	// portProbeTimeout bounds each connect attempt; the probe runs inside a
	// scan loop so it has to stay short.
	portProbeTimeout = 200 * time.Millisecond

	// Parallel workers sharing one base port are biased into disjoint
	// windows of perWorkerWindow ports, bucketed by pid.
	perWorkerWindow = 10
	workerBuckets   = 100

	// fallbackScanWindow is the wide scan used once the worker window is
	// exhausted.
	fallbackScanWindow = 1000
)

// isPortInUse reports whether something is accepting TCP connections on
// host:port. Any connect failure (refused, timeout) counts as available.
func isPortInUse(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), portProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// findAvailablePort scans [start, start+window) and returns the first port not
// currently accepting connections.
func findAvailablePort(host string, start, window int) (int, error) {
	for p := start; p < start+window; p++ {
		if !isPortInUse(host, p) {
			return p, nil
		}
	}
	return 0, portExhaustedError{host: host, start: start, window: window}
}

// workerPortOffset derives a per-worker starting port from the current pid so
// parallel workers sharing a base port land in disjoint windows with high
// probability. Two pids can still map to the same bucket; callers must scan
// for liveness rather than trust the offset.
func workerPortOffset(basePort int) int {
	return basePort + (os.Getpid()%workerBuckets)*perWorkerWindow
}
