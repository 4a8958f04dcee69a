package types

// ServerStatus summarizes one managed application server.
type ServerStatus struct {
	// Whether the server process is currently running.
	Running bool `json:"running"`
	// Base URL of the server, e.g. http://127.0.0.1:8000.
	URL string `json:"url"`
	// TCP port the server is bound to (may differ from the requested port).
	Port int `json:"port"`
	// OS process id of the server when running; null when stopped.
	PID *int `json:"pid"`
}

// ServerStats is the per-entry view inside RegistryStats.
type ServerStats struct {
	Running       bool    `json:"running"`
	URL           string  `json:"url"`
	Port          int     `json:"port"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// RegistryStats is the aggregate view returned by the registry.
// Only entries owned by the current process are counted.
type RegistryStats struct {
	ProcessID     string                 `json:"process_id"`
	PID           int                    `json:"pid"`
	TotalServers  int                    `json:"total_servers"`
	ActiveServers int                    `json:"active_servers"`
	Servers       map[string]ServerStats `json:"servers"`
}

// EventRecord is a lifecycle event surfaced over the control API.
type EventRecord struct {
	Name   string         `json:"name"`
	Key    string         `json:"key,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	Error string `json:"error"`
	// HTTP status code.
	Code int `json:"code"`
}
