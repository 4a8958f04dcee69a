package cli

import (
	"volttest/internal/appserver"
	"volttest/pkg/types"
)

// apiService adapts the registry and event log to the control API's Service
// interface.
type apiService struct {
	reg    *appserver.Registry
	events *appserver.MemoryPublisher
}

func newAPIService(reg *appserver.Registry, events *appserver.MemoryPublisher) *apiService {
	return &apiService{reg: reg, events: events}
}

func (s *apiService) Stats() types.RegistryStats { return s.reg.Stats() }

func (s *apiService) ServerStatus(key string) (types.ServerStatus, bool) {
	return s.reg.ServerStatus(key)
}

func (s *apiService) StopServer(key string) bool {
	if !s.reg.Has(key) {
		return false
	}
	_ = s.reg.Stop(key)
	return true
}

func (s *apiService) Events() []types.EventRecord {
	events := s.events.Events()
	out := make([]types.EventRecord, 0, len(events))
	for _, e := range events {
		out = append(out, types.EventRecord{Name: e.Name, Key: e.Key, Fields: e.Fields})
	}
	return out
}
