package server

import (
	"context"
	"sort"
)

// registerDefaultActions installs introspect/status handlers unless the
// caller has already registered actions under those names (spec §4.6).
func registerDefaultActions(s *Server) {
	if _, ok := s.findHandler("introspect"); !ok {
		s.actions["introspect"] = introspectHandler(s)
	}
	if _, ok := s.findHandler("status"); !ok {
		s.actions["status"] = statusHandler(s)
	}
}

func introspectHandler(s *Server) Handler {
	return func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		names := s.ActionNames()
		sort.Strings(names)
		actions := make([]interface{}, len(names))
		for i, n := range names {
			actions[i] = n
		}
		return map[string]interface{}{
			"service": s.cfg.ServiceName,
			"actions": actions,
		}, nil
	}
}

func statusHandler(s *Server) Handler {
	return func(ctx context.Context, req ActionRequest) (map[string]interface{}, error) {
		return map[string]interface{}{
			"service": s.cfg.ServiceName,
			"healthy": true,
		}, nil
	}
}
