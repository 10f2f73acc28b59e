package server

import (
	"net/http"
	"runtime"
)

type systemHandler struct {
	s *Server
}

func installSystemHandler(s *Server) *systemHandler {
	h := &systemHandler{s: s}
	s.HandleFunc("/v1/ping", h.ping).Methods("GET")
	return h
}

func (h *systemHandler) ping(w http.ResponseWriter, req *http.Request) (interface{}, error) {
	return map[string]interface{}{
		"status":   "ok",
		"version":  h.s.Version,
		"datasets": len(h.s.catalog.List()),
		"go":       runtime.Version(),
	}, nil
}
