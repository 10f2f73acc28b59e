// Package server exposes a catalog over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/catalog"
	"github.com/wbrown/janus-tabular/tabular/logger"
)

// Server is the HTTP transport in front of a catalog
type Server struct {
	*http.Server
	*mux.Router
	catalog  *catalog.Catalog
	listener net.Listener
	Version  string
}

// NewServer creates a server listening on addr once started
func NewServer(addr string, c *catalog.Catalog) *Server {
	s := &Server{
		Server:  &http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second},
		Router:  mux.NewRouter(),
		catalog: c,
	}
	s.Server.Handler = s.Router
	s.Router.Use(logRequests)
	s.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, tabular.NotFoundf("no route for %s %s", r.Method, r.URL.Path))
	})

	installDatasetHandler(s)
	installSystemHandler(s)
	return s
}

// Catalog returns the served catalog
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// ListenAndServe binds the listener and serves until Shutdown
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	logger.Logger.Infow("Serving", "addr", listener.Addr().String(), "version", s.Version)

	if err := s.Server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ListenAddr returns the bound address, or the configured one before ListenAndServe
func (s *Server) ListenAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Addr
}

// Shutdown stops accepting requests and releases the catalog
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.catalog.Close()
	return err
}

// handlerFunc returns a value to encode as JSON, or an error to map to a status
type handlerFunc func(w http.ResponseWriter, req *http.Request) (interface{}, error)

// HandleFunc registers h under path with JSON encoding of its result
func (s *Server) HandleFunc(path string, h handlerFunc) *mux.Route {
	return s.Router.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
		ret, err := h(w, req)
		if err != nil {
			writeError(w, err)
			return
		}
		switch ret := ret.(type) {
		case nil:
			w.WriteHeader(http.StatusNoContent)
		case rawText:
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.Write([]byte(ret))
		default:
			writeJSON(w, http.StatusOK, ret)
		}
	})
}

// rawText is returned by handlers that answer with plain text
type rawText string

// created wraps a value answered with 201
type created struct{ value interface{} }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	if c, ok := v.(created); ok {
		status, v = http.StatusCreated, c.value
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Warnw("Failed to encode response", "error", err)
	}
}

// errorMessage is the body of every failed request
type errorMessage struct {
	Error   tabular.ErrorKind `json:"error"`
	Message string            `json:"message"`
}

// StatusOf maps an error kind to its HTTP status
func StatusOf(err error) int {
	switch tabular.KindOf(err) {
	case tabular.KindInvalidArgument, tabular.KindInvalidQuery:
		return http.StatusBadRequest
	case tabular.KindNotFound:
		return http.StatusNotFound
	case tabular.KindDanglingView:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		logger.Logger.Errorw("Request failed", "error", err)
	}
	writeJSON(w, status, errorMessage{Error: tabular.KindOf(err), Message: err.Error()})
}

// statusRecorder remembers the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		logger.Logger.Infow("Request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"latency", time.Since(start))
	})
}
