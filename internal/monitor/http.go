package monitor

import (
	"fmt"
	"log"
	"net/http"
)

// Server is the HTTP server backing the receiver dashboard.
type Server struct {
	mux     *http.ServeMux
	handler *Handlers
	addr    string
}

// NewServer creates a new HTTP server. staticDir, if non-empty, serves
// a dashboard's static assets (HTML/JS) at "/"; an empty staticDir
// leaves "/" unhandled for a headless/API-only deployment.
func NewServer(addr string, handler *Handlers, staticDir string) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		handler: handler,
		addr:    addr,
	}
	s.setupRoutes(staticDir)
	return s
}

func (s *Server) setupRoutes(staticDir string) {
	s.mux.HandleFunc("/api/status", s.handler.HandleStatus)
	s.mux.HandleFunc("/api/devices", s.handler.HandleDevices)
	s.mux.HandleFunc("/ws", s.handler.HandleWebSocket)

	if staticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
}

// Start serves the dashboard, blocking until it errors or shuts down.
func (s *Server) Start() error {
	log.Printf("monitor: listening on %s", s.addr)
	fmt.Printf("\n  receiver telemetry dashboard at http://%s\n\n", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}
