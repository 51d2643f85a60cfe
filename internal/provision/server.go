// Package provision serves the WiFi setup surface over HTTP while the
// device is in provisioning mode: an embedded setup page plus JSON
// endpoints for network scan, credential submission, secret update, and
// factory clear.
package provision

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/sweeney/appliance-control/internal/config"
	"github.com/sweeney/appliance-control/internal/status"
	"github.com/sweeney/appliance-control/internal/wifi"
)

// Server serves the provisioning page over HTTP.
type Server struct {
	httpServer *http.Server
	store      *config.Store
	manager    *wifi.Manager
	tracker    *status.Tracker

	// restart asks the daemon to tear down and re-run its boot sequence.
	// Must not block.
	restart func()

	// mu serializes the mutating handlers; the store and manager are not
	// safe for concurrent use.
	mu sync.Mutex
}

// New creates a Server. restart is invoked after a successful credential
// submission or a clear request.
func New(addr string, store *config.Store, manager *wifi.Manager, tracker *status.Tracker, restart func()) *Server {
	s := &Server{
		store:   store,
		manager: manager,
		tracker: tracker,
		restart: restart,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/connect", s.handleConnect)
	mux.HandleFunc("/clear", s.handleClear)
	mux.HandleFunc("/setpassword", s.handleSetPassword)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatStatusJSON(snap))
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	networks, err := s.manager.Scan()
	if err != nil {
		log.Printf("provision: scan: %v", err)
		writeResult(w, http.StatusInternalServerError, Result{Success: false, Message: "scan failed"})
		return
	}
	writeNetworks(w, networks)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ssid := r.FormValue("ssid")
	password := r.FormValue("password")
	if ssid == "" {
		writeResult(w, http.StatusBadRequest, Result{Success: false, Message: "missing ssid"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("provision: connect request for %q", ssid)
	if err := s.manager.Connect(ssid, password, wifi.ProvisioningAttempts); err != nil {
		log.Printf("provision: connect: %v", err)
		writeResult(w, http.StatusOK, Result{Success: false, Message: "connection timeout"})
		return
	}

	if err := s.store.Save(ssid, password, s.store.Current().Secret); err != nil {
		log.Printf("provision: save credentials: %v", err)
		writeResult(w, http.StatusInternalServerError, Result{Success: false, Message: "save failed"})
		return
	}

	writeResult(w, http.StatusOK, Result{Success: true})
	s.restart()
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("provision: clearing stored configuration")
	if err := s.store.Clear(); err != nil {
		log.Printf("provision: clear: %v", err)
		writeResult(w, http.StatusInternalServerError, Result{Success: false, Message: "clear failed"})
		return
	}

	writeResult(w, http.StatusOK, Result{Success: true})
	s.restart()
}

func (s *Server) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	password := r.FormValue("password")
	if password == "" {
		writeResult(w, http.StatusBadRequest, Result{Success: false, Message: "missing password"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveSecret(password); err != nil {
		log.Printf("provision: save secret: %v", err)
		writeResult(w, http.StatusInternalServerError, Result{Success: false, Message: "save failed"})
		return
	}

	writeResult(w, http.StatusOK, Result{Success: true})
}
