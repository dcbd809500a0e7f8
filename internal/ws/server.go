package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/begna112/vast-monitor/internal/history"
	"github.com/begna112/vast-monitor/internal/monitor"
	"github.com/gorilla/websocket"
)

// HistorySource reads back completed rentals. Nil when history is
// disabled.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

type Server struct {
	mon         *monitor.Monitor
	broadcaster *Broadcaster
	hist        HistorySource
}

func NewServer(mon *monitor.Monitor, broadcaster *Broadcaster, hist HistorySource) *Server {
	return &Server{
		mon:         mon,
		broadcaster: broadcaster,
		hist:        hist,
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/machines", s.handleMachines)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/health", s.handleHealth)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleMachines(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.mon.States())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		http.Error(w, "history not enabled", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.hist.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("history query failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	failures, lastErr, failed := s.mon.FetchHealth()

	resp := struct {
		FetchFailures int               `json:"fetch_failures"`
		LastError     string            `json:"last_error,omitempty"`
		Degraded      bool              `json:"degraded"`
		Clients       int               `json:"ws_clients"`
		Host          monitor.HostStats `json:"host"`
	}{
		FetchFailures: failures,
		LastError:     lastErr,
		Degraded:      failed,
		Clients:       s.broadcaster.ClientCount(),
		Host:          monitor.CollectHostStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// checkOrigin accepts same-host and loopback origins. The status
// server is an operator tool, not a public surface.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Status server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
