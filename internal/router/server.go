package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"supportmesh/internal/logx"
)

// ServerConfig configures the router's HTTP boundary.
type ServerConfig struct {
	Addr string `default:":7340"`
}

// Server exposes the router to clients over HTTP.
type Server struct {
	router  *Router
	httpSrv *http.Server
	log     zerolog.Logger
}

// QueryRequest is the client-facing request body.
type QueryRequest struct {
	Query string `json:"query"`
}

func NewServer(cfg ServerConfig, router *Router) *Server {
	s := &Server{
		router: router,
		log:    logx.Component("router-http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/agents", s.handleAgents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) Serve() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("router listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	resp := s.router.Handle(r.Context(), req.Query)
	s.log.Info().
		Str("strategy", string(resp.Strategy)).
		Str("priority", string(resp.Priority)).
		Int("results", len(resp.Results)).
		Dur("took", time.Since(start)).
		Msg("query handled")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type agentView struct {
		AgentID string   `json:"agentId"`
		URL     string   `json:"url"`
		Skills  []string `json:"skills"`
	}

	entries := s.router.dir.List()
	agents := make([]agentView, 0, len(entries))
	for _, e := range entries {
		view := agentView{AgentID: e.AgentID, URL: e.BaseURL}
		if e.Card != nil {
			for _, skill := range e.Card.Skills {
				view.Skills = append(view.Skills, skill.ID)
			}
		}
		agents = append(agents, view)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agents)
}
