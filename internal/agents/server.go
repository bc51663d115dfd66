package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/rs/zerolog"

	"supportmesh/internal/a2a"
	"supportmesh/internal/logx"
)

// Config describes one specialist server.
type Config struct {
	Addr        string
	BaseURL     string
	Name        string
	Description string
	Version     string
	Org         string
	Workers     int
	QueueDepth  int
}

// Specialist serves one agent: its card at the well-known path, the A2A
// JSON-RPC endpoint, and a health probe.
type Specialist struct {
	cfg     Config
	card    []byte
	queue   *Queue
	httpSrv *http.Server
	log     zerolog.Logger
}

// NewSpecialist wires a handler into a servable specialist.
func NewSpecialist(cfg Config, handler Handler) (*Specialist, error) {
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Org == "" {
		cfg.Org = "supportmesh"
	}

	card := a2a.BuildCard(a2a.CardSpec{
		Name:        cfg.Name,
		Description: cfg.Description,
		URL:         cfg.BaseURL,
		Version:     cfg.Version,
		Org:         cfg.Org,
		Skills:      handler.Skills(),
	})
	cardJSON, err := json.Marshal(card)
	if err != nil {
		return nil, err
	}

	queue := NewQueue(cfg.Workers, cfg.QueueDepth)
	executor := NewExecutor(cfg.Name, handler, queue)
	rpcHandler := a2asrv.NewHandler(executor, a2asrv.WithTaskStore(NewMemTaskStore()))

	mux := http.NewServeMux()
	mux.HandleFunc(a2a.WellKnownPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cardJSON)
	})
	mux.Handle("/a2a", a2asrv.NewJSONRPCHandler(rpcHandler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Specialist{
		cfg:   cfg,
		card:  cardJSON,
		queue: queue,
		httpSrv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logx.Component(cfg.Name),
	}, nil
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *Specialist) Serve() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("specialist listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Specialist) Shutdown(ctx context.Context) error {
	defer s.queue.Close()
	return s.httpSrv.Shutdown(ctx)
}
