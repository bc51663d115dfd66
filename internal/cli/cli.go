// Package cli is the command line entry point. One binary hosts every role:
// the tool gateway, the specialist agents, the router, and the client
// commands that talk to a running router.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"supportmesh/internal/agents"
	"supportmesh/internal/config"
	"supportmesh/internal/directory"
	"supportmesh/internal/gateway"
	"supportmesh/internal/logx"
	"supportmesh/internal/reasoning"
	"supportmesh/internal/router"
	"supportmesh/internal/store"
)

// AppConfig is the full environment-driven configuration, prefix SUPPORTMESH.
type AppConfig struct {
	Log logx.Config

	DBPath string `envconfig:"DB_PATH" split_words:"true" default:"support.db"`

	GatewayAddr string `envconfig:"GATEWAY_ADDR" split_words:"true" default:":7341"`
	GatewayURL  string `envconfig:"GATEWAY_URL" split_words:"true" default:"http://localhost:7341/mcp"`

	DataAgentAddr string `envconfig:"DATA_AGENT_ADDR" split_words:"true" default:":7342"`
	DataAgentURL  string `envconfig:"DATA_AGENT_URL" split_words:"true" default:"http://localhost:7342"`

	SupportAgentAddr string `envconfig:"SUPPORT_AGENT_ADDR" split_words:"true" default:":7343"`
	SupportAgentURL  string `envconfig:"SUPPORT_AGENT_URL" split_words:"true" default:"http://localhost:7343"`

	RouterAddr string `envconfig:"ROUTER_ADDR" split_words:"true" default:":7340"`
	RouterURL  string `envconfig:"ROUTER_URL" split_words:"true" default:"http://localhost:7340"`

	Engine string `envconfig:"ENGINE" default:"rules"`
	LLM    reasoning.LLMConfig

	TaskTimeout  time.Duration `envconfig:"TASK_TIMEOUT" split_words:"true" default:"30s"`
	DirectoryTTL time.Duration `envconfig:"DIRECTORY_TTL" split_words:"true" default:"30s"`
}

const envPrefix = "SUPPORTMESH"

// Run dispatches the subcommand and returns the process exit code.
func Run() int {
	if len(os.Args) < 2 {
		usage()
		return 1
	}

	cmd := os.Args[1]
	if strings.HasPrefix(cmd, "-") {
		usage()
		return 1
	}

	cfg, err := config.New[AppConfig](envPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	logx.Init(cfg.Log)

	switch cmd {
	case "gateway":
		return runGateway(cfg, os.Args[2:])
	case "agents":
		return runAgents(cfg, os.Args[2:])
	case "router":
		return runRouter(cfg, os.Args[2:])
	case "up":
		return runUp(cfg, os.Args[2:])
	case "ask":
		return runAsk(cfg, os.Args[2:])
	case "chat":
		return runChat(cfg, os.Args[2:])
	default:
		usage()
		return 1
	}
}

func usage() {
	fmt.Println("supportmesh <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  gateway   serve the MCP tool gateway over the record store")
	fmt.Println("  agents    serve the data and support specialist agents")
	fmt.Println("  router    serve the query router")
	fmt.Println("  up        serve gateway, agents and router in one process")
	fmt.Println("  ask       send one query to a running router")
	fmt.Println("  chat      interactive chat against a running router")
}

func contextWithSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runGateway(cfg *AppConfig, args []string) int {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	addr := fs.String("addr", cfg.GatewayAddr, "listen address")
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := contextWithSignals()
	defer cancel()

	srv, st, err := buildGateway(ctx, *addr, *dbPath)
	if err != nil {
		log.Error().Err(err).Msg("gateway startup failed")
		return 1
	}
	defer st.Close()

	return serveUntilSignal(ctx, func() error { return srv.Start() }, func(shutdownCtx context.Context) error {
		return srv.Stop(shutdownCtx)
	})
}

func buildGateway(ctx context.Context, addr, dbPath string) (*gateway.Server, *store.Store, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Seed(ctx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("seed store: %w", err)
	}
	srv := gateway.NewServer(gateway.ServerConfig{Addr: addr, Name: "supportmesh-gateway", Version: "1.0.0"}, st)
	return srv, st, nil
}

func runAgents(cfg *AppConfig, args []string) int {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	gatewayURL := fs.String("gateway", cfg.GatewayURL, "gateway MCP endpoint")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := contextWithSignals()
	defer cancel()

	data, support, closer, err := buildSpecialists(ctx, cfg, *gatewayURL)
	if err != nil {
		log.Error().Err(err).Msg("agents startup failed")
		return 1
	}
	defer closer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(data.Serve)
	g.Go(support.Serve)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		data.Shutdown(shutdownCtx)
		support.Shutdown(shutdownCtx)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("agents stopped")
		return 1
	}
	return 0
}

func buildSpecialists(ctx context.Context, cfg *AppConfig, gatewayURL string) (data, support *agents.Specialist, closer func(), err error) {
	tools, err := gateway.Dial(ctx, gatewayURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial gateway: %w", err)
	}

	data, err = agents.NewSpecialist(agents.Config{
		Addr:        cfg.DataAgentAddr,
		BaseURL:     cfg.DataAgentURL,
		Name:        "data-specialist",
		Description: "Reads and writes customer records and support cases",
	}, agents.NewDataHandler(tools))
	if err != nil {
		tools.Close()
		return nil, nil, nil, err
	}

	support, err = agents.NewSpecialist(agents.Config{
		Addr:        cfg.SupportAgentAddr,
		BaseURL:     cfg.SupportAgentURL,
		Name:        "support-specialist",
		Description: "Answers support questions and handles escalations",
	}, agents.NewSupportHandler(buildResponder(cfg)))
	if err != nil {
		tools.Close()
		return nil, nil, nil, err
	}

	return data, support, func() { tools.Close() }, nil
}

func buildResponder(cfg *AppConfig) agents.Responder {
	if cfg.Engine == "llm" {
		engine, err := reasoning.NewLLMEngine(cfg.LLM)
		if err == nil {
			return engine
		}
		log.Warn().Err(err).Msg("llm responder unavailable, using template responder")
	}
	return agents.TemplateResponder{}
}

func buildEngine(cfg *AppConfig) reasoning.Engine {
	if cfg.Engine == "llm" {
		engine, err := reasoning.NewLLMEngine(cfg.LLM)
		if err == nil {
			return engine
		}
		log.Warn().Err(err).Msg("llm engine unavailable, using rule engine")
	}
	return reasoning.NewRuleEngine()
}

func runRouter(cfg *AppConfig, args []string) int {
	fs := flag.NewFlagSet("router", flag.ContinueOnError)
	addr := fs.String("addr", cfg.RouterAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := contextWithSignals()
	defer cancel()

	srv, dispatcher, err := buildRouter(ctx, cfg, *addr)
	if err != nil {
		log.Error().Err(err).Msg("router startup failed")
		return 1
	}
	defer dispatcher.Close()

	return serveUntilSignal(ctx, srv.Serve, srv.Shutdown)
}

func buildRouter(ctx context.Context, cfg *AppConfig, addr string) (*router.Server, *router.A2ADispatcher, error) {
	dir := directory.New(directory.WithTTL(cfg.DirectoryTTL))
	if err := dir.Discover(ctx, "data-specialist", cfg.DataAgentURL); err != nil {
		return nil, nil, err
	}
	if err := dir.Discover(ctx, "support-specialist", cfg.SupportAgentURL); err != nil {
		return nil, nil, err
	}

	dispatcher := router.NewA2ADispatcher()
	core := router.New(buildEngine(cfg), dir, dispatcher, router.WithTaskTimeout(cfg.TaskTimeout))
	return router.NewServer(router.ServerConfig{Addr: addr}, core), dispatcher, nil
}

// runUp hosts the whole mesh in a single process, mainly for demos and
// local development.
func runUp(cfg *AppConfig, args []string) int {
	fs := flag.NewFlagSet("up", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := contextWithSignals()
	defer cancel()

	gwSrv, st, err := buildGateway(ctx, cfg.GatewayAddr, *dbPath)
	if err != nil {
		log.Error().Err(err).Msg("gateway startup failed")
		return 1
	}
	defer st.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(gwSrv.Start)

	// Give the gateway listener a moment before the specialists dial it.
	time.Sleep(200 * time.Millisecond)

	data, support, closer, err := buildSpecialists(gctx, cfg, cfg.GatewayURL)
	if err != nil {
		log.Error().Err(err).Msg("agents startup failed")
		cancel()
		return 1
	}
	defer closer()
	g.Go(data.Serve)
	g.Go(support.Serve)

	time.Sleep(200 * time.Millisecond)

	routerSrv, dispatcher, err := buildRouter(gctx, cfg, cfg.RouterAddr)
	if err != nil {
		log.Error().Err(err).Msg("router startup failed")
		cancel()
		return 1
	}
	defer dispatcher.Close()
	g.Go(routerSrv.Serve)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		routerSrv.Shutdown(shutdownCtx)
		data.Shutdown(shutdownCtx)
		support.Shutdown(shutdownCtx)
		gwSrv.Stop(shutdownCtx)
		return nil
	})

	log.Info().Msg("supportmesh up")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("stopped")
		return 1
	}
	return 0
}

func serveUntilSignal(ctx context.Context, serve func() error, shutdown func(context.Context) error) int {
	errCh := make(chan error, 1)
	go func() { errCh <- serve() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
			return 1
		}
		return 0
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
			return 1
		}
		return 0
	}
}
