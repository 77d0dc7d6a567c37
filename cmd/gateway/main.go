// Command gateway is the Agent Gateway's service entrypoint: it loads
// configuration, wires the sandbox policy, trace store, metrics collector,
// tool registry, agentrt adapter, turn coordinator, skills directory, and
// HTTP surface together, then serves until interrupted.
//
// Grounded on example/cmd/assistant/main.go's lifecycle: flag parsing,
// goa.design/clue/log context setup, a shared error channel fed by both the
// signal handler and the server goroutine, context cancellation, and a
// final sync.WaitGroup-free drain (this service has exactly one server, so
// the teacher's multi-server WaitGroup collapses to a single goroutine
// plus errc, matching http.go's own single-server handleHTTPServer pattern).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/redis/go-redis/v9"

	"goa.design/agentgateway/internal/agentrt"
	"goa.design/agentgateway/internal/agentrt/anthropic"
	"goa.design/agentgateway/internal/agentrt/openai"
	"goa.design/agentgateway/internal/broadcast"
	"goa.design/agentgateway/internal/config"
	"goa.design/agentgateway/internal/hooks"
	"goa.design/agentgateway/internal/httpapi"
	"goa.design/agentgateway/internal/metrics"
	"goa.design/agentgateway/internal/sandbox"
	"goa.design/agentgateway/internal/sandboxtools"
	"goa.design/agentgateway/internal/skills"
	"goa.design/agentgateway/internal/tools"
	"goa.design/agentgateway/internal/trace"
	"goa.design/agentgateway/internal/turn"
)

func main() {
	var (
		envFileF = flag.String("env-file", ".env", "optional .env file overlay")
		dbgF     = flag.Bool("debug", false, "log request and response bodies")
		skillsF  = flag.String("skills-dir", "./skills", "skills directory")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load(*envFileF)
	if err != nil {
		log.Fatalf(ctx, err, "load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf(ctx, err, "invalid configuration")
	}
	log.Print(ctx, log.KV{K: "config", V: cfg.String()})

	registry := tools.NewRegistry()
	for _, spec := range tools.Builtins() {
		if err := registry.Register(spec); err != nil {
			log.Fatalf(ctx, err, "register builtin tool %q", spec.Name)
		}
	}

	policy, err := sandbox.New(sandbox.Config{
		AllowedRoots:             []string{cfg.SandboxRoot},
		MaxOpsPerMin:             cfg.MaxOpsPerMin,
		MaxWritesPerMin:          cfg.MaxWritesPerMin,
		MaxShellPerMin:           cfg.MaxShellPerMin,
		BlockedExtensions:        []string{".key", ".pem", ".pfx"},
		DangerousCommandPatterns: []string{`rm\s+-rf\s+/`, `:\(\)\{.*:\|:&.*\};:`, `mkfs\.`, `dd\s+if=.*of=/dev/`},
		SensitiveContentPatterns: []string{`-----BEGIN [A-Z ]*PRIVATE KEY-----`},
	}, sandbox.SystemClock{})
	if err != nil {
		log.Fatalf(ctx, err, "build sandbox policy")
	}

	traceStore, err := buildTraceStore(ctx, cfg)
	if err != nil {
		log.Fatalf(ctx, err, "build trace store")
	}

	collector := metrics.New()
	executor := sandboxtools.NewExecutor(cfg.SandboxRoot)

	client, err := buildAgentClient(cfg, registry, executor)
	if err != nil {
		log.Fatalf(ctx, err, "build agent runtime client")
	}

	bus := hooks.NewBus()
	if cfg.BroadcastEnabled {
		if err := attachBroadcastSink(ctx, cfg, bus); err != nil {
			log.Fatalf(ctx, err, "attach broadcast sink")
		}
	}

	coordinator, err := turn.New(turn.Options{
		Client:         client,
		Policy:         policy,
		TraceStore:     traceStore,
		Metrics:        collector,
		Registry:       registry,
		SandboxBase:    "/sandbox",
		Bus:            bus,
		SystemPrompt:   "",
		MaxTurns:       cfg.MaxTurns,
		ContextMax:     cfg.ContextMax,
		SandboxEnabled: true,
		SandboxRoot:    cfg.SandboxRoot,
		PermissionMode: "default",
	})
	if err != nil {
		log.Fatalf(ctx, err, "build turn coordinator")
	}

	chatHandler := &httpapi.ChatHandler{Turn: coordinator}
	skillsDir := skills.NewDirectory(*skillsF)
	search := httpapi.NewSearchProxy(cfg.TavilyAPIKey, cfg.SearchAPIURL)

	router := httpapi.NewRouter(ctx, httpapi.Deps{
		Turn:        chatHandler,
		TraceStore:  traceStore,
		Metrics:     collector,
		Skills:      skillsDir,
		Search:      search,
		SandboxRoot: cfg.SandboxRoot,
		CORSOrigin:  cfg.CORSOrigin,
		Debug:       *dbgF,
	})

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	httpapi.Serve(runCtx, cfg.ListenAddr, router, errc)

	log.Printf(ctx, "exiting (%v)", <-errc)
	cancel()
	log.Printf(ctx, "exited")
}

// attachBroadcastSink wires a Redis-backed Pulse stream sink onto bus so an
// operator process can tee a turn's hook activity from a second process.
// Only called when cfg.BroadcastEnabled; a Redis outage after this point
// never affects the primary per-turn SSE write, since Sink.OnHookEvent
// swallows publish errors.
func attachBroadcastSink(ctx context.Context, cfg *config.Config, bus *hooks.Bus) error {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	client, err := broadcast.NewClient(broadcast.ClientOptions{
		Redis:        rdb,
		StreamMaxLen: int(cfg.RedisStreamMaxLen),
	})
	if err != nil {
		return fmt.Errorf("build broadcast client: %w", err)
	}
	sink, err := broadcast.NewSink(broadcast.SinkOptions{Client: client})
	if err != nil {
		return fmt.Errorf("build broadcast sink: %w", err)
	}
	bus.Subscribe(sink)
	log.Print(ctx, log.KV{K: "broadcast", V: "enabled"})
	return nil
}

func buildTraceStore(ctx context.Context, cfg *config.Config) (trace.Store, error) {
	switch cfg.TraceStore {
	case config.TraceStoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		coll := client.Database(cfg.MongoDatabase).Collection("traces")
		return trace.NewMongoStore(coll)
	default:
		return trace.NewFileStore(cfg.TraceDir)
	}
}

func buildAgentClient(cfg *config.Config, registry *tools.Registry, executor *sandboxtools.Executor) (agentrt.Client, error) {
	switch cfg.AgentProvider {
	case config.ProviderOpenAI:
		return openai.New(openai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		}, registry, executor)
	default:
		return anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			BaseURL: cfg.AnthropicBaseURL,
			Model:  cfg.AnthropicModel,
		}, registry, executor)
	}
}
