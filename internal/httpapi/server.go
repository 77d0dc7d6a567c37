// Package httpapi implements the gateway's HTTP Surface (C7): every
// endpoint spec.md §4.7 names, routed with chi, wrapped in the same
// logging/debug middleware order the teacher's own generated transport
// uses, and run with the teacher's signal-handling/graceful-shutdown
// lifecycle.
//
// Grounded on example/cmd/assistant/{main.go,http.go}'s server lifecycle
// (flag-driven host/port, SIGINT/SIGTERM handling via a shared error
// channel, sync.WaitGroup, 30s graceful Shutdown sub-context) and
// goa.design/clue/log + goa.design/clue/debug's middleware wrapping order
// (debug.HTTP()(handler) then log.HTTP(ctx)(handler)), rehomed onto
// github.com/go-chi/chi/v5 routing since this rewrite hand-routes instead
// of using goa's generated transport.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"goa.design/clue/debug"
	"goa.design/clue/log"

	"goa.design/agentgateway/internal/metrics"
	"goa.design/agentgateway/internal/skills"
	"goa.design/agentgateway/internal/trace"
)

// Deps bundles the dependencies the HTTP surface routes requests to.
type Deps struct {
	Turn        *ChatHandler
	TraceStore  trace.Store
	Metrics     *metrics.Collector
	Skills      *skills.Directory
	Search      *SearchProxy
	SandboxRoot string
	CORSOrigin  string
	Debug       bool
}

// NewRouter builds the chi router mounting every endpoint spec.md §4.7
// names plus the /sandbox/* static file server (A5).
func NewRouter(ctx context.Context, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(deps.CORSOrigin))

	r.Route("/api", func(api chi.Router) {
		api.Post("/chat", deps.Turn.ServeChat)
		api.Post("/chat/thinking", deps.Turn.ServeChatThinking)

		api.Get("/traces", handleListTraces(deps.TraceStore))
		api.Get("/traces/{id}", handleGetTrace(deps.TraceStore))
		api.Get("/traces/{id}/download", handleDownloadTrace(deps.TraceStore))
		api.Get("/traces/{id}/timeline", handleTraceTimeline(deps.TraceStore))

		api.Get("/metrics", handleGetMetrics(deps.Metrics))
		api.Post("/metrics/reset", handleResetMetrics(deps.Metrics))

		api.Get("/skills", handleListSkills(deps.Skills))
		api.Get("/skills/{id}", handleGetSkill(deps.Skills))

		api.Get("/search", deps.Search.ServeHTTP)
		api.Post("/search", deps.Search.ServeHTTP)

		api.Get("/health", handleHealth)
		api.Post("/warmup", handleWarmup(deps.Turn))
		api.Get("/warmup/status", handleWarmupStatus(deps.Turn))
	})

	if deps.SandboxRoot != "" {
		r.Handle("/sandbox/*", http.StripPrefix("/sandbox/", http.FileServer(http.Dir(deps.SandboxRoot))))
	}

	var handler http.Handler = r
	if deps.Debug {
		handler = debug.HTTP()(handler)
	}
	handler = log.HTTP(ctx)(handler)
	return handler
}

// corsMiddleware allows the configured UI origin with credentials, per
// spec.md §4.7's "CORS must allow the UI origin with credentials".
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-Id, X-Trace-Id")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Serve starts an HTTP server on addr and blocks until ctx is canceled,
// then shuts down gracefully with a 30s sub-context, matching
// example/cmd/assistant/http.go's lifecycle.
func Serve(ctx context.Context, addr string, handler http.Handler, errc chan<- error) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 60 * time.Second}
	go func() {
		log.Printf(ctx, "HTTP server listening on %q", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	go func() {
		<-ctx.Done()
		log.Printf(ctx, "shutting down HTTP server at %q", addr)
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf(ctx, "failed to shutdown: %v", err)
		}
	}()
	return srv
}
