package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/webhook-gateway/config"
	"github.com/marcelsud/webhook-gateway/endpoint"
	"github.com/marcelsud/webhook-gateway/envelope"
	"github.com/marcelsud/webhook-gateway/guard"
	guardredis "github.com/marcelsud/webhook-gateway/guard/redis"
	httpchi "github.com/marcelsud/webhook-gateway/internal/http/chi"
	"github.com/marcelsud/webhook-gateway/metrics"
	"github.com/marcelsud/webhook-gateway/router"
	routerredis "github.com/marcelsud/webhook-gateway/router/redis"
)

const TIMEOUT = 30 * time.Second

/* main wires the pipeline together: configuration, endpoint and route
 * registries, the guard store, the dispatcher and the HTTP surfaces.
 * Imports flow in one direction only: the binary imports the domain
 * packages, never the other way around.
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	endpoints := endpoint.NewRegistry()
	if err := endpoints.Load(cfg.GetEndpointsFile()); err != nil {
		fmt.Println(err)
		return
	}
	routes := router.NewRegistry()
	if err := router.Load(routes, cfg.GetRoutesFile()); err != nil {
		fmt.Println(err)
		return
	}

	collector := metrics.NewCollector()
	health := metrics.NewHealth(cfg.GetVersion())

	// Single-process deployments keep limiter state in memory; pointing
	// REDIS_ADDR at a shared instance makes limits global across gateways
	var guardStore guard.Store
	var sink router.AuditSink = router.NopSink{}
	if cfg.RedisAddr != "" {
		store, err := guardredis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			fmt.Println(err)
			return
		}
		guardStore = store
		redisSink, err := routerredis.NewSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			fmt.Println(err)
			return
		}
		sink = redisSink
		health.AddCheck("deadletter", redisSink)
	} else {
		guardStore = guard.NewMemoryStore(cfg.GetGuardTTL())
	}
	defer guardStore.Close(ctx)

	abuseGuard := guard.New(guardStore)
	health.AddCheck("limiter_store", abuseGuard)

	handlers := router.NewHandlerRegistry()
	registerHandlers(handlers)

	dispatcher := router.NewDispatcher(routes, handlers, sink, collector, router.Options{
		Workers:       cfg.GetDispatchWorkers(),
		RetryQueueCap: cfg.GetRetryQueueCap(),
	})
	defer dispatcher.Close()

	exporter, err := metrics.NewOTelExporter(collector)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer exporter.Shutdown(ctx)

	r := httpchi.Handlers(ctx, httpchi.Deps{
		Endpoints:         endpoints,
		Secrets:           endpoints,
		Guard:             abuseGuard,
		Routes:            routes,
		Dispatcher:        dispatcher,
		Collector:         collector,
		Health:            health,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		MetricsHandler:    exporter.ServeHTTP(),
	})

	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.GetPort(),
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.GetPort())
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

// registerHandlers binds handler references used in routes.yaml to
// implementations. Real deployments wire their business handlers here;
// the default acknowledges every event.
func registerHandlers(handlers *router.HandlerRegistry) {
	handlers.Register("ack", router.HandlerFunc(func(ctx context.Context, env envelope.Envelope) error {
		return nil
	}))
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
