package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meftunca/podsync/pkg/api"
	"github.com/meftunca/podsync/pkg/config"
	"github.com/meftunca/podsync/pkg/coordinator"
	"github.com/meftunca/podsync/pkg/metrics"
	"github.com/meftunca/podsync/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file (default: search ./configs and /etc/podsync)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("🚀 Starting podsync coordination daemon")

	var coordMetrics *metrics.CoordinationMetrics
	if cfg.Monitoring.Enabled {
		coordMetrics = metrics.NewCoordinationMetrics("podsync")
	}

	coord, err := coordinator.New(cfg, coordinator.Options{Metrics: coordMetrics})
	if err != nil {
		log.Fatalf("Failed to build coordinator: %v", err)
	}
	if err := coord.Start(); err != nil {
		log.Fatalf("Failed to start coordinator: %v", err)
	}
	coordinator.SetDefault(coord)

	log.Printf("✅ Coordinator running, pod %s", coord.PodID())

	// Log leadership-driven job announcements; real work hangs off OnMessage
	// registrations made by the embedding application.
	if err := coord.OnMessage(types.TypeJobCoordination, func(msg *types.CoordinationMessage) {
		log.Printf("🎯 Coordination announced by %s: %v", msg.SourcePod, msg.Payload["operation"])
	}); err != nil {
		log.Fatalf("Failed to register coordination handler: %v", err)
	}

	var adminServer *api.AdminServer
	if cfg.API.Enabled {
		adminServer = api.NewAdminServer(cfg, coord, nil)
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		go func() {
			log.Printf("⚡ Admin API listening on %s", addr)
			if err := adminServer.Start(addr); err != nil {
				log.Printf("⚠️  Admin API stopped: %v", err)
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Monitoring.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Monitoring.MetricsPath, coordMetrics.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Monitoring.MetricsPort),
			Handler: mux,
		}
		go func() {
			log.Printf("📊 Metrics available on :%d%s", cfg.Monitoring.MetricsPort, cfg.Monitoring.MetricsPath)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("⚠️  Metrics server stopped: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("🛑 Shutting down podsync...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if adminServer != nil {
		if err := adminServer.Stop(shutdownCtx); err != nil {
			log.Printf("⚠️  Admin API shutdown: %v", err)
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️  Metrics server shutdown: %v", err)
		}
	}

	coord.Shutdown()
	log.Printf("✅ Shutdown complete")
}
