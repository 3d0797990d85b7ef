// Command kerneld runs one kernel region behind the control-plane HTTP API:
// a background goroutine drives the editor's debounce/reclaim tick and the
// audio consumer's per-quantum poll at the configured tempo, while the gin
// router (internal/api) exposes health, stats, and admin routes over it.
// Adapted from the teacher's main.go (godotenv load -> config -> sentry init
// -> router -> listen), with LLM/Langfuse initialization dropped and the
// kernel run-loop added in its place.
package main

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Conceptual-Machines/magda-api/internal/api"
	"github.com/Conceptual-Machines/magda-api/internal/config"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/bridge"
	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/mmu"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/region"
	"github.com/Conceptual-Machines/magda-api/internal/logger"
	"github.com/Conceptual-Machines/magda-api/internal/metrics"
	"github.com/Conceptual-Machines/magda-api/internal/store"

	"github.com/Conceptual-Machines/magda-api/internal/kernel/consumer"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build.
var releaseVersion = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.Load()
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:           cfg.SentryDSN,
			Environment:   cfg.Environment,
			Release:       "symbiont-kernel@" + releaseVersion,
			EnableTracing: true,
			Debug:         cfg.Environment != environmentProduction,
		}); err != nil {
			log.Printf("failed to initialize Sentry: %v", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	cwMetrics, err := metrics.NewClient(context.Background(), cfg.Environment)
	if err != nil {
		log.Printf("failed to initialize CloudWatch client: %v", err)
	}
	sentryMetrics := metrics.NewSentryMetrics()

	r := region.NewRegion(region.Config{
		NodeCapacity:        cfg.KernelNodeCapacity,
		CommandRingCapacity: cfg.KernelCommandRingCapacity,
		SynapseCapacity:     cfg.KernelSynapseCapacity,
		PPQ:                 cfg.KernelPPQ,
		TempoBPM:            cfg.KernelTempoBPM,
		SafeZoneTicks:       cfg.KernelSafeZoneTicks,
		InstanceID:          cfg.InstanceID,
	})
	m := mmu.New(r)
	b := bridge.New(r, m)
	c := consumer.New(r, m, cfg.KernelQuantumTicks)
	c.FiredRing = b.FiredRing

	b.OnError = func(code kerrors.Code) {
		logger.KernelEvent(context.Background(), code, nil)
		if cwMetrics != nil {
			cwMetrics.RecordKernelEvent(r.InstanceID(), code.String(), tierName(code))
		}
		sentryMetrics.RecordKernelEvent(r.InstanceID(), code.String(), tierName(code))
	}

	var st *store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.New(cfg.DatabaseURL)
		if err != nil {
			log.Printf("failed to connect brain-snapshot store: %v", err)
			st = nil
		}
	}

	stop := make(chan struct{})
	go runKernelLoop(r, b, c, cwMetrics, sentryMetrics, stop)
	defer close(stop)

	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.SetupRouter(cfg, b, st, releaseVersion)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("starting kerneld on port %s (instance %s)", port, r.InstanceID())
	if err := router.Run(":" + port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("failed to start server:", err)
	}
}

// runKernelLoop drives the editor's debounce/reclaim tick and the audio
// consumer's per-quantum poll at the region's configured tempo, emulating
// the two independent clock domains spec.md §5 describes without a real
// audio driver.
func runKernelLoop(r *region.Region, b *bridge.Bridge, c *consumer.Consumer, cw *metrics.Client, sm *metrics.SentryMetrics, stop <-chan struct{}) {
	ppq := r.Header.PPQ.Load()
	bpm := r.Header.TempoBPM.Load()
	if bpm == 0 {
		bpm = 120
	}
	quantumInterval := time.Minute / time.Duration(uint64(bpm)*uint64(ppq)) * time.Duration(c.QuantumTicks)
	if quantumInterval <= 0 {
		quantumInterval = time.Millisecond
	}

	ticker := time.NewTicker(quantumInterval)
	defer ticker.Stop()

	eventsEmitted := 0
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.Tick()
			eventsEmitted += len(c.Process())
		case <-statsTicker.C:
			stats := b.Stats()
			if cw != nil {
				cw.RecordKernelStats(r.InstanceID(), stats.LiveNodes, stats.FreeCount, stats.TelemetryOps, eventsEmitted)
			}
			sm.RecordKernelStats(r.InstanceID(), stats.LiveNodes, stats.FreeCount, stats.TelemetryOps, eventsEmitted)
			eventsEmitted = 0
		}
	}
}

func tierName(code kerrors.Code) string {
	switch code.Tier() {
	case kerrors.TierFatal:
		return "fatal"
	case kerrors.TierSurfaced:
		return "surfaced"
	default:
		return "absorbed"
	}
}
