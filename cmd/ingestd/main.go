// Command ingestd runs the metric ingestion service: a single accept
// loop (C8) dispatching into a fixed worker pool (C7), a striped
// sliding-window rate limiter (C1/C3), a hand-rolled JSON batch parser
// (C4), a durable writer (C5), and a flusher (C6) emitting rate-limit
// decision events to monitoring.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/adred-codev/metricstream/internal/config"
	"github.com/adred-codev/metricstream/internal/httpserver"
	"github.com/adred-codev/metricstream/internal/ingest"
	"github.com/adred-codev/metricstream/internal/monitoring"
	"github.com/adred-codev/metricstream/internal/ratelimit"
	"github.com/adred-codev/metricstream/internal/workerpool"
	"github.com/adred-codev/metricstream/internal/writer"
	_ "go.uber.org/automaxprocs"
)

func splitBrokers(brokers string) []string {
	result := []string{}
	for _, b := range strings.Split(brokers, ",") {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func main() {
	var debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootLogger := log.New(os.Stdout, "[ingestd] ", log.LstdFlags)

	maxProcs := runtime.GOMAXPROCS(0)
	bootLogger.Printf("GOMAXPROCS: %d (via automaxprocs)", maxProcs)

	cfg, err := config.Load(nil)
	if err != nil {
		bootLogger.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.Print()

	logger := monitoring.NewLogger(monitoring.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// C1/C3: striped sliding-window rate limiter.
	limiter := ratelimit.New(ratelimit.Config{
		Limit:           cfg.RateLimitPerSecond,
		StripeCount:     cfg.RateLimitStripes,
		ClientTTL:       cfg.RateLimitClientTTL,
		CleanupInterval: cfg.RateLimitCleanupInt,
	})
	go limiter.RunCleanup(ctx, cfg.RateLimitCleanupInt)

	// C6: decision-event flusher, fanning out to the log sink and,
	// optionally, a NATS republish sink.
	var decisionSinks []monitoring.DecisionSink
	logSink := monitoring.NewLogSink(logger)
	decisionSinks = append(decisionSinks, logSink)
	if cfg.NATSUrl != "" {
		natsSink, err := monitoring.NewNATSSink(cfg.NATSUrl, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats sink unavailable, continuing without it")
		} else {
			decisionSinks = append(decisionSinks, natsSink)
			defer natsSink.Close()
		}
	}
	flusher := ratelimit.NewFlusher(limiter, monitoring.NewMultiSink(decisionSinks...), cfg.FlushInterval)
	go flusher.Run(ctx)

	// C4: single-pass JSON batch parser.
	parser := ingest.NewParser(cfg.BodyCapBytes)

	// C5: durable writer, with an optional Kafka mirror sink.
	fileSink, err := writer.NewFileSink(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StoragePath).Msg("failed to open storage sink")
	}
	defer fileSink.Close()

	var mirror writer.MirrorSink
	if cfg.KafkaBrokers != "" {
		kafkaSink, err := writer.NewKafkaMirrorSink(splitBrokers(cfg.KafkaBrokers), cfg.KafkaTopic)
		if err != nil {
			logger.Warn().Err(err).Msg("kafka mirror sink unavailable, continuing without it")
		} else {
			mirror = kafkaSink
			defer kafkaSink.Close()
		}
	}

	durableWriter := writer.New(fileSink, mirror, logger, writer.Config{
		Capacity:   cfg.WriterQueueCapacity,
		MaxRetries: cfg.WriterMaxRetries,
	})
	go func() {
		defer monitoring.RecoverPanic(logger, "writer.Run", nil)
		durableWriter.Run()
	}()

	// C7: fixed worker pool.
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 2 * maxProcs
	}
	pool := workerpool.New(workerCount, cfg.WorkerQueueCapacity, logger)
	pool.Start(ctx)

	// Domain-stack connection admission valve, in front of C8.
	connLimiter := httpserver.NewConnLimiter(httpserver.ConnLimiterConfig{
		IPBurst:     cfg.ConnLimitIPBurst,
		IPRate:      cfg.ConnLimitIPRate,
		GlobalBurst: cfg.ConnLimitGlobalBurst,
		GlobalRate:  cfg.ConnLimitGlobalRate,
		IPTTL:       cfg.ConnLimitIPTTL,
		Logger:      logger,
	})
	connLimiterCleanup := time.NewTicker(cfg.ConnLimitIPTTL)
	go func() {
		defer monitoring.RecoverPanic(logger, "connLimiter.Cleanup", nil)
		for {
			select {
			case <-connLimiterCleanup.C:
				connLimiter.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	// C8/C9: accept loop and request router.
	srv := httpserver.New(httpserver.Config{
		Addr:        cfg.Addr,
		IdleTimeout: cfg.IdleTimeout,
		BodyCap:     cfg.BodyCapBytes,
	}, limiter, parser, durableWriter, pool, connLimiter, logger)

	// Container-aware resource monitoring, exposed via Prometheus, alerting
	// on CPU throttling via console and (if configured) Slack.
	alerters := []monitoring.Alerter{monitoring.NewConsoleAlerter()}
	if cfg.SlackWebhookURL != "" {
		alerters = append(alerters, monitoring.NewSlackAlerter(cfg.SlackWebhookURL, cfg.SlackChannel, "ingestd"))
	}
	sysMonitor := monitoring.GetSystemMonitor(logger)
	sysMonitor.SetAlerter(monitoring.NewMultiAlerter(alerters...))
	sysMonitor.StartMonitoring(cfg.MetricsInterval)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/internal/metrics", monitoring.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server exited with error")
		}
	}

	cancel()
	connLimiterCleanup.Stop()
	pool.Stop()
	durableWriter.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	sysMonitor.Shutdown()
	logger.Info().Msg("shutdown complete")
}
