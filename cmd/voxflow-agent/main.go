package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxflow-go/voxflow/internal/metrics"
	"github.com/voxflow-go/voxflow/internal/store"
	"github.com/voxflow-go/voxflow/pkg/engine/cache"
	"github.com/voxflow-go/voxflow/pkg/engine/call"
	"github.com/voxflow-go/voxflow/pkg/engine/config"
	"github.com/voxflow-go/voxflow/pkg/engine/intent"
	"github.com/voxflow-go/voxflow/pkg/engine/objection"
	"github.com/voxflow-go/voxflow/pkg/engine/phase"
	"github.com/voxflow-go/voxflow/pkg/engine/scenario"
	"github.com/voxflow-go/voxflow/pkg/engine/stt"
	"github.com/voxflow-go/voxflow/pkg/engine/transport/wsari"
)

type agentDeps struct {
	loadConfig   func() (config.Config, error)
	dialPBX      func(context.Context, wsari.Config, *slog.Logger) (*wsari.Client, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultAgentDeps() agentDeps {
	return agentDeps{
		loadConfig: config.LoadFromEnv,
		dialPBX:    wsari.Dial,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func runAgent(ctx context.Context, logger *slog.Logger, deps agentDeps, scenarioName string, numbers []string) error {
	if scenarioName == "" {
		return errors.New("a scenario name is required (-scenario)")
	}
	if len(numbers) == 0 {
		return errors.New("at least one number to dial is required")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cacheStore := cache.New()
	scenarios := scenario.NewLoader(cfg.ScenarioDir, cacheStore, logger)
	objections := objection.NewStore(cfg.ObjectionDir, cacheStore, logger)
	transcriber := stt.NewHTTPTranscriber(cfg.STTURL, cfg.STTTimeout)

	pbx, err := deps.dialPBX(ctx, wsari.Config{
		URL:              cfg.PBXURL,
		HandshakeTimeout: cfg.WSHandshakeTimeout,
		WriteTimeout:     cfg.WSWriteTimeout,
		PingInterval:     cfg.WSPingInterval,
		MaxMessageBytes:  cfg.WSMaxMessageBytes,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect pbx: %w", err)
	}
	defer pbx.Close()

	executor := phase.NewExecutor(pbx, transcriber, phase.Config{
		SpeechStart:        cfg.SpeechStart,
		BargeInThreshold:   cfg.BargeInThreshold,
		SmoothDelay:        cfg.SmoothDelay,
		AMDSampleDuration:  cfg.AMDSampleDuration,
		AMDMinConfidence:   cfg.AMDMinConfidence,
		SilenceThreshold:   cfg.SilenceThreshold,
		WaitTimeout:        cfg.WaitTimeout,
		MinCaptureDuration: cfg.MinCaptureDuration,
	}, logger)

	m := metrics.New("")

	callCfg := call.Config{
		CallerID:               cfg.PBXCallerID,
		AnswerTimeout:          cfg.AnswerTimeout,
		MaxConsecutiveSilences: cfg.MaxConsecutiveSilences,
		MaxConsecutiveNoMatch:  cfg.MaxConsecutiveNoMatch,
		ObjectionMinScore:      cfg.ObjectionMinScore,
		LeadFraction:           cfg.LeadFraction,
		DrainGrace:             cfg.ShutdownGracePeriod,
		OnCallStart:            m.ActiveCalls.Inc,
		OnCallEnd:              m.ActiveCalls.Dec,
	}
	orch := call.NewOrchestrator(pbx, m.TimePhases(executor), intent.New(intent.DefaultConfig()), objections, callCfg, logger)
	if cfg.SentimentURL != "" {
		orch.SetSentiment(stt.NewHTTPSentiment(cfg.SentimentURL, cfg.STTTimeout))
	}

	limiter := call.NewDialLimiter(call.DialConfig{
		CallsPerSecond:     cfg.DialCallsPerSecond,
		Burst:              cfg.DialBurst,
		MaxConcurrentCalls: cfg.MaxConcurrentCalls,
	})
	eng := call.NewEngine(pbx, orch, scenarios, call.NewRegistry(), limiter, callCfg, logger)

	outcomes, err := store.NewSQLite(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open outcome store: %w", err)
	}
	defer outcomes.Close()
	eng.AddSink(outcomes)

	eng.AddSink(m)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
		defer metricsSrv.Close()
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	go func() {
		if err := eng.Serve(serveCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event pump stopped", "error", err)
		}
	}()

	logger.Info("dialing campaign", "scenario", scenarioName, "numbers", len(numbers))

	dialCtx, stopDialing := context.WithCancel(ctx)
	defer stopDialing()

	var wg sync.WaitGroup
	for _, number := range numbers {
		wg.Add(1)
		go func(number string) {
			defer wg.Done()
			dialOne(dialCtx, eng, m, logger, number, scenarioName)
		}(number)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case <-done:
		logger.Info("campaign finished")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		stopDialing()
	case <-ctx.Done():
		stopDialing()
	}

	eng.Drain(context.Background())
	logger.Info("agent stopped")
	return nil
}

// dialOne retries a single number while dial pacing refuses it, then
// runs the call to completion.
func dialOne(ctx context.Context, eng *call.Engine, m *metrics.Metrics, logger *slog.Logger, number, scenarioName string) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := eng.Dial(ctx, number, scenarioName)
		switch {
		case errors.Is(err, call.ErrDialRefused):
			m.DialsRefused.Inc()
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		case errors.Is(err, call.ErrDraining), errors.Is(err, context.Canceled):
			return
		case err != nil:
			logger.Error("call failed", "number", number, "error", err)
			return
		default:
			logger.Info("call done", "number", number, "outcome", res.Outcome, "score", res.Score)
			return
		}
	}
}

func runMain(ctx context.Context, stderr io.Writer, args []string, deps agentDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	fs := flag.NewFlagSet("voxflow-agent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scenarioName := fs.String("scenario", "", "scenario to run for every dialed number")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	_ = godotenv.Load()

	if err := runAgent(ctx, logger, deps, *scenarioName, fs.Args()); err != nil {
		fmt.Fprintf(stderr, "voxflow-agent: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, os.Args[1:], defaultAgentDeps()))
}
