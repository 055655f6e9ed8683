package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/quietline/quietline/pkg/ai"
	"github.com/quietline/quietline/pkg/gateway/config"
	gatewayserver "github.com/quietline/quietline/pkg/gateway/server"
	"github.com/quietline/quietline/pkg/screen/finalize"
	"github.com/quietline/quietline/pkg/screen/registry"
	"github.com/quietline/quietline/pkg/store"
	"github.com/quietline/quietline/pkg/voice/stt"
	"github.com/quietline/quietline/pkg/voice/tts"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	buildServer  func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:  config.LoadFromEnv,
		buildServer: buildServer,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildServer wires the concrete adapters configured in the environment.
// Missing credentials degrade that adapter rather than refusing to start:
// the engine speaks fallbacks and the finalizer uses defaults.
func buildServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error) {
	adapters := gatewayserver.Adapters{}
	cleanup := func() {}

	var assistant *ai.OpenAI
	if cfg.OpenAIAPIKey != "" {
		assistant = ai.NewOpenAI(cfg.OpenAIAPIKey)
		adapters.Assistant = assistant
	} else {
		logger.Warn("OPENAI_API_KEY not set, assistant disabled")
		adapters.Assistant = ai.Disabled{}
	}

	if cfg.CartesiaAPIKey != "" {
		adapters.STT = stt.NewCartesia(cfg.CartesiaAPIKey)
	} else {
		logger.Warn("CARTESIA_API_KEY not set, transcription disabled")
	}

	if cfg.ElevenLabsAPIKey != "" {
		adapters.Synth = synthAdapter{provider: tts.NewElevenLabs(cfg.ElevenLabsAPIKey)}
	} else {
		logger.Warn("ELEVENLABS_API_KEY not set, synthesis disabled")
		adapters.Synth = synthAdapter{}
	}

	var callStore finalize.Store
	if !cfg.PersistDisabled {
		fs, err := store.NewFirestore(ctx, store.Config{
			CallsCollection: cfg.CallsCollection,
			UsersCollection: cfg.UsersCollection,
		})
		if err != nil {
			logger.Warn("firestore unavailable, records will not be persisted", "error", err)
		} else {
			callStore = fs
			cleanup = func() { _ = fs.Close() }
		}
	}

	var summarizer finalize.Summarizer
	if assistant != nil {
		summarizer = assistant
	}
	adapters.Finalizer = finalize.New(summarizer, callStore, logger, finalize.Config{
		SummaryTimeout:  cfg.FinalizeTimeout / 2,
		AnalysisTimeout: cfg.FinalizeTimeout / 2,
		PersistTimeout:  cfg.FinalizeTimeout / 3,
	})

	return gatewayserver.New(cfg, logger, registry.New(), adapters), cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildServer == nil {
		return errors.New("missing buildServer dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv, cleanup, err := deps.buildServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer cleanup()

	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	// Give active calls a chance to finalize before forcing them down.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !srv.Registry().Wait(waitCtx) {
		logger.Warn("forcing remaining sessions to stop", "count", srv.Registry().Count())
		srv.Registry().CancelAll()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("no .env file loaded", "error", err)
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "quietline-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
