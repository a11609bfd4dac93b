// Command pitchline is the main entry point for the Pitchline call server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/pitchline-ai/pitchline/internal/app"
	"github.com/pitchline-ai/pitchline/internal/config"
	"github.com/pitchline-ai/pitchline/internal/observe"
	"github.com/pitchline-ai/pitchline/internal/resilience"
	"github.com/pitchline-ai/pitchline/pkg/provider/analysis"
	analysismock "github.com/pitchline-ai/pitchline/pkg/provider/analysis/mock"
	"github.com/pitchline-ai/pitchline/pkg/provider/analysis/anyllm"
	analysisopenai "github.com/pitchline-ai/pitchline/pkg/provider/analysis/openai"
	"github.com/pitchline-ai/pitchline/pkg/provider/voice"
	voicemock "github.com/pitchline-ai/pitchline/pkg/provider/voice/mock"
	"github.com/pitchline-ai/pitchline/pkg/provider/voice/vapi"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", false, "reload the configuration file on change")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pitchline: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pitchline: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("pitchline starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers (metrics for /metrics, tracer for spans).
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if !d.Changed() {
				return
			}
			if d.LogLevelChanged {
				slog.SetDefault(newLogger(d.NewLogLevel))
				slog.Info("log level updated", "level", d.NewLogLevel)
			}
			application.ApplyConfig(d, new)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Voice
	reg.RegisterVoice("vapi", func(entry config.ProviderEntry, callID string) (voice.Client, error) {
		var opts []vapi.Option
		if entry.BaseURL != "" {
			opts = append(opts, vapi.WithBaseURL(entry.BaseURL))
		}
		return vapi.New(entry.APIKey, callID, opts...)
	})
	reg.RegisterVoice("mock", func(_ config.ProviderEntry, _ string) (voice.Client, error) {
		return voicemock.New(), nil
	})

	// Analysis
	reg.RegisterAnalysis("openai", func(entry config.ProviderEntry) (analysis.Provider, error) {
		var opts []analysisopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, analysisopenai.WithBaseURL(entry.BaseURL))
		}
		return analysisopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, mistral and groq share the anyllm pattern:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{"anthropic", "gemini", "mistral", "groq"} {
		reg.RegisterAnalysis(providerName, func(entry config.ProviderEntry) (analysis.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterAnalysis("ollama", func(entry config.ProviderEntry) (analysis.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	reg.RegisterAnalysis("mock", func(config.ProviderEntry) (analysis.Provider, error) {
		return &analysismock.Provider{
			Result: &types.AnalysisResult{
				Score:    50,
				Feedback: "Mock analysis backend; configure a real provider for scoring.",
			},
		}, nil
	})
}

// buildProviders instantiates the configured providers using the registry
// and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	voiceEntry := cfg.Providers.Voice
	if voiceEntry.Name == "" {
		return nil, fmt.Errorf("providers.voice is required")
	}
	ps.DialVoice = func(_ context.Context, callID string) (voice.Client, error) {
		return reg.CreateVoice(voiceEntry, callID)
	}
	slog.Info("provider configured", "kind", "voice", "name", voiceEntry.Name)

	name := cfg.Providers.Analysis.Name
	if name == "" {
		return nil, fmt.Errorf("providers.analysis is required")
	}
	primary, err := reg.CreateAnalysis(cfg.Providers.Analysis)
	if err != nil {
		return nil, fmt.Errorf("create analysis provider %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "analysis", "name", name)

	group := resilience.NewAnalysisFallback(name, primary)
	if fb := cfg.Providers.AnalysisFallback; fb.Name != "" {
		fallback, err := reg.CreateAnalysis(fb)
		if err != nil {
			return nil, fmt.Errorf("create analysis fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, fallback)
		slog.Info("provider created", "kind", "analysis-fallback", "name", fb.Name)
	}

	ps.Analyzer = group
	ps.AnalyzerName = name
	return ps, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Pitchline — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Voice", cfg.Providers.Voice.Name, cfg.Providers.Voice.Model)
	printProvider("Analysis", cfg.Providers.Analysis.Name, cfg.Providers.Analysis.Model)
	printProvider("Fallback", cfg.Providers.AnalysisFallback.Name, cfg.Providers.AnalysisFallback.Model)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Storage         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Storage         : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
