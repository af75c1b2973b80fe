package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"nexus/internal/agents"
	"nexus/internal/config"
	"nexus/internal/httpapi"
	"nexus/internal/journal"
	"nexus/internal/orchestrator"
	"nexus/internal/turn"
)

type appConfig struct {
	configPath   string
	logFile      string
	logLevel     string
	resolverMode string
	agentsMode   string
	httpAddr     string
	headless     bool
	altScreen    bool
}

func parseFlags(args []string) (appConfig, error) {
	cfg := appConfig{}
	fs := flag.NewFlagSet("nexus-tui", flag.ContinueOnError)
	fs.StringVar(&cfg.configPath, "config", envOr("NEXUS_CONFIG", ""), "Path to a YAML config file")
	fs.StringVar(&cfg.logFile, "log-file", "", "Log file path (overrides log.file)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.resolverMode, "resolver", "", "Resolver mode: script|gemini")
	fs.StringVar(&cfg.agentsMode, "agents", "", "Agent mode: canned|http")
	fs.StringVar(&cfg.httpAddr, "http-addr", envOr("NEXUS_HTTP_LISTEN", ""), "Serve the JSON API on this address alongside the UI")
	fs.BoolVar(&cfg.headless, "headless", envOrBool("NEXUS_HEADLESS", false), "Run only the JSON API, without the terminal UI")
	fs.BoolVar(&cfg.altScreen, "alt-screen", envOrBool("NEXUS_ALT_SCREEN", true), "Use the terminal alternate screen")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.resolverMode = strings.ToLower(strings.TrimSpace(cfg.resolverMode))
	cfg.agentsMode = strings.ToLower(strings.TrimSpace(cfg.agentsMode))
	return cfg, nil
}

// applyFlags lets command line flags win over file and environment settings.
func applyFlags(app appConfig, cfg *config.Config) error {
	if app.logFile != "" {
		cfg.Log.File = app.logFile
	}
	if app.logLevel != "" {
		cfg.Log.Level = app.logLevel
	}
	if app.resolverMode != "" {
		cfg.Resolver.Mode = app.resolverMode
	}
	if app.agentsMode != "" {
		cfg.Agents.Mode = app.agentsMode
	}
	if app.httpAddr != "" {
		cfg.HTTP.Addr = app.httpAddr
	}
	return cfg.Validate()
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		switch value {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
		return fallback
	}
	return parsed
}

// newLogger writes to a file because the terminal belongs to the UI. Headless
// runs log to stderr instead.
func newLogger(cfg config.LogConfig, headless bool) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if headless {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		return zerolog.New(out).Level(level).With().Timestamp().Logger(), io.NopCloser(nil), nil
	}
	path := strings.TrimSpace(cfg.File)
	if path == "" || path == "-" {
		return zerolog.Nop(), io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	return zerolog.New(f).Level(level).With().Timestamp().Logger(), f, nil
}

func buildResolver(ctx context.Context, cfg config.ResolverConfig, logger zerolog.Logger) (orchestrator.Resolver, func(), error) {
	if cfg.Mode != config.ResolverGemini {
		return orchestrator.Script{}, func() {}, nil
	}
	gemini, err := orchestrator.NewGemini(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	var strategy orchestrator.RetryStrategy = orchestrator.NoRetry{}
	if cfg.Retry == config.RetryBackoff {
		strategy = orchestrator.BackoffRetry{MaxRetries: uint64(cfg.MaxRetries), Base: cfg.RetryBase}
	}
	live, err := orchestrator.NewLive(gemini,
		orchestrator.WithRetry(strategy),
		orchestrator.WithTimeout(cfg.Timeout),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		_ = gemini.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := gemini.Close(); err != nil {
			logger.Warn().Err(err).Msg("gemini client close failed")
		}
	}
	return live, cleanup, nil
}

func buildInvoker(cfg config.AgentsConfig) agents.Invoker {
	if cfg.Mode == config.AgentsHTTP {
		return agents.NewHTTP(cfg.BaseURL, cfg.Timeout)
	}
	return agents.NewCanned(cfg.Latency)
}

func turnOptions(cfg config.DemoConfig, logger zerolog.Logger, recorder turn.Recorder) turn.Options {
	return turn.Options{
		ThinkDelay:        cfg.ThinkDelay,
		PaymentThinkDelay: cfg.PaymentThinkDelay,
		SettleDelay:       cfg.SettleDelay,
		PaymentTimeout:    cfg.PaymentTimeout,
		MaxRounds:         cfg.MaxRounds,
		Logger:            logger,
		Recorder:          recorder,
	}
}

func run(app appConfig) error {
	cfg, err := config.Load(app.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(app, cfg); err != nil {
		return err
	}

	logger, logCloser, err := newLogger(cfg.Log, app.headless)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Info().
		Str("resolver", cfg.Resolver.Mode).
		Str("agents", cfg.Agents.Mode).
		Bool("headless", app.headless).
		Msg("nexus concierge starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, closeResolver, err := buildResolver(ctx, cfg.Resolver, logger)
	if err != nil {
		return err
	}
	defer closeResolver()

	writer := journal.Open(ctx, cfg.Journal, logger)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Warn().Err(err).Msg("journal close failed")
		}
	}()

	ctrl := turn.New(resolver, buildInvoker(cfg.Agents), turnOptions(cfg.Demo, logger, writer))
	defer ctrl.Close()

	if app.headless {
		return httpapi.Serve(ctx, cfg.HTTP.Addr, httpapi.NewRouter(ctrl, logger), logger)
	}

	if app.httpAddr != "" {
		go func() {
			if err := httpapi.Serve(ctx, cfg.HTTP.Addr, httpapi.NewRouter(ctrl, logger), logger); err != nil {
				logger.Error().Err(err).Msg("http api failed")
			}
		}()
	}

	opts := []tea.ProgramOption{tea.WithMouseCellMotion(), tea.WithContext(ctx)}
	if app.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(app, ctrl), opts...)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	logger.Info().Msg("nexus concierge stopped")
	return nil
}

func main() {
	app, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if err := run(app); err != nil {
		fmt.Fprintf(os.Stderr, "nexus-tui fatal error: %v\n", err)
		os.Exit(1)
	}
}
