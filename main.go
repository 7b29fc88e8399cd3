package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/n0madic/claude-chatmock/internal/auth"
	"github.com/n0madic/claude-chatmock/internal/config"
	"github.com/n0madic/claude-chatmock/internal/limits"
	"github.com/n0madic/claude-chatmock/internal/observe"
	"github.com/n0madic/claude-chatmock/internal/proxy"
	"github.com/n0madic/claude-chatmock/internal/session"
	"github.com/n0madic/claude-chatmock/internal/upstream"
)

//go:embed prompts/prompt.md
var promptMD string

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		slog.ErrorContext(ctx, "claude-chatmock failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "claude-chatmock",
		Usage:   "Claude-style chat API backed by a ChatGPT account",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("CHATMOCK_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			infoCommand(),
		},
	}
}

// overrideFlags maps serve flags onto config keys. Only flags given on the
// command line override the file and environment.
var overrideFlags = map[string]string{
	"host":                    "host",
	"port":                    "port",
	"verbose":                 "verbose",
	"debug":                   "debug",
	"access-token":            "access_token",
	"reasoning-effort":        "reasoning.effort",
	"reasoning-summary":       "reasoning.summary",
	"reasoning-compat":        "reasoning.compat",
	"debug-model":             "debug_model",
	"expose-reasoning-models": "expose_reasoning_models",
	"instructions-file":       "instructions_file",
	"files-root":              "files.root",
	"log-level":               "log.level",
	"log-format":              "log.format",
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the proxy server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "bind host"},
			&cli.IntFlag{Name: "port", Usage: "listen port"},
			&cli.BoolFlag{Name: "verbose", Usage: "log upstream request summaries"},
			&cli.BoolFlag{Name: "debug", Usage: "log normalized requests at debug level"},
			&cli.StringFlag{Name: "access-token", Usage: "require this bearer token from clients"},
			&cli.StringFlag{Name: "reasoning-effort", Usage: "reasoning effort (minimal|low|medium|high|xhigh)"},
			&cli.StringFlag{Name: "reasoning-summary", Usage: "reasoning summary (auto|concise|detailed|none)"},
			&cli.StringFlag{Name: "reasoning-compat", Usage: "reasoning output mode (think-tags|o3|legacy|current)"},
			&cli.StringFlag{Name: "debug-model", Usage: "force every request to this upstream model"},
			&cli.BoolFlag{Name: "expose-reasoning-models", Usage: "list effort variants as separate models"},
			&cli.StringFlag{Name: "instructions-file", Usage: "replace the built-in base instructions"},
			&cli.StringFlag{Name: "files-root", Usage: "directory file attachments are read from"},
			&cli.StringFlag{Name: "log-level", Usage: "log level (debug|info|warn|error)"},
			&cli.StringFlag{Name: "log-format", Usage: "log format (text|json)"},
		},
		Action: serveAction,
	}
}

func flagOverrides(cmd *cli.Command) map[string]any {
	overrides := make(map[string]any)
	for flag, key := range overrideFlags {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.Value(flag)
		}
	}
	return overrides
}

func loadConfig(cmd *cli.Command, overrides map[string]any) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"), overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, flagOverrides(cmd))
	if err != nil {
		return err
	}

	level, err := observe.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if cfg.Debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	if err := observe.Instrument(level, cfg.Log.Format); err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}

	opts := proxy.Options{}
	if cfg.Metrics.Enabled {
		provider, err := observe.NewProvider("claude-chatmock", version)
		if err != nil {
			return fmt.Errorf("set up metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				slog.WarnContext(shutdownCtx, "metrics shutdown", "error", err)
			}
		}()
		opts.Metrics = provider.Metrics
		opts.MetricsHandler = provider.Handler()
	}

	instructions, err := cfg.BaseInstructions(promptMD)
	if err != nil {
		return err
	}
	opts.Instructions = instructions

	store, err := auth.NewStore(cfg.Auth.Storage)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenManager(store, cfg.Auth.ClientID, cfg.Auth.TokenURL)
	if _, _, err := tokens.Credentials(ctx); err != nil {
		slog.WarnContext(ctx, "no usable ChatGPT credentials yet; requests will fail with 401 until you sign in", "error", err)
	}

	client := upstream.NewClient(tokens, session.NewCache(session.DefaultCapacity), &limits.FileRecorder{}, upstream.Options{
		URL:              cfg.Upstream.URL,
		Timeout:          cfg.Upstream.Timeout,
		Verbose:          cfg.Verbose,
		ForwardMaxTokens: cfg.ForwardMaxTokens,
	})

	slog.InfoContext(ctx, "claude-chatmock starting",
		"addr", cfg.Addr(),
		"auth_storage", cfg.Auth.Storage,
		"reasoning_effort", cfg.Reasoning.Effort,
		"metrics", cfg.Metrics.Enabled,
	)
	if err := proxy.New(cfg, client, opts).Run(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the signed-in account and the last recorded usage limits",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			store, err := auth.NewStore(cfg.Auth.Storage)
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(store, cfg.Auth.ClientID, cfg.Auth.TokenURL)
			printAccount(ctx, os.Stdout, tokens)
			printUsageLimits(os.Stdout, (&limits.FileRecorder{}).Load(), time.Now())
			return nil
		},
	}
}
