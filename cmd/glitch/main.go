// Glitch is a conversational assistant backed by the OpenAI chat API.
//
// It exposes an HTTP chat API with a browser UI, an interactive
// terminal REPL, and a CLI for one-shot questions. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	glitch serve             Start the API server and web UI
//	glitch chat              Chat interactively in the terminal
//	glitch init [dir]        Initialize a working directory with defaults
//	glitch ask <question>    Ask a single question (for testing)
//	glitch version           Print version and build information
//	glitch -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/g3ntl3Giants/glitch/internal/api"
	"github.com/g3ntl3Giants/glitch/internal/archive"
	"github.com/g3ntl3Giants/glitch/internal/bot"
	"github.com/g3ntl3Giants/glitch/internal/buildinfo"
	"github.com/g3ntl3Giants/glitch/internal/config"
	"github.com/g3ntl3Giants/glitch/internal/extract"
	"github.com/g3ntl3Giants/glitch/internal/llm"
	"github.com/g3ntl3Giants/glitch/internal/retry"
	"github.com/g3ntl3Giants/glitch/internal/token"
	"github.com/g3ntl3Giants/glitch/internal/tools"
	"github.com/g3ntl3Giants/glitch/internal/transcript"
	"github.com/g3ntl3Giants/glitch/internal/web"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the glitch command. All OS-level
// dependencies are injected as parameters: ctx controls the process
// lifetime, stdin feeds the interactive REPL, stdout and stderr
// receive program output, and args is os.Args[1:]. We parse arguments
// by hand rather than with the flag package to avoid global state that
// interferes with parallel tests.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "chat":
		return runChat(ctx, stdin, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: glitch ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.RuntimeInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// glitch is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Glitch - Conversational Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: glitch [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server and web UI")
	fmt.Fprintln(w, "  chat         Chat interactively in the terminal")
	fmt.Fprintln(w, "  init [dir]   Initialize a working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/glitch/config.yaml, /etc/glitch/config.yaml")
	return nil
}

// newLogger builds a slog.Logger writing to w in the requested format.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// assembly bundles everything needed to mint chat sessions from one
// loaded configuration.
type assembly struct {
	cfg      *config.Config
	client   llm.Client
	tok      *token.Tokenizer
	registry *tools.Registry
	policy   retry.Policy
	logger   *slog.Logger
}

// assemble builds the shared session dependencies: the completion
// client, the tokenizer, the tool registry with built-in capabilities,
// and the retry policy.
func assemble(cfg *config.Config, logger *slog.Logger) (*assembly, error) {
	tok, err := token.New()
	if err != nil {
		return nil, fmt.Errorf("load token encoding: %w", err)
	}

	client := llm.NewOpenAIClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, llm.Params{
		Model:            cfg.OpenAI.Model,
		Temperature:      cfg.OpenAI.Temperature,
		FrequencyPenalty: cfg.OpenAI.FrequencyPenalty,
		PresencePenalty:  cfg.OpenAI.PresencePenalty,
	}, logger)

	registry := tools.NewRegistry(logger)
	registry.RegisterBuiltins(client, filepath.Join(cfg.DataDir, "docs"))

	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
		BackoffFactor:  1.5,
	}

	return &assembly{
		cfg:      cfg,
		client:   client,
		tok:      tok,
		registry: registry,
		policy:   policy,
		logger:   logger,
	}, nil
}

// newSession mints one chat session. When transcriptLog or store is
// non-nil the session records completed exchanges there.
func (a *assembly) newSession(transcriptLog *transcript.Log, store *archive.Store) *bot.Session {
	session := bot.NewSession(a.client, a.tok, a.registry, a.policy, bot.Config{
		SystemPrompt:       a.cfg.Chat.SystemPrompt,
		BotName:            a.cfg.Chat.BotName,
		MaxTurns:           a.cfg.Chat.MaxTurns,
		ChunkTokenLimit:    a.cfg.Chat.ChunkTokenLimit,
		ContextTokenBudget: a.cfg.Chat.ContextTokenBudget,
	}, a.logger)

	if transcriptLog != nil {
		session.SetTranscript(transcriptLog)
	}
	if store != nil {
		session.SetArchive(store)
	}
	return session
}

// runAsk handles the "glitch ask <question>" subcommand. It boots a
// minimal session (no transcript, no archive) and processes a single
// question, printing the response to stdout. Useful for quick smoke
// tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := assemble(cfg, logger)
	if err != nil {
		return err
	}

	session := a.newSession(nil, nil)
	response, err := session.Chat(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, response)
	return nil
}

// runChat handles the "glitch chat" subcommand: the interactive
// terminal REPL with transcript logging.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, configPath string) error {
	logger := newLogger(io.Discard, slog.LevelInfo, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := assemble(cfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	transcriptLog := transcript.New(filepath.Join(cfg.DataDir, "chat_log.txt"), cfg.Chat.BotName)
	session := a.newSession(transcriptLog, nil)

	r := &repl{
		in:        stdin,
		out:       stdout,
		session:   session,
		extractor: extract.NewService(logger),
		botName:   cfg.Chat.BotName,
		spinner:   stdout == os.Stdout,
	}
	return r.Run(ctx)
}

// runServe handles the "glitch serve" subcommand. It is the primary
// operating mode: loads config, opens the archive database, wires the
// session factory into the API and web servers, and blocks until a
// shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Glitch", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. The initial Info-level text logger only covers the
	// startup banner and config errors.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.OpenAI.Model,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	a, err := assemble(cfg, logger)
	if err != nil {
		return err
	}

	store, err := archive.NewStore(filepath.Join(cfg.DataDir, "glitch.db"), logger)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	transcriptLog := transcript.New(filepath.Join(cfg.DataDir, "chat_log.txt"), cfg.Chat.BotName)
	factory := func() *bot.Session {
		return a.newSession(transcriptLog, store)
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, factory, a.registry, logger)
	server.SetArchiveStore(store)
	server.SetWebUI(web.NewServer(cfg.Chat.BotName, factory, logger))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
