package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"ledgerlens/internal/logging"
	"ledgerlens/internal/parsesvc"
	"ledgerlens/internal/vision"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Local secrets file, ignored when absent
	_ = godotenv.Load()

	fs := ff.NewFlagSet("ledgerlens-server")
	var (
		port         = fs.IntLong("port", 8090, "HTTP server port")
		backendType  = fs.StringLong("backend", "openai", "Vision backend: 'openai' or 'gemini'")
		openaiURL    = fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
		openaiKey    = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		miniModel    = fs.StringLong("mini-model", "", "Cheap first-attempt model (default gpt-4o-mini / gemini-2.0-flash)")
		fullModel    = fs.StringLong("full-model", "", "Fallback model (default gpt-4o / gemini-2.5-pro)")
		noRateLimit  = fs.BoolLong("no-rate-limit", "Disable per-client rate limiting")
		rateLimitMax = fs.IntLong("rate-limit-max", parsesvc.DefaultMaxRequests, "Max requests per client per window")
		rateWindowMS = fs.IntLong("rate-limit-window-ms", int(parsesvc.DefaultWindow/time.Millisecond), "Rate limit window in milliseconds")
		logJSON      = fs.BoolLong("log-json", "Log in JSON format")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LEDGERLENS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logCfg := logging.DefaultConfig()
	logCfg.JSON = *logJSON
	logging.Setup(logCfg)

	// Initialize vision backends
	var mini, full vision.Model
	var err error
	switch *backendType {
	case "openai":
		apiKey := *openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("OpenAI API key is required. Set --openai-key flag or OPENAI_API_KEY environment variable")
			os.Exit(1)
		}
		miniName := *miniModel
		if miniName == "" {
			miniName = "gpt-4o-mini"
		}
		fullName := *fullModel
		if fullName == "" {
			fullName = "gpt-4o"
		}
		slog.Info("Initializing OpenAI backend...", "mini", miniName, "full", fullName)
		mini, err = vision.NewOpenAI(*openaiURL, apiKey, miniName)
		if err == nil {
			full, err = vision.NewOpenAI(*openaiURL, apiKey, fullName)
		}
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		miniName := *miniModel
		if miniName == "" {
			miniName = "gemini-2.0-flash"
		}
		fullName := *fullModel
		if fullName == "" {
			fullName = "gemini-2.5-pro"
		}
		slog.Info("Initializing Gemini backend...", "mini", miniName, "full", fullName)
		mini, err = vision.NewGemini(apiKey, miniName)
		if err == nil {
			full, err = vision.NewGemini(apiKey, fullName)
		}
	default:
		slog.Error("Invalid backend type", "type", *backendType, "valid", "openai or gemini")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize vision backend", "error", err)
		os.Exit(1)
	}

	parser := vision.NewTiered(mini, full)
	defer parser.Close()

	limiter := parsesvc.NewRateLimiter(
		*rateLimitMax,
		time.Duration(*rateWindowMS)*time.Millisecond,
		!*noRateLimit,
	)

	server := parsesvc.NewServer(parser, limiter, version)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Parse service started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
