package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/medagg/cardiovoice/internal/api"
	"github.com/medagg/cardiovoice/internal/classify"
	"github.com/medagg/cardiovoice/internal/flow"
	"github.com/medagg/cardiovoice/internal/genai"
	"github.com/medagg/cardiovoice/internal/i18n"
	"github.com/medagg/cardiovoice/internal/store"
	"github.com/medagg/cardiovoice/internal/telephony"
	"github.com/medagg/cardiovoice/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for cardiovoice state data
	DefaultStateDir = "/var/lib/cardiovoice"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "cardiovoice.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engineOpts, err := buildEngineOptions(flags, st)
	if err != nil {
		slog.Error("Failed to configure dialogue engine", "error", err)
		os.Exit(1)
	}
	apiOpts := buildAPIOptions(flags, st, engineOpts)

	server, err := api.NewServer(apiOpts...)
	if err != nil {
		slog.Error("Failed to build API server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping cardiovoice with configured modules")
	if err := server.Run(ctx); err != nil {
		slog.Error("cardiovoice failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("cardiovoice exited successfully")
}

// Config holds environment configuration
type Config struct {
	DbBackend   string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	KeywordFile string
	Templates   string
	EnableVoice bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbBackend   *string
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	keywordFile *string
	templates   *string
	enableVoice *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DbBackend:   os.Getenv("CARDIOVOICE_DB_BACKEND"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    util.EnvOrDefault("CARDIOVOICE_STATE_DIR", DefaultStateDir),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     util.EnvOrDefault("API_ADDR", DefaultAPIAddr),
		KeywordFile: os.Getenv("CARDIOVOICE_KEYWORD_FILE"),
		Templates:   os.Getenv("CARDIOVOICE_TEMPLATE_FILE"),
		EnableVoice: util.ParseBoolEnv("CARDIOVOICE_ENABLE_VOICE", false),
	}

	slog.Debug("environment variables loaded",
		"CARDIOVOICE_DB_BACKEND", config.DbBackend,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CARDIOVOICE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"CARDIOVOICE_ENABLE_VOICE", config.EnableVoice)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	dsnDefault := config.DatabaseURL
	if dsnDefault == "" {
		dsnDefault = filepath.Join(config.StateDir, DefaultDBFileName)
	}

	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for cardiovoice data (overrides $CARDIOVOICE_STATE_DIR)"),
		dbBackend:   flag.String("db-backend", config.DbBackend, "store backend: memory, sqlite, or postgres (overrides $CARDIOVOICE_DB_BACKEND)"),
		dbDSN:       flag.String("db-dsn", dsnDefault, "database DSN or SQLite file path (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for the Q&A fallback (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		keywordFile: flag.String("keyword-file", config.KeywordFile, "keyword table JSON file (overrides $CARDIOVOICE_KEYWORD_FILE)"),
		templates:   flag.String("template-file", config.Templates, "response template JSON file (overrides $CARDIOVOICE_TEMPLATE_FILE)"),
		enableVoice: flag.Bool("enable-voice", config.EnableVoice, "enable outbound Twilio voice calls (overrides $CARDIOVOICE_ENABLE_VOICE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbBackend", *flags.dbBackend,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"enableVoice", *flags.enableVoice)

	return flags
}

// buildStore selects the store backend. The backend flag wins; otherwise the
// DSN shape decides between Postgres and SQLite, and memory is the fallback
// when no DSN was configured at all.
func buildStore(flags Flags) (store.Store, error) {
	backend := strings.ToLower(*flags.dbBackend)
	dsn := *flags.dbDSN
	if backend == "" {
		switch {
		case strings.Contains(dsn, "postgres://") || strings.Contains(dsn, "host="):
			backend = "postgres"
		case dsn != "":
			backend = "sqlite"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "postgres":
		slog.Info("Using Postgres store backend")
		return store.NewPostgresStore(store.WithDSN(dsn))
	case "sqlite":
		slog.Info("Using SQLite store backend", "path", dsn)
		return store.NewSQLiteStore(store.WithDSN(dsn))
	default:
		slog.Info("Using in-memory store backend")
		return store.NewInMemoryStore(), nil
	}
}

// buildEngineOptions constructs dialogue engine options from flags.
func buildEngineOptions(flags Flags, st store.Store) ([]flow.Option, error) {
	opts := []flow.Option{flow.WithStore(st)}

	if *flags.keywordFile != "" {
		classifier, err := classify.NewFromFile(*flags.keywordFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, flow.WithClassifier(classifier))
	}
	if *flags.templates != "" {
		localizer, err := i18n.NewFromFile(*flags.templates)
		if err != nil {
			return nil, err
		}
		opts = append(opts, flow.WithLocalizer(localizer))
	}
	if *flags.openaiKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return nil, err
		}
		opts = append(opts, flow.WithGenAI(client))
	}
	return opts, nil
}

// buildAPIOptions constructs API server options. The engine itself is built
// by the server so its transcript listener lands on the server's event hub.
func buildAPIOptions(flags Flags, st store.Store, engineOpts []flow.Option) []api.Option {
	opts := []api.Option{
		api.WithAddr(*flags.apiAddr),
		api.WithStore(st),
		api.WithEngineOptions(engineOpts...),
	}

	if *flags.enableVoice {
		dialer, err := telephony.NewClient()
		if err != nil {
			slog.Error("Voice calling requested but Twilio is not configured", "error", err)
			os.Exit(1)
		}
		opts = append(opts, api.WithDialer(dialer))
	}
	return opts
}
