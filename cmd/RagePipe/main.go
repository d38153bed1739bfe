package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/RagePipe/internal/api"
	"github.com/BTreeMap/RagePipe/internal/genai"
	"github.com/BTreeMap/RagePipe/internal/scheduler"
	"github.com/BTreeMap/RagePipe/internal/store"
	"github.com/BTreeMap/RagePipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/RagePipe/internal/util"
	"github.com/BTreeMap/RagePipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for RagePipe state data
	DefaultStateDir = "/var/lib/ragepipe"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAppDBFileName is the default application SQLite database filename
	DefaultAppDBFileName = "ragepipe.db"
	// DefaultRageConfigFileName is the rage config looked up in the state directory
	DefaultRageConfigFileName = "rage.toml"
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"))

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}
	if *flags.logLevel != "" {
		initializeLogger(*flags.logLevel)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	waOpts := buildWhatsAppOptions(flags)
	twOpts := buildTwilioOptions()
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags, config)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping RagePipe with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "provider", *flags.provider,
		"app_dsn_set", *flags.appDBDSN != "", "api_addr", *flags.apiAddr, "rage_config", *flags.rageConfig)
	if err := api.Run(waOpts, twOpts, storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("RagePipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("RagePipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	OpenAIKey        string
	OpenAIModel      string
	APIAddr          string
	Provider         string
	RageConfig       string
	Persona          string
	JournalRetention time.Duration
	PruneCron        string
	GenAIDebug       bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	whatsappDBDSN    *string
	appDBDSN         *string
	openaiKey        *string
	apiAddr          *string
	provider         *string
	rageConfig       *string
	persona          *string
	journalRetention *time.Duration
	pruneCron        *string
	logLevel         *string
}

// parseLogLevel maps debug, info, warn and error to slog levels. Anything else is debug.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// initializeLogger sets up structured logging on stdout
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         util.StringEnv("RAGEPIPE_STATE_DIR", DefaultStateDir),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: os.Getenv("DATABASE_DSN"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		APIAddr:          os.Getenv("API_ADDR"),
		Provider:         util.StringEnv("RAGEPIPE_PROVIDER", api.ProviderWhatsApp),
		RageConfig:       os.Getenv("RAGE_CONFIG"),
		Persona:          os.Getenv("RAGEPIPE_PERSONA"),
		JournalRetention: util.ParseDurationEnv("JOURNAL_RETENTION", api.DefaultJournalRetention),
		PruneCron:        util.StringEnv("PRUNE_CRON", scheduler.DefaultPruneCron),
		GenAIDebug:       util.ParseBoolEnv("GENAI_DEBUG", false),
	}

	// DATABASE_URL is accepted when DATABASE_DSN is not set
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = os.Getenv("DATABASE_URL")
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
	}
	if config.RageConfig == "" {
		config.RageConfig = filepath.Join(config.StateDir, DefaultRageConfigFileName)
	}

	slog.Debug("environment variables loaded",
		"RAGEPIPE_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"RAGEPIPE_PROVIDER", config.Provider,
		"RAGE_CONFIG", config.RageConfig,
		"JOURNAL_RETENTION", config.JournalRetention)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	fs := flag.NewFlagSet("RagePipe", flag.ContinueOnError)
	flags := Flags{
		qrOutput:         fs.String("qr-output", "", "path to write login QR code"),
		numeric:          fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:         fs.String("state-dir", config.StateDir, "state directory for RagePipe data (overrides $RAGEPIPE_STATE_DIR)"),
		whatsappDBDSN:    fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "database DSN for the WhatsApp device store (overrides $WHATSAPP_DB_DSN)"),
		appDBDSN:         fs.String("db-dsn", config.ApplicationDBDSN, "database DSN for receipts and the rage journal (overrides $DATABASE_DSN)"),
		openaiKey:        fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:          fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		provider:         fs.String("provider", config.Provider, "messaging provider: whatsapp, twilio or none (overrides $RAGEPIPE_PROVIDER)"),
		rageConfig:       fs.String("rage-config", config.RageConfig, "rage TOML config file, reloaded on SIGHUP (overrides $RAGE_CONFIG)"),
		persona:          fs.String("persona", config.Persona, "system prompt of the chat persona (overrides $RAGEPIPE_PERSONA)"),
		journalRetention: fs.Duration("journal-retention", config.JournalRetention, "how long rage events are kept, 0 keeps them forever (overrides $JOURNAL_RETENTION)"),
		pruneCron:        fs.String("prune-cron", config.PruneCron, "cron schedule of journal pruning (overrides $PRUNE_CRON)"),
		logLevel:         fs.String("log-level", "", "log level: debug, info, warn or error (overrides $LOG_LEVEL)"),
	}

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Move default database paths along with a changed state directory
	if *flags.stateDir != config.StateDir {
		if *flags.whatsappDBDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.whatsappDBDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		if *flags.appDBDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.appDBDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.rageConfig == filepath.Join(config.StateDir, DefaultRageConfigFileName) {
			*flags.rageConfig = filepath.Join(*flags.stateDir, DefaultRageConfigFileName)
		}
		slog.Debug("Updated default paths based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"provider", *flags.provider,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"journalRetention", *flags.journalRetention)
	return flags, nil
}

// sqliteDir returns the directory of a file-based DSN, or "" for PostgreSQL.
func sqliteDir(dsn string) string {
	if dsn == "" || store.DetectDSNType(dsn) == store.DriverPostgres {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	return filepath.Dir(path)
}

// ensureDirectoriesExist creates the state directory and the directories of file-based databases
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if flags.whatsappDBDSN != nil {
		dirs = append(dirs, sqliteDir(*flags.whatsappDBDSN))
	}
	if flags.appDBDSN != nil {
		dirs = append(dirs, sqliteDir(*flags.appDBDSN))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDBDSN))
	}
	return waOpts
}

// buildTwilioOptions returns no options; the Twilio client reads TWILIO_* variables itself.
func buildTwilioOptions() []twiliowhatsapp.Option {
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	dsn := *flags.appDBDSN
	switch {
	case dsn == "":
		slog.Debug("No application database DSN provided, will use in-memory store")
	case store.DetectDSNType(dsn) == store.DriverPostgres:
		storeOpts = append(storeOpts, store.WithPostgresDSN(dsn))
	default:
		storeOpts = append(storeOpts, store.WithSQLiteDSN(dsn))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags, config Config) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if config.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(config.OpenAIModel))
	}
	if config.GenAIDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true, *flags.stateDir))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithStateDir(*flags.stateDir),
		api.WithProvider(*flags.provider),
		api.WithRageConfig(*flags.rageConfig),
		api.WithJournalRetention(*flags.journalRetention),
		api.WithPruneCron(*flags.pruneCron),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.persona != "" {
		apiOpts = append(apiOpts, api.WithPersona(*flags.persona))
	}
	return apiOpts
}
