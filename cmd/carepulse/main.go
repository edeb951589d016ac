package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/carepulse/carepulse/internal/analytics"
	"github.com/carepulse/carepulse/internal/api"
	"github.com/carepulse/carepulse/internal/dispatch"
	"github.com/carepulse/carepulse/internal/messaging"
	"github.com/carepulse/carepulse/internal/scheduler"
	"github.com/carepulse/carepulse/internal/store"
	"github.com/carepulse/carepulse/internal/template"
	"github.com/carepulse/carepulse/internal/twilioclient"
	"github.com/carepulse/carepulse/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CarePulse state data
	DefaultStateDir = "/var/lib/carepulse"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "carepulse.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	sender, err := buildSender(flags)
	if err != nil {
		slog.Error("Failed to initialize Twilio client", "error", err)
		os.Exit(1)
	}
	msgService := messaging.NewTwilioService(sender)

	renderer := template.NewRenderer(template.ClinicInfo{
		Name:     config.ClinicName,
		Provider: config.ClinicProvider,
		Phone:    config.ClinicPhone,
	})

	resolver := dispatch.NewResolver(st)
	engine := dispatch.NewEngine(st, msgService, renderer)
	sched := scheduler.NewScheduler(st)
	agg := analytics.NewAggregator(st)

	if config.SchedulerDisabled {
		slog.Info("Scheduled-communication materializer disabled by configuration")
	} else {
		runner := scheduler.NewRunner(scheduler.NewMaterializer(st, engine))
		if err := runner.Start(context.Background()); err != nil {
			slog.Error("Failed to start materializer runner", "error", err)
			os.Exit(1)
		}
		defer runner.Stop()
	}

	apiOpts := buildAPIOptions(flags)
	server := api.NewServer(st, msgService, resolver, engine, sched, agg, apiOpts...)

	slog.Info("Bootstrapping CarePulse with configured modules")
	slog.Debug("Final configuration", "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr,
		"scheduler_disabled", config.SchedulerDisabled)
	if err := server.Run(); err != nil {
		slog.Error("CarePulse failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CarePulse exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL       string
	StateDir          string
	APIAddr           string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	ClinicName        string
	ClinicProvider    string
	ClinicPhone       string
	SchedulerDisabled bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir   *string
	dbDSN      *string
	apiAddr    *string
	accountSID *string
	authToken  *string
	fromNumber *string
}

// initializeLogger sets up structured logging; LOG_LEVEL controls verbosity.
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StateDir:          util.GetEnv("CAREPULSE_STATE_DIR", DefaultStateDir),
		APIAddr:           os.Getenv("API_ADDR"),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		ClinicName:        util.GetEnv("CLINIC_NAME", "CarePulse Clinic"),
		ClinicProvider:    util.GetEnv("CLINIC_PROVIDER_NAME", ""),
		ClinicPhone:       util.GetEnv("CLINIC_PHONE", ""),
		SchedulerDisabled: util.ParseBoolEnv("SCHEDULER_DISABLED", false),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"CAREPULSE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"CLINIC_NAME", config.ClinicName,
		"SCHEDULER_DISABLED", config.SchedulerDisabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for CarePulse data (overrides $CAREPULSE_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN for the communication store (overrides $DATABASE_URL)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		accountSID: flag.String("twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		authToken:  flag.String("twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		fromNumber: flag.String("twilio-from-number", config.TwilioFromNumber, "Twilio sender number (overrides $TWILIO_FROM_NUMBER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"accountSID_set", *flags.accountSID != "",
		"fromNumber_set", *flags.fromNumber != "")

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore constructs the communication store from the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildSender constructs the Twilio transport, falling back to the mock
// client when no credentials are configured so local development works
// without a Twilio account.
func buildSender(flags Flags) (twilioclient.Sender, error) {
	if *flags.accountSID == "" || *flags.authToken == "" {
		slog.Warn("Twilio credentials not configured, using mock transport")
		return twilioclient.NewMockClient(), nil
	}
	return twilioclient.NewClient(
		twilioclient.WithAccountSID(*flags.accountSID),
		twilioclient.WithAuthToken(*flags.authToken),
		twilioclient.WithFromNumber(*flags.fromNumber),
	)
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
