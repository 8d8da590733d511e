package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/TicketPipe/internal/dispatch"
	"github.com/BTreeMap/TicketPipe/internal/lockfile"
	"github.com/BTreeMap/TicketPipe/internal/platform"
	"github.com/BTreeMap/TicketPipe/internal/registry"
	"github.com/BTreeMap/TicketPipe/internal/store"
	"github.com/BTreeMap/TicketPipe/internal/ticket"
	"github.com/BTreeMap/TicketPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TicketPipe state data
	DefaultStateDir = "/var/lib/ticketpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "ticketpipe.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("TicketPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TicketPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	Token             string
	GuildID           string
	FeedbackChannelID string
	TicketParentID    string
	AdminChannelID    string
	SupportContactID  string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	StateDir          string
	Debug             bool
}

// Flags holds command line flag values
type Flags struct {
	token             *string
	guildID           *string
	feedbackChannelID *string
	ticketParentID    *string
	adminChannelID    *string
	supportContactID  *string
	dbDSN             *string
	redisAddr         *string
	redisPassword     *string
	stateDir          *string
}

// initializeLogger sets up structured logging; TICKETPIPE_DEBUG enables debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TICKETPIPE_DEBUG", false) {
		level = slog.LevelDebug
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
		Token:             os.Getenv("DISCORD_TOKEN"),
		GuildID:           os.Getenv("GUILD_ID"),
		FeedbackChannelID: os.Getenv("FEEDBACK_CHANNEL_ID"),
		TicketParentID:    os.Getenv("TICKET_PARENT_ID"),
		AdminChannelID:    os.Getenv("ADMIN_CHANNEL_ID"),
		SupportContactID:  os.Getenv("SUPPORT_CONTACT_ID"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		StateDir:          os.Getenv("TICKETPIPE_STATE_DIR"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TICKETPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL and no Redis address, default to SQLite in the state directory
	if config.DatabaseURL == "" && config.RedisAddr == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No store DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DISCORD_TOKEN_SET", config.Token != "",
		"GUILD_ID", config.GuildID,
		"FEEDBACK_CHANNEL_ID", config.FeedbackChannelID,
		"TICKET_PARENT_ID", config.TicketParentID,
		"ADMIN_CHANNEL_ID", config.AdminChannelID,
		"SUPPORT_CONTACT_ID_SET", config.SupportContactID != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"TICKETPIPE_STATE_DIR", config.StateDir)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		token:             flag.String("token", config.Token, "Discord bot token (overrides $DISCORD_TOKEN)"),
		guildID:           flag.String("guild-id", config.GuildID, "target guild id (overrides $GUILD_ID)"),
		feedbackChannelID: flag.String("feedback-channel-id", config.FeedbackChannelID, "watched feedback channel id (overrides $FEEDBACK_CHANNEL_ID)"),
		ticketParentID:    flag.String("ticket-parent-id", config.TicketParentID, "parent category id for ticket channels (overrides $TICKET_PARENT_ID)"),
		adminChannelID:    flag.String("admin-channel-id", config.AdminChannelID, "admin/error channel id (overrides $ADMIN_CHANNEL_ID)"),
		supportContactID:  flag.String("support-contact-id", config.SupportContactID, "support contact user id mentioned in admin notices (overrides $SUPPORT_CONTACT_ID)"),
		dbDSN:             flag.String("db-dsn", config.DatabaseURL, "database DSN for the ticket store (overrides $DATABASE_URL)"),
		redisAddr:         flag.String("redis-addr", config.RedisAddr, "Redis address for the ticket store (overrides $REDIS_ADDR)"),
		redisPassword:     flag.String("redis-password", config.RedisPassword, "Redis AUTH password (overrides $REDIS_PASSWORD)"),
		stateDir:          flag.String("state-dir", config.StateDir, "state directory for TicketPipe data (overrides $TICKETPIPE_STATE_DIR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"token_set", *flags.token != "",
		"guildID", *flags.guildID,
		"feedbackChannelID", *flags.feedbackChannelID,
		"ticketParentID", *flags.ticketParentID,
		"adminChannelID", *flags.adminChannelID,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr_set", *flags.redisAddr != "",
		"stateDir", *flags.stateDir)

	return flags
}

// buildStore selects and constructs a store backend from the flags.
func buildStore(flags Flags) (store.KVStore, error) {
	if *flags.redisAddr != "" {
		slog.Debug("Configuring Redis store", "addr", *flags.redisAddr)
		return store.NewRedisStore(
			store.WithRedisAddr(*flags.redisAddr),
			store.WithRedisPassword(*flags.redisPassword),
		)
	}
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
		}
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
		return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
	}
	slog.Warn("No store DSN provided, using in-memory store; ticket state will not survive restarts")
	return store.NewInMemoryStore(), nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Two instances watching the same feedback channel would race on ticket
	// creation, so refuse to start if the state directory is already claimed.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	kv, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer kv.Close()

	reg := registry.New(kv)

	discord, err := platform.NewDiscord(
		platform.WithToken(*flags.token),
		platform.WithGuildID(*flags.guildID),
		platform.WithFeedbackChannelID(*flags.feedbackChannelID),
	)
	if err != nil {
		return err
	}

	controller := ticket.NewController(reg, discord, ticket.Config{
		GuildID:          *flags.guildID,
		ParentCategoryID: *flags.ticketParentID,
		AdminChannelID:   *flags.adminChannelID,
		SupportContactID: *flags.supportContactID,
	})
	closeFlow := ticket.NewCloseFlow(reg, discord, *flags.adminChannelID)

	if err := discord.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := discord.Stop(); err != nil {
			slog.Error("Failed to stop Discord adapter", "error", err)
		}
	}()

	slog.Info("TicketPipe running", "guild", *flags.guildID, "feedback_channel", *flags.feedbackChannelID)
	dispatcher := dispatch.New(discord.Events(), controller, closeFlow)
	dispatcher.Run(ctx)
	return nil
}
