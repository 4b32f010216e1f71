package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dskvich/recipe-stream/pkg/api"
	"github.com/dskvich/recipe-stream/pkg/database"
	"github.com/dskvich/recipe-stream/pkg/kvstore"
	"github.com/dskvich/recipe-stream/pkg/llm"
	"github.com/dskvich/recipe-stream/pkg/logger"
	"github.com/dskvich/recipe-stream/pkg/repository"
	"github.com/dskvich/recipe-stream/pkg/services"
	"github.com/dskvich/recipe-stream/pkg/workers"
)

const (
	storeDriverPostgres = "postgres"
	storeDriverSQLite   = "sqlite"
	storeDriverMemory   = "memory"
)

type Config struct {
	HTTPAddr          string        `env:"HTTP_ADDR" envDefault:":8080"`
	LLMProvider       string        `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel          string        `env:"LLM_MODEL"`
	LLMBaseURL        string        `env:"LLM_BASE_URL"`
	OpenAIToken       string        `env:"OPEN_AI_TOKEN"`
	AnthropicAPIKey   string        `env:"ANTHROPIC_API_KEY"`
	StoreDriver       string        `env:"STORE_DRIVER" envDefault:"postgres"`
	PgURL             string        `env:"DATABASE_URL"`
	SQLitePath        string        `env:"SQLITE_PATH" envDefault:"recipe-stream.db"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"5m"`
	FinalizeTimeout   time.Duration `env:"FINALIZE_TIMEOUT" envDefault:"15s"`
	StuckThreshold    time.Duration `env:"STUCK_THRESHOLD" envDefault:"10m"`
	StuckScanInterval time.Duration `env:"STUCK_SCAN_INTERVAL" envDefault:"1m"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"debug"`
	LogNoColor        bool          `env:"LOG_NO_COLOR"`
}

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, logger.DefaultOptions)))

	if err := newRootCommand().Execute(); err != nil {
		slog.Error("shutting down due to error", logger.Err(err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:           "recipe-stream",
		Short:         "Streams recipe suggestions from a language model into an ordered message log",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cfg)
		},
	})

	return cmd
}

// loadConfig reads an optional .env file, then the environment, and configures logging.
func loadConfig(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parsing env config: %w", err)
	}

	opts := *logger.DefaultOptions
	opts.Level = logger.ParseLevel(cfg.LogLevel)
	opts.NoColor = cfg.LogNoColor
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, &opts)))

	return nil
}

func runServe(ctx context.Context, cfg *Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	workerGroup, err := setupWorkers(cfg, store)
	if err != nil {
		return err
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			slog.Info("shutting down due to signal", "signal", s.String())
			cancelFn()
		case <-ctx.Done():
		}
	}()

	err = workerGroup.Start(ctx)
	slog.Info("shutdown complete")
	return err
}

func runMigrate(cfg *Config) error {
	db, dialect, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := database.Migrate(db, dialect)
	if err != nil {
		return err
	}
	slog.Info("Migrations applied", "count", n, "dialect", dialect)
	return nil
}

func setupWorkers(cfg *Config, store kvstore.Store) (workers.Group, error) {
	completer, err := llm.New(llm.Config{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		BaseURL:         cfg.LLMBaseURL,
		OpenAIToken:     cfg.OpenAIToken,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completer: %w", err)
	}

	messageRepository := repository.NewMessageRepository(store)
	recipeRepository := repository.NewRecipeRepository(store)

	extractionService := services.NewExtractionService(recipeRepository)
	generationService := services.NewGenerationService(
		completer,
		messageRepository,
		extractionService,
		cfg.GenerationTimeout,
		cfg.FinalizeTimeout,
	)
	chatService := services.NewChatService(messageRepository, generationService, cfg.LLMModel)
	recipeService := services.NewRecipeService(
		recipeRepository,
		messageRepository,
		store,
		generationService,
		cfg.LLMModel,
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(chatService, recipeService, cfg.StuckThreshold)

	return workers.Group{
		workers.NewHTTPServer(cfg.HTTPAddr, router, cfg.FinalizeTimeout+cfg.GenerationTimeout, generationService),
		workers.NewStuckMessageMonitor(messageRepository, cfg.StuckThreshold, cfg.StuckScanInterval),
	}, nil
}

// openStore returns the configured store. SQL backends are migrated first.
func openStore(cfg *Config) (kvstore.Store, error) {
	if cfg.StoreDriver == storeDriverMemory {
		slog.Warn("Using in-memory store, data is lost on exit")
		return kvstore.NewMemoryStore(), nil
	}

	db, dialect, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	n, err := database.Migrate(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("Store ready", "driver", cfg.StoreDriver, "migrationsApplied", n)

	return kvstore.NewSQLStore(db), nil
}

func openDB(cfg *Config) (*sql.DB, string, error) {
	switch cfg.StoreDriver {
	case storeDriverPostgres:
		db, err := database.NewPostgres(cfg.PgURL)
		if err != nil {
			return nil, "", fmt.Errorf("creating db: %w", err)
		}
		return db, database.DialectPostgres, nil
	case storeDriverSQLite:
		db, err := database.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, "", fmt.Errorf("creating db: %w", err)
		}
		return db, database.DialectSQLite, nil
	default:
		return nil, "", fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
