package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mind-lens/api/internal/analysis/gemini"
	"mind-lens/api/internal/config"
	"mind-lens/api/internal/handle"
	"mind-lens/api/internal/httpserver"
	"mind-lens/api/internal/prompt"
	"mind-lens/api/internal/store"
	"mind-lens/api/internal/util"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mindlens",
	Short:         "mindlens - drawing analysis API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create analysis_logs table and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to YAML config")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mindlens:", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.DB, error) {
	db, err := store.Open(ctx, store.Options{
		DSN:           cfg.DatabaseURL,
		LivenessCheck: cfg.DBLivenessCheck,
		MaxOpenConns:  cfg.DBMaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database ready", "dsn", store.SafeDSNSummary(cfg.DatabaseURL), "dialect", db.Dialect)
	return db, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	db, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	return db.Close()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	system, err := prompt.LoadSystemInstruction(cfg.PromptDir)
	if err != nil {
		return err
	}
	engine, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, gemini.WithSystemInstruction(system))
	if err != nil {
		return err
	}
	defer engine.Close()

	h := handle.New(engine, store.NewAnalysisLogRepo(db, util.SystemClock{}), handle.Options{
		Timeout:        cfg.AnalyzeTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	logger.Info("mindlens starting", "engine", engine.Name(), "model", engine.Model(),
		"analyze_timeout", cfg.AnalyzeTimeout, "liveness_check", cfg.DBLivenessCheck)
	return httpserver.Serve(ctx, cfg.Addr(), httpserver.NewRouter(h, db, logger), logger)
}
