// Command daredevil runs the hybrid retrieval chat agent. The serve
// subcommand starts the long-running frontends (Telegram, HTTP API,
// WebSocket); chat, ask, seed, and doctor are local terminal modes that
// share the same pipeline wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/application"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/config"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/logger"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/interfaces/tui"
)

const (
	appName    = "daredevil"
	appVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName + " [question]",
		Short: "Daredevil is a hybrid knowledge-base and web-search chat agent",
		Long: `Daredevil answers questions by combining a curated vector knowledge
base, live web search, and an LLM, under a strict response deadline.

Run with no arguments for an interactive terminal chat, pass a question
for a one-shot answer, or use serve to start the bot frontends.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return runAsk(cmd, args)
			}
			return runChat(cmd, args)
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default: ~/.daredevil/config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot frontends and serve until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	chatCmd.Flags().String("session", "", "resume a previous session id")
	rootCmd.Flags().String("session", "", "resume a previous session id")

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	seedCmd := &cobra.Command{
		Use:   "seed [path]",
		Short: "Index knowledge files into the vector store",
		Long: `Seed walks a directory of .md and .txt files and indexes them into
the vector store, or loads a single .yaml/.yml chunk manifest. With no
path it seeds from ` + "`~/.daredevil/knowledge`" + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSeed,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	}

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the local installation",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}

	rootCmd.AddCommand(serveCmd, chatCmd, askCmd, seedCmd, versionCmd, doctorCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// quietApp builds the pipeline for terminal modes with logging reduced
// to errors so output stays readable.
func quietApp(cmd *cobra.Command) (*application.App, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewLogger(logger.Config{Level: "error", Format: "console", OutputPath: "stderr"})
	if err != nil {
		return nil, nil, err
	}
	app, err := application.NewAppCLI(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize pipeline: %w", err)
	}
	return app, log, nil
}

func stopQuietly(app *application.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.Stop(ctx)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Daredevil", zap.String("version", appVersion))

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Shutdown error", zap.Error(err))
		return err
	}

	log.Info("Daredevil stopped")
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	app, log, err := quietApp(cmd)
	if err != nil {
		return err
	}
	defer stopQuietly(app)

	session, _ := cmd.Flags().GetString("session")
	return tui.Run(app.Orchestrator(), tui.Config{
		SessionID: session,
		Persona:   app.Cards().Card().Name,
	}, log)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, _, err := quietApp(cmd)
	if err != nil {
		return err
	}
	defer stopQuietly(app)

	question := strings.Join(args, " ")
	query, err := entity.NewQuery(localUser(), fmt.Sprintf("cli-%d", time.Now().UnixNano()), question, false)
	if err != nil {
		return err
	}

	resp := app.Orchestrator().Handle(context.Background(), query, "cli")
	if resp == nil {
		return fmt.Errorf("rate limited, try again in a moment")
	}

	fmt.Println(resp.Content)
	if len(resp.Sources) > 0 {
		fmt.Fprintf(os.Stderr, "sources: %s\n", strings.Join(resp.Sources, ", "))
	}
	if resp.IsFallback() {
		fmt.Fprintf(os.Stderr, "degraded answer (%s)\n", resp.Method)
	}
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	app, _, err := quietApp(cmd)
	if err != nil {
		return err
	}
	defer stopQuietly(app)

	path := filepath.Join(config.HomeDir(), "knowledge")
	if len(args) > 0 {
		path = args[0]
	}

	ctx := context.Background()
	var report application.SeedReport
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		report, err = app.SeedFromManifest(ctx, path)
	default:
		report, err = app.SeedKnowledge(ctx, path)
	}
	if err != nil {
		return err
	}

	fmt.Printf("indexed %d file(s) into %d chunk(s)\n", report.Files, report.Documents)
	for _, skipped := range report.Skipped {
		fmt.Fprintf(os.Stderr, "skipped: %s\n", skipped)
	}
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("%s doctor v%s\n\n", appName, appVersion)

	failures := 0
	report := func(name, detail string, ok bool) {
		icon := "\033[32m✓\033[0m"
		if !ok {
			icon = "\033[31m✗\033[0m"
			failures++
		}
		fmt.Printf("  %s %-16s %s\n", icon, name, detail)
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		report("config", err.Error(), false)
		fmt.Println("\ncannot continue without configuration")
		return nil
	}
	report("config", strings.Join(cfg.Sources(), ", "), true)

	log, err := logger.NewLogger(logger.Config{Level: "error", Format: "console", OutputPath: "stderr"})
	if err != nil {
		report("logger", err.Error(), false)
		return nil
	}
	app, err := application.NewAppCLI(cfg, log)
	if err != nil {
		report("pipeline", err.Error(), false)
		return nil
	}
	defer stopQuietly(app)
	report("session store", cfg.Database.Type, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if n, err := app.Store().Count(ctx); err != nil {
		report("vector store", err.Error(), false)
	} else {
		report("vector store", fmt.Sprintf("%s, %d chunk(s)", cfg.Knowledge.StoreType, n), true)
	}

	if _, err := app.Embedder().Embed(ctx, "ping"); err != nil {
		report("embedder", fmt.Sprintf("%s: %v", cfg.Knowledge.Embedder.Provider, err), false)
	} else {
		report("embedder", cfg.Knowledge.Embedder.Provider, true)
	}

	statuses := app.Router().Status()
	if len(statuses) == 0 {
		report("llm", "no providers configured (canned fallbacks only)", false)
	}
	for _, st := range statuses {
		detail := fmt.Sprintf("priority %d", st.Priority)
		if st.CircuitOpen {
			detail += ", circuit open"
		}
		report("llm "+st.Name, detail, !st.CircuitOpen)
	}

	providers := []string{"wikipedia", "duckduckgo"}
	if cfg.WebSearch.SearxURL != "" {
		providers = append(providers, "searx")
	}
	report("web search", strings.Join(providers, ", "), true)

	card := app.Cards().Card()
	cardDetail := card.Name
	if cfg.Character.Path == "" {
		cardDetail += " (built-in)"
	}
	report("character", cardDetail, true)

	if cfg.Telegram.BotToken == "" {
		report("telegram", "disabled (no bot_token)", true)
	} else {
		report("telegram", "configured", true)
	}

	if open := app.Breakers().OpenServices(); len(open) > 0 {
		report("breakers", "open: "+strings.Join(open, ", "), false)
	} else {
		report("breakers", "all closed", true)
	}

	if failures > 0 {
		fmt.Printf("\n%d check(s) failed\n", failures)
	} else {
		fmt.Println("\nall checks passed")
	}
	return nil
}

func localUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
