package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/papergen/internal/handler"
	appI18n "github.com/pavelanni/papergen/internal/i18n"
	"github.com/pavelanni/papergen/internal/llm"
	"github.com/pavelanni/papergen/internal/model"
	"github.com/pavelanni/papergen/internal/paper"
	"github.com/pavelanni/papergen/internal/store"
)

// geminiOpenAIURL is Gemini's OpenAI-compatible endpoint.
const geminiOpenAIURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "papergen",
		Short: "Question paper generator with LLM selection and rule-based fallback",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			loadDotEnv()
		},
	}

	pf := root.PersistentFlags()
	pf.String("db", "papergen.db", "SQLite database path")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(serveCmd(), importCmd(), generateCmd(), papersCmd(), exportCmd())
	return root
}

func addGenerationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", geminiOpenAIURL, "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the generation service (or GEMINI_API_KEY)")
	f.StringSlice("llm-models", llm.DefaultModels, "Candidate models, most preferred first")
	f.Duration("llm-timeout", llm.DefaultAttemptTimeout, "Timeout for a single model attempt")
	f.Duration("llm-backoff", llm.DefaultBackoff, "Pause after a failed model attempt")
	f.Int("sample-size", llm.DefaultSampleSize, "Maximum bank questions sent to the model")
	f.StringSlice("bank", nil, "Question bank JSON files to import before starting (repeatable)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default language for messages (en, ru)")
	f.String("admin-password", "", "Admin password for write endpoints (or set PAPERGEN_ADMIN_PASSWORD)")
	addGenerationFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import BANK.json...",
		Short: "Import units and questions from question bank files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			db, err := store.New(v.GetString("db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			return importBanks(db, args)
		},
	}
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one question paper and print it as JSON",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("config", "c", "", "Generation config JSON file (required)")
	f.Bool("save", false, "Store the generated paper in the history")
	f.Uint64("seed", 0, "Shuffle seed for the fallback selector (0 = random)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addGenerationFlags(cmd)
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func papersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "papers",
		Short: "Manage stored question papers",
	}

	withStore := func(run func(db *store.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			db, err := store.New(v.GetString("db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			return run(db, args)
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored papers, most recent first",
		RunE: withStore(func(db *store.Store, _ []string) error {
			papers, err := db.ListPapers()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCOURSE\tEXAM\tMARKS\tQUESTIONS\tMETHOD\tSTATUS\tGENERATED")
			for _, p := range papers {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d/%d\t%d\t%s\t%s\t%s\n",
					p.ID, p.Config.CourseID, p.Config.ExamType, p.TotalMarks, p.Config.TotalMarks,
					len(p.Questions), p.Method, p.Status, p.GeneratedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		}),
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print one paper as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(db *store.Store, args []string) error {
			p, err := db.GetPaper(args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("paper %s not found", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSONTo("-", p)
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete papers",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(func(db *store.Store, args []string) error {
			for _, id := range args {
				if err := db.DeletePaper(id); err != nil {
					return err
				}
				slog.Info("deleted paper", "id", id)
			}
			return nil
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored papers",
		RunE: withStore(func(db *store.Store, _ []string) error {
			n, err := db.PaperCount()
			if err != nil {
				return err
			}
			if err := db.ClearPapers(); err != nil {
				return err
			}
			slog.Info("cleared paper history", "deleted", n)
			return nil
		}),
	}

	cmd.AddCommand(list, show, deleteCmd, clearCmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored papers as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.Int64("course-id", 0, "Only export papers of this course (0 = all)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error reading .env file", "error", err)
	}
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PAPERGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm-key", "PAPERGEN_LLM_KEY", "GEMINI_API_KEY")

	v.SetConfigName("papergen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/papergen")
	v.AddConfigPath("/etc/papergen")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newGenerator builds the generation client from flags. A missing key is not
// an error: every request then goes straight to the fallback selector.
func newGenerator(v *viper.Viper, opts ...paper.Option) (*paper.Generator, *llm.Client) {
	client := llm.NewOpenAI(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		llm.WithModels(v.GetStringSlice("llm-models")...),
		llm.WithAttemptTimeout(v.GetDuration("llm-timeout")),
		llm.WithBackoff(v.GetDuration("llm-backoff")),
		llm.WithSampleSize(v.GetInt("sample-size")),
	)
	if !client.Configured() {
		slog.Warn("no generation service key set, papers will use the fallback selector")
	}
	opts = append([]paper.Option{paper.WithExternal(client)}, opts...)
	return paper.NewGenerator(opts...), client
}

func importBanks(db *store.Store, paths []string) error {
	for _, path := range paths {
		stats, err := db.ImportBankFile(path)
		if err != nil {
			return err
		}
		if stats.Skipped {
			slog.Info("question bank unchanged, skipping", "path", path)
			continue
		}
		slog.Info("imported question bank", "path", path, "units", stats.Units, "questions", stats.Questions)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	password := v.GetString("admin-password")
	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or PAPERGEN_ADMIN_PASSWORD env var")
	}
	adminHash, err := handler.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if err := importBanks(db, v.GetStringSlice("bank")); err != nil {
		return fmt.Errorf("import question banks: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	gen, client := newGenerator(v)
	if client.Configured() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			slog.Warn("generation service health check failed, fallback selector stays available", "error", err)
		} else {
			slog.Info("generation service OK", "url", v.GetString("llm-url"), "models", client.Models())
		}
		cancel()
	}

	svc := paper.NewService(gen, db, db)
	h := handler.New(svc, db, adminHash)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"models", client.Models(),
		"llm_url", v.GetString("llm-url"),
		"sample_size", v.GetInt("sample-size"),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	data, err := os.ReadFile(v.GetString("config"))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var cfg model.GenerationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := importBanks(db, v.GetStringSlice("bank")); err != nil {
		return fmt.Errorf("import question banks: %w", err)
	}
	if cfg.Units, err = db.ResolveUnits(cfg.Units); err != nil {
		return fmt.Errorf("resolve units: %w", err)
	}

	var opts []paper.Option
	if seed := v.GetUint64("seed"); seed != 0 {
		opts = append(opts, paper.WithSeed(seed))
	}
	gen, _ := newGenerator(v, opts...)
	svc := paper.NewService(gen, db, db)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var p *model.GeneratedPaper
	if v.GetBool("save") {
		p, err = svc.GenerateAndSave(ctx, cfg)
	} else {
		p, err = svc.GenerateFromBank(ctx, cfg)
	}
	if p == nil {
		return err
	}
	if err != nil {
		slog.Error("paper generated but not saved", "error", err)
	}
	if warn := paper.CheckResult(p); warn != nil {
		slog.Warn("paper below target", "warning", warn)
	}

	if werr := writeJSONTo(v.GetString("output"), p); werr != nil {
		return werr
	}
	return err
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportPapers(v.GetInt64("course-id"))
	if err != nil {
		return fmt.Errorf("export papers: %w", err)
	}
	return writeJSONTo(v.GetString("output"), export)
}

func writeJSONTo(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
