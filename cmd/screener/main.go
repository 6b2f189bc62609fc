package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/screener/internal/blob"
	"github.com/pavelanni/screener/internal/exam"
	"github.com/pavelanni/screener/internal/handler"
	"github.com/pavelanni/screener/internal/model"
	"github.com/pavelanni/screener/internal/notify"
	"github.com/pavelanni/screener/internal/scorer"
	"github.com/pavelanni/screener/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "screener",
		Short: "Timed hiring-assessment backend with AI authenticity checks",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `screener --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "screener.db", "SQLite database path")
	f.String("uploads-dir", "uploads", "Directory for uploaded answer media")
	f.String("scorer", "gemini", "Scorer backend (gemini, openai)")
	f.String("gemini-api-key", "", "Google Generative AI API key (or SCREENER_GEMINI_API_KEY)")
	f.String("gemini-model", "gemini-2.5-flash", "Gemini model name")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the OpenAI-compatible backend")
	f.String("llm-model", "llama3.2", "Model name for the OpenAI-compatible backend")
	f.String("admin-user", "admin", "Admin username")
	f.String("admin-password", "", "Initial admin password (or SCREENER_ADMIN_PASSWORD)")
	f.String("smtp-host", "", "SMTP host for invitation mail (empty = log invites instead)")
	f.Int("smtp-port", 587, "SMTP port")
	f.String("smtp-user", "", "SMTP username")
	f.String("smtp-pass", "", "SMTP password")
	f.String("smtp-from", "", "Invitation sender address")
	f.String("company-name", "ABC Technologies", "Company name shown in invitations")
	f.String("test-name", "Online Hiring Assessment", "Assessment name shown in invitations")
	f.String("portal-url", "", "Candidate portal URL included in invitations")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all candidates and their ledgers as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "screener.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
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

	v.SetEnvPrefix("SCREENER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("screener")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/screener")
	v.AddConfigPath("/etc/screener")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed the admin account if none exists.
	if err := seedAdmin(db, v.GetString("admin-user"), v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	}

	// Blob store for uploaded media.
	blobs, err := blob.New(v.GetString("uploads-dir"))
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	// External scorer backend.
	sc, cleanup, err := buildScorer(v)
	if err != nil {
		return fmt.Errorf("create scorer: %w", err)
	}
	defer cleanup()

	// Invitation delivery.
	mailCfg := notify.Config{
		Host:        v.GetString("smtp-host"),
		Port:        v.GetInt("smtp-port"),
		Username:    v.GetString("smtp-user"),
		Password:    v.GetString("smtp-pass"),
		From:        v.GetString("smtp-from"),
		CompanyName: v.GetString("company-name"),
		TestName:    v.GetString("test-name"),
		PortalURL:   v.GetString("portal-url"),
	}
	var notifier notify.Notifier
	if mailCfg.Configured() {
		notifier = notify.NewMailer(mailCfg)
	} else {
		slog.Warn("SMTP not configured, invite codes will be logged instead of mailed")
		notifier = notify.LogNotifier{}
	}

	svc := exam.New(db, sc, notifier)
	h := handler.New(svc, db, blobs)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"scorer", v.GetString("scorer"),
		"uploads_dir", v.GetString("uploads-dir"),
		"smtp_configured", mailCfg.Configured(),
	)
	return http.ListenAndServe(addr, r)
}

func buildScorer(v *viper.Viper) (scorer.Scorer, func(), error) {
	switch strings.ToLower(v.GetString("scorer")) {
	case "gemini":
		apiKey := v.GetString("gemini-api-key")
		if apiKey == "" {
			return nil, nil, fmt.Errorf("gemini API key is required: set --gemini-api-key or SCREENER_GEMINI_API_KEY")
		}
		g, err := scorer.NewGemini(context.Background(), apiKey, v.GetString("gemini-model"))
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil
	case "openai":
		o := scorer.NewOpenAI(
			v.GetString("llm-url"),
			v.GetString("llm-key"),
			v.GetString("llm-model"),
		)
		slog.Warn("openai scorer backend accepts text and image only; audio and video submissions will fail")
		return o, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown scorer backend %q", v.GetString("scorer"))
	}
}

func seedAdmin(db *store.Store, username, password string) error {
	count, err := db.AdminUserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or SCREENER_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateAdminUser(model.AdminUser{
		Username:     username,
		PasswordHash: string(hash),
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded admin user", "username", username)
	return nil
}

type exportFile struct {
	ExportedAt time.Time                       `json:"exported_at"`
	Candidates map[int64]model.CandidateReport `json:"candidates"`
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	candidates, err := db.ListCandidates()
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}

	export := exportFile{
		ExportedAt: time.Now(),
		Candidates: make(map[int64]model.CandidateReport, len(candidates)),
	}
	for _, c := range candidates {
		subs, err := db.ListSubmissions(c.ID)
		if err != nil {
			return fmt.Errorf("list submissions for candidate %d: %w", c.ID, err)
		}
		export.Candidates[c.ID] = model.CandidateReport{
			Email:       c.Email,
			Status:      c.Status,
			WindowStart: c.WindowStart,
			WindowEnd:   c.WindowEnd,
			Answers:     subs,
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
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

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
