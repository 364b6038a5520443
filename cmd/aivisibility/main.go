package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/AIVisibility/internal/analytics"
	"github.com/TobiSchelling/AIVisibility/internal/auth"
	"github.com/TobiSchelling/AIVisibility/internal/config"
	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/executor"
	"github.com/TobiSchelling/AIVisibility/internal/functions"
	"github.com/TobiSchelling/AIVisibility/internal/logger"
	"github.com/TobiSchelling/AIVisibility/internal/server"
	"github.com/TobiSchelling/AIVisibility/internal/webhook"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        *logger.Logger
)

// serviceUserID identifies the backend itself when it calls the webhooks.
var serviceUserID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("aivisibility:service"))

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "aivisibility",
	Short:   "Track how AI assistants mention your company",
	Long:    "AIVisibility tracks prompts, AI responses and competitor mentions, and reports visibility, rank and sentiment over time.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			log = logger.Nop()
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(cfg.Logging.Mode, level)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("aivisibility", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/aivisibility/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the webhook URLs and the database, then export AIVISIBILITY_JWT_SECRET.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s (%s)\n\n", db.Dialect(), redactDSN(db))
		fmt.Println("Accounts:")
		fmt.Printf("  Companies: %d\n", stats.Companies)
		fmt.Printf("  Users: %d\n", stats.Users)
		fmt.Println("\nTracking:")
		fmt.Printf("  Competitors: %d (%d approved)\n", stats.Competitors, stats.ApprovedCompetitors)
		fmt.Printf("  Prompts: %d\n", stats.Prompts)
		fmt.Printf("  Responses: %d\n", stats.Responses)
		fmt.Printf("  Analyses: %d\n", stats.Analyses)
		fmt.Println("\nSources:")
		fmt.Printf("  Total: %d\n", stats.Sources)
		fmt.Printf("  With preview: %d\n", stats.SourcesWithPreview)
		fmt.Println("\nWebhooks:")
		fmt.Printf("  generate_prompts: %s\n", configured(cfg.Webhooks.GeneratePrompts))
		fmt.Printf("  analyze_prompts: %s\n", configured(cfg.Webhooks.AnalyzePrompts))
		fmt.Printf("  analyze_responses: %s\n", configured(cfg.Webhooks.AnalyzeResponses))
		return nil
	},
}

func configured(url string) string {
	if url == "" {
		return "not configured"
	}
	return "configured"
}

func redactDSN(db *database.DB) string {
	if db.Dialect() == database.SQLite {
		return db.Path()
	}
	return "dsn from config"
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if a.issuer == nil {
			return fmt.Errorf("serve needs a signing secret: %w", auth.ErrMissingSecret)
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(server.Deps{
			DB:          a.db,
			Executor:    a.exec,
			Functions:   a.functions,
			Analytics:   a.analytics,
			Issuer:      a.issuer,
			CORSOrigins: cfg.Server.CORSOrigins,
			Log:         log,
		})
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Serve(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- token command ---

var (
	tokenUser  string
	tokenEmail string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token for a user, creating the user profile if needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		issuer, err := newIssuer()
		if err != nil {
			return err
		}

		userID := uuid.New()
		if tokenUser != "" {
			userID, err = uuid.Parse(tokenUser)
			if err != nil {
				return fmt.Errorf("invalid user id: %s", tokenUser)
			}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		profile := database.UserProfile{ID: userID.String()}
		if tokenEmail != "" {
			profile.Email = &tokenEmail
		}
		if err := db.UpsertUserProfile(cmd.Context(), profile); err != nil {
			return fmt.Errorf("saving profile: %w", err)
		}

		token, exp, err := issuer.Sign(userID, tokenEmail)
		if err != nil {
			return err
		}
		fmt.Printf("User:    %s\n", userID)
		fmt.Printf("Expires: %s\n", exp.Format("2006-01-02 15:04:05"))
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id (a new one is generated when empty)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email stored in the token and profile")
}

// app holds the services shared by the commands.
type app struct {
	db        *database.DB
	issuer    *auth.Issuer
	session   *auth.Session
	exec      *executor.Executor
	hooks     *webhook.Client
	functions *functions.Service
	analytics *analytics.Service
}

// newApp wires the database, executor, webhooks and services. A missing
// signing secret leaves the issuer nil and webhook calls unauthenticated.
func newApp() (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	a.issuer, err = newIssuer()
	if err != nil && !errors.Is(err, auth.ErrMissingSecret) {
		db.Close()
		return nil, err
	}
	if a.issuer != nil {
		a.session, err = auth.NewSession(a.issuer, serviceUserID, "", cfg.Auth.RefreshBefore)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating service session: %w", err)
		}
	} else {
		log.Warn("no signing secret configured, webhook calls are unauthenticated", "env", cfg.Auth.SecretEnv)
	}

	a.exec = executor.New(executor.RefresherFunc(a.refresh), executor.Options{
		StaleAfter: cfg.Executor.StaleAfter,
		Timeout:    cfg.Executor.QueryTimeout,
		RetryDelay: cfg.Executor.RetryDelay,
		Logger:     log.With("component", "executor"),
	})

	var tokens webhook.TokenSource
	if a.session != nil {
		tokens = a.session
	}
	a.hooks = webhook.NewClient(cfg.Webhooks, tokens, log.With("component", "webhook"))
	a.functions = functions.NewService(db, a.hooks, log.With("component", "functions"))
	a.analytics = analytics.NewService(db, a.exec, cfg.Location(), log.With("component", "analytics"))
	return a, nil
}

// refresh renews the service token and checks the database connection.
func (a *app) refresh(ctx context.Context) error {
	if a.session != nil {
		if err := a.session.Refresh(ctx); err != nil {
			return err
		}
	}
	return a.db.Refresh(ctx)
}

func (a *app) Close() error {
	return a.db.Close()
}

func newIssuer() (*auth.Issuer, error) {
	return auth.NewIssuer(cfg.JWTSecret(), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.Database.Driver, cfg.GetDSN(), log.With("component", "database"))
}
