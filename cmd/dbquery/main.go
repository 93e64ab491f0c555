package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/dbquery/internal/config"
	"github.com/saltyorg/dbquery/internal/database"
	"github.com/saltyorg/dbquery/internal/health"
	"github.com/saltyorg/dbquery/internal/logging"
	"github.com/saltyorg/dbquery/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	verbosity int
	logFile   string

	typedParams bool

	port int
	bind string
)

func main() {
	os.Exit(execute(newRootCmd()))
}

// execute runs cmd and returns the process exit code.
func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbquery",
		Short: "dbquery - pooled, parameterized database queries",
		Long: `dbquery runs parameterized statements against a pooled database connection.
Connection settings come from DB_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loader := config.NewEnvLoader()
			level := logging.LevelFromVerbosity(verbosity)
			if verbosity == 0 {
				level = loader.String("LOG_LEVEL", level)
			}
			path := logFile
			if path == "" {
				path = loader.String("LOG_FILE", "")
			}
			logging.Apply(level, loader, path)
		},
	}

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this rotating file (or set LOG_FILE env var)")

	queryCmd := &cobra.Command{
		Use:   "query STATEMENT [PARAM...]",
		Short: "Run one statement and print the rows as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().BoolVar(&typedParams, "typed", false, "Decode each PARAM as a JSON scalar (5, true, null, \"text\")")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pool health and statistics over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	serveCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")

	rootCmd.AddCommand(queryCmd, serveCmd, &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dbquery %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return rootCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewEnvLoader()

	if port == 0 {
		port = loader.Int("PORT", 0)
	}
	if port <= 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	cfg := config.LoadDatabaseConfig(loader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("driver", cfg.Driver).
		Str("database", cfg.Redacted()).
		Int("max_conns", cfg.MaxConns).
		Msg("Starting dbquery")

	pool, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database pool: %w", err)
	}
	defer pool.Close()

	checker := health.NewChecker(pool, cfg.HealthSchedule)
	if err := checker.Start(); err != nil {
		return err
	}
	defer checker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := web.NewServer(pool, checker, port, bind).Start(ctx); err != nil {
		return err
	}

	log.Info().Msg("dbquery stopped")
	return nil
}
