package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mchtrack/mch/internal/config"
	"github.com/mchtrack/mch/internal/domain/patient"
	"github.com/mchtrack/mch/internal/domain/report"
	"github.com/mchtrack/mch/internal/platform/auth"
	"github.com/mchtrack/mch/internal/platform/db"
	"github.com/mchtrack/mch/internal/platform/metrics"
	"github.com/mchtrack/mch/internal/platform/middleware"
	"github.com/mchtrack/mch/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mch-server",
		Short:         "Maternal and child health report API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(out)
	}
	return logger.Level(cfg.Level()).With().Timestamp().Str("service", "mch-server").Logger()
}

// migrationSource returns MIGRATIONS_DIR when set, else the SQL files
// compiled into the binary.
func migrationSource(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the report API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, poolConfig(cfg), logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationSource(cfg)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, poolConfig(cfg), logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

type exportFlags struct {
	reportType string
	start      string
	end        string
	status     string
	format     string
	out        string
}

// request validates the flags the same way the HTTP API validates query
// parameters.
func (f exportFlags) request() (report.ExportRequest, error) {
	params := map[string]string{
		"report_type": f.reportType,
		"start_date":  f.start,
		"end_date":    f.end,
		"status":      f.status,
	}
	filter, err := report.ParseFilter(func(k string) string { return params[k] })
	if err != nil {
		return report.ExportRequest{}, err
	}
	format, err := report.ParseFormat(f.format)
	if err != nil {
		return report.ExportRequest{}, err
	}
	return report.ExportRequest{Filter: filter, Format: format}, nil
}

func exportCmd() *cobra.Command {
	var flags exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a report export file",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, poolConfig(cfg), logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := report.NewService(patient.NewStorePG(pool), report.SystemClock, logger)
			artifact, err := svc.Export(ctx, req)
			if err != nil {
				return err
			}
			return writeArtifact(cmd.OutOrStdout(), flags.out, artifact)
		},
	}
	cmd.Flags().StringVar(&flags.reportType, "report-type", "", "Report label (required)")
	cmd.Flags().StringVar(&flags.start, "start", "", "Registration start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.end, "end", "", "Registration end date, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.status, "status", "", "Accepted for parity with the API; no effect")
	cmd.Flags().StringVar(&flags.format, "format", string(report.FormatCSV), "Export format: csv or xlsx")
	cmd.Flags().StringVar(&flags.out, "out", "", "Output file or directory, '-' for stdout (default: generated file name)")
	return cmd
}

// writeArtifact writes to stdout for "-", into out when it is a directory,
// or to out as a file path. Empty out uses the generated file name.
func writeArtifact(stdout io.Writer, out string, a *report.Artifact) error {
	if out == "-" {
		_, err := stdout.Write(a.Body)
		return err
	}
	path := out
	if path == "" {
		path = a.FileName
	} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, a.FileName)
	}
	if err := os.WriteFile(path, a.Body, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s (%d bytes)\n", path, len(a.Body))
	return nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	}
}

// newServer wires middleware and routes. It takes its dependencies as
// arguments so tests can run it without a database.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *report.Service, chk db.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition, middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, logger))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(chk))
	e.GET("/health/ready", readyHandler(svc, logger))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	report.NewHandler(svc).RegisterRoutes(apiV1)

	return e
}

// readyHandler reports ready once the patients table can be read.
func readyHandler(svc *report.Service, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		n, err := svc.PatientCount(ctx)
		if err != nil {
			logger.Error().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("readiness check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "not_ready",
				"error":  "patient store unavailable",
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":   "ready",
			"patients": n,
		})
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stdout)
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: DevAuthMiddleware is active and all requests get admin access")
	}

	// Database
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, poolConfig(cfg), logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()

	store := patient.NewStorePG(pool)
	svc := report.NewService(store, report.SystemClock, logger.With().Str("component", "report").Logger())
	e := newServer(cfg, logger, svc, db.NewChecker(pool))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
