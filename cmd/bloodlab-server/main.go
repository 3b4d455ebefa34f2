package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bloodlab/bloodlab/internal/config"
	"github.com/bloodlab/bloodlab/internal/domain/account"
	"github.com/bloodlab/bloodlab/internal/domain/bloodreport"
	"github.com/bloodlab/bloodlab/internal/domain/dashboard"
	"github.com/bloodlab/bloodlab/internal/domain/patient"
	"github.com/bloodlab/bloodlab/internal/platform/auth"
	"github.com/bloodlab/bloodlab/internal/platform/db"
	"github.com/bloodlab/bloodlab/internal/platform/logging"
	"github.com/bloodlab/bloodlab/internal/platform/metrics"
	"github.com/bloodlab/bloodlab/internal/platform/middleware"
	"github.com/bloodlab/bloodlab/internal/platform/reportpdf"
	"github.com/bloodlab/bloodlab/migrations"
)

const tokenIssuer = "bloodlab"

func main() {
	rootCmd := &cobra.Command{
		Use:   "bloodlab-server",
		Short: "Blood report management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR, else the embedded schema)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR, else the embedded schema)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(ctx context.Context, dir string, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Without a directory the schema compiled into the binary is used.
	m := db.NewMigratorFS(pool, migrations.FS)
	if dir != "" {
		m = db.NewMigrator(pool, dir)
	}
	return fn(ctx, m)
}

// userCmd creates accounts from the shell. It is the only way to create an
// admin, since public registration is limited to patients.
func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req account.RegisterRequest
			req.Name, _ = cmd.Flags().GetString("name")
			req.Email, _ = cmd.Flags().GetString("email")
			req.Phone, _ = cmd.Flags().GetString("phone")
			req.Password, _ = cmd.Flags().GetString("password")
			req.Role, _ = cmd.Flags().GetString("role")
			if req.Password == "" {
				req.Password = os.Getenv("BLOODLAB_USER_PASSWORD")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), tokenIssuer, cfg.JWTExpiresIn)
			svc := account.NewService(account.NewUserRepoPG(pool), tokens, cfg.PhoneRegion, cfg.BcryptCost, zerolog.Nop())
			u, err := svc.CreateUser(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s user %d (%s)\n", u.Role, u.ID, u.Email)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Full name")
	createCmd.Flags().String("email", "", "Email address")
	createCmd.Flags().String("phone", "", "Phone number")
	createCmd.Flags().String("password", "", "Password (or BLOODLAB_USER_PASSWORD)")
	createCmd.Flags().String("role", auth.RoleAdmin, "Role: admin or patient")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("phone")
	cmd.AddCommand(createCmd)

	return cmd
}

// handlers groups everything registerRoutes mounts.
type handlers struct {
	tokens    *auth.TokenIssuer
	users     auth.UserLookup
	accounts  *account.Handler
	patients  *patient.Handler
	reports   *bloodreport.Handler
	dashboard *dashboard.Handler
}

func registerRoutes(e *echo.Echo, h handlers, mws ...echo.MiddlewareFunc) *echo.Group {
	api := e.Group("/api", mws...)
	h.accounts.RegisterPublicRoutes(api)

	authed := api.Group("", auth.JWTMiddleware(h.tokens, h.users))
	h.accounts.RegisterRoutes(authed)
	h.patients.RegisterRoutes(authed)
	h.reports.RegisterRoutes(authed)
	h.dashboard.RegisterRoutes(authed)
	return api
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.IsDev(),
		File:   cfg.LogFile,
	})
	defer closer.Close()

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	m := metrics.New()
	m.RegisterPool(pool)

	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), tokenIssuer, cfg.JWTExpiresIn)

	// Services
	patientSvc := patient.NewService(patient.NewPatientRepoPG(pool), cfg.PhoneRegion, logger)

	reportSvc := bloodreport.NewService(bloodreport.NewReportRepoPG(pool), patientSvc, db.NewTxRunner(pool), logger)
	reportSvc.SetMetrics(m)

	dashboardSvc := dashboard.NewService(dashboard.NewRepoPG(pool), reportSvc, logger)
	dashboardSvc.SetMetrics(m)
	if cfg.RedisURL != "" {
		rdb, err := dashboard.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, dashboard cache disabled")
		} else {
			defer rdb.Close()
			dashboardSvc.SetCache(dashboard.NewRedisCache(rdb, "bloodlab:dashboard:"), cfg.DashboardCacheTTL)
			logger.Info().Msg("dashboard cache enabled")
		}
	}

	accountSvc := account.NewService(account.NewUserRepoPG(pool), tokens, cfg.PhoneRegion, cfg.BcryptCost, logger)
	accountSvc.SetMetrics(m)

	pdf := reportpdf.New(reportpdf.Options{LabName: cfg.LabName})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger, cfg.IsDev())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(m.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Disposition"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	registerRoutes(e, handlers{
		tokens:    tokens,
		users:     accountSvc,
		accounts:  account.NewHandler(accountSvc),
		patients:  patient.NewHandler(patientSvc),
		reports:   bloodreport.NewHandler(reportSvc, pdf),
		dashboard: dashboard.NewHandler(dashboardSvc),
	},
		middleware.BodyLimit(cfg.BodyLimit),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			IdleTTL:           10 * time.Minute,
		}),
		middleware.Audit(logger),
		middleware.RequestTimeout(cfg.RequestTimeout),
	)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
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
