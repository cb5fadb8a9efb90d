package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/measurekit/measurekit/internal/config"
	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/internal/domain/library"
	"github.com/measurekit/measurekit/internal/domain/measure"
	"github.com/measurekit/measurekit/internal/domain/patient"
	"github.com/measurekit/measurekit/internal/domain/valueset"
	"github.com/measurekit/measurekit/internal/platform/auth"
	"github.com/measurekit/measurekit/internal/platform/db"
	"github.com/measurekit/measurekit/internal/platform/middleware"
	"github.com/measurekit/measurekit/pkg/criteria"
)

// MeasureSourceAdapter adapts a measure.MeasureRepository to the
// library.MeasureSource interface, avoiding circular imports between the
// library and measure packages.
type MeasureSourceAdapter struct {
	repo measure.MeasureRepository
}

func NewMeasureSourceAdapter(repo measure.MeasureRepository) *MeasureSourceAdapter {
	return &MeasureSourceAdapter{repo: repo}
}

// ListAllTrees implements library.MeasureSource.
func (a *MeasureSourceAdapter) ListAllTrees(ctx context.Context) ([]criteria.MeasurePopulations, error) {
	measures, err := a.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]criteria.MeasurePopulations, 0, len(measures))
	for _, m := range measures {
		out = append(out, m.Trees())
	}
	return out, nil
}

// SaveTrees implements library.MeasureSource.
func (a *MeasureSourceAdapter) SaveTrees(ctx context.Context, measureID string, populations []criteria.PopulationDefinition) error {
	id, err := uuid.Parse(measureID)
	if err != nil {
		return fmt.Errorf("invalid measure id %q: %w", measureID, err)
	}
	m, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	m.Populations = populations
	return a.repo.Update(ctx, m)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "measurekit-server",
		Short: "Criteria-tree measure authoring and evaluation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolSettings{
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolSettings{
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolSettings{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	// -- Register Domain Handlers --

	// Component library domain
	componentRepo := component.NewComponentRepoPG(pool)
	librarySvc := library.NewService(componentRepo, logger)
	libraryHandler := library.NewHandler(librarySvc)
	libraryHandler.RegisterRoutes(apiV1)

	// Value set catalog domain
	vsRepo := valueset.NewValueSetRepoPG(pool)
	vsSvc := valueset.NewService(vsRepo)
	vsHandler := valueset.NewHandler(vsSvc)
	vsHandler.RegisterRoutes(apiV1)

	// Synthetic patient domain
	patientRepo := patient.NewPatientRepoPG(pool)
	patientSvc := patient.NewService(patientRepo)
	patientHandler := patient.NewHandler(patientSvc)
	patientHandler.RegisterRoutes(apiV1)

	// Measure domain
	measureRepo := measure.NewMeasureRepoPG(pool)
	measureSvc := measure.NewService(measureRepo, componentRepo, patientSvc, logger)
	measureSvc.SetValueSetStore(vsSvc)
	measureHandler := measure.NewHandler(measureSvc)
	measureHandler.RegisterRoutes(apiV1)

	// Sync, fork, and usage rebuild need to rewrite measure trees; the
	// adapter breaks the import cycle between library and measure.
	librarySvc.SetMeasureSource(NewMeasureSourceAdapter(measureRepo))

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
