package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/followup/followup/internal/config"
	"github.com/followup/followup/internal/dataset"
	"github.com/followup/followup/internal/inference"
	"github.com/followup/followup/internal/platform/middleware"
	"github.com/followup/followup/internal/validation"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "followup-server",
		Short: "Synthetic blood-test dataset generator and risk inference server",
	}

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic blood-test dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")
			output, _ := cmd.Flags().GetString("output")
			seed, _ := cmd.Flags().GetInt64("seed")

			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if patients > 0 {
				cfg.PatientCount = patients
			}
			if output != "" {
				cfg.OutputDir = output
			}
			if seed != 0 {
				cfg.Seed = seed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			writer := dataset.NewWriter(dataset.Options{
				PatientCount:        cfg.PatientCount,
				MinTests:            cfg.MinTests,
				MaxTests:            cfg.MaxTests,
				TimeRangeMonths:     cfg.TimeRangeMonths,
				AbnormalProbability: cfg.AbnormalProbability,
				OutputDir:           cfg.OutputDir,
				GenerateSummary:     cfg.GenerateSummary,
				Seed:                cfg.Seed,
				Workers:             cfg.Workers,
			}, logger)

			summary, err := writer.Run()
			if err != nil {
				return fmt.Errorf("dataset generation failed: %w", err)
			}

			fmt.Printf("Generated %d patients (%d abnormal, %.1f%%) in %s\n",
				summary.TotalPatients, summary.AbnormalPatients,
				summary.AbnormalPercentage, cfg.OutputDir)
			return nil
		},
	}
	cmd.Flags().Int("patients", 0, "Number of patients to generate (overrides PATIENT_COUNT)")
	cmd.Flags().String("output", "", "Output directory (overrides OUTPUT_DIR)")
	cmd.Flags().Int64("seed", 0, "Random seed for reproducible runs (overrides SEED)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the risk inference API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeoutSecs) * time.Second))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	model := inference.NewModel(cfg.ModelThreshold)
	handler := inference.NewHandler(model, logger)
	handler.RegisterRoutes(e, apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate model performance against a generated dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, _ := cmd.Flags().GetString("data")
			reports, _ := cmd.Flags().GetString("reports")

			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if data != "" {
				cfg.OutputDir = data
			}
			if reports != "" {
				cfg.ReportsDir = reports
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			model := inference.NewModel(cfg.ModelThreshold)
			validator := validation.NewValidator(model, logger)

			report, err := validator.Run(cfg.OutputDir, cfg.ReportsDir)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			if !report.ValidationPassed {
				fmt.Println("Validation FAILED: model does not meet clinical safety and fairness targets")
				os.Exit(1)
			}
			fmt.Printf("Validation passed: sensitivity %.3f, NPV %.3f\n",
				report.ClinicalSafety.Sensitivity, report.ClinicalSafety.NPV)
			return nil
		},
	}
	cmd.Flags().String("data", "", "Dataset directory to validate against (overrides OUTPUT_DIR)")
	cmd.Flags().String("reports", "", "Directory for the validation report (overrides REPORTS_DIR)")
	return cmd
}
