package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/spf13/cobra"

	"github.com/sabio/csv-analyst-web/pkg/analyst"
	"github.com/sabio/csv-analyst-web/pkg/chart"
	"github.com/sabio/csv-analyst-web/pkg/settings"
	"github.com/sabio/csv-analyst-web/pkg/web"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	listenAddr string
	apiURL     string
	outputPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "csv-analyst",
		Short: "Web front end for the AI Data Analyst service",
		Long: `csv-analyst serves the upload and analyze pages, relays CSV uploads and
questions to the analysis backend and draws the charts it returns.`,
		SilenceUsage: true,
		RunE:         serve,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (JSON)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "Address to listen on (overrides settings)")
	rootCmd.Flags().StringVar(&apiURL, "api-url", "", "Analysis backend base URL (overrides settings)")

	renderCmd := &cobra.Command{
		Use:   "render [spec.json]",
		Short: "Render a chart specification to SVG or an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  render,
	}
	renderCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file; .xlsx writes a workbook (default: stdout SVG)")
	rootCmd.AddCommand(renderCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings applies, in order: defaults, settings file, environment, flags
func loadSettings() (*settings.Settings, error) {
	cfg, err := settings.LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()

	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg, nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	logger := log.DefaultLogger
	logger.Info("Starting CSV analyst web front end", "listen", cfg.ListenAddr, "api_url", cfg.BaseURL())

	client := analyst.NewClient(cfg.BaseURL(),
		analyst.WithUploadTimeout(time.Duration(cfg.UploadTimeout)),
		analyst.WithRequestTimeout(time.Duration(cfg.RequestTimeout)),
		analyst.WithLogger(logger),
	)

	srv, err := web.NewServer(cfg, client, chart.NewRenderer(cfg.ChartWidth, cfg.ChartHeight))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err)
			return err
		}
	}

	logger.Info("Server stopped")
	return nil
}

func render(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read specification: %w", err)
	}

	spec := chart.Parse(raw)

	if strings.EqualFold(filepath.Ext(outputPath), ".xlsx") {
		if spec.Diagnostic != "" {
			return errors.New(spec.Diagnostic)
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		return chart.WriteWorkbook(f, spec)
	}

	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	view := chart.NewRenderer(cfg.ChartWidth, cfg.ChartHeight).RenderSpec(spec)
	if view.Diagnostic != "" {
		return errors.New(view.Diagnostic)
	}
	if view.Empty() {
		return errors.New("nothing to render")
	}

	if outputPath == "" {
		_, err := cmd.OutOrStdout().Write(view.SVG)
		return err
	}

	if err := os.WriteFile(outputPath, view.SVG, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
