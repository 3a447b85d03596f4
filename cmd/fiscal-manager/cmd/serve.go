package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/app"
	"github.com/rezonia/fiscal-manager/internal/logging"
	"github.com/rezonia/fiscal-manager/internal/server"
)

var (
	serverAddr     string
	serverDebug    bool
	readTimeout    time.Duration
	writeTimeout   time.Duration
	requestTimeout time.Duration
	autoMigrate    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the REST API.

The API groups its endpoints under /api/v1:
  - /emitters            - emitters, numbering sequences, voids and issuing
  - /documents           - status, XML and DANFE attachments, inspection
  - /clients, /suppliers, /products
  - /orders, /quotes     - sales flow, quote conversion
  - /tax-configs         - tax profiles and calculation
  - /reference           - UF, municipalities, CFOP, CST, CSOSN, NCM
  - /lookup              - CNPJ and CEP lookups, NCM suggestions
  - GET /health          - health check

Examples:
  # Start server on default port
  fiscal-manager serve

  # Start on a custom port against PostgreSQL
  fiscal-manager serve --address :9090 --db-driver postgres --db-url postgres://...

  # Start in debug mode
  fiscal-manager serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (env: FISCAL_ADDRESS)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode (env: FISCAL_DEBUG)")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 0, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 0, "HTTP write timeout")
	serveCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 30*time.Second, "Per-request service timeout")
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "Migrate the schema on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serverAddr != "" {
		cfg.Address = serverAddr
	}
	if serverDebug {
		cfg.Debug = true
	}
	if readTimeout > 0 {
		cfg.ReadTimeout = readTimeout
	}
	if writeTimeout > 0 {
		cfg.WriteTimeout = writeTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(cfg.LogLevel, cfg.Debug || cfg.Env == "development")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger, autoMigrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	srv := server.NewServer(&server.Config{
		Address:        cfg.Address,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		RequestTimeout: requestTimeout,
		Debug:          cfg.Debug,
	}, a)

	printVerbose("Starting server on %s\n", cfg.Address)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
