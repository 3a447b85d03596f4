package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/app"
	"github.com/rezonia/fiscal-manager/internal/config"
	"github.com/rezonia/fiscal-manager/internal/logging"
)

var (
	version = "1.0.0"

	// Global flags
	configPath   string
	verbose      bool
	outputFormat string
	dbDriver     string
	dbURL        string
	logLevel     string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fiscal-manager",
	Short: "Manage Brazilian fiscal documents (NF-e, NFC-e, CT-e, MDF-e, NFS-e)",
	Long: `Fiscal Manager keeps emitters, their document number sequences and the
issued documents of a Brazilian company, plus the catalog and reference data
needed to fill them.

Examples:
  # Start the REST API
  fiscal-manager serve --address :8080

  # Create the schema and load the reference tables
  fiscal-manager migrate
  fiscal-manager seed

  # Reserve the next NF-e number of emitter 1, series 1
  fiscal-manager numbering issue 1 nfe --series 1

  # Inspect and verify an authorized XML
  fiscal-manager inspect 3524...-procNFe.xml
  fiscal-manager verify --roots /etc/icp-brasil 3524...-procNFe.xml`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (env: FISCAL_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "Database driver: sqlite or postgres (env: FISCAL_DB_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "Database URL or SQLite path (env: FISCAL_DB_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (env: FISCAL_LOG_LEVEL)")
}

// initConfig resolves the configuration; explicit flags win over file and environment
func initConfig(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		configPath = os.Getenv("FISCAL_CONFIG")
	}
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if dbDriver != "" {
		cfg.DatabaseDriver = dbDriver
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if verbose && logLevel == "" {
		cfg.LogLevel = "debug"
	}
	switch outputFormat {
	case "json", "table":
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
	printVerbose("Config: env=%s driver=%s\n", cfg.Env, cfg.DatabaseDriver)
	return nil
}

// newLogger builds the zap logger; CLI commands stay quiet unless verbose
func newLogger() (*zap.Logger, error) {
	level := cfg.LogLevel
	if !verbose && logLevel == "" {
		level = "warn"
	}
	return logging.New(level, cfg.Env == "development")
}

// openApp connects the database and wires every service
func openApp(ctx context.Context, migrate bool) (*app.App, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger, migrate)
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
