// Package store opens the relational database shared by the ORM repositories
// and the raw-SQL numbering core.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver name for sqlx
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Connect
type Options struct {
	Driver   string
	URL      string
	MaxConns int
	Logger   *zap.Logger
}

// Connect opens and validates a gorm connection pool for the configured driver.
// SQLite is limited to one open connection so writers serialize on the pool.
func Connect(ctx context.Context, opts Options) (*gorm.DB, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("database connect started", zap.String("driver", opts.Driver))

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverPostgres:
		dialector = postgres.Open(opts.URL)
	case DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(opts.URL))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if opts.Driver == DriverPostgres {
		if opts.MaxConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxConns)
			sqlDB.SetMaxIdleConns(opts.MaxConns / 2)
		}
		sqlDB.SetConnMaxIdleTime(15 * time.Minute)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		sqlDB.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}

	log.Info("database connect completed", zap.String("driver", opts.Driver))
	return db, nil
}

// sqliteDSN enables WAL, a busy timeout and foreign keys unless the caller set query options
func sqliteDSN(url string) string {
	if url == "" {
		url = "file::memory:?cache=shared"
	}
	if strings.Contains(url, "?") {
		return url
	}
	return url + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// Models lists every table managed by AutoMigrate
func Models() []interface{} {
	return []interface{}{
		&model.Emitter{},
		&model.Sequence{},
		&model.IssuedNumber{},
		&model.Document{},
		&model.Client{},
		&model.Supplier{},
		&model.TaxConfig{},
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.Quote{},
		&model.QuoteItem{},
		&model.State{},
		&model.Municipality{},
		&model.CFOP{},
		&model.CST{},
		&model.CSOSN{},
		&model.NCM{},
		&model.PaymentMethod{},
	}
}

// Migrate creates or updates the schema
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SQLX wraps the gorm pool for raw SQL with the matching bind style
func SQLX(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	driverName := "sqlite3"
	if db.Dialector.Name() == DriverPostgres {
		driverName = "pgx"
	}
	return sqlx.NewDb(sqlDB, driverName), nil
}

// Close releases the underlying pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
