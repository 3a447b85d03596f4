// Package app assembles the services from the resolved configuration. The
// HTTP server and the CLI commands share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/auth"
	"github.com/rezonia/fiscal-manager/internal/catalog"
	"github.com/rezonia/fiscal-manager/internal/config"
	"github.com/rezonia/fiscal-manager/internal/documents"
	"github.com/rezonia/fiscal-manager/internal/emitter"
	"github.com/rezonia/fiscal-manager/internal/events"
	"github.com/rezonia/fiscal-manager/internal/llm"
	"github.com/rezonia/fiscal-manager/internal/lookup"
	"github.com/rezonia/fiscal-manager/internal/numbering"
	"github.com/rezonia/fiscal-manager/internal/orders"
	xmlparser "github.com/rezonia/fiscal-manager/internal/parser/xml"
	"github.com/rezonia/fiscal-manager/internal/reference"
	"github.com/rezonia/fiscal-manager/internal/seed"
	"github.com/rezonia/fiscal-manager/internal/signature"
	"github.com/rezonia/fiscal-manager/internal/signature/trust"
	"github.com/rezonia/fiscal-manager/internal/store"
	"github.com/rezonia/fiscal-manager/internal/taxconfig"
)

// App holds every service wired to one database
type App struct {
	Config config.Config
	Logger *zap.Logger
	DB     *gorm.DB

	Emitters   *emitter.Service
	Documents  *documents.Service
	Catalog    *catalog.Service
	Orders     *orders.Service
	TaxConfigs *taxconfig.Service
	Reference  *reference.Service
	Lookup     *lookup.Client
	Classifier *llm.Classifier
	Verifier   *signature.Verifier
	// Signer is nil when no JWT secret is configured
	Signer *auth.Signer

	publisher events.Publisher
	redis     *redis.Client
	schema    *xmlparser.Schema
}

// New connects the database, optionally migrates it and builds the services
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, migrate bool) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := store.Connect(ctx, store.Options{
		Driver:   cfg.DatabaseDriver,
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.MaxDBConns,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	a, err := Wire(ctx, cfg, db, logger)
	if err != nil {
		_ = store.Close(db)
		return nil, err
	}
	if migrate {
		if err := store.Migrate(ctx, db); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Wire builds the services on an open database. Optional backends (redis,
// kafka, XSD, LLM, JWT) are enabled only when configured.
func Wire(ctx context.Context, cfg config.Config, db *gorm.DB, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, DB: db}

	sqlDB, err := store.SQLX(db)
	if err != nil {
		return nil, err
	}

	a.publisher, err = events.New(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if err != nil {
		return nil, fmt.Errorf("init events: %w", err)
	}

	var cache lookup.Cache
	if cfg.RedisURL != "" {
		a.redis, err = lookup.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.closeBackends()
			return nil, err
		}
		cache = lookup.NewRedisCache(a.redis)
	} else {
		cache = lookup.NewMemoryCache(nil)
	}

	trustOpts := []trust.Option{
		trust.WithOCSPChecker(trust.NewOCSPChecker(trust.WithStatusCache(cache, trust.DefaultOCSPTTL))),
	}
	if cfg.OCSPSoftFail {
		trustOpts = append(trustOpts, trust.WithSoftFail())
	}
	roots, err := trust.Load(cfg.TrustRootsPath, trustOpts...)
	if err != nil {
		a.closeBackends()
		return nil, err
	}
	if roots.Empty() {
		logger.Warn("no trust roots configured, certificate chains will not validate")
	}
	a.Verifier = signature.NewVerifier(roots, signature.WithLogger(logger))

	docOpts := []documents.Option{
		documents.WithVerifier(a.Verifier),
		documents.WithPublisher(a.publisher),
		documents.WithLogger(logger),
	}
	if cfg.XSDSchemaPath != "" {
		a.schema, err = xmlparser.LoadSchema(cfg.XSDSchemaPath)
		if err != nil {
			a.closeBackends()
			return nil, err
		}
		docOpts = append(docOpts, documents.WithSchema(a.schema))
	}

	if cfg.JWTSecret != "" {
		a.Signer, err = auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			a.closeBackends()
			return nil, err
		}
	}

	a.Reference = reference.NewService(db)
	a.Emitters = emitter.NewService(db, numbering.New(sqlDB, numbering.WithLogger(logger)),
		emitter.WithPublisher(a.publisher),
		emitter.WithLogger(logger),
	)
	a.Documents = documents.NewService(db, docOpts...)
	a.Catalog = catalog.NewService(db, catalog.WithLogger(logger))
	a.Orders = orders.NewService(db, orders.WithLogger(logger))
	a.TaxConfigs = taxconfig.NewService(db)
	a.Lookup = lookup.New(
		lookup.WithHTTPClient(&http.Client{Timeout: cfg.LookupTimeout}),
		lookup.WithBaseURLs(cfg.CNPJBaseURL, cfg.CEPBaseURL),
		lookup.WithCache(cache, cfg.LookupCacheTTL),
		lookup.WithLogger(logger),
	)

	var chat llm.Chatter
	if cfg.LLMAPIKey != "" {
		chat = llm.NewClient(llm.Config{
			APIKey:     cfg.LLMAPIKey,
			BaseURL:    cfg.LLMBaseURL,
			Model:      cfg.LLMModel,
			MaxRetries: 1,
		})
	}
	a.Classifier = llm.NewClassifier(chat, llm.WithNCMTable(a.Reference), llm.WithLogger(logger))

	logger.Info("services ready",
		zap.String("env", cfg.Env),
		zap.Bool("kafka", len(cfg.KafkaBrokers) > 0),
		zap.Bool("redis", a.redis != nil),
		zap.Bool("xsd", a.schema != nil),
		zap.Bool("auth", a.Signer != nil),
		zap.Bool("llm", a.Classifier.Enabled()),
	)
	return a, nil
}

// Seeder returns a reference-data seeder reading from location, or from the
// configured source when location is empty.
func (a *App) Seeder(location string, force bool) *seed.Seeder {
	if location == "" {
		location = a.Config.SeedSourceURL
	}
	return seed.New(a.DB,
		seed.WithSource(seed.ParseSource(location)),
		seed.WithForce(force),
		seed.WithLogger(a.Logger),
	)
}

// Close releases the backends and the database pool
func (a *App) Close() error {
	err := a.closeBackends()
	if a.DB != nil {
		err = errors.Join(err, store.Close(a.DB))
	}
	return err
}

func (a *App) closeBackends() error {
	var err error
	if a.publisher != nil {
		err = errors.Join(err, a.publisher.Close())
	}
	if a.redis != nil {
		err = errors.Join(err, a.redis.Close())
	}
	if a.schema != nil {
		a.schema.Close()
	}
	return err
}
