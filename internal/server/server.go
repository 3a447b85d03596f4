package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/app"
	"github.com/rezonia/fiscal-manager/internal/auth"
	"github.com/rezonia/fiscal-manager/internal/logging"
	"github.com/rezonia/fiscal-manager/internal/validate"
)

// Config holds server configuration
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	Debug          bool
}

// Server represents the HTTP API server
type Server struct {
	config *Config
	router *gin.Engine
	app    *app.App
	logger *zap.Logger
}

// NewServer creates the API server on top of the wired services
func NewServer(config *Config, a *app.App) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	validate.RegisterGin()

	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.Middleware(logger))

	s := &Server{
		config: config,
		router: router,
		app:    a,
		logger: logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	if s.app.Signer != nil {
		v1.Use(auth.Middleware(s.app.Signer))
	}

	emitters := v1.Group("/emitters")
	{
		emitters.GET("", s.handleListEmitters)
		emitters.POST("", s.handleCreateEmitter)
		emitters.GET("/:id", s.handleGetEmitter)
		emitters.PUT("/:id", s.handleUpdateEmitter)
		emitters.DELETE("/:id", s.handleDeleteEmitter)
		emitters.PUT("/:id/environment", s.handleSetEnvironment)

		emitters.GET("/:id/sequences", s.handleListSequences)
		emitters.GET("/:id/sequences/:type/:env/:series", s.handlePeekSequence)
		emitters.PUT("/:id/sequences/:type/:env/:series", s.handleConfigureSequence)
		emitters.GET("/:id/sequences/:type/:env/:series/history", s.handleSequenceHistory)
		emitters.POST("/:id/sequences/:type/:env/:series/void", s.handleVoidNumbers)

		emitters.GET("/:id/documents", s.handleListDocuments)
		emitters.POST("/:id/documents", s.handleIssueDocument)
	}

	docs := v1.Group("/documents")
	{
		docs.POST("/inspect", s.handleInspectXML)
		docs.POST("/verify", s.handleVerifySignature)
		docs.GET("/key/:key", s.handleGetDocumentByKey)
		docs.GET("/:id", s.handleGetDocument)
		docs.PATCH("/:id/status", s.handleUpdateDocumentStatus)
		docs.PUT("/:id/pdf", s.handleAttachPDF)
		docs.GET("/:id/pdf", s.handleDownloadPDF)
		docs.PUT("/:id/xml", s.handleAttachXML)
		docs.GET("/:id/xml", s.handleDownloadXML)
	}

	clients := v1.Group("/clients")
	{
		clients.GET("", s.handleListClients)
		clients.POST("", s.handleCreateClient)
		clients.GET("/:id", s.handleGetClient)
		clients.PUT("/:id", s.handleUpdateClient)
		clients.DELETE("/:id", s.handleDeleteClient)
	}

	suppliers := v1.Group("/suppliers")
	{
		suppliers.GET("", s.handleListSuppliers)
		suppliers.POST("", s.handleCreateSupplier)
		suppliers.GET("/:id", s.handleGetSupplier)
		suppliers.PUT("/:id", s.handleUpdateSupplier)
		suppliers.DELETE("/:id", s.handleDeleteSupplier)
	}

	products := v1.Group("/products")
	{
		products.GET("", s.handleListProducts)
		products.POST("", s.handleCreateProduct)
		products.GET("/:id", s.handleGetProduct)
		products.PUT("/:id", s.handleUpdateProduct)
		products.DELETE("/:id", s.handleDeleteProduct)
	}

	orders := v1.Group("/orders")
	{
		orders.GET("", s.handleListOrders)
		orders.POST("", s.handleCreateOrder)
		orders.GET("/:id", s.handleGetOrder)
		orders.PUT("/:id", s.handleUpdateOrder)
		orders.PUT("/:id/status", s.handleSetOrderStatus)
		orders.DELETE("/:id", s.handleDeleteOrder)
	}

	quotes := v1.Group("/quotes")
	{
		quotes.GET("", s.handleListQuotes)
		quotes.POST("", s.handleCreateQuote)
		quotes.GET("/:id", s.handleGetQuote)
		quotes.PUT("/:id", s.handleUpdateQuote)
		quotes.DELETE("/:id", s.handleDeleteQuote)
		quotes.POST("/:id/convert", s.handleConvertQuote)
	}

	taxes := v1.Group("/tax-configs")
	{
		taxes.GET("", s.handleListTaxConfigs)
		taxes.POST("", s.handleCreateTaxConfig)
		taxes.GET("/:id", s.handleGetTaxConfig)
		taxes.PUT("/:id", s.handleUpdateTaxConfig)
		taxes.DELETE("/:id", s.handleDeleteTaxConfig)
		taxes.POST("/:id/calculate", s.handleCalculateTax)
	}

	ref := v1.Group("/reference")
	{
		ref.GET("/states", s.handleListStates)
		ref.GET("/states/:uf", s.handleGetState)
		ref.GET("/states/:uf/municipalities", s.handleListMunicipalities)
		ref.GET("/municipalities/:code", s.handleGetMunicipality)
		ref.GET("/cfops", s.handleListCFOPs)
		ref.GET("/cfops/:code", s.handleGetCFOP)
		ref.GET("/csts", s.handleListCSTs)
		ref.GET("/csosns", s.handleListCSOSNs)
		ref.GET("/ncms", s.handleListNCMs)
		ref.GET("/ncms/:code", s.handleGetNCM)
		ref.GET("/payment-methods", s.handleListPaymentMethods)
		ref.POST("/seed", s.handleSeed)
	}

	v1.GET("/lookup/cnpj/:cnpj", s.handleLookupCNPJ)
	v1.GET("/lookup/cep/:cep", s.handleLookupCEP)
	v1.POST("/classify/ncm", s.handleClassifyNCM)
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", zap.String("address", s.config.Address))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if err := s.ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) ping(ctx context.Context) error {
	sqlDB, err := s.app.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// requestContext bounds a handler's work by the configured request timeout
func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
}
