// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"erpdir/internal/domain/cascade"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/render"
	"erpdir/internal/infrastructure/http/v1/handlers"
	"erpdir/internal/infrastructure/http/v1/middleware"
	"erpdir/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	Schema    *directory.SchemaRegistry
	Bindings  *directory.BindingService
	Records   *directory.EntityStore
	Resolver  *directory.Resolver
	Cascade   *cascade.Engine
	Renderers *render.Registry

	// History is the record audit trail; nil disables it.
	History handlers.RecordHistory

	Health *handlers.HealthHandler

	// RelationMaxDepth bounds GET /directories/:id/relations.
	RelationMaxDepth int
	// MaxOptionsLimit caps the limit of option requests.
	MaxOptionsLimit int

	// Debug keeps gin in debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	if cfg.Health != nil {
		health := router.Group("/health")
		{
			health.GET("/live", cfg.Health.Live)
			health.GET("/ready", cfg.Health.Ready)
			health.GET("/info", cfg.Health.Info)
		}
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))
	api.Use(middleware.Company())

	base := handlers.NewBaseHandler()
	registerDirectoryRoutes(api, base, cfg)
	registerRecordRoutes(api, base, cfg)
	registerBindingRoutes(api, base, cfg)

	return router
}

// registerDirectoryRoutes registers schema, option and cascade endpoints.
func registerDirectoryRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	dirs := handlers.NewDirectoryHandler(base, cfg.Schema, cfg.Renderers, cfg.RelationMaxDepth)
	opts := handlers.NewOptionsHandler(base, cfg.Schema, cfg.Resolver, cfg.Cascade, cfg.MaxOptionsLimit)

	read := middleware.RequirePermission(middleware.PermDirectoryRead)
	write := middleware.RequirePermission(middleware.PermDirectoryWrite)

	g := rg.Group("/directories")
	{
		g.GET("", read, dirs.List)
		g.POST("", write, dirs.Create)
		g.GET("/:id", read, dirs.Get)
		g.PUT("/:id", write, dirs.Update)
		g.DELETE("/:id", write, dirs.Delete)
		g.GET("/:id/relations", read, dirs.Relations)

		g.GET("/:id/fields", read, dirs.ListFields)
		g.POST("/:id/fields", write, dirs.CreateField)
		g.PUT("/:id/fields/:fieldId", write, dirs.UpdateField)
		g.DELETE("/:id/fields/:fieldId", write, dirs.DeleteField)

		g.GET("/:id/options", read, opts.DirectoryOptions)
		g.GET("/:id/fields/:fieldId/options", read, opts.FieldOptions)
		g.GET("/:id/fields/:fieldId/cascading-config", read, opts.CascadingConfig)
	}

	c := rg.Group("/cascade")
	{
		c.POST("/visible", read, opts.Visible)
		c.POST("/options", read, opts.Options)
	}
}

// registerRecordRoutes registers record endpoints.
func registerRecordRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	records := handlers.NewRecordHandler(base, handlers.RecordHandlerConfig{
		Store:    cfg.Records,
		Bindings: cfg.Bindings,
		Schema:   cfg.Schema,
		Resolver: cfg.Resolver,
		History:  cfg.History,
	})

	read := middleware.RequirePermission(middleware.PermRecordRead)
	write := middleware.RequirePermission(middleware.PermRecordWrite)

	rg.GET("/directories/:id/data", read, records.Data)
	rg.POST("/directories/:id/records", write, records.Create)

	g := rg.Group("/records")
	{
		g.GET("/:id", read, records.Get)
		g.PUT("/:id", write, records.Update)
		g.DELETE("/:id", write, records.Delete)
		g.GET("/:id/history", read, records.History)
	}
}

// registerBindingRoutes registers company binding endpoints.
func registerBindingRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	bindings := handlers.NewBindingHandler(base, cfg.Bindings)
	write := middleware.RequirePermission(middleware.PermBindingWrite)

	rg.POST("/bindings", write, bindings.Bind)
	rg.DELETE("/bindings/:id", write, bindings.Unbind)
	rg.GET("/companies/:companyId/directories", middleware.RequirePermission(middleware.PermDirectoryRead), bindings.ListEnabled)
}
