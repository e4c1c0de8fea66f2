// Package app assembles the directory engine from configuration.
package app

import (
	"context"
	"fmt"

	"erpdir/internal/config"
	"erpdir/internal/core/tenant"
	"erpdir/internal/domain"
	"erpdir/internal/domain/cascade"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/render"
	"erpdir/internal/infrastructure/cache"
	"erpdir/internal/infrastructure/storage/postgres"
	"erpdir/internal/infrastructure/storage/postgres/directory_repo"
	"erpdir/pkg/logger"
)

// App holds the wired services. Close releases the pool and the cache listener.
type App struct {
	Config config.Config

	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Licensing *tenant.PostgresLicensing
	Cache     *cache.FieldCache
	Audit     *postgres.RecordAudit

	Schema    *directory.SchemaRegistry
	Bindings  *directory.BindingService
	Records   *directory.EntityStore
	Resolver  *directory.Resolver
	Cascade   *cascade.Engine
	Renderers *render.Registry
}

// New connects to the database and builds every service.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	txm := postgres.NewTxManager(pool)
	txm.SetStatementTimeout(cfg.StatementTimeout)

	a := &App{
		Config:    cfg,
		Pool:      pool,
		TxManager: txm,
		Licensing: tenant.NewPostgresLicensing(pool.Pool),
		Renderers: render.NewDefaultRegistry(),
	}

	dirs := directory_repo.NewDirectoryRepo(txm)
	records := directory_repo.NewRecordRepo(txm)
	bindings := directory_repo.NewBindingRepo(txm)

	var fields directory.FieldRepository = directory_repo.NewFieldRepo(txm)
	if cfg.SchemaCacheEnabled {
		a.Cache = cache.NewFieldCache(fields, pool.Pool, func(ctx context.Context) bool {
			return txm.GetTx(ctx) != nil
		})
		if err := a.Cache.Start(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("start schema cache: %w", err)
		}
		fields = a.Cache
		log.Info("schema cache enabled")
	}

	rules, err := directory.NewRuleSet()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("compile rules: %w", err)
	}

	a.Schema = directory.NewSchemaRegistry(directory.SchemaRegistryConfig{
		Directories: dirs,
		Fields:      fields,
		TxManager:   txm,
		Rules:       rules,
	})
	a.Bindings = directory.NewBindingService(directory.BindingServiceConfig{
		Bindings:    bindings,
		Records:     records,
		Directories: dirs,
		Licensing:   a.Licensing,
		TxManager:   txm,
	})
	a.Records = directory.NewEntityStore(directory.EntityStoreConfig{
		Records:   records,
		Fields:    fields,
		Bindings:  a.Bindings,
		TxManager: txm,
		Rules:     rules,
	})
	a.Resolver = directory.NewResolver(directory.ResolverConfig{
		Directories: dirs,
		Fields:      fields,
		Records:     records,
		Bindings:    a.Bindings,
		PageSize:    cfg.OptionsPageSize,
		MaxDepth:    cfg.RelationMaxDepth,
	})
	a.Cascade = cascade.NewEngine(fields, records, a.Resolver, cfg.CascadeMaxDepth)

	a.Audit, err = postgres.NewRecordAudit(txm)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("record audit: %w", err)
	}
	hook := directory.AuditHook(a.Audit)
	a.Records.Hooks().On(domain.AfterCreate, hook)
	a.Records.Hooks().On(domain.AfterUpdate, hook)
	a.Records.Hooks().On(domain.BeforeDelete, hook)

	return a, nil
}

// Stats reports pool and cache counters for /health/info.
func (a *App) Stats() map[string]func() any {
	out := map[string]func() any{
		"database": func() any { return postgres.GetPoolStats(a.Pool.Pool) },
	}
	if a.Cache != nil {
		out["schema_cache"] = func() any { return a.Cache.Stats() }
	}
	return out
}

func (a *App) Close() {
	if a.Cache != nil {
		a.Cache.Stop()
	}
	a.Pool.Close()
}
