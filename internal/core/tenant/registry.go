package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"erpdir/internal/core/id"
)

// ModuleLicensing answers which modules a company may use.
// The licensing table is owned by another system; directories only read it.
type ModuleLicensing interface {
	// IsEnabled reports whether moduleID is licensed for companyID.
	IsEnabled(ctx context.Context, companyID, moduleID id.ID) (bool, error)

	// EnabledModules returns the set of licensed modules for companyID.
	EnabledModules(ctx context.Context, companyID id.ID) (map[id.ID]bool, error)
}

// PostgresLicensing implements ModuleLicensing over company_modules.
type PostgresLicensing struct {
	pool *pgxpool.Pool
}

func NewPostgresLicensing(pool *pgxpool.Pool) *PostgresLicensing {
	return &PostgresLicensing{pool: pool}
}

func (r *PostgresLicensing) IsEnabled(ctx context.Context, companyID, moduleID id.ID) (bool, error) {
	var enabled bool
	err := pgxscan.Get(ctx, r.pool, &enabled, `
		SELECT enabled
		FROM company_modules
		WHERE company_id = $1 AND module_id = $2
	`, companyID, moduleID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get company module: %w", err)
	}
	return enabled, nil
}

func (r *PostgresLicensing) EnabledModules(ctx context.Context, companyID id.ID) (map[id.ID]bool, error) {
	var rows []*CompanyModule
	err := pgxscan.Select(ctx, r.pool, &rows, `
		SELECT company_id, module_id, enabled, updated_at
		FROM company_modules
		WHERE company_id = $1 AND enabled
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list company modules: %w", err)
	}
	out := make(map[id.ID]bool, len(rows))
	for _, r := range rows {
		out[r.ModuleID] = true
	}
	return out, nil
}

// SetEnabled upserts a licensing row. Used by seeding and tooling only.
func (r *PostgresLicensing) SetEnabled(ctx context.Context, companyID, moduleID id.ID, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO company_modules (company_id, module_id, enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (company_id, module_id) DO UPDATE
		SET enabled = EXCLUDED.enabled, updated_at = NOW()
	`, companyID, moduleID, enabled)
	if err != nil {
		return fmt.Errorf("set company module: %w", err)
	}
	return nil
}

// StaticLicensing is an in-memory ModuleLicensing.
type StaticLicensing struct {
	mu      sync.RWMutex
	enabled map[id.ID]map[id.ID]bool
}

func NewStaticLicensing() *StaticLicensing {
	return &StaticLicensing{enabled: make(map[id.ID]map[id.ID]bool)}
}

// Enable licenses moduleID for companyID.
func (s *StaticLicensing) Enable(companyID, moduleID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled[companyID] == nil {
		s.enabled[companyID] = make(map[id.ID]bool)
	}
	s.enabled[companyID][moduleID] = true
}

// Disable revokes moduleID for companyID.
func (s *StaticLicensing) Disable(companyID, moduleID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enabled[companyID], moduleID)
}

func (s *StaticLicensing) IsEnabled(_ context.Context, companyID, moduleID id.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[companyID][moduleID], nil
}

func (s *StaticLicensing) EnabledModules(_ context.Context, companyID id.ID) (map[id.ID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.ID]bool, len(s.enabled[companyID]))
	for k, v := range s.enabled[companyID] {
		out[k] = v
	}
	return out, nil
}
