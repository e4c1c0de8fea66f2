package directory

import (
	"context"
	"fmt"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/core/tenant"
	"erpdir/internal/core/tx"
	"erpdir/pkg/logger"
)

// BindingService attaches shared directory definitions to companies.
type BindingService struct {
	bindings    BindingRepository
	records     RecordRepository
	directories DirectoryRepository
	licensing   tenant.ModuleLicensing
	txManager   tx.Manager
}

// BindingServiceConfig configures the binding service.
type BindingServiceConfig struct {
	Bindings    BindingRepository
	Records     RecordRepository
	Directories DirectoryRepository
	Licensing   tenant.ModuleLicensing
	TxManager   tx.Manager
}

// NewBindingService creates a binding service.
func NewBindingService(cfg BindingServiceConfig) *BindingService {
	return &BindingService{
		bindings:    cfg.Bindings,
		records:     cfg.Records,
		directories: cfg.Directories,
		licensing:   cfg.Licensing,
		txManager:   cfg.TxManager,
	}
}

// Bind links a directory to a company. Binding an existing
// (company, directory, module) triple returns the existing binding.
func (s *BindingService) Bind(ctx context.Context, companyID, directoryID id.ID, moduleID *id.ID) (*CompanyDirectory, error) {
	if moduleID != nil {
		enabled, err := s.licensing.IsEnabled(ctx, companyID, *moduleID)
		if err != nil {
			return nil, fmt.Errorf("check module licensing: %w", err)
		}
		if !enabled {
			return nil, apperror.NewModuleDisabled(*moduleID)
		}
	}

	var out *CompanyDirectory
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.directories.DirectoryExists(ctx, directoryID)
		if err != nil {
			return fmt.Errorf("check directory: %w", err)
		}
		if !exists {
			return apperror.NewNotFound("directory", directoryID)
		}

		existing, err := s.bindings.FindBinding(ctx, companyID, directoryID, moduleID)
		switch {
		case err == nil:
			out = existing
			return nil
		case !apperror.IsNotFound(err):
			return fmt.Errorf("find binding: %w", err)
		}

		b := &CompanyDirectory{
			BaseEntity:  entity.NewBaseEntity(),
			CompanyID:   companyID,
			DirectoryID: directoryID,
			ModuleID:    moduleID,
		}
		if err := s.bindings.CreateBinding(ctx, b); err != nil {
			return fmt.Errorf("create binding: %w", err)
		}
		out = b
		logger.Info(ctx, "directory bound", "company_id", companyID, "directory_id", directoryID, "binding_id", b.ID)
		return nil
	})
	if err != nil {
		// a concurrent Bind of the same triple won the unique index
		if apperror.HasCode(err, apperror.CodeDuplicate) {
			return s.bindings.FindBinding(ctx, companyID, directoryID, moduleID)
		}
		return nil, err
	}
	return out, nil
}

// Unbind removes a binding with all its records and values in one
// transaction. Any failure rolls everything back and is reported as
// CascadeDeleteFailed.
func (s *BindingService) Unbind(ctx context.Context, companyID, bindingID id.ID) error {
	if _, err := s.GetBinding(ctx, companyID, bindingID); err != nil {
		return err
	}

	var values, records int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if values, err = s.records.DeleteValuesByBinding(ctx, bindingID); err != nil {
			return fmt.Errorf("delete values: %w", err)
		}
		if records, err = s.records.DeleteRecordsByBinding(ctx, bindingID); err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		if err := s.bindings.DeleteBinding(ctx, bindingID); err != nil {
			return fmt.Errorf("delete binding: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error(ctx, "unbind failed", "binding_id", bindingID, "error", err)
		return apperror.NewCascadeDeleteFailed(bindingID, err)
	}

	logger.Info(ctx, "directory unbound", "binding_id", bindingID, "records", records, "values", values)
	return nil
}

// GetBinding returns a binding owned by companyID.
func (s *BindingService) GetBinding(ctx context.Context, companyID, bindingID id.ID) (*CompanyDirectory, error) {
	b, err := s.bindings.GetBinding(ctx, bindingID)
	if err != nil {
		return nil, normalizeGetErr(err, "company directory", bindingID)
	}
	if b.CompanyID != companyID {
		return nil, apperror.NewNotFound("company directory", bindingID)
	}
	return b, nil
}

// FindBinding returns the binding of a (company, directory, module) triple.
func (s *BindingService) FindBinding(ctx context.Context, companyID, directoryID id.ID, moduleID *id.ID) (*CompanyDirectory, error) {
	b, err := s.bindings.FindBinding(ctx, companyID, directoryID, moduleID)
	if err != nil {
		return nil, normalizeGetErr(err, "company directory", directoryID)
	}
	return b, nil
}

// ListEnabledDirectories returns the company's bindings whose module, if
// any, is currently licensed. Bindings of disabled modules are hidden, not
// deleted.
func (s *BindingService) ListEnabledDirectories(ctx context.Context, companyID id.ID) ([]*CompanyDirectory, error) {
	all, err := s.bindings.ListBindings(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return s.filterEnabled(ctx, companyID, all)
}

// EnabledBindingsForDirectory returns the company's enabled bindings of one directory.
func (s *BindingService) EnabledBindingsForDirectory(ctx context.Context, companyID, directoryID id.ID) ([]*CompanyDirectory, error) {
	all, err := s.bindings.ListBindingsForDirectory(ctx, companyID, directoryID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return s.filterEnabled(ctx, companyID, all)
}

func (s *BindingService) filterEnabled(ctx context.Context, companyID id.ID, all []*CompanyDirectory) ([]*CompanyDirectory, error) {
	var enabled map[id.ID]bool
	out := make([]*CompanyDirectory, 0, len(all))
	for _, b := range all {
		if b.ModuleID == nil {
			out = append(out, b)
			continue
		}
		if enabled == nil {
			var err error
			if enabled, err = s.licensing.EnabledModules(ctx, companyID); err != nil {
				return nil, fmt.Errorf("load enabled modules: %w", err)
			}
		}
		if enabled[*b.ModuleID] {
			out = append(out, b)
		}
	}
	return out, nil
}
