package directory

import (
	"context"
	"fmt"
	"strings"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/core/tx"
	"erpdir/pkg/logger"
)

// SchemaRegistry defines directories and their fields.
type SchemaRegistry struct {
	directories DirectoryRepository
	fields      FieldRepository
	txManager   tx.Manager
	rules       *RuleSet
}

// SchemaRegistryConfig configures the registry.
type SchemaRegistryConfig struct {
	Directories DirectoryRepository
	Fields      FieldRepository
	TxManager   tx.Manager
	Rules       *RuleSet
}

// NewSchemaRegistry creates a schema registry.
func NewSchemaRegistry(cfg SchemaRegistryConfig) *SchemaRegistry {
	return &SchemaRegistry{
		directories: cfg.Directories,
		fields:      cfg.Fields,
		txManager:   cfg.TxManager,
		rules:       cfg.Rules,
	}
}

// DefineDirectoryInput describes a new directory.
type DefineDirectoryInput struct {
	Name     string
	Icon     string
	Type     Type
	Metadata entity.Attributes
}

// DefineDirectory creates a directory definition.
func (s *SchemaRegistry) DefineDirectory(ctx context.Context, in DefineDirectoryInput) (*Directory, error) {
	meta, err := DecodeDirectoryMeta(in.Metadata)
	if err != nil {
		return nil, err
	}
	d := &Directory{
		BaseEntity: entity.NewBaseEntity(),
		Name:       strings.TrimSpace(in.Name),
		Icon:       in.Icon,
		Type:       in.Type,
		Meta:       meta,
	}
	if err := d.Validate(ctx); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.directories.CreateDirectory(ctx, d); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "directory defined", "directory_id", d.ID, "name", d.Name, "type", d.Type)
	return d, nil
}

// UpdateDirectoryInput carries the mutable parts of a directory. Nil means unchanged.
type UpdateDirectoryInput struct {
	Name     *string
	Icon     *string
	Metadata entity.Attributes
}

// UpdateDirectory changes name, icon or metadata of a directory.
func (s *SchemaRegistry) UpdateDirectory(ctx context.Context, directoryID id.ID, in UpdateDirectoryInput) (*Directory, error) {
	var out *Directory
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := s.GetDirectory(ctx, directoryID)
		if err != nil {
			return err
		}
		if in.Name != nil {
			d.Name = strings.TrimSpace(*in.Name)
		}
		if in.Icon != nil {
			d.Icon = *in.Icon
		}
		if in.Metadata != nil {
			meta, err := DecodeDirectoryMeta(in.Metadata)
			if err != nil {
				return err
			}
			d.Meta = meta
		}
		if err := d.Validate(ctx); err != nil {
			return err
		}
		d.Touch()
		if err := s.directories.UpdateDirectory(ctx, d); err != nil {
			return fmt.Errorf("update directory: %w", err)
		}
		out = d
		return nil
	})
	return out, err
}

// GetDirectory returns a directory definition.
func (s *SchemaRegistry) GetDirectory(ctx context.Context, directoryID id.ID) (*Directory, error) {
	d, err := s.directories.GetDirectory(ctx, directoryID)
	if err != nil {
		return nil, normalizeGetErr(err, "directory", directoryID)
	}
	return d, nil
}

// ListDirectories returns directory definitions matching q.
func (s *SchemaRegistry) ListDirectories(ctx context.Context, q DirectoryQuery) ([]*Directory, error) {
	return s.directories.ListDirectories(ctx, q)
}

// DeleteDirectory removes a directory with its fields, bindings, records and
// values. When other directories still hold relation fields pointing here,
// the call is rejected unless force is set; forced deletes leave those
// fields with no target.
func (s *SchemaRegistry) DeleteDirectory(ctx context.Context, directoryID id.ID, force bool) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.GetDirectory(ctx, directoryID); err != nil {
			return err
		}
		if !force {
			graph, err := s.RelationGraph(ctx)
			if err != nil {
				return err
			}
			if refs := graph.Referrers(directoryID); len(refs) > 0 {
				return apperror.NewDirectoryReferenced(directoryID, refs)
			}
		}
		if err := s.directories.DeleteDirectory(ctx, directoryID); err != nil {
			return fmt.Errorf("delete directory: %w", err)
		}
		logger.Info(ctx, "directory deleted", "directory_id", directoryID, "force", force)
		return nil
	})
}

// DefineFieldInput describes a new field.
type DefineFieldInput struct {
	Name       string
	Type       string
	Required   bool
	RelationID *id.ID
	Metadata   entity.Attributes
}

// DefineField adds a field to a directory.
//
// A relation field must point at an existing directory (InvalidReference).
// Field names are unique within a directory (DuplicateField). A relation
// that targets its own directory is stored; resolution refuses it.
func (s *SchemaRegistry) DefineField(ctx context.Context, directoryID id.ID, in DefineFieldInput) (*Field, error) {
	kind, err := ParseKind(in.Type)
	if err != nil {
		return nil, apperror.NewValidation(err.Error()).WithDetail("field", "type")
	}
	meta, err := DecodeFieldMeta(in.Metadata)
	if err != nil {
		return nil, err
	}

	f := &Field{
		BaseEntity:  entity.NewBaseEntity(),
		DirectoryID: directoryID,
		Name:        strings.TrimSpace(in.Name),
		Type:        FieldType{Kind: kind},
		Required:    in.Required,
		Meta:        meta,
	}
	if kind == KindRelation {
		if in.RelationID == nil {
			return nil, apperror.NewValidation("relation field requires a target directory").
				WithDetail("field", f.Name)
		}
		target := *in.RelationID
		f.Type.Target = &target
	} else if in.RelationID != nil {
		return nil, apperror.NewValidation("only relation fields may set a target directory").
			WithDetail("field", f.Name)
	}
	if err := f.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.checkFieldMeta(f); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.GetDirectory(ctx, directoryID); err != nil {
			return err
		}
		if target, ok := f.RelationTarget(); ok {
			exists, err := s.directories.DirectoryExists(ctx, target)
			if err != nil {
				return fmt.Errorf("check relation target: %w", err)
			}
			if !exists {
				return apperror.NewInvalidReference("directory", target)
			}
			if target == directoryID {
				logger.Debug(ctx, "self-referencing relation field stored", "directory_id", directoryID, "field", f.Name)
			}
		}
		taken, err := s.fields.FieldNameExists(ctx, directoryID, f.Name, nil)
		if err != nil {
			return fmt.Errorf("check field name: %w", err)
		}
		if taken {
			return apperror.NewDuplicateField(directoryID, f.Name)
		}
		if err := s.fields.CreateField(ctx, f); err != nil {
			return fmt.Errorf("create field: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "field defined", "directory_id", directoryID, "field_id", f.ID, "name", f.Name, "type", f.Type.Kind)
	return f, nil
}

// UpdateFieldInput carries the mutable parts of a field. The type of a
// field is fixed once values may exist.
type UpdateFieldInput struct {
	Name     *string
	Required *bool
	Metadata entity.Attributes
}

// UpdateField renames a field or changes its required flag or metadata.
func (s *SchemaRegistry) UpdateField(ctx context.Context, fieldID id.ID, in UpdateFieldInput) (*Field, error) {
	var out *Field
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		f, err := s.GetField(ctx, fieldID)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			taken, err := s.fields.FieldNameExists(ctx, f.DirectoryID, name, &f.ID)
			if err != nil {
				return fmt.Errorf("check field name: %w", err)
			}
			if taken {
				return apperror.NewDuplicateField(f.DirectoryID, name)
			}
			f.Name = name
		}
		if in.Required != nil {
			f.Required = *in.Required
		}
		if in.Metadata != nil {
			meta, err := DecodeFieldMeta(in.Metadata)
			if err != nil {
				return err
			}
			f.Meta = meta
		}
		if err := f.Validate(ctx); err != nil {
			return err
		}
		if err := s.checkFieldMeta(f); err != nil {
			return err
		}
		f.Touch()
		if err := s.fields.UpdateField(ctx, f); err != nil {
			return fmt.Errorf("update field: %w", err)
		}
		out = f
		return nil
	})
	return out, err
}

// DeleteField removes a field definition. Stored values survive with their
// name snapshot and are matched by name on read.
func (s *SchemaRegistry) DeleteField(ctx context.Context, fieldID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		f, err := s.GetField(ctx, fieldID)
		if err != nil {
			return err
		}
		if err := s.fields.DeleteField(ctx, fieldID); err != nil {
			return fmt.Errorf("delete field: %w", err)
		}
		logger.Info(ctx, "field deleted", "directory_id", f.DirectoryID, "field_id", fieldID, "name", f.Name)
		return nil
	})
}

// GetField returns a field definition.
func (s *SchemaRegistry) GetField(ctx context.Context, fieldID id.ID) (*Field, error) {
	f, err := s.fields.GetField(ctx, fieldID)
	if err != nil {
		return nil, normalizeGetErr(err, "field", fieldID)
	}
	return f, nil
}

// ListFields returns the fields of a directory ordered by metadata order,
// then creation.
func (s *SchemaRegistry) ListFields(ctx context.Context, directoryID id.ID) ([]*Field, error) {
	if _, err := s.GetDirectory(ctx, directoryID); err != nil {
		return nil, err
	}
	fields, err := s.fields.ListFields(ctx, directoryID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	SortFields(fields)
	return fields, nil
}

// RelationGraph builds the directory graph from all relation fields.
func (s *SchemaRegistry) RelationGraph(ctx context.Context) (*RelationGraph, error) {
	fields, err := s.fields.ListRelationFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list relation fields: %w", err)
	}
	return BuildRelationGraph(fields), nil
}

// Relations describes how a directory links to others.
type Relations struct {
	Outgoing  []Edge  `json:"outgoing"`
	Incoming  []Edge  `json:"incoming"`
	Reachable []id.ID `json:"reachable"`
	Cyclic    bool    `json:"cyclic"`
}

// DirectoryRelations reports the relation neighbourhood of a directory.
func (s *SchemaRegistry) DirectoryRelations(ctx context.Context, directoryID id.ID, maxDepth int) (*Relations, error) {
	if _, err := s.GetDirectory(ctx, directoryID); err != nil {
		return nil, err
	}
	g, err := s.RelationGraph(ctx)
	if err != nil {
		return nil, err
	}
	return &Relations{
		Outgoing:  g.Outgoing(directoryID),
		Incoming:  g.Incoming(directoryID),
		Reachable: g.Reachable(directoryID, maxDepth),
		Cyclic:    g.HasCycleFrom(directoryID),
	}, nil
}

// checkFieldMeta validates the default value and rule against the field type.
func (s *SchemaRegistry) checkFieldMeta(f *Field) error {
	if f.Meta.DefaultValue != nil {
		if _, err := f.Type.Encode(f.Meta.DefaultValue); err != nil {
			return apperror.NewTypeMismatch(f.Name, string(f.Type.Kind), f.Meta.DefaultValue).
				WithDetail("metadata", "defaultValue")
		}
	}
	if f.Meta.Rule != "" {
		if s.rules == nil {
			return apperror.NewInvalidMetadata("field", fmt.Errorf("rules are not enabled"))
		}
		if _, err := s.rules.Compile(f.Meta.Rule); err != nil {
			return apperror.NewInvalidMetadata("field", err).WithDetail("rule", f.Meta.Rule)
		}
	}
	return nil
}

func normalizeGetErr(err error, entityName string, key any) error {
	if err == nil {
		return nil
	}
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(entityName, key)
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", entityName).WithDetail("id", key)
}
