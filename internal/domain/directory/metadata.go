package directory

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
)

// DirectoryMetaVersion is the newest directory metadata layout this build understands.
const DirectoryMetaVersion = 1

// DirectoryMeta is the typed form of directories.metadata.
type DirectoryMeta struct {
	Version            int            `json:"v,omitempty" mapstructure:"v" validate:"gte=0,lte=1"`
	SelectDisplayField string         `json:"selectDisplayField,omitempty" mapstructure:"selectDisplayField" validate:"max=128"`
	ComponentName      string         `json:"componentName,omitempty" mapstructure:"componentName" validate:"max=128"`
	Capability         string         `json:"capability,omitempty" mapstructure:"capability" validate:"max=64"`
	Visible            *bool          `json:"visible,omitempty" mapstructure:"visible"`
	Extra              map[string]any `json:"-" mapstructure:",remain"`
}

// IsVisible defaults to true when the flag is absent.
func (m DirectoryMeta) IsVisible() bool {
	return m.Visible == nil || *m.Visible
}

// FieldMeta is the typed form of directory_fields.metadata.
type FieldMeta struct {
	Order            *int           `json:"order,omitempty" mapstructure:"order" validate:"omitempty,gte=0"`
	IsVisibleOnTable bool           `json:"isVisibleOnTable,omitempty" mapstructure:"isVisibleOnTable"`
	DefaultValue     any            `json:"defaultValue,omitempty" mapstructure:"defaultValue"`
	Rule             string         `json:"rule,omitempty" mapstructure:"rule" validate:"max=1024"`
	RuleMessage      string         `json:"ruleMessage,omitempty" mapstructure:"ruleMessage" validate:"max=512"`
	Extra            map[string]any `json:"-" mapstructure:",remain"`
}

// RecordMeta is the typed form of directory_records.metadata.
type RecordMeta struct {
	ParentValue     string           `json:"parentValue,omitempty" mapstructure:"parentValue" validate:"max=512"`
	CascadingConfig *CascadingConfig `json:"cascadingConfig,omitempty" mapstructure:"cascadingConfig"`
	Extra           map[string]any   `json:"-" mapstructure:",remain"`
}

// CascadingConfig declares the dependent fields revealed when a record is
// picked as the value of a parent relation field.
type CascadingConfig struct {
	Enabled         bool             `json:"enabled" mapstructure:"enabled"`
	DependentFields []DependentField `json:"dependentFields" mapstructure:"dependentFields" validate:"dive"`
}

// DependentField is one entry of a cascading config.
// DependsOn nil means the field is visible as soon as the parent is selected.
type DependentField struct {
	FieldName   string  `json:"fieldName" mapstructure:"fieldName" validate:"required,max=128"`
	DirectoryID id.ID   `json:"directoryId" mapstructure:"directoryId"`
	DisplayName string  `json:"displayName" mapstructure:"displayName" validate:"max=256"`
	Required    bool    `json:"required" mapstructure:"required"`
	DependsOn   *string `json:"dependsOn" mapstructure:"dependsOn"`
}

// Validate checks cross-entry constraints the struct tags cannot express.
func (c *CascadingConfig) Validate() error {
	byName := make(map[string]*DependentField, len(c.DependentFields))
	for i := range c.DependentFields {
		f := &c.DependentFields[i]
		if _, dup := byName[f.FieldName]; dup {
			return fmt.Errorf("dependent field %q declared twice", f.FieldName)
		}
		if id.IsNil(f.DirectoryID) {
			return fmt.Errorf("dependent field %q has no directory", f.FieldName)
		}
		byName[f.FieldName] = f
	}
	for _, f := range c.DependentFields {
		if f.DependsOn == nil {
			continue
		}
		if _, ok := byName[*f.DependsOn]; !ok {
			return fmt.Errorf("dependent field %q depends on unknown field %q", f.FieldName, *f.DependsOn)
		}
		// follow the chain; revisiting a name means a loop
		seen := map[string]bool{f.FieldName: true}
		for cur := byName[*f.DependsOn]; cur != nil; {
			if seen[cur.FieldName] {
				return fmt.Errorf("dependent field %q is part of a dependsOn cycle", f.FieldName)
			}
			seen[cur.FieldName] = true
			if cur.DependsOn == nil {
				break
			}
			cur = byName[*cur.DependsOn]
		}
	}
	return nil
}

// Field returns the entry with the given name.
func (c *CascadingConfig) Field(name string) (DependentField, bool) {
	for _, f := range c.DependentFields {
		if f.FieldName == name {
			return f, true
		}
	}
	return DependentField{}, false
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func metaValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

var idType = reflect.TypeOf(id.ID{})

func stringToIDHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != idType {
			return data, nil
		}
		s := data.(string)
		if s == "" {
			return id.Nil(), nil
		}
		return id.Parse(s)
	}
}

func decodeMeta[T any](kind string, src entity.Attributes) (T, error) {
	var out T
	if len(src) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			WeaklyTypedInput: true,
			DecodeHook:       stringToIDHook(),
		})
		if err != nil {
			return out, apperror.NewInternal(err)
		}
		if err := dec.Decode(map[string]any(src)); err != nil {
			return out, apperror.NewInvalidMetadata(kind, err)
		}
	}
	if err := metaValidator().Struct(out); err != nil {
		return out, apperror.NewInvalidMetadata(kind, err)
	}
	return out, nil
}

// DecodeDirectoryMeta decodes and validates directory metadata.
func DecodeDirectoryMeta(src entity.Attributes) (DirectoryMeta, error) {
	m, err := decodeMeta[DirectoryMeta]("directory", src)
	if err != nil {
		return m, err
	}
	if m.Version == 0 {
		m.Version = DirectoryMetaVersion
	}
	return m, nil
}

// DecodeFieldMeta decodes and validates field metadata.
func DecodeFieldMeta(src entity.Attributes) (FieldMeta, error) {
	return decodeMeta[FieldMeta]("field", src)
}

// DecodeRecordMeta decodes and validates record metadata, including the
// cascading config when present.
func DecodeRecordMeta(src entity.Attributes) (RecordMeta, error) {
	m, err := decodeMeta[RecordMeta]("record", src)
	if err != nil {
		return m, err
	}
	if m.CascadingConfig != nil {
		if err := m.CascadingConfig.Validate(); err != nil {
			return m, apperror.NewInvalidMetadata("cascadingConfig", err)
		}
	}
	return m, nil
}

// encodeMeta turns a typed metadata struct back into its JSONB form.
// Unknown keys captured on decode are written back unchanged.
func encodeMeta(v any, extra map[string]any) (entity.Attributes, error) {
	attrs, err := entity.FromJSON(v)
	if err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, taken := attrs[k]; !taken {
			attrs[k] = val
		}
	}
	return attrs, nil
}

// Attributes encodes the metadata for storage.
func (m DirectoryMeta) Attributes() (entity.Attributes, error) { return encodeMeta(m, m.Extra) }

// Attributes encodes the metadata for storage.
func (m FieldMeta) Attributes() (entity.Attributes, error) { return encodeMeta(m, m.Extra) }

// Attributes encodes the metadata for storage.
func (m RecordMeta) Attributes() (entity.Attributes, error) { return encodeMeta(m, m.Extra) }
