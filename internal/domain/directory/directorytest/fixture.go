package directorytest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/core/tenant"
	"erpdir/internal/domain/directory"
)

// Fixture wires every directory service over one in-memory Store.
type Fixture struct {
	Store     *Store
	Licensing *tenant.StaticLicensing
	Rules     *directory.RuleSet
	Schema    *directory.SchemaRegistry
	Bindings  *directory.BindingService
	Records   *directory.EntityStore
	Resolver  *directory.Resolver
}

// NewFixture builds a fresh fixture.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	store := NewStore()
	licensing := tenant.NewStaticLicensing()
	rules, err := directory.NewRuleSet()
	require.NoError(t, err)

	bindings := directory.NewBindingService(directory.BindingServiceConfig{
		Bindings:    store,
		Records:     store,
		Directories: store,
		Licensing:   licensing,
		TxManager:   store,
	})
	return &Fixture{
		Store:     store,
		Licensing: licensing,
		Rules:     rules,
		Schema: directory.NewSchemaRegistry(directory.SchemaRegistryConfig{
			Directories: store,
			Fields:      store,
			TxManager:   store,
			Rules:       rules,
		}),
		Bindings: bindings,
		Records: directory.NewEntityStore(directory.EntityStoreConfig{
			Records:   store,
			Fields:    store,
			Bindings:  bindings,
			TxManager: store,
			Rules:     rules,
		}),
		Resolver: directory.NewResolver(directory.ResolverConfig{
			Directories: store,
			Fields:      store,
			Records:     store,
			Bindings:    bindings,
		}),
	}
}

// Directory defines a company directory.
func (f *Fixture) Directory(t testing.TB, name string, meta entity.Attributes) *directory.Directory {
	t.Helper()
	d, err := f.Schema.DefineDirectory(context.Background(), directory.DefineDirectoryInput{
		Name:     name,
		Type:     directory.TypeCompany,
		Metadata: meta,
	})
	require.NoError(t, err)
	return d
}

// Field defines a non-relation field.
func (f *Fixture) Field(t testing.TB, dir *directory.Directory, name string, kind directory.Kind, meta entity.Attributes) *directory.Field {
	t.Helper()
	field, err := f.Schema.DefineField(context.Background(), dir.ID, directory.DefineFieldInput{
		Name:     name,
		Type:     string(kind),
		Metadata: meta,
	})
	require.NoError(t, err)
	return field
}

// Relation defines a relation field from dir to target.
func (f *Fixture) Relation(t testing.TB, dir *directory.Directory, name string, target *directory.Directory) *directory.Field {
	t.Helper()
	field, err := f.Schema.DefineField(context.Background(), dir.ID, directory.DefineFieldInput{
		Name:       name,
		Type:       string(directory.KindRelation),
		RelationID: &target.ID,
	})
	require.NoError(t, err)
	return field
}

// Bind binds dir to company without a module scope.
func (f *Fixture) Bind(t testing.TB, companyID id.ID, dir *directory.Directory) *directory.CompanyDirectory {
	t.Helper()
	b, err := f.Bindings.Bind(context.Background(), companyID, dir.ID, nil)
	require.NoError(t, err)
	return b
}

// Record creates a record from values keyed by field name.
func (f *Fixture) Record(t testing.TB, companyID id.ID, b *directory.CompanyDirectory, values map[string]any, meta entity.Attributes) *directory.RecordView {
	t.Helper()
	ctx := context.Background()
	keyed, err := f.Records.ResolveFieldKeys(ctx, companyID, b.ID, values)
	require.NoError(t, err)
	rec, err := f.Records.CreateRecord(ctx, companyID, b.ID, directory.RecordInput{Values: keyed, Metadata: meta})
	require.NoError(t, err)
	return rec
}
