package directory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/directory/directorytest"
)

func TestSchemaRegistry_DefineDirectory(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()

	d, err := fx.Schema.DefineDirectory(ctx, directory.DefineDirectoryInput{
		Name:     "  Clients ",
		Icon:     "users",
		Type:     directory.TypeCompany,
		Metadata: entity.Attributes{"selectDisplayField": "name"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Clients", d.Name)
	assert.Equal(t, "name", d.Meta.SelectDisplayField)

	got, err := fx.Schema.GetDirectory(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	_, err = fx.Schema.DefineDirectory(ctx, directory.DefineDirectoryInput{Name: "", Type: directory.TypeCompany})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = fx.Schema.DefineDirectory(ctx, directory.DefineDirectoryInput{Name: "X", Type: "weird"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = fx.Schema.GetDirectory(ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestSchemaRegistry_UpdateDirectory(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	d := fx.Directory(t, "Clients", entity.Attributes{"selectDisplayField": "name"})

	name := "Customers"
	updated, err := fx.Schema.UpdateDirectory(ctx, d.ID, directory.UpdateDirectoryInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Customers", updated.Name)
	assert.Equal(t, "name", updated.Meta.SelectDisplayField, "metadata untouched when not supplied")

	_, err = fx.Schema.UpdateDirectory(ctx, d.ID, directory.UpdateDirectoryInput{Metadata: entity.Attributes{"v": 9}})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidMetadata))
}

func TestSchemaRegistry_DuplicateField(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	d := fx.Directory(t, "Clients", nil)
	fx.Field(t, d, "name", directory.KindString, nil)

	_, err := fx.Schema.DefineField(ctx, d.ID, directory.DefineFieldInput{Name: "name", Type: "text"})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateField))

	// the same name in another directory is fine
	other := fx.Directory(t, "Vendors", nil)
	fx.Field(t, other, "name", directory.KindString, nil)

	// renaming onto an existing name is rejected too
	code := fx.Field(t, d, "code", directory.KindString, nil)
	taken := "name"
	_, err = fx.Schema.UpdateField(ctx, code.ID, directory.UpdateFieldInput{Name: &taken})
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateField))
}

func TestSchemaRegistry_InvalidReference(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	d := fx.Directory(t, "Clients", nil)
	missing := id.New()

	_, err := fx.Schema.DefineField(ctx, d.ID, directory.DefineFieldInput{
		Name:       "contracts",
		Type:       "relation",
		RelationID: &missing,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidReference))

	fields, err := fx.Schema.ListFields(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, fields, "rejected definition leaves nothing behind")

	_, err = fx.Schema.DefineField(ctx, d.ID, directory.DefineFieldInput{Name: "contracts", Type: "relation"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "relation without target")

	_, err = fx.Schema.DefineField(ctx, d.ID, directory.DefineFieldInput{Name: "n", Type: "string", RelationID: &d.ID})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "target on a non-relation")
}

func TestSchemaRegistry_SelfReferenceStoredButRefused(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	d := fx.Directory(t, "Departments", nil)

	f := fx.Relation(t, d, "parent", d)
	assert.Equal(t, d.ID, *f.Type.Target)

	_, err := fx.Resolver.ResolveField(ctx, directory.FieldOptionsQuery{FieldID: f.ID, CompanyID: id.New()})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSelfReference))

	// a form for another directory may still resolve it
	other := id.New()
	_, err = fx.Resolver.CheckRelationField(f, &other)
	assert.NoError(t, err)
}

func TestSchemaRegistry_ListFieldsOrder(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	d := fx.Directory(t, "Products", nil)

	unordered := fx.Field(t, d, "notes", directory.KindText, nil)
	second := fx.Field(t, d, "price", directory.KindDecimal, entity.Attributes{"order": 2})
	first := fx.Field(t, d, "sku", directory.KindString, entity.Attributes{"order": 1})
	tie := fx.Field(t, d, "title", directory.KindString, entity.Attributes{"order": 2})

	fields, err := fx.Schema.ListFields(ctx, d.ID)
	require.NoError(t, err)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{first.Name, second.Name, tie.Name, unordered.Name}, names)
}

func TestSchemaRegistry_FieldMetaChecks(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	d := fx.Directory(t, "Products", nil)

	_, err := fx.Schema.DefineField(ctx, d.ID, directory.DefineFieldInput{
		Name: "qty", Type: "integer", Metadata: entity.Attributes{"defaultValue": "many"},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeTypeMismatch))

	_, err = fx.Schema.DefineField(ctx, d.ID, directory.DefineFieldInput{
		Name: "qty", Type: "integer", Metadata: entity.Attributes{"rule": "value >"},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidMetadata))

	_, err = fx.Schema.DefineField(ctx, d.ID, directory.DefineFieldInput{Name: "qty", Type: "blob"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestSchemaRegistry_DeleteDirectory(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	contracts := fx.Directory(t, "Contracts", nil)
	clients := fx.Directory(t, "Clients", nil)
	link := fx.Relation(t, clients, "contracts", contracts)

	err := fx.Schema.DeleteDirectory(ctx, contracts.ID, false)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDirectoryReferenced))

	rel, err := fx.Schema.DirectoryRelations(ctx, clients.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{contracts.ID}, rel.Reachable)
	assert.False(t, rel.Cyclic)

	require.NoError(t, fx.Schema.DeleteDirectory(ctx, contracts.ID, true))
	_, err = fx.Schema.GetDirectory(ctx, contracts.ID)
	assert.True(t, apperror.IsNotFound(err))

	f, err := fx.Schema.GetField(ctx, link.ID)
	require.NoError(t, err)
	assert.Nil(t, f.Type.Target, "forced delete leaves the relation without a target")

	_, err = fx.Resolver.CheckRelationField(f, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidReference))
}
