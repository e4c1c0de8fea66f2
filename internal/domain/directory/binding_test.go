package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/directory/directorytest"
)

func TestBindingService_BindIsIdempotent(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	company := id.New()
	d := fx.Directory(t, "Clients", nil)

	first, err := fx.Bindings.Bind(ctx, company, d.ID, nil)
	require.NoError(t, err)
	again, err := fx.Bindings.Bind(ctx, company, d.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	module := id.New()
	fx.Licensing.Enable(company, module)
	scoped, err := fx.Bindings.Bind(ctx, company, d.ID, &module)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, scoped.ID, "module scope is part of the key")

	all, err := fx.Bindings.ListEnabledDirectories(ctx, company)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = fx.Bindings.Bind(ctx, company, id.New(), nil)
	assert.True(t, apperror.IsNotFound(err))
}

func TestBindingService_DisabledModule(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	company := id.New()
	module := id.New()
	shared := fx.Directory(t, "Currencies", nil)
	owned := fx.Directory(t, "Warehouses", nil)
	fx.Field(t, owned, "name", directory.KindString, nil)

	_, err := fx.Bindings.Bind(ctx, company, owned.ID, &module)
	assert.True(t, apperror.HasCode(err, apperror.CodeModuleDisabled))

	fx.Licensing.Enable(company, module)
	fx.Bind(t, company, shared)
	b, err := fx.Bindings.Bind(ctx, company, owned.ID, &module)
	require.NoError(t, err)
	fx.Record(t, company, b, map[string]any{"name": "Main"}, nil)

	fx.Licensing.Disable(company, module)
	visible, err := fx.Bindings.ListEnabledDirectories(ctx, company)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, shared.ID, visible[0].DirectoryID)
	assert.Equal(t, 1, fx.Store.RecordCount(b.ID), "disabling hides data without deleting it")

	fx.Licensing.Enable(company, module)
	visible, err = fx.Bindings.ListEnabledDirectories(ctx, company)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestBindingService_Unbind(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	company := id.New()
	d := fx.Directory(t, "Clients", nil)
	fx.Field(t, d, "name", directory.KindString, nil)
	b := fx.Bind(t, company, d)
	rec := fx.Record(t, company, b, map[string]any{"name": "Acme"}, nil)
	fx.Record(t, company, b, map[string]any{"name": "Globex"}, nil)

	assert.True(t, apperror.IsNotFound(fx.Bindings.Unbind(ctx, id.New(), b.ID)), "other company")

	require.NoError(t, fx.Bindings.Unbind(ctx, company, b.ID))
	assert.Zero(t, fx.Store.RecordCount(b.ID))
	_, err := fx.Bindings.GetBinding(ctx, company, b.ID)
	assert.True(t, apperror.IsNotFound(err))
	_, err = fx.Store.GetRecord(ctx, rec.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestBindingService_UnbindIsAtomic(t *testing.T) {
	fx := directorytest.NewFixture(t)
	ctx := context.Background()
	company := id.New()
	d := fx.Directory(t, "Clients", nil)
	fx.Field(t, d, "name", directory.KindString, nil)
	b := fx.Bind(t, company, d)
	rec := fx.Record(t, company, b, map[string]any{"name": "Acme"}, nil)

	fx.Store.FailOn("DeleteBinding", errors.New("connection reset"))
	err := fx.Bindings.Unbind(ctx, company, b.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeCascadeDeleteFailed))

	assert.Equal(t, 1, fx.Store.RecordCount(b.ID), "records restored")
	got, err := fx.Records.GetRecord(ctx, company, rec.ID)
	require.NoError(t, err)
	v, _ := got.Get("name")
	assert.Equal(t, "Acme", v, "values restored")
	_, err = fx.Bindings.GetBinding(ctx, company, b.ID)
	assert.NoError(t, err)
}
