package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/id"
)

func TestStaticLicensing(t *testing.T) {
	ctx := context.Background()
	company, inventory, sales := id.New(), id.New(), id.New()

	lic := NewStaticLicensing()
	lic.Enable(company, inventory)

	ok, err := lic.IsEnabled(ctx, company, inventory)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lic.IsEnabled(ctx, company, sales)
	require.NoError(t, err)
	assert.False(t, ok)

	mods, err := lic.EnabledModules(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, map[id.ID]bool{inventory: true}, mods)

	lic.Disable(company, inventory)
	mods, _ = lic.EnabledModules(ctx, company)
	assert.Empty(t, mods)
}

func TestCompanyContext(t *testing.T) {
	_, err := GetCompanyID(context.Background())
	assert.ErrorIs(t, err, ErrNoCompanyInContext)

	c := id.New()
	got, err := GetCompanyID(WithCompanyID(context.Background(), c))
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
