package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "erpdir/internal/core/context"
	"erpdir/internal/core/id"
	"erpdir/internal/core/tenant"
)

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "erpdir.log")

	log, err := New(Config{Level: "debug", OutputPaths: []string{"stderr"}, File: path})
	require.NoError(t, err)

	log.Infow("directory created", "directory_id", "d-1")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "directory created")
	assert.Contains(t, string(data), "d-1")
}

func TestFromContext_UsesStoredLogger(t *testing.T) {
	ctx := WithLogger(context.Background(), Nop())
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1", CompanyID: "c-1"})

	l := FromContext(ctx)
	require.NotNil(t, l)
	l.Infow("ignored")
}

func TestWithContext_ResolvedCompanyWins(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := &Logger{zap.New(core).Sugar()}

	company := id.New()
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-1", CompanyID: "c-1"})

	base.WithContext(ctx).Infow("session")
	base.WithContext(tenant.WithCompanyID(ctx, company)).Infow("resolved")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "u-1", entries[0].ContextMap()["user_id"])
	assert.Equal(t, "c-1", entries[0].ContextMap()["company_id"])
	assert.Equal(t, company.String(), entries[1].ContextMap()["company_id"])
}
