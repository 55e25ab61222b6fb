package bootstrap

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/tms-project/tms/internal/adminauth"
	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tms.db")
	db, err := store.Connect(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))
	return db
}

func TestNeedsInstall(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	needs, err := NeedsInstall(ctx, db)
	require.NoError(t, err)
	require.True(t, needs)

	var out bytes.Buffer
	require.NoError(t, Run(ctx, db, config.Config{EnableTestTenant: true}, &out))

	needs, err = NeedsInstall(ctx, db)
	require.NoError(t, err)
	require.False(t, needs)
}

func TestRun_CreatesExpectedTenantsAdminsAndDemoData(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	var out bytes.Buffer

	require.NoError(t, Run(ctx, db, config.Config{EnableTestTenant: true}, &out))

	def, err := store.GetTenant(ctx, db.SQL, "default")
	require.NoError(t, err)
	require.True(t, def.Enabled)

	test, err := store.GetTenant(ctx, db.SQL, "test")
	require.NoError(t, err)
	require.True(t, test.Enabled)

	defAdmin, err := store.GetAdmin(ctx, db.SQL, "default", "default_admin")
	require.NoError(t, err)
	require.Equal(t, string(adminauth.PrivilegeTenantAdmin), defAdmin.Privilege)

	testAdmin, err := store.GetAdmin(ctx, db.SQL, "test", "test_admin")
	require.NoError(t, err)
	require.NotEmpty(t, testAdmin.AdminSecret)

	client, err := store.GetClient(ctx, db.SQL, "test", "testclient1")
	require.NoError(t, err)
	require.Equal(t, "secret1", client.ClientSecret)

	mfa, err := store.GetUserMFA(ctx, db.SQL, "test", "testuser1")
	require.NoError(t, err)
	require.True(t, mfa.Enabled)

	binding, err := store.FindUserHostBinding(ctx, db.SQL, "test", "testuser1", "testhost1", "testhostaccount1")
	require.NoError(t, err)
	require.Equal(t, "testhostaccount1", binding.HostAccount)

	delegation, err := store.FindDelegation(ctx, db.SQL, "test", "testclient1", "testuser1")
	require.NoError(t, err)
	require.NotZero(t, delegation.ExpiresAt)

	printed := out.String()
	require.Contains(t, printed, "default_admin")
	require.Contains(t, printed, "test_admin")
	require.Contains(t, printed, "shown once")
}

func TestRun_TestTenantDisabledWhenConfigured(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	var out bytes.Buffer

	require.NoError(t, Run(ctx, db, config.Config{EnableTestTenant: false}, &out))

	test, err := store.GetTenant(ctx, db.SQL, "test")
	require.NoError(t, err)
	require.False(t, test.Enabled)
}

func TestRun_PrintedPasswordIsValidAgainstStoredHash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	var out bytes.Buffer

	require.NoError(t, Run(ctx, db, config.Config{EnableTestTenant: true}, &out))

	admin, err := store.GetAdmin(ctx, db.SQL, "default", "default_admin")
	require.NoError(t, err)

	var secret string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, "default/default_admin") {
			parts := strings.Split(line, "password: ")
			require.Len(t, parts, 2)
			secret = strings.TrimSpace(parts[1])
		}
	}
	require.NotEmpty(t, secret)
	require.True(t, adminauth.VerifySecret(admin.AdminSecret, secret))
}
