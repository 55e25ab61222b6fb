package policy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/store"
	"github.com/tms-project/tms/internal/tmstime"
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

func seedTenantClient(t *testing.T, db *store.DB, tenant string, tenantEnabled bool) {
	t.Helper()
	ctx := context.Background()
	ts := "2026-01-01T00:00:00Z"
	require.NoError(t, store.InsertTenant(ctx, db.SQL, store.Tenant{Tenant: tenant, Enabled: tenantEnabled, Created: ts, Updated: ts}))
	require.NoError(t, store.InsertClient(ctx, db.SQL, store.Client{
		Tenant: tenant, ClientID: "c1", ClientSecret: "secret1", AppName: "app", AppVersion: "1",
		Enabled: true, Created: ts, Updated: ts,
	}))
}

func TestEvaluateMint_TenantDisabled(t *testing.T) {
	db := newTestDB(t)
	seedTenantClient(t, db, "acme", false)
	e := New(config.Config{})
	res, err := e.EvaluateMint(context.Background(), db.SQL, MintRequest{
		Tenant: "acme", ClientID: "c1", ClientSecret: "secret1", ClientUserID: "u1", Host: "h1", HostAccount: "u1",
	}, time.Now())
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "tenant", res.Which)
}

func TestEvaluateMint_TestTenantGated(t *testing.T) {
	db := newTestDB(t)
	seedTenantClient(t, db, "test", true)
	e := New(config.Config{EnableTestTenant: false})
	res, err := e.EvaluateMint(context.Background(), db.SQL, MintRequest{
		Tenant: "test", ClientID: "c1", ClientSecret: "secret1", ClientUserID: "u1", Host: "h1", HostAccount: "u1",
	}, time.Now())
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "tenant", res.Which)
}

func TestEvaluateMint_ClientSecretMismatch(t *testing.T) {
	db := newTestDB(t)
	seedTenantClient(t, db, "acme", true)
	e := New(config.Config{})
	res, err := e.EvaluateMint(context.Background(), db.SQL, MintRequest{
		Tenant: "acme", ClientID: "c1", ClientSecret: "wrong", ClientUserID: "u1", Host: "h1", HostAccount: "u1",
	}, time.Now())
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "client", res.Which)
}

func TestEvaluateMint_MFAExpiredBlocksThenNeverAllows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedTenantClient(t, db, "acme", true)
	now := time.Now()
	ts := tmstime.FormatTimestamp(now)
	require.NoError(t, store.InsertUserMFA(ctx, db.SQL, store.UserMFA{
		Tenant: "acme", TMSUserID: "u1", ExpiresAt: tmstime.ExpiresAtSeconds(now.Add(-time.Hour)),
		Enabled: true, Created: ts, Updated: ts,
	}))

	e := New(config.Config{})
	req := MintRequest{Tenant: "acme", ClientID: "c1", ClientSecret: "secret1", ClientUserID: "u1", Host: "h1", HostAccount: "u1"}
	res, err := e.EvaluateMint(ctx, db.SQL, req, now)
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "user_mfa", res.Which)

	require.NoError(t, store.DeleteUserMFA(ctx, db.SQL, "acme", "u1"))
	require.NoError(t, store.InsertUserMFA(ctx, db.SQL, store.UserMFA{
		Tenant: "acme", TMSUserID: "u1", ExpiresAt: tmstime.ExpiresAtSeconds(tmstime.Never),
		Enabled: true, Created: ts, Updated: ts,
	}))
	require.NoError(t, store.InsertDelegation(ctx, db.SQL, store.Delegation{
		Tenant: "acme", ClientID: "c1", ClientUserID: "u1", ExpiresAt: tmstime.ExpiresAtSeconds(tmstime.Never),
		Created: ts, Updated: ts,
	}))
	require.NoError(t, store.InsertUserHost(ctx, db.SQL, store.UserHost{
		Tenant: "acme", TMSUserID: "u1", Host: "h1", HostAccount: "u1", Created: ts, Updated: ts,
	}))
	res, err = e.EvaluateMint(ctx, db.SQL, req, now)
	require.NoError(t, err)
	require.True(t, res.OK)
}

func TestEvaluateMint_MVPAutoProvisionsMissingRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedTenantClient(t, db, "acme", true)
	e := New(config.Config{EnableMVP: true})
	now := time.Now()

	res, err := e.EvaluateMint(ctx, db.SQL, MintRequest{
		Tenant: "acme", ClientID: "c1", ClientSecret: "secret1", ClientUserID: "u1", Host: "h1", HostAccount: "u1",
	}, now)
	require.NoError(t, err)
	require.True(t, res.OK)

	_, err = store.GetUserMFA(ctx, db.SQL, "acme", "u1")
	require.NoError(t, err)
	_, err = store.FindDelegation(ctx, db.SQL, "acme", "c1", "u1")
	require.NoError(t, err)
	_, err = store.FindUserHostBinding(ctx, db.SQL, "acme", "u1", "h1", "u1")
	require.NoError(t, err)
}

func TestEvaluateMint_MVPRejectsIdentityMismatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedTenantClient(t, db, "acme", true)
	e := New(config.Config{EnableMVP: true})
	now := time.Now()

	res, err := e.EvaluateMint(ctx, db.SQL, MintRequest{
		Tenant: "acme", ClientID: "c1", ClientSecret: "secret1", ClientUserID: "u1", Host: "h1", HostAccount: "someoneelse",
	}, now)
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "user_host", res.Which)
}

func seedResolvableKey(t *testing.T, db *store.DB, maxUses, remainingUses int, expiresAt time.Time, hostAccount string) {
	t.Helper()
	ctx := context.Background()
	ts := "2026-01-01T00:00:00Z"
	require.NoError(t, store.InsertTenant(ctx, db.SQL, store.Tenant{Tenant: "acme", Enabled: true, Created: ts, Updated: ts}))
	require.NoError(t, store.InsertClient(ctx, db.SQL, store.Client{Tenant: "acme", ClientID: "c1", ClientSecret: "s1", AppName: "a", AppVersion: "1", Enabled: true, Created: ts, Updated: ts}))
	require.NoError(t, store.InsertUserMFA(ctx, db.SQL, store.UserMFA{Tenant: "acme", TMSUserID: "u1", ExpiresAt: tmstime.ExpiresAtSeconds(tmstime.Never), Enabled: true, Created: ts, Updated: ts}))
	require.NoError(t, store.InsertPubKey(ctx, db.SQL, store.PubKey{
		PublicKeyFingerprint: "SHA256:abc", Host: "h1", Tenant: "acme", ClientID: "c1", ClientUserID: "u1",
		HostAccount: hostAccount, PublicKey: "ssh-ed25519 AAAA", KeyType: "ED25519", KeyBits: 256,
		MaxUses: maxUses, RemainingUses: remainingUses, InitialTTLMinutes: 0,
		ExpiresAt: tmstime.ExpiresAtSeconds(expiresAt), Created: ts, Updated: ts,
	}))
}

func TestEvaluateResolve_UnknownFingerprint(t *testing.T) {
	db := newTestDB(t)
	e := New(config.Config{})
	res, _, err := e.EvaluateResolve(context.Background(), db.SQL, ResolveRequest{
		Host: "h1", HostAccount: "u1", PublicKeyFingerprint: "SHA256:nope",
	}, time.Now())
	require.NoError(t, err)
	require.False(t, res.OK)
}

func TestEvaluateResolve_Expired(t *testing.T) {
	now := time.Now()
	db := newTestDB(t)
	seedResolvableKey(t, db, 0, 0, now.Add(-time.Hour), "u1")
	e := New(config.Config{})
	res, _, err := e.EvaluateResolve(context.Background(), db.SQL, ResolveRequest{
		Host: "h1", HostAccount: "u1", PublicKeyFingerprint: "SHA256:abc",
	}, now)
	require.NoError(t, err)
	require.False(t, res.OK)
}

func TestEvaluateResolve_Exhausted(t *testing.T) {
	now := time.Now()
	db := newTestDB(t)
	seedResolvableKey(t, db, 3, 0, now.Add(time.Hour), "u1")
	e := New(config.Config{})
	res, _, err := e.EvaluateResolve(context.Background(), db.SQL, ResolveRequest{
		Host: "h1", HostAccount: "u1", PublicKeyFingerprint: "SHA256:abc",
	}, now)
	require.NoError(t, err)
	require.False(t, res.OK)
}

func TestEvaluateResolve_AccountMismatch(t *testing.T) {
	now := time.Now()
	db := newTestDB(t)
	seedResolvableKey(t, db, 0, 0, now.Add(time.Hour), "u1")
	e := New(config.Config{})
	res, _, err := e.EvaluateResolve(context.Background(), db.SQL, ResolveRequest{
		Host: "h1", HostAccount: "someoneelse", PublicKeyFingerprint: "SHA256:abc",
	}, now)
	require.NoError(t, err)
	require.False(t, res.OK)
}

func TestEvaluateResolve_OKWithNoReservation(t *testing.T) {
	now := time.Now()
	db := newTestDB(t)
	seedResolvableKey(t, db, 0, 0, now.Add(time.Hour), "u1")
	e := New(config.Config{})
	res, key, err := e.EvaluateResolve(context.Background(), db.SQL, ResolveRequest{
		Host: "h1", HostAccount: "u1", PublicKeyFingerprint: "SHA256:abc",
	}, now)
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, "SHA256:abc", key.PublicKeyFingerprint)
}
