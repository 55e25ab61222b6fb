package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/tms-project/tms/internal/adminauth"
	"github.com/tms-project/tms/internal/applog"
	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/keygen"
	"github.com/tms-project/tms/internal/kernel"
	"github.com/tms-project/tms/internal/store"
	"github.com/tms-project/tms/internal/tmstime"
)

func newTestServer(t *testing.T, cfg config.Config) (http.Handler, *kernel.Kernel) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tms.db")
	db, err := store.Connect(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))

	k := kernel.New(db, cfg, keygen.NewPool(2))
	logger := applog.New("httpapi-test", "test", &bytes.Buffer{})
	return New(k, cfg, logger), k
}

func seedMintable(t *testing.T, k *kernel.Kernel, tenant string) {
	t.Helper()
	ctx := context.Background()
	ts := "2026-01-01T00:00:00Z"
	never := tmstime.ExpiresAtSeconds(tmstime.Never)
	require.NoError(t, store.InsertTenant(ctx, k.DB.SQL, store.Tenant{Tenant: tenant, Enabled: true, Created: ts, Updated: ts}))
	require.NoError(t, store.InsertClient(ctx, k.DB.SQL, store.Client{Tenant: tenant, ClientID: "c1", ClientSecret: "s1", AppName: "a", AppVersion: "1", Enabled: true, Created: ts, Updated: ts}))
	require.NoError(t, store.InsertUserMFA(ctx, k.DB.SQL, store.UserMFA{Tenant: tenant, TMSUserID: "u1", ExpiresAt: never, Enabled: true, Created: ts, Updated: ts}))
	require.NoError(t, store.InsertDelegation(ctx, k.DB.SQL, store.Delegation{Tenant: tenant, ClientID: "c1", ClientUserID: "u1", ExpiresAt: never, Created: ts, Updated: ts}))
	require.NoError(t, store.InsertUserHost(ctx, k.DB.SQL, store.UserHost{Tenant: tenant, TMSUserID: "u1", Host: "h1", HostAccount: "acct1", Created: ts, Updated: ts}))
}

func seedAdmin(t *testing.T, k *kernel.Kernel, tenant, adminUser, secret string) {
	t.Helper()
	ctx := context.Background()
	ts := "2026-01-01T00:00:00Z"
	hash, err := adminauth.HashSecret(secret)
	require.NoError(t, err)
	require.NoError(t, store.InsertAdmin(ctx, k.DB.SQL, store.Admin{
		Tenant: tenant, AdminUser: adminUser, AdminSecret: hash, Privilege: "TENANT_ADMIN", Created: ts, Updated: ts,
	}))
}

func TestMintEndpoint_Succeeds(t *testing.T) {
	handler, k := newTestServer(t, config.Config{})
	seedMintable(t, k, "acme")

	body, _ := json.Marshal(map[string]any{
		"tenant": "acme", "client_id": "c1", "client_secret": "s1",
		"client_user_id": "u1", "host": "h1", "host_account": "acct1",
		"num_uses": 3, "ttl_minutes": 60, "key_type": "ed25519",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/tms/creds/sshkeys", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var reply mintReplyBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.NotEmpty(t, reply.PrivateKey)
	require.Equal(t, 3, reply.MaxUses)
}

func TestMintEndpoint_PolicyFailureReturns403(t *testing.T) {
	handler, _ := newTestServer(t, config.Config{})

	body, _ := json.Marshal(map[string]any{
		"tenant": "ghost", "client_id": "c1", "client_secret": "s1",
		"client_user_id": "u1", "host": "h1", "host_account": "acct1",
		"key_type": "ed25519",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/tms/creds/sshkeys", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResolveEndpoint_UnknownFingerprintReturns401(t *testing.T) {
	handler, _ := newTestServer(t, config.Config{})

	body, _ := json.Marshal(map[string]any{
		"user": "u1", "user_uid": "acct1", "host": "h1",
		"key_type": "ed25519", "public_key_fingerprint": "SHA256:nope",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/tms/creds/publickey", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolveEndpoint_Succeeds(t *testing.T) {
	handler, k := newTestServer(t, config.Config{})
	seedMintable(t, k, "acme")

	mintBody, _ := json.Marshal(map[string]any{
		"tenant": "acme", "client_id": "c1", "client_secret": "s1",
		"client_user_id": "u1", "host": "h1", "host_account": "acct1",
		"num_uses": 1, "ttl_minutes": 60, "key_type": "ed25519",
	})
	mintReq := httptest.NewRequest(http.MethodPost, "/v1/tms/creds/sshkeys", bytes.NewReader(mintBody))
	mintRec := httptest.NewRecorder()
	handler.ServeHTTP(mintRec, mintReq)
	require.Equal(t, http.StatusOK, mintRec.Code)
	var minted mintReplyBody
	require.NoError(t, json.Unmarshal(mintRec.Body.Bytes(), &minted))

	resolveBody, _ := json.Marshal(map[string]any{
		"user": "u1", "user_uid": "acct1", "host": "h1",
		"key_type": "ed25519", "public_key_fingerprint": minted.PublicKeyFingerprint,
	})
	resolveReq := httptest.NewRequest(http.MethodPost, "/v1/tms/creds/publickey", bytes.NewReader(resolveBody))
	resolveRec := httptest.NewRecorder()
	handler.ServeHTTP(resolveRec, resolveReq)

	require.Equal(t, http.StatusOK, resolveRec.Code)
	var reply resolveReplyBody
	require.NoError(t, json.Unmarshal(resolveRec.Body.Bytes(), &reply))
	require.Equal(t, minted.PublicKey, reply.PublicKey)
}

func TestTenantsEndpoint_ListIsPublic(t *testing.T) {
	handler, k := newTestServer(t, config.Config{})
	seedMintable(t, k, "acme")

	req := httptest.NewRequest(http.MethodGet, "/v1/tms/tenants/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "acme")
}

func TestTenantGetEndpoint_RequiresAdmin(t *testing.T) {
	handler, k := newTestServer(t, config.Config{})
	seedMintable(t, k, "acme")
	seedAdmin(t, k, "acme", "acme_admin", "s3cr3t")

	req := httptest.NewRequest(http.MethodGet, "/v1/tms/tenants/acme/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/tms/tenants/acme/", nil)
	req.Header.Set("X-TMS-Tenant", "acme")
	req.Header.Set("X-TMS-Admin-User", "acme_admin")
	req.Header.Set("X-TMS-Admin-Secret", "s3cr3t")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantGetEndpoint_RejectsMismatchedTenantScope(t *testing.T) {
	handler, k := newTestServer(t, config.Config{})
	seedMintable(t, k, "acme")
	seedMintable(t, k, "widgets")
	seedAdmin(t, k, "acme", "acme_admin", "s3cr3t")

	req := httptest.NewRequest(http.MethodGet, "/v1/tms/tenants/widgets/", nil)
	req.Header.Set("X-TMS-Tenant", "acme")
	req.Header.Set("X-TMS-Admin-User", "acme_admin")
	req.Header.Set("X-TMS-Admin-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestServer(t, config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDocsPage_ListsRoutes(t *testing.T) {
	handler, _ := newTestServer(t, config.Config{Title: "Trust Manager System"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/v1/tms/creds/sshkeys")
}
