// Package bootstrap performs the first-run seeded install of §4.5: default
// tenants, a per-tenant administrator with a freshly generated password,
// and the test-tenant demonstration data.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/tms-project/tms/internal/adminauth"
	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/store"
	"github.com/tms-project/tms/internal/tmstime"
)

const (
	defaultTenant = "default"
	testTenant    = "test"
)

// NeedsInstall reports whether the store has no tenant rows yet, the
// trigger condition for a seeded install per §4.5.
func NeedsInstall(ctx context.Context, db *store.DB) (bool, error) {
	tenants, err := store.ListTenants(ctx, db.SQL)
	if err != nil {
		return false, err
	}
	return len(tenants) == 0, nil
}

// Run performs the seeded install described in §4.5, writing the generated
// administrator passwords to out exactly once. It is idempotent only in the
// sense that the caller is expected to have already checked NeedsInstall;
// calling Run against an already-seeded store will fail on the tenants'
// uniqueness constraint.
func Run(ctx context.Context, db *store.DB, cfg config.Config, out io.Writer) error {
	return store.WithTx(ctx, db, func(tx *sql.Tx) error {
		q := store.Querier(tx)
		if err := seedTenant(ctx, q, defaultTenant, true, out); err != nil {
			return err
		}
		if err := seedTenant(ctx, q, testTenant, cfg.EnableTestTenant, out); err != nil {
			return err
		}
		return seedTestDemoData(ctx, q)
	})
}

func seedTenant(ctx context.Context, q store.Querier, tenant string, enabled bool, out io.Writer) error {
	ts := tmstime.FormatTimestamp(tmstime.Now())
	if err := store.InsertTenant(ctx, q, store.Tenant{Tenant: tenant, Enabled: enabled, Created: ts, Updated: ts}); err != nil {
		return fmt.Errorf("bootstrap: create tenant %q: %w", tenant, err)
	}

	adminUser := tenant + "_admin"
	secret, err := adminauth.GenerateSecret()
	if err != nil {
		return err
	}
	hash, err := adminauth.HashSecret(secret)
	if err != nil {
		return err
	}
	if err := store.InsertAdmin(ctx, q, store.Admin{
		Tenant:      tenant,
		AdminUser:   adminUser,
		AdminSecret: hash,
		Privilege:   string(adminauth.PrivilegeTenantAdmin),
		Created:     ts,
		Updated:     ts,
	}); err != nil {
		return fmt.Errorf("bootstrap: create admin %q: %w", adminUser, err)
	}

	fmt.Fprintf(out, "created administrator %s/%s with password: %s\n", tenant, adminUser, secret)
	fmt.Fprintln(out, "this password is shown once and is not recoverable; store it now.")
	return nil
}

// seedTestDemoData seeds the fixed demonstration set §4.5 names: a client,
// a user with never-expiring MFA, a host, a user-host binding, and a
// delegation, all carrying the "never" expiry.
func seedTestDemoData(ctx context.Context, q store.Querier) error {
	ts := tmstime.FormatTimestamp(tmstime.Now())
	never := tmstime.ExpiresAtSeconds(tmstime.Never)

	if err := store.InsertClient(ctx, q, store.Client{
		Tenant: testTenant, ClientID: "testclient1", ClientSecret: "secret1",
		AppName: "testclient1", AppVersion: "1.0", Enabled: true,
		Created: ts, Updated: ts,
	}); err != nil {
		return fmt.Errorf("bootstrap: seed test client: %w", err)
	}

	if err := store.InsertUserMFA(ctx, q, store.UserMFA{
		Tenant: testTenant, TMSUserID: "testuser1", ExpiresAt: never, Enabled: true,
		Created: ts, Updated: ts,
	}); err != nil {
		return fmt.Errorf("bootstrap: seed test user-mfa: %w", err)
	}

	if err := store.InsertHost(ctx, q, store.Host{
		Tenant: testTenant, Host: "testhost1", Addr: "127.0.0.1",
		Created: ts, Updated: ts,
	}); err != nil {
		return fmt.Errorf("bootstrap: seed test host: %w", err)
	}

	if err := store.InsertUserHost(ctx, q, store.UserHost{
		Tenant: testTenant, TMSUserID: "testuser1", Host: "testhost1", HostAccount: "testhostaccount1",
		Created: ts, Updated: ts,
	}); err != nil {
		return fmt.Errorf("bootstrap: seed test user-host binding: %w", err)
	}

	if err := store.InsertDelegation(ctx, q, store.Delegation{
		Tenant: testTenant, ClientID: "testclient1", ClientUserID: "testuser1", ExpiresAt: never,
		Created: ts, Updated: ts,
	}); err != nil {
		return fmt.Errorf("bootstrap: seed test delegation: %w", err)
	}
	return nil
}
