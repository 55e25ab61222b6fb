package kernel

import (
	"context"

	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/store"
	"github.com/tms-project/tms/internal/tmserrors"
	"github.com/tms-project/tms/internal/tmstime"
)

// The operations in this file are the tenant-scoped list/get/delete surface
// §4.4 names for each of the nine entities. Each is a single store call
// against the shared connection; SQLite commits the audit trigger inside
// the same implicit statement transaction, so no explicit store.WithTx is
// needed beyond what a single INSERT/UPDATE/DELETE already provides.
// Admin-privilege enforcement for these endpoints lives in internal/httpapi,
// which calls internal/adminauth before reaching the kernel.

func now() (string, int64) {
	t := tmstime.Now()
	return tmstime.FormatTimestamp(t), tmstime.ExpiresAtSeconds(t)
}

// Tenants

func (k *Kernel) CreateTenant(ctx context.Context, tenant string, enabled bool) (store.Tenant, error) {
	ts, _ := now()
	row := store.Tenant{Tenant: tenant, Enabled: enabled, Created: ts, Updated: ts}
	if err := store.InsertTenant(ctx, k.DB.SQL, row); err != nil {
		return store.Tenant{}, classify(err)
	}
	return row, nil
}

func (k *Kernel) GetTenant(ctx context.Context, tenant string) (store.Tenant, error) {
	t, err := store.GetTenant(ctx, k.DB.SQL, tenant)
	return t, classify(err)
}

func (k *Kernel) ListTenants(ctx context.Context) ([]store.Tenant, error) {
	ts, err := store.ListTenants(ctx, k.DB.SQL)
	return ts, classify(err)
}

func (k *Kernel) RenameTenant(ctx context.Context, oldName, newName string) error {
	ts, _ := now()
	return classify(store.RenameTenant(ctx, k.DB.SQL, oldName, newName, ts))
}

func (k *Kernel) SetTenantEnabled(ctx context.Context, tenant string, enabled bool) error {
	ts, _ := now()
	return classify(store.SetTenantEnabled(ctx, k.DB.SQL, tenant, enabled, ts))
}

func (k *Kernel) DeleteTenant(ctx context.Context, tenant string) error {
	return classify(store.DeleteTenant(ctx, k.DB.SQL, tenant))
}

// Clients

func (k *Kernel) CreateClient(ctx context.Context, c store.Client) (store.Client, error) {
	if k.Cfg.EffectiveNewClients() == config.NewClientsDisallow {
		return store.Client{}, tmserrors.NewPolicy("client creation is disallowed by configuration")
	}
	ts, _ := now()
	c.Created, c.Updated = ts, ts
	if err := store.InsertClient(ctx, k.DB.SQL, c); err != nil {
		return store.Client{}, classify(err)
	}
	return c, nil
}

func (k *Kernel) GetClient(ctx context.Context, tenant, clientID string) (store.Client, error) {
	c, err := store.GetClient(ctx, k.DB.SQL, tenant, clientID)
	return c, classify(err)
}

func (k *Kernel) ListClients(ctx context.Context, tenant string) ([]store.Client, error) {
	cs, err := store.ListClients(ctx, k.DB.SQL, tenant)
	return cs, classify(err)
}

func (k *Kernel) DeleteClient(ctx context.Context, tenant, clientID string) error {
	return classify(store.DeleteClient(ctx, k.DB.SQL, tenant, clientID))
}

// User-MFA

func (k *Kernel) CreateUserMFA(ctx context.Context, m store.UserMFA) (store.UserMFA, error) {
	ts, _ := now()
	m.Created, m.Updated = ts, ts
	if err := store.InsertUserMFA(ctx, k.DB.SQL, m); err != nil {
		return store.UserMFA{}, classify(err)
	}
	return m, nil
}

func (k *Kernel) GetUserMFA(ctx context.Context, tenant, tmsUserID string) (store.UserMFA, error) {
	m, err := store.GetUserMFA(ctx, k.DB.SQL, tenant, tmsUserID)
	return m, classify(err)
}

func (k *Kernel) ListUserMFA(ctx context.Context, tenant string) ([]store.UserMFA, error) {
	ms, err := store.ListUserMFA(ctx, k.DB.SQL, tenant)
	return ms, classify(err)
}

// DeleteUserMFA cascades through user_hosts, delegations, pubkeys, and
// reservations for this (tenant, tms_user_id), per §8's testable property.
func (k *Kernel) DeleteUserMFA(ctx context.Context, tenant, tmsUserID string) error {
	return classify(store.DeleteUserMFA(ctx, k.DB.SQL, tenant, tmsUserID))
}

// User-hosts

func (k *Kernel) CreateUserHost(ctx context.Context, h store.UserHost) (store.UserHost, error) {
	ts, _ := now()
	h.Created, h.Updated = ts, ts
	if err := store.InsertUserHost(ctx, k.DB.SQL, h); err != nil {
		return store.UserHost{}, classify(err)
	}
	return h, nil
}

func (k *Kernel) ListUserHosts(ctx context.Context, tenant string) ([]store.UserHost, error) {
	hs, err := store.ListUserHosts(ctx, k.DB.SQL, tenant)
	return hs, classify(err)
}

func (k *Kernel) DeleteUserHost(ctx context.Context, tenant, tmsUserID, host, hostAccount string) error {
	return classify(store.DeleteUserHost(ctx, k.DB.SQL, tenant, tmsUserID, host, hostAccount))
}

// Delegations

func (k *Kernel) CreateDelegation(ctx context.Context, d store.Delegation) (store.Delegation, error) {
	ts, _ := now()
	d.Created, d.Updated = ts, ts
	if err := store.InsertDelegation(ctx, k.DB.SQL, d); err != nil {
		return store.Delegation{}, classify(err)
	}
	return d, nil
}

func (k *Kernel) ListDelegations(ctx context.Context, tenant string) ([]store.Delegation, error) {
	ds, err := store.ListDelegations(ctx, k.DB.SQL, tenant)
	return ds, classify(err)
}

func (k *Kernel) DeleteDelegation(ctx context.Context, tenant, clientID, clientUserID string) error {
	return classify(store.DeleteDelegation(ctx, k.DB.SQL, tenant, clientID, clientUserID))
}

// Pubkeys

func (k *Kernel) GetPubKey(ctx context.Context, fingerprint, host string) (store.PubKey, error) {
	p, err := store.GetPubKey(ctx, k.DB.SQL, fingerprint, host)
	return p, classify(err)
}

func (k *Kernel) ListPubKeys(ctx context.Context, tenant string) ([]store.PubKey, error) {
	ps, err := store.ListPubKeys(ctx, k.DB.SQL, tenant)
	return ps, classify(err)
}

func (k *Kernel) DeletePubKey(ctx context.Context, fingerprint, host string) error {
	return classify(store.DeletePubKey(ctx, k.DB.SQL, fingerprint, host))
}

// Reservations

func (k *Kernel) ListReservations(ctx context.Context, tenant string) ([]store.Reservation, error) {
	rs, err := store.ListReservations(ctx, k.DB.SQL, tenant)
	return rs, classify(err)
}

func (k *Kernel) DeleteReservation(ctx context.Context, resid, tenant, clientID, clientUserID, host, fingerprint string) error {
	return classify(store.DeleteReservation(ctx, k.DB.SQL, resid, tenant, clientID, clientUserID, host, fingerprint))
}

// Hosts catalog

func (k *Kernel) CreateHost(ctx context.Context, h store.Host) (store.Host, error) {
	ts, _ := now()
	h.Created, h.Updated = ts, ts
	if err := store.InsertHost(ctx, k.DB.SQL, h); err != nil {
		return store.Host{}, classify(err)
	}
	return h, nil
}

func (k *Kernel) ListHosts(ctx context.Context, tenant string) ([]store.Host, error) {
	hs, err := store.ListHosts(ctx, k.DB.SQL, tenant)
	return hs, classify(err)
}

func (k *Kernel) DeleteHost(ctx context.Context, tenant, host, addr string) error {
	return classify(store.DeleteHost(ctx, k.DB.SQL, tenant, host, addr))
}

// Admins. Secret hashing happens in internal/adminauth before CreateAdmin is
// called; the kernel stores whatever hash it is given.

func (k *Kernel) CreateAdmin(ctx context.Context, a store.Admin) (store.Admin, error) {
	ts, _ := now()
	a.Created, a.Updated = ts, ts
	if err := store.InsertAdmin(ctx, k.DB.SQL, a); err != nil {
		return store.Admin{}, classify(err)
	}
	return a, nil
}

func (k *Kernel) GetAdmin(ctx context.Context, tenant, adminUser string) (store.Admin, error) {
	a, err := store.GetAdmin(ctx, k.DB.SQL, tenant, adminUser)
	return a, classify(err)
}

func (k *Kernel) ListAdmins(ctx context.Context, tenant string) ([]store.Admin, error) {
	as, err := store.ListAdmins(ctx, k.DB.SQL, tenant)
	return as, classify(err)
}

func (k *Kernel) DeleteAdmin(ctx context.Context, tenant, adminUser string) error {
	return classify(store.DeleteAdmin(ctx, k.DB.SQL, tenant, adminUser))
}
