// Package policy implements the credential authorization predicates of
// §4.3 as a single named evaluator returning a tagged {Ok | Policy(which,
// why)} result, per the design note that lifts these checks out of scattered
// endpoint-handler conditionals.
package policy

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/store"
	"github.com/tms-project/tms/internal/tmstime"
)

// Result is the tagged outcome of a policy evaluation: either Ok, or a
// Policy failure naming which predicate failed and why.
type Result struct {
	OK    bool
	Which string
	Why   string
}

func ok() Result { return Result{OK: true} }

func fail(which, why string) Result {
	return Result{OK: false, Which: which, Why: why}
}

// MintRequest is the subset of the mint request body the policy graph
// consults.
type MintRequest struct {
	Tenant       string
	ClientID     string
	ClientSecret string
	ClientUserID string
	Host         string
	HostAccount  string
}

// Evaluator evaluates the mint and resolve predicates. It is stateless
// (holds only the process configuration), so a fresh Evaluator can be
// constructed per test, per the "avoid global mutable state" design note.
type Evaluator struct {
	Cfg config.Config
}

func New(cfg config.Config) *Evaluator {
	return &Evaluator{Cfg: cfg}
}

// EvaluateMint checks §4.3's five mint predicates inside the caller's
// transaction, auto-provisioning the MFA, delegation, and user-host rows
// when MVP mode is enabled and the missing row would otherwise fail the
// check, per §4.7.
func (e *Evaluator) EvaluateMint(ctx context.Context, q store.Querier, req MintRequest, now time.Time) (Result, error) {
	tenant, err := store.GetTenant(ctx, q, req.Tenant)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail("tenant", "tenant does not exist"), nil
		}
		return Result{}, err
	}
	if !tenant.Enabled {
		return fail("tenant", "tenant is disabled"), nil
	}
	if req.Tenant == "test" && !e.Cfg.EnableTestTenant {
		return fail("tenant", "test tenant is disabled by configuration"), nil
	}

	client, err := store.GetClient(ctx, q, req.Tenant, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail("client", "client does not exist"), nil
		}
		return Result{}, err
	}
	if !client.Enabled {
		return fail("client", "client is disabled"), nil
	}
	if subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(req.ClientSecret)) != 1 {
		return fail("client", "client secret mismatch"), nil
	}

	nowSec := tmstime.ExpiresAtSeconds(now)

	mfa, err := store.GetUserMFA(ctx, q, req.Tenant, req.ClientUserID)
	switch {
	case err == nil:
		// A stale or disabled row is never silently refreshed by MVP mode;
		// auto-provisioning only covers a missing row.
		if !mfa.Enabled || mfa.ExpiresAt <= nowSec {
			return fail("user_mfa", "MFA is disabled or stale"), nil
		}
	case errors.Is(err, store.ErrNotFound):
		if !e.Cfg.EnableMVP {
			return fail("user_mfa", "no MFA row for this user"), nil
		}
		if ierr := provisionMFA(ctx, q, req.Tenant, req.ClientUserID, now); ierr != nil {
			return Result{}, ierr
		}
	default:
		return Result{}, err
	}

	_, err = store.FindDelegation(ctx, q, req.Tenant, req.ClientID, req.ClientUserID)
	switch {
	case err == nil:
		// exact or wildcard delegation found; its expiry is checked by the
		// second FindDelegation lookup below.
	case errors.Is(err, store.ErrNotFound):
		if !e.Cfg.EnableMVP {
			return fail("delegation", "no delegation for this client/user"), nil
		}
		if ierr := provisionDelegation(ctx, q, req.Tenant, req.ClientID, req.ClientUserID, now); ierr != nil {
			return Result{}, ierr
		}
	default:
		return Result{}, err
	}
	if del, derr := store.FindDelegation(ctx, q, req.Tenant, req.ClientID, req.ClientUserID); derr == nil {
		if del.ExpiresAt <= nowSec {
			return fail("delegation", "delegation is expired"), nil
		}
	}

	_, err = store.FindUserHostBinding(ctx, q, req.Tenant, req.ClientUserID, req.Host, req.HostAccount)
	switch {
	case err == nil:
		return ok(), nil
	case errors.Is(err, store.ErrNotFound):
		if !e.Cfg.EnableMVP {
			return fail("user_host", "no user-host binding for this host/account"), nil
		}
		if req.ClientUserID != req.HostAccount {
			return fail("user_host", "MVP identity-mirror requires client_user_id == host_account"), nil
		}
		if ierr := provisionUserHost(ctx, q, req.Tenant, req.ClientUserID, req.Host, req.HostAccount, now); ierr != nil {
			return Result{}, ierr
		}
		return ok(), nil
	default:
		return Result{}, err
	}
}

func provisionMFA(ctx context.Context, q store.Querier, tenant, userID string, now time.Time) error {
	ts := tmstime.FormatTimestamp(now)
	return store.InsertUserMFA(ctx, q, store.UserMFA{
		Tenant:    tenant,
		TMSUserID: userID,
		ExpiresAt: tmstime.ExpiresAtSeconds(tmstime.Never),
		Enabled:   true,
		Created:   ts,
		Updated:   ts,
	})
}

func provisionDelegation(ctx context.Context, q store.Querier, tenant, clientID, userID string, now time.Time) error {
	ts := tmstime.FormatTimestamp(now)
	return store.InsertDelegation(ctx, q, store.Delegation{
		Tenant:       tenant,
		ClientID:     clientID,
		ClientUserID: userID,
		ExpiresAt:    tmstime.ExpiresAtSeconds(tmstime.Never),
		Created:      ts,
		Updated:      ts,
	})
}

func provisionUserHost(ctx context.Context, q store.Querier, tenant, userID, host, hostAccount string, now time.Time) error {
	ts := tmstime.FormatTimestamp(now)
	return store.InsertUserHost(ctx, q, store.UserHost{
		Tenant:      tenant,
		TMSUserID:   userID,
		Host:        host,
		HostAccount: hostAccount,
		Created:     ts,
		Updated:     ts,
	})
}

// ResolveRequest is the subset of the resolve request body the policy graph
// consults. Tenant, client_id, and client_user_id are not requested inputs
// (§6's resolve body carries none); EvaluateResolve derives them from the
// looked-up pubkey row instead.
type ResolveRequest struct {
	Host                 string
	HostAccount          string
	PublicKeyFingerprint string
}

// EvaluateResolve checks §4.3's five resolve predicates. It does not itself
// decrement remaining_uses or delete the reservation — those mutations
// happen in the kernel once the caller has decided to commit to this
// resolution, so that a compare-and-set race is visible to the kernel
// rather than hidden inside the evaluator.
func (e *Evaluator) EvaluateResolve(ctx context.Context, q store.Querier, req ResolveRequest, now time.Time) (Result, store.PubKey, error) {
	key, err := store.GetPubKey(ctx, q, req.PublicKeyFingerprint, req.Host)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail("pubkey", "unknown fingerprint/host"), store.PubKey{}, nil
		}
		return Result{}, store.PubKey{}, err
	}

	if e.Cfg.EnableTestTenant == false && key.Tenant == "test" {
		return fail("tenant", "test tenant is disabled by configuration"), store.PubKey{}, nil
	}

	nowSec := tmstime.ExpiresAtSeconds(now)
	if key.ExpiresAt <= nowSec {
		return fail("pubkey", "key is expired"), key, nil
	}
	if key.MaxUses != 0 && key.RemainingUses <= 0 {
		return fail("pubkey", "key is exhausted"), key, nil
	}
	if key.HostAccount != req.HostAccount {
		return fail("pubkey", "host account does not match"), key, nil
	}

	_, rerr := store.FindReservationForResolve(ctx, q, key.Tenant, key.ClientID, key.ClientUserID, key.Host, key.PublicKeyFingerprint, nowSec)
	if rerr != nil && !errors.Is(rerr, store.ErrNotFound) {
		return Result{}, store.PubKey{}, rerr
	}
	// A present-but-expired reservation does not block resolution; it
	// simply means there is nothing left to consume. FindReservationForResolve
	// already filters to unexpired rows, so ErrNotFound here covers both
	// "no reservation at all" and "only an expired one."
	return ok(), key, nil
}
