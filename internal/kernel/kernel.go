// Package kernel implements the credential operations of §4.4: mint,
// resolve, and reserve, plus the tenant-scoped CRUD surface the HTTP layer
// exposes. Every operation that touches more than one row runs inside a
// single store.WithTx transaction, and every store error is classified
// through tmserrors before it leaves the package.
package kernel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tms-project/tms/internal/config"
	"github.com/tms-project/tms/internal/keygen"
	"github.com/tms-project/tms/internal/policy"
	"github.com/tms-project/tms/internal/store"
	"github.com/tms-project/tms/internal/tmserrors"
	"github.com/tms-project/tms/internal/tmstime"
)

// Kernel wires together the store, the policy graph, and the key generator
// behind the operation set §4.4 names. It carries no mutable state of its
// own, per the "avoid global mutable state" design note.
type Kernel struct {
	DB     *store.DB
	Policy *policy.Evaluator
	Keys   *keygen.Pool
	Cfg    config.Config
}

func New(db *store.DB, cfg config.Config, keyPool *keygen.Pool) *Kernel {
	return &Kernel{DB: db, Policy: policy.New(cfg), Keys: keyPool, Cfg: cfg}
}

// fkHints classifies a foreign-key violation against the given table name
// fragment to the §7 error kind it should surface as.
func fkHints(extra ...map[string]tmserrors.Kind) map[string]tmserrors.Kind {
	base := map[string]tmserrors.Kind{
		"tenants":      tmserrors.NotFound,
		"clients":      tmserrors.NotFound,
		"user_mfa":     tmserrors.NotFound,
		"pubkeys":      tmserrors.NotFound,
	}
	for _, m := range extra {
		for k, v := range m {
			base[k] = v
		}
	}
	return base
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return tmserrors.NewNotFound("record")
	}
	return tmserrors.Classify(err, fkHints())
}

// MintRequest is the body of POST /v1/tms/creds/sshkeys.
type MintRequest struct {
	Tenant       string
	ClientID     string
	ClientSecret string
	ClientUserID string
	Host         string
	HostAccount  string
	NumUses      int
	TTLMinutes   int
	KeyType      string
}

// MintResult is the reply of POST /v1/tms/creds/sshkeys. PrivateKeyPEM is
// returned exactly once; the server never stores it.
type MintResult struct {
	PrivateKeyPEM        string
	PublicKey            string
	PublicKeyFingerprint string
	KeyType              string
	KeyBits              int
	MaxUses              int
	RemainingUses        int
	InitialTTLMinutes    int
	ExpiresAt            string
}

// Mint implements §4.4's mint operation: validate §4.3's predicates,
// generate a key pair, and insert the resulting pubkeys row, all inside one
// transaction. MVP mode forces unlimited uses and unlimited lifetime
// regardless of the request's num_uses/ttl_minutes, per §4.7.
func (k *Kernel) Mint(ctx context.Context, req MintRequest) (MintResult, error) {
	kt, err := keygen.Normalize(req.KeyType)
	if err != nil {
		return MintResult{}, err
	}

	numUses := req.NumUses
	ttlMinutes := req.TTLMinutes
	if k.Cfg.EnableMVP {
		numUses = 0
		ttlMinutes = 0
	}

	pair, err := k.Keys.Generate(ctx, kt)
	if err != nil {
		return MintResult{}, fmt.Errorf("kernel: mint: generate key: %w", err)
	}

	now := tmstime.Now()
	expiresAt := tmstime.ExpiresAtFromTTL(now, ttlMinutes)
	ts := tmstime.FormatTimestamp(now)

	var result MintResult
	txErr := store.WithTx(ctx, k.DB, func(tx *sql.Tx) error {
		res, perr := k.Policy.EvaluateMint(ctx, tx, policy.MintRequest{
			Tenant:       req.Tenant,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			ClientUserID: req.ClientUserID,
			Host:         req.Host,
			HostAccount:  req.HostAccount,
		}, now)
		if perr != nil {
			return classify(perr)
		}
		if !res.OK {
			return tmserrors.NewPolicy(fmt.Sprintf("%s: %s", res.Which, res.Why))
		}

		row := store.PubKey{
			PublicKeyFingerprint: pair.Fingerprint,
			Host:                 req.Host,
			Tenant:               req.Tenant,
			ClientID:             req.ClientID,
			ClientUserID:         req.ClientUserID,
			HostAccount:          req.HostAccount,
			PublicKey:            pair.PublicKeyLine,
			KeyType:              string(kt),
			KeyBits:              pair.KeyBits,
			MaxUses:              numUses,
			RemainingUses:        numUses,
			InitialTTLMinutes:    ttlMinutes,
			ExpiresAt:            tmstime.ExpiresAtSeconds(expiresAt),
			Created:              ts,
			Updated:              ts,
		}
		if ierr := store.InsertPubKey(ctx, tx, row); ierr != nil {
			return classify(ierr)
		}

		result = MintResult{
			PrivateKeyPEM:        pair.PrivateKeyPEM,
			PublicKey:            pair.PublicKeyLine,
			PublicKeyFingerprint: pair.Fingerprint,
			KeyType:              string(kt),
			KeyBits:              pair.KeyBits,
			MaxUses:              numUses,
			RemainingUses:        numUses,
			InitialTTLMinutes:    ttlMinutes,
			ExpiresAt:            tmstime.FormatExpiresAt(expiresAt),
		}
		return nil
	})
	if txErr != nil {
		if isConflict(txErr) {
			return k.mintRetryOnce(ctx, req, kt, numUses, ttlMinutes)
		}
		return MintResult{}, txErr
	}
	return result, nil
}

func isConflict(err error) bool {
	var e *tmserrors.Error
	if errors.As(err, &e) {
		return e.Kind == tmserrors.Conflict
	}
	return false
}

// mintRetryOnce retries key generation exactly once on a (fingerprint,
// host) collision, per §4.4 ("astronomically unlikely; retried once").
func (k *Kernel) mintRetryOnce(ctx context.Context, req MintRequest, kt keygen.KeyType, numUses, ttlMinutes int) (MintResult, error) {
	pair, err := k.Keys.Generate(ctx, kt)
	if err != nil {
		return MintResult{}, fmt.Errorf("kernel: mint retry: generate key: %w", err)
	}
	now := tmstime.Now()
	expiresAt := tmstime.ExpiresAtFromTTL(now, ttlMinutes)
	ts := tmstime.FormatTimestamp(now)

	var result MintResult
	txErr := store.WithTx(ctx, k.DB, func(tx *sql.Tx) error {
		row := store.PubKey{
			PublicKeyFingerprint: pair.Fingerprint,
			Host:                 req.Host,
			Tenant:               req.Tenant,
			ClientID:             req.ClientID,
			ClientUserID:         req.ClientUserID,
			HostAccount:          req.HostAccount,
			PublicKey:            pair.PublicKeyLine,
			KeyType:              string(kt),
			KeyBits:              pair.KeyBits,
			MaxUses:              numUses,
			RemainingUses:        numUses,
			InitialTTLMinutes:    ttlMinutes,
			ExpiresAt:            tmstime.ExpiresAtSeconds(expiresAt),
			Created:              ts,
			Updated:              ts,
		}
		if ierr := store.InsertPubKey(ctx, tx, row); ierr != nil {
			return classify(ierr)
		}
		result = MintResult{
			PrivateKeyPEM:        pair.PrivateKeyPEM,
			PublicKey:            pair.PublicKeyLine,
			PublicKeyFingerprint: pair.Fingerprint,
			KeyType:              string(kt),
			KeyBits:              pair.KeyBits,
			MaxUses:              numUses,
			RemainingUses:        numUses,
			InitialTTLMinutes:    ttlMinutes,
			ExpiresAt:            tmstime.FormatExpiresAt(expiresAt),
		}
		return nil
	})
	return result, txErr
}

// ResolveRequest is the body of POST /v1/tms/creds/publickey. It carries no
// tenant or client identity (§6's resolve body has none); those are
// recovered from the pubkey row the fingerprint/host pair names.
type ResolveRequest struct {
	Host                 string
	HostAccount          string
	PublicKeyFingerprint string
}

// Resolve implements §4.4's resolve operation. Every failure path -
// unknown fingerprint, expiry, exhaustion, or account mismatch - collapses
// to tmserrors.NotAuthorized, per §7's leakage policy.
func (k *Kernel) Resolve(ctx context.Context, req ResolveRequest) (string, error) {
	now := tmstime.Now()
	var pubKeyText string
	txErr := store.WithTx(ctx, k.DB, func(tx *sql.Tx) error {
		res, key, perr := k.Policy.EvaluateResolve(ctx, tx, policy.ResolveRequest{
			Host:                 req.Host,
			HostAccount:          req.HostAccount,
			PublicKeyFingerprint: req.PublicKeyFingerprint,
		}, now)
		if perr != nil {
			return classify(perr)
		}
		if !res.OK {
			return tmserrors.NewNotAuthorized()
		}

		ts := tmstime.FormatTimestamp(now)
		if key.MaxUses != 0 {
			ok, derr := store.DecrementRemainingUses(ctx, tx, key.PublicKeyFingerprint, key.Host, key.RemainingUses, ts)
			if derr != nil {
				return classify(derr)
			}
			if !ok {
				// Lost the compare-and-set race: another resolve consumed
				// the last use between EvaluateResolve's read and here.
				return tmserrors.NewNotAuthorized()
			}
		}

		nowSec := tmstime.ExpiresAtSeconds(now)
		if resv, rerr := store.FindReservationForResolve(ctx, tx, key.Tenant, key.ClientID, key.ClientUserID, key.Host, key.PublicKeyFingerprint, nowSec); rerr == nil {
			if derr := store.DeleteReservation(ctx, tx, resv.ResID, resv.Tenant, resv.ClientID, resv.ClientUserID, resv.Host, resv.PublicKeyFingerprint); derr != nil {
				return classify(derr)
			}
		} else if !errors.Is(rerr, store.ErrNotFound) {
			return classify(rerr)
		}

		pubKeyText = key.PublicKey
		return nil
	})
	if txErr != nil {
		return "", txErr
	}
	return pubKeyText, nil
}

// ReserveRequest is the body of POST /v1/tms/creds/reservations.
type ReserveRequest struct {
	Tenant               string
	ClientID             string
	ClientUserID         string
	Host                 string
	PublicKeyFingerprint string
	TTLMinutes           int
	ResID                string
}

// ReserveResult is the reply of POST /v1/tms/creds/reservations.
type ReserveResult struct {
	ResID     string
	ExpiresAt string
}

// Reserve implements §4.4's reserve operation. expires_at is capped at the
// referenced pubkey's own expires_at; the call is idempotent on the unique
// (resid, tenant, client_id, client_user_id, host, fingerprint) key.
func (k *Kernel) Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error) {
	resid := req.ResID
	if resid == "" {
		resid = uuid.NewString()
	}
	now := tmstime.Now()

	var result ReserveResult
	txErr := store.WithTx(ctx, k.DB, func(tx *sql.Tx) error {
		if existing, err := store.GetReservation(ctx, tx, resid, req.Tenant, req.ClientID, req.ClientUserID, req.Host, req.PublicKeyFingerprint); err == nil {
			result = ReserveResult{
				ResID:     existing.ResID,
				ExpiresAt: tmstime.FormatExpiresAt(tmstime.ExpiresAtFromSeconds(existing.ExpiresAt)),
			}
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return classify(err)
		}

		key, err := store.GetPubKey(ctx, tx, req.PublicKeyFingerprint, req.Host)
		if err != nil {
			return classify(err)
		}

		expiresAt := tmstime.ExpiresAtFromTTL(now, req.TTLMinutes)
		if tmstime.ExpiresAtSeconds(expiresAt) > key.ExpiresAt {
			expiresAt = tmstime.ExpiresAtFromSeconds(key.ExpiresAt)
		}
		ts := tmstime.FormatTimestamp(now)

		row := store.Reservation{
			ResID:                resid,
			Tenant:               req.Tenant,
			ClientID:             req.ClientID,
			ClientUserID:         req.ClientUserID,
			Host:                 req.Host,
			PublicKeyFingerprint: req.PublicKeyFingerprint,
			ExpiresAt:            tmstime.ExpiresAtSeconds(expiresAt),
			Created:              ts,
			Updated:              ts,
		}
		if err := store.InsertReservation(ctx, tx, row); err != nil {
			return classify(err)
		}
		result = ReserveResult{ResID: resid, ExpiresAt: tmstime.FormatExpiresAt(expiresAt)}
		return nil
	})
	if txErr != nil {
		return ReserveResult{}, txErr
	}
	return result, nil
}
