package httpapi

import (
	"net/http"

	"github.com/tms-project/tms/internal/kernel"
)

// mintRequestBody mirrors §6's POST /v1/tms/creds/sshkeys body exactly.
type mintRequestBody struct {
	Tenant       string `json:"tenant"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	ClientUserID string `json:"client_user_id"`
	Host         string `json:"host"`
	HostAccount  string `json:"host_account"`
	NumUses      int    `json:"num_uses"`
	TTLMinutes   int    `json:"ttl_minutes"`
	KeyType      string `json:"key_type"`
}

type mintReplyBody struct {
	PrivateKey           string `json:"private_key"`
	PublicKey            string `json:"public_key"`
	PublicKeyFingerprint string `json:"public_key_fingerprint"`
	KeyType              string `json:"key_type"`
	KeyBits              int    `json:"key_bits"`
	MaxUses              int    `json:"max_uses"`
	RemainingUses        int    `json:"remaining_uses"`
	InitialTTLMinutes    int    `json:"initial_ttl_minutes"`
	ExpiresAt            string `json:"expires_at"`
}

func mintHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body mintRequestBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := k.Mint(r.Context(), kernel.MintRequest{
			Tenant:       body.Tenant,
			ClientID:     body.ClientID,
			ClientSecret: body.ClientSecret,
			ClientUserID: body.ClientUserID,
			Host:         body.Host,
			HostAccount:  body.HostAccount,
			NumUses:      body.NumUses,
			TTLMinutes:   body.TTLMinutes,
			KeyType:      body.KeyType,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mintReplyBody{
			PrivateKey:           res.PrivateKeyPEM,
			PublicKey:            res.PublicKey,
			PublicKeyFingerprint: res.PublicKeyFingerprint,
			KeyType:              res.KeyType,
			KeyBits:              res.KeyBits,
			MaxUses:              res.MaxUses,
			RemainingUses:        res.RemainingUses,
			InitialTTLMinutes:    res.InitialTTLMinutes,
			ExpiresAt:            res.ExpiresAt,
		})
	}
}

// resolveRequestBody mirrors §6's POST /v1/tms/creds/publickey body.
// user_uid is passed to the kernel as the login account and compared with
// the pubkey row's host_account; user and key_type are accepted but not
// consulted. Tenant and client identity are recovered from the pubkey row
// itself, since resolve requests do not carry them.
type resolveRequestBody struct {
	User                 string `json:"user"`
	UserUID              string `json:"user_uid"`
	Host                 string `json:"host"`
	KeyType              string `json:"key_type"`
	PublicKeyFingerprint string `json:"public_key_fingerprint"`
}

type resolveReplyBody struct {
	PublicKey string `json:"public_key"`
}

func resolveHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body resolveRequestBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		pubKey, err := k.Resolve(r.Context(), kernel.ResolveRequest{
			Host:                 body.Host,
			HostAccount:          body.UserUID,
			PublicKeyFingerprint: body.PublicKeyFingerprint,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resolveReplyBody{PublicKey: pubKey})
	}
}

// reserveRequestBody mirrors §6's POST /v1/tms/creds/reservations body.
type reserveRequestBody struct {
	Tenant               string `json:"tenant"`
	ClientID             string `json:"client_id"`
	ClientUserID         string `json:"client_user_id"`
	Host                 string `json:"host"`
	PublicKeyFingerprint string `json:"public_key_fingerprint"`
	TTLMinutes           int    `json:"ttl_minutes"`
	ResID                string `json:"resid,omitempty"`
}

type reserveReplyBody struct {
	ResID     string `json:"resid"`
	ExpiresAt string `json:"expires_at"`
}

func reserveHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body reserveRequestBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := k.Reserve(r.Context(), kernel.ReserveRequest{
			Tenant:               body.Tenant,
			ClientID:             body.ClientID,
			ClientUserID:         body.ClientUserID,
			Host:                 body.Host,
			PublicKeyFingerprint: body.PublicKeyFingerprint,
			TTLMinutes:           body.TTLMinutes,
			ResID:                body.ResID,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reserveReplyBody{ResID: res.ResID, ExpiresAt: res.ExpiresAt})
	}
}
