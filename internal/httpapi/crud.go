package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tms-project/tms/internal/adminauth"
	"github.com/tms-project/tms/internal/kernel"
	"github.com/tms-project/tms/internal/store"
	"github.com/tms-project/tms/internal/tmserrors"
)

// mountCRUD registers the tenant-scoped list/get/delete surface §4.4 names
// for each of the nine entities. Every route is behind requireAdmin except
// GET and POST on /tenants/ (list and create tenants), which take no admin
// credentials.
func mountCRUD(r chi.Router, k *kernel.Kernel) {
	r.Route("/tenants", func(tr chi.Router) {
		tr.Get("/", listHandler(func(r *http.Request) (any, error) { return k.ListTenants(r.Context()) }))
		tr.Post("/", createTenantHandler(k))
		tr.Route("/{tenant}", func(sr chi.Router) {
			sr.Use(requireAdmin(k))
			sr.Get("/", getHandler(func(r *http.Request) (any, error) {
				return k.GetTenant(r.Context(), chi.URLParam(r, "tenant"))
			}))
			sr.Delete("/", deleteHandler(func(r *http.Request) error {
				return k.DeleteTenant(r.Context(), chi.URLParam(r, "tenant"))
			}))
		})
	})

	r.Route("/clients", func(cr chi.Router) {
		cr.Use(requireAdmin(k))
		cr.Get("/", listHandler(func(r *http.Request) (any, error) {
			return k.ListClients(r.Context(), r.URL.Query().Get("tenant"))
		}))
		cr.Post("/", createClientHandler(k))
		cr.Delete("/{client_id}", deleteHandler(func(r *http.Request) error {
			return k.DeleteClient(r.Context(), r.URL.Query().Get("tenant"), chi.URLParam(r, "client_id"))
		}))
	})

	r.Route("/user_mfa", func(mr chi.Router) {
		mr.Use(requireAdmin(k))
		mr.Get("/", listHandler(func(r *http.Request) (any, error) {
			return k.ListUserMFA(r.Context(), r.URL.Query().Get("tenant"))
		}))
		mr.Post("/", createUserMFAHandler(k))
		mr.Delete("/{tms_user_id}", deleteHandler(func(r *http.Request) error {
			return k.DeleteUserMFA(r.Context(), r.URL.Query().Get("tenant"), chi.URLParam(r, "tms_user_id"))
		}))
	})

	r.Route("/user_hosts", func(hr chi.Router) {
		hr.Use(requireAdmin(k))
		hr.Get("/", listHandler(func(r *http.Request) (any, error) {
			return k.ListUserHosts(r.Context(), r.URL.Query().Get("tenant"))
		}))
		hr.Post("/", createUserHostHandler(k))
		hr.Delete("/", deleteHandler(func(r *http.Request) error {
			q := r.URL.Query()
			return k.DeleteUserHost(r.Context(), q.Get("tenant"), q.Get("tms_user_id"), q.Get("host"), q.Get("host_account"))
		}))
	})

	r.Route("/delegations", func(dr chi.Router) {
		dr.Use(requireAdmin(k))
		dr.Get("/", listHandler(func(r *http.Request) (any, error) {
			return k.ListDelegations(r.Context(), r.URL.Query().Get("tenant"))
		}))
		dr.Post("/", createDelegationHandler(k))
		dr.Delete("/", deleteHandler(func(r *http.Request) error {
			q := r.URL.Query()
			return k.DeleteDelegation(r.Context(), q.Get("tenant"), q.Get("client_id"), q.Get("client_user_id"))
		}))
	})

	r.Route("/pubkeys", func(pr chi.Router) {
		pr.Use(requireAdmin(k))
		pr.Get("/", listHandler(func(r *http.Request) (any, error) {
			return k.ListPubKeys(r.Context(), r.URL.Query().Get("tenant"))
		}))
		pr.Delete("/", deleteHandler(func(r *http.Request) error {
			q := r.URL.Query()
			return k.DeletePubKey(r.Context(), q.Get("public_key_fingerprint"), q.Get("host"))
		}))
	})

	r.Route("/reservations", func(rr chi.Router) {
		rr.Use(requireAdmin(k))
		rr.Get("/", listHandler(func(r *http.Request) (any, error) {
			return k.ListReservations(r.Context(), r.URL.Query().Get("tenant"))
		}))
		rr.Delete("/", deleteHandler(func(r *http.Request) error {
			q := r.URL.Query()
			return k.DeleteReservation(r.Context(), q.Get("resid"), q.Get("tenant"), q.Get("client_id"), q.Get("client_user_id"), q.Get("host"), q.Get("public_key_fingerprint"))
		}))
	})

	r.Route("/hosts", func(hr chi.Router) {
		hr.Use(requireAdmin(k))
		hr.Get("/", listHandler(func(r *http.Request) (any, error) {
			return k.ListHosts(r.Context(), r.URL.Query().Get("tenant"))
		}))
		hr.Post("/", createHostHandler(k))
		hr.Delete("/", deleteHandler(func(r *http.Request) error {
			q := r.URL.Query()
			return k.DeleteHost(r.Context(), q.Get("tenant"), q.Get("host"), q.Get("addr"))
		}))
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(requireAdmin(k))
		ar.Get("/", listHandler(func(r *http.Request) (any, error) {
			return k.ListAdmins(r.Context(), r.URL.Query().Get("tenant"))
		}))
		ar.Post("/", createAdminHandler(k))
		ar.Delete("/{admin_user}", deleteHandler(func(r *http.Request) error {
			return k.DeleteAdmin(r.Context(), r.URL.Query().Get("tenant"), chi.URLParam(r, "admin_user"))
		}))
	})
}

func listHandler(fn func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := fn(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// getHandler shares listHandler's shape; the two are distinguished only for
// readability at call sites (singular vs collection lookups).
var getHandler = listHandler

func deleteHandler(fn func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createTenantHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tenant  string `json:"tenant"`
			Enabled bool   `json:"enabled"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		t, err := k.CreateTenant(r.Context(), body.Tenant, body.Enabled)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func createClientHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body store.Client
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		c, err := k.CreateClient(r.Context(), body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func createUserMFAHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body store.UserMFA
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		m, err := k.CreateUserMFA(r.Context(), body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func createUserHostHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body store.UserHost
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		h, err := k.CreateUserHost(r.Context(), body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, h)
	}
}

func createDelegationHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body store.Delegation
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		d, err := k.CreateDelegation(r.Context(), body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func createHostHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body store.Host
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		h, err := k.CreateHost(r.Context(), body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, h)
	}
}

func createAdminHandler(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tenant      string `json:"tenant"`
			AdminUser   string `json:"admin_user"`
			AdminSecret string `json:"admin_secret"`
			Privilege   string `json:"privilege"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		priv, err := adminauth.ValidatePrivilege(body.Privilege)
		if err != nil {
			writeError(w, r, err)
			return
		}
		hash, err := adminauth.HashSecret(body.AdminSecret)
		if err != nil {
			writeError(w, r, tmserrors.NewInternal(err))
			return
		}
		a, err := k.CreateAdmin(r.Context(), store.Admin{
			Tenant:      body.Tenant,
			AdminUser:   body.AdminUser,
			AdminSecret: hash,
			Privilege:   string(priv),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		a.AdminSecret = "****"
		writeJSON(w, http.StatusCreated, a)
	}
}
