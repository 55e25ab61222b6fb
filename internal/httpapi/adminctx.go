package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tms-project/tms/internal/adminauth"
	"github.com/tms-project/tms/internal/kernel"
	"github.com/tms-project/tms/internal/tmserrors"
)

// requireAdmin authenticates the tenant-scoped CRUD surface against the
// X-TMS-Tenant / X-TMS-Admin-User / X-TMS-Admin-Secret headers, per §4.6:
// admin_secret is compared against the stored hash in constant time. The
// {tenant} path parameter (where present) must match the authenticated
// admin's tenant; a tenant named in the query string or the request body is
// not compared against it.
func requireAdmin(k *kernel.Kernel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := r.Header.Get("X-TMS-Tenant")
			adminUser := r.Header.Get("X-TMS-Admin-User")
			secret := r.Header.Get("X-TMS-Admin-Secret")
			if tenant == "" || adminUser == "" || secret == "" {
				writeError(w, r, tmserrors.NewAuth("missing admin credentials"))
				return
			}
			admin, err := k.GetAdmin(r.Context(), tenant, adminUser)
			if err != nil {
				writeError(w, r, tmserrors.NewAuth("admin credentials mismatched"))
				return
			}
			if !adminauth.VerifySecret(admin.AdminSecret, secret) {
				writeError(w, r, tmserrors.NewAuth("admin credentials mismatched"))
				return
			}
			if pathTenant := chi.URLParam(r, "tenant"); pathTenant != "" && pathTenant != tenant {
				writeError(w, r, tmserrors.NewNotAuthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
