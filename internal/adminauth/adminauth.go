// Package adminauth hashes and verifies administrator secrets and validates
// the enumerated privilege model of §4.6. The storage engine has no
// enumerated type, so the set of valid privileges is checked in code.
package adminauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tms-project/tms/internal/tmserrors"
)

// Privilege names a recognized administrator role. TenantAdmin is the only
// privilege this core requires; a deployment may extend the set, per §4.6
// ("plus any extensions a deployment adds").
type Privilege string

const (
	PrivilegeTenantAdmin Privilege = "TENANT_ADMIN"
)

var recognized = map[Privilege]bool{
	PrivilegeTenantAdmin: true,
}

// ValidatePrivilege reports tmserrors.BadRequest for any string outside the
// recognized set.
func ValidatePrivilege(p string) (Privilege, error) {
	priv := Privilege(p)
	if !recognized[priv] {
		return "", tmserrors.NewBadRequest(fmt.Sprintf("unrecognized privilege %q", p))
	}
	return priv, nil
}

// HashSecret bcrypt-hashes an administrator secret for storage. The secret
// itself is never persisted.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("adminauth: hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret compares a plaintext secret against a stored bcrypt hash in
// constant time (bcrypt's own comparison already is).
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// GenerateSecret produces a random administrator password suitable for
// first-run bootstrap (§4.5): printed once to the install output, never
// stored in plain text.
func GenerateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("adminauth: generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
