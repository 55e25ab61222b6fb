// Package keygen produces the RSA / ECDSA-P521 / Ed25519 key pairs the
// credential kernel mints, returning the private key as PKCS8 PEM, the
// public key in OpenSSH authorized_keys form, and its SHA256 fingerprint.
package keygen

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/tms-project/tms/internal/tmserrors"
)

// KeyType names a recognized algorithm. The zero value is not valid on its
// own; callers normalize an empty request string to Ed25519 before calling
// Generate (§4.2: "defaulting to Ed25519 when the caller supplies an empty
// key_type").
type KeyType string

const (
	RSA     KeyType = "RSA"
	ECDSA   KeyType = "ECDSA"
	Ed25519 KeyType = "ED25519"
)

// rsaBits and the ECDSA curve are fixed by §4.2: RSA is always 4096 bits,
// ECDSA is always NIST P-521.
const rsaBits = 4096

// Pair is the output of a successful Generate call.
type Pair struct {
	PrivateKeyPEM string
	PublicKeyLine string
	Fingerprint   string
	KeyBits       int
}

// Normalize maps a request's key_type string (case-insensitive, empty
// meaning Ed25519) onto a KeyType, or reports tmserrors.BadKeyType for
// anything else.
func Normalize(raw string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return Ed25519, nil
	case string(RSA):
		return RSA, nil
	case string(ECDSA):
		return ECDSA, nil
	case string(Ed25519):
		return Ed25519, nil
	default:
		return "", tmserrors.NewBadKeyType(raw)
	}
}

// Generate produces a new key pair of the given type. RSA generation is
// CPU-bound (tens of milliseconds); callers that run on a request-serving
// goroutine should route through a Pool (see pool.go) instead of calling
// Generate directly, per the design note that RSA generation belongs on a
// worker pool, not the network scheduler.
func Generate(kt KeyType) (Pair, error) {
	switch kt {
	case RSA:
		return generateRSA()
	case ECDSA:
		return generateECDSA()
	case Ed25519:
		return generateEd25519()
	default:
		return Pair{}, tmserrors.NewBadKeyType(string(kt))
	}
}

func generateRSA() (Pair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return Pair{}, fmt.Errorf("keygen: rsa: %w", err)
	}
	return finish(priv, &priv.PublicKey, rsaBits)
}

func generateECDSA() (Pair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	if err != nil {
		return Pair{}, fmt.Errorf("keygen: ecdsa: %w", err)
	}
	return finish(priv, &priv.PublicKey, priv.Curve.Params().BitSize)
}

func generateEd25519() (Pair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Pair{}, fmt.Errorf("keygen: ed25519: %w", err)
	}
	return finish(priv, pub, 256)
}

// finish PKCS8-encodes the private key, derives the OpenSSH public key line
// and SHA256 fingerprint via golang.org/x/crypto/ssh, and assembles a Pair.
func finish(priv, pub any, bits int) (Pair, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return Pair{}, fmt.Errorf("keygen: marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	privPEM := string(pem.EncodeToMemory(block))

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return Pair{}, fmt.Errorf("keygen: derive ssh public key: %w", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	fingerprint := ssh.FingerprintSHA256(sshPub)

	return Pair{
		PrivateKeyPEM: privPEM,
		PublicKeyLine: line,
		Fingerprint:   fingerprint,
		KeyBits:       bits,
	}, nil
}
