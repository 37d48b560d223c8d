package securechannel

import "github.com/status-im/hardwallet-lite-sdk/primitives"

// Fixed PBKDF2 parameters for pairing-secret derivation. These MUST match
// the applet exactly; they are not configurable.
const (
	pairingSalt      = "Status Hardware Wallet Lite"
	pairingIterCount = 50000
	pairingKeyLen    = 32
)

// DerivePairingSecret derives the 32-byte pairing secret from a
// human-chosen pairing password, via PBKDF2-HMAC-SHA-256 with the fixed
// applet salt and iteration count.
func DerivePairingSecret(prim primitives.Primitives, password string) []byte {
	return prim.PBKDF2SHA256([]byte(password), []byte(pairingSalt), pairingIterCount, pairingKeyLen)
}
