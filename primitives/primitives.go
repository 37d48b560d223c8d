// Package primitives is the narrow cryptographic capability surface the
// secure channel consumes. It exists so the protocol logic in
// securechannel and commandset never touches a raw cipher or curve
// directly: everything security-critical funnels through one interface
// that a test can swap out, and one Default implementation that wires the
// real algorithms.
package primitives

// Primitives is consumed by securechannel.Session. Field-for-field it
// mirrors the "Primitives" capability list in the protocol design: EC
// key-agreement bootstrap, the two hash functions used for key and
// cryptogram derivation, PBKDF2 for pairing-password derivation, and the
// AES-CBC/ISO 7816-4/chained-MAC construction used for every wrapped APDU.
type Primitives interface {
	// GenerateKeyPair produces a fresh secp256k1 keypair. priv is the raw
	// scalar; pub is the 65-byte uncompressed point (0x04 || X || Y).
	GenerateKeyPair() (priv []byte, pub []byte, err error)

	// ECDHShared performs secp256k1 ECDH between priv and peerPub (a
	// 65-byte uncompressed point) and returns the 32-byte X-coordinate of
	// the resulting point, left-padded with zeroes if necessary.
	ECDHShared(priv []byte, peerPub []byte) ([]byte, error)

	SHA256(data []byte) []byte
	SHA512(data []byte) []byte

	// PBKDF2SHA256 derives keyLen bytes from password and salt using
	// HMAC-SHA-256 as the PRF.
	PBKDF2SHA256(password, salt []byte, iterations, keyLen int) []byte

	// EncryptCBCISO7816 pads plaintext with ISO 7816-4 padding and
	// encrypts it with AES-CBC under key (interpreted as AES-256 when 32
	// bytes long) and iv. The returned ciphertext includes the padding and
	// is always a non-zero multiple of the block size.
	EncryptCBCISO7816(key, iv, plaintext []byte) ([]byte, error)

	// DecryptCBCISO7816 is the inverse of EncryptCBCISO7816.
	DecryptCBCISO7816(key, iv, ciphertext []byte) ([]byte, error)

	// MACTag computes the 16-byte chained-CBC tag over meta (exactly one
	// 16-byte block) followed by data, under macKey, as described in
	// securechannel's wrap/unwrap. The same tag serves as both the MAC and
	// the session's next IV.
	MACTag(macKey, meta, data []byte) ([]byte, error)

	// SecureRandom returns n cryptographically random bytes.
	SecureRandom(n int) ([]byte, error)
}
