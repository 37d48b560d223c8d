package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"
	goecdh "github.com/wsddn/go-ecdh"
	"golang.org/x/crypto/pbkdf2"
)

// Default is the production Primitives implementation: secp256k1 via
// btcec, a generic elliptic-curve ECDH wrapper in the same style the
// reference client lineage uses, and stdlib AES/SHA.
type Default struct {
	curve *btcec.KoblitzCurve
	ecdh  goecdh.ECDH
}

// NewDefault constructs the production Primitives implementation.
func NewDefault() *Default {
	curve := btcec.S256()
	return &Default{
		curve: curve,
		ecdh:  goecdh.NewEllipticECDH(curve),
	}
}

func (d *Default) GenerateKeyPair() ([]byte, []byte, error) {
	priv, pub, err := d.ecdh.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "primitives: generate secp256k1 keypair")
	}
	privBytes, ok := priv.([]byte)
	if !ok {
		return nil, nil, errors.New("primitives: unexpected private key representation")
	}
	return privBytes, d.ecdh.Marshal(pub), nil
}

// ECDHShared reimplements the scalar multiplication go-ecdh's
// GenerateSharedSecret performs, but left-pads the resulting X-coordinate
// to 32 bytes: go-ecdh returns big.Int.Bytes() unpadded, which silently
// drops leading zero bytes for roughly 1-in-256 shared secrets. The
// session invariant that `secret` is always exactly 32 bytes (used
// directly as an AES-256 key in the INIT flow) requires the padding.
func (d *Default) ECDHShared(priv []byte, peerPub []byte) ([]byte, error) {
	pubIface, ok := d.ecdh.Unmarshal(peerPub)
	if !ok {
		return nil, errors.New("primitives: peer public key is not a valid point on secp256k1")
	}
	pub, ok := pubIface.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("primitives: unexpected public key representation")
	}

	x, _ := d.curve.ScalarMult(pub.X, pub.Y, priv)
	secret := make([]byte, 32)
	xBytes := x.Bytes()
	if len(xBytes) > 32 {
		return nil, errors.New("primitives: shared secret exceeds 32 bytes")
	}
	copy(secret[32-len(xBytes):], xBytes)
	return secret, nil
}

func (d *Default) SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (d *Default) SHA512(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}

func (d *Default) PBKDF2SHA256(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}

func (d *Default) EncryptCBCISO7816(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "primitives: aes cipher")
	}
	padded := padToNextBlock(plaintext, 0x80)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func (d *Default) DecryptCBCISO7816(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.Errorf("primitives: ciphertext length %d is not a non-zero multiple of %d", len(ciphertext), aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "primitives: aes cipher")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpadFromBlock(out, 0x80)
}

func (d *Default) MACTag(macKey, meta, data []byte) ([]byte, error) {
	if len(meta) != aes.BlockSize {
		return nil, errors.Errorf("primitives: meta must be exactly %d bytes, got %d", aes.BlockSize, len(meta))
	}
	block, err := aes.NewCipher(macKey)
	if err != nil {
		return nil, errors.Wrap(err, "primitives: mac cipher")
	}

	metaBlock := append([]byte(nil), meta...)
	padded := padToNextBlock(data, 0x00)

	crypter := cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize))
	crypter.CryptBlocks(metaBlock, metaBlock)
	crypter.CryptBlocks(padded, padded)

	if len(padded) < 2*aes.BlockSize {
		// data was empty: the tag is the encrypted meta block itself.
		return metaBlock, nil
	}
	return padded[len(padded)-2*aes.BlockSize : len(padded)-aes.BlockSize], nil
}

func (d *Default) SecureRandom(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "primitives: secure random")
	}
	return buf, nil
}

// padToNextBlock applies the chained-CBC scheme's padding rule: always
// extend to a block boundary strictly greater than len(data), writing
// terminator at the first new byte. With terminator=0x80 this is ISO
// 7816-4 padding; with terminator=0x00 it guarantees at least one
// all-zero trailing block, which MACTag relies on to always discard the
// last encrypted block and keep the second-to-last as the tag.
func padToNextBlock(data []byte, terminator byte) []byte {
	padded := make([]byte, (len(data)/aes.BlockSize+1)*aes.BlockSize)
	copy(padded, data)
	padded[len(data)] = terminator
	return padded
}

// unpadFromBlock strips ISO 7816-4 padding: scan back from the end for the
// terminator byte, allowing only zero bytes before it.
func unpadFromBlock(data []byte, terminator byte) ([]byte, error) {
	for i := 1; i <= aes.BlockSize && i <= len(data); i++ {
		switch data[len(data)-i] {
		case 0x00:
			continue
		case terminator:
			return data[:len(data)-i], nil
		default:
			return nil, errors.Errorf("primitives: invalid ISO 7816-4 padding byte 0x%02x", data[len(data)-i])
		}
	}
	return nil, errors.New("primitives: missing ISO 7816-4 padding terminator")
}
