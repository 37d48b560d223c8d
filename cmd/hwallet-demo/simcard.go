package main

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/status-im/hardwallet-lite-sdk/apdu"
	"github.com/status-im/hardwallet-lite-sdk/primitives"
)

// simulatedCard plays the card side of the protocol in-process, so the
// demo can exercise the full pairing/open/protected-command sequence
// without a physical reader. It is deliberately minimal: one pairing slot,
// one fixed pairing secret, no PIN/key state.
type simulatedCard struct {
	prim   primitives.Primitives
	logger *slog.Logger

	hostPub []byte

	cardPriv []byte
	cardPub  []byte
	secret   []byte

	pairingSecret []byte
	pairingKey    []byte
	pairingIndex  uint8
	paired        bool
	cardChallenge []byte

	sessionEncKey []byte
	sessionMacKey []byte
	iv            []byte
	open          bool
}

func newSimulatedCard(prim primitives.Primitives, logger *slog.Logger) (*simulatedCard, []byte, error) {
	cardPriv, cardPub, err := prim.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	c := &simulatedCard{
		prim:          prim,
		logger:        logger,
		cardPriv:      cardPriv,
		cardPub:       cardPub,
		pairingSecret: mustPairingSecret(prim),
	}
	return c, cardPub, nil
}

func mustPairingSecret(prim primitives.Primitives) []byte {
	return prim.PBKDF2SHA256([]byte("WalletAppletTest"), []byte("Status Hardware Wallet Lite"), 50000, 32)
}

// Transmit implements transport.Transport from the card's point of view.
func (c *simulatedCard) Transmit(_ context.Context, cmd *apdu.Command) (*apdu.Response, error) {
	switch cmd.Ins {
	case 0x12: // PAIR
		return c.pair(cmd)
	case 0x10: // OPEN SECURE CHANNEL
		return c.openSecureChannel(cmd)
	default:
		return c.protectedCommand(cmd)
	}
}

func (c *simulatedCard) pair(cmd *apdu.Command) (*apdu.Response, error) {
	if cmd.P1 == 0x00 {
		challenge := cmd.Data
		cardCryptogram := c.prim.SHA256(concatBytes(c.pairingSecret, challenge))
		cardChallenge, err := c.prim.SecureRandom(32)
		if err != nil {
			return nil, err
		}
		c.cardChallenge = cardChallenge
		return &apdu.Response{Data: concatBytes(cardCryptogram, cardChallenge), Sw1: 0x90, Sw2: 0x00}, nil
	}

	expected := c.prim.SHA256(concatBytes(c.pairingSecret, c.cardChallenge))
	if !bytes.Equal(expected, cmd.Data) {
		return &apdu.Response{Sw1: 0x63, Sw2: 0x00}, nil
	}

	salt, err := c.prim.SecureRandom(32)
	if err != nil {
		return nil, err
	}
	c.pairingIndex = 0
	c.pairingKey = c.prim.SHA256(concatBytes(c.pairingSecret, salt))
	c.paired = true

	return &apdu.Response{Data: concatBytes([]byte{c.pairingIndex}, salt), Sw1: 0x90, Sw2: 0x00}, nil
}

func (c *simulatedCard) openSecureChannel(cmd *apdu.Command) (*apdu.Response, error) {
	c.hostPub = cmd.Data
	secret, err := c.prim.ECDHShared(c.cardPriv, c.hostPub)
	if err != nil {
		return nil, err
	}
	c.secret = secret

	salt, err := c.prim.SecureRandom(32)
	if err != nil {
		return nil, err
	}
	iv0, err := c.prim.SecureRandom(16)
	if err != nil {
		return nil, err
	}

	keyMaterial := c.prim.SHA512(concatBytes(c.secret, c.pairingKey, salt))
	c.sessionEncKey = keyMaterial[:32]
	c.sessionMacKey = keyMaterial[32:64]
	c.iv = iv0
	c.open = true

	return &apdu.Response{Data: concatBytes(salt, iv0), Sw1: 0x90, Sw2: 0x00}, nil
}

// protectedCommand unwraps an incoming protected APDU, logs what it
// decrypted, and wraps back a plain 0x9000 acknowledgement.
func (c *simulatedCard) protectedCommand(cmd *apdu.Command) (*apdu.Response, error) {
	if !c.open || len(cmd.Data) < 16 {
		return &apdu.Response{Sw1: 0x69, Sw2: 0x82}, nil
	}

	mac := cmd.Data[:16]
	ciphertext := cmd.Data[16:]

	meta := make([]byte, 16)
	meta[0], meta[1], meta[2], meta[3] = cmd.Cla, cmd.Ins, cmd.P1, cmd.P2
	meta[4] = byte(len(cmd.Data))

	expectedTag, err := c.prim.MACTag(c.sessionMacKey, meta, ciphertext)
	if err != nil {
		return nil, err
	}
	c.iv = expectedTag
	if !bytes.Equal(expectedTag, mac) {
		c.open = false
		return &apdu.Response{Sw1: 0x69, Sw2: 0x82}, nil
	}

	plaintext, err := c.prim.DecryptCBCISO7816(c.sessionEncKey, mac, ciphertext)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("card received protected command", "ins", cmd.Ins, "plaintext_len", len(plaintext))

	innerResp := []byte{0x90, 0x00}
	respCiphertext, err := c.prim.EncryptCBCISO7816(c.sessionEncKey, c.iv, innerResp)
	if err != nil {
		return nil, err
	}
	respMeta := make([]byte, 16)
	respMeta[0] = byte(16 + len(respCiphertext))
	tag, err := c.prim.MACTag(c.sessionMacKey, respMeta, respCiphertext)
	if err != nil {
		return nil, err
	}
	c.iv = tag

	return &apdu.Response{Data: concatBytes(tag, respCiphertext), Sw1: 0x90, Sw2: 0x00}, nil
}

func concatBytes(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
