// Package commandset is a thin wrapper over one securechannel.Session that
// exposes one method per applet command, building the right APDU and
// leaving response interpretation to the caller.
package commandset

import (
	"context"
	"encoding/binary"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/status-im/hardwallet-lite-sdk/apdu"
	"github.com/status-im/hardwallet-lite-sdk/securechannel"
	"github.com/status-im/hardwallet-lite-sdk/transport"
	"github.com/status-im/keycard-go/derivationpath"
)

// applicationAID is the Status hardware wallet applet identifier: the
// ASCII bytes of "StatusWalletApp".
var applicationAID = []byte{0x53, 0x74, 0x61, 0x74, 0x75, 0x73, 0x57, 0x61, 0x6C, 0x6C, 0x65, 0x74, 0x41, 0x70, 0x70}

const (
	claISO    = 0x00
	insSelect = 0xA4

	insVerifyPin        = 0x20
	insChangePin        = 0x21
	insUnblockPin       = 0x22
	insSign             = 0xC0
	insSetPinlessPath   = 0xC1
	insExportKey        = 0xC2
	insLoadKey          = 0xD0
	insDeriveKey        = 0xD1
	insGenerateMnemonic = 0xD2
	insRemoveKey        = 0xD3
	insGenerateKey      = 0xD4
	insGetStatus        = 0xF2
)

// DeriveKey/SetPinlessPath source selectors.
const (
	DeriveFromMaster  = 0x00
	DeriveFromParent  = 0x40
	DeriveFromCurrent = 0x80
)

// GetStatus info selectors.
const (
	StatusApplication = 0x00
	StatusKeyPath     = 0x01
)

// CommandSet wraps one secure channel session and the transport it runs
// over. It owns no protocol state of its own beyond those two references:
// all protocol state (keys, IV, pairing) lives in the Session.
type CommandSet struct {
	session   *securechannel.Session
	transport transport.Transport
	logger    *slog.Logger
}

// Option configures optional CommandSet behavior at construction time.
type Option func(*CommandSet)

// WithLogger attaches a *slog.Logger that CommandSet uses to report
// command-level events (SELECT's card-key ingestion, INIT provisioning) at
// Debug level. It never logs key material, PINs, or plaintext. A nil
// logger (the default) disables logging entirely.
func WithLogger(logger *slog.Logger) Option {
	return func(cs *CommandSet) { cs.logger = logger }
}

// New builds a CommandSet over an existing session and transport. The
// session may be freshly constructed (closed state) or already paired.
func New(session *securechannel.Session, t transport.Transport, opts ...Option) *CommandSet {
	cs := &CommandSet{session: session, transport: t}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

func (cs *CommandSet) logDebug(msg string, args ...any) {
	if cs.logger == nil {
		return
	}
	cs.logger.Debug(msg, args...)
}

// Select sends SELECT for the applet AID, and on success feeds the card's
// public key into the session's ECDH bootstrap.
func (cs *CommandSet) Select(ctx context.Context) (*apdu.Response, error) {
	resp, err := cs.session.Transmit(ctx, cs.transport, claISO, insSelect, 0x04, 0x00, applicationAID)
	if err != nil {
		return nil, err
	}
	if !resp.IsOK() {
		return resp, nil
	}

	cardPubKey, err := parseSelectResponse(resp.Data)
	if err != nil {
		return nil, err
	}
	if err := cs.session.IngestCardPublicKey(cardPubKey); err != nil {
		return nil, err
	}
	cs.logDebug("commandset: card public key ingested")
	return resp, nil
}

// parseSelectResponse extracts the card's ephemeral public key from a
// SELECT response, which comes back in one of two shapes: an
// application-info template (tag 0xA4) or a bare public-key TLV (tag
// 0x80).
func parseSelectResponse(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, errors.New("commandset: select response too short")
	}
	switch data[0] {
	case 0xA4:
		if len(data) < 22 {
			return nil, errors.New("commandset: select response application-info template too short")
		}
		keyLen := int(data[21])
		if len(data) < 22+keyLen {
			return nil, errors.New("commandset: select response key length exceeds response")
		}
		return data[22 : 22+keyLen], nil
	case 0x80:
		return data[2:], nil
	default:
		return nil, errors.Errorf("commandset: select response tag 0x%02x not recognized", data[0])
	}
}

func (cs *CommandSet) VerifyPin(ctx context.Context, pin string) (*apdu.Response, error) {
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insVerifyPin, 0, 0, []byte(pin))
}

// ChangePin updates one PIN-like secret. pinType selects which one (applet
// defined: 0..3).
func (cs *CommandSet) ChangePin(ctx context.Context, pinType byte, pin []byte) (*apdu.Response, error) {
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insChangePin, pinType, 0, pin)
}

func (cs *CommandSet) UnblockPin(ctx context.Context, puk, newPin string) (*apdu.Response, error) {
	data := append([]byte(puk), []byte(newPin)...)
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insUnblockPin, 0, 0, data)
}

// LoadKey sends the raw already-encoded LOAD KEY payload. Prefer
// LoadKeySeed or LoadKeyEC, which build data for you.
func (cs *CommandSet) LoadKey(ctx context.Context, data []byte, p1 byte) (*apdu.Response, error) {
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insLoadKey, p1, 0, data)
}

// LoadKeySeed loads a BIP32 master key from a raw seed: priv concatenated
// with chainCode, leading 0x00 stripped from priv.
func (cs *CommandSet) LoadKeySeed(ctx context.Context, priv, chainCode []byte) (*apdu.Response, error) {
	return cs.LoadKey(ctx, buildSeedLoadKeyData(priv, chainCode), loadKeyP1Seed)
}

// LoadKeyEC loads an EC keypair in TLV form. pub and chainCode may each be
// nil to omit that field.
func (cs *CommandSet) LoadKeyEC(ctx context.Context, pub, priv, chainCode []byte) (*apdu.Response, error) {
	data, p1 := buildECLoadKeyData(pub, priv, chainCode)
	return cs.LoadKey(ctx, data, p1)
}

func (cs *CommandSet) GenerateMnemonic(ctx context.Context, checksumLength byte) (*apdu.Response, error) {
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insGenerateMnemonic, checksumLength, 0, nil)
}

func (cs *CommandSet) RemoveKey(ctx context.Context) (*apdu.Response, error) {
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insRemoveKey, 0, 0, nil)
}

func (cs *CommandSet) GenerateKey(ctx context.Context) (*apdu.Response, error) {
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insGenerateKey, 0, 0, nil)
}

// Sign requests a signature over hash, which must be exactly 32 bytes.
func (cs *CommandSet) Sign(ctx context.Context, hash []byte) (*apdu.Response, error) {
	if len(hash) != 32 {
		return nil, errors.Errorf("commandset: sign: hash is %d bytes, expected 32", len(hash))
	}
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insSign, 0, 0, hash)
}

// DeriveKey derives to path (a BIP32 path string such as "m/44'/60'/0'/0/0")
// relative to source (DeriveFromMaster/Parent/Current).
func (cs *CommandSet) DeriveKey(ctx context.Context, path string, source byte) (*apdu.Response, error) {
	encoded, err := encodeDerivationPath(path)
	if err != nil {
		return nil, err
	}
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insDeriveKey, source, 0, encoded)
}

func (cs *CommandSet) SetPinlessPath(ctx context.Context, path string) (*apdu.Response, error) {
	encoded, err := encodeDerivationPath(path)
	if err != nil {
		return nil, err
	}
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insSetPinlessPath, 0, 0, encoded)
}

// ExportKey exports the key at keyPathIndex. publicOnly selects whether
// the private component is included.
func (cs *CommandSet) ExportKey(ctx context.Context, keyPathIndex byte, publicOnly bool) (*apdu.Response, error) {
	p2 := byte(0x00)
	if publicOnly {
		p2 = 0x01
	}
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insExportKey, keyPathIndex, p2, nil)
}

func (cs *CommandSet) GetStatus(ctx context.Context, info byte) (*apdu.Response, error) {
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insGetStatus, info, 0, nil)
}

// GetKeyInitializationStatus reports whether a key is currently loaded on
// the card.
func (cs *CommandSet) GetKeyInitializationStatus(ctx context.Context) (bool, error) {
	resp, err := cs.GetStatus(ctx, StatusApplication)
	if err != nil {
		return false, err
	}
	if !resp.IsOK() {
		return false, errors.Errorf("commandset: get status: sw=0x%04x", resp.SW())
	}
	if len(resp.Data) == 0 {
		return false, errors.New("commandset: get status: empty response")
	}
	return resp.Data[len(resp.Data)-1] != 0x00, nil
}

// SetNdef overwrites the applet's NDEF record. The INS byte intentionally
// collides with GET STATUS; the applet disambiguates by P1/P2 and data
// shape, not by a distinct instruction.
func (cs *CommandSet) SetNdef(ctx context.Context, data []byte) (*apdu.Response, error) {
	return cs.session.Transmit(ctx, cs.transport, securechannel.ClaWallet, insGetStatus, 0, 0, data)
}

// Init provisions a virgin applet with an initial PIN, PUK, and pairing
// secret, via the session's one-shot unauthenticated INIT encryption.
// Unlike every other command, this is sent unprotected even when the
// channel is otherwise closed, since no session exists yet.
func (cs *CommandSet) Init(ctx context.Context, pin, puk string, sharedSecret []byte) (*apdu.Response, error) {
	initData := append(append([]byte(pin), []byte(puk)...), sharedSecret...)
	payload, err := cs.session.OneShotEncrypt(initData)
	if err != nil {
		return nil, err
	}
	cs.logDebug("commandset: provisioning applet via one-shot init")
	return cs.transport.Transmit(ctx, apdu.New(securechannel.ClaWallet, securechannel.InsInit, 0, 0, payload))
}

// encodeDerivationPath decodes a BIP32 path string into its uint32 index
// components and serializes each big-endian, concatenated in order — the
// same wire encoding status-im/keycard-go's derivationpath package
// produces.
func encodeDerivationPath(path string) ([]byte, error) {
	segments, err := derivationpath.Decode(path)
	if err != nil {
		return nil, errors.Wrapf(err, "commandset: decode derivation path %q", path)
	}
	out := make([]byte, 4*len(segments))
	for i, seg := range segments {
		binary.BigEndian.PutUint32(out[4*i:4*i+4], seg)
	}
	return out, nil
}
