// Package securechannel implements the ECDH bootstrap, pairing, and
// per-APDU encrypted framing used to talk to a Status hardware wallet
// applet over any ISO 7816 transport.
package securechannel

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/status-im/hardwallet-lite-sdk/apdu"
	"github.com/status-im/hardwallet-lite-sdk/primitives"
	"github.com/status-im/hardwallet-lite-sdk/transport"
)

const (
	claWallet = 0x80

	insOpenSecureChannel    = 0x10
	insMutuallyAuthenticate = 0x11
	insPair                 = 0x12
	insUnpair               = 0x13
	insInit                 = 0xFE

	pairP1FirstStep = 0x00
	pairP1LastStep  = 0x01

	// SecretLength is the width of the ECDH shared secret, every session
	// key, and every pairing-related hash in this protocol.
	SecretLength = 32
	// BlockSize is the AES/MAC block size.
	BlockSize = 16
	// MaxPayload is the largest plaintext a single wrapped APDU may carry.
	MaxPayload = 223
	// MaxPairings is the number of concurrent pairing slots the applet
	// supports.
	MaxPairings = 5

	// InsInit is exported so commandset can build the unprotected INIT
	// APDU around OneShotEncrypt's payload.
	InsInit = insInit
	// ClaWallet is exported for the same reason.
	ClaWallet = claWallet
)

// Session is a stateful secure channel to a single hardware wallet applet
// instance. It is safe for concurrent use: every operation that touches
// protocol state holds an internal mutex for its full duration, since the
// IV chain makes interleaved wrap/unwrap calls on one session meaningless.
//
// Pairing material (pairingKey, pairingIndex) persists independently of the
// closed/bootstrapped/open lifecycle: a caller may restore it across
// process restarts without repeating ECDH bootstrap or pairing.
type Session struct {
	mu     sync.Mutex
	prim   primitives.Primitives
	state  sessionState
	logger *slog.Logger

	pairingKey   []byte
	pairingIndex uint8
}

// NewSession constructs a Session with no card key ingested (closed state)
// and no pairing material. A nil logger (the default, unless WithLogger is
// passed) disables logging entirely.
func NewSession(prim primitives.Primitives, opts ...SessionOption) *Session {
	s := &Session{prim: prim, state: closedState{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RestorePairing installs pairing material persisted from a previous
// session, so the caller can skip AutoPair on reconnect.
func (s *Session) RestorePairing(index uint8, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairingIndex = index
	s.pairingKey = append([]byte(nil), key...)
}

// PairingIndex returns the current pairing slot, valid once AutoPair or
// RestorePairing has run.
func (s *Session) PairingIndex() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairingIndex
}

// PairingKey returns a copy of the current pairing key, for the caller to
// persist between sessions. Returns nil if no pairing has been established.
func (s *Session) PairingKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pairingKey == nil {
		return nil
	}
	return append([]byte(nil), s.pairingKey...)
}

// IsOpen reports whether the secure channel is currently open.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.(*openState)
	return ok
}

// Reset forces the session back to closed state, zeroizing any session
// keys it held. Pairing material is untouched.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardStateLocked()
}

// Close zeroizes every secret the session holds, including pairing
// material, and returns it to closed state. Call this once at end of
// life; the session may still be used afterward but starts over from
// scratch (IngestCardPublicKey, AutoPair, AutoOpenSecureChannel).
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardStateLocked()
	zeroize(s.pairingKey)
	s.pairingKey = nil
	s.pairingIndex = 0
	logDebug(s.logger, "securechannel: session closed")
}

// discardStateLocked zeroizes the current state's secrets and replaces it
// with closedState, logging the open->closed transition when it applies.
// Every place that used to write s.state = closedState{} directly goes
// through here instead, so no transition away from a state leaves its key
// material behind in memory.
func (s *Session) discardStateLocked() {
	if _, wasOpen := s.state.(*openState); wasOpen {
		logDebug(s.logger, "securechannel: secure channel closed")
	}
	s.state.wipe()
	s.state = closedState{}
}

// IngestCardPublicKey runs the ECDH bootstrap: a fresh host ephemeral
// keypair is generated and combined with the card's public key (as
// extracted from SELECT's response) to derive the 32-byte shared secret
// used both for session-key derivation and one-shot INIT encryption.
func (s *Session) IngestCardPublicKey(cardPubKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hostPriv, hostPub, err := s.prim.GenerateKeyPair()
	if err != nil {
		return wrapf(ErrCrypto, err, "generate host ephemeral keypair")
	}
	secret, err := s.prim.ECDHShared(hostPriv, cardPubKey)
	if err != nil {
		return wrapf(ErrCrypto, err, "derive ECDH shared secret")
	}

	// Wipe whatever state this session held before (e.g. a prior
	// bootstrap or open channel being re-bootstrapped); the new state
	// below holds entirely fresh key material, not a view into the old.
	s.state.wipe()
	s.state = &bootstrappedState{
		cardPubKey: append([]byte(nil), cardPubKey...),
		hostPriv:   hostPriv,
		hostPub:    hostPub,
		secret:     secret,
	}
	return nil
}

// AutoOpenSecureChannel runs OPEN SECURE CHANNEL followed by MUTUALLY
// AUTHENTICATE, deriving session_enc_key/session_mac_key/iv along the way.
// Requires a bootstrapped session (see IngestCardPublicKey).
func (s *Session) AutoOpenSecureChannel(ctx context.Context, t transport.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	boot, ok := s.state.(*bootstrappedState)
	if !ok {
		return wrapf(ErrInvalidInput, nil, "open secure channel requires a bootstrapped session; call IngestCardPublicKey first")
	}

	resp, err := s.transmitRawLocked(ctx, t, claWallet, insOpenSecureChannel, s.pairingIndex, 0, boot.hostPub)
	if err != nil {
		return err
	}
	if !resp.IsOK() {
		s.discardStateLocked()
		return wrapf(ErrOpenFailed, nil, "open secure channel: sw=0x%04x", resp.SW())
	}
	if len(resp.Data) != SecretLength+BlockSize {
		s.discardStateLocked()
		return wrapf(ErrOpenFailed, nil, "open secure channel: response length %d, expected %d", len(resp.Data), SecretLength+BlockSize)
	}

	salt := resp.Data[:SecretLength]
	iv0 := append([]byte(nil), resp.Data[SecretLength:]...)

	keyMaterial := s.prim.SHA512(concat(boot.secret, s.pairingKey, salt))
	open := &openState{
		cardPubKey:    boot.cardPubKey,
		hostPriv:      boot.hostPriv,
		hostPub:       boot.hostPub,
		secret:        boot.secret,
		sessionEncKey: append([]byte(nil), keyMaterial[:SecretLength]...),
		sessionMacKey: append([]byte(nil), keyMaterial[SecretLength:SecretLength*2]...),
		iv:            iv0,
	}
	s.state = open

	challenge, err := s.prim.SecureRandom(SecretLength)
	if err != nil {
		s.discardStateLocked()
		return wrapf(ErrCrypto, err, "mutually authenticate: generate challenge")
	}
	authResp, err := s.transmitLocked(ctx, t, claWallet, insMutuallyAuthenticate, 0, 0, challenge)
	if err != nil {
		s.discardStateLocked()
		return err
	}
	if !authResp.IsOK() || len(authResp.Data) != SecretLength {
		s.discardStateLocked()
		return wrapf(ErrMutualAuthFailed, nil, "mutually authenticate: sw=0x%04x len=%d", authResp.SW(), len(authResp.Data))
	}

	logDebug(s.logger, "securechannel: secure channel opened", "pairing_index", s.pairingIndex)
	return nil
}

// AutoPair runs the two-step PAIR exchange against sharedSecret (the
// output of DerivePairingSecret), and stores the resulting pairing key and
// index on success. It does not require any particular session state and
// does not transition it.
func (s *Session) AutoPair(ctx context.Context, t transport.Transport, sharedSecret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, err := s.prim.SecureRandom(SecretLength)
	if err != nil {
		return wrapf(ErrCrypto, err, "pairing: generate challenge")
	}

	resp, err := s.transmitRawLocked(ctx, t, claWallet, insPair, pairP1FirstStep, 0, challenge)
	if err != nil {
		return err
	}
	if !resp.IsOK() {
		return wrapf(ErrPairStep1Failed, nil, "pair step 1: sw=0x%04x", resp.SW())
	}
	if len(resp.Data) != 2*SecretLength {
		return wrapf(ErrPairStep1Failed, nil, "pair step 1: response length %d, expected %d", len(resp.Data), 2*SecretLength)
	}
	cardCryptogram := resp.Data[:SecretLength]
	cardChallenge := resp.Data[SecretLength:]

	expectedCryptogram := s.prim.SHA256(concat(sharedSecret, challenge))
	if !bytes.Equal(expectedCryptogram, cardCryptogram) {
		return wrapf(ErrBadCardCryptogram, nil, "pair step 1: card cryptogram mismatch")
	}

	clientCryptogram := s.prim.SHA256(concat(sharedSecret, cardChallenge))
	resp, err = s.transmitRawLocked(ctx, t, claWallet, insPair, pairP1LastStep, 0, clientCryptogram)
	if err != nil {
		return err
	}
	if !resp.IsOK() {
		return wrapf(ErrPairStep2Failed, nil, "pair step 2: sw=0x%04x", resp.SW())
	}
	if len(resp.Data) != 1+SecretLength {
		return wrapf(ErrPairStep2Failed, nil, "pair step 2: response length %d, expected %d", len(resp.Data), 1+SecretLength)
	}

	s.pairingIndex = resp.Data[0]
	s.pairingKey = s.prim.SHA256(concat(sharedSecret, resp.Data[1:]))
	logDebug(s.logger, "securechannel: pairing established", "pairing_index", s.pairingIndex)
	return nil
}

// AutoUnpair removes the current pairing slot. Requires an open channel,
// since UNPAIR is a protected command.
func (s *Session) AutoUnpair(ctx context.Context, t transport.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.transmitLocked(ctx, t, claWallet, insUnpair, s.pairingIndex, 0, nil)
	if err != nil {
		return err
	}
	if !resp.IsOK() {
		return wrapf(ErrUnpairFailed, nil, "unpair index=%d: sw=0x%04x", s.pairingIndex, resp.SW())
	}
	zeroize(s.pairingKey)
	s.pairingKey = nil
	return nil
}

// UnpairOthers removes every pairing slot except the current one, in
// ascending P1 order, stopping at the first failure.
func (s *Session) UnpairOthers(ctx context.Context, t transport.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := uint8(0); i < MaxPairings; i++ {
		if i == s.pairingIndex {
			continue
		}
		resp, err := s.transmitLocked(ctx, t, claWallet, insUnpair, i, 0, nil)
		if err != nil {
			return err
		}
		if !resp.IsOK() {
			return wrapf(ErrUnpairFailed, nil, "unpair index=%d: sw=0x%04x", i, resp.SW())
		}
	}
	return nil
}

// Wrap builds the APDU for one protected command. If the channel is
// closed it returns the APDU unchanged with plaintext as its data, per the
// framing contract; callers (commandset) never need to branch on session
// state themselves.
func (s *Session) Wrap(cla, ins, p1, p2 byte, plaintext []byte) (*apdu.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrapLocked(cla, ins, p1, p2, plaintext)
}

// Unwrap processes one response APDU for a protected command: verifying
// and consuming the MAC, decrypting, and returning the card's real
// response. If the channel is closed it returns resp unchanged. SW 0x6982
// closes the channel but is reported to the caller, not returned as an
// error.
func (s *Session) Unwrap(resp *apdu.Response) (*apdu.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unwrapLocked(resp)
}

// Transmit wraps plaintext, sends it, and unwraps the response, holding
// the session lock for the full round trip so the IV chain cannot be
// interleaved with another call. This is what commandset uses for every
// operation, protected or not: Wrap/Unwrap pass plaintext straight through
// while the channel is closed, so the same call works for SELECT as for a
// fully protected command.
func (s *Session) Transmit(ctx context.Context, t transport.Transport, cla, ins, p1, p2 byte, plaintext []byte) (*apdu.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transmitLocked(ctx, t, cla, ins, p1, p2, plaintext)
}

// OneShotEncrypt implements the unauthenticated INIT encryption scheme:
// AES-CBC+ISO7816-4 under the raw ECDH secret with a fresh random IV, no
// chaining. Requires a bootstrapped or open session (secret and
// host_ephemeral_pub must exist).
func (s *Session) OneShotEncrypt(initData []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hostPub, secret, err := s.credentialsLocked()
	if err != nil {
		return nil, err
	}

	iv, err := s.prim.SecureRandom(BlockSize)
	if err != nil {
		return nil, wrapf(ErrCrypto, err, "one-shot encrypt: generate iv")
	}
	ciphertext, err := s.prim.EncryptCBCISO7816(secret, iv, initData)
	if err != nil {
		return nil, wrapf(ErrCrypto, err, "one-shot encrypt")
	}

	payload := make([]byte, 0, 1+len(hostPub)+len(iv)+len(ciphertext))
	payload = append(payload, byte(len(hostPub)))
	payload = append(payload, hostPub...)
	payload = append(payload, iv...)
	payload = append(payload, ciphertext...)
	return payload, nil
}

func (s *Session) credentialsLocked() (hostPub, secret []byte, err error) {
	switch st := s.state.(type) {
	case *bootstrappedState:
		return st.hostPub, st.secret, nil
	case *openState:
		return st.hostPub, st.secret, nil
	default:
		return nil, nil, wrapf(ErrInvalidInput, nil, "operation requires a bootstrapped or open session; call IngestCardPublicKey first")
	}
}

func (s *Session) wrapLocked(cla, ins, p1, p2 byte, plaintext []byte) (*apdu.Command, error) {
	open, ok := s.state.(*openState)
	if !ok {
		return apdu.New(cla, ins, p1, p2, plaintext), nil
	}
	if len(plaintext) > MaxPayload {
		return nil, wrapf(ErrInvalidInput, nil, "wrap: plaintext of %d bytes exceeds maximum of %d", len(plaintext), MaxPayload)
	}

	ciphertext, err := s.prim.EncryptCBCISO7816(open.sessionEncKey, open.iv, plaintext)
	if err != nil {
		return nil, wrapf(ErrCrypto, err, "wrap: encrypt")
	}

	meta := make([]byte, BlockSize)
	meta[0], meta[1], meta[2], meta[3] = cla, ins, p1, p2
	meta[4] = byte(len(ciphertext) + BlockSize)

	newIV, err := s.prim.MACTag(open.sessionMacKey, meta, ciphertext)
	if err != nil {
		return nil, wrapf(ErrCrypto, err, "wrap: compute mac")
	}
	open.iv = newIV

	data := make([]byte, len(newIV)+len(ciphertext))
	copy(data, newIV)
	copy(data[len(newIV):], ciphertext)
	return apdu.New(cla, ins, p1, p2, data), nil
}

func (s *Session) unwrapLocked(resp *apdu.Response) (*apdu.Response, error) {
	if resp.SW() == apdu.SWSecurityNotSatisfied {
		logDebug(s.logger, "securechannel: sw 0x6982 observed, closing channel")
		s.discardStateLocked()
		return resp, nil
	}
	open, ok := s.state.(*openState)
	if !ok {
		return resp, nil
	}
	if len(resp.Data) < BlockSize {
		s.discardStateLocked()
		return nil, wrapf(ErrInvalidMac, nil, "unwrap: response data of %d bytes is shorter than the mac", len(resp.Data))
	}
	mac := resp.Data[:BlockSize]
	ciphertext := resp.Data[BlockSize:]

	meta := make([]byte, BlockSize)
	meta[0] = byte(len(resp.Data))

	plaintext, err := s.prim.DecryptCBCISO7816(open.sessionEncKey, open.iv, ciphertext)
	if err != nil {
		s.discardStateLocked()
		return nil, wrapf(ErrCrypto, err, "unwrap: decrypt")
	}

	newIV, err := s.prim.MACTag(open.sessionMacKey, meta, ciphertext)
	if err != nil {
		s.discardStateLocked()
		return nil, wrapf(ErrCrypto, err, "unwrap: compute mac")
	}
	open.iv = newIV

	if !bytes.Equal(newIV, mac) {
		s.discardStateLocked()
		return nil, wrapf(ErrInvalidMac, nil, "unwrap: mac mismatch")
	}

	inner, err := apdu.ParseResponse(plaintext)
	if err != nil {
		s.discardStateLocked()
		return nil, wrapf(ErrUnexpectedResponse, nil, "unwrap: parse inner response: %v", err)
	}
	return inner, nil
}

func (s *Session) transmitRawLocked(ctx context.Context, t transport.Transport, cla, ins, p1, p2 byte, data []byte) (*apdu.Response, error) {
	resp, err := t.Transmit(ctx, apdu.New(cla, ins, p1, p2, data))
	if err != nil {
		s.discardStateLocked()
		return nil, wrapf(ErrTransport, err, "transmit ins=0x%02x", ins)
	}
	return resp, nil
}

func (s *Session) transmitLocked(ctx context.Context, t transport.Transport, cla, ins, p1, p2 byte, plaintext []byte) (*apdu.Response, error) {
	cmd, err := s.wrapLocked(cla, ins, p1, p2, plaintext)
	if err != nil {
		return nil, err
	}
	resp, err := t.Transmit(ctx, cmd)
	if err != nil {
		s.discardStateLocked()
		return nil, wrapf(ErrTransport, err, "transmit ins=0x%02x", ins)
	}
	return s.unwrapLocked(resp)
}

func concat(parts ...[]byte) []byte {
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
