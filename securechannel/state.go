package securechannel

// sessionState is the session's closed/bootstrapped/open lifecycle, modeled
// as tagged variants instead of a boolean plus optional fields. Operations
// that need key material accept only *openState, so "wrap while closed
// with stale keys" cannot be expressed.
type sessionState interface {
	isSessionState()
	// wipe zeroizes every secret byte slice the variant holds, in place.
	// Called on every transition away from the variant, so stale key
	// material never lingers in memory past its state's lifetime.
	wipe()
}

// zeroize overwrites b with zero bytes in place. It is a no-op on nil or
// empty slices.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// closedState is the initial state and the state after any transport
// error, cancellation, SW 0x6982, or explicit reset. No key material is
// available.
type closedState struct{}

func (closedState) isSessionState() {}
func (closedState) wipe()           {}

// bootstrappedState holds the ECDH bootstrap output: a card public key has
// been ingested and a shared secret derived, but OPEN SECURE CHANNEL has
// not yet produced session keys.
type bootstrappedState struct {
	cardPubKey []byte
	hostPriv   []byte
	hostPub    []byte
	secret     []byte
}

func (*bootstrappedState) isSessionState() {}

// wipe zeroizes the ephemeral private key and the ECDH shared secret.
// cardPubKey and hostPub are public values and are left alone.
func (b *bootstrappedState) wipe() {
	zeroize(b.hostPriv)
	zeroize(b.secret)
}

// openState holds the live session keys and the IV, mutated in place on
// every wrap and unwrap. It carries forward the bootstrap fields because
// autoUnpair, unpairOthers, and a re-open all still need them.
type openState struct {
	cardPubKey []byte
	hostPriv   []byte
	hostPub    []byte
	secret     []byte

	sessionEncKey []byte
	sessionMacKey []byte
	iv            []byte
}

func (*openState) isSessionState() {}

// wipe zeroizes the ephemeral private key, the ECDH shared secret, both
// session keys, and the current IV. cardPubKey and hostPub are public
// values and are left alone.
func (o *openState) wipe() {
	zeroize(o.hostPriv)
	zeroize(o.secret)
	zeroize(o.sessionEncKey)
	zeroize(o.sessionMacKey)
	zeroize(o.iv)
}
