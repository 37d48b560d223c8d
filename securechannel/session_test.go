package securechannel

import (
	"bytes"
	"context"
	"testing"

	"github.com/status-im/hardwallet-lite-sdk/apdu"
	"github.com/status-im/hardwallet-lite-sdk/primitives"
	"github.com/stretchr/testify/require"
)

type funcTransport func(ctx context.Context, cmd *apdu.Command) (*apdu.Response, error)

func (f funcTransport) Transmit(ctx context.Context, cmd *apdu.Command) (*apdu.Response, error) {
	return f(ctx, cmd)
}

func newOpenSession(prim primitives.Primitives, encKey, macKey, iv []byte, pairingIndex uint8) *Session {
	return &Session{
		prim:         prim,
		pairingIndex: pairingIndex,
		state: &openState{
			sessionEncKey: encKey,
			sessionMacKey: macKey,
			iv:            iv,
		},
	}
}

// simulateCardReply builds the encrypted response a perfectly symmetric
// card peer would send back for data/sw, given the session's current iv,
// and advances iv the same way unwrap will independently recompute it.
func simulateCardReply(t *testing.T, prim primitives.Primitives, open *openState, data []byte, sw1, sw2 byte) *apdu.Response {
	t.Helper()
	plaintext := append(append([]byte(nil), data...), sw1, sw2)
	ciphertext, err := prim.EncryptCBCISO7816(open.sessionEncKey, open.iv, plaintext)
	require.NoError(t, err)

	meta := make([]byte, BlockSize)
	meta[0] = byte(BlockSize + len(ciphertext))
	tag, err := prim.MACTag(open.sessionMacKey, meta, ciphertext)
	require.NoError(t, err)
	open.iv = tag

	respData := append(append([]byte(nil), tag...), ciphertext...)
	return &apdu.Response{Data: respData, Sw1: 0x90, Sw2: 0x00}
}

func TestWrapPassthroughWhenClosed(t *testing.T) {
	s := NewSession(primitives.NewDefault())
	cmd, err := s.Wrap(0x80, 0x20, 0, 0, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), cmd.Data)
}

func TestUnwrapPassthroughWhenClosed(t *testing.T) {
	s := NewSession(primitives.NewDefault())
	resp := &apdu.Response{Data: []byte("hi"), Sw1: 0x90, Sw2: 0x00}
	out, err := s.Unwrap(resp)
	require.NoError(t, err)
	require.Same(t, resp, out)
}

func TestWrapRejectsOversizedPlaintext(t *testing.T) {
	s := newOpenSession(primitives.NewDefault(), bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32), make([]byte, 16), 0)
	_, err := s.Wrap(0x80, 0x20, 0, 0, bytes.Repeat([]byte{0xAA}, MaxPayload+1))
	require.ErrorIs(t, err, ErrInvalidInput)
}

// TestWrapEmptyPlaintextLayout matches the wrap-of-empty-plaintext scenario:
// iv=0, session_enc_key=0x01..., session_mac_key=0x02..., (cla,ins,p1,p2) =
// (0x80,0x20,0x00,0x00). Wrapped data must be 32 bytes (16-byte mac + one
// ciphertext block), and the new iv must equal the mac construction applied
// to the documented meta block.
func TestWrapEmptyPlaintextLayout(t *testing.T) {
	prim := primitives.NewDefault()
	encKey := bytes.Repeat([]byte{0x01}, 32)
	macKey := bytes.Repeat([]byte{0x02}, 32)
	iv := make([]byte, 16)
	s := newOpenSession(prim, encKey, macKey, iv, 0)

	cmd, err := s.Wrap(0x80, 0x20, 0x00, 0x00, nil)
	require.NoError(t, err)
	require.Len(t, cmd.Data, 32)

	expectedCiphertext, err := prim.EncryptCBCISO7816(encKey, make([]byte, 16), nil)
	require.NoError(t, err)
	require.Equal(t, expectedCiphertext, cmd.Data[16:])

	expectedMeta := []byte{0x80, 0x20, 0x00, 0x00, 0x20, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	expectedIV, err := prim.MACTag(macKey, expectedMeta, expectedCiphertext)
	require.NoError(t, err)
	require.Equal(t, expectedIV, cmd.Data[:16])

	open := s.state.(*openState)
	require.Equal(t, expectedIV, open.iv)
}

// TestWrapUnwrapRoundTrip covers Property 2: wrapping on the host and
// "unwrapping" against a symmetric simulated card peer recovers the
// original plaintext and leaves both ivs equal.
func TestWrapUnwrapRoundTrip(t *testing.T) {
	prim := primitives.NewDefault()
	encKey := bytes.Repeat([]byte{0x05}, 32)
	macKey := bytes.Repeat([]byte{0x06}, 32)
	iv := bytes.Repeat([]byte{0x00}, 16)
	s := newOpenSession(prim, encKey, macKey, append([]byte(nil), iv...), 0)

	for _, plaintext := range [][]byte{{}, []byte("a"), bytes.Repeat([]byte{0xCD}, 223)} {
		cmd, err := s.Wrap(0x80, 0xC0, 0, 0, plaintext)
		require.NoError(t, err)

		open := s.state.(*openState)
		resp := simulateCardReply(t, prim, open, []byte("card-says-hi"), 0x90, 0x00)

		inner, err := s.Unwrap(resp)
		require.NoError(t, err)
		require.Equal(t, []byte("card-says-hi"), inner.Data)
		require.True(t, inner.IsOK())
		require.NotEmpty(t, cmd.Data)
	}
}

// TestUnwrapRejectsTamperedMac covers Property 3.
func TestUnwrapRejectsTamperedMac(t *testing.T) {
	prim := primitives.NewDefault()
	s := newOpenSession(prim, bytes.Repeat([]byte{0x05}, 32), bytes.Repeat([]byte{0x06}, 32), make([]byte, 16), 0)

	_, err := s.Wrap(0x80, 0xC0, 0, 0, []byte("sign me"))
	require.NoError(t, err)

	open := s.state.(*openState)
	resp := simulateCardReply(t, prim, open, []byte("reply"), 0x90, 0x00)
	resp.Data[0] ^= 0x01 // flip a bit in the mac

	_, err = s.Unwrap(resp)
	require.ErrorIs(t, err, ErrInvalidMac)
	require.False(t, s.IsOpen())
}

// TestUnwrapDetectsSW6982AndClosesSession covers Property 5.
func TestUnwrapDetectsSW6982AndClosesSession(t *testing.T) {
	s := newOpenSession(primitives.NewDefault(), bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32), make([]byte, 16), 0)
	resp := &apdu.Response{Sw1: 0x69, Sw2: 0x82}

	out, err := s.Unwrap(resp)
	require.NoError(t, err)
	require.Same(t, resp, out)
	require.False(t, s.IsOpen())
}

func TestIngestCardPublicKeyRejectsInvalidPoint(t *testing.T) {
	s := NewSession(primitives.NewDefault())
	err := s.IngestCardPublicKey(bytes.Repeat([]byte{0x04}, 65))
	require.ErrorIs(t, err, ErrCrypto)
}

func TestAutoOpenSecureChannelRequiresBootstrap(t *testing.T) {
	s := NewSession(primitives.NewDefault())
	err := s.AutoOpenSecureChannel(context.Background(), funcTransport(func(context.Context, *apdu.Command) (*apdu.Response, error) {
		t.Fatal("transport should not be called before bootstrap")
		return nil, nil
	}))
	require.ErrorIs(t, err, ErrInvalidInput)
}

// TestAutoPairComputesCryptogramsCorrectly covers Property 4.
func TestAutoPairComputesCryptogramsCorrectly(t *testing.T) {
	prim := primitives.NewDefault()
	sharedSecret := bytes.Repeat([]byte{0x07}, 32)
	cardChallenge := bytes.Repeat([]byte{0x08}, 32)
	cardSalt := bytes.Repeat([]byte{0x09}, 32)
	const cardPairingIndex = 3

	calls := 0
	tr := funcTransport(func(_ context.Context, cmd *apdu.Command) (*apdu.Response, error) {
		calls++
		switch calls {
		case 1:
			require.Equal(t, byte(insPair), cmd.Ins)
			require.Equal(t, byte(pairP1FirstStep), cmd.P1)
			challenge := cmd.Data
			cardCryptogram := prim.SHA256(concat(sharedSecret, challenge))
			return &apdu.Response{Data: concat(cardCryptogram, cardChallenge), Sw1: 0x90, Sw2: 0x00}, nil
		case 2:
			require.Equal(t, byte(insPair), cmd.Ins)
			require.Equal(t, byte(pairP1LastStep), cmd.P1)
			expectedClientCryptogram := prim.SHA256(concat(sharedSecret, cardChallenge))
			require.Equal(t, expectedClientCryptogram, cmd.Data)
			return &apdu.Response{Data: concat([]byte{cardPairingIndex}, cardSalt), Sw1: 0x90, Sw2: 0x00}, nil
		default:
			t.Fatalf("unexpected call %d", calls)
			return nil, nil
		}
	})

	s := NewSession(prim)
	require.NoError(t, s.AutoPair(context.Background(), tr, sharedSecret))
	require.Equal(t, uint8(cardPairingIndex), s.PairingIndex())
	require.Equal(t, prim.SHA256(concat(sharedSecret, cardSalt)), s.PairingKey())
	require.Equal(t, 2, calls)
}

// TestUnpairOthersSendsFourAPDUsInOrder covers scenario 5.
func TestUnpairOthersSendsFourAPDUsInOrder(t *testing.T) {
	prim := primitives.NewDefault()
	s := newOpenSession(prim, bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32), make([]byte, 16), 2)

	var p1s []byte
	tr := funcTransport(func(_ context.Context, cmd *apdu.Command) (*apdu.Response, error) {
		require.Equal(t, byte(insUnpair), cmd.Ins)
		p1s = append(p1s, cmd.P1)
		open := s.state.(*openState)
		return simulateCardReply(t, prim, open, nil, 0x90, 0x00), nil
	})

	require.NoError(t, s.UnpairOthers(context.Background(), tr))
	require.Equal(t, []byte{0, 1, 3, 4}, p1s)
}

// TestOneShotEncryptPayloadLayout covers scenario 6.
func TestOneShotEncryptPayloadLayout(t *testing.T) {
	prim := primitives.NewDefault()
	_, cardPub, err := prim.GenerateKeyPair()
	require.NoError(t, err)

	s := NewSession(prim)
	require.NoError(t, s.IngestCardPublicKey(cardPub))

	payload, err := s.OneShotEncrypt([]byte("1234" + "123456" + "pairingsecret"))
	require.NoError(t, err)

	require.Equal(t, byte(65), payload[0])
	require.Len(t, payload[1:66], 65)
	require.Equal(t, byte(0x04), payload[1])
	require.Greater(t, len(payload), 1+65+16)
}

// TestResetZeroizesSessionKeys covers the zeroization requirement: Reset
// must wipe the outgoing open state's secrets in place, not merely drop
// the reference to them.
func TestResetZeroizesSessionKeys(t *testing.T) {
	encKey := bytes.Repeat([]byte{0x01}, 32)
	macKey := bytes.Repeat([]byte{0x02}, 32)
	iv := bytes.Repeat([]byte{0x03}, 16)
	s := newOpenSession(primitives.NewDefault(), encKey, macKey, iv, 0)
	open := s.state.(*openState)

	s.Reset()

	require.Equal(t, make([]byte, 32), open.sessionEncKey)
	require.Equal(t, make([]byte, 32), open.sessionMacKey)
	require.Equal(t, make([]byte, 16), open.iv)
	require.False(t, s.IsOpen())
}

// TestUnwrapMacMismatchZeroizesSessionKeys covers zeroization on the
// tamper-detection teardown path, not just the explicit Reset/Close path.
func TestUnwrapMacMismatchZeroizesSessionKeys(t *testing.T) {
	prim := primitives.NewDefault()
	s := newOpenSession(prim, bytes.Repeat([]byte{0x05}, 32), bytes.Repeat([]byte{0x06}, 32), make([]byte, 16), 0)
	open := s.state.(*openState)

	_, err := s.Wrap(0x80, 0xC0, 0, 0, []byte("sign me"))
	require.NoError(t, err)

	resp := simulateCardReply(t, prim, open, []byte("reply"), 0x90, 0x00)
	resp.Data[0] ^= 0x01

	_, err = s.Unwrap(resp)
	require.ErrorIs(t, err, ErrInvalidMac)
	require.Equal(t, make([]byte, 32), open.sessionEncKey)
	require.Equal(t, make([]byte, 32), open.sessionMacKey)
}

// TestCloseZeroizesPairingKeyAndSessionState covers Close: it must wipe
// both the current session state and any stored pairing key, and reset
// the pairing index back to zero.
func TestCloseZeroizesPairingKeyAndSessionState(t *testing.T) {
	encKey := bytes.Repeat([]byte{0x07}, 32)
	macKey := bytes.Repeat([]byte{0x08}, 32)
	iv := bytes.Repeat([]byte{0x09}, 16)
	s := newOpenSession(primitives.NewDefault(), encKey, macKey, iv, 3)
	open := s.state.(*openState)
	pairingKey := bytes.Repeat([]byte{0x0A}, 32)
	s.pairingKey = pairingKey

	s.Close()

	require.Equal(t, make([]byte, 32), open.sessionEncKey)
	require.Equal(t, make([]byte, 32), pairingKey)
	require.Nil(t, s.PairingKey())
	require.Equal(t, uint8(0), s.PairingIndex())
	require.False(t, s.IsOpen())
}
