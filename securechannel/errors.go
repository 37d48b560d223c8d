package securechannel

import "github.com/pkg/errors"

// Kind identifies which documented failure mode produced an error, so
// callers can branch on it with errors.Is without parsing message text.
type Kind struct {
	name string
}

func (k Kind) Error() string { return k.name }

var (
	// ErrTransport wraps any failure reported by the underlying transport;
	// the session is always closed alongside it.
	ErrTransport = Kind{"securechannel: transport error"}
	// ErrUnexpectedResponse means SELECT returned a response shape the
	// parser does not recognize.
	ErrUnexpectedResponse = Kind{"securechannel: unexpected response"}
	// ErrOpenFailed means OPEN SECURE CHANNEL returned a non-0x9000 SW.
	ErrOpenFailed = Kind{"securechannel: open secure channel failed"}
	// ErrMutualAuthFailed means MUTUALLY AUTHENTICATE returned a
	// non-0x9000 SW, or a plaintext response of the wrong length.
	ErrMutualAuthFailed = Kind{"securechannel: mutual authentication failed"}
	// ErrPairStep1Failed means the first PAIR exchange returned a
	// non-0x9000 SW.
	ErrPairStep1Failed = Kind{"securechannel: pairing step 1 failed"}
	// ErrPairStep2Failed means the second PAIR exchange returned a
	// non-0x9000 SW.
	ErrPairStep2Failed = Kind{"securechannel: pairing step 2 failed"}
	// ErrBadCardCryptogram means the card's pairing cryptogram did not
	// match the expected value; pairing state is not stored.
	ErrBadCardCryptogram = Kind{"securechannel: bad card cryptogram"}
	// ErrUnpairFailed means UNPAIR returned a non-0x9000 SW.
	ErrUnpairFailed = Kind{"securechannel: unpair failed"}
	// ErrInvalidMac means unwrap's MAC verification failed; the session is
	// closed and must be re-opened.
	ErrInvalidMac = Kind{"securechannel: invalid response mac"}
	// ErrCrypto wraps a primitives failure (off-curve point, padding
	// error, and similar).
	ErrCrypto = Kind{"securechannel: crypto primitive failed"}
	// ErrInvalidInput means a caller-supplied argument violated a
	// documented precondition.
	ErrInvalidInput = Kind{"securechannel: invalid input"}
)

// wrapf attaches kind to the error chain as the root cause, so
// errors.Is(result, kind) succeeds, while folding an optional underlying
// cause's text and a formatted message into the description.
func wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	msg := errors.Errorf(format, args...).Error()
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return errors.Wrap(kind, msg)
}
