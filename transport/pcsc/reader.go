// Package pcsc adapts a PC/SC smart-card reader (via github.com/ebfe/scard)
// to the transport.Transport interface. It is a convenience binding for
// manual and integration testing against a physical card; the secure
// channel and command set packages never import it, and it carries no
// protocol logic of its own — only APDU serialization and SW1/SW2
// extraction, same as any other Transport.
package pcsc

import (
	"context"

	"github.com/ebfe/scard"
	"github.com/pkg/errors"
	"github.com/status-im/hardwallet-lite-sdk/apdu"
)

// Reader wraps a connected scard.Card as a transport.Transport.
type Reader struct {
	card *scard.Card
}

// New wraps an already-connected card handle.
func New(card *scard.Card) *Reader {
	return &Reader{card: card}
}

// Connect establishes a shared connection to the first reader whose name
// contains substr, or to readerName exactly if substr is empty.
func Connect(ctx *scard.Context, readerName string) (*Reader, error) {
	card, err := ctx.Connect(readerName, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, errors.Wrapf(err, "pcsc: connect to %q", readerName)
	}
	return New(card), nil
}

// Transmit implements transport.Transport by serializing cmd, sending it
// to the card, and parsing the raw response into an apdu.Response.
func (r *Reader) Transmit(_ context.Context, cmd *apdu.Command) (*apdu.Response, error) {
	raw, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}

	respRaw, err := r.card.Transmit(raw)
	if err != nil {
		return nil, errors.Wrap(err, "pcsc: transmit")
	}

	return apdu.ParseResponse(respRaw)
}

// Close releases the underlying card handle.
func (r *Reader) Close() error {
	return r.card.Disconnect(scard.LeaveCard)
}
