// Package transport defines the boundary between the secure-channel client
// and whatever carries bytes to the physical card. The core never talks to
// a reader directly; it only ever calls Transport.Transmit.
package transport

import (
	"context"

	"github.com/status-im/hardwallet-lite-sdk/apdu"
)

// Transport moves a single command to the card and returns its response.
// Implementations must treat each call as synchronous and blocking; the
// secure channel relies on strict request/response ordering (see
// securechannel.Session) and never issues overlapping Transmit calls on the
// same session.
type Transport interface {
	Transmit(ctx context.Context, cmd *apdu.Command) (*apdu.Response, error)
}
