// Package transporttest provides an in-memory transport.Transport for
// exercising the secure channel and command set without a physical card.
package transporttest

import (
	"context"

	"github.com/pkg/errors"
	"github.com/status-im/hardwallet-lite-sdk/apdu"
)

// Exchange is one scripted command/response pair. If Match is non-nil it is
// used to validate the command actually sent; otherwise the handler fires
// unconditionally in script order.
type Exchange struct {
	Match    func(cmd *apdu.Command) error
	Response *apdu.Response
	Err      error
}

// Mock replays a fixed script of exchanges in order, recording every
// command it was asked to transmit for later inspection by the test.
type Mock struct {
	script []Exchange
	cursor int

	Sent []*apdu.Command
}

// NewMock builds a Mock that will serve the given exchanges in order.
func NewMock(script ...Exchange) *Mock {
	return &Mock{script: script}
}

// Transmit implements transport.Transport.
func (m *Mock) Transmit(_ context.Context, cmd *apdu.Command) (*apdu.Response, error) {
	m.Sent = append(m.Sent, cmd)

	if m.cursor >= len(m.script) {
		return nil, errors.Errorf("transporttest: no scripted response for exchange %d", m.cursor)
	}
	ex := m.script[m.cursor]
	m.cursor++

	if ex.Match != nil {
		if err := ex.Match(cmd); err != nil {
			return nil, errors.Wrapf(err, "transporttest: exchange %d mismatch", m.cursor-1)
		}
	}
	if ex.Err != nil {
		return nil, ex.Err
	}
	return ex.Response, nil
}

// Exhausted reports whether every scripted exchange has been consumed.
func (m *Mock) Exhausted() bool {
	return m.cursor == len(m.script)
}
