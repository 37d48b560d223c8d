// Package apdu implements the ISO 7816-4 short command/response envelopes
// exchanged with the smart card. It carries no protocol semantics of its
// own: SecureChannelSession and CommandSet are the layers that know what
// CLA/INS/P1/P2 values mean.
package apdu

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// StatusWord is the 16-bit response code of a card exchange. 0x9000 means
// success; the high byte carries most of the semantic freight (e.g. 0x6982
// "security status not satisfied", 0x63Cx "wrong PIN, x tries remaining").
type StatusWord uint16

// SW9000 is the canonical success status word.
const SW9000 StatusWord = 0x9000

// SWSecurityNotSatisfied is returned by the card when the current secure
// channel can no longer authenticate a protected command; observing it on
// unwrap closes the session (see securechannel.Session.Unwrap).
const SWSecurityNotSatisfied StatusWord = 0x6982

// Command represents an application data unit sent to the card.
type Command struct {
	Cla, Ins, P1, P2 byte
	Data             []byte
}

// New builds a Command from its four header bytes and payload.
func New(cla, ins, p1, p2 byte, data []byte) *Command {
	return &Command{Cla: cla, Ins: ins, P1: p1, P2: p2, Data: data}
}

// Serialize encodes the command as CLA INS P1 P2 Lc DATA. Lc is omitted
// when Data is empty, matching how the reference client frames
// zero-payload commands such as REMOVE KEY.
func (c *Command) Serialize() ([]byte, error) {
	if len(c.Data) > 255 {
		return nil, errors.Errorf("apdu: command data too long: %d bytes", len(c.Data))
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(c.Cla)
	buf.WriteByte(c.Ins)
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)
	if len(c.Data) > 0 {
		buf.WriteByte(byte(len(c.Data)))
		buf.Write(c.Data)
	}
	return buf.Bytes(), nil
}

// Response represents an application data unit received from the card:
// the response data followed by the two status-word bytes.
type Response struct {
	Data []byte
	Sw1  byte
	Sw2  byte
}

// ParseResponse splits a raw card response into data and status word. The
// last two bytes are always SW1/SW2, even for a zero-length payload.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < 2 {
		return nil, errors.Errorf("apdu: response too short: %d bytes", len(raw))
	}
	return &Response{
		Data: raw[:len(raw)-2],
		Sw1:  raw[len(raw)-2],
		Sw2:  raw[len(raw)-1],
	}, nil
}

// SW returns the response's status word as a single 16-bit value.
func (r *Response) SW() StatusWord {
	return StatusWord(binary.BigEndian.Uint16([]byte{r.Sw1, r.Sw2}))
}

// IsOK reports whether the response's status word is 0x9000.
func (r *Response) IsOK() bool {
	return r.SW() == SW9000
}
