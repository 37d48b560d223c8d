package apdu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandSerialize(t *testing.T) {
	cmd := New(0x80, 0x20, 0x01, 0x02, []byte{0xAA, 0xBB})
	raw, err := cmd.Serialize()
	require.NoError(t, err)
	require.Equal(t, []byte{0x80, 0x20, 0x01, 0x02, 0x02, 0xAA, 0xBB}, raw)
}

func TestCommandSerializeEmptyData(t *testing.T) {
	cmd := New(0x00, 0xA4, 0x04, 0x00, nil)
	raw, err := cmd.Serialize()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xA4, 0x04, 0x00}, raw)
}

func TestCommandSerializeTooLong(t *testing.T) {
	cmd := New(0x80, 0x20, 0, 0, make([]byte, 256))
	_, err := cmd.Serialize()
	require.Error(t, err)
}

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte{0x01, 0x02, 0x03, 0x90, 0x00})
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, resp.Data)
	require.Equal(t, SW9000, resp.SW())
	require.True(t, resp.IsOK())
}

func TestParseResponseEmptyData(t *testing.T) {
	resp, err := ParseResponse([]byte{0x69, 0x82})
	require.NoError(t, err)
	require.Empty(t, resp.Data)
	require.Equal(t, SWSecurityNotSatisfied, resp.SW())
	require.False(t, resp.IsOK())
}

func TestParseResponseTooShort(t *testing.T) {
	_, err := ParseResponse([]byte{0x90})
	require.Error(t, err)
}
