package securechannel

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapfPreservesKindForErrorsIs(t *testing.T) {
	err := wrapf(ErrOpenFailed, nil, "open secure channel: sw=0x%04x", 0x6A80)
	require.ErrorIs(t, err, ErrOpenFailed)
	require.NotErrorIs(t, err, ErrMutualAuthFailed)
	require.Contains(t, err.Error(), "0x6a80")
}

func TestWrapfFoldsCauseIntoMessage(t *testing.T) {
	cause := errors.New("card unplugged")
	err := wrapf(ErrTransport, cause, "transmit ins=0x%02x", 0x10)
	require.ErrorIs(t, err, ErrTransport)
	require.Contains(t, err.Error(), "card unplugged")
}
