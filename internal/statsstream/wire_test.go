package statsstream

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	ts := time.Now().Truncate(time.Nanosecond)
	frame := encodeFrame("edge-eu-abcdefgh.nodes.example.com", 1234.5, 678.9, ts)

	hostname, tx, rx, decodedTs, err := decodeFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	require.Equal(t, "edge-eu-abcdefgh.nodes.example.com", hostname)
	require.InDelta(t, 1234.5, tx, 0.0001)
	require.InDelta(t, 678.9, rx, 0.0001)
	require.True(t, decodedTs.Equal(ts))
}

func TestDecodeFrameTruncatedErrors(t *testing.T) {
	frame := encodeFrame("h", 1, 2, time.Now())
	_, _, _, _, err := decodeFrame(bytes.NewReader(frame[:len(frame)-4]))
	require.Error(t, err)
}
