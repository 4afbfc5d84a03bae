// Package statsstream implements the per-node telemetry stream: a Streamer
// opens a connection for one hostname, forwards each sample to the owning
// node state machine's stats observer, and reconnects with backoff on
// stream end.
//
// The wire framing below is a length-prefixed binary protocol over mutual
// TLS carrying one-way periodic bandwidth samples.
package statsstream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// frame wire layout:
//   uint32 little-endian total length (everything after this field)
//   uint16 little-endian hostname length
//   hostname bytes
//   float64 little-endian tx_bps
//   float64 little-endian rx_bps
//   int64 little-endian unix nanosecond timestamp

func encodeFrame(hostname string, txBps, rxBps float64, ts time.Time) []byte {
	hostBytes := []byte(hostname)
	body := make([]byte, 2+len(hostBytes)+8+8+8)
	binary.LittleEndian.PutUint16(body[0:2], uint16(len(hostBytes)))
	copy(body[2:2+len(hostBytes)], hostBytes)
	off := 2 + len(hostBytes)
	binary.LittleEndian.PutUint64(body[off:off+8], math.Float64bits(txBps))
	binary.LittleEndian.PutUint64(body[off+8:off+16], math.Float64bits(rxBps))
	binary.LittleEndian.PutUint64(body[off+16:off+24], uint64(ts.UnixNano()))

	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

func decodeFrame(r io.Reader) (hostname string, txBps, rxBps float64, ts time.Time, err error) {
	var lengthBuf [4]byte
	if _, err = io.ReadFull(r, lengthBuf[:]); err != nil {
		return "", 0, 0, time.Time{}, err
	}
	length := binary.LittleEndian.Uint32(lengthBuf[:])
	if length < 2 {
		return "", 0, 0, time.Time{}, fmt.Errorf("statsstream: frame too short (%d bytes)", length)
	}

	body := make([]byte, length)
	if _, err = io.ReadFull(r, body); err != nil {
		return "", 0, 0, time.Time{}, err
	}

	hostLen := binary.LittleEndian.Uint16(body[0:2])
	if int(2+hostLen+24) > len(body) {
		return "", 0, 0, time.Time{}, fmt.Errorf("statsstream: malformed frame")
	}
	hostname = string(body[2 : 2+hostLen])
	off := int(2 + hostLen)
	txBps = math.Float64frombits(binary.LittleEndian.Uint64(body[off : off+8]))
	rxBps = math.Float64frombits(binary.LittleEndian.Uint64(body[off+8 : off+16]))
	nanos := int64(binary.LittleEndian.Uint64(body[off+16 : off+24]))
	ts = time.Unix(0, nanos)
	return hostname, txBps, rxBps, ts, nil
}
