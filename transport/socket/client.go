/*
NAME
  client.go

DESCRIPTION
  client.go implements the socket client side: connect-with-retry to a
  unix endpoint, then block-read one framed height map at a time.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package socket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/ausocean/depth/checksum"
)

// ErrNoFrame is returned by Latest on a malformed header, wrong version,
// or short read; the connection is closed in that case.
var ErrNoFrame = errors.New("socket: no frame available")

const (
	probeInterval = 200 * time.Millisecond
	retryBackoff  = 50 * time.Millisecond
)

// Frame is one decoded frame read from the wire.
type Frame struct {
	FrameID           uint64
	TimestampNS       uint64
	Width, Height     uint32
	Heights           []float32
	Checksum          uint32
	ChecksumAlgorithm uint32
}

// ClientStats mirrors a client's stats() surface (§6).
type ClientStats struct {
	FramesObserved   uint64
	DistinctFrames   uint64
	ChecksumPresent  uint64
	ChecksumVerified uint64
	ChecksumMismatch uint64
	LastFrameID      uint64
}

// Client connects to a socket endpoint and reads framed height maps.
type Client struct {
	conn net.Conn

	stats       ClientStats
	lastFrameID uint64
	haveLast    bool
}

// Dial connects to endpoint (an "unix:<path>" spec), retrying with a
// per-attempt writability probe until timeout elapses.
func Dial(endpoint string, timeout time.Duration) (*Client, error) {
	network, address, err := Endpoint(endpoint)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) || lastErr == nil {
		conn, err := net.DialTimeout(network, address, probeInterval)
		if err == nil {
			return &Client{conn: conn}, nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(retryBackoff)
	}
	return nil, fmt.Errorf("socket: could not connect to %s: %w", endpoint, lastErr)
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Latest block-reads one full frame (header then payload). A malformed
// magic, unexpected version, or short read closes the connection and
// returns ErrNoFrame.
func (c *Client) Latest() (Frame, error) {
	header := make([]byte, headerBytes)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		c.conn.Close()
		return Frame{}, ErrNoFrame
	}
	if string(header[0:4]) != wireMagic {
		c.conn.Close()
		return Frame{}, ErrNoFrame
	}
	if binary.LittleEndian.Uint16(header[4:6]) != wireVersion {
		c.conn.Close()
		return Frame{}, ErrNoFrame
	}
	if binary.LittleEndian.Uint16(header[6:8]) != headerBytes {
		c.conn.Close()
		return Frame{}, ErrNoFrame
	}

	f := Frame{
		FrameID:           binary.LittleEndian.Uint64(header[8:16]),
		TimestampNS:       binary.LittleEndian.Uint64(header[16:24]),
		Width:             binary.LittleEndian.Uint32(header[24:28]),
		Height:            binary.LittleEndian.Uint32(header[28:32]),
		Checksum:          binary.LittleEndian.Uint32(header[36:40]),
		ChecksumAlgorithm: binary.LittleEndian.Uint32(header[40:44]),
	}
	floatCount := binary.LittleEndian.Uint32(header[32:36])

	payload := make([]byte, int(floatCount)*4)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		c.conn.Close()
		return Frame{}, ErrNoFrame
	}
	f.Heights = make([]float32, floatCount)
	for i := range f.Heights {
		f.Heights[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4 : i*4+4]))
	}

	c.stats.FramesObserved++
	if !c.haveLast || f.FrameID != c.lastFrameID {
		c.stats.DistinctFrames++
		c.lastFrameID = f.FrameID
		c.haveLast = true
	}
	c.stats.LastFrameID = f.FrameID
	if f.ChecksumAlgorithm != checksum.AlgorithmNone {
		c.stats.ChecksumPresent++
	}

	return f, nil
}

// VerifyChecksum recomputes the CRC-32 over f.Heights and reports
// whether it matches f.Checksum. A zero checksum means "not computed".
func (c *Client) VerifyChecksum(f Frame) bool {
	if f.ChecksumAlgorithm == checksum.AlgorithmNone || f.Checksum == 0 {
		return true
	}
	valid := checksum.Float32s(f.Heights) == f.Checksum
	if valid {
		c.stats.ChecksumVerified++
	} else {
		c.stats.ChecksumMismatch++
	}
	return valid
}

// Stats returns the client's running counters.
func (c *Client) Stats() ClientStats {
	return c.stats
}
