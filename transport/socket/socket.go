/*
NAME
  socket.go

DESCRIPTION
  socket.go implements the socket publisher: one accept loop per unix
  endpoint and one independent writer goroutine per connected client,
  each buffering through a pool.Buffer so a slow client cannot block the
  frame-write hot path or other clients, following the same decoupling
  pattern as revid's rtmpSender/output routine.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package socket implements the framed socket transport (§4.9): a
// Publisher fans one encoded frame out to every connected client, and a
// Client connects (with retry) to an endpoint and reads framed height
// maps off the wire.
package socket

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ausocean/depth/checksum"
	"github.com/ausocean/utils/ioext"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

const (
	wireMagic   = "CALD"
	wireVersion = uint16(1)
	headerBytes = 48

	clientPoolReadTimeout = 5 * time.Second
	clientPoolElementSize = 1 << 16
	clientPoolNumElements = 64
)

// Endpoint parses an "unix:<path>" endpoint string, the only scheme this
// transport accepts.
func Endpoint(spec string) (network, address string, err error) {
	const prefix = "unix:"
	if !strings.HasPrefix(spec, prefix) {
		return "", "", fmt.Errorf("socket: unsupported endpoint scheme: %q", spec)
	}
	return "unix", strings.TrimPrefix(spec, prefix), nil
}

// encodeFrame writes the wire header and float payload for one frame.
func encodeFrame(frameID, timestampNS uint64, width, height uint32, heights []float32, sum, algo uint32) []byte {
	buf := make([]byte, headerBytes+len(heights)*4)
	copy(buf[0:4], wireMagic)
	binary.LittleEndian.PutUint16(buf[4:6], wireVersion)
	binary.LittleEndian.PutUint16(buf[6:8], headerBytes)
	binary.LittleEndian.PutUint64(buf[8:16], frameID)
	binary.LittleEndian.PutUint64(buf[16:24], timestampNS)
	binary.LittleEndian.PutUint32(buf[24:28], width)
	binary.LittleEndian.PutUint32(buf[28:32], height)
	binary.LittleEndian.PutUint32(buf[32:36], uint32(len(heights)))
	binary.LittleEndian.PutUint32(buf[36:40], sum)
	binary.LittleEndian.PutUint32(buf[40:44], algo)
	binary.LittleEndian.PutUint32(buf[44:48], 0) // reserved pad to a 4-field-aligned header
	for i, v := range heights {
		binary.LittleEndian.PutUint32(buf[headerBytes+i*4:headerBytes+i*4+4], math.Float32bits(v))
	}
	return buf
}

// Stats mirrors the publisher's snapshotStats() counters.
type Stats struct {
	FramesAttempted uint64
	FramesPublished uint64
	BytesWritten    uint64
	ClientCount     int
}

// Publisher accepts client connections on a unix endpoint and fans each
// published frame out to every currently connected client.
type Publisher struct {
	logger   logging.Logger
	listener net.Listener

	checksumInterval time.Duration
	lastChecksumAt   time.Time

	mu      sync.Mutex
	clients map[*clientWriter]struct{}

	framesAttempted uint64
	framesPublished uint64
	bytesWritten    uint64
}

// NewPublisher listens on endpoint (an "unix:<path>" spec) and accepts
// client connections in a background goroutine until Close is called.
func NewPublisher(endpoint string, checksumInterval time.Duration, logger logging.Logger) (*Publisher, error) {
	network, address, err := Endpoint(endpoint)
	if err != nil {
		return nil, err
	}
	_ = unlinkStaleSocket(address)

	l, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("socket: could not listen on %s: %w", endpoint, err)
	}

	p := &Publisher{
		logger:           logger,
		listener:         l,
		checksumInterval: checksumInterval,
		clients:          make(map[*clientWriter]struct{}),
	}
	go p.acceptLoop()
	return p, nil
}

func (p *Publisher) acceptLoop() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return // listener closed
		}
		cw := newClientWriter(conn, p.logger)
		p.mu.Lock()
		p.clients[cw] = struct{}{}
		p.mu.Unlock()
	}
}

// Publish fans one frame out to every connected client via
// ioext.MultiWriteCloser, matching revid's multi-sender fan-out.
func (p *Publisher) Publish(frameID, timestampNS uint64, width, height uint32, heights []float32) {
	p.framesAttempted++

	var sum, algo uint32
	if p.dueForChecksum() {
		sum = checksum.Float32s(heights)
		algo = checksum.AlgorithmCRC32
		p.lastChecksumAt = time.Now()
	}
	buf := encodeFrame(frameID, timestampNS, width, height, heights, sum, algo)

	p.mu.Lock()
	writers := make([]io.WriteCloser, 0, len(p.clients))
	for cw := range p.clients {
		if cw.closed() {
			delete(p.clients, cw)
			continue
		}
		writers = append(writers, cw)
	}
	p.mu.Unlock()

	if len(writers) > 0 {
		mw := ioext.MultiWriteCloser(writers...)
		mw.Write(buf)
	}

	p.framesPublished++
	p.bytesWritten += uint64(len(buf))
}

func (p *Publisher) dueForChecksum() bool {
	if p.checksumInterval <= 0 {
		return true
	}
	return time.Since(p.lastChecksumAt) >= p.checksumInterval
}

// SnapshotStats returns the publisher's running counters.
func (p *Publisher) SnapshotStats() Stats {
	p.mu.Lock()
	n := len(p.clients)
	p.mu.Unlock()
	return Stats{
		FramesAttempted: p.framesAttempted,
		FramesPublished: p.framesPublished,
		BytesWritten:    p.bytesWritten,
		ClientCount:     n,
	}
}

// Close closes the listening descriptor and closes every per-client
// writer at once; frames still queued in a client's buffer are not sent.
func (p *Publisher) Close() error {
	err := p.listener.Close()
	p.mu.Lock()
	for cw := range p.clients {
		cw.Close()
	}
	p.clients = nil
	p.mu.Unlock()
	return err
}

// clientWriter decouples a slow client from the publish hot path via a
// pool.Buffer and a dedicated output goroutine, mirroring rtmpSender.
type clientWriter struct {
	conn net.Conn
	log  logging.Logger
	pool *pool.Buffer
	done chan struct{}
	wg   sync.WaitGroup
}

func newClientWriter(conn net.Conn, log logging.Logger) *clientWriter {
	cw := &clientWriter{
		conn: conn,
		log:  log,
		pool: pool.NewBuffer(clientPoolNumElements, clientPoolElementSize, clientPoolReadTimeout),
		done: make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.output()
	return cw
}

func (cw *clientWriter) output() {
	defer cw.wg.Done()
	var chunk *pool.Chunk
	for {
		select {
		case <-cw.done:
			return
		default:
			if chunk == nil {
				var err error
				chunk, err = cw.pool.Next(clientPoolReadTimeout)
				switch err {
				case nil, io.EOF:
					continue
				case pool.ErrTimeout:
					continue
				default:
					if cw.log != nil {
						cw.log.Warning("client pool read error", "error", err.Error())
					}
					continue
				}
			}
			if _, err := cw.conn.Write(chunk.Bytes()); err != nil {
				if cw.log != nil {
					cw.log.Warning("client write error, closing", "error", err.Error())
				}
				cw.Close()
				return
			}
			chunk.Close()
			chunk = nil
		}
	}
}

// Write implements io.Writer by queueing d onto the client's pool
// buffer; the output goroutine drains it independently.
func (cw *clientWriter) Write(d []byte) (int, error) {
	_, err := cw.pool.Write(d)
	if err != nil {
		return 0, err
	}
	cw.pool.Flush()
	return len(d), nil
}

func (cw *clientWriter) closed() bool {
	select {
	case <-cw.done:
		return true
	default:
		return false
	}
}

// Close implements io.Closer, stopping the output goroutine and closing
// the underlying connection.
func (cw *clientWriter) Close() error {
	select {
	case <-cw.done:
	default:
		close(cw.done)
	}
	return cw.conn.Close()
}

// unlinkStaleSocket removes a stale unix socket file left behind by a
// prior run, ignoring a missing file.
func unlinkStaleSocket(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
