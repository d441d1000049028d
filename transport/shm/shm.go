/*
NAME
  shm.go

DESCRIPTION
  shm.go implements the shared-memory double-buffer transport: a single
  producer publishes a fused height map into the inactive slot of a
  memory-mapped segment, flipping active_index under a release/acquire
  protocol so concurrent readers never observe a torn frame.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package shm implements the shared-memory double-buffer transport
// (§4.7/§4.8): a Publisher maps a segment and writes alternating frames
// into its inactive slot, and a Reader maps the same segment read-only
// and observes the most recently published frame.
//
// The segment is memory-mapped with golang.org/x/sys/unix, the same
// mmap/munmap wrapper style used elsewhere in the example corpus for
// direct physical/shared memory access.
package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ausocean/depth/checksum"
	"github.com/ausocean/utils/bitrate"
	"github.com/ausocean/utils/logging"
)

const (
	magic   uint32 = 0x43414C44
	version uint32 = 2

	headerSize     = 16 // magic, version, active_index, reserved
	bufferMetaSize = 40 // frame_id, timestamp_ns, width, height, float_count, checksum, checksum_algorithm, ready
)

// segmentSize returns the total byte size of a segment sized for
// maxWidth x maxHeight float32 cells.
func segmentSize(maxWidth, maxHeight uint32) int64 {
	payload := int64(maxWidth) * int64(maxHeight) * 4
	return headerSize + 2*bufferMetaSize + 2*payload
}

// Stats mirrors the publisher's snapshotStats() counters (§4.7).
type Stats struct {
	FramesAttempted       uint64
	FramesPublished       uint64
	FramesDroppedCapacity uint64
	BytesWritten          uint64
	LastPublishFPS        float64
}

// Publisher maps a shared-memory segment and publishes fused height maps
// into it, single-producer.
type Publisher struct {
	logger logging.Logger

	path               string
	maxWidth, maxHeight uint32

	file *os.File
	seg  []byte

	checksumInterval time.Duration
	lastChecksumAt   time.Time

	rate bitrate.Calculator

	framesAttempted       uint64
	framesPublished       uint64
	framesDroppedCapacity uint64
	bytesWritten          uint64
}

// New creates (or truncates) the backing file at path and maps a segment
// sized for maxWidth x maxHeight cells. checksumInterval of 0 computes a
// checksum every frame.
func New(path string, maxWidth, maxHeight uint32, checksumInterval time.Duration, logger logging.Logger) (*Publisher, error) {
	size := segmentSize(maxWidth, maxHeight)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open segment file: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not size segment file: %w", err)
	}

	seg, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not map segment: %w", err)
	}

	binary.LittleEndian.PutUint32(seg[0:4], magic)
	binary.LittleEndian.PutUint32(seg[4:8], version)
	binary.LittleEndian.PutUint32(seg[8:12], 0)
	binary.LittleEndian.PutUint32(seg[12:16], 0)

	return &Publisher{
		logger:           logger,
		path:             path,
		maxWidth:         maxWidth,
		maxHeight:        maxHeight,
		file:             f,
		seg:              seg,
		checksumInterval: checksumInterval,
	}, nil
}

// Close unmaps the segment and closes the file descriptor without
// unlinking the backing name (a separate unlink call in test teardown
// removes it from the namespace, per the documented shutdown protocol).
func (p *Publisher) Close() error {
	if err := unix.Munmap(p.seg); err != nil {
		return fmt.Errorf("could not unmap segment: %w", err)
	}
	return p.file.Close()
}

func metaOffset(slot int) int {
	return headerSize + slot*bufferMetaSize
}

func payloadOffset(slot int, maxWidth, maxHeight uint32) int64 {
	payload := int64(maxWidth) * int64(maxHeight) * 4
	return headerSize + 2*bufferMetaSize + int64(slot)*payload
}

func activeIndexPtr(seg []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&seg[8]))
}

func readyPtr(seg []byte, slot int) *uint32 {
	off := metaOffset(slot) + 36
	return (*uint32)(unsafe.Pointer(&seg[off]))
}

// Publish writes heights (row-major, width x height) into the inactive
// slot and flips active_index to make it visible to readers. Frames that
// exceed the segment's declared capacity are dropped.
func (p *Publisher) Publish(frameID, timestampNS uint64, width, height uint32, heights []float32) error {
	p.framesAttempted++
	if width > p.maxWidth || height > p.maxHeight {
		p.framesDroppedCapacity++
		if p.logger != nil {
			p.logger.Warning("dropping frame exceeding shared-memory capacity", "width", width, "height", height)
		}
		return errors.New("frame exceeds shared-memory segment capacity")
	}

	active := atomic.LoadUint32(activeIndexPtr(p.seg))
	w := 1 - active

	atomic.StoreUint32(readyPtr(p.seg, int(w)), 0)

	meta := p.seg[metaOffset(int(w)) : metaOffset(int(w))+bufferMetaSize]
	binary.LittleEndian.PutUint64(meta[0:8], frameID)
	binary.LittleEndian.PutUint64(meta[8:16], timestampNS)
	binary.LittleEndian.PutUint32(meta[16:20], width)
	binary.LittleEndian.PutUint32(meta[20:24], height)
	binary.LittleEndian.PutUint32(meta[24:28], uint32(len(heights)))

	off := payloadOffset(int(w), p.maxWidth, p.maxHeight)
	payload := p.seg[off : off+int64(len(heights))*4]
	for i, v := range heights {
		binary.LittleEndian.PutUint32(payload[i*4:i*4+4], math.Float32bits(v))
	}

	var sum uint32
	var algo uint32
	if p.dueForChecksum() {
		sum = checksum.Float32s(heights)
		algo = checksum.AlgorithmCRC32
		p.lastChecksumAt = time.Now()
	}
	binary.LittleEndian.PutUint32(meta[28:32], sum)
	binary.LittleEndian.PutUint32(meta[32:36], algo)

	atomic.StoreUint32(readyPtr(p.seg, int(w)), 1)
	atomic.StoreUint32(activeIndexPtr(p.seg), w)

	p.framesPublished++
	p.bytesWritten += uint64(len(heights)) * 4
	// Reporting one unit per publish turns the bitrate calculator's
	// bytes/sec EMA into a frames/sec EMA, matching last_publish_fps.
	p.rate.Report(1)

	return nil
}

func (p *Publisher) dueForChecksum() bool {
	if p.checksumInterval <= 0 {
		return true
	}
	return time.Since(p.lastChecksumAt) >= p.checksumInterval
}

// SnapshotStats returns the publisher's running counters (§4.7).
func (p *Publisher) SnapshotStats() Stats {
	return Stats{
		FramesAttempted:       p.framesAttempted,
		FramesPublished:       p.framesPublished,
		FramesDroppedCapacity: p.framesDroppedCapacity,
		BytesWritten:          p.bytesWritten,
		LastPublishFPS:        p.rate.Bitrate(),
	}
}
