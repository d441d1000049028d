/*
NAME
  reader.go

DESCRIPTION
  reader.go implements the shared-memory reader side: open a published
  segment read-only and observe its most recently published frame.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ausocean/depth/checksum"
)

// ErrNoFrame is returned by Latest when the producer has not yet
// published a ready frame.
var ErrNoFrame = errors.New("shm: no frame available")

// FrameView is a snapshot of the segment's active slot at the time of
// the Latest call. Heights is copied out of the segment, so it stays
// stable across later polls.
type FrameView struct {
	FrameID           uint64
	TimestampNS       uint64
	Width, Height     uint32
	Heights           []float32
	Checksum          uint32
	ChecksumAlgorithm uint32
}

// ReaderStats mirrors a reader's stats() surface (§6).
type ReaderStats struct {
	FramesObserved   uint64
	DistinctFrames   uint64
	ChecksumPresent  uint64
	ChecksumVerified uint64
	ChecksumMismatch uint64
	LastFrameID      uint64
}

// Reader maps a published segment read-only and polls for the latest
// frame.
type Reader struct {
	file *os.File
	seg  []byte

	maxWidth, maxHeight uint32

	stats       ReaderStats
	lastFrameID uint64
	haveLast    bool
}

// Open maps the segment at path read-only, sized for maxWidth x
// maxHeight, and validates its header. Opening before the producer has
// created the segment fails gracefully with the underlying os error.
func Open(path string, maxWidth, maxHeight uint32) (*Reader, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: could not open segment: %w", err)
	}

	size := segmentSize(maxWidth, maxHeight)
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: could not stat segment: %w", err)
	}
	if info.Size() < size {
		f.Close()
		return nil, fmt.Errorf("shm: segment too small for declared capacity: have %d, want %d", info.Size(), size)
	}

	seg, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: could not map segment: %w", err)
	}

	gotMagic := binary.LittleEndian.Uint32(seg[0:4])
	gotVersion := binary.LittleEndian.Uint32(seg[4:8])
	if gotMagic != magic {
		unix.Munmap(seg)
		f.Close()
		return nil, fmt.Errorf("shm: bad magic %#x, want %#x", gotMagic, magic)
	}
	if gotVersion != version {
		unix.Munmap(seg)
		f.Close()
		return nil, fmt.Errorf("shm: unsupported version %d, want %d", gotVersion, version)
	}

	return &Reader{file: f, seg: seg, maxWidth: maxWidth, maxHeight: maxHeight}, nil
}

// Close unmaps the segment and closes the file descriptor.
func (r *Reader) Close() error {
	if err := unix.Munmap(r.seg); err != nil {
		return err
	}
	return r.file.Close()
}

// Latest returns the most recently published frame, or ErrNoFrame if the
// producer has not yet published one.
func (r *Reader) Latest() (FrameView, error) {
	active := atomic.LoadUint32(activeIndexPtr(r.seg))
	ready := atomic.LoadUint32(readyPtr(r.seg, int(active)))
	if ready != 1 {
		return FrameView{}, ErrNoFrame
	}

	meta := r.seg[metaOffset(int(active)) : metaOffset(int(active))+bufferMetaSize]
	fv := FrameView{
		FrameID:           binary.LittleEndian.Uint64(meta[0:8]),
		TimestampNS:       binary.LittleEndian.Uint64(meta[8:16]),
		Width:             binary.LittleEndian.Uint32(meta[16:20]),
		Height:            binary.LittleEndian.Uint32(meta[20:24]),
		Checksum:          binary.LittleEndian.Uint32(meta[28:32]),
		ChecksumAlgorithm: binary.LittleEndian.Uint32(meta[32:36]),
	}
	floatCount := binary.LittleEndian.Uint32(meta[24:28])

	off := payloadOffset(int(active), r.maxWidth, r.maxHeight)
	payload := r.seg[off : off+int64(floatCount)*4]
	fv.Heights = make([]float32, floatCount)
	for i := range fv.Heights {
		fv.Heights[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4 : i*4+4]))
	}

	r.stats.FramesObserved++
	if !r.haveLast || fv.FrameID != r.lastFrameID {
		r.stats.DistinctFrames++
		r.lastFrameID = fv.FrameID
		r.haveLast = true
	}
	r.stats.LastFrameID = fv.FrameID
	if fv.ChecksumAlgorithm != checksum.AlgorithmNone {
		r.stats.ChecksumPresent++
	}

	return fv, nil
}

// VerifyChecksum recomputes the CRC-32 over fv.Heights and reports
// whether it matches fv.Checksum. A zero checksum means "not computed"
// and is never flagged as a mismatch.
func (r *Reader) VerifyChecksum(fv FrameView) (valid bool) {
	if fv.ChecksumAlgorithm == checksum.AlgorithmNone || fv.Checksum == 0 {
		return true
	}
	valid = checksum.Float32s(fv.Heights) == fv.Checksum
	if valid {
		r.stats.ChecksumVerified++
	} else {
		r.stats.ChecksumMismatch++
	}
	return valid
}

// Stats returns the reader's running counters.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}
