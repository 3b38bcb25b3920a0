// disk.go - in-memory floppy disk image

package agnuscore

import "hash/fnv"

// Disk is the in-memory track-byte container a Drive reads and writes.
// Building one from an ADF/DMS/other file format is explicitly out of
// scope (spec.md §1's file-format-parser exclusion); callers decode a
// disk image elsewhere and hand this core the raw per-track MFM bytes.
type Disk struct {
	tracks          [][]byte
	writeProtected  bool
}

// NewBlankDisk returns an unformatted disk of numTracks tracks, each
// trackSize bytes, all zeroed - suitable for write tests.
func NewBlankDisk(numTracks, trackSize int) *Disk {
	d := &Disk{tracks: make([][]byte, numTracks)}
	for i := range d.tracks {
		d.tracks[i] = make([]byte, trackSize)
	}
	return d
}

// NewDiskFromTracks wraps already-decoded track data without copying.
func NewDiskFromTracks(tracks [][]byte, writeProtected bool) *Disk {
	return &Disk{tracks: tracks, writeProtected: writeProtected}
}

// NumTracks returns the track count.
func (d *Disk) NumTracks() int { return len(d.tracks) }

// TrackSize returns the byte length of track, or 0 if out of range.
func (d *Disk) TrackSize(track int) int {
	if track < 0 || track >= len(d.tracks) {
		return 0
	}
	return len(d.tracks[track])
}

// WriteProtected reports the disk's write-protect tab state.
func (d *Disk) WriteProtected() bool { return d.writeProtected }

// SetWriteProtected sets the write-protect tab.
func (d *Disk) SetWriteProtected(v bool) { d.writeProtected = v }

// ReadByte returns the byte at offset within track, and false if either
// index is out of range.
func (d *Disk) ReadByte(track, offset int) (byte, bool) {
	if track < 0 || track >= len(d.tracks) {
		return 0, false
	}
	t := d.tracks[track]
	if offset < 0 || offset >= len(t) {
		return 0, false
	}
	return t[offset], true
}

// WriteByte stores v at offset within track. It returns ErrWriteProtected
// if the disk's write-protect tab is set, and silently ignores an
// out-of-range index (mirroring vAmiga's head-past-end-of-track clamp).
func (d *Disk) WriteByte(track, offset int, v byte) error {
	if d.writeProtected {
		return ErrWriteProtected
	}
	if track < 0 || track >= len(d.tracks) {
		return nil
	}
	t := d.tracks[track]
	if offset < 0 || offset >= len(t) {
		return nil
	}
	t[offset] = v
	return nil
}

// Fingerprint returns a content hash of every track, using the same FNV
// approach vAmiga uses to detect whether a disk image actually changed
// (util::fnv32/fnv64) rather than a third-party hashing library, since
// none appears anywhere in the retrieved corpus.
func (d *Disk) Fingerprint() uint64 {
	h := fnv.New64a()
	for _, t := range d.tracks {
		h.Write(t)
	}
	return h.Sum64()
}
