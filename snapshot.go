// snapshot.go - persisted chipset state

package agnuscore

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	snapshotMagic   = "AGNS"
	snapshotVersion = 1
)

// Marshal serializes the chipset's state into a flat, version-tagged,
// big-endian byte stream, per spec.md §6: magic, version, then one
// section per component in declaration order, then one presence-flag +
// blob pair per drive. Byte order is big-endian throughout, matching
// on-disk tradition for 68000-native data - the one place this core
// departs from the teacher's little-endian debug_snapshot.go convention,
// per spec.md §6's explicit requirement.
func (cs *Chipset) Marshal() ([]byte, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString(snapshotMagic)
	writeU32(&buf, snapshotVersion)

	writeU64(&buf, uint64(cs.Clock.Now()))
	writeI32(&buf, int32(cs.Beam.Line()))
	writeBool(&buf, cs.Beam.longFrame)

	writeI32(&buf, int32(cs.Copper.state))
	writeBool(&buf, cs.Copper.cdang)
	writeU32(&buf, cs.Copper.coplc[0])
	writeU32(&buf, cs.Copper.coplc[1])
	writeU32(&buf, cs.Copper.coppc)

	writeI32(&buf, int32(cs.Disk.state))
	writeU16(&buf, cs.Disk.dsklen)
	writeU16(&buf, cs.Disk.dsksync)
	writeU32(&buf, cs.Disk.dskpt)
	writeI32(&buf, int32(cs.Disk.wordsRemaining))

	for _, d := range cs.Drives {
		hasDisk := d != nil && d.HasDisk()
		writeBool(&buf, hasDisk)
		if !hasDisk {
			continue
		}
		writeI32(&buf, int32(d.cylinder))
		writeI32(&buf, int32(d.side))
		tracks := d.disk.tracks
		writeU32(&buf, uint32(len(tracks)))
		for _, t := range tracks {
			writeU32(&buf, uint32(len(t)))
		}
		var raw bytes.Buffer
		for _, t := range tracks {
			raw.Write(t)
		}
		var compressed bytes.Buffer
		gz := gzip.NewWriter(&compressed)
		if _, err := gz.Write(raw.Bytes()); err != nil {
			return nil, fmt.Errorf("compressing drive track data: %w", err)
		}
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("closing gzip writer: %w", err)
		}
		writeU32(&buf, uint32(compressed.Len()))
		buf.Write(compressed.Bytes())
	}

	return buf.Bytes(), nil
}

// UnmarshalChipset reconstructs a chipset previously written by Marshal.
// cfg and mem are supplied fresh by the caller, exactly as at construction
// time - only component state is restored, not wiring.
func UnmarshalChipset(data []byte, cfg ChipsetConfig, mem ChipMemory) (*Chipset, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return nil, fmt.Errorf("invalid snapshot magic: %q", string(magic))
	}
	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", version)
	}

	cs := NewChipset(cfg, mem)

	clockNow, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("reading clock: %w", err)
	}
	cs.Clock.clock = Cycle(clockNow)

	line, err := readI32(r)
	if err != nil {
		return nil, fmt.Errorf("reading beam line: %w", err)
	}
	cs.Beam.line = int(line)
	longFrame, err := readBool(r)
	if err != nil {
		return nil, fmt.Errorf("reading long frame flag: %w", err)
	}
	cs.Beam.longFrame = longFrame

	copState, err := readI32(r)
	if err != nil {
		return nil, fmt.Errorf("reading copper state: %w", err)
	}
	cs.Copper.state = CopperState(copState)
	cdang, err := readBool(r)
	if err != nil {
		return nil, fmt.Errorf("reading cdang: %w", err)
	}
	cs.Copper.cdang = cdang
	lc0, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading coplc[0]: %w", err)
	}
	lc1, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading coplc[1]: %w", err)
	}
	cs.Copper.coplc = [2]uint32{lc0, lc1}
	pc, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading coppc: %w", err)
	}
	cs.Copper.coppc = pc

	diskState, err := readI32(r)
	if err != nil {
		return nil, fmt.Errorf("reading disk controller state: %w", err)
	}
	cs.Disk.state = DiskState(diskState)
	dsklen, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("reading dsklen: %w", err)
	}
	cs.Disk.dsklen = dsklen
	dsksync, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("reading dsksync: %w", err)
	}
	cs.Disk.dsksync = dsksync
	dskpt, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading dskpt: %w", err)
	}
	cs.Disk.dskpt = dskpt
	wordsRemaining, err := readI32(r)
	if err != nil {
		return nil, fmt.Errorf("reading words remaining: %w", err)
	}
	cs.Disk.wordsRemaining = int(wordsRemaining)

	for i := range cs.Drives {
		hasDisk, err := readBool(r)
		if err != nil {
			return nil, fmt.Errorf("reading drive %d presence flag: %w", i, err)
		}
		if !hasDisk {
			continue
		}
		cyl, err := readI32(r)
		if err != nil {
			return nil, fmt.Errorf("reading drive %d cylinder: %w", i, err)
		}
		side, err := readI32(r)
		if err != nil {
			return nil, fmt.Errorf("reading drive %d side: %w", i, err)
		}
		numTracks, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("reading drive %d track count: %w", i, err)
		}
		sizes := make([]int, numTracks)
		total := 0
		for t := range sizes {
			sz, err := readU32(r)
			if err != nil {
				return nil, fmt.Errorf("reading drive %d track %d size: %w", i, t, err)
			}
			sizes[t] = int(sz)
			total += sizes[t]
		}
		compressedLen, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("reading drive %d compressed length: %w", i, err)
		}
		compressed := make([]byte, compressedLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return nil, fmt.Errorf("reading drive %d compressed data: %w", i, err)
		}
		gz, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("opening gzip reader for drive %d: %w", i, err)
		}
		raw := make([]byte, total)
		if _, err := io.ReadFull(gz, raw); err != nil {
			return nil, fmt.Errorf("decompressing drive %d track data: %w", i, err)
		}
		gz.Close()
		tracks := make([][]byte, numTracks)
		off := 0
		for t := range tracks {
			tracks[t] = raw[off : off+sizes[t]]
			off += sizes[t]
		}
		d := cs.Drives[i]
		d.disk = NewDiskFromTracks(tracks, false)
		d.cylinder = int(cyl)
		d.side = int(side)
	}

	return cs, nil
}

func writeU16(buf *bytes.Buffer, v uint16) { binary.Write(buf, binary.BigEndian, v) }
func writeU32(buf *bytes.Buffer, v uint32) { binary.Write(buf, binary.BigEndian, v) }
func writeU64(buf *bytes.Buffer, v uint64) { binary.Write(buf, binary.BigEndian, v) }
func writeI32(buf *bytes.Buffer, v int32)  { binary.Write(buf, binary.BigEndian, v) }
func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readU16(r io.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readI32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readBool(r io.Reader) (bool, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}
