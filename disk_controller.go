// disk_controller.go - Paula's disk controller: FIFO, DMA, byte pacing

package agnuscore

// Register bit layout for DSKLEN (spec.md §6).
const (
	dsklenDMAEN = 1 << 15
	dsklenWRITE = 1 << 14
	dsklenMask  = 0x3FFF
)

// DSKBYTR bit layout: bit15 DSKBYT (valid byte ready), bit14 DMAON,
// bit12 WORDEQUV (word sync matched), bits7-0 the byte itself.
const (
	dskbytrValid    = 1 << 15
	dskbytrDMAOn    = 1 << 14
	dskbytrWordSync = 1 << 12
)

// dskbytrValidWindow is the number of cycles after a byte arrives that its
// DSKBYT valid bit remains set, resolving spec.md's open question in
// favour of vAmiga's documented value (agnus->clock - incomingCycle <= 7).
const dskbytrValidWindow = 7

// diskByteCycles is the pacing interval between successive FIFO bytes at
// 1x acceleration, matching vAmiga's DMA_CYCLES(56) per-byte service
// interval for the DSK slot.
const diskByteCycles = 56

// turboCompletionDelay is the fixed delay, after a turbo transfer drains
// its FIFO, before the completion interrupt is raised (vAmiga's
// DMA_CYCLES(512) in performTurboDMA).
const turboCompletionDelay = 512

// DiskState names a step of the disk controller's transfer state machine.
type DiskState int

const (
	DiskOff DiskState = iota
	DiskWaitSync
	DiskRead
	DiskWrite
	DiskFlush
)

// fifoDepth is the disk controller's FIFO depth in bytes (6 bytes == 3
// words, per spec.md §3).
const fifoDepth = 6

// DiskController is Paula's MFM disk transfer engine: a 6-byte FIFO fed or
// drained one byte at a time by the selected drive's rotation, paced by a
// DSK scheduler slot, with a word-level DMA path that moves FIFO contents
// to/from chip memory, and a turbo-mode fast path that bypasses per-byte
// pacing entirely for non-hardware-accurate fast disk access.
type DiskController struct {
	state DiskState

	dsklenLatched uint16 // first of the double-write pair
	dsklenArmed   bool   // a first write is pending a confirming second write
	dsklen        uint16 // committed value
	dsksync       uint16
	dskpt         uint32

	fifo    [fifoDepth]byte
	fifoLen int

	incomingCycle Cycle
	lastByte      byte
	wordSyncSeen  bool
	syncWindow    uint16 // last two bytes shifted in while waiting for sync

	wordsRemaining int
	turbo          bool

	irqPending     bool
	syncIRQPending bool
}

func NewDiskController() *DiskController {
	dc := &DiskController{}
	dc.Reset()
	return dc
}

func (dc *DiskController) Reset() {
	dc.state = DiskOff
	dc.dsklenLatched = 0
	dc.dsklenArmed = false
	dc.dsklen = 0
	dc.dsksync = 0x4489
	dc.dskpt = 0
	dc.fifo = [fifoDepth]byte{}
	dc.fifoLen = 0
	dc.incomingCycle = NeverScheduled
	dc.lastByte = 0
	dc.wordSyncSeen = false
	dc.syncWindow = 0
	dc.wordsRemaining = 0
	dc.turbo = false
	dc.irqPending = false
	dc.syncIRQPending = false
}

// WriteDSKLEN implements the double-write commit protocol: the first
// write (with DMAEN set) is latched but does not start anything; only a
// second write, also with DMAEN set, actually commits the length and
// direction and arms the transfer. Any write without DMAEN cancels an
// in-flight transfer immediately, matching vAmiga's pokeDSKLEN.
func (dc *DiskController) WriteDSKLEN(v uint16) {
	if v&dsklenDMAEN == 0 {
		dc.dsklenArmed = false
		dc.state = DiskOff
		dc.wordsRemaining = 0
		return
	}
	if !dc.dsklenArmed {
		dc.dsklenLatched = v
		dc.dsklenArmed = true
		return
	}
	dc.dsklenArmed = false
	dc.dsklen = v
	dc.wordsRemaining = int(v & dsklenMask)
	if dc.wordsRemaining == 0 {
		dc.state = DiskOff
		return
	}
	clearFifo(dc)
	if v&dsklenWRITE != 0 {
		dc.state = DiskWrite
	} else {
		dc.state = DiskWaitSync
		dc.syncWindow = 0
		dc.wordSyncSeen = false
	}
}

// WriteDSKSYNC sets the MFM word the controller waits for before starting
// a read transfer (default 0x4489).
func (dc *DiskController) WriteDSKSYNC(v uint16) { dc.dsksync = v }

// WriteDSKPTH/WriteDSKPTL set the chip-memory pointer DMA reads into or
// writes from.
func (dc *DiskController) WriteDSKPTH(v uint16) {
	dc.dskpt = (dc.dskpt & 0x0000FFFF) | uint32(v)<<16
}
func (dc *DiskController) WriteDSKPTL(v uint16) {
	dc.dskpt = (dc.dskpt &^ 0x0000FFFF) | uint32(v&0xFFFE)
}

// ReadDSKBYTR reports the last byte received and its valid-bit window.
func (dc *DiskController) ReadDSKBYTR(now Cycle) uint16 {
	var r uint16
	if dc.state != DiskOff {
		r |= dskbytrDMAOn
	}
	if dc.incomingCycle != NeverScheduled && now-dc.incomingCycle <= dskbytrValidWindow {
		r |= dskbytrValid
		r |= uint16(dc.lastByte)
	}
	if dc.wordSyncSeen {
		r |= dskbytrWordSync
	}
	return r
}

func clearFifo(dc *DiskController) { dc.fifoLen = 0 }

func writeFifo(dc *DiskController, b byte) bool {
	if dc.fifoLen >= fifoDepth {
		return false
	}
	dc.fifo[dc.fifoLen] = b
	dc.fifoLen++
	return true
}

func readFifo(dc *DiskController) (byte, bool) {
	if dc.fifoLen == 0 {
		return 0, false
	}
	b := dc.fifo[0]
	copy(dc.fifo[:dc.fifoLen-1], dc.fifo[1:dc.fifoLen])
	dc.fifoLen--
	return b, true
}

// SetAcceleration records whether factor selects turbo: a negative factor
// does (the exact magnitude is meaningless, matching vAmiga's DriveTypes.h
// convention), a positive one does not. The recorded flag is not consulted
// when a transfer is armed: Chipset.armDiskTransfer picks the turbo or
// byte-paced path, and the bytes serviced per DSK slot, from the selected
// drive's own acceleration factor.
func (dc *DiskController) SetAcceleration(factor int) { dc.turbo = factor < 0 }

// ServiceByte is called from the DSK scheduler slot every diskByteCycles
// (scaled by drive acceleration). It pulls or pushes one byte from the
// selected drive's head and advances the transfer state machine; it is
// the byte-pacing path used when turbo is off. mem lets it drain the FIFO
// into chip memory when reading, and refill it from chip memory one word
// at a time when writing, as performDMA does in the original.
func (dc *DiskController) ServiceByte(now Cycle, drive *Drive, mem ChipMemory) {
	if dc.state == DiskOff || drive == nil {
		return
	}
	switch dc.state {
	case DiskWaitSync:
		b, ok := drive.ReadHead()
		drive.Rotate()
		if !ok {
			return
		}
		dc.lastByte = b
		dc.incomingCycle = now
		dc.syncWindow = dc.syncWindow<<8 | uint16(b)
		if dc.syncWindow == dc.dsksync {
			dc.wordSyncSeen = true
			dc.syncIRQPending = true
			dc.state = DiskRead
		}
	case DiskRead:
		b, ok := drive.ReadHead()
		drive.Rotate()
		if !ok {
			return
		}
		dc.lastByte = b
		dc.incomingCycle = now
		if writeFifo(dc, b) {
			dc.drainToMemoryIfWordReady(mem)
		}
		if dc.wordsRemaining <= 0 && dc.fifoLen == 0 {
			dc.finish()
		}
	case DiskWrite:
		if dc.fifoLen == 0 && dc.wordsRemaining > 0 {
			w := mem.ReadWord(dc.dskpt)
			writeFifo(dc, byte(w>>8))
			writeFifo(dc, byte(w))
			dc.dskpt += 2
			dc.wordsRemaining--
		}
		b, ok := readFifo(dc)
		if !ok {
			dc.state = DiskFlush
			return
		}
		if err := drive.WriteHead(b); err == nil {
			drive.Rotate()
		}
		dc.lastByte = b
		dc.incomingCycle = now
		if dc.wordsRemaining <= 0 && dc.fifoLen == 0 {
			dc.finish()
		}
	case DiskFlush:
		dc.finish()
	}
}

// ServiceSlot is called from the DSK scheduler slot and runs iterations
// byte-pacing steps instead of exactly one, implementing the 1x/2x/4x/8x
// acceleration multiplier ("performs this 1, 2, 4 or 8 times per slot") for
// drives that stay on the byte-paced FIFO path. Each iteration is a full
// ServiceByte step, so the FIFO and word-drain invariants it maintains
// (at most fifoDepth bytes buffered, a word drained to memory as soon as
// two bytes are available) hold after every iteration, not just the last.
func (dc *DiskController) ServiceSlot(now Cycle, drive *Drive, mem ChipMemory, iterations int) {
	if iterations < 1 {
		iterations = 1
	}
	for i := 0; i < iterations && dc.state != DiskOff; i++ {
		dc.ServiceByte(now, drive, mem)
	}
}

// drainToMemoryIfWordReady moves two FIFO bytes (one word) to chip memory
// at dskpt whenever enough have accumulated, decrementing wordsRemaining -
// the FIFO-driven performDMARead path.
func (dc *DiskController) drainToMemoryIfWordReady(mem ChipMemory) {
	if dc.fifoLen < 2 || dc.wordsRemaining <= 0 {
		return
	}
	hi, _ := readFifo(dc)
	lo, _ := readFifo(dc)
	mem.WriteWord(dc.dskpt, uint16(hi)<<8|uint16(lo))
	dc.dskpt += 2
	dc.wordsRemaining--
}

func (dc *DiskController) finish() {
	dc.state = DiskOff
	dc.irqPending = true
}

// TurboTransfer performs an entire DMA transfer in one call, bypassing the
// FIFO pacing path: every word is moved directly between the drive's
// track data and chip memory, the FIFO drains synchronously, and only
// then is the completion interrupt scheduled turboCompletionDelay cycles
// later - resolving spec.md's turbo-ordering open question per vAmiga's
// performTurboWrite/performTurboDMA ("play safe": drain before IRQ).
func (dc *DiskController) TurboTransfer(now Cycle, drive *Drive, mem ChipMemory, write bool) Cycle {
	if !write {
		drive.SeekToSyncMark()
	}
	for dc.wordsRemaining > 0 {
		if write {
			w := mem.ReadWord(dc.dskpt)
			_ = drive.WriteHead(byte(w >> 8))
			drive.Rotate()
			_ = drive.WriteHead(byte(w))
			drive.Rotate()
		} else {
			hi, _ := drive.ReadHead()
			drive.Rotate()
			lo, _ := drive.ReadHead()
			drive.Rotate()
			mem.WriteWord(dc.dskpt, uint16(hi)<<8|uint16(lo))
		}
		dc.dskpt += 2
		dc.wordsRemaining--
	}
	dc.state = DiskOff
	return now + turboCompletionDelay
}

// IRQPending reports, and clears, a pending disk-block-done interrupt.
func (dc *DiskController) IRQPending() bool {
	p := dc.irqPending
	dc.irqPending = false
	return p
}

// SyncIRQPending reports, and clears, a pending disk-sync-match interrupt,
// raised the cycle the word-sync comparator matches dsksync.
func (dc *DiskController) SyncIRQPending() bool {
	p := dc.syncIRQPending
	dc.syncIRQPending = false
	return p
}
