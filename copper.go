// copper.go - MOVE/WAIT/SKIP list-interpreter co-processor

package agnuscore

// RegisterWriter is the sink for a copper MOVE instruction's destination
// register. Chipset implements it by dispatching into the same switch
// registers.go uses for CPU-initiated writes, so a copper MOVE and a CPU
// write to the same register go through identical validation.
type RegisterWriter interface {
	WriteRegister(addr uint16, value uint16) error
}

// Copper is the MOVE/WAIT/SKIP list interpreter. It is driven one state
// transition per call to Tick, invoked from the chipset's per-cycle
// dispatch loop when the copper slot is due; it never blocks, it only
// declines the cycle (by returning without advancing coppc) when the bus
// is unavailable or a WAIT/SKIP comparison has not yet been satisfied.
type Copper struct {
	cdang   bool      // COPCON danger bit: permits writes to addresses 0x40-0x7F
	coplc   [2]uint32 // COP1LC / COP2LC, the two list start addresses
	coppc   uint32    // current program counter into chip memory
	state   CopperState
	ir1     uint16 // first instruction word, latched during FETCH
	ins     uint16 // last fully fetched first word, for COPINS readback
	active  int    // which coplc[] the running list started from, 0 or 1
	skipNext bool  // SKIP matched: the following MOVE is discarded

	waitFirst  uint16 // first word of a WAIT/SKIP parked in CopWaitOrSkip
	waitSecond uint16 // second word of a WAIT/SKIP parked in CopWaitOrSkip
}

func NewCopper() *Copper {
	c := &Copper{}
	c.Reset()
	return c
}

func (c *Copper) Reset() {
	c.cdang = false
	c.coplc = [2]uint32{}
	c.coppc = 0
	c.state = CopIdle
	c.ir1 = 0
	c.ins = 0
	c.active = 0
	c.skipNext = false
}

// SetControl implements a write to COPCON. Only bit 1 (CDANG) is defined.
func (c *Copper) SetControl(v uint16) { c.cdang = v&0x0002 != 0 }

// SetLocationHigh/Low implement writes to COP1LCH/L and COP2LCH/L. which
// is 0 or 1.
func (c *Copper) SetLocationHigh(which int, v uint16) {
	c.coplc[which] = (c.coplc[which] & 0x0000FFFF) | uint32(v)<<16
}

func (c *Copper) SetLocationLow(which int, v uint16) {
	c.coplc[which] = (c.coplc[which] &^ 0x0000FFFF) | uint32(v&0xFFFE)
}

// Strobe implements a write to COPJMP1/COPJMP2: load coppc from coplc[which]
// and restart the fetch cycle from REQ_DMA. which is 0 or 1.
func (c *Copper) Strobe(which int) {
	c.active = which
	c.coppc = c.coplc[which]
	c.state = CopRequestDMA
}

// Instruction returns the last first-instruction-word fetched, the value
// COPINS makes visible for debugging.
func (c *Copper) Instruction() uint16 { return c.ins }

// illegalAddress reports whether addr is a protected low register that the
// danger bit must be set to write, matching vAmiga's Copper::illegalAddress:
// with the danger bit clear, anything below 0x80 is protected; with it set,
// the floor drops to 0x40 (the lowest 64 bytes stay protected regardless).
func illegalAddress(addr uint16, cdang bool) bool {
	threshold := uint16(0x80)
	if cdang {
		threshold = 0x40
	}
	return addr < threshold
}

// Tick advances the copper by one dispatch. mem supplies the instruction
// words from chip memory at coppc; regs receives MOVE destinations; arb is
// used to request the bus for FETCH and MOVE cycles; beam is this cycle's
// raster position (for WAIT/SKIP comparison); blitterBusy reports whether
// the blitter-finished condition is currently unmet. Tick returns the
// owner that ended up holding the cycle so the caller can tell whether the
// copper actually advanced.
func (c *Copper) Tick(mem ChipMemory, regs RegisterWriter, arb *Arbiter, hpos int, beam Beam, blitterBusy bool) BusOwner {
	switch c.state {
	case CopIdle:
		return BusNone

	case CopRequestDMA:
		c.state = CopFetch
		return BusNone

	case CopFetch:
		got := arb.Request(hpos, BusCopper)
		if got != BusCopper {
			return got
		}
		c.ir1 = mem.ReadWord(c.coppc)
		c.coppc += 2
		c.ins = c.ir1
		c.state = CopMoveOrWaitOrSkip
		return BusCopper

	case CopMoveOrWaitOrSkip:
		got := arb.Request(hpos, BusCopper)
		if got != BusCopper {
			return got
		}
		second := mem.ReadWord(c.coppc)
		c.coppc += 2
		if isMoveCmd(c.ir1) {
			dest := moveDestination(c.ir1)
			if c.skipNext {
				c.skipNext = false
			} else if !illegalAddress(dest, c.cdang) {
				regs.WriteRegister(dest, second)
			}
			c.state = CopRequestDMA
			return BusCopper
		}
		// WAIT or SKIP: evaluate immediately if already satisfied, else
		// park in WaitOrSkip until a future line's comparison succeeds.
		c.skipNext = false
		if c.runComparator(second, beam, blitterBusy, isSkipCmd(c.ir1, second)) {
			c.state = CopRequestDMA
		} else {
			c.state = CopWaitOrSkip
			c.waitFirst, c.waitSecond = c.ir1, second
		}
		return BusCopper

	case CopWaitOrSkip:
		if !c.runComparator(c.waitSecond, beam, blitterBusy, isSkipCmd(c.waitFirst, c.waitSecond)) {
			return BusNone
		}
		c.state = CopRequestDMA
		return BusNone

	default:
		return BusNone
	}
}

// runComparator implements the beam/mask comparison shared by WAIT and
// SKIP. For SKIP, a match means "discard the next MOVE" (handled by the
// caller setting skipNext) rather than "resume the list here"; both cases
// use the identical VP/HP/mask arithmetic, matching vAmiga's single
// runComparator used by both opcodes. Beam bit 16 is always ignored
// (copper wait positions never exceed 0xFFFF), resolving spec.md's open
// question in favour of vAmiga's own masking. The comparison is made on
// the combined (vertical<<8 | horizontal) position, not as two
// independent per-axis tests: once the beam's masked vertical position is
// strictly past the target's, the instruction matches regardless of the
// horizontal position, exactly as it would on real hardware where the
// vertical bits dominate the comparison.
func (c *Copper) runComparator(second uint16, beam Beam, blitterBusy bool, isSkip bool) bool {
	if !waitBlitterFinishDisabled(second) && blitterBusy {
		return false
	}
	target := waitBeam(c.waitOrPendingFirst())
	vMask, hMask := waitMask(second)
	line := beam.Line & 0xFFFF
	combinedMask := uint32(vMask&0xFF)<<8 | uint32(hMask&0xFF)
	combinedBeam := uint32(line&0xFF)<<8 | uint32(beam.HPos&0xFF)
	combinedTarget := uint32(target.Line&0xFF)<<8 | uint32(target.HPos&0xFF)
	matched := (combinedBeam & combinedMask) >= (combinedTarget & combinedMask)
	if isSkip {
		if matched {
			c.skipNext = true
		}
		return true // SKIP always resumes the list; it only conditionally
		// discards the following MOVE via skipNext above.
	}
	return matched
}

// waitOrPendingFirst returns the first word of whichever WAIT/SKIP
// instruction is currently being evaluated - the one just fetched, before
// it is parked, or the parked one while in CopWaitOrSkip.
func (c *Copper) waitOrPendingFirst() uint16 {
	if c.state == CopWaitOrSkip {
		return c.waitFirst
	}
	return c.ir1
}
