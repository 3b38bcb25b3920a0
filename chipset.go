// chipset.go - top-level wiring, configuration and suspend/resume guard

package agnuscore

import "sync"

// ChipMemory is the abstract dependency the copper and disk DMA engines
// read and write words through. This core does not implement chip RAM
// itself - memory-map decoding is out of scope - so the host supplies an
// implementation, exactly as the teacher's MemoryBus interface is consumed
// by callers that do not own the backing store.
type ChipMemory interface {
	ReadWord(addr uint32) uint16
	WriteWord(addr uint32, value uint16)
}

// DriveConfig parameterizes one floppy drive slot.
type DriveConfig struct {
	Present      bool
	TrackSize    int // bytes of MFM data per track; 0 means use DefaultTrackSize
	Acceleration int // DMA speed multiplier, 1 = real hardware speed
}

// DefaultTrackSize is vAmiga's 3.5" DD convention (bytes per track).
const DefaultTrackSize = 12500

// ChipsetConfig groups construction-time and suspend-gated parameters.
type ChipsetConfig struct {
	LinesPerFrame int // 312 for PAL, 262 for NTSC
	Interlace     bool
	Drives        [4]DriveConfig
	Logf          func(string, ...any) // nil-safe; defaults to a no-op
}

func (cfg *ChipsetConfig) logf(format string, args ...any) {
	if cfg.Logf != nil {
		cfg.Logf(format, args...)
	}
}

// Chipset owns every component and is the single synchronization point:
// per spec.md §5, there is no per-cycle locking, only one mutex held for
// the duration of a host-facing call (ExecuteLine, WritePRB,
// RecordRegisterChange, RequestCPUChipAccess, Marshal, Inspect).
// WriteRegister and ReadRegister do not take the mutex; the copper calls
// WriteRegister from inside ExecuteLine.
type Chipset struct {
	mu sync.Mutex

	cfg ChipsetConfig
	mem ChipMemory

	Clock    *Scheduler
	Beam     *BeamTracker
	Arbiter  *Arbiter
	Slots    *DMASlotTable
	Copper   *Copper
	Disk     *DiskController
	Drives   [4]*Drive
	Bridge   *ParallelInterfaceBridge

	regs customRegs

	suspendDepth  int
	pendingWrites []deferredWrite
}

// deferredWrite is one entry queued by RecordRegisterChange: a register
// write that must take effect exactly when, not before.
type deferredWrite struct {
	when  Cycle
	reg   uint16
	value uint16
}

// NewChipset constructs a chipset with every component reset and wires
// the disk controller to the configured drives.
func NewChipset(cfg ChipsetConfig, mem ChipMemory) *Chipset {
	if cfg.LinesPerFrame == 0 {
		cfg.LinesPerFrame = 312
	}
	cs := &Chipset{
		cfg:     cfg,
		mem:     mem,
		Clock:   NewScheduler(),
		Beam:    NewBeamTracker(cfg.LinesPerFrame),
		Arbiter: NewArbiter(),
		Slots:   NewDMASlotTable(),
		Copper:  NewCopper(),
		Disk:    NewDiskController(),
		Bridge:  NewParallelInterfaceBridge(),
	}
	cs.Beam.SetInterlace(cfg.Interlace)
	for i := range cs.Drives {
		dc := cfg.Drives[i]
		trackSize := dc.TrackSize
		if trackSize == 0 {
			trackSize = DefaultTrackSize
		}
		accel := dc.Acceleration
		if accel == 0 {
			accel = 1
		}
		cs.Drives[i] = NewDrive(i, trackSize, accel)
	}
	return cs
}

// Reset restores every owned component to its post-construction state.
func (cs *Chipset) Reset() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.Clock.Reset()
	cs.Beam.Reset()
	cs.Arbiter.Reset()
	cs.Slots.Clear()
	cs.Copper.Reset()
	cs.Disk.Reset()
	for _, d := range cs.Drives {
		if d != nil {
			d.Reset()
		}
	}
	cs.Bridge.Reset()
	cs.pendingWrites = nil
}

// Suspend freezes the scheduler for the duration of a configuration
// change and returns a closure that resumes it, matching vAmiga's
// amiga->suspend()/amiga->resume() bracketing used around mid-session
// acceleration or drive-geometry changes. Suspend holds the chipset mutex
// until the closure runs, so Suspend calls do not nest: a second call
// blocks until the first window is released.
func (cs *Chipset) Suspend() func() {
	cs.mu.Lock()
	cs.suspendDepth++
	released := false
	return func() {
		if released {
			return
		}
		released = true
		cs.suspendDepth--
		cs.mu.Unlock()
	}
}

// requireSuspended returns ErrNotSuspended unless called from within an
// active Suspend() window on the same goroutine. Since Suspend holds the
// mutex, any caller reaching here already holds it; this only guards
// against a direct (non-guarded) call path.
func (cs *Chipset) requireSuspended() error {
	if cs.suspendDepth == 0 {
		return ErrNotSuspended
	}
	return nil
}

// SetDriveAcceleration changes a drive's DMA speed multiplier. It must be
// called within a Suspend() window.
func (cs *Chipset) SetDriveAcceleration(drive, factor int) error {
	if err := cs.requireSuspended(); err != nil {
		return err
	}
	if factor <= 0 {
		factor = 1
	}
	cs.Drives[drive].acceleration = factor
	return nil
}

// ChipsetSnapshot is a read-locked copy of every component's public state,
// safe to inspect from a debugger or UI without risking a torn read - the
// generalization of the teacher's runtimeStatusStore.snapshot() idiom to
// this core's single coordinating lock.
type ChipsetSnapshot struct {
	Cycle     Cycle
	Beam      Beam
	BusOwners [CyclesPerLine]BusOwner
	Copper    CopperState
	Disk      DiskState
}

// Inspect returns a snapshot of the chipset's current state without
// mutating anything.
func (cs *Chipset) Inspect() ChipsetSnapshot {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	snap := ChipsetSnapshot{
		Cycle:  cs.Clock.Now(),
		Beam:   Beam{Line: cs.Beam.Line()},
		Copper: cs.Copper.state,
		Disk:   cs.Disk.state,
	}
	for i := 0; i < CyclesPerLine; i++ {
		snap.BusOwners[i] = cs.Arbiter.Owner(i)
	}
	return snap
}

// WriteRegister dispatches a custom-chip register write, used both by an
// external CPU bus write and by a copper MOVE instruction (via the
// RegisterWriter interface Copper.Tick takes). Unrecognized addresses are
// a recoverable ErrInvalidRegisterAccess, silently dropped per spec.md §7.
func (cs *Chipset) WriteRegister(addr uint16, value uint16) error {
	return writeRegister(cs, addr, value)
}

// ReadRegister dispatches a custom-chip register read.
func (cs *Chipset) ReadRegister(addr uint16) (uint16, error) {
	return readRegister(cs, addr)
}

// RecordRegisterChange arms a register write that takes effect exactly
// delay cycles from now, never earlier - spec.md §4.1's ordering guarantee
// for CPU writes whose effect on the chipset is latched rather than
// immediate. Pending writes are queued on the scheduler's SEC slot (the
// secondary-effect fan-out slot dedicated to exactly this kind of deferred
// work) rather than one slot per write, since the scheduler only holds one
// handler per slot; serviceDeferredWrites re-arms SEC for whichever
// pending write is due soonest after each dispatch.
func (cs *Chipset) RecordRegisterChange(delay Cycle, reg uint16, value uint16) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pendingWrites = append(cs.pendingWrites, deferredWrite{
		when:  cs.Clock.Now() + delay,
		reg:   reg,
		value: value,
	})
	cs.armSEC()
}

// armSEC (re)schedules the SEC slot for the earliest pending deferred
// write, or cancels it if none remain.
func (cs *Chipset) armSEC() {
	if len(cs.pendingWrites) == 0 {
		cs.Clock.Cancel(SlotSEC)
		return
	}
	cs.Clock.ScheduleAbs(SlotSEC, cs.earliestPendingWrite(), cs.serviceDeferredWrites)
}

func (cs *Chipset) earliestPendingWrite() Cycle {
	next := cs.pendingWrites[0].when
	for _, w := range cs.pendingWrites[1:] {
		if w.when < next {
			next = w.when
		}
	}
	return next
}

// serviceDeferredWrites is the SEC slot's handler: it applies every
// pending write due at or before now directly through writeRegister (it
// runs from inside Clock.ExecuteUntil with mu already held) and re-arms
// for whatever is still pending.
func (cs *Chipset) serviceDeferredWrites(now Cycle) Cycle {
	remaining := cs.pendingWrites[:0]
	for _, w := range cs.pendingWrites {
		if w.when <= now {
			writeRegister(cs, w.reg, w.value)
		} else {
			remaining = append(remaining, w)
		}
	}
	cs.pendingWrites = remaining
	if len(cs.pendingWrites) == 0 {
		return NeverScheduled
	}
	return cs.earliestPendingWrite()
}

// WritePRB applies a CIA-B parallel port B value to the drive select,
// motor, step and side lines. The CIA itself is out of scope; the host
// owns it and calls this whenever its port B output changes.
func (cs *Chipset) WritePRB(value byte) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.Bridge.Apply(value, cs.Drives, cs.Clock.Now())
}

// selectedDrive returns the first drive currently asserting /SEL, or nil
// if none is selected - only one drive is ever selected at a time on real
// hardware, so first-match is unambiguous.
func (cs *Chipset) selectedDrive() *Drive {
	for _, d := range cs.Drives {
		if d != nil && d.Selected() {
			return d
		}
	}
	return nil
}

// armDiskTransfer is called after a DSKLEN write commits a transfer. A
// drive running at a negative acceleration factor takes vAmiga's turbo
// fast path (the whole transfer completes synchronously, then the
// completion interrupt lands turboCompletionDelay cycles later); otherwise
// the DSK scheduler slot is armed to service the drive's acceleration
// factor's worth of bytes (1, 2, 4 or 8) every diskByteCycles, matching
// real hardware pacing multiplied by the configured speed.
func (cs *Chipset) armDiskTransfer() {
	if cs.Disk.state == DiskOff {
		return
	}
	drive := cs.selectedDrive()
	if drive == nil {
		return
	}
	if drive.acceleration < 0 {
		irqAt := cs.Disk.TurboTransfer(cs.Clock.Now(), drive, cs.mem, cs.Disk.state == DiskWrite)
		cs.Clock.ScheduleAbs(SlotDSK, irqAt, func(now Cycle) Cycle {
			cs.Disk.irqPending = true
			return NeverScheduled
		})
		return
	}
	iterations := drive.acceleration
	if iterations < 1 {
		iterations = 1
	}
	interval := Cycle(diskByteCycles)
	cs.Clock.ScheduleRel(SlotDSK, interval, cs.diskServiceHandler(drive, interval, iterations))
}

// diskServiceHandler services iterations bytes (the drive's acceleration
// factor) every time the DSK slot fires, instead of exactly one, which is
// how a 2x/4x/8x accelerated drive stays on the byte-paced FIFO path
// rather than bypassing it the way the turbo path does.
func (cs *Chipset) diskServiceHandler(drive *Drive, interval Cycle, iterations int) EventHandler {
	return func(now Cycle) Cycle {
		cs.Disk.ServiceSlot(now, drive, cs.mem, iterations)
		if cs.Disk.state == DiskOff {
			return NeverScheduled
		}
		return now + interval
	}
}

// RequestCPUChipAccess finds the first cycle at or after hpos on the
// current line not already claimed by a fixed DMA slot, the copper or the
// blitter, claims it for the CPU, and returns it, implementing the §4.3/§5
// CPU waitstate: a chip-RAM access that lands on a DMA-owned cycle waits
// for the next free one rather than contending for the cycle it wanted (it
// always loses that contest anyway, since BusCPU is the lowest priority).
// A scan that runs off the end of the line without finding a free cycle is
// a BusContentionUnderflow fatal condition: it means the slot table has
// claimed every remaining cycle, which should never happen.
func (cs *Chipset) RequestCPUChipAccess(hpos int) (int, *FatalError) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	free := cs.Arbiter.NextFree(hpos)
	if free < 0 {
		return 0, &FatalError{
			Kind: BusContentionUnderflow,
			Op:   "RequestCPUChipAccess",
			Beam: Beam{Line: cs.Beam.Line(), HPos: hpos},
		}
	}
	cs.Arbiter.Request(free, BusCPU)
	return free, nil
}

// ExecuteLine advances the chipset through exactly one scan line: for each
// horizontal cycle it lets the bitplane/audio/sprite slots claim the bus
// through the arbiter and then ticks the copper (when DMACON enables it);
// it then runs the scheduler to the end of the line (disk byte pacing,
// deferred register writes) and advances the beam, restarting the copper
// from COP1LC when the line ends a frame. It is the per-line entry point a
// host run loop calls repeatedly.
func (cs *Chipset) ExecuteLine() *FatalError {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	lineStart := cs.Clock.Now()
	lineEnd := lineStart + CyclesPerLine
	cs.Arbiter.ClearLine()

	for hpos := 0; hpos < CyclesPerLine; hpos++ {
		// The fixed DMA slots (bitplane/audio/sprite) must claim their cycle
		// before the copper is given a chance to request it: per spec.md
		// §4.3/§4.4 the copper loses arbitration to fixed DMA on a
		// contended cycle, and Arbiter.Request only denies a request if the
		// cycle is already owned by something of equal or higher priority
		// when it is made.
		if unit := cs.Slots.BitplaneUnit(hpos); unit != FetchNone {
			cs.Arbiter.Request(hpos, BusBitplane)
		}
		if unit := cs.Slots.AudioSpriteUnit(hpos); unit != FetchNone {
			owner := BusAudio
			if unit == FetchSprite {
				owner = BusSprite
			}
			cs.Arbiter.Request(hpos, owner)
		}
		if cs.regs.dmaEnabled(dmaconCOPEN) {
			beam := Beam{Line: cs.Beam.Line(), HPos: hpos}
			cs.Copper.Tick(cs.mem, cs, cs.Arbiter, hpos, beam, false)
		}
	}

	if ferr := cs.Clock.ExecuteUntil(lineEnd); ferr != nil {
		ferr.Beam = Beam{Line: cs.Beam.Line()}
		return ferr
	}
	if cs.Beam.AdvanceLine(lineEnd) {
		cs.Copper.Strobe(0)
	}
	return nil
}
