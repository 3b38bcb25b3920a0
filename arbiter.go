// arbiter.go - DMA bus ownership arbitration

package agnuscore

// BusOwner names whichever DMA channel (or the CPU) holds a given
// horizontal bus cycle. The numeric values carry no priority meaning;
// busPriority below holds the fixed ranking Agnus enforces when two
// channels want the same cycle.
type BusOwner int

const (
	BusNone BusOwner = iota
	BusCPU
	BusSprite
	BusBitplane
	BusAudio
	BusDisk
	BusBlitter
	BusCopper
)

// busPriority ranks owners from lowest to highest; index 0 always loses a
// contest against any higher index. Every fixed DMA slot (sprite, bitplane,
// audio, disk) outranks the copper and the blitter - both lose to any
// bitplane/disk/audio/sprite/refresh slot landing on the same cycle. The
// copper in turn outranks the blitter (it can still steal a cycle the
// blitter wanted), and the blitter outranks the CPU, matching the
// documented vAmiga ordering (Copper.cpp/Agnus.cpp busOwner[pos.h]
// assignment order).
var busPriority = map[BusOwner]int{
	BusNone:     0,
	BusCPU:      1,
	BusBlitter:  2,
	BusCopper:   3,
	BusSprite:   4,
	BusBitplane: 5,
	BusAudio:    6,
	BusDisk:     7,
}

// Arbiter tracks, for the current line, which channel owns each of the 228
// horizontal DMA cycles and the resulting bus value on the line (the data
// word the owner drove, used for blitter-vs-CPU contention bookkeeping).
type Arbiter struct {
	owner [CyclesPerLine]BusOwner
	value [CyclesPerLine]uint16
	bls   bool // blitter-slow-down: blitter denied the bus for >=2 cycles
	denied int
}

func NewArbiter() *Arbiter {
	a := &Arbiter{}
	a.Reset()
	return a
}

func (a *Arbiter) Reset() {
	for i := range a.owner {
		a.owner[i] = BusNone
		a.value[i] = 0
	}
	a.bls = false
	a.denied = 0
}

// Request attempts to claim hpos for want. It grants the cycle if hpos is
// unowned or want outranks the current owner, and returns the owner that
// ends up holding the cycle (want on success, the incumbent on failure).
// Two blitter requests denied with no blitter grant in between raise BLS;
// granting the bus to the blitter clears it (grants to other channels do
// not), matching the documented vAmiga BLS semantics used to throttle a
// blitter that is being starved by higher-priority DMA.
func (a *Arbiter) Request(hpos int, want BusOwner) BusOwner {
	incumbent := a.owner[hpos]
	if incumbent == BusNone || busPriority[want] > busPriority[incumbent] {
		a.owner[hpos] = want
		if want == BusBlitter {
			a.bls = false
			a.denied = 0
		}
		return want
	}
	if want == BusBlitter {
		a.denied++
		if a.denied >= 2 {
			a.bls = true
		}
	}
	return incumbent
}

// Owner reports the current owner of hpos.
func (a *Arbiter) Owner(hpos int) BusOwner { return a.owner[hpos] }

// NextFree scans forward from hpos for the first cycle not yet claimed by
// any channel, or -1 if every remaining cycle on the line is owned. This is
// the CPU's chip-RAM waitstate path: unlike the DMA channels and the
// copper/blitter, which contend for a wanted cycle via Request, a CPU
// access that lands on an already-owned cycle simply waits for the next
// free one instead of contending for it.
func (a *Arbiter) NextFree(hpos int) int {
	for i := hpos; i < CyclesPerLine; i++ {
		if a.owner[i] == BusNone {
			return i
		}
	}
	return -1
}

// SetValue records the data word driven by hpos's owner, for contention
// diagnostics (e.g. a CPU read that lands on a DMA-owned cycle observes
// the DMA channel's value, not its own).
func (a *Arbiter) SetValue(hpos int, v uint16) { a.value[hpos] = v }

// Value returns the data word recorded for hpos.
func (a *Arbiter) Value(hpos int) uint16 { return a.value[hpos] }

// BLS reports the blitter-slow-down flag.
func (a *Arbiter) BLS() bool { return a.bls }

// ClearLine resets ownership for the next line while preserving BLS state,
// which persists across line boundaries until a grant clears it.
func (a *Arbiter) ClearLine() {
	for i := range a.owner {
		a.owner[i] = BusNone
		a.value[i] = 0
	}
}
