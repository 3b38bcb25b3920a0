// bridge.go - CIA parallel port B to floppy drive signal decoding

package agnuscore

// PRB bit layout, from spec.md §6 (active-low select/motor lines, a level
// side-select, an edge-triggered step line, and a direction line read as
// a level when the step edge arrives).
const (
	prbStep  = 1 << 0
	prbDir   = 1 << 1
	prbSide  = 1 << 2
	prbSel0  = 1 << 3
	prbSel1  = 1 << 4
	prbSel2  = 1 << 5
	prbSel3  = 1 << 6
	prbMotor = 1 << 7
)

// ParallelInterfaceBridge decodes CIA-B port B writes into drive select,
// motor, step and side signals. It holds only the previous PRB value, the
// minimum state needed for edge detection; which drive is currently
// selected lives on each Drive via Select(), not here.
type ParallelInterfaceBridge struct {
	prev    byte
	hasPrev bool
}

func NewParallelInterfaceBridge() *ParallelInterfaceBridge {
	b := &ParallelInterfaceBridge{}
	b.Reset()
	return b
}

func (b *ParallelInterfaceBridge) Reset() {
	b.prev = 0xFF
	b.hasPrev = false
}

// Apply processes a new PRB value against drives, matching vAmiga's
// PRBdidChange: a falling edge on a /SELx line selects or deselects that
// drive and, while selected, loads its identification shift register or
// strobes its motor; a rising edge on STEP (while the drive is selected)
// steps the head by one cylinder in the direction DIR indicates; /SIDE is
// applied unconditionally on every call, not just on an edge, since real
// hardware reads it as a level, not a pulse.
func (b *ParallelInterfaceBridge) Apply(prb byte, drives [4]*Drive, now Cycle) {
	if !b.hasPrev {
		b.prev = prb
		b.hasPrev = true
	}
	falling := b.prev &^ prb // bits that were 1, now 0
	rising := prb &^ b.prev  // bits that were 0, now 1

	selMask := [4]byte{prbSel0, prbSel1, prbSel2, prbSel3}
	for i, mask := range selMask {
		d := drives[i]
		if d == nil {
			continue
		}
		if falling&mask != 0 {
			d.Select(true)
			d.ShiftID()
			d.SetMotor(prb&prbMotor == 0, now)
		}
		if rising&mask != 0 {
			d.Select(false)
		}
		d.SetSide(sideFromLevel(prb))
		if d.Selected() && falling&prbMotor != 0 {
			d.SetMotor(true, now)
		}
		if d.Selected() && rising&prbMotor != 0 {
			d.SetMotor(false, now)
		}
		if d.Selected() && rising&prbStep != 0 && d.ReadyToStep(now) {
			dir := +1
			if prb&prbDir == 0 {
				dir = -1
			}
			d.Step(dir, now)
		}
	}

	b.prev = prb
}

func sideFromLevel(prb byte) int {
	if prb&prbSide != 0 {
		return 0
	}
	return 1
}
