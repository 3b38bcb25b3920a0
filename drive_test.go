package agnuscore

import "testing"

func TestInternalDriveIdentifiesAsAllZero(t *testing.T) {
	d := NewDrive(0, 100, 1)
	d.Select(true)
	allZero := true
	for i := 0; i < 32; i++ {
		if d.ShiftID() {
			allZero = false
		}
	}
	if !allZero {
		t.Fatalf("internal drive 0 must shift out an all-zero ID pattern")
	}
}

func TestExternalDriveIdentifiesAsAllOnes(t *testing.T) {
	d := NewDrive(1, 100, 1)
	d.Select(true)
	allOnes := true
	for i := 0; i < 32; i++ {
		if !d.ShiftID() {
			allOnes = false
		}
	}
	if !allOnes {
		t.Fatalf("external drive must shift out an all-ones ID pattern")
	}
}

func TestMotorReachesSpeedAfterRampDelay(t *testing.T) {
	d := NewDrive(0, 100, 1)
	d.SetMotor(true, 0)
	if d.MotorAtSpeed(motorStartDelayCycles - 1) {
		t.Fatalf("motor should not be at speed before the ramp delay elapses")
	}
	if !d.MotorAtSpeed(motorStartDelayCycles) {
		t.Fatalf("motor should be at speed after the ramp delay")
	}
}

func TestMotorSpeedRampsContinuouslyAndReverses(t *testing.T) {
	d := NewDrive(0, 100, 1)
	d.SetMotor(true, 0)
	half := Cycle(motorStartDelayCycles / 2)
	got := d.MotorSpeed(half)
	if got <= 0 || got >= 100 {
		t.Fatalf("speed halfway through the start ramp = %v, want strictly between 0 and 100", got)
	}
	// Reversing mid-ramp must continue from the speed already reached, not
	// snap back to 0.
	d.SetMotor(false, half)
	if d.MotorSpeed(half) != got {
		t.Fatalf("speed at the moment of reversal = %v, want %v (continuous)", d.MotorSpeed(half), got)
	}
	if !d.MotorSlowingDown(half) {
		t.Fatalf("motor should be slowing down immediately after reversing")
	}
}

func TestStepClampsAtCylinderBounds(t *testing.T) {
	d := NewDrive(0, 100, 1)
	d.Step(-1, 0)
	if d.Cylinder() != 0 {
		t.Fatalf("cylinder = %d, want clamped to 0", d.Cylinder())
	}
	for i := 0; i < maxCylinder+5; i++ {
		d.Step(+1, Cycle(i)*stepSettleCycles)
	}
	if d.Cylinder() != maxCylinder {
		t.Fatalf("cylinder = %d, want clamped to %d", d.Cylinder(), maxCylinder)
	}
}

func TestReadyToStepWaitsForSettle(t *testing.T) {
	d := NewDrive(0, 100, 1)
	d.Step(+1, 0)
	if d.ReadyToStep(1) {
		t.Fatalf("drive should not be ready to step before settle time elapses")
	}
	if !d.ReadyToStep(stepSettleCycles) {
		t.Fatalf("drive should be ready to step once settle time elapses")
	}
}

func TestPollsForDiskDetectsKickstart13Signature(t *testing.T) {
	d := NewDrive(0, 100, 1)
	seq := []int{0, 1, 0, 1, 0, 1, 0, 1}
	for i, cyl := range seq {
		d.cylinder = cyl
		d.pushHistory(cyl)
		if i < len(seq)-1 && d.PollsForDisk() {
			t.Fatalf("signature should not match before the full history fills")
		}
	}
	if !d.PollsForDisk() {
		t.Fatalf("expected Kickstart 1.2/1.3 polling signature to be detected")
	}
}

func TestRotateWrapsAndReportsIndexPulse(t *testing.T) {
	track := make([]byte, 4)
	disk := NewDiskFromTracks([][]byte{track}, false)
	d := NewDrive(0, len(track), 1)
	if err := d.InsertDisk(disk, 0); err != nil {
		t.Fatalf("InsertDisk: %v", err)
	}

	var pulses int
	for i := 0; i < 8; i++ {
		if d.Rotate() {
			pulses++
		}
	}
	if pulses != 2 {
		t.Fatalf("expected 2 index pulses over 8 rotations of a 4-byte track, got %d", pulses)
	}
}

func TestInsertDiskRejectsReinsertWithinMinimumGap(t *testing.T) {
	disk := NewBlankDisk(1, 10)
	d := NewDrive(0, 10, 1)
	if err := d.InsertDisk(disk, 0); err != nil {
		t.Fatalf("initial InsertDisk: %v", err)
	}
	d.EjectDisk(1000)
	if !d.dskchange {
		t.Fatalf("eject should latch the disk-change condition")
	}
	if err := d.InsertDisk(disk, 1000+minDiskReinsertGapCycles-1); err != ErrDiskReinsertTooSoon {
		t.Fatalf("err = %v, want ErrDiskReinsertTooSoon", err)
	}
	if err := d.InsertDisk(disk, 1000+minDiskReinsertGapCycles); err != nil {
		t.Fatalf("InsertDisk after the gap elapsed: %v", err)
	}
	d.AcknowledgeDiskChange()
	if d.dskchange {
		t.Fatalf("dskchange should clear after acknowledgement")
	}
}

func TestInsertDiskRejectsMismatchedTrackSize(t *testing.T) {
	disk := NewBlankDisk(2, 16)
	d := NewDrive(0, 10, 1) // drive expects 10-byte tracks, disk has 16-byte tracks
	if err := d.InsertDisk(disk, 0); err != ErrBadDiskImage {
		t.Fatalf("err = %v, want ErrBadDiskImage", err)
	}
	if d.HasDisk() {
		t.Fatalf("drive state must be unchanged after a rejected insert")
	}
}

func TestInsertDiskRejectsEmptyImage(t *testing.T) {
	disk := NewBlankDisk(0, 10)
	d := NewDrive(0, 10, 1)
	if err := d.InsertDisk(disk, 0); err != ErrBadDiskImage {
		t.Fatalf("err = %v, want ErrBadDiskImage", err)
	}
}

func TestWriteHeadRejectsWriteProtectedDisk(t *testing.T) {
	disk := NewBlankDisk(1, 10)
	disk.SetWriteProtected(true)
	d := NewDrive(0, 10, 1)
	if err := d.InsertDisk(disk, 0); err != nil {
		t.Fatalf("InsertDisk: %v", err)
	}

	if err := d.WriteHead(0xFF); err != ErrWriteProtected {
		t.Fatalf("err = %v, want ErrWriteProtected", err)
	}
}
