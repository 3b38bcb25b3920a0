package agnuscore

import "testing"

func TestDSKLENRequiresDoubleWriteToCommit(t *testing.T) {
	dc := NewDiskController()
	dc.WriteDSKLEN(dsklenDMAEN | 4) // first write: latched only
	if dc.state != DiskOff {
		t.Fatalf("state after first write = %v, want DiskOff (not yet committed)", dc.state)
	}
	dc.WriteDSKLEN(dsklenDMAEN | 4) // second write: commits
	if dc.state != DiskWaitSync {
		t.Fatalf("state after second write = %v, want DiskWaitSync", dc.state)
	}
	if dc.wordsRemaining != 4 {
		t.Fatalf("wordsRemaining = %d, want 4", dc.wordsRemaining)
	}
}

func TestDSKLENWithoutDMAENCancelsTransfer(t *testing.T) {
	dc := NewDiskController()
	dc.WriteDSKLEN(dsklenDMAEN | 4)
	dc.WriteDSKLEN(dsklenDMAEN | 4)
	dc.WriteDSKLEN(0)
	if dc.state != DiskOff {
		t.Fatalf("state after DMAEN cleared = %v, want DiskOff", dc.state)
	}
}

func TestServiceByteFindsSyncMark(t *testing.T) {
	track := make([]byte, 16)
	track[3], track[4] = 0x44, 0x89
	disk := NewDiskFromTracks([][]byte{track}, false)
	drive := NewDrive(0, len(track), 1)
	drive.InsertDisk(disk, 0)

	dc := NewDiskController()
	dc.WriteDSKLEN(dsklenDMAEN | 2)
	dc.WriteDSKLEN(dsklenDMAEN | 2)
	if dc.state != DiskWaitSync {
		t.Fatalf("state = %v, want DiskWaitSync", dc.state)
	}

	mem := fakeMemory{}
	for i := 0; i < len(track)+2; i++ {
		dc.ServiceByte(Cycle(i), drive, mem)
		if dc.state == DiskRead {
			break
		}
	}
	if dc.state != DiskRead {
		t.Fatalf("controller never found sync mark, state = %v", dc.state)
	}
	if !dc.SyncIRQPending() {
		t.Fatalf("expected a sync interrupt to be pending after the match")
	}
}

func TestServiceByteDoesNotMatchOnFirstSyncByteAlone(t *testing.T) {
	track := make([]byte, 16)
	track[3] = 0x44 // high byte of the sync word, low byte never follows
	disk := NewDiskFromTracks([][]byte{track}, false)
	drive := NewDrive(0, len(track), 1)
	drive.InsertDisk(disk, 0)

	dc := NewDiskController()
	dc.WriteDSKLEN(dsklenDMAEN | 2)
	dc.WriteDSKLEN(dsklenDMAEN | 2)

	mem := fakeMemory{}
	for i := 0; i < len(track); i++ {
		dc.ServiceByte(Cycle(i), drive, mem)
	}
	if dc.state == DiskRead {
		t.Fatalf("a lone high byte must not satisfy the 16-bit word-sync comparator")
	}
}

func TestServiceByteDrainsFIFOToMemory(t *testing.T) {
	track := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	disk := NewDiskFromTracks([][]byte{track}, false)
	drive := NewDrive(0, len(track), 1)
	drive.InsertDisk(disk, 0)

	dc := NewDiskController()
	dc.state = DiskRead // skip sync search for this test
	dc.wordsRemaining = 1

	mem := fakeMemory{}
	dc.ServiceByte(0, drive, mem)
	dc.ServiceByte(1, drive, mem)

	if mem[0] != 0xAABB {
		t.Fatalf("mem[0] = %#x, want 0xAABB", mem[0])
	}
	if dc.wordsRemaining != 0 {
		t.Fatalf("wordsRemaining = %d, want 0", dc.wordsRemaining)
	}
}

func TestDSKBYTRValidBitExpiresAfterWindow(t *testing.T) {
	dc := NewDiskController()
	dc.lastByte = 0x42
	dc.incomingCycle = 100
	dc.state = DiskRead

	if v := dc.ReadDSKBYTR(107); v&dskbytrValid == 0 {
		t.Fatalf("valid bit should still be set at the edge of the window")
	}
	if v := dc.ReadDSKBYTR(108); v&dskbytrValid != 0 {
		t.Fatalf("valid bit should have expired past the window")
	}
}

func TestTurboTransferReadSeeksToSyncMarkLikeTheSlowPath(t *testing.T) {
	track := make([]byte, 16)
	track[3], track[4] = 0x44, 0x89
	track[5], track[6] = 0xAA, 0xBB
	disk := NewDiskFromTracks([][]byte{track}, false)

	// Slow path: service bytes until sync is found, then drain one word.
	slowDrive := NewDrive(0, len(track), 1)
	slowDrive.InsertDisk(disk, 0)
	slowDC := NewDiskController()
	slowDC.WriteDSKLEN(dsklenDMAEN | 1)
	slowDC.WriteDSKLEN(dsklenDMAEN | 1)
	slowMem := fakeMemory{}
	for i := 0; i < len(track)*2 && slowDC.state != DiskOff; i++ {
		slowDC.ServiceByte(Cycle(i), slowDrive, slowMem)
	}

	// Turbo path: same disk, same word count, starting from the same head
	// position (offset 0).
	turboDrive := NewDrive(0, len(track), 8)
	turboDrive.InsertDisk(disk, 0)
	turboDC := NewDiskController()
	turboDC.wordsRemaining = 1
	turboDC.state = DiskRead
	turboMem := fakeMemory{}
	turboDC.TurboTransfer(0, turboDrive, turboMem, false)

	if slowMem[0] != turboMem[0] {
		t.Fatalf("slow path read %#x, turbo path read %#x, want identical (property 5)", slowMem[0], turboMem[0])
	}
	if turboMem[0] != 0xAABB {
		t.Fatalf("turbo word = %#x, want 0xAABB (the word just past the sync mark)", turboMem[0])
	}
}

func TestTurboTransferDrainsBeforeSchedulingIRQ(t *testing.T) {
	track := []byte{0x11, 0x22, 0x33, 0x44}
	disk := NewDiskFromTracks([][]byte{track}, false)
	drive := NewDrive(0, len(track), 8)
	drive.InsertDisk(disk, 0)

	dc := NewDiskController()
	dc.wordsRemaining = 2
	dc.state = DiskRead
	mem := fakeMemory{}

	irqAt := dc.TurboTransfer(1000, drive, mem, false)

	if dc.wordsRemaining != 0 {
		t.Fatalf("wordsRemaining after turbo transfer = %d, want 0", dc.wordsRemaining)
	}
	if dc.state != DiskOff {
		t.Fatalf("state after turbo transfer = %v, want DiskOff", dc.state)
	}
	if dc.IRQPending() {
		t.Fatalf("IRQ must not be pending until irqAt is reached by the caller")
	}
	if irqAt != 1000+turboCompletionDelay {
		t.Fatalf("irqAt = %d, want %d", irqAt, 1000+turboCompletionDelay)
	}
}
