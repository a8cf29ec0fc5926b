package scheduler

import "testing"

func TestMachine_StepFrame_AdvancesWithoutCartridge(t *testing.T) {
	m := New(Config{})
	m.StepFrame()
	fb := m.Framebuffer()
	if len(fb) != 160*144*4 {
		t.Fatalf("framebuffer size got %d want %d", len(fb), 160*144*4)
	}
}

func TestMachine_LoadCartridge_UnsupportedMapper(t *testing.T) {
	m := New(Config{})
	rom := make([]byte, 0x8000)
	rom[0x0147] = 0xFE // not a recognized cart type
	if err := m.LoadCartridge(rom, nil); err == nil {
		t.Fatalf("expected RomLoadError for unsupported mapper")
	}
}

func TestMachine_SetButtons_WakesStoppedCPU(t *testing.T) {
	m := New(Config{})
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0x10 // STOP
	rom[0x0101] = 0x00 // mandatory following byte
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.StepFrame()
	if !m.cpu.Stopped() {
		t.Fatalf("expected CPU to be stopped after executing STOP")
	}
	m.SetButtons(Buttons{A: true})
	if m.cpu.Stopped() {
		t.Fatalf("expected CPU to resume after a button press")
	}
}
