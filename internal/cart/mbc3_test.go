package cart

import "testing"

func TestMBC3_ROMBanking(t *testing.T) {
	rom := make([]byte, 256*1024)
	for bank := 0; bank < 16; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC3(rom, 0)

	if got := m.Read(0x0000); got != 0x00 {
		t.Fatalf("bank0 read got %02X want 00", got)
	}
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("default switchable bank got %02X want 01", got)
	}
	m.Write(0x2000, 0x05)
	if got := m.Read(0x4000); got != 0x05 {
		t.Fatalf("after bank select got %02X want 05", got)
	}
	// Writing 0 remaps to bank 1, same as MBC1.
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank 0 write should remap to 1, got %02X", got)
	}
}

func TestMBC3_RAMEnableAndBank(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 4*0x2000) // 4 RAM banks, matching the real 32KB SRAM cart types

	// RAM disabled by default
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}
	m.Write(0x0000, 0x0A) // enable
	m.Write(0xA000, 0x42)
	if got := m.Read(0xA000); got != 0x42 {
		t.Fatalf("RAM bank0 got %02X want 42", got)
	}
	m.Write(0x4000, 0x01) // select RAM bank 1
	m.Write(0xA000, 0x99)
	if got := m.Read(0xA000); got != 0x99 {
		t.Fatalf("RAM bank1 got %02X want 99", got)
	}
	m.Write(0x4000, 0x00)
	if got := m.Read(0xA000); got != 0x42 {
		t.Fatalf("RAM bank0 unaffected by bank1 write, got %02X want 42", got)
	}
}
