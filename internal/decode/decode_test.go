package decode

import "testing"

func TestUnprefixed_AllOpcodesPopulated(t *testing.T) {
	for i := 0; i < 256; i++ {
		op := byte(i)
		in := Unprefixed[op]
		if in.Mnemonic == "" {
			t.Fatalf("opcode %02X has no mnemonic", op)
		}
		if in.Opcode != op {
			t.Fatalf("opcode %02X stored under wrong slot (got %02X)", op, in.Opcode)
		}
		if in.BaseCycles == 0 {
			t.Fatalf("opcode %02X (%s) has zero BaseCycles", op, in.Mnemonic)
		}
	}
}

func TestCBPrefixed_AllOpcodesPopulated(t *testing.T) {
	for i := 0; i < 256; i++ {
		op := byte(i)
		in := CBPrefixed[op]
		if in.Mnemonic == "" {
			t.Fatalf("CB opcode %02X has no mnemonic", op)
		}
		if in.Opcode != op {
			t.Fatalf("CB opcode %02X stored under wrong slot (got %02X)", op, in.Opcode)
		}
	}
}

func TestFormat_RegisterToRegister(t *testing.T) {
	in := Unprefixed[0x41] // LD B,C
	if got, want := in.Format(0, 0), "LD B,C"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormat_Immediate8(t *testing.T) {
	in := Unprefixed[0x3E] // LD A,d8
	if got, want := in.Format(0x42, 0), "LD A,$42"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormat_Immediate16(t *testing.T) {
	in := Unprefixed[0xC3] // JP a16
	if got, want := in.Format(0, 0x1234), "JP $1234"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormat_ConditionalJR(t *testing.T) {
	in := Unprefixed[0x20] // JR NZ,i8
	if got, want := in.Format(0xFE, 0), "JR NZ,$FE"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormat_CBBit(t *testing.T) {
	in := CBPrefixed[0x7C] // BIT 7,H
	if got, want := in.Format(0, 0), "BIT 7,H"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLookup(t *testing.T) {
	if got := Lookup(0x00, false).Mnemonic; got != "NOP" {
		t.Fatalf("Lookup(0x00,false) = %q, want NOP", got)
	}
	if got := Lookup(0x7C, true).Mnemonic; got != "BIT" {
		t.Fatalf("Lookup(0x7C,true) = %q, want BIT", got)
	}
}

func TestCyclesMatchKnownTimings(t *testing.T) {
	cases := []struct {
		op                   byte
		baseCycles, branched int
	}{
		{0x00, 4, 4},   // NOP
		{0xCD, 24, 24}, // CALL a16
		{0xC9, 16, 16}, // RET
		{0xC0, 8, 20},  // RET NZ
		{0x34, 12, 12}, // INC (HL)
		{0x76, 4, 4},   // HALT
	}
	for _, c := range cases {
		in := Unprefixed[c.op]
		if in.BaseCycles != c.baseCycles || in.BranchCycles != c.branched {
			t.Fatalf("opcode %02X: got base=%d branch=%d, want base=%d branch=%d",
				c.op, in.BaseCycles, in.BranchCycles, c.baseCycles, c.branched)
		}
	}
}
