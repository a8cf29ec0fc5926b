// Package joypad models the active-low 2x4 button matrix at 0xFF00.
package joypad

// Button bitmask constants for SetButtons. A set bit means "pressed".
const (
	Right = 1 << 0
	Left  = 1 << 1
	Up    = 1 << 2
	Down  = 1 << 3
	A     = 1 << 4
	B     = 1 << 5
	Select = 1 << 6
	Start  = 1 << 7
)

// Pad tracks which of the two rows (D-pad, buttons) the game has selected
// and raises the Joypad interrupt on any 1->0 transition of the reflected
// lower nibble, per the documented edge-triggered behavior.
type Pad struct {
	selectBits byte // last written bits 5-4 of 0xFF00
	pressed    byte // Button* mask of currently-pressed buttons
	lower4     byte // last computed active-low lower nibble, for edge detection

	req func()
}

func New(req func()) *Pad { return &Pad{req: req, lower4: 0x0F} }

// Select stores the row-select bits written to 0xFF00 bits 5-4.
func (p *Pad) Select(v byte) {
	p.selectBits = v & 0x30
	p.recompute()
}

// SetButtons replaces the full pressed-button mask (see the Button* consts).
func (p *Pad) SetButtons(mask byte) {
	p.pressed = mask
	p.recompute()
}

// Read returns the full 0xFF00 byte as the CPU sees it.
func (p *Pad) Read() byte {
	return 0xC0 | (p.selectBits & 0x30) | p.lower4
}

func (p *Pad) recompute() {
	lower := byte(0x0F)
	if p.selectBits&0x10 == 0 { // P14 low selects D-pad
		if p.pressed&Right != 0 {
			lower &^= 0x01
		}
		if p.pressed&Left != 0 {
			lower &^= 0x02
		}
		if p.pressed&Up != 0 {
			lower &^= 0x04
		}
		if p.pressed&Down != 0 {
			lower &^= 0x08
		}
	}
	if p.selectBits&0x20 == 0 { // P15 low selects buttons
		if p.pressed&A != 0 {
			lower &^= 0x01
		}
		if p.pressed&B != 0 {
			lower &^= 0x02
		}
		if p.pressed&Select != 0 {
			lower &^= 0x04
		}
		if p.pressed&Start != 0 {
			lower &^= 0x08
		}
	}
	falling := p.lower4 &^ lower
	if falling != 0 && p.req != nil {
		p.req()
	}
	p.lower4 = lower
}

// AnyPressed reports whether any button is currently held, used by the
// scheduler to wake a STOPped CPU on a joypad press.
func (p *Pad) AnyPressed() bool { return p.pressed != 0 }
