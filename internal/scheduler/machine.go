// Package scheduler owns the CPU/bus/PPU/cartridge graph and drives it one
// frame (70224 T-states) at a time, the unit the UI and headless runners both
// step by.
package scheduler

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cpu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/input"
)

// Buttons is the set of currently-held Game Boy inputs for one frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Config holds machine-wide options that affect emulation behavior but not
// its correctness (tracing, render path selection).
type Config struct {
	Trace        bool // log CPU instructions via cpu.CPU.SetTrace to stderr
	LimitFPS     bool // Run paces itself to the DMG's ~59.7275Hz frame cadence
	UseFetcherBG bool // render BG via fetcher/FIFO scanline path (only path implemented)
}

// cyclesPerFrame is 154 scanlines * 456 dots, the DMG's fixed frame length.
const cyclesPerFrame = 70224

// frameWallClock is the real-time budget of one emulated frame
// (70224 T-states / 4.194304 MHz), per spec.md §4.9 step 6.
const frameWallClock = 70224 * time.Second / 4194304

// Machine is the real emulation core: CPU, bus, and every owned subsystem
// reachable through it (PPU, timer, joypad, interrupt controller, cartridge).
// Per spec.md §5, a single Machine is meant to be owned by one emulation
// thread (Run, below); StepFrame/StepFrameNoRender exist for callers (tests,
// headless CLI runs) that step it synchronously from their own goroutine
// instead.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU

	romPath  string
	romTitle string
	bootROM  []byte

	// fbMu guards published, the framebuffer copy Run hands to the UI
	// thread once per frame. The live PPU buffer (bus.PPU().Framebuffer())
	// is written only by the emulation thread and never read concurrently;
	// published is the single-writer/single-reader hand-off spec.md §5
	// describes (an allowed double-buffer over the live one, per design
	// note 9).
	fbMu      sync.Mutex
	published []byte

	paused atomic.Bool
	fast   atomic.Bool
}

// New constructs a Machine with no cartridge loaded; LoadCartridge or
// LoadROMFromFile must be called before StepFrame does anything useful.
func New(cfg Config) *Machine {
	b := bus.New(nil)
	c := cpu.New(b)
	c.ResetNoBoot()
	applyPostBootIO(b)
	c.SetPC(0x0100)
	m := &Machine{cfg: cfg, bus: b, cpu: c}
	m.applyTrace()
	return m
}

// applyTrace wires cfg.Trace into the owned CPU's trace logger, printing
// disassembled mnemonics (internal/decode) to stderr.
func (m *Machine) applyTrace() {
	if m.cfg.Trace {
		m.cpu.SetTrace(true, os.Stderr)
	} else {
		m.cpu.SetTrace(false, nil)
	}
}

// applyPostBootIO mirrors the register state the DMG boot ROM leaves behind,
// for the no-boot-ROM path.
func applyPostBootIO(b *bus.Bus) {
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00)
	b.Write(0xFF06, 0x00)
	b.Write(0xFF07, 0x00)
	b.Write(0xFF40, 0x91)
	b.Write(0xFF42, 0x00)
	b.Write(0xFF43, 0x00)
	b.Write(0xFF45, 0x00)
	b.Write(0xFF47, 0xFC)
	b.Write(0xFF48, 0xFF)
	b.Write(0xFF49, 0xFF)
	b.Write(0xFF4A, 0x00)
	b.Write(0xFF4B, 0x00)
	b.Write(0xFFFF, 0x00)
}

// LoadCartridge wires a fresh bus+cpu around rom, returning a RomLoadError
// (cart.UnsupportedMapperError) if the cartridge's mapper isn't supported.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, err := cart.New(rom)
	if err != nil {
		return err
	}
	m.bus = bus.NewWithCartridge(c)
	m.cpu = cpu.New(m.bus)
	m.applyTrace()
	m.romTitle = ""
	if h, err := cart.ParseHeader(rom); err == nil {
		m.romTitle = h.Title
	}
	if len(boot) >= 0x100 {
		m.bootROM = boot
		m.bus.SetBootROM(boot)
		m.cpu.SP = 0xFFFE
		m.cpu.SetPC(0x0000)
	} else {
		m.bootROM = nil
		m.cpu.ResetNoBoot()
		applyPostBootIO(m.bus)
		m.cpu.SetPC(0x0100)
	}
	return nil
}

// LoadROMFromFile reads path and loads it as the active cartridge, carrying
// over any previously-set boot ROM.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data, m.bootROM); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// SetBootROM installs a boot ROM image to be used on the next Load/Reset call.
func (m *Machine) SetBootROM(data []byte) {
	m.bootROM = data
	m.bus.SetBootROM(data)
}

// SetSerialWriter directs serial-port output (SB writes with SC bit7 set) to w.
func (m *Machine) SetSerialWriter(w io.Writer) { m.bus.SetSerialWriter(w) }

// ROMPath returns the path most recently loaded via LoadROMFromFile.
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header title of the active ROM, if any.
func (m *Machine) ROMTitle() string { return m.romTitle }

// SetButtons updates the joypad state for the coming frame(s). A held button
// also wakes a STOPped CPU, per the documented STOP exit condition.
func (m *Machine) SetButtons(btn Buttons) {
	var mask byte
	if btn.Right {
		mask |= bus.JoypRight
	}
	if btn.Left {
		mask |= bus.JoypLeft
	}
	if btn.Up {
		mask |= bus.JoypUp
	}
	if btn.Down {
		mask |= bus.JoypDown
	}
	if btn.A {
		mask |= bus.JoypA
	}
	if btn.B {
		mask |= bus.JoypB
	}
	if btn.Select {
		mask |= bus.JoypSelectBtn
	}
	if btn.Start {
		mask |= bus.JoypStart
	}
	m.bus.SetJoypadState(mask)
	if m.cpu.Stopped() && m.bus.AnyButtonPressed() {
		m.cpu.Resume()
	}
}

// StepFrame runs exactly one 70224-T-state frame, rendering into the PPU's
// internal framebuffer as it goes.
func (m *Machine) StepFrame() { m.runFrame() }

// StepFrameNoRender runs one frame identically; the PPU always composes each
// scanline as it's produced; "no render" describes the caller skipping the
// blit step, not the PPU skipping work.
func (m *Machine) StepFrameNoRender() { m.runFrame() }

func (m *Machine) runFrame() {
	spent := 0
	for spent < cyclesPerFrame {
		if m.cpu.Stopped() {
			m.bus.Tick(4)
			spent += 4
			continue
		}
		spent += m.cpu.Step()
	}
}

// Framebuffer returns the current RGBA 160x144 pixel buffer. This is the
// PPU's live buffer: safe to call from the emulation thread itself (e.g.
// headless StepFrame callers), but a concurrent UI thread must instead use
// PublishedFramebuffer, which is synchronized.
func (m *Machine) Framebuffer() []byte { return m.bus.PPU().Framebuffer() }

// publish copies the PPU's live framebuffer into the mutex-guarded
// published buffer. Called by Run once per completed frame, after the PPU
// has finished writing every scanline for that frame.
func (m *Machine) publish() {
	live := m.bus.PPU().Framebuffer()
	m.fbMu.Lock()
	if len(m.published) != len(live) {
		m.published = make([]byte, len(live))
	}
	copy(m.published, live)
	m.fbMu.Unlock()
}

// PublishedFramebuffer returns a copy of the most recently published frame.
// This is the UI thread's read path: single-writer (Run, inside publish),
// single-reader (whichever goroutine calls this), behind one mutex, per
// spec.md §5's framebuffer contract.
func (m *Machine) PublishedFramebuffer() []byte {
	m.fbMu.Lock()
	defer m.fbMu.Unlock()
	out := make([]byte, len(m.published))
	copy(out, m.published)
	return out
}

// Paused reports whether Run is currently holding the machine paused. Safe
// to read from another goroutine (e.g. the UI thread, for a status overlay).
func (m *Machine) Paused() bool { return m.paused.Load() }

// FastForward reports whether Run is currently fast-forwarding (the
// ActionFastForward button held). Safe to read from another goroutine, e.g.
// the UI thread sizing its audio buffer.
func (m *Machine) FastForward() bool { return m.fast.Load() }

// applyHeld updates h in place from a joypad button press/release event.
// UI-level actions (pause, reset, screenshot, ...) are handled by Run's
// caller loop, not here.
func applyHeld(h *Buttons, ev input.Event) {
	pressed := ev.Type == input.Press
	switch ev.Button {
	case input.ButtonA:
		h.A = pressed
	case input.ButtonB:
		h.B = pressed
	case input.ButtonStart:
		h.Start = pressed
	case input.ButtonSelect:
		h.Select = pressed
	case input.ButtonUp:
		h.Up = pressed
	case input.ButtonDown:
		h.Down = pressed
	case input.ButtonLeft:
		h.Left = pressed
	case input.ButtonRight:
		h.Right = pressed
	}
}

// Run is the emulation thread of spec.md §5's two-cooperating-threads
// model: it owns all CPU/bus/PPU/timer/interrupt/joypad state and is the
// only goroutine that may call StepFrame-family methods or mutate the
// Machine while it is running. Each iteration it:
//
//  1. drains events (a bounded, lossless, many-producer-single-consumer
//     channel from the UI thread) into the held-button mask and into
//     pause/reset/step actions;
//  2. steps one 70224-T-state frame, unless paused;
//  3. publishes the framebuffer and signals frameReady, a single-slot
//     channel the UI thread drains opportunistically (a full slot means
//     the UI hasn't consumed the previous signal yet, so this send is
//     dropped rather than blocking the emulation thread);
//  4. sleeps to the DMG's frame cadence, unless cfg.LimitFPS is false.
//
// Run returns at the next frame boundary after shutdown is closed, per
// spec.md §5's "cancellation is process-scoped" model.
func (m *Machine) Run(events <-chan input.Event, frameReady chan<- struct{}, shutdown <-chan struct{}) {
	held := Buttons{}
	paused := false
	fast := false
	for {
		select {
		case <-shutdown:
			return
		default:
		}

		frameStart := time.Now()

	drain:
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					break drain
				}
				switch ev.Button {
				case input.ActionPause:
					if ev.Type == input.Press {
						paused = !paused
					}
				case input.ActionReset:
					if ev.Type == input.Press {
						m.ResetPostBoot()
					}
				case input.ActionResetWithBoot:
					if ev.Type == input.Press {
						m.ResetWithBoot()
					}
				case input.ActionStepFrame:
					if ev.Type == input.Press && paused {
						m.runFrame()
						m.publish()
					}
				case input.ActionFastForward:
					fast = ev.Type == input.Press
				default:
					applyHeld(&held, ev)
				}
			default:
				break drain
			}
		}
		m.SetButtons(held)
		m.paused.Store(paused)
		m.fast.Store(fast)

		if !paused {
			m.runFrame()
			m.publish()
		}

		select {
		case frameReady <- struct{}{}:
		default:
		}

		if !m.cfg.LimitFPS {
			continue
		}
		wait := frameWallClock
		if fast {
			wait /= 4
		}
		if elapsed := time.Since(frameStart); elapsed < wait {
			time.Sleep(wait - elapsed)
		}
	}
}

// LoadBattery restores battery-backed cartridge RAM, if the active cartridge
// supports it.
func (m *Machine) LoadBattery(data []byte) bool {
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
		return true
	}
	return false
}

// SaveBattery returns the active cartridge's battery RAM, if supported.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		return bb.SaveRAM(), true
	}
	return nil, false
}

// ResetPostBoot reinitializes CPU/IO as if the boot ROM had just finished,
// without re-running it.
func (m *Machine) ResetPostBoot() {
	m.cpu.ResetNoBoot()
	applyPostBootIO(m.bus)
	m.cpu.SetPC(0x0100)
}

// ResetWithBoot restarts execution at 0x0000 through the loaded boot ROM, if any.
func (m *Machine) ResetWithBoot() {
	if len(m.bootROM) >= 0x100 {
		m.bus.SetBootROM(m.bootROM)
		m.cpu.SP = 0xFFFE
		m.cpu.SetPC(0x0000)
	} else {
		m.ResetPostBoot()
	}
}

// SetUseFetcherBG is retained for UI config wiring; the fetcher/FIFO path is
// the only background renderer implemented.
func (m *Machine) SetUseFetcherBG(v bool) { m.cfg.UseFetcherBG = v }

// Audio is accepted and wired through to an ebiten/oto player by the UI, but
// the APU produces no samples (no Non-goal real sound synthesis): these
// always report/serve silence so the UI's audio path has something to play.
func (m *Machine) APUBufferedStereo() int      { return 0 }
func (m *Machine) APUPullStereo(n int) []int16 { return nil }
func (m *Machine) APUClearAudioLatency()       {}
func (m *Machine) APUCapBufferedStereo(n int)  {}
