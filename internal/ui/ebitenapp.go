package ui

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/display"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/input"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/scheduler"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// App adapts a scheduler.Machine to ebiten's Game interface. Per spec.md
// §5's two-cooperating-threads model, App is the UI thread: it owns the
// window, polls keyboard state, and renders, while a *scheduler.Machine.Run
// goroutine is the emulation thread and owns all emulator state. The two
// communicate only through events (a bounded input channel), frameReady (a
// single-slot frame-complete signal), and the Machine's mutex-guarded
// published framebuffer — App never calls Machine methods that mutate
// emulator state directly.
type App struct {
	cfg Config
	m   *scheduler.Machine
	in  *ebitenSource
	tex *ebiten.Image

	events     chan input.Event
	frameReady chan struct{}
	shutdown   chan struct{}

	audioMuted bool

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	audioSrc    *apuStream

	toastMsg   string
	toastUntil time.Time
}

func NewApp(cfg Config, m *scheduler.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	a := &App{
		cfg:        cfg,
		m:          m,
		in:         &ebitenSource{},
		events:     make(chan input.Event, 256),
		frameReady: make(chan struct{}, 1),
		shutdown:   make(chan struct{}),
	}
	a.audioCtx = audio.NewContext(48000)
	if m != nil {
		m.SetUseFetcherBG(cfg.UseFetcherBG)
		if t := m.ROMTitle(); t != "" {
			ebiten.SetWindowTitle(cfg.Title + " - [" + t + "]")
		}
		go m.Run(a.events, a.frameReady, a.shutdown)
	}
	return a
}

// Run starts ebiten's window/event loop (the UI thread). Closing shutdown
// on return is the UI thread's close request to the emulation thread: per
// spec.md §5, the emulation thread observes it and exits at its next frame
// boundary rather than being killed mid-frame.
func (a *App) Run() error {
	defer close(a.shutdown)
	return ebiten.RunGame(a)
}

func (a *App) Update() error {
	if a.audioPlayer == nil {
		a.audioMuted = true
		a.audioSrc = &apuStream{m: a.m, mono: !a.cfg.AudioStereo, muted: &a.audioMuted, lowLatency: a.cfg.AudioLowLatency}
		if p, err := a.audioCtx.NewPlayer(a.audioSrc); err == nil {
			a.audioPlayer = p
			a.applyPlayerBufferSize()
			a.audioPlayer.Play()
		}
	}
	a.audioMuted = a.m.Paused()

	a.in.refill()
	for {
		ev, ok := a.in.Poll()
		if !ok {
			break
		}
		switch ev.Button {
		case input.ActionFullscreen:
			if ev.Type == input.Press {
				ebiten.SetFullscreen(!ebiten.IsFullscreen())
			}
		case input.ActionScreenshot:
			if ev.Type == input.Press {
				if err := a.saveScreenshot(); err != nil {
					a.toast("screenshot failed: " + err.Error())
				} else {
					a.toast("screenshot saved")
				}
			}
		default:
			// Joypad buttons and machine-affecting actions (pause, reset,
			// step, fast-forward) cross to the emulation thread over the
			// bounded events channel; a full buffer makes Update wait until
			// Run drains it (every frame), so no event is lost.
			a.events <- ev
		}
	}

	return nil
}

// Blit implements display.Display by uploading a finished frame to the
// on-screen texture.
func (a *App) Blit(f display.Frame) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(f.Width, f.Height)
	}
	a.tex.WritePixels(f.Pixels)
}

func (a *App) Draw(screen *ebiten.Image) {
	// Non-blocking drain of the single-slot frame-complete channel: if the
	// emulation thread has published a new frame since the last Draw, blit
	// it; otherwise redraw the previous texture rather than stalling
	// ebiten's render loop waiting on the emulation thread.
	select {
	case <-a.frameReady:
		a.Blit(display.Frame{Pixels: a.m.PublishedFramebuffer(), Width: 160, Height: 144})
	default:
	}
	if a.tex != nil {
		screen.DrawImage(a.tex, nil)
	}

	if a.toastMsg != "" && time.Now().Before(a.toastUntil) {
		ebitenutil.DebugPrintAt(screen, a.toastMsg, 4, 4)
	}
	if a.m.Paused() {
		ebitenutil.DebugPrintAt(screen, "PAUSED", 4, 4)
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return 160, 144 }

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

func (a *App) saveScreenshot() error {
	fb := a.m.PublishedFramebuffer()
	img := &image.RGBA{
		Pix:    make([]byte, len(fb)),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	copy(img.Pix, fb)
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// ebitenSource implements input.Source over ebiten's keyboard state,
// turning inpututil's edge detection into a queue of Press/Release events
// for joypad buttons and UI actions. Joypad buttons are queued as
// press/release pairs rather than resampled as a held-state mask each
// tick, since the emulation thread (scheduler.Machine.Run) now owns the
// held-button state and reconstructs it from these events.
type ebitenSource struct {
	queue []input.Event
}

var keyButtons = []struct {
	key ebiten.Key
	btn input.Button
}{
	{ebiten.KeyRight, input.ButtonRight},
	{ebiten.KeyLeft, input.ButtonLeft},
	{ebiten.KeyUp, input.ButtonUp},
	{ebiten.KeyDown, input.ButtonDown},
	{ebiten.KeyZ, input.ButtonA},
	{ebiten.KeyX, input.ButtonB},
	{ebiten.KeyEnter, input.ButtonStart},
	{ebiten.KeyShiftRight, input.ButtonSelect},
}

var keyActions = []struct {
	key ebiten.Key
	act input.Button
}{
	{ebiten.KeyP, input.ActionPause},
	{ebiten.KeyR, input.ActionReset},
	{ebiten.KeyB, input.ActionResetWithBoot},
	{ebiten.KeyN, input.ActionStepFrame},
	{ebiten.KeyF11, input.ActionFullscreen},
	{ebiten.KeyF12, input.ActionScreenshot},
}

// refill scans this tick's key transitions into the poll queue.
func (s *ebitenSource) refill() {
	s.queue = s.queue[:0]
	for _, kb := range keyButtons {
		if inpututil.IsKeyJustPressed(kb.key) {
			s.queue = append(s.queue, input.Event{Button: kb.btn, Type: input.Press})
		}
		if inpututil.IsKeyJustReleased(kb.key) {
			s.queue = append(s.queue, input.Event{Button: kb.btn, Type: input.Release})
		}
	}
	for _, ka := range keyActions {
		if inpututil.IsKeyJustPressed(ka.key) {
			s.queue = append(s.queue, input.Event{Button: ka.act, Type: input.Press})
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		s.queue = append(s.queue, input.Event{Button: input.ActionFastForward, Type: input.Press})
	}
	if inpututil.IsKeyJustReleased(ebiten.KeyTab) {
		s.queue = append(s.queue, input.Event{Button: input.ActionFastForward, Type: input.Release})
	}
}

func (s *ebitenSource) Poll() (input.Event, bool) {
	if len(s.queue) == 0 {
		return input.Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}
