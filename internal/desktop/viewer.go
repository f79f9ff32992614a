// Package desktop hosts a session in a native window.
package desktop

import (
	"context"
	"errors"
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"BusScope/internal/desktop/controls"
	"BusScope/internal/services/render"
	"BusScope/internal/usecase"
	"BusScope/pkg/logger"
)

var shortcuts = map[ebiten.Key]controls.Action{
	ebiten.KeySpace: controls.TogglePause,
	ebiten.KeyC:     controls.ToggleCursors,
	ebiten.KeyM:     controls.ToggleMode,
	ebiten.KeyE:     controls.ToggleEdit,
	ebiten.KeyA:     controls.AutoScale,
	ebiten.KeyR:     controls.ResetScale,
}

// Viewer is an ebiten game showing one session. Update feeds input to the
// session and fetches the newest frame; Draw only blits it.
type Viewer struct {
	ctx     context.Context
	session *usecase.Session
	log     *logger.Logger
	pointer controls.Tracker

	width, height int

	frame *image.RGBA
	seq   uint64
	shown uint64
	img   *ebiten.Image
}

func NewViewer(ctx context.Context, s *usecase.Session, log *logger.Logger) *Viewer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Viewer{ctx: ctx, session: s, log: log.Component("desktop")}
}

// Run opens the window and blocks until it closes or the session ends.
func Run(v *Viewer, title string, width, height int) error {
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(width, height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(60)
	if err := ebiten.RunGame(v); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

func (v *Viewer) Update() error {
	if v.ctx.Err() != nil || v.session.Closed() {
		return ebiten.Termination
	}

	for key, action := range shortcuts {
		if inpututil.IsKeyJustPressed(key) {
			v.session.Post(action.Task())
		}
	}

	x, y := ebiten.CursorPosition()
	wx, wy := ebiten.Wheel()
	tasks := v.pointer.Step(controls.PointerState{
		X:       float64(x),
		Y:       float64(y),
		Pressed: ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft),
		Inside:  x >= 0 && y >= 0 && x < v.width && y < v.height,
		WheelX:  wx,
		WheelY:  wy,
	})
	for _, task := range tasks {
		v.session.Post(task)
	}

	frame, seq, err := v.session.CopyFrame(v.ctx, v.frame, v.seq)
	switch {
	case errors.Is(err, usecase.ErrSessionClosed):
		return ebiten.Termination
	case err != nil:
		v.log.Warn("frame unavailable", logger.Error(err))
	}
	v.frame, v.seq = frame, seq
	return nil
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	if v.frame == nil {
		return
	}
	b := v.frame.Bounds()
	if v.img == nil || v.img.Bounds().Dx() != b.Dx() || v.img.Bounds().Dy() != b.Dy() {
		if v.img != nil {
			v.img.Deallocate()
		}
		v.img = ebiten.NewImage(b.Dx(), b.Dy())
		v.shown = 0
	}
	if v.shown != v.seq {
		v.img.WritePixels(v.frame.Pix)
		v.shown = v.seq
	}
	screen.DrawImage(v.img, nil)
}

// Layout keeps the session viewport equal to the window size.
func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != v.width || outsideHeight != v.height {
		v.width, v.height = outsideWidth, outsideHeight
		vp := render.Viewport{Width: float64(outsideWidth), Height: float64(outsideHeight), PixelRatio: 1}
		v.session.Post(func(vs *usecase.ViewState) { vs.SetViewport(vp) })
	}
	return outsideWidth, outsideHeight
}
