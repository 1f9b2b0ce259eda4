package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/mirage/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type platformState uint8

const (
	stateIdle platformState = iota
	stateStarted
	stateStopped
)

// Platform owns the window and the GLFW lifetime. Startup and Shutdown form
// a strict pair: Startup must be called exactly once before any other use,
// and Shutdown exactly once afterwards.
type Platform struct {
	Window *glfw.Window

	state     platformState
	headless  bool
	events    *core.EventSystem
	input     *core.InputSystem
	startTime float64
}

type Options struct {
	// Headless skips window creation; GLFW is still initialized so the
	// Vulkan loader can be resolved.
	Headless bool
	Events   *core.EventSystem
	Input    *core.InputSystem
}

func New(options Options) *Platform {
	return &Platform{
		headless: options.Headless,
		events:   options.Events,
		input:    options.Input,
	}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if p.state != stateIdle {
		return core.ConfigurationError("platform started twice")
	}

	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	p.state = stateStarted
	p.startTime = glfw.GetTime()

	if p.headless {
		core.LogInfo("platform running headless, no window created")
		return nil
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.state != stateStarted {
		return fmt.Errorf("platform shutdown without a successful startup")
	}
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	p.state = stateStopped
	return nil
}

// PumpMessages processes pending window events. Returns false when the
// window has been asked to close.
func (p *Platform) PumpMessages() bool {
	if p.state != stateStarted {
		return false
	}
	glfw.PollEvents()
	if p.Window != nil && p.Window.ShouldClose() {
		return false
	}
	return true
}

// Uptime returns the seconds elapsed since Startup.
func (p *Platform) Uptime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if p.input == nil {
		return
	}
	code, ok := translateKey(key)
	if !ok {
		return
	}
	switch action {
	case glfw.Press:
		p.input.ProcessKey(code, true)
	case glfw.Release:
		p.input.ProcessKey(code, false)
	}
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	if p.input == nil {
		return
	}
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	p.input.ProcessButton(b, action == glfw.Press)
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	if p.input != nil {
		p.input.ProcessMouseMove(int16(xpos), int16(ypos))
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	if p.events == nil {
		return
	}
	var context core.EventContext
	context.Data.U16[0] = uint16(width)
	context.Data.U16[1] = uint16(height)
	p.events.Fire(core.EVENT_CODE_RESIZED, p, context)
}

func (p *Platform) closeCallback(w *glfw.Window) {
	if p.events != nil {
		p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
	}
}

func translateKey(key glfw.Key) (core.KeyCode, bool) {
	switch {
	case key >= glfw.KeyA && key <= glfw.KeyZ:
		return core.KEY_A + core.KeyCode(key-glfw.KeyA), true
	case key >= glfw.KeyF1 && key <= glfw.KeyF12:
		return core.KEY_F1 + core.KeyCode(key-glfw.KeyF1), true
	}
	switch key {
	case glfw.KeyEscape:
		return core.KEY_ESCAPE, true
	case glfw.KeyEnter:
		return core.KEY_ENTER, true
	case glfw.KeyTab:
		return core.KEY_TAB, true
	case glfw.KeyBackspace:
		return core.KEY_BACKSPACE, true
	case glfw.KeySpace:
		return core.KEY_SPACE, true
	case glfw.KeyLeftShift, glfw.KeyRightShift:
		return core.KEY_SHIFT, true
	case glfw.KeyLeftControl, glfw.KeyRightControl:
		return core.KEY_CONTROL, true
	case glfw.KeyLeft:
		return core.KEY_LEFT, true
	case glfw.KeyRight:
		return core.KEY_RIGHT, true
	case glfw.KeyUp:
		return core.KEY_UP, true
	case glfw.KeyDown:
		return core.KEY_DOWN, true
	case glfw.KeyHome:
		return core.KEY_HOME, true
	case glfw.KeyEnd:
		return core.KEY_END, true
	case glfw.KeyInsert:
		return core.KEY_INSERT, true
	case glfw.KeyDelete:
		return core.KEY_DELETE, true
	default:
		return 0, false
	}
}
