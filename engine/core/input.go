package core

import "sync"

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_SHIFT     KeyCode = 0x10
	KEY_CONTROL   KeyCode = 0x11
	KEY_PAUSE     KeyCode = 0x13
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_END       KeyCode = 0x23
	KEY_HOME      KeyCode = 0x24
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_INSERT    KeyCode = 0x2D
	KEY_DELETE    KeyCode = 0x2E
	KEY_A         KeyCode = 0x41
	KEY_B         KeyCode = 0x42
	KEY_C         KeyCode = 0x43
	KEY_D         KeyCode = 0x44
	KEY_E         KeyCode = 0x45
	KEY_F         KeyCode = 0x46
	KEY_G         KeyCode = 0x47
	KEY_H         KeyCode = 0x48
	KEY_I         KeyCode = 0x49
	KEY_J         KeyCode = 0x4A
	KEY_K         KeyCode = 0x4B
	KEY_L         KeyCode = 0x4C
	KEY_M         KeyCode = 0x4D
	KEY_N         KeyCode = 0x4E
	KEY_O         KeyCode = 0x4F
	KEY_P         KeyCode = 0x50
	KEY_Q         KeyCode = 0x51
	KEY_R         KeyCode = 0x52
	KEY_S         KeyCode = 0x53
	KEY_T         KeyCode = 0x54
	KEY_U         KeyCode = 0x55
	KEY_V         KeyCode = 0x56
	KEY_W         KeyCode = 0x57
	KEY_X         KeyCode = 0x58
	KEY_Y         KeyCode = 0x59
	KEY_Z         KeyCode = 0x5A
	KEY_F1        KeyCode = 0x70
	KEY_F2        KeyCode = 0x71
	KEY_F3        KeyCode = 0x72
	KEY_F4        KeyCode = 0x73
	KEY_F5        KeyCode = 0x74
	KEY_F6        KeyCode = 0x75
	KEY_F7        KeyCode = 0x76
	KEY_F8        KeyCode = 0x77
	KEY_F9        KeyCode = 0x78
	KEY_F10       KeyCode = 0x79
	KEY_F11       KeyCode = 0x7A
	KEY_F12       KeyCode = 0x7B

	KEYS_MAX_KEYS KeyCode = 0x100
)

type keyboardState struct {
	keys [KEYS_MAX_KEYS]bool
}

type mouseState struct {
	x       int16
	y       int16
	buttons [BUTTON_MAX_BUTTONS]bool
}

// InputSystem keeps the current and previous frame's keyboard and mouse
// state. The platform layer feeds it from window callbacks; Update promotes
// the current state at the end of each frame.
type InputSystem struct {
	mu sync.RWMutex

	keyboardCurrent  keyboardState
	keyboardPrevious keyboardState
	mouseCurrent     mouseState
	mousePrevious    mouseState

	events *EventSystem
}

func NewInputSystem(events *EventSystem) *InputSystem {
	return &InputSystem{events: events}
}

// Update rolls the current state into the previous one. Call once per frame
// after all input has been processed.
func (is *InputSystem) Update() {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.keyboardPrevious = is.keyboardCurrent
	is.mousePrevious = is.mouseCurrent
}

func (is *InputSystem) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS {
		return
	}
	is.mu.Lock()
	changed := is.keyboardCurrent.keys[key] != pressed
	is.keyboardCurrent.keys[key] = pressed
	is.mu.Unlock()

	if !changed || is.events == nil {
		return
	}
	var context EventContext
	context.Data.U16[0] = uint16(key)
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	is.events.Fire(code, is, context)
}

func (is *InputSystem) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS {
		return
	}
	is.mu.Lock()
	changed := is.mouseCurrent.buttons[button] != pressed
	is.mouseCurrent.buttons[button] = pressed
	is.mu.Unlock()

	if !changed || is.events == nil {
		return
	}
	var context EventContext
	context.Data.U16[0] = uint16(button)
	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	is.events.Fire(code, is, context)
}

func (is *InputSystem) ProcessMouseMove(x, y int16) {
	is.mu.Lock()
	moved := is.mouseCurrent.x != x || is.mouseCurrent.y != y
	is.mouseCurrent.x = x
	is.mouseCurrent.y = y
	is.mu.Unlock()

	if !moved || is.events == nil {
		return
	}
	var context EventContext
	context.Data.U16[0] = uint16(x)
	context.Data.U16[1] = uint16(y)
	is.events.Fire(EVENT_CODE_MOUSE_MOVED, is, context)
}

func (is *InputSystem) IsKeyDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	is.mu.RLock()
	defer is.mu.RUnlock()
	return is.keyboardCurrent.keys[key]
}

func (is *InputSystem) WasKeyDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	is.mu.RLock()
	defer is.mu.RUnlock()
	return is.keyboardPrevious.keys[key]
}

func (is *InputSystem) IsButtonDown(button Button) bool {
	if button >= BUTTON_MAX_BUTTONS {
		return false
	}
	is.mu.RLock()
	defer is.mu.RUnlock()
	return is.mouseCurrent.buttons[button]
}

func (is *InputSystem) MousePosition() (int16, int16) {
	is.mu.RLock()
	defer is.mu.RUnlock()
	return is.mouseCurrent.x, is.mouseCurrent.y
}
