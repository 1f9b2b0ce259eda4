package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputKeyTransitions(t *testing.T) {
	events := NewEventSystem()
	input := NewInputSystem(events)

	pressed := 0
	released := 0
	events.Register(EVENT_CODE_KEY_PRESSED, input, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		pressed++
		assert.EqualValues(t, KEY_SPACE, data.Data.U16[0])
		return false
	})
	events.Register(EVENT_CODE_KEY_RELEASED, input, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		released++
		return false
	})

	input.ProcessKey(KEY_SPACE, true)
	assert.True(t, input.IsKeyDown(KEY_SPACE))
	assert.False(t, input.WasKeyDown(KEY_SPACE))
	assert.Equal(t, 1, pressed)

	// Holding the key fires no repeat event.
	input.ProcessKey(KEY_SPACE, true)
	assert.Equal(t, 1, pressed)

	input.Update()
	assert.True(t, input.WasKeyDown(KEY_SPACE), "Update promotes current state to previous")

	input.ProcessKey(KEY_SPACE, false)
	assert.False(t, input.IsKeyDown(KEY_SPACE))
	assert.Equal(t, 1, released)
}

func TestInputMouse(t *testing.T) {
	events := NewEventSystem()
	input := NewInputSystem(events)

	moves := 0
	events.Register(EVENT_CODE_MOUSE_MOVED, input, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		moves++
		return false
	})

	input.ProcessButton(BUTTON_LEFT, true)
	assert.True(t, input.IsButtonDown(BUTTON_LEFT))

	input.ProcessMouseMove(120, 80)
	x, y := input.MousePosition()
	assert.EqualValues(t, 120, x)
	assert.EqualValues(t, 80, y)
	assert.Equal(t, 1, moves)

	// No movement, no event.
	input.ProcessMouseMove(120, 80)
	assert.Equal(t, 1, moves)
}
