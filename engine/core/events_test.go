package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSystemRegisterAndFire(t *testing.T) {
	es := NewEventSystem()
	listener := new(int)

	var got EventContext
	fired := 0
	assert.True(t, es.Register(EVENT_CODE_RESIZED, listener, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		fired++
		got = data
		return true
	}))

	var data EventContext
	data.Data.U16[0] = 800
	data.Data.U16[1] = 600
	assert.True(t, es.Fire(EVENT_CODE_RESIZED, nil, data))
	assert.Equal(t, 1, fired)
	assert.EqualValues(t, 800, got.Data.U16[0])

	assert.False(t, es.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}), "no listener for that code")
}

func TestEventSystemDuplicateListener(t *testing.T) {
	es := NewEventSystem()
	listener := new(int)
	cb := func(code SystemEventCode, sender, l interface{}, data EventContext) bool { return false }

	assert.True(t, es.Register(EVENT_CODE_KEY_PRESSED, listener, cb))
	assert.False(t, es.Register(EVENT_CODE_KEY_PRESSED, listener, cb), "same listener twice for one code")
	assert.True(t, es.Register(EVENT_CODE_KEY_RELEASED, listener, cb), "same listener on another code is fine")
}

func TestEventSystemHandledStopsPropagation(t *testing.T) {
	es := NewEventSystem()
	first := new(int)
	second := new(int)

	reachedSecond := false
	es.Register(EVENT_CODE_KEY_PRESSED, first, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		return true
	})
	es.Register(EVENT_CODE_KEY_PRESSED, second, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		reachedSecond = true
		return false
	})

	assert.True(t, es.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{}))
	assert.False(t, reachedSecond, "a handled event stops propagating")
}

func TestEventSystemUnregister(t *testing.T) {
	es := NewEventSystem()
	listener := new(int)

	fired := false
	es.Register(EVENT_CODE_BUTTON_PRESSED, listener, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		fired = true
		return false
	})

	assert.True(t, es.Unregister(EVENT_CODE_BUTTON_PRESSED, listener))
	assert.False(t, es.Unregister(EVENT_CODE_BUTTON_PRESSED, listener), "already removed")
	es.Fire(EVENT_CODE_BUTTON_PRESSED, nil, EventContext{})
	assert.False(t, fired)
}

func TestEventSystemShutdown(t *testing.T) {
	es := NewEventSystem()
	listener := new(int)
	es.Register(EVENT_CODE_MOUSE_MOVED, listener, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		return true
	})

	es.Shutdown()
	assert.False(t, es.Fire(EVENT_CODE_MOUSE_MOVED, nil, EventContext{}))
}
