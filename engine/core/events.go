package core

import "sync"

// EventContext is the fixed-size payload fired alongside an event code.
type EventContext struct {
	Data struct {
		I64 [2]int64
		U64 [2]uint64
		F64 [2]float64

		U32 [4]uint32
		F32 [4]float32

		U16 [8]uint16
		U8  [16]uint8
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed. Key code in data.U16[0].
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released. Key code in data.U16[0].
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Mouse button pressed. Button in data.U16[0].
	EVENT_CODE_BUTTON_PRESSED SystemEventCode = 0x04

	// Mouse button released. Button in data.U16[0].
	EVENT_CODE_BUTTON_RELEASED SystemEventCode = 0x05

	// Mouse moved. x in data.U16[0], y in data.U16[1].
	EVENT_CODE_MOUSE_MOVED SystemEventCode = 0x06

	// Resized/resolution changed from the OS. Width in data.U16[0],
	// height in data.U16[1].
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled; handled events stop propagating.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventSystem routes fired events to registered listeners. It is owned by
// the engine and handed to the subsystems that need it; there is no package
// level instance.
type EventSystem struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

// Register listens for events fired with the provided code. Duplicate
// listener registrations for the same code are rejected.
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, e := range es.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	es.registered[code] = append(es.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes a previous registration. Returns false when no
// matching registration exists.
func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener {
			es.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire sends an event to listeners of the given code. When a handler
// returns true the event is considered handled and propagation stops.
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	es.mu.RLock()
	events := make([]*registeredEvent, len(es.registered[code]))
	copy(events, es.registered[code])
	es.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration. The system is unusable afterwards.
func (es *EventSystem) Shutdown() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.registered = make(map[SystemEventCode][]*registeredEvent)
}
