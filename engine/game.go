package engine

// Game carries the application-provided callbacks driven by the engine loop.
// Every hook is optional; a nil hook is skipped.
type Game struct {
	// State is an opaque slot for application data, threaded through
	// untouched.
	State interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func(engine *Engine) error
type Update func(deltaTime float64) error
type Render func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
