package engine

import (
	"sync/atomic"

	"github.com/spaghettifunk/mirage/engine/config"
	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/platform"
	"github.com/spaghettifunk/mirage/engine/renderer"
	"github.com/spaghettifunk/mirage/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine finished shutting down
	EngineStageShutDown
)

// Engine wires the platform, the event and input systems and the renderer
// together and drives the game loop. Initialize and Shutdown follow a
// strict single-call contract enforced through the stage field; there is no
// package-level state.
type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	isSuspended  bool

	config   *config.Config
	platform *platform.Platform
	events   *core.EventSystem
	input    *core.InputSystem
	renderer *renderer.Renderer

	width  uint32
	height uint32
	clock  *core.Clock
}

// New assembles an engine around the given configuration and game. Nothing
// touches the GPU or the windowing system until Initialize.
func New(cfg *config.Config, g *Game) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g == nil {
		g = &Game{}
	}

	events := core.NewEventSystem()
	input := core.NewInputSystem(events)

	p := platform.New(platform.Options{
		Headless: cfg.Renderer.Headless,
		Events:   events,
		Input:    input,
	})

	backend := vulkan.New(cfg.Renderer.Validation)
	r := renderer.New(backend, renderer.Options{
		RingDepth:      cfg.Renderer.RingDepth,
		MaxSetsPerPool: cfg.Renderer.MaxSetsPerPool,
		FenceTimeout:   cfg.Renderer.FenceTimeout,
	})

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		platform:     p,
		events:       events,
		input:        input,
		renderer:     r,
		width:        cfg.Application.Width,
		height:       cfg.Application.Height,
		clock:        core.NewClock(),
	}, nil
}

// Renderer exposes the renderer for the game's initialize hook.
func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

// Events exposes the event system for application listeners.
func (e *Engine) Events() *core.EventSystem {
	return e.events
}

// Input exposes the keyboard and mouse state.
func (e *Engine) Input() *core.InputSystem {
	return e.input
}

// Initialize brings up the platform, the renderer backend and the game.
// Calling it twice is an error.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return core.ConfigurationError("engine initialized twice")
	}
	e.currentStage = EngineStageInitializing

	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	if err := e.platform.Startup(e.config.Application.Name, 100, 100, e.width, e.height); err != nil {
		return err
	}

	if err := e.renderer.Initialize(e.config.Application.Name, e.width, e.height); err != nil {
		return err
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized")
	return nil
}

// Run drives the game loop until the window closes, a quit event fires or
// Stop is called.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ConfigurationError("engine must be initialized before running")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			continue
		}

		deltaSeconds := e.clock.Tick()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(deltaSeconds); err != nil {
				core.LogError("game update failed: %s", err)
				e.isRunning.Store(false)
				break
			}
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(deltaSeconds); err != nil {
				core.LogError("game render failed: %s", err)
				e.isRunning.Store(false)
				break
			}
		}

		e.input.Update()
		core.MetricsUpdate(deltaSeconds)
	}

	e.isRunning.Store(false)
	return e.Shutdown()
}

// Stop requests the loop to exit after the current frame. Safe to call from
// any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Shutdown tears everything down in reverse initialization order. Calling
// it twice is an error; Run calls it on exit.
func (e *Engine) Shutdown() error {
	switch e.currentStage {
	case EngineStageShuttingDown, EngineStageShutDown:
		return core.ConfigurationError("engine shut down twice")
	case EngineStageUninitialized:
		return core.ConfigurationError("engine shut down before initialization")
	}
	e.currentStage = EngineStageShuttingDown

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown failed: %s", err)
		}
	}

	if err := e.renderer.Shutdown(); err != nil {
		core.LogError("renderer shutdown failed: %s", err)
	}
	if err := e.platform.Shutdown(); err != nil {
		core.LogError("platform shutdown failed: %s", err)
	}
	e.events.Shutdown()

	e.currentStage = EngineStageShutDown
	core.LogInfo("engine shut down")
	return nil
}

func (e *Engine) onQuit(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	core.LogInfo("quit requested")
	e.Stop()
	return true
}

func (e *Engine) onKey(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	if core.KeyCode(data.Data.U16[0]) == core.KEY_ESCAPE {
		e.Stop()
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	width := uint32(data.Data.U16[0])
	height := uint32(data.Data.U16[1])
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height

	// Minimized window: stop rendering until restored.
	if width == 0 || height == 0 {
		core.LogInfo("window minimized, suspending")
		e.isSuspended = true
		return true
	}
	e.isSuspended = false

	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("game resize failed: %s", err)
		}
	}
	return false
}
