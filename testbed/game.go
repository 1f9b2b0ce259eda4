/*
Package testbed is a small example application exercising the engine: a
scene pass rendering a colored triangle into an offscreen target, followed
by a post pass that consumes it, with the two passes ordered through
semaphores.
*/
package testbed

import (
	"encoding/binary"
	"math"

	"github.com/spaghettifunk/mirage/engine"
	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

type testGameState struct {
	engine *engine.Engine

	sceneProgram *renderer.ShaderProgram
	postProgram  *renderer.ShaderProgram

	scenePass *renderer.RenderPass
	postPass  *renderer.RenderPass

	vertexBuffer  gpu.Buffer
	uniformBuffer gpu.Buffer

	elapsed float64
}

func NewTestGame() *engine.Game {
	state := &testGameState{}
	return &engine.Game{
		State:        state,
		FnInitialize: state.initialize,
		FnUpdate:     state.update,
		FnRender:     state.render,
		FnOnResize:   state.onResize,
		FnShutdown:   state.shutdown,
	}
}

// Vertex layout: position (vec2) + color (vec3), tightly packed.
const vertexStride = 5 * 4

func (s *testGameState) initialize(e *engine.Engine) error {
	s.engine = e
	r := e.Renderer()

	sceneReflection := &renderer.Reflection{
		Bindings: []renderer.ReflectionBinding{
			{Name: "globals", Set: 0, Binding: 0, Type: gpu.DescriptorUniformBuffer, Count: 1, Stages: gpu.StageVertex | gpu.StageFragment},
		},
	}
	sceneProgram, err := r.NewShaderProgramFromFiles(sceneReflection, map[gpu.ShaderStage]string{
		gpu.StageVertex:   "testbed/assets/shaders/scene.vert.spv",
		gpu.StageFragment: "testbed/assets/shaders/scene.frag.spv",
	}, true)
	if err != nil {
		return err
	}
	s.sceneProgram = sceneProgram

	postReflection := &renderer.Reflection{
		Bindings: []renderer.ReflectionBinding{
			{Name: "sceneColor", Set: 0, Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.StageFragment},
		},
	}
	postProgram, err := r.NewShaderProgramFromFiles(postReflection, map[gpu.ShaderStage]string{
		gpu.StageVertex:   "testbed/assets/shaders/post.vert.spv",
		gpu.StageFragment: "testbed/assets/shaders/post.frag.spv",
	}, true)
	if err != nil {
		return err
	}
	s.postProgram = postProgram

	extent := gpu.Extent2D{Width: 1280, Height: 720}

	scenePass, err := r.NewRenderPass(renderer.RenderPassConfig{
		Extent:              extent,
		ClearColor:          [4]float32{0.0, 0.0, 0.2, 1.0},
		DepthClear:          1.0,
		TransientBufferSize: 256,
	})
	if err != nil {
		return err
	}
	scenePass.AddAttachment(gpu.FormatR8G8B8A8Unorm)
	scenePass.AddAttachment(gpu.FormatD32Sfloat)
	scenePass.SetExtent(extent)
	s.scenePass = scenePass

	postPass, err := r.NewRenderPass(renderer.RenderPassConfig{
		Presentable: true,
		Extent:      extent,
		ClearColor:  [4]float32{0, 0, 0, 1},
	})
	if err != nil {
		return err
	}
	postPass.AddAttachment(gpu.FormatB8G8R8A8Unorm)
	postPass.SetExtent(extent)
	s.postPass = postPass

	// The scene's output is consumed by the post pass.
	scenePass.ExecuteBefore(postPass)

	backend := r.Backend()

	vertices := triangleVertices()
	vertexBuffer, err := backend.CreateBuffer(uint64(len(vertices)), gpu.BufferUsageVertex)
	if err != nil {
		return err
	}
	if err := backend.WriteBuffer(vertexBuffer, 0, vertices); err != nil {
		return err
	}
	s.vertexBuffer = vertexBuffer

	uniformBuffer, err := backend.CreateBuffer(64, gpu.BufferUsageUniform)
	if err != nil {
		return err
	}
	s.uniformBuffer = uniformBuffer

	core.LogInfo("testbed initialized")
	return nil
}

func (s *testGameState) update(deltaTime float64) error {
	s.elapsed += deltaTime

	// Animate a tint angle in the globals uniform.
	angle := float32(math.Mod(s.elapsed, 2*math.Pi))
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(angle))
	return s.engine.Renderer().Backend().WriteBuffer(s.uniformBuffer, 0, data)
}

func (s *testGameState) render(deltaTime float64) error {
	if err := s.renderScene(); err != nil {
		return err
	}
	return s.renderPost()
}

func (s *testGameState) renderScene() error {
	slot, err := s.scenePass.AcquireFrame()
	if err != nil {
		return err
	}

	state := slot.Commands.GraphicsState()
	state.Program = s.sceneProgram
	state.VertexBindings = []gpu.VertexBinding{
		{Binding: 0, Stride: vertexStride, InputRate: gpu.InputRateVertex},
	}
	state.VertexAttributes = []gpu.VertexAttribute{
		{Location: 0, Binding: 0, Format: gpu.FormatR32G32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: gpu.FormatR32G32B32Sfloat, Offset: 8},
	}
	state.DepthStencil = gpu.DepthStencilState{
		DepthTest:  true,
		DepthWrite: true,
		DepthOp:    gpu.CompareOpLess,
	}

	slot.Commands.BindUniformBuffer(0, 0, s.uniformBuffer, 0, 64)
	slot.Commands.BindVertexBuffers(0, []gpu.Buffer{s.vertexBuffer}, []uint64{0})
	if err := slot.Commands.Draw(3, 1, 0, 0); err != nil {
		return err
	}

	return s.scenePass.SubmitFrame(slot)
}

func (s *testGameState) renderPost() error {
	slot, err := s.postPass.AcquireFrame()
	if err != nil {
		return err
	}

	state := slot.Commands.GraphicsState()
	state.Program = s.postProgram
	state.CullMode = gpu.CullModeNone

	// Fullscreen triangle generated in the vertex shader; only the scene
	// color attachment is bound.
	sceneColor := s.scenePass.AttachmentImage(0)
	slot.Commands.BindCombinedImageSampler(0, 0, sceneColor)
	if err := slot.Commands.Draw(3, 1, 0, 0); err != nil {
		return err
	}

	return s.postPass.SubmitFrame(slot)
}

func (s *testGameState) onResize(width, height uint32) error {
	extent := gpu.Extent2D{Width: width, Height: height}
	s.scenePass.SetExtent(extent)
	s.postPass.SetExtent(extent)
	return nil
}

func (s *testGameState) shutdown() error {
	backend := s.engine.Renderer().Backend()
	backend.DestroyBuffer(s.vertexBuffer)
	backend.DestroyBuffer(s.uniformBuffer)
	return nil
}

func triangleVertices() []byte {
	floats := []float32{
		// x, y, r, g, b
		0.0, -0.5, 1, 0, 0,
		0.5, 0.5, 0, 1, 0,
		-0.5, 0.5, 0, 0, 1,
	}
	out := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
