package forge

import (
	"math"
	"reflect"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// MeshComponent is the declarative render shape: a primitive name resolved
// through the AssetServer plus an optional texture path. GPU-side objects
// are created and cached by the renderer, never stored on the entity.
// MeshComponent selects a primitive mesh and, optionally, a texture file by
// its on-disk path. The path is part of the persisted record.
type MeshComponent struct {
	Primitive string `json:"primitive"`
	AssetPath string `json:"asset_path,omitempty"`
}

// LineVertex feeds the wireframe (gizmo) pipeline.
type LineVertex struct {
	Position [3]float32 `forge:"layout" format:"float3" location:"0"`
	Color    [4]float32 `forge:"layout" format:"float4" location:"1"`
}

type lightUniform struct {
	Position [4]float32 // xyz, w = range
	Color    [4]float32 // rgb, w = intensity
}

type globalUniforms struct {
	ViewProj   mgl32.Mat4
	CameraPos  [4]float32
	Ambient    [4]float32
	Lights     [4]lightUniform
	LightCount [4]float32 // x = active light count
}

type objectUniforms struct {
	Model     mgl32.Mat4
	BaseColor [4]float32
	Emissive  [4]float32 // w = metallic
	Params    [4]float32 // x = roughness, y = textured flag
}

type renderObject struct {
	vertexBuf  *wgpu.Buffer
	indexBuf   *wgpu.Buffer
	indexCount uint32
	uniformBuf *wgpu.Buffer
	bindGroup  *wgpu.BindGroup
}

func (obj *renderObject) release() {
	obj.bindGroup.Release()
	obj.uniformBuf.Release()
	obj.indexBuf.Release()
	obj.vertexBuf.Release()
}

// RendererState owns the GPU device and everything derived from it. Scene
// state flows in through rendererSyncSystem each frame; nothing else
// touches the device.
type RendererState struct {
	gpu *GpuState

	meshPipeline *wgpu.RenderPipeline
	linePipeline *wgpu.RenderPipeline

	depthView    *wgpu.TextureView
	depthW       uint32
	depthH       uint32
	globalBuf    *wgpu.Buffer
	meshGlobals  *wgpu.BindGroup
	lineGlobals  *wgpu.BindGroup
	sampler      *wgpu.Sampler
	whiteTexture *wgpu.TextureView

	objects map[EntityId]*renderObject
}

type RendererModule struct{}

func (mod RendererModule) Install(app *App, cmd *Commands) {
	res, ok := app.resources[reflect.TypeOf((*WindowState)(nil)).Elem()]
	if !ok {
		panic("RendererModule requires a PlatformWindowModule installed before it")
	}
	windowState := res.(*WindowState)
	gpu := createGpuState(windowState)

	meshPipeline := createRenderPipeline("mesh", meshShaderWGSL, Vertex{}, wgpu.PrimitiveTopologyTriangleList, gpu)
	linePipeline := createRenderPipeline("lines", lineShaderWGSL, LineVertex{}, wgpu.PrimitiveTopologyLineList, gpu)

	globalBuf := createBuffer("Globals", &globalUniforms{}, gpu, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)

	sampler, err := gpu.device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		panic(err)
	}

	white := TextureAsset{texels: []uint8{255, 255, 255, 255}, width: 1, height: 1}
	whiteView := createTextureFromAsset(&white, gpu)

	state := &RendererState{
		gpu:          gpu,
		meshPipeline: meshPipeline,
		linePipeline: linePipeline,
		depthW:       gpu.surfaceConfig.Width,
		depthH:       gpu.surfaceConfig.Height,
		depthView:    createDepthTexture(gpu, gpu.surfaceConfig.Width, gpu.surfaceConfig.Height),
		globalBuf:    globalBuf,
		sampler:      sampler,
		whiteTexture: whiteView,
		objects:      make(map[EntityId]*renderObject),
	}
	state.meshGlobals = state.bindGlobals(meshPipeline)
	state.lineGlobals = state.bindGlobals(linePipeline)

	cmd.AddResources(state)

	app.UseSystem(System(rendererSyncSystem).InStage(Render).RunAlways())
	app.UseSystem(System(rendererDrawSystem).InStage(Render).RunAlways())
}

func (state *RendererState) bindGlobals(pipeline *wgpu.RenderPipeline) *wgpu.BindGroup {
	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()

	group, err := state.gpu.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: state.globalBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		panic(err)
	}
	return group
}

// rendererSyncSystem mirrors the scene into GPU objects: lazily builds
// buffers and bind groups for entities with a MeshComponent, rewrites each
// object's model/material uniform, and releases objects whose entity died.
func rendererSyncSystem(cmd *Commands, scene *Scene, assets *AssetServer, state *RendererState) {
	seen := make(map[EntityId]struct{})

	MakeQuery3[MeshComponent, GlobalTransformComponent, PBRMaterialComponent](cmd).Map(
		func(eid EntityId, mc *MeshComponent, gt *GlobalTransformComponent, mat *PBRMaterialComponent) bool {
			obj, ok := state.objects[eid]
			if !ok {
				obj = state.createObject(eid, mc, assets)
				if obj == nil {
					return true
				}
			}
			seen[eid] = struct{}{}

			material := DefaultPBRMaterial()
			if mat != nil {
				material = *mat
			}

			textured := float32(0)
			if mc.AssetPath != "" {
				textured = 1
			}

			uniforms := objectUniforms{
				Model:     gt.Matrix,
				BaseColor: material.BaseColor,
				Emissive: [4]float32{
					material.Emissive[0], material.Emissive[1], material.Emissive[2],
					material.Metallic,
				},
				Params: [4]float32{material.Roughness, textured, 0, 0},
			}
			state.gpu.queue.WriteBuffer(obj.uniformBuf, 0, toBufferBytes(&uniforms))
			return true
		},
		PBRMaterialComponent{},
	)

	for eid, obj := range state.objects {
		if _, ok := seen[eid]; ok {
			continue
		}
		obj.release()
		delete(state.objects, eid)
	}
}

func (state *RendererState) createObject(eid EntityId, mc *MeshComponent, assets *AssetServer) *renderObject {
	mesh := assets.PrimitiveMesh(mc.Primitive)
	meshAsset, ok := assets.MeshAsset(mesh)
	if !ok {
		return nil
	}

	vertexBuf, indexBuf := createVertexIndexBuffers(meshAsset.vertices, meshAsset.indices, state.gpu.device)
	uniformBuf := createBuffer("Object", &objectUniforms{Model: mgl32.Ident4()}, state.gpu, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)

	textureView := state.whiteTexture
	if mc.AssetPath != "" {
		if id, err := assets.LoadTexture(mc.AssetPath); err == nil {
			if txAsset, ok := assets.Texture(id); ok {
				textureView = createTextureFromAsset(&txAsset, state.gpu)
			}
		}
	}

	layout := state.meshPipeline.GetBindGroupLayout(1)
	defer layout.Release()

	bindGroup, err := state.gpu.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: uniformBuf, Size: wgpu.WholeSize},
			{Binding: 1, TextureView: textureView, Size: wgpu.WholeSize},
			{Binding: 2, Sampler: state.sampler, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		panic(err)
	}

	obj := &renderObject{
		vertexBuf:  vertexBuf,
		indexBuf:   indexBuf,
		indexCount: uint32(len(meshAsset.indices)),
		uniformBuf: uniformBuf,
		bindGroup:  bindGroup,
	}
	state.objects[eid] = obj
	return obj
}

// rendererDrawSystem encodes one frame: write globals (camera + lights),
// draw every mesh object, then the wireframe gizmo pass, and present.
func rendererDrawSystem(cmd *Commands, scene *Scene, state *RendererState, windowState *WindowState, input *Input) {
	if windowState.windowGlfw.ShouldClose() {
		cmd.Quit()
		return
	}

	camera := activeCamera(cmd)
	if camera == nil {
		return
	}

	state.reconfigureIfResized(input.WindowWidth, input.WindowHeight)

	aspect := float32(state.gpu.surfaceConfig.Width) / float32(max32u(state.gpu.surfaceConfig.Height, 1))
	globals := globalUniforms{
		ViewProj:  camera.ViewProj(aspect),
		CameraPos: [4]float32{camera.Position.X(), camera.Position.Y(), camera.Position.Z(), 1},
		Ambient:   [4]float32{0.08, 0.08, 0.1, 1},
	}

	lightCount := 0
	MakeQuery2[PointLightComponent, GlobalTransformComponent](cmd).Map(func(eid EntityId, light *PointLightComponent, gt *GlobalTransformComponent) bool {
		if lightCount >= len(globals.Lights) {
			return false
		}
		pos := MatrixTranslation(gt.Matrix)
		globals.Lights[lightCount] = lightUniform{
			Position: [4]float32{pos.X(), pos.Y(), pos.Z(), light.Range},
			Color:    [4]float32{light.Color[0], light.Color[1], light.Color[2], light.Intensity},
		}
		lightCount++
		return true
	})
	globals.LightCount[0] = float32(lightCount)

	state.gpu.queue.WriteBuffer(state.globalBuf, 0, toBufferBytes(&globals))

	lineVerts := collectLineVertices(cmd, scene)

	surfaceTexture, err := state.gpu.surface.GetCurrentTexture()
	if err != nil {
		return // lost surface this frame, try again next
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return
	}
	defer view.Release()

	encoder, err := state.gpu.device.CreateCommandEncoder(nil)
	if err != nil {
		panic(err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0.12, G: 0.12, B: 0.14, A: 1},
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            state.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1,
			StencilLoadOp:   wgpu.LoadOpClear,
			StencilStoreOp:  wgpu.StoreOpStore,
		},
	})

	pass.SetPipeline(state.meshPipeline)
	pass.SetBindGroup(0, state.meshGlobals, nil)
	for _, obj := range state.objects {
		pass.SetBindGroup(1, obj.bindGroup, nil)
		pass.SetVertexBuffer(0, obj.vertexBuf, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(obj.indexBuf, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
		pass.DrawIndexed(obj.indexCount, 1, 0, 0, 0)
	}

	var lineBuf *wgpu.Buffer
	if len(lineVerts) > 0 {
		lineBuf, err = state.gpu.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    "Gizmo Lines",
			Contents: untypedSliceToWgpuBytes(MakeAnySlice(lineVerts)),
			Usage:    wgpu.BufferUsageVertex,
		})
		if err != nil {
			panic(err)
		}

		pass.SetPipeline(state.linePipeline)
		pass.SetBindGroup(0, state.lineGlobals, nil)
		pass.SetVertexBuffer(0, lineBuf, 0, wgpu.WholeSize)
		pass.Draw(uint32(len(lineVerts)), 1, 0, 0)
	}

	pass.End()
	pass.Release()

	cmdBuffer, err := encoder.Finish(nil)
	if err != nil {
		panic(err)
	}
	state.gpu.queue.Submit(cmdBuffer)
	cmdBuffer.Release()
	if lineBuf != nil {
		lineBuf.Release()
	}

	state.gpu.surface.Present()
}

func (state *RendererState) reconfigureIfResized(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	w, h := uint32(width), uint32(height)
	if w == state.gpu.surfaceConfig.Width && h == state.gpu.surfaceConfig.Height {
		return
	}

	state.gpu.surfaceConfig.Width = w
	state.gpu.surfaceConfig.Height = h
	state.gpu.surface.Configure(state.gpu.adapter, state.gpu.device, state.gpu.surfaceConfig)

	state.depthView.Release()
	state.depthView = createDepthTexture(state.gpu, w, h)
	state.depthW = w
	state.depthH = h
}

// collectLineVertices expands every GizmoComponent into world-space line
// segments: lines, boxes (12 edges), rects, circles and spheres (3 rings).
func collectLineVertices(cmd *Commands, scene *Scene) []LineVertex {
	var verts []LineVertex

	MakeQuery1[GizmoComponent](cmd).Map(func(eid EntityId, giz *GizmoComponent) bool {
		world := scene.GlobalMatrix(eid).Mul4(gizmoLocalMatrix(giz))
		emit := func(a, b mgl32.Vec3) {
			wa := TransformPoint(world, a)
			wb := TransformPoint(world, b)
			verts = append(verts,
				LineVertex{Position: [3]float32{wa.X(), wa.Y(), wa.Z()}, Color: giz.Color},
				LineVertex{Position: [3]float32{wb.X(), wb.Y(), wb.Z()}, Color: giz.Color},
			)
		}

		switch giz.Type {
		case GizmoLine:
			// Position is baked into the local matrix; the segment runs from
			// the local origin to LineEnd relative to the start.
			emit(mgl32.Vec3{}, giz.LineEnd.Sub(giz.Position))
		case GizmoCube:
			emitBoxEdges(emit, mgl32.Vec3{0.5, 0.5, 0.5})
		case GizmoRect:
			h := float32(0.5)
			corners := [4]mgl32.Vec3{{-h, -h, 0}, {h, -h, 0}, {h, h, 0}, {-h, h, 0}}
			for i := 0; i < 4; i++ {
				emit(corners[i], corners[(i+1)%4])
			}
		case GizmoCircle:
			emitCircle(emit, giz.Radius, 0)
		case GizmoSphere:
			emitCircle(emit, giz.Radius, 0)
			emitCircle(emit, giz.Radius, 1)
			emitCircle(emit, giz.Radius, 2)
		}
		return true
	})

	return verts
}

func gizmoLocalMatrix(giz *GizmoComponent) mgl32.Mat4 {
	scale := giz.Scale
	if scale == (mgl32.Vec3{}) {
		scale = mgl32.Vec3{1, 1, 1}
	}
	rot := giz.Rotation
	if rot == (mgl32.Quat{}) {
		rot = mgl32.QuatIdent()
	}
	return mgl32.Translate3D(giz.Position.X(), giz.Position.Y(), giz.Position.Z()).
		Mul4(rot.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

func emitBoxEdges(emit func(a, b mgl32.Vec3), half mgl32.Vec3) {
	var corners [8]mgl32.Vec3
	for i := 0; i < 8; i++ {
		corners[i] = mgl32.Vec3{
			half.X() * (float32(i&1)*2 - 1),
			half.Y() * (float32(i>>1&1)*2 - 1),
			half.Z() * (float32(i>>2&1)*2 - 1),
		}
	}
	edges := [12][2]int{
		{0, 1}, {1, 3}, {3, 2}, {2, 0},
		{4, 5}, {5, 7}, {7, 6}, {6, 4},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	}
	for _, e := range edges {
		emit(corners[e[0]], corners[e[1]])
	}
}

// emitCircle draws a unit-circle polyline in the plane perpendicular to the
// given local axis (0=X, 1=Y, 2=Z plane normal).
func emitCircle(emit func(a, b mgl32.Vec3), radius float32, planeNormal int) {
	const segments = 32
	point := func(i int) mgl32.Vec3 {
		theta := 2 * math.Pi * float64(i) / segments
		c := float32(math.Cos(theta)) * radius
		s := float32(math.Sin(theta)) * radius
		switch planeNormal {
		case 0:
			return mgl32.Vec3{0, c, s}
		case 1:
			return mgl32.Vec3{c, 0, s}
		default:
			return mgl32.Vec3{c, s, 0}
		}
	}
	for i := 0; i < segments; i++ {
		emit(point(i), point(i+1))
	}
}

func max32u(v uint32, lo uint32) uint32 {
	if v < lo {
		return lo
	}
	return v
}

const meshShaderWGSL = `
struct Light {
	position: vec4<f32>,
	color: vec4<f32>,
};

struct Globals {
	view_proj: mat4x4<f32>,
	camera_pos: vec4<f32>,
	ambient: vec4<f32>,
	lights: array<Light, 4>,
	light_count: vec4<f32>,
};

struct Object {
	model: mat4x4<f32>,
	base_color: vec4<f32>,
	emissive: vec4<f32>,
	params: vec4<f32>,
};

@group(0) @binding(0) var<uniform> globals: Globals;
@group(1) @binding(0) var<uniform> object: Object;
@group(1) @binding(1) var base_texture: texture_2d<f32>;
@group(1) @binding(2) var base_sampler: sampler;

struct VsOut {
	@builtin(position) clip_pos: vec4<f32>,
	@location(0) world_pos: vec3<f32>,
	@location(1) normal: vec3<f32>,
	@location(2) uv: vec2<f32>,
};

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) normal: vec3<f32>, @location(2) uv: vec2<f32>) -> VsOut {
	var out: VsOut;
	let world = object.model * vec4<f32>(position, 1.0);
	out.clip_pos = globals.view_proj * world;
	out.world_pos = world.xyz;
	out.normal = normalize((object.model * vec4<f32>(normal, 0.0)).xyz);
	out.uv = uv;
	return out;
}

@fragment
fn fs_main(in: VsOut) -> @location(0) vec4<f32> {
	var albedo = object.base_color;
	if (object.params.y > 0.5) {
		albedo = albedo * textureSample(base_texture, base_sampler, in.uv);
	}

	let n = normalize(in.normal);
	let view_dir = normalize(globals.camera_pos.xyz - in.world_pos);
	let roughness = clamp(object.params.x, 0.04, 1.0);
	let metallic = object.emissive.w;

	var color = globals.ambient.rgb * albedo.rgb;
	let count = u32(globals.light_count.x);
	for (var i = 0u; i < 4u; i = i + 1u) {
		if (i >= count) {
			break;
		}
		let light = globals.lights[i];
		let to_light = light.position.xyz - in.world_pos;
		let dist = length(to_light);
		if (light.position.w > 0.0 && dist > light.position.w) {
			continue;
		}
		let l = to_light / max(dist, 0.0001);
		let atten = light.color.w / (1.0 + dist * dist);
		let n_dot_l = max(dot(n, l), 0.0);

		let diffuse = albedo.rgb * (1.0 - metallic);
		let h = normalize(l + view_dir);
		let spec_power = mix(64.0, 4.0, roughness);
		let spec = pow(max(dot(n, h), 0.0), spec_power) * (1.0 - roughness);

		color = color + light.color.rgb * atten * n_dot_l * (diffuse + vec3<f32>(spec));
	}
	color = color + object.emissive.xyz;

	return vec4<f32>(color, albedo.a);
}
`

const lineShaderWGSL = `
struct Light {
	position: vec4<f32>,
	color: vec4<f32>,
};

struct Globals {
	view_proj: mat4x4<f32>,
	camera_pos: vec4<f32>,
	ambient: vec4<f32>,
	lights: array<Light, 4>,
	light_count: vec4<f32>,
};

@group(0) @binding(0) var<uniform> globals: Globals;

struct VsOut {
	@builtin(position) clip_pos: vec4<f32>,
	@location(0) color: vec4<f32>,
};

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) color: vec4<f32>) -> VsOut {
	var out: VsOut;
	out.clip_pos = globals.view_proj * vec4<f32>(position, 1.0);
	out.color = color;
	return out;
}

@fragment
fn fs_main(in: VsOut) -> @location(0) vec4<f32> {
	return in.color;
}
`
