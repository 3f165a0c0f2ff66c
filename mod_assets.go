package forge

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
)

type AssetId string

// Vertex is the standard mesh vertex; the tags drive the reflection-based
// wgpu vertex layout.
type Vertex struct {
	Position [3]float32 `forge:"layout" format:"float3" location:"0"`
	Normal   [3]float32 `forge:"layout" format:"float3" location:"1"`
	UV       [2]float32 `forge:"layout" format:"float2" location:"2"`
}

type Mesh struct {
	assetId AssetId
}

func (m Mesh) Valid() bool { return m.assetId != "" }

type MeshAsset struct {
	version  uint
	vertices AnySlice
	indices  []uint16
}

type TextureAsset struct {
	version uint
	texels  []uint8
	width   uint32
	height  uint32
}

// AssetServer owns CPU-side mesh and texture data. GPU objects are built
// from these assets by the renderer on demand.
type AssetServer struct {
	meshes     map[AssetId]MeshAsset
	textures   map[AssetId]TextureAsset
	primitives map[string]Mesh
	byPath     map[string]AssetId
}

type AssetServerModule struct{}

func (AssetServerModule) Install(app *App, cmd *Commands) {
	app.addResources(NewAssetServer())
}

func NewAssetServer() *AssetServer {
	return &AssetServer{
		meshes:     make(map[AssetId]MeshAsset),
		textures:   make(map[AssetId]TextureAsset),
		primitives: make(map[string]Mesh),
		byPath:     make(map[string]AssetId),
	}
}

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}

func (server *AssetServer) LoadMesh(vertices []Vertex, indices []uint16) Mesh {
	id := makeAssetId()
	server.meshes[id] = MeshAsset{
		vertices: MakeAnySlice(vertices),
		indices:  indices,
	}
	return Mesh{assetId: id}
}

func (server *AssetServer) MeshAsset(m Mesh) (MeshAsset, bool) {
	asset, ok := server.meshes[m.assetId]
	return asset, ok
}

// PrimitiveMesh returns the shared mesh for "cube", "sphere" or "plane",
// building it on first use. Unknown names return an invalid mesh.
func (server *AssetServer) PrimitiveMesh(name string) Mesh {
	if mesh, ok := server.primitives[name]; ok {
		return mesh
	}

	var mesh Mesh
	switch name {
	case "cube":
		mesh = server.createCubeMesh(0.5)
	case "sphere":
		mesh = server.createSphereMesh(0.5, 24, 16)
	case "plane":
		mesh = server.createPlaneMesh(0.5)
	default:
		return Mesh{}
	}
	server.primitives[name] = mesh
	return mesh
}

// LoadTexture decodes a PNG/JPEG file into RGBA texels, rescaling to the
// nearest power-of-two dimensions. Results are cached per path.
func (server *AssetServer) LoadTexture(filename string) (AssetId, error) {
	if id, ok := server.byPath[filename]; ok {
		return id, nil
	}

	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return "", fmt.Errorf("decode texture %s: %w", filename, err)
	}

	bounds := img.Bounds()
	w := nextPow2(bounds.Dx())
	h := nextPow2(bounds.Dy())

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(rgba, rgba.Bounds(), img, bounds, xdraw.Src, nil)

	id := makeAssetId()
	server.textures[id] = TextureAsset{
		texels: rgba.Pix,
		width:  uint32(w),
		height: uint32(h),
	}
	server.byPath[filename] = id
	return id, nil
}

func (server *AssetServer) CreateTexture(texels []uint8, width, height uint32) AssetId {
	id := makeAssetId()
	server.textures[id] = TextureAsset{
		texels: texels,
		width:  width,
		height: height,
	}
	return id
}

func (server *AssetServer) Texture(id AssetId) (TextureAsset, bool) {
	asset, ok := server.textures[id]
	return asset, ok
}

func nextPow2(v int) int {
	p := 1
	for p < v {
		p <<= 1
	}
	return p
}

func (server *AssetServer) createCubeMesh(half float32) Mesh {
	faces := [6]struct {
		normal [3]float32
		basisU [3]float32
		basisV [3]float32
	}{
		{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{0, 0, -1}, [3]float32{-1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{1, 0, 0}, [3]float32{0, 0, -1}, [3]float32{0, 1, 0}},
		{[3]float32{-1, 0, 0}, [3]float32{0, 0, 1}, [3]float32{0, 1, 0}},
		{[3]float32{0, 1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, -1}},
		{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 1}},
	}

	var vertices []Vertex
	var indices []uint16

	for _, face := range faces {
		base := uint16(len(vertices))
		for _, corner := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			var pos [3]float32
			for i := 0; i < 3; i++ {
				pos[i] = (face.normal[i] + face.basisU[i]*corner[0] + face.basisV[i]*corner[1]) * half
			}
			vertices = append(vertices, Vertex{
				Position: pos,
				Normal:   face.normal,
				UV:       [2]float32{(corner[0] + 1) / 2, (1 - corner[1]) / 2},
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}

	return server.LoadMesh(vertices, indices)
}

func (server *AssetServer) createSphereMesh(radius float32, segments, rings int) Mesh {
	var vertices []Vertex
	var indices []uint16

	for ring := 0; ring <= rings; ring++ {
		phi := math.Pi * float64(ring) / float64(rings)
		for seg := 0; seg <= segments; seg++ {
			theta := 2 * math.Pi * float64(seg) / float64(segments)

			nx := float32(math.Sin(phi) * math.Cos(theta))
			ny := float32(math.Cos(phi))
			nz := float32(math.Sin(phi) * math.Sin(theta))

			vertices = append(vertices, Vertex{
				Position: [3]float32{nx * radius, ny * radius, nz * radius},
				Normal:   [3]float32{nx, ny, nz},
				UV: [2]float32{
					float32(seg) / float32(segments),
					float32(ring) / float32(rings),
				},
			})
		}
	}

	stride := uint16(segments + 1)
	for ring := 0; ring < rings; ring++ {
		for seg := 0; seg < segments; seg++ {
			a := uint16(ring)*stride + uint16(seg)
			b := a + stride
			indices = append(indices, a, b, a+1, a+1, b, b+1)
		}
	}

	return server.LoadMesh(vertices, indices)
}

func (server *AssetServer) createPlaneMesh(half float32) Mesh {
	vertices := []Vertex{
		{Position: [3]float32{-half, 0, -half}, Normal: [3]float32{0, 1, 0}, UV: [2]float32{0, 0}},
		{Position: [3]float32{half, 0, -half}, Normal: [3]float32{0, 1, 0}, UV: [2]float32{1, 0}},
		{Position: [3]float32{half, 0, half}, Normal: [3]float32{0, 1, 0}, UV: [2]float32{1, 1}},
		{Position: [3]float32{-half, 0, half}, Normal: [3]float32{0, 1, 0}, UV: [2]float32{0, 1}},
	}
	indices := []uint16{0, 2, 1, 0, 3, 2}
	return server.LoadMesh(vertices, indices)
}
